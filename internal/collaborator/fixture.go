package collaborator

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/roster-cli/internal/model"
)

// FixtureEntry scripts the collaborator's answer for one hospital. A
// non-empty Fail makes the call return an error instead of the outcome.
type FixtureEntry struct {
	Hospital string              `yaml:"hospital"`
	Fail     string              `yaml:"fail,omitempty"`
	Outcome  model.ScrapeOutcome `yaml:"outcome"`
}

type fixtureFile struct {
	Hospitals []FixtureEntry `yaml:"hospitals"`
}

// Fixture answers from scripted outcomes keyed by hospital name, for offline
// runs and tests. Unknown hospitals come back unverified.
type Fixture struct {
	entries map[string]FixtureEntry
}

// NewFixture builds a Fixture from entries. Later entries for the same
// hospital replace earlier ones.
func NewFixture(entries []FixtureEntry) *Fixture {
	f := &Fixture{entries: make(map[string]FixtureEntry, len(entries))}
	for _, e := range entries {
		f.entries[fixtureKey(e.Hospital)] = e
	}
	return f
}

// LoadFixture reads a YAML fixture file of the form
//
//	hospitals:
//	  - hospital: Gowri Gopal Hospital
//	    outcome:
//	      verified: true
//	      doctors:
//	        - full_name: Dr. S Sharma
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "collaborator: read fixture")
	}

	var ff fixtureFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, eris.Wrap(err, "collaborator: parse fixture")
	}
	return NewFixture(ff.Hospitals), nil
}

// VerifyAndScrape implements Collaborator.
func (f *Fixture) VerifyAndScrape(_ context.Context, hospitalName, address string) (*model.ScrapeOutcome, error) {
	e, ok := f.entries[fixtureKey(hospitalName)]
	if !ok {
		return &model.ScrapeOutcome{
			HospitalName:    hospitalName,
			HospitalAddress: address,
			Source:          "fixture",
			Error:           "No results found",
		}, nil
	}
	if e.Fail != "" {
		return nil, eris.New(e.Fail)
	}

	out := e.Outcome
	if out.Source == "" {
		out.Source = "fixture"
	}
	return &out, nil
}

func fixtureKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ Collaborator = (*Fixture)(nil)
