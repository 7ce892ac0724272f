package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/roster"
)

// scriptedCollaborator answers VerifyAndScrape from a per-hospital script.
type scriptedCollaborator struct {
	mu       sync.Mutex
	calls    []string
	script   map[string]func() (*model.ScrapeOutcome, error)
	onCall   func(hospital string)
	fallback *model.ScrapeOutcome
}

func (s *scriptedCollaborator) VerifyAndScrape(_ context.Context, hospitalName, _ string) (*model.ScrapeOutcome, error) {
	s.mu.Lock()
	s.calls = append(s.calls, hospitalName)
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(hospitalName)
	}
	if fn, ok := s.script[hospitalName]; ok {
		return fn()
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return &model.ScrapeOutcome{Verified: false, Source: "Mappls", Error: "No results found"}, nil
}

func verifiedWith(doctors ...model.ScrapedDoctor) func() (*model.ScrapeOutcome, error) {
	return func() (*model.ScrapeOutcome, error) {
		return &model.ScrapeOutcome{
			Verified:               true,
			Source:                 "Mappls",
			Doctors:                doctors,
			AddressConfidenceScore: 80,
		}, nil
	}
}

func row(hospital, address, doctor, phone string) roster.Row {
	return roster.Row{
		"hospital_name": hospital,
		"address":       address,
		"doctor_name":   doctor,
		"phone_number":  phone,
	}
}

// memorySink records every Append call.
type memorySink struct {
	batches [][]model.ReconciliationResult
	err     error
	calls   int
}

func (m *memorySink) Append(results []model.ReconciliationResult) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, results)
	return nil
}

func (m *memorySink) all() []model.ReconciliationResult {
	var out []model.ReconciliationResult
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func TestRunIncremental_StatsSumToRows(t *testing.T) {
	rows := []roster.Row{
		row("Apollo", "Tirupati 517501", "Dr. S Sharma", "9876543210"),
		row("Apollo", "Tirupati 517501", "Dr. R Iyer", "111"),
		row("Apollo", "Tirupati 517501", "Dr. Missing", ""),
		row("City Care", "Hyderabad 500081", "Dr. A Rao", ""),
		row("Sunrise", "Chennai 600001", "Dr. K Nair", ""),
	}
	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"Apollo": verifiedWith(
			model.ScrapedDoctor{FullName: "Sharma, S.", PhoneNumber: "+91-98765-43210"},
			model.ScrapedDoctor{FullName: "R Iyer", PhoneNumber: "222"},
		),
		"City Care": func() (*model.ScrapeOutcome, error) { return nil, errors.New("boom") },
	}}
	sink := &memorySink{}

	stats, err := NewRunner(collab, sink).RunIncremental(context.Background(), rows, Callbacks{})
	require.NoError(t, err)

	assert.Equal(t, len(rows), stats.TotalProcessed)
	assert.Equal(t, stats.TotalProcessed, stats.Verified+stats.Updated+stats.NeedsReview)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 3, stats.NeedsReview)
	assert.Equal(t, 3, stats.HospitalsCompleted)
	assert.Equal(t, []string{"Apollo", "City Care", "Sunrise"}, collab.calls)
	require.Len(t, sink.batches, 3)
}

func TestRunIncremental_UnverifiedPropagatesError(t *testing.T) {
	rows := []roster.Row{
		row("Ghost Hospital", "Nowhere", "Dr. A", ""),
		row("Ghost Hospital", "Nowhere", "Dr. B", ""),
	}
	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"Ghost Hospital": func() (*model.ScrapeOutcome, error) {
			return &model.ScrapeOutcome{Verified: false, Source: "Google Places", Error: "no results"}, nil
		},
	}}
	sink := &memorySink{}

	_, err := NewRunner(collab, sink).RunIncremental(context.Background(), rows, Callbacks{})
	require.NoError(t, err)

	results := sink.all()
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.StatusNeedsReview, r.Status)
		assert.Contains(t, r.Reason, "no results")
		assert.Equal(t, "Hospital address not found via Google Places - no results", r.Reason)
	}
}

func TestRunIncremental_UnverifiedDefaults(t *testing.T) {
	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"H": func() (*model.ScrapeOutcome, error) { return &model.ScrapeOutcome{}, nil },
	}}
	sink := &memorySink{}

	_, err := NewRunner(collab, sink).RunIncremental(context.Background(), []roster.Row{row("H", "A", "Dr. X", "")}, Callbacks{})
	require.NoError(t, err)

	results := sink.all()
	require.Len(t, results, 1)
	assert.Equal(t, "Hospital address not found via Mappls/Google API - Address verification failed", results[0].Reason)
}

func TestRunIncremental_CollaboratorErrorAndPanic(t *testing.T) {
	rows := []roster.Row{
		row("Err", "A", "Dr. X", ""),
		row("Panic", "B", "Dr. Y", ""),
		row("Ok", "C", "Dr. Z", ""),
	}
	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"Err":   func() (*model.ScrapeOutcome, error) { return nil, errors.New("connection reset") },
		"Panic": func() (*model.ScrapeOutcome, error) { panic("browser crashed") },
		"Ok":    verifiedWith(model.ScrapedDoctor{FullName: "Z"}),
	}}
	sink := &memorySink{}

	stats, err := NewRunner(collab, sink).RunIncremental(context.Background(), rows, Callbacks{})
	require.NoError(t, err)

	results := sink.all()
	require.Len(t, results, 3)
	assert.Equal(t, "Hospital address not found via Mappls/Google API - connection reset", results[0].Reason)
	assert.Equal(t, "Hospital address not found via Mappls/Google API - browser crashed", results[1].Reason)
	assert.Equal(t, model.StatusVerified, results[2].Status)
	assert.Equal(t, 3, stats.TotalProcessed)
}

func TestRunIncremental_ProgressSequence(t *testing.T) {
	rows := []roster.Row{
		row("Apollo", "A", "Dr. S Sharma", ""),
		row("Apollo", "A", "Dr. R Iyer", ""),
	}
	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"Apollo": verifiedWith(model.ScrapedDoctor{FullName: "S Sharma"}),
	}}

	var events []model.Progress
	cb := Callbacks{
		Progress: func(_ context.Context, p model.Progress) error {
			events = append(events, p)
			return nil
		},
	}

	_, err := NewRunner(collab, &memorySink{}).RunIncremental(context.Background(), rows, cb)
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, "Finding address for Apollo...", events[0].Message)
	assert.Equal(t, model.ProgressInProgress, events[0].Status)
	assert.Equal(t, "Verifying 2 doctors against 1 found records...", events[1].Message)
	assert.Equal(t, model.ProgressCompleted, events[2].Status)
	assert.Equal(t, "Completed validation for Apollo", events[2].Message)
	assert.Equal(t, 1, events[2].HospitalIndex)
	assert.Equal(t, 1, events[2].TotalHospitals)
	assert.Len(t, events[2].Results, 2)
	assert.Equal(t, 2, events[2].Stats.TotalProcessed)
	assert.Equal(t, 0, events[0].Stats.TotalProcessed)
}

func TestRunIncremental_CallbackFailuresSwallowed(t *testing.T) {
	rows := []roster.Row{
		row("One", "A", "Dr. X", ""),
		row("Two", "B", "Dr. Y", ""),
	}
	collab := &scriptedCollaborator{}
	sink := &memorySink{}

	persisted := 0
	cb := Callbacks{
		Progress: func(_ context.Context, p model.Progress) error {
			if p.Status == model.ProgressCompleted {
				panic("progress exploded")
			}
			return errors.New("progress store down")
		},
		Persist: func(_ context.Context, _ []model.ReconciliationResult) error {
			persisted++
			return errors.New("db unavailable")
		},
	}

	stats, err := NewRunner(collab, sink).RunIncremental(context.Background(), rows, cb)
	require.NoError(t, err)
	assert.Equal(t, 2, persisted)
	assert.Equal(t, 2, stats.HospitalsCompleted)
	assert.Len(t, sink.batches, 2)
}

func TestRunIncremental_VerifiedResultsCarryCoordinates(t *testing.T) {
	lat, lng := 13.6288, 79.4192
	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"Apollo": func() (*model.ScrapeOutcome, error) {
			return &model.ScrapeOutcome{
				Verified:               true,
				Source:                 "Mappls",
				Doctors:                []model.ScrapedDoctor{{FullName: "Dr. S Sharma", PhoneNumber: "9876543210"}},
				AddressConfidenceScore: 90,
				Latitude:               &lat,
				Longitude:              &lng,
			}, nil
		},
	}}
	rows := []roster.Row{
		row("Apollo", "Tirupati 517501", "Dr. S Sharma", "9876543210"),
		row("Apollo", "Tirupati 517501", "Dr. Missing", ""),
		row("Ghost", "Nowhere", "Dr. A", ""),
	}
	sink := &memorySink{}

	_, err := NewRunner(collab, sink).RunIncremental(context.Background(), rows, Callbacks{})
	require.NoError(t, err)

	results := sink.all()
	require.Len(t, results, 3)
	for _, r := range results[:2] {
		pt := r.Point()
		require.NotNil(t, pt, r.DoctorName)
		assert.InDelta(t, lat, pt.Y(), 1e-9)
		assert.InDelta(t, lng, pt.X(), 1e-9)
		assert.Equal(t, 4326, pt.SRID())
	}
	assert.Nil(t, results[2].Point())
}

func TestRunIncremental_SinkFailureAbortsRun(t *testing.T) {
	collab := &scriptedCollaborator{}
	sink := &memorySink{err: errors.New("disk full")}

	_, err := NewRunner(collab, sink).RunIncremental(context.Background(), []roster.Row{row("H", "A", "Dr. X", "")}, Callbacks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

// failAfterSink accepts the first n appends and fails every later one.
type failAfterSink struct {
	memorySink
	n int
}

func (f *failAfterSink) Append(results []model.ReconciliationResult) error {
	if f.calls >= f.n {
		f.calls++
		return errors.New("fsync: input/output error")
	}
	return f.memorySink.Append(results)
}

func TestRunIncremental_SinkFailureNotRetried(t *testing.T) {
	rows := []roster.Row{
		row("H1", "A", "Dr. X", ""),
		row("H2", "B", "Dr. Y", ""),
		row("H3", "C", "Dr. Z", ""),
	}
	sink := &failAfterSink{n: 1}
	var persisted int
	cb := Callbacks{Persist: func(context.Context, []model.ReconciliationResult) error {
		persisted++
		return nil
	}}

	stats, err := NewRunner(&scriptedCollaborator{}, sink).RunIncremental(context.Background(), rows, cb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write results for H2")

	// H2 is attempted once and H3 never.
	assert.Equal(t, 2, sink.calls)
	require.Len(t, sink.batches, 1)
	assert.Equal(t, "H1", sink.batches[0][0].HospitalName)
	assert.Equal(t, 1, stats.HospitalsCompleted)
	assert.Equal(t, 1, persisted)
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRunIncremental_CrashAfterThirdHospital(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	sink, err := CreateCSVSink(path)
	require.NoError(t, err)
	defer sink.Close() //nolint:errcheck

	rows := []roster.Row{
		row("H1", "A1", "Dr. One", ""),
		row("H2", "A2", "Dr. Two", ""),
		row("H3", "A3", "Dr. Three", ""),
		row("H3", "A3", "Dr. Three B", ""),
		row("H4", "A4", "Dr. Four", ""),
		row("H5", "A5", "Dr. Five", ""),
	}

	// The file as seen while hospital 4 is in flight is what a crash at that
	// point would leave behind.
	var snapshot [][]string
	collab := &scriptedCollaborator{onCall: func(hospital string) {
		if hospital == "H4" {
			snapshot = readOutput(t, path)
		}
	}}

	_, err = NewRunner(collab, sink).RunIncremental(context.Background(), rows, Callbacks{})
	require.NoError(t, err)

	require.Len(t, snapshot, 5)
	assert.Equal(t, model.OutputColumns, snapshot[0])
	var hospitals []string
	for _, rec := range snapshot[1:] {
		hospitals = append(hospitals, rec[0])
	}
	assert.Equal(t, []string{"H1", "H2", "H3", "H3"}, hospitals)
	assert.Equal(t, "Dr. Three", snapshot[3][2])
	assert.Equal(t, "Dr. Three B", snapshot[4][2])

	final := readOutput(t, path)
	assert.Len(t, final, 7)
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "roster.csv")
	out := filepath.Join(dir, "out.csv")

	content := strings.Join([]string{
		"Hospital_Name,Address,Doctor_Name,Specialty,Phone",
		"Apollo,Tirupati 517501,Dr. S Sharma,Cardiology,+91-98765-43210",
		"Apollo,Tirupati 517501,Dr. P Menon,Neurology,",
	}, "\n")
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	collab := &scriptedCollaborator{script: map[string]func() (*model.ScrapeOutcome, error){
		"Apollo": verifiedWith(
			model.ScrapedDoctor{FullName: "Sharma S", Specialization: "cardiology", PhoneNumber: "9876543210"},
			model.ScrapedDoctor{FullName: "P Menon", Specialization: "Neurosurgery"},
		),
	}}

	stats, err := RunFile(context.Background(), collab, in, out, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalProcessed)
	assert.Equal(t, 1, stats.Verified)
	assert.Equal(t, 1, stats.Updated)

	records := readOutput(t, out)
	require.Len(t, records, 3)
	assert.Equal(t, "verified", records[1][7])
	assert.Equal(t, "updated details", records[2][7])
	assert.Equal(t, "Updated: specialization [Neurology → Neurosurgery]", records[2][8])
}

func TestRunFile_UnreadableRoster(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")

	_, err := RunFile(context.Background(), &scriptedCollaborator{}, filepath.Join(dir, "missing.csv"), out, Callbacks{})
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
