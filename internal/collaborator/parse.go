package collaborator

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/roster-cli/internal/model"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseError reports a doctor payload that could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "collaborator: parse doctors: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseDoctors decodes a doctor listing produced by a scraping agent. The
// payload may be wrapped in a markdown code fence and may be a list, an
// object with a "doctors" list, or a single doctor object. Field names are
// matched leniently (name/full_name/doctor_name, specialty/speciality,
// qualifications, phone/contact). Unknown shapes yield an empty listing.
func ParseDoctors(payload string) ([]model.ScrapedDoctor, error) {
	raw := strings.TrimSpace(payload)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, &ParseError{Err: err}
	}

	var items []any
	switch v := decoded.(type) {
	case []any:
		items = v
	case map[string]any:
		if list, ok := v["doctors"]; ok {
			items, _ = list.([]any)
		} else if _, ok := v["full_name"]; ok {
			items = []any{v}
		} else if _, ok := v["name"]; ok {
			items = []any{v}
		}
	}

	doctors := make([]model.ScrapedDoctor, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		doctors = append(doctors, model.ScrapedDoctor{
			FullName:       firstString(obj, "full_name", "name", "doctor_name"),
			Specialization: firstString(obj, "specialization", "specialty", "speciality"),
			Qualification:  firstString(obj, "qualification", "qualifications"),
			PhoneNumber:    firstString(obj, "phone_number", "phone", "contact"),
		})
	}
	return doctors, nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := stringify(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
