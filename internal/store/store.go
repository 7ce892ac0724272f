// Package store persists reconciliation sessions and provider results.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/roster-cli/internal/model"
)

// ErrNotFound is returned when a session does not exist or has already
// reached a terminal state.
var ErrNotFound = eris.New("store: not found")

// ProviderFilter specifies criteria for listing providers.
type ProviderFilter struct {
	Status    model.Status `json:"status,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Hospital  string       `json:"hospital,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for reconciliation runs.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	UpdateSessionProgress(ctx context.Context, id string, p model.Progress) error
	CompleteSession(ctx context.Context, id string, stats model.RunStatistics) error
	FailSession(ctx context.Context, id string, msg string) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)

	// Providers
	UpsertProviders(ctx context.Context, sessionID string, results []model.ReconciliationResult) error
	ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns a migrated Store for driver "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "", "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

const defaultListLimit = 100

// completedHospitals is the number of hospitals finished as of p. An
// in-progress notification refers to a hospital still in flight.
func completedHospitals(p model.Progress) int {
	if p.Status == model.ProgressInProgress {
		return p.HospitalIndex - 1
	}
	return p.HospitalIndex
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var s model.Session
	var stats []byte
	var completedAt *time.Time

	err := row.Scan(
		&s.ID, &s.RosterPath, &s.OutputPath, &s.Status,
		&s.TotalHospitals, &s.CompletedHospitals, &s.CurrentHospital, &s.StatusMessage,
		&stats, &s.Error, &s.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &s.Stats); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal stats")
		}
	}
	s.CompletedAt = completedAt
	return &s, nil
}

func scanProvider(row scannable) (*model.Provider, error) {
	var p model.Provider
	var location []byte
	err := row.Scan(
		&p.ID, &p.SessionID, &p.HospitalName, &p.Address, &p.DoctorName,
		&p.Specialization, &p.Qualification, &p.PhoneNumber, &p.LicenseNumber,
		&p.Status, &p.Reason, &p.ConfidenceScore, &location, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pt, err := decodeLocation(location)
	if err != nil {
		return nil, err
	}
	p.SetPoint(pt)
	return &p, nil
}

// encodeLocation renders the result's coordinates as EWKB (SRID 4326). It
// returns an untyped nil when there are none so the column stays NULL.
func encodeLocation(r model.ReconciliationResult) (any, error) {
	pt := r.Point()
	if pt == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "store: encode location for %s", r.DoctorName)
	}
	return data, nil
}

func decodeLocation(data []byte) (*geom.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode location")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("store: location is %T, want point", g)
	}
	return pt, nil
}

const sessionColumns = `id, roster_path, output_path, status, total_hospitals, completed_hospitals, current_hospital, status_message, stats, error, started_at, completed_at`

const providerColumns = `id, session_id, hospital_name, address, doctor_name, specialization, qualification, phone_number, license_number, status, reason, confidence_score, location, created_at, updated_at`
