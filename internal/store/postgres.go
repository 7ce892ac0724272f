package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/roster-cli/internal/db"
	"github.com/sells-group/roster-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	roster_path         TEXT NOT NULL,
	output_path         TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'in_progress',
	total_hospitals     INTEGER NOT NULL DEFAULT 0,
	completed_hospitals INTEGER NOT NULL DEFAULT 0,
	current_hospital    TEXT NOT NULL DEFAULT '',
	status_message      TEXT NOT NULL DEFAULT '',
	stats               JSONB NOT NULL DEFAULT '{}',
	error               TEXT NOT NULL DEFAULT '',
	started_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at        TIMESTAMPTZ,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS providers (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id       TEXT NOT NULL DEFAULT '',
	hospital_name    TEXT NOT NULL,
	address          TEXT NOT NULL,
	doctor_name      TEXT NOT NULL,
	specialization   TEXT NOT NULL DEFAULT '',
	qualification    TEXT NOT NULL DEFAULT '',
	phone_number     TEXT NOT NULL DEFAULT '',
	license_number   TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	location         BYTEA,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (hospital_name, address, doctor_name)
);

ALTER TABLE providers ADD COLUMN IF NOT EXISTS location BYTEA;

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_providers_status ON providers(status);
CREATE INDEX IF NOT EXISTS idx_providers_session_id ON providers(session_id);
`

// providerUpsert writes providers through a COPY-fed temp table. id and
// created_at are kept from the first write.
var providerUpsert = db.UpsertConfig{
	Table: "providers",
	Columns: []string{
		"id", "session_id", "hospital_name", "address", "doctor_name",
		"specialization", "qualification", "phone_number", "license_number",
		"status", "reason", "confidence_score", "location", "created_at", "updated_at",
	},
	ConflictKeys: []string{"hospital_name", "address", "doctor_name"},
	UpdateCols: []string{
		"session_id", "specialization", "qualification", "phone_number", "license_number",
		"status", "reason", "confidence_score", "location", "updated_at",
	},
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.Status == "" {
		sess.Status = model.SessionInProgress
	}

	stats, err := json.Marshal(sess.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, roster_path, output_path, status, total_hospitals, status_message, stats, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.RosterPath, sess.OutputPath, string(sess.Status), sess.TotalHospitals,
		sess.StatusMessage, stats, sess.StartedAt, sess.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert session %s", sess.ID)
}

func (s *PostgresStore) UpdateSessionProgress(ctx context.Context, id string, p model.Progress) error {
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET total_hospitals = $1, completed_hospitals = $2, current_hospital = $3,
		 status_message = $4, stats = $5, updated_at = $6
		 WHERE id = $7 AND status = $8`,
		p.TotalHospitals, completedHospitals(p), p.HospitalName, p.Message, stats,
		time.Now().UTC(), id, string(model.SessionInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteSession(ctx context.Context, id string, stats model.RunStatistics) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, completed_hospitals = $2, stats = $3, status_message = $4,
		 completed_at = $5, updated_at = $6
		 WHERE id = $7 AND status = $8`,
		string(model.SessionCompleted), stats.HospitalsCompleted, statsJSON, "Validation complete",
		now, now, id, string(model.SessionInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) FailSession(ctx context.Context, id string, msg string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, error = $2, status_message = $3, completed_at = $4, updated_at = $5
		 WHERE id = $6 AND status = $7`,
		string(model.SessionFailed), msg, "Validation failed", now, now, id, string(model.SessionInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) UpsertProviders(ctx context.Context, sessionID string, results []model.ReconciliationResult) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		location, err := encodeLocation(r)
		if err != nil {
			return err
		}
		rows = append(rows, []any{
			uuid.New().String(), sessionID, r.HospitalName, r.Address, r.DoctorName,
			r.Specialization, r.Qualification, r.PhoneNumber, r.LicenseNumber,
			string(r.Status), r.Reason, r.ConfidenceScore, location, now, now,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, providerUpsert, rows)
	return eris.Wrap(err, "postgres: upsert providers")
}

func (s *PostgresStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		query += fmt.Sprintf(` AND session_id = $%d`, len(args))
	}
	if filter.Hospital != "" {
		args = append(args, filter.Hospital)
		query += fmt.Sprintf(` AND hospital_name = $%d`, len(args))
	}
	query += ` ORDER BY hospital_name, doctor_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		providers = append(providers, *p)
	}
	return providers, eris.Wrap(rows.Err(), "postgres: list providers iterate")
}
