package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/roster-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	roster_path         TEXT NOT NULL,
	output_path         TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'in_progress',
	total_hospitals     INTEGER NOT NULL DEFAULT 0,
	completed_hospitals INTEGER NOT NULL DEFAULT 0,
	current_hospital    TEXT NOT NULL DEFAULT '',
	status_message      TEXT NOT NULL DEFAULT '',
	stats               TEXT NOT NULL DEFAULT '{}',
	error               TEXT NOT NULL DEFAULT '',
	started_at          DATETIME NOT NULL,
	completed_at        DATETIME,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS providers (
	id               TEXT PRIMARY KEY,
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
	confidence_score REAL NOT NULL DEFAULT 0,
	location         BLOB,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (hospital_name, address, doctor_name)
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_providers_status ON providers(status);
CREATE INDEX IF NOT EXISTS idx_providers_session_id ON providers(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	// Databases created before providers carried a location need the column.
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('providers') WHERE name = 'location'`,
	).Scan(&n)
	if err != nil {
		return eris.Wrap(err, "sqlite: inspect providers")
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE providers ADD COLUMN location BLOB`); err != nil {
			return eris.Wrap(err, "sqlite: add providers.location")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.Session) error {
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
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, roster_path, output_path, status, total_hospitals, status_message, stats, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.RosterPath, sess.OutputPath, string(sess.Status), sess.TotalHospitals,
		sess.StatusMessage, string(stats), sess.StartedAt, sess.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
}

func (s *SQLiteStore) UpdateSessionProgress(ctx context.Context, id string, p model.Progress) error {
	stats, err := json.Marshal(p.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET total_hospitals = ?, completed_hospitals = ?, current_hospital = ?,
		 status_message = ?, stats = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		p.TotalHospitals, completedHospitals(p), p.HospitalName, p.Message, string(stats),
		time.Now().UTC(), id, string(model.SessionInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session progress %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CompleteSession(ctx context.Context, id string, stats model.RunStatistics) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, completed_hospitals = ?, stats = ?, status_message = ?,
		 completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.SessionCompleted), stats.HospitalsCompleted, string(statsJSON), "Validation complete",
		now, now, id, string(model.SessionInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete session %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) FailSession(ctx context.Context, id string, msg string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, error = ?, status_message = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.SessionFailed), msg, "Validation failed", now, now, id, string(model.SessionInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail session %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) UpsertProviders(ctx context.Context, sessionID string, results []model.ReconciliationResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert providers")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO providers (`+providerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (hospital_name, address, doctor_name) DO UPDATE SET
			session_id = excluded.session_id,
			specialization = excluded.specialization,
			qualification = excluded.qualification,
			phone_number = excluded.phone_number,
			license_number = excluded.license_number,
			status = excluded.status,
			reason = excluded.reason,
			confidence_score = excluded.confidence_score,
			location = excluded.location,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert providers")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range results {
		location, err := encodeLocation(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), sessionID, r.HospitalName, r.Address, r.DoctorName,
			r.Specialization, r.Qualification, r.PhoneNumber, r.LicenseNumber,
			string(r.Status), r.Reason, r.ConfidenceScore, location, now, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert provider %s", r.DoctorName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert providers")
}

func (s *SQLiteStore) ListProviders(ctx context.Context, filter ProviderFilter) ([]model.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Hospital != "" {
		query += ` AND hospital_name = ?`
		args = append(args, filter.Hospital)
	}
	query += ` ORDER BY hospital_name, doctor_name`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close() //nolint:errcheck

	var providers []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		providers = append(providers, *p)
	}
	return providers, eris.Wrap(rows.Err(), "sqlite: list providers iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}
