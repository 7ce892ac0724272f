package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/roster-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var sessionCols = []string{
	"id", "roster_path", "output_path", "status", "total_hospitals", "completed_hospitals",
	"current_hospital", "status_message", "stats", "error", "started_at", "completed_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sessions`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), "roster.csv", "out.csv", "in_progress", 0, "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess := &model.Session{RosterPath: "roster.csv", OutputPath: "out.csv"}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	assert.NotEmpty(t, sess.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(time.Hour)
	mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
			"sess-1", "roster.csv", "out.csv", model.SessionCompleted, 2, 2,
			"City Care", "Validation complete",
			[]byte(`{"total_processed":3,"verified":1,"updated":1,"needs_review":1,"hospitals_completed":2}`),
			"", started, &completed,
		))

	got, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, got.Status)
	assert.Equal(t, 3, got.Stats.TotalProcessed)
	assert.Equal(t, 2, got.Stats.HospitalsCompleted)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completed, *got.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSessionProgress(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET total_hospitals`).
		WithArgs(4, 1, "Apollo", "Finding address for Apollo...", pgxmock.AnyArg(), pgxmock.AnyArg(), "sess-1", "in_progress").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateSessionProgress(context.Background(), "sess-1", model.Progress{
		HospitalIndex:  2,
		TotalHospitals: 4,
		HospitalName:   "Apollo",
		Status:         model.ProgressInProgress,
		Message:        "Finding address for Apollo...",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteSession_Terminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET status = \$1, completed_hospitals`).
		WithArgs("completed", 3, pgxmock.AnyArg(), "Validation complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "sess-1", "in_progress").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteSession(context.Background(), "sess-1", model.RunStatistics{HospitalsCompleted: 3})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE sessions SET status = \$1, error = \$2`).
		WithArgs("failed", "roster: empty file", "Validation failed", pgxmock.AnyArg(), pgxmock.AnyArg(), "sess-1", "in_progress").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailSession(context.Background(), "sess-1", "roster: empty file"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProviders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_providers"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_providers"}, providerUpsert.Columns).
		WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("hospital_name", "address", "doctor_name"\) DO UPDATE SET "session_id" = EXCLUDED."session_id"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.UpsertProviders(context.Background(), "sess-1", []model.ReconciliationResult{
		result("Apollo", "Dr. A", model.StatusVerified, "All details match website data"),
		result("Apollo", "Dr. B", model.StatusUpdated, "Updated: phone [1 → 2]"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProviders_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_providers"}, providerUpsert.Columns).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	err := s.UpsertProviders(context.Background(), "sess-1", []model.ReconciliationResult{
		result("Apollo", "Dr. A", model.StatusVerified, "All details match website data"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert providers")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProviders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "session_id", "hospital_name", "address", "doctor_name", "specialization",
		"qualification", "phone_number", "license_number", "status", "reason",
		"confidence_score", "location", "created_at", "updated_at",
	}
	location, err := ewkb.Marshal(model.NewPoint(13.6288, 79.4192), ewkb.NDR)
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT .* FROM providers WHERE 1=1 AND status = \$1 AND hospital_name = \$2 ORDER BY hospital_name, doctor_name LIMIT \$3`).
		WithArgs("human verification needed", "Apollo", 100).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"p1", "sess-1", "Apollo", "Tirupati 517501", "Dr. B", "", "", "", "",
			model.StatusNeedsReview, "Doctor 'Dr. B' not found on hospital website", 62.5, location, now, now,
		).AddRow(
			"p2", "sess-1", "Apollo", "Tirupati 517501", "Dr. C", "", "", "", "",
			model.StatusNeedsReview, "Doctor 'Dr. C' not found on hospital website", 62.5, []byte(nil), now, now,
		))

	got, err := s.ListProviders(context.Background(), ProviderFilter{
		Status:   model.StatusNeedsReview,
		Hospital: "Apollo",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Dr. B", got[0].DoctorName)
	assert.Equal(t, model.StatusNeedsReview, got[0].Status)
	assert.InDelta(t, 62.5, got[0].ConfidenceScore, 0.001)
	require.NotNil(t, got[0].Latitude)
	assert.InDelta(t, 13.6288, *got[0].Latitude, 1e-9)
	assert.InDelta(t, 79.4192, *got[0].Longitude, 1e-9)
	assert.Nil(t, got[1].Latitude)
	assert.NoError(t, mock.ExpectationsWereMet())
}
