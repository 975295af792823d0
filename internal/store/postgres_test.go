package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

func init() {
	// Replace global logger with a no-op to avoid nil pointer panics in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sessions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	err := s.Migrate(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveSession(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	info := model.SessionInfo{
		ID:        "sess-1",
		DealID:    "deal-9",
		Status:    model.SessionExtracting,
		Stats:     model.ProcessingStats{DocumentsProcessed: 2},
		CreatedAt: now,
		UpdatedAt: now,
	}
	statsJSON, err := json.Marshal(info.Stats)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("sess-1", "deal-9", "extracting", "", "", statsJSON, float64(0), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.SaveSession(context.Background(), info)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	statsJSON, err := json.Marshal(model.ProcessingStats{FinancialPeriods: 12, TokensUsed: 40000})
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"id", "deal_id", "status", "error", "failed_stage", "stats", "confidence", "created_at", "updated_at"}).
		AddRow("sess-1", "deal-9", "complete", "", "", statsJSON, 84.5, now, now)
	mock.ExpectQuery("SELECT id, deal_id, status").
		WithArgs("sess-1").
		WillReturnRows(rows)

	info, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, model.SessionComplete, info.Status)
	assert.Equal(t, 12, info.Stats.FinancialPeriods)
	assert.Equal(t, 84.5, info.Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, deal_id, status").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	info, err := s.GetSession(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, info)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListSessions_StatusFilter(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	statsJSON, err := json.Marshal(model.ProcessingStats{})
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"id", "deal_id", "status", "error", "failed_stage", "stats", "confidence", "created_at", "updated_at"}).
		AddRow("sess-2", "deal-9", "failed", "reader timeout", "extracting", statsJSON, float64(0), now, now)
	mock.ExpectQuery("SELECT id, deal_id, status").
		WithArgs("failed", 100).
		WillReturnRows(rows)

	sessions, err := s.ListSessions(context.Background(), SessionFilter{Status: model.SessionFailed})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "reader timeout", sessions[0].Error)
	assert.Equal(t, "extracting", sessions[0].FailedStage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertProfile_Written(t *testing.T) {
	s, mock := newMockStore(t)

	profile := &model.FacilityProfile{ID: "fac-1", Name: "Maple Grove SNF", DataConfidence: 72}
	profileJSON, err := json.Marshal(profile)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO facility_profiles").
		WithArgs("deal-9", "fac-1", "Maple Grove SNF", profileJSON, float64(72), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	written, err := s.UpsertProfile(context.Background(), "deal-9", profile)
	require.NoError(t, err)
	assert.True(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertProfile_BlockedByConfidence(t *testing.T) {
	s, mock := newMockStore(t)

	profile := &model.FacilityProfile{ID: "fac-1", Name: "Maple Grove SNF", DataConfidence: 40}
	profileJSON, err := json.Marshal(profile)
	require.NoError(t, err)

	// Conditional DO UPDATE touches no rows when stored confidence is higher.
	mock.ExpectExec("INSERT INTO facility_profiles").
		WithArgs("deal-9", "fac-1", "Maple Grove SNF", profileJSON, float64(40), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	written, err := s.UpsertProfile(context.Background(), "deal-9", profile)
	require.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetProfile(t *testing.T) {
	s, mock := newMockStore(t)

	stored := model.FacilityProfile{ID: "fac-1", Name: "Maple Grove SNF", LicensedBeds: 120, DataConfidence: 72}
	profileJSON, err := json.Marshal(stored)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"profile"}).AddRow(profileJSON)
	mock.ExpectQuery("SELECT profile FROM facility_profiles").
		WithArgs("deal-9", "fac-1").
		WillReturnRows(rows)

	profile, err := s.GetProfile(context.Background(), "deal-9", "fac-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 120, profile.LicensedBeds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetProfile_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT profile FROM facility_profiles").
		WithArgs("deal-9", "nope").
		WillReturnError(pgx.ErrNoRows)

	profile, err := s.GetProfile(context.Background(), "deal-9", "nope")
	assert.NoError(t, err)
	assert.Nil(t, profile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveConflicts(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	conflicts := []model.DataConflict{
		{
			ID:         "conf-1",
			Type:       model.ConflictCrossDocument,
			Severity:   model.SeverityMedium,
			FieldPath:  "revenue.total",
			Status:     model.ConflictDetected,
			DetectedAt: now,
		},
		{
			ID:         "conf-2",
			Type:       model.ConflictInternalConsistency,
			Severity:   model.SeverityLow,
			FieldPath:  "expenses.labor.total",
			Status:     model.ConflictAutoResolved,
			DetectedAt: now,
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_conflicts"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_conflicts"},
		[]string{"id", "session_id", "type", "severity", "field_path", "status", "detail", "detected_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "conflicts"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.SaveConflicts(context.Background(), "sess-1", conflicts)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveClarifications(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	clarifications := []model.Clarification{
		{ID: "clar-1", Question: "Which revenue total is correct?", Priority: 10, Status: model.ClarificationPending, CreatedAt: now},
		{ID: "clar-2", Question: "Confirm bed count", Priority: 5, Status: model.ClarificationPending, CreatedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_clarifications"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_clarifications"},
		[]string{"id", "session_id", "priority", "status", "detail", "created_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "clarifications"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err := s.SaveClarifications(context.Background(), "sess-1", clarifications)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListClarifications(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	high := model.Clarification{ID: "clar-1", Question: "Which census total is correct?", Priority: 9, Status: model.ClarificationPending, CreatedAt: now}
	low := model.Clarification{ID: "clar-2", Question: "Confirm bed count", Priority: 3, Status: model.ClarificationPending, CreatedAt: now}
	highJSON, err := json.Marshal(high)
	require.NoError(t, err)
	lowJSON, err := json.Marshal(low)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"detail"}).AddRow(highJSON).AddRow(lowJSON)
	mock.ExpectQuery("SELECT detail FROM clarifications").
		WithArgs("sess-1").
		WillReturnRows(rows)

	clarifications, err := s.ListClarifications(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, clarifications, 2)
	assert.Equal(t, 9, clarifications[0].Priority)
	assert.True(t, clarifications[0].Blocking())
	assert.False(t, clarifications[1].Blocking())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateClarification_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	c := model.Clarification{ID: "clar-missing", Status: model.ClarificationResolved}
	detailJSON, err := json.Marshal(c)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE clarifications").
		WithArgs("resolved", detailJSON, "clar-missing", "sess-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.UpdateClarification(context.Background(), "sess-1", c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clarification not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteExpiredSessions(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM clarifications").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM conflicts").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM sessions").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted, err := s.DeleteExpiredSessions(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveSession_ExecError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection refused"))

	err := s.SaveSession(context.Background(), model.SessionInfo{ID: "sess-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save session")
	assert.NoError(t, mock.ExpectationsWereMet())
}
