package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/valuation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	deal_id      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'created',
	error        TEXT,
	failed_stage TEXT,
	stats        TEXT NOT NULL DEFAULT '{}',
	confidence   REAL NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS facility_profiles (
	deal_id         TEXT NOT NULL,
	facility_id     TEXT NOT NULL,
	name            TEXT NOT NULL,
	profile         TEXT NOT NULL,
	data_confidence REAL NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL,
	PRIMARY KEY (deal_id, facility_id)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	type        TEXT NOT NULL,
	severity    TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      TEXT NOT NULL,
	detected_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS clarifications (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	priority   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_deal ON sessions(deal_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_session ON conflicts(session_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_session ON clarifications(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSession(ctx context.Context, info model.SessionInfo) error {
	statsJSON, err := json.Marshal(info.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, error = excluded.error,
		   failed_stage = excluded.failed_stage, stats = excluded.stats,
		   confidence = excluded.confidence, updated_at = excluded.updated_at`,
		info.ID, info.DealID, string(info.Status), info.Error, info.FailedStage,
		string(statsJSON), info.Confidence, info.CreatedAt, info.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", info.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*model.SessionInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	)

	var info model.SessionInfo
	var statsJSON string
	var errMsg, failedStage sql.NullString
	err := row.Scan(&info.ID, &info.DealID, &info.Status, &errMsg, &failedStage,
		&statsJSON, &info.Confidence, &info.CreatedAt, &info.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", sessionID)
	}
	info.Error = errMsg.String
	info.FailedStage = failedStage.String

	if err := json.Unmarshal([]byte(statsJSON), &info.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &info, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionInfo, error) {
	query := `SELECT id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.DealID != "" {
		query += ` AND deal_id = ?`
		args = append(args, filter.DealID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.SessionInfo
	for rows.Next() {
		var info model.SessionInfo
		var statsJSON string
		var errMsg, failedStage sql.NullString
		if err := rows.Scan(&info.ID, &info.DealID, &info.Status, &errMsg, &failedStage,
			&statsJSON, &info.Confidence, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		info.Error = errMsg.String
		info.FailedStage = failedStage.String
		if err := json.Unmarshal([]byte(statsJSON), &info.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
		sessions = append(sessions, info)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM clarifications WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`,
		cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired clarifications")
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conflicts WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`,
		cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired conflicts")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired sessions")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, dealID string, profile *model.FacilityProfile) (bool, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal profile")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO facility_profiles (deal_id, facility_id, name, profile, data_confidence, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(deal_id, facility_id) DO UPDATE
		   SET name = excluded.name, profile = excluded.profile,
		       data_confidence = excluded.data_confidence, updated_at = excluded.updated_at
		   WHERE excluded.data_confidence >= facility_profiles.data_confidence`,
		dealID, profile.ID, profile.Name, string(profileJSON), profile.DataConfidence, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert profile %s", profile.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, dealID, facilityID string) (*model.FacilityProfile, error) {
	var profileJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile FROM facility_profiles WHERE deal_id = ? AND facility_id = ?`,
		dealID, facilityID,
	).Scan(&profileJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s/%s", dealID, facilityID)
	}

	var profile model.FacilityProfile
	if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &profile, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, dealID string) ([]model.FacilityProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile FROM facility_profiles WHERE deal_id = ? ORDER BY facility_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()

	var profiles []model.FacilityProfile
	for rows.Next() {
		var profileJSON string
		if err := rows.Scan(&profileJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		var profile model.FacilityProfile
		if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile")
		}
		profiles = append(profiles, profile)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) SaveConflicts(ctx context.Context, sessionID string, conflicts []model.DataConflict) error {
	for _, c := range conflicts {
		detailJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal conflict")
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO conflicts (id, session_id, type, severity, field_path, status, detail, detected_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET status = excluded.status, detail = excluded.detail`,
			c.ID, sessionID, string(c.Type), string(c.Severity), c.FieldPath,
			string(c.Status), string(detailJSON), c.DetectedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save conflict %s", c.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, sessionID string) ([]model.DataConflict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT detail FROM conflicts WHERE session_id = ? ORDER BY detected_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conflicts")
	}
	defer rows.Close()

	var conflicts []model.DataConflict
	for rows.Next() {
		var detailJSON string
		if err := rows.Scan(&detailJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan conflict")
		}
		var c model.DataConflict
		if err := json.Unmarshal([]byte(detailJSON), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal conflict")
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, eris.Wrap(rows.Err(), "sqlite: list conflicts iterate")
}

func (s *SQLiteStore) SaveClarifications(ctx context.Context, sessionID string, clarifications []model.Clarification) error {
	for _, c := range clarifications {
		detailJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal clarification")
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO clarifications (id, session_id, priority, status, detail, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET status = excluded.status, detail = excluded.detail`,
			c.ID, sessionID, c.Priority, string(c.Status), string(detailJSON), c.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save clarification %s", c.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListClarifications(ctx context.Context, sessionID string) ([]model.Clarification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT detail FROM clarifications WHERE session_id = ? ORDER BY priority DESC, created_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clarifications")
	}
	defer rows.Close()

	var clarifications []model.Clarification
	for rows.Next() {
		var detailJSON string
		if err := rows.Scan(&detailJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan clarification")
		}
		var c model.Clarification
		if err := json.Unmarshal([]byte(detailJSON), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal clarification")
		}
		clarifications = append(clarifications, c)
	}
	return clarifications, eris.Wrap(rows.Err(), "sqlite: list clarifications iterate")
}

func (s *SQLiteStore) UpdateClarification(ctx context.Context, sessionID string, c model.Clarification) error {
	detailJSON, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal clarification")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE clarifications SET status = ?, detail = ? WHERE id = ? AND session_id = ?`,
		string(c.Status), string(detailJSON), c.ID, sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update clarification %s", c.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("clarification not found: %s", c.ID)
	}
	return nil
}
