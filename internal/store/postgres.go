package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/valuation-cli/internal/db"
	"github.com/sells-group/valuation-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_session":   `INSERT INTO sessions (id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (id) DO UPDATE SET status = $3, error = $4, failed_stage = $5, stats = $6, confidence = $7, updated_at = $9`,
	"get_session":    `SELECT id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at FROM sessions WHERE id = $1`,
	"get_profile":    `SELECT profile FROM facility_profiles WHERE deal_id = $1 AND facility_id = $2`,
	"list_profiles":  `SELECT profile FROM facility_profiles WHERE deal_id = $1 ORDER BY facility_id`,
	"list_conflicts": `SELECT detail FROM conflicts WHERE session_id = $1 ORDER BY detected_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	deal_id      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'created',
	error        TEXT,
	failed_stage TEXT,
	stats        JSONB NOT NULL DEFAULT '{}',
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS facility_profiles (
	deal_id         TEXT NOT NULL,
	facility_id     TEXT NOT NULL,
	name            TEXT NOT NULL,
	profile         JSONB NOT NULL,
	data_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (deal_id, facility_id)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	type        TEXT NOT NULL,
	severity    TEXT NOT NULL,
	field_path  TEXT NOT NULL,
	status      TEXT NOT NULL,
	detail      JSONB NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS clarifications (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	priority   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	detail     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_deal ON sessions(deal_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_session ON conflicts(session_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_session ON clarifications(session_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_status ON clarifications(session_id, status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
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

func (s *PostgresStore) SaveSession(ctx context.Context, info model.SessionInfo) error {
	statsJSON, err := json.Marshal(info.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET status = $3, error = $4, failed_stage = $5, stats = $6, confidence = $7, updated_at = $9`,
		info.ID, info.DealID, string(info.Status), info.Error, info.FailedStage,
		statsJSON, info.Confidence, info.CreatedAt, info.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save session %s", info.ID)
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.SessionInfo, error) {
	var info model.SessionInfo
	var statsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at FROM sessions WHERE id = $1`,
		sessionID,
	).Scan(&info.ID, &info.DealID, &info.Status, &info.Error, &info.FailedStage,
		&statsJSON, &info.Confidence, &info.CreatedAt, &info.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", sessionID)
	}

	if err := json.Unmarshal(statsJSON, &info.Stats); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal stats")
	}
	return &info, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionInfo, error) {
	query := `SELECT id, deal_id, status, error, failed_stage, stats, confidence, created_at, updated_at FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.DealID != "" {
		query += fmt.Sprintf(` AND deal_id = $%d`, argIdx)
		args = append(args, filter.DealID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.SessionInfo
	for rows.Next() {
		var info model.SessionInfo
		var statsJSON []byte
		if err := rows.Scan(&info.ID, &info.DealID, &info.Status, &info.Error, &info.FailedStage,
			&statsJSON, &info.Confidence, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		if err := json.Unmarshal(statsJSON, &info.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
		sessions = append(sessions, info)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) DeleteExpiredSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM clarifications WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < $1)`,
		cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired clarifications")
	}
	_ = tag

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conflicts WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < $1)`,
		cutoff,
	); err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired conflicts")
	}

	tag, err = s.pool.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired sessions")
	}
	return int(tag.RowsAffected()), nil
}

// UpsertProfile writes the profile unless a stored profile for the same
// deal and facility has strictly higher data confidence.
func (s *PostgresStore) UpsertProfile(ctx context.Context, dealID string, profile *model.FacilityProfile) (bool, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal profile")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO facility_profiles (deal_id, facility_id, name, profile, data_confidence, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (deal_id, facility_id) DO UPDATE
		   SET name = $3, profile = $4, data_confidence = $5, updated_at = $6
		   WHERE EXCLUDED.data_confidence >= facility_profiles.data_confidence`,
		dealID, profile.ID, profile.Name, profileJSON, profile.DataConfidence, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert profile %s", profile.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, dealID, facilityID string) (*model.FacilityProfile, error) {
	var profileJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT profile FROM facility_profiles WHERE deal_id = $1 AND facility_id = $2`,
		dealID, facilityID,
	).Scan(&profileJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get profile %s/%s", dealID, facilityID)
	}

	var profile model.FacilityProfile
	if err := json.Unmarshal(profileJSON, &profile); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &profile, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, dealID string) ([]model.FacilityProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT profile FROM facility_profiles WHERE deal_id = $1 ORDER BY facility_id`,
		dealID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var profiles []model.FacilityProfile
	for rows.Next() {
		var profileJSON []byte
		if err := rows.Scan(&profileJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		var profile model.FacilityProfile
		if err := json.Unmarshal(profileJSON, &profile); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal profile")
		}
		profiles = append(profiles, profile)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

// SaveConflicts bulk-upserts the session's conflicts. Re-validation after
// clarification answers rewrites the same rows with updated statuses.
func (s *PostgresStore) SaveConflicts(ctx context.Context, sessionID string, conflicts []model.DataConflict) error {
	rows := make([][]any, 0, len(conflicts))
	for _, c := range conflicts {
		detailJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal conflict")
		}
		rows = append(rows, []any{
			c.ID, sessionID, string(c.Type), string(c.Severity), c.FieldPath,
			string(c.Status), detailJSON, c.DetectedAt,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "conflicts",
		Columns:      []string{"id", "session_id", "type", "severity", "field_path", "status", "detail", "detected_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"status", "detail"},
	}, rows)
	return eris.Wrapf(err, "postgres: save conflicts for %s", sessionID)
}

func (s *PostgresStore) ListConflicts(ctx context.Context, sessionID string) ([]model.DataConflict, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT detail FROM conflicts WHERE session_id = $1 ORDER BY detected_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conflicts")
	}
	defer rows.Close()

	var conflicts []model.DataConflict
	for rows.Next() {
		var detailJSON []byte
		if err := rows.Scan(&detailJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan conflict")
		}
		var c model.DataConflict
		if err := json.Unmarshal(detailJSON, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal conflict")
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, eris.Wrap(rows.Err(), "postgres: list conflicts iterate")
}

func (s *PostgresStore) SaveClarifications(ctx context.Context, sessionID string, clarifications []model.Clarification) error {
	rows := make([][]any, 0, len(clarifications))
	for _, c := range clarifications {
		detailJSON, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal clarification")
		}
		rows = append(rows, []any{
			c.ID, sessionID, c.Priority, string(c.Status), detailJSON, c.CreatedAt,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "clarifications",
		Columns:      []string{"id", "session_id", "priority", "status", "detail", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"status", "detail"},
	}, rows)
	return eris.Wrapf(err, "postgres: save clarifications for %s", sessionID)
}

func (s *PostgresStore) ListClarifications(ctx context.Context, sessionID string) ([]model.Clarification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT detail FROM clarifications WHERE session_id = $1 ORDER BY priority DESC, created_at`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clarifications")
	}
	defer rows.Close()

	var clarifications []model.Clarification
	for rows.Next() {
		var detailJSON []byte
		if err := rows.Scan(&detailJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan clarification")
		}
		var c model.Clarification
		if err := json.Unmarshal(detailJSON, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal clarification")
		}
		clarifications = append(clarifications, c)
	}
	return clarifications, eris.Wrap(rows.Err(), "postgres: list clarifications iterate")
}

func (s *PostgresStore) UpdateClarification(ctx context.Context, sessionID string, c model.Clarification) error {
	detailJSON, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal clarification")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE clarifications SET status = $1, detail = $2 WHERE id = $3 AND session_id = $4`,
		string(c.Status), detailJSON, c.ID, sessionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update clarification %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("clarification not found: %s", c.ID)
	}
	return nil
}
