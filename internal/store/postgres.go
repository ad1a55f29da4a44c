package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/db"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(10), int32(2)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS players (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	team_id    TEXT NOT NULL DEFAULT '',
	position   TEXT NOT NULL DEFAULT '',
	jersey     TEXT NOT NULL DEFAULT '',
	season     INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS depth_charts (
	player_id        TEXT NOT NULL,
	season           INTEGER NOT NULL,
	week             INTEGER NOT NULL,
	team_id          TEXT NOT NULL,
	position         TEXT NOT NULL,
	depth_chart_rank INTEGER NOT NULL,
	injury_status    TEXT NOT NULL,
	final_confidence DOUBLE PRECISION NOT NULL,
	record           JSONB NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (player_id, season, week)
);

CREATE TABLE IF NOT EXISTS diff_log (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	player_id   TEXT NOT NULL,
	season      INTEGER NOT NULL,
	week        INTEGER NOT NULL,
	field_name  TEXT NOT NULL,
	change_type TEXT NOT NULL,
	old_value   JSONB,
	new_value   JSONB,
	source      TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	reasoning   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS manual_overrides (
	id             TEXT PRIMARY KEY,
	player_id      TEXT NOT NULL,
	field_name     TEXT NOT NULL,
	override_value TEXT NOT NULL,
	season         INTEGER NOT NULL,
	week           INTEGER NOT NULL DEFAULT 0,
	effective_from TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ,
	is_active      BOOLEAN NOT NULL DEFAULT true,
	needs_approval BOOLEAN NOT NULL DEFAULT false,
	approved_by    TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	created_by     TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_executions (
	execution_id TEXT PRIMARY KEY,
	season       INTEGER NOT NULL,
	week         INTEGER NOT NULL,
	status       TEXT NOT NULL,
	config       JSONB NOT NULL,
	result       JSONB,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_depth_charts_week ON depth_charts(season, week);
CREATE INDEX IF NOT EXISTS idx_diff_log_player ON diff_log(player_id, season);
CREATE INDEX IF NOT EXISTS idx_overrides_active ON manual_overrides(season, is_active);
CREATE INDEX IF NOT EXISTS idx_overrides_player ON manual_overrides(player_id);
CREATE INDEX IF NOT EXISTS idx_executions_started ON ingestion_executions(started_at DESC);
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
	s.pool.Close()
	return nil
}

// --- Roster ---

func (s *PostgresStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, team_id, position, jersey, season FROM players ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list players")
	}
	defer rows.Close()

	var players []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.TeamID, &p.Position, &p.Jersey, &p.Season); err != nil {
			return nil, eris.Wrap(err, "postgres: scan player")
		}
		players = append(players, p)
	}
	return players, eris.Wrap(rows.Err(), "postgres: list players iterate")
}

func (s *PostgresStore) UpsertPlayers(ctx context.Context, players []model.Player) (int, error) {
	now := s.now().UTC()
	rows := make([][]any, len(players))
	for i, p := range players {
		rows[i] = []any{p.ID, p.Name, p.TeamID, p.Position, p.Jersey, p.Season, now}
	}
	res, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "players",
		Columns:      []string{"id", "name", "team_id", "position", "jersey", "season", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert players")
	}
	return int(res.Inserted + res.Updated), nil
}

// --- Resolved depth charts ---

var depthChartUpsert = db.UpsertConfig{
	Table: "depth_charts",
	Columns: []string{
		"player_id", "season", "week", "team_id", "position", "depth_chart_rank",
		"injury_status", "final_confidence", "record", "updated_at",
	},
	ConflictKeys: []string{"player_id", "season", "week"},
}

func (s *PostgresStore) ListResolvedRecords(ctx context.Context, season, week int) ([]model.NormalizedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM depth_charts WHERE season = $1 AND week = $2 ORDER BY player_id`,
		season, week,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list resolved records %dW%d", season, week)
	}
	defer rows.Close()

	var out []model.NormalizedRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolved record")
		}
		rec, err := decodeResolved(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.NormalizedRecord)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list resolved records iterate")
}

func (s *PostgresStore) GetResolvedRecord(ctx context.Context, playerID string, season, week int) (*model.ResolvedRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM depth_charts WHERE player_id = $1 AND season = $2 AND week = $3`,
		playerID, season, week,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get resolved record %s", playerID)
	}
	rec, err := decodeResolved(raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertResolvedRecords(ctx context.Context, recs []model.ResolvedRecord) (db.UpsertResult, error) {
	now := s.now().UTC()
	rows := make([][]any, len(recs))
	for i := range recs {
		r := &recs[i]
		raw, err := json.Marshal(r)
		if err != nil {
			return db.UpsertResult{}, eris.Wrapf(err, "postgres: marshal resolved record %s", r.PlayerID)
		}
		rows[i] = []any{
			r.PlayerID, r.Season, r.Week, r.TeamID, r.Position, r.DepthChartRank,
			string(r.InjuryStatus), r.FinalConfidence, raw, now,
		}
	}
	res, err := db.BulkUpsert(ctx, s.pool, depthChartUpsert, rows)
	return res, eris.Wrap(err, "postgres: upsert resolved records")
}

// --- Diff log ---

var diffLogColumns = []string{
	"player_id", "season", "week", "field_name", "change_type",
	"old_value", "new_value", "source", "confidence", "reasoning", "created_at",
}

func (s *PostgresStore) InsertDiffLog(ctx context.Context, entries []model.DiffLogEntry) (int, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		oldV, newV, err := encodeDiffValues(e)
		if err != nil {
			return 0, err
		}
		rows[i] = []any{
			e.PlayerID, e.Season, e.Week, e.FieldName, string(e.ChangeType),
			oldV, newV, string(e.Source), e.Confidence, e.Reasoning, e.Timestamp.UTC(),
		}
	}
	n, err := db.CopyFrom(ctx, s.pool, "diff_log", diffLogColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert diff log")
	}
	return int(n), nil
}

func (s *PostgresStore) ListDiffLog(ctx context.Context, playerID string, season int) ([]model.DiffLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT player_id, season, week, field_name, change_type, old_value, new_value, source, confidence, reasoning, created_at
		 FROM diff_log WHERE player_id = $1 AND season = $2 ORDER BY week, created_at`,
		playerID, season,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list diff log %s", playerID)
	}
	defer rows.Close()

	var out []model.DiffLogEntry
	for rows.Next() {
		var e model.DiffLogEntry
		var oldV, newV []byte
		if err := rows.Scan(&e.PlayerID, &e.Season, &e.Week, &e.FieldName, &e.ChangeType,
			&oldV, &newV, &e.Source, &e.Confidence, &e.Reasoning, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan diff log")
		}
		if err := decodeDiffValues(&e, oldV, newV); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list diff log iterate")
}

// --- Overrides ---

const overrideColumns = `id, player_id, field_name, override_value, season, week, effective_from, expires_at,
	is_active, needs_approval, approved_by, reason, created_by, created_at, updated_at`

func (s *PostgresStore) CreateOverride(ctx context.Context, o *model.ManualOverride) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO manual_overrides (`+overrideColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.PlayerID, o.FieldName, o.OverrideValue, o.Season, o.Week, o.EffectiveFrom, o.ExpiresAt,
		o.IsActive, o.NeedsApproval, o.ApprovedBy, o.Reason, o.CreatedBy, o.CreatedAt, o.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert override %s", o.ID)
}

func (s *PostgresStore) GetOverride(ctx context.Context, id string) (*model.ManualOverride, error) {
	o, err := scanOverride(s.pool.QueryRow(ctx,
		`SELECT `+overrideColumns+` FROM manual_overrides WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: override not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get override %s", id)
	}
	return o, nil
}

func (s *PostgresStore) UpdateOverride(ctx context.Context, o *model.ManualOverride) error {
	o.UpdatedAt = s.now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE manual_overrides SET override_value = $1, effective_from = $2, expires_at = $3,
		 is_active = $4, needs_approval = $5, approved_by = $6, reason = $7, updated_at = $8
		 WHERE id = $9`,
		o.OverrideValue, o.EffectiveFrom, o.ExpiresAt, o.IsActive, o.NeedsApproval,
		o.ApprovedBy, o.Reason, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update override %s", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: override not found: %s", o.ID)
	}
	return nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context, filter OverrideFilter) ([]model.ManualOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM manual_overrides WHERE true`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PlayerID != "" {
		query += ` AND player_id = ` + arg(filter.PlayerID)
	}
	if filter.FieldName != "" {
		query += ` AND field_name = ` + arg(filter.FieldName)
	}
	if filter.Season != 0 {
		query += ` AND season = ` + arg(filter.Season)
	}
	if filter.Week != nil {
		query += ` AND week = ` + arg(*filter.Week)
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	if filter.PendingOnly {
		query += ` AND needs_approval`
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(listLimit(filter.Limit))

	return s.queryOverrides(ctx, query, args...)
}

func (s *PostgresStore) ListActiveOverrides(ctx context.Context, season int) ([]model.ManualOverride, error) {
	return s.queryOverrides(ctx,
		`SELECT `+overrideColumns+` FROM manual_overrides
		 WHERE is_active AND (season = $1 OR season = 0) ORDER BY created_at`,
		season,
	)
}

func (s *PostgresStore) queryOverrides(ctx context.Context, query string, args ...any) ([]model.ManualOverride, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list overrides")
	}
	defer rows.Close()

	var out []model.ManualOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list overrides iterate")
}

// --- Executions ---

func (s *PostgresStore) LogExecutionStart(ctx context.Context, rec model.ExecutionRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal execution config")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_executions (execution_id, season, week, status, config, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ExecutionID, rec.Season, rec.Week, string(model.ExecutionRunning), cfg, rec.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: log execution start %s", rec.ExecutionID)
}

func (s *PostgresStore) LogExecutionCompletion(ctx context.Context, executionID string, result *model.IngestionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal execution result")
	}
	completed := s.now().UTC()
	if result != nil && !result.CompletedAt.IsZero() {
		completed = result.CompletedAt.UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_executions SET status = $1, result = $2, completed_at = $3 WHERE execution_id = $4`,
		string(executionStatus(result)), raw, completed, executionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: log execution completion %s", executionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("execution not found: %s", executionID)
	}
	return nil
}

func (s *PostgresStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error) {
	query := `SELECT execution_id, season, week, status, config, result, started_at, completed_at
		FROM ingestion_executions WHERE true`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Season != 0 {
		query += ` AND season = ` + arg(filter.Season)
	}
	if filter.Week != 0 {
		query += ` AND week = ` + arg(filter.Week)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ` + arg(listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list executions")
	}
	defer rows.Close()

	var out []model.ExecutionRecord
	for rows.Next() {
		var rec model.ExecutionRecord
		var cfg, result []byte
		if err := rows.Scan(&rec.ExecutionID, &rec.Season, &rec.Week, &rec.Status,
			&cfg, &result, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan execution")
		}
		if err := decodeExecution(&rec, cfg, result); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list executions iterate")
}
