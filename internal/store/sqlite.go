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

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/db"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs and tests.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS players (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	team_id    TEXT NOT NULL DEFAULT '',
	position   TEXT NOT NULL DEFAULT '',
	jersey     TEXT NOT NULL DEFAULT '',
	season     INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS depth_charts (
	player_id        TEXT NOT NULL,
	season           INTEGER NOT NULL,
	week             INTEGER NOT NULL,
	team_id          TEXT NOT NULL,
	position         TEXT NOT NULL,
	depth_chart_rank INTEGER NOT NULL,
	injury_status    TEXT NOT NULL,
	final_confidence REAL NOT NULL,
	record           TEXT NOT NULL,
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (player_id, season, week)
);

CREATE TABLE IF NOT EXISTS diff_log (
	id          TEXT PRIMARY KEY,
	player_id   TEXT NOT NULL,
	season      INTEGER NOT NULL,
	week        INTEGER NOT NULL,
	field_name  TEXT NOT NULL,
	change_type TEXT NOT NULL,
	old_value   TEXT,
	new_value   TEXT,
	source      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	reasoning   TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS manual_overrides (
	id             TEXT PRIMARY KEY,
	player_id      TEXT NOT NULL,
	field_name     TEXT NOT NULL,
	override_value TEXT NOT NULL,
	season         INTEGER NOT NULL,
	week           INTEGER NOT NULL DEFAULT 0,
	effective_from DATETIME NOT NULL,
	expires_at     DATETIME,
	is_active      BOOLEAN NOT NULL DEFAULT 1,
	needs_approval BOOLEAN NOT NULL DEFAULT 0,
	approved_by    TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	created_by     TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_executions (
	execution_id TEXT PRIMARY KEY,
	season       INTEGER NOT NULL,
	week         INTEGER NOT NULL,
	status       TEXT NOT NULL,
	config       TEXT NOT NULL,
	result       TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_depth_charts_week ON depth_charts(season, week);
CREATE INDEX IF NOT EXISTS idx_diff_log_player ON diff_log(player_id, season);
CREATE INDEX IF NOT EXISTS idx_overrides_active ON manual_overrides(season, is_active);
CREATE INDEX IF NOT EXISTS idx_executions_started ON ingestion_executions(started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Roster ---

func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, team_id, position, jersey, season FROM players ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list players")
	}
	defer rows.Close()

	var players []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.TeamID, &p.Position, &p.Jersey, &p.Season); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan player")
		}
		players = append(players, p)
	}
	return players, eris.Wrap(rows.Err(), "sqlite: list players iterate")
}

func (s *SQLiteStore) UpsertPlayers(ctx context.Context, players []model.Player) (int, error) {
	if len(players) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range players {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO players (id, name, team_id, position, jersey, season, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (id) DO UPDATE SET name = excluded.name, team_id = excluded.team_id,
				 position = excluded.position, jersey = excluded.jersey, season = excluded.season,
				 updated_at = excluded.updated_at`,
				p.ID, p.Name, p.TeamID, p.Position, p.Jersey, p.Season, now,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert player %s", p.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(players), nil
}

// --- Resolved depth charts ---

func (s *SQLiteStore) ListResolvedRecords(ctx context.Context, season, week int) ([]model.NormalizedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM depth_charts WHERE season = ? AND week = ? ORDER BY player_id`,
		season, week,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list resolved records %dW%d", season, week)
	}
	defer rows.Close()

	var out []model.NormalizedRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolved record")
		}
		rec, err := decodeResolved([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec.NormalizedRecord)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list resolved records iterate")
}

func (s *SQLiteStore) GetResolvedRecord(ctx context.Context, playerID string, season, week int) (*model.ResolvedRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM depth_charts WHERE player_id = ? AND season = ? AND week = ?`,
		playerID, season, week,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get resolved record %s", playerID)
	}
	rec, err := decodeResolved([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertResolvedRecords(ctx context.Context, recs []model.ResolvedRecord) (db.UpsertResult, error) {
	var res db.UpsertResult
	if len(recs) == 0 {
		return res, nil
	}
	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range recs {
			r := &recs[i]
			raw, err := json.Marshal(r)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal resolved record %s", r.PlayerID)
			}

			var exists int
			err = tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM depth_charts WHERE player_id = ? AND season = ? AND week = ?`,
				r.PlayerID, r.Season, r.Week,
			).Scan(&exists)
			if err != nil {
				return eris.Wrapf(err, "sqlite: check resolved record %s", r.PlayerID)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO depth_charts (player_id, season, week, team_id, position, depth_chart_rank,
				 injury_status, final_confidence, record, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (player_id, season, week) DO UPDATE SET team_id = excluded.team_id,
				 position = excluded.position, depth_chart_rank = excluded.depth_chart_rank,
				 injury_status = excluded.injury_status, final_confidence = excluded.final_confidence,
				 record = excluded.record, updated_at = excluded.updated_at`,
				r.PlayerID, r.Season, r.Week, r.TeamID, r.Position, r.DepthChartRank,
				string(r.InjuryStatus), r.FinalConfidence, string(raw), now,
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert resolved record %s", r.PlayerID)
			}
			if exists > 0 {
				res.Updated++
			} else {
				res.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return db.UpsertResult{}, err
	}
	return res, nil
}

// --- Diff log ---

func (s *SQLiteStore) InsertDiffLog(ctx context.Context, entries []model.DiffLogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			oldV, newV, err := encodeDiffValues(e)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO diff_log (id, player_id, season, week, field_name, change_type, old_value,
				 new_value, source, confidence, reasoning, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), e.PlayerID, e.Season, e.Week, e.FieldName, string(e.ChangeType),
				nullableJSON(oldV), nullableJSON(newV), string(e.Source), e.Confidence, e.Reasoning,
				e.Timestamp.UTC(),
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert diff log for %s", e.PlayerID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *SQLiteStore) ListDiffLog(ctx context.Context, playerID string, season int) ([]model.DiffLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, season, week, field_name, change_type, old_value, new_value, source,
		 confidence, reasoning, created_at
		 FROM diff_log WHERE player_id = ? AND season = ? ORDER BY week, created_at`,
		playerID, season,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list diff log %s", playerID)
	}
	defer rows.Close()

	var out []model.DiffLogEntry
	for rows.Next() {
		var e model.DiffLogEntry
		var oldV, newV sql.NullString
		if err := rows.Scan(&e.PlayerID, &e.Season, &e.Week, &e.FieldName, &e.ChangeType,
			&oldV, &newV, &e.Source, &e.Confidence, &e.Reasoning, &e.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan diff log")
		}
		if err := decodeDiffValues(&e, []byte(oldV.String), []byte(newV.String)); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list diff log iterate")
}

// --- Overrides ---

func (s *SQLiteStore) CreateOverride(ctx context.Context, o *model.ManualOverride) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_overrides (`+overrideColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PlayerID, o.FieldName, o.OverrideValue, o.Season, o.Week, o.EffectiveFrom.UTC(),
		nullableTime(o.ExpiresAt), o.IsActive, o.NeedsApproval, o.ApprovedBy, o.Reason, o.CreatedBy,
		o.CreatedAt.UTC(), o.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert override %s", o.ID)
}

func (s *SQLiteStore) GetOverride(ctx context.Context, id string) (*model.ManualOverride, error) {
	o, err := scanOverride(s.db.QueryRowContext(ctx,
		`SELECT `+overrideColumns+` FROM manual_overrides WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("override not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get override %s", id)
	}
	return o, nil
}

func (s *SQLiteStore) UpdateOverride(ctx context.Context, o *model.ManualOverride) error {
	o.UpdatedAt = s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE manual_overrides SET override_value = ?, effective_from = ?, expires_at = ?,
		 is_active = ?, needs_approval = ?, approved_by = ?, reason = ?, updated_at = ?
		 WHERE id = ?`,
		o.OverrideValue, o.EffectiveFrom.UTC(), nullableTime(o.ExpiresAt), o.IsActive, o.NeedsApproval,
		o.ApprovedBy, o.Reason, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update override %s", o.ID)
	}
	return checkRowsAffected(res, "override", o.ID)
}

func (s *SQLiteStore) ListOverrides(ctx context.Context, filter OverrideFilter) ([]model.ManualOverride, error) {
	query := `SELECT ` + overrideColumns + ` FROM manual_overrides WHERE 1=1`
	var args []any

	if filter.PlayerID != "" {
		query += ` AND player_id = ?`
		args = append(args, filter.PlayerID)
	}
	if filter.FieldName != "" {
		query += ` AND field_name = ?`
		args = append(args, filter.FieldName)
	}
	if filter.Season != 0 {
		query += ` AND season = ?`
		args = append(args, filter.Season)
	}
	if filter.Week != nil {
		query += ` AND week = ?`
		args = append(args, *filter.Week)
	}
	if filter.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if filter.PendingOnly {
		query += ` AND needs_approval = 1`
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	return s.queryOverrides(ctx, query, args...)
}

func (s *SQLiteStore) ListActiveOverrides(ctx context.Context, season int) ([]model.ManualOverride, error) {
	return s.queryOverrides(ctx,
		`SELECT `+overrideColumns+` FROM manual_overrides
		 WHERE is_active = 1 AND (season = ? OR season = 0) ORDER BY created_at`,
		season,
	)
}

func (s *SQLiteStore) queryOverrides(ctx context.Context, query string, args ...any) ([]model.ManualOverride, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list overrides")
	}
	defer rows.Close()

	var out []model.ManualOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list overrides iterate")
}

// --- Executions ---

func (s *SQLiteStore) LogExecutionStart(ctx context.Context, rec model.ExecutionRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal execution config")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_executions (execution_id, season, week, status, config, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.Season, rec.Week, string(model.ExecutionRunning), string(cfg), rec.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: log execution start %s", rec.ExecutionID)
}

func (s *SQLiteStore) LogExecutionCompletion(ctx context.Context, executionID string, result *model.IngestionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal execution result")
	}
	completed := s.now().UTC()
	if result != nil && !result.CompletedAt.IsZero() {
		completed = result.CompletedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_executions SET status = ?, result = ?, completed_at = ? WHERE execution_id = ?`,
		string(executionStatus(result)), string(raw), completed, executionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: log execution completion %s", executionID)
	}
	return checkRowsAffected(res, "execution", executionID)
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]model.ExecutionRecord, error) {
	query := `SELECT execution_id, season, week, status, config, result, started_at, completed_at
		FROM ingestion_executions WHERE 1=1`
	var args []any
	if filter.Season != 0 {
		query += ` AND season = ?`
		args = append(args, filter.Season)
	}
	if filter.Week != 0 {
		query += ` AND week = ?`
		args = append(args, filter.Week)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list executions")
	}
	defer rows.Close()

	var out []model.ExecutionRecord
	for rows.Next() {
		var rec model.ExecutionRecord
		var cfg string
		var result sql.NullString
		var completed sql.NullTime
		if err := rows.Scan(&rec.ExecutionID, &rec.Season, &rec.Week, &rec.Status,
			&cfg, &result, &rec.StartedAt, &completed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan execution")
		}
		if completed.Valid {
			t := completed.Time
			rec.CompletedAt = &t
		}
		if err := decodeExecution(&rec, []byte(cfg), []byte(result.String)); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list executions iterate")
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
