package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var depthCfg = UpsertConfig{
	Table:        "depth_charts",
	Columns:      []string{"player_id", "season", "week", "record"},
	ConflictKeys: []string{"player_id", "season", "week"},
}

func TestBulkUpsert_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{"no columns", UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, "no columns specified"},
		{"no keys", UpsertConfig{Table: "t", Columns: []string{"id"}}, "no conflict keys specified"},
		{"keys only", UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}}, "nothing to update"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkUpsert(context.Background(), nil, tt.cfg, [][]any{{1}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	res, err := BulkUpsert(context.Background(), nil, depthCfg, nil)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{}, res)
}

func TestBulkUpsert_CountsInsertsAndUpdates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_depth_charts" \(LIKE "depth_charts"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_depth_charts"}, depthCfg.Columns).WillReturnResult(3)
	mock.ExpectQuery(`INSERT INTO "depth_charts" .* ON CONFLICT \("player_id", "season", "week"\) DO UPDATE SET "record" = EXCLUDED."record" RETURNING`).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true).AddRow(false).AddRow(true))
	mock.ExpectCommit()

	rows := [][]any{{"p1", 2025, 3, []byte(`{}`)}, {"p2", 2025, 3, []byte(`{}`)}, {"p3", 2025, 3, []byte(`{}`)}}
	res, err := BulkUpsert(context.Background(), mock, depthCfg, rows)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 2, Updated: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_depth_charts"}, depthCfg.Columns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, depthCfg, [][]any{{"p1", 2025, 3, []byte(`{}`)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into stage table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"depth_charts"`, sanitizeTable("depth_charts"))
	assert.Equal(t, `"depth"."diff_log"`, sanitizeTable("depth.diff_log"))
	assert.Equal(t, `"id", "name"`, quoteAndJoin([]string{"id", "name"}))
}
