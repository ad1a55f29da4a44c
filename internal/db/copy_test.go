package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "diff_log", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom(t *testing.T) {
	tests := []struct {
		table string
		ident pgx.Identifier
	}{
		{"diff_log", pgx.Identifier{"diff_log"}},
		{"depth.diff_log", pgx.Identifier{"depth", "diff_log"}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectCopyFrom(tt.ident, []string{"player_id", "field_name"}).WillReturnResult(2)

			rows := [][]any{{"p1", "depth_chart_rank"}, {"p2", "_record"}}
			n, err := CopyFrom(context.Background(), mock, tt.table, []string{"player_id", "field_name"}, rows)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"diff_log"}, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyFrom(context.Background(), mock, "diff_log", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO diff_log")
	assert.NoError(t, mock.ExpectationsWereMet())
}
