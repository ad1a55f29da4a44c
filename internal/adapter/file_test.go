package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

func writeFeed(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileAdapter_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, filepath.Join(dir, "2025", "week-3.json"), `[
		{"player_name": "Jalen Milroe", "team": "Alabama", "pos": "QB", "depth_chart_rank": 1},
		{"source": "vendor_espn", "confidence": 0.8, "timestamp": "2025-09-01T00:00:00Z",
		 "data": {"name": "Ryan Williams", "team": "alabama", "position": "WR"}}
	]`)

	f := NewFile(FileOptions{Name: "notes", Path: filepath.Join(dir, "{season}", "week-{week}.json"),
		Source: model.SourceTeamNotes, Confidence: 0.9})
	fixed := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	recs, err := f.Fetch(context.Background(), 2025, 3)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, model.SourceTeamNotes, recs[0].Source)
	assert.InDelta(t, 0.9, recs[0].Confidence, 1e-9)
	assert.Equal(t, fixed, recs[0].Timestamp)
	assert.Equal(t, "Jalen Milroe", recs[0].Data["player_name"])
	assert.Equal(t, float64(1), recs[0].Data["depth_chart_rank"])
	assert.Equal(t, "notes", recs[0].Provenance.Adapter)
	assert.Equal(t, "file", recs[0].Provenance.Method)

	assert.Equal(t, model.SourceVendorESPN, recs[1].Source)
	assert.InDelta(t, 0.8, recs[1].Confidence, 1e-9)
	assert.Equal(t, "Ryan Williams", recs[1].Data["name"])
}

func TestFileAdapter_WrappedRecordsAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, filepath.Join(dir, "w1.json"), `{"records": [{"name": "A B", "source": "bogus"}]}`)
	f := NewFile(FileOptions{Name: "notes", Path: filepath.Join(dir, "w{week}.json")})

	recs, err := f.Fetch(context.Background(), 2025, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SourceUnknown, recs[0].Source)

	recs, err = f.Fetch(context.Background(), 2025, 2)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileAdapter_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, filepath.Join(dir, "w1.json"), `not json`)
	f := NewFile(FileOptions{Name: "notes", Path: filepath.Join(dir, "w{week}.json")})

	_, err := f.Fetch(context.Background(), 2025, 1)
	require.Error(t, err)
	assert.Equal(t, resilience.KindParsing, resilience.Classify(err))
	assert.False(t, resilience.Retryable(err))
}

func TestFileAdapter_Ping(t *testing.T) {
	dir := t.TempDir()
	ok := NewFile(FileOptions{Name: "notes", Path: filepath.Join(dir, "{season}", "w{week}.json")})
	assert.NoError(t, ok.Ping(context.Background()))

	missing := NewFile(FileOptions{Name: "notes", Path: filepath.Join(dir, "nope", "w{week}.json")})
	assert.Error(t, missing.Ping(context.Background()))
}

func TestExpandPath(t *testing.T) {
	assert.Equal(t, "feeds/2025/week-3.json", expandPath("feeds/{season}/week-{week}.json", 2025, 3))
	assert.Equal(t, "feeds", staticDir("feeds/{season}/week.json"))
	assert.Equal(t, "feeds", staticDir("feeds/week-{week}.json"))
	assert.Equal(t, "feeds", staticDir("feeds/all.json"))
}

func TestFileAdapter_CSV(t *testing.T) {
	dir := t.TempDir()
	writeFeed(t, filepath.Join(dir, "week-3.csv"), "# exported from team site\n"+
		"Player Name,Team,Pos,Depth Chart Rank,Jersey\n"+
		"Jalen Milroe,Alabama,QB,1,4\n"+
		",,,,\n"+
		"Ty Simpson,Alabama,QB,2,\n")

	f := NewFile(FileOptions{Name: "notes", Path: filepath.Join(dir, "week-{week}.csv"), Source: model.SourceTeamNotes, Confidence: 0.9})
	recs, err := f.Fetch(context.Background(), 2025, 3)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "Jalen Milroe", recs[0].Data["player_name"])
	assert.Equal(t, "1", recs[0].Data["depth_chart_rank"])
	assert.Equal(t, "4", recs[0].Data["jersey"])
	assert.Equal(t, model.SourceTeamNotes, recs[0].Source)
	assert.Equal(t, "notes", recs[0].Provenance.Adapter)

	_, hasJersey := recs[1].Data["jersey"]
	assert.False(t, hasJersey, "blank cells are dropped")
}

func TestFileAdapter_XLSX(t *testing.T) {
	dir := t.TempDir()
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Depth")
	require.NoError(t, err)
	for _, cells := range [][]string{
		{"player_name", "team", "position", "rank", "status"},
		{"Jalen Milroe", "alabama", "QB", "1", "Active"},
		{"Ryan Williams", "alabama", "WR", "1", "Questionable"},
	} {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, wb.Save(filepath.Join(dir, "w3.xlsx")))

	f := NewFile(FileOptions{Name: "sheet", Path: filepath.Join(dir, "w{week}.xlsx"), Source: model.SourceTeamNotes})
	recs, err := f.Fetch(context.Background(), 2025, 3)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Ryan Williams", recs[1].Data["player_name"])
	assert.Equal(t, "Questionable", recs[1].Data["status"])

	recs, err = f.Fetch(context.Background(), 2025, 4)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHeaderKey(t *testing.T) {
	assert.Equal(t, "depth_chart_rank", headerKey(" Depth Chart Rank "))
	assert.Equal(t, "starter_prob", headerKey("starter-prob"))
	assert.Equal(t, "injury_status", headerKey("Injury__Status"))
	assert.Equal(t, "", headerKey("  "))
}
