package adapter

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

// sheetFormat reports the tabular format implied by path, or "" for JSON.
func sheetFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	}
	return ""
}

// readCSV returns every row of a comma-separated depth chart.
func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindParsing, eris.Wrap(err, "adapter: read csv"))
	}
	return rows, nil
}

// readXLSX returns every row of the first sheet of a workbook.
func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindParsing, eris.Wrapf(err, "adapter: open workbook %s", path))
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}
	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// headerKey turns a column title like "Depth Chart Rank" into the snake
// case key the normalizer looks up.
func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	}), "_")
}

// rowsToRecords maps a header row plus data rows onto raw records. Blank
// cells are left out of the data bag and fully blank rows are skipped.
func rowsToRecords(rows [][]string, env envelope) []model.RawDataRecord {
	if len(rows) < 2 {
		return nil
	}
	keys := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		keys[i] = headerKey(h)
	}

	out := make([]model.RawDataRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		data := make(map[string]any, len(keys))
		for i, cell := range row {
			if i >= len(keys) || keys[i] == "" {
				continue
			}
			if cell = strings.TrimSpace(cell); cell != "" {
				data[keys[i]] = cell
			}
		}
		if len(data) == 0 {
			continue
		}
		out = append(out, model.RawDataRecord{
			Source:     env.source,
			Timestamp:  env.fetchedAt,
			Confidence: env.confidence,
			Data:       data,
			Provenance: model.Provenance{
				Adapter:   env.adapter,
				SourceURL: env.sourceURL,
				Method:    env.method,
				FetchedAt: env.fetchedAt,
			},
		})
	}
	return out
}
