package adapter

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

// FileOptions configures a FileAdapter.
type FileOptions struct {
	Name string
	// Path may contain {season} and {week} placeholders.
	Path       string
	Source     model.DataSource
	Confidence float64
}

// FileAdapter reads a feed dropped on local disk, one file per week.
type FileAdapter struct {
	opts FileOptions
	now  func() time.Time
}

// NewFile creates a FileAdapter.
func NewFile(opts FileOptions) *FileAdapter {
	if opts.Source == "" {
		opts.Source = model.SourceUnknown
	}
	return &FileAdapter{opts: opts, now: time.Now}
}

// Name returns the configured adapter name.
func (f *FileAdapter) Name() string { return f.opts.Name }

// Fetch reads and decodes the file for season and week. A missing file
// yields no records. Files ending in .csv or .xlsx are read as a header row
// followed by one player per row; anything else is a JSON feed.
func (f *FileAdapter) Fetch(ctx context.Context, season, week int) ([]model.RawDataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := expandPath(f.opts.Path, season, week)
	env := envelope{
		adapter:    f.opts.Name,
		source:     f.opts.Source,
		confidence: f.opts.Confidence,
		sourceURL:  "file://" + path,
		method:     "file",
		fetchedAt:  f.now().UTC(),
	}

	format := sheetFormat(path)
	if format == "xlsx" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, resilience.NewFetchError(resilience.KindUnknown, eris.Wrapf(err, "adapter: stat %s", path))
		}
		rows, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return rowsToRecords(rows, env), nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, resilience.NewFetchError(resilience.KindUnknown, eris.Wrapf(err, "adapter: open %s", path))
	}
	defer file.Close() //nolint:errcheck

	if format == "csv" {
		rows, err := readCSV(file)
		if err != nil {
			return nil, err
		}
		return rowsToRecords(rows, env), nil
	}
	return decodeFeed(file, env)
}

// Ping checks that the feed directory exists.
func (f *FileAdapter) Ping(_ context.Context) error {
	dir := staticDir(f.opts.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return eris.Wrapf(err, "adapter: stat %s", dir)
	}
	if !info.IsDir() {
		return eris.Errorf("adapter: %s is not a directory", dir)
	}
	return nil
}

func expandPath(tmpl string, season, week int) string {
	return strings.NewReplacer(
		"{season}", strconv.Itoa(season),
		"{week}", strconv.Itoa(week),
	).Replace(tmpl)
}

// staticDir returns the deepest directory of tmpl that has no placeholder.
func staticDir(tmpl string) string {
	if i := strings.Index(tmpl, "{"); i >= 0 {
		tmpl = tmpl[:i]
		if strings.HasSuffix(tmpl, string(filepath.Separator)) {
			return filepath.Clean(tmpl)
		}
	}
	return filepath.Dir(tmpl)
}
