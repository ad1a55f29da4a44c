// Package publish writes resolved depth charts to the store and keeps an
// immutable JSON snapshot of every publication.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/db"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// Store is the persistence the publisher writes to.
type Store interface {
	UpsertResolvedRecords(ctx context.Context, recs []model.ResolvedRecord) (db.UpsertResult, error)
	InsertDiffLog(ctx context.Context, entries []model.DiffLogEntry) (int, error)
}

// Options controls one publication.
type Options struct {
	DryRun         bool
	CreateSnapshot bool
	SkipValidation bool
	BatchSize      int
}

const (
	defaultBatchSize = 100
	// lowConfidence flags published records worth a second look.
	lowConfidence = 0.5
)

// Publisher validates and persists resolution results.
type Publisher struct {
	store       Store
	snapshotDir string
	now         func() time.Time
	newID       func() string
	log         *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithNow sets the clock.
func WithNow(fn func() time.Time) Option {
	return func(p *Publisher) { p.now = fn }
}

// WithIDGenerator sets the publication id suffix generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *Publisher) { p.newID = fn }
}

// New creates a Publisher writing snapshots under snapshotDir.
func New(s Store, snapshotDir string, opts ...Option) *Publisher {
	p := &Publisher{
		store:       s,
		snapshotDir: snapshotDir,
		now:         time.Now,
		newID:       func() string { return uuid.NewString()[:8] },
		log:         zap.L().With(zap.String("component", "publisher")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish writes res for (season, week). Validation failures and snapshot
// failures are reported in the result. A store failure is returned as an
// error along with the counts written so far.
func (p *Publisher) Publish(ctx context.Context, res *model.ResolutionResult, season, week int, opts Options) (*model.PublishResult, error) {
	if res == nil {
		return nil, eris.New("publish: nil resolution result")
	}
	now := p.now().UTC()
	out := &model.PublishResult{
		PublicationID: fmt.Sprintf("%s_%s", now.Format("20060102T150405Z"), p.newID()),
	}
	log := p.log.With(zap.Int("season", season), zap.Int("week", week), zap.String("publication_id", out.PublicationID))
	log.Info("publish: starting", zap.Int("records", len(res.ResolvedRecords)), zap.Bool("dry_run", opts.DryRun))

	if !opts.SkipValidation {
		errs, warns := validateRecords(res.ResolvedRecords, season, week)
		out.Warnings = append(out.Warnings, warns...)
		if len(errs) > 0 {
			out.Errors = append(out.Errors, errs...)
			out.Errors = append(out.Errors, fmt.Sprintf("Pre-publication validation failed: %d critical errors", len(errs)))
			log.Warn("publish: validation failed", zap.Int("errors", len(errs)))
			return out, nil
		}
	}

	if !opts.DryRun {
		if err := p.write(ctx, res, opts, out); err != nil {
			return out, err
		}
	}

	if opts.CreateSnapshot {
		path, err := p.writeSnapshot(res, season, week, out.PublicationID, now, opts.DryRun)
		out.SnapshotPath = path
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			log.Error("publish: snapshot failed", zap.Error(err))
		}
	}

	out.Success = len(out.Errors) == 0
	log.Info("publish: complete",
		zap.Int("created", out.RecordsCreated),
		zap.Int("updated", out.RecordsUpdated),
		zap.String("snapshot", out.SnapshotPath),
	)
	return out, nil
}

func (p *Publisher) write(ctx context.Context, res *model.ResolutionResult, opts Options, out *model.PublishResult) error {
	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	recs := res.ResolvedRecords
	for start := 0; start < len(recs); start += size {
		end := min(start+size, len(recs))
		ur, err := p.store.UpsertResolvedRecords(ctx, recs[start:end])
		if err != nil {
			out.RecordsFailed += len(recs) - start
			return eris.Wrapf(err, "publish: write records %d-%d", start, end-1)
		}
		out.RecordsCreated += int(ur.Inserted)
		out.RecordsUpdated += int(ur.Updated)
	}

	if len(res.DiffLog) > 0 {
		if _, err := p.store.InsertDiffLog(ctx, res.DiffLog); err != nil {
			return eris.Wrap(err, "publish: write diff log")
		}
	}
	return nil
}

func validateRecords(recs []model.ResolvedRecord, season, week int) (errs, warns []string) {
	for _, r := range recs {
		id := r.PlayerID
		if id == "" {
			errs = append(errs, "Missing required field: player_id")
			id = "?"
		}
		if r.TeamID == "" {
			errs = append(errs, id+": missing required field: team_id")
		}
		if r.Season != season || r.Week != week {
			errs = append(errs, fmt.Sprintf("%s: record is for %dW%d, not %dW%d", id, r.Season, r.Week, season, week))
		}
		if r.DepthChartRank < 1 || r.DepthChartRank > 10 {
			errs = append(errs, fmt.Sprintf("%s: invalid depth_chart_rank: %d", id, r.DepthChartRank))
		}
		if r.StarterProb < 0 || r.StarterProb > 1 {
			errs = append(errs, fmt.Sprintf("%s: invalid starter_prob: %g", id, r.StarterProb))
		}
		if r.FinalConfidence < lowConfidence {
			warns = append(warns, fmt.Sprintf("%s: low confidence record: %.2f", id, r.FinalConfidence))
		}
	}
	return errs, warns
}
