// Package override manages operator-entered corrections: validation,
// approval, replacement and reporting.
package override

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/store"
)

// Store is the persistence the manager needs.
type Store interface {
	ListPlayers(ctx context.Context) ([]model.Player, error)
	CreateOverride(ctx context.Context, o *model.ManualOverride) error
	GetOverride(ctx context.Context, id string) (*model.ManualOverride, error)
	UpdateOverride(ctx context.Context, o *model.ManualOverride) error
	ListOverrides(ctx context.Context, filter store.OverrideFilter) ([]model.ManualOverride, error)
}

// CreateRequest asks for a new override.
type CreateRequest struct {
	PlayerID  string `json:"player_id"`
	FieldName string `json:"field_name"`
	Value     any    `json:"override_value"`
	Season    int    `json:"season"`
	// Week 0 applies to the whole season.
	Week            int        `json:"week"`
	EffectiveFrom   *time.Time `json:"effective_from,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Reason          string     `json:"reason"`
	CreatedBy       string     `json:"created_by"`
	RequireApproval bool       `json:"approval_required,omitempty"`
}

// Validation is the outcome of checking a CreateRequest.
type Validation struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	value    any
}

// InvalidError is returned by Create when the request fails validation.
type InvalidError struct {
	Errors []string
}

func (e *InvalidError) Error() string {
	return "override: invalid request: " + strings.Join(e.Errors, "; ")
}

// CreateResult reports a created override.
type CreateResult struct {
	Override      *model.ManualOverride `json:"override"`
	NeedsApproval bool                  `json:"needs_approval"`
	Replaced      string                `json:"replaced,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
}

// Manager creates and maintains manual overrides.
type Manager struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithNow sets the clock.
func WithNow(fn func() time.Time) Option {
	return func(m *Manager) { m.now = fn }
}

// NewManager creates a Manager backed by s.
func NewManager(s Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "override")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Validate checks req without writing anything.
func (m *Manager) Validate(ctx context.Context, req CreateRequest) Validation {
	v := Validation{Valid: true}
	fail := func(msg string) {
		v.Valid = false
		v.Errors = append(v.Errors, msg)
	}

	if strings.TrimSpace(req.PlayerID) == "" {
		fail("player_id is required")
	}
	if req.Season <= 0 {
		fail("season is required")
	}
	if req.Week < 0 {
		fail("week must be zero or positive")
	}

	rule, ok := supportedFields[req.FieldName]
	if !ok {
		fail("Unsupported field: " + req.FieldName)
		return v
	}
	value, msg := rule.check(req.FieldName, req.Value)
	if msg != "" {
		fail(msg)
	}
	v.value = value

	if req.EffectiveFrom != nil && req.ExpiresAt != nil && !req.ExpiresAt.After(*req.EffectiveFrom) {
		fail("Expiration date must be after effective date")
	}

	if req.PlayerID != "" {
		m.checkPlayer(ctx, req.PlayerID, &v)
	}
	if existing, err := m.existing(ctx, req); err != nil {
		v.Warnings = append(v.Warnings, "Could not check for conflicting overrides")
	} else if existing != nil {
		v.Warnings = append(v.Warnings, "Will replace existing override: "+existing.ID)
	}
	return v
}

func (m *Manager) checkPlayer(ctx context.Context, id string, v *Validation) {
	players, err := m.store.ListPlayers(ctx)
	if err != nil || len(players) == 0 {
		v.Warnings = append(v.Warnings, "Could not validate player existence")
		return
	}
	for _, p := range players {
		if p.ID == id {
			return
		}
	}
	v.Valid = false
	v.Errors = append(v.Errors, "Player not found: "+id)
}

// existing returns the active override for the same player, field, season
// and week, if any.
func (m *Manager) existing(ctx context.Context, req CreateRequest) (*model.ManualOverride, error) {
	week := req.Week
	list, err := m.store.ListOverrides(ctx, store.OverrideFilter{
		PlayerID:   req.PlayerID,
		FieldName:  req.FieldName,
		Season:     req.Season,
		Week:       &week,
		ActiveOnly: true,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// Create validates and stores req. Fields that require approval, or a
// request asking for it, are stored inactive until Approve. An override
// that is active on creation replaces the existing active one for the same
// player, field, season and week.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	v := m.Validate(ctx, req)
	if !v.Valid {
		return nil, &InvalidError{Errors: v.Errors}
	}

	raw, err := json.Marshal(v.value)
	if err != nil {
		return nil, eris.Wrap(err, "override: encode value")
	}
	now := m.now().UTC()
	effective := now
	if req.EffectiveFrom != nil {
		effective = req.EffectiveFrom.UTC()
	}
	needsApproval := req.RequireApproval || approvalRequired[req.FieldName]

	o := &model.ManualOverride{
		PlayerID:      req.PlayerID,
		FieldName:     req.FieldName,
		OverrideValue: string(raw),
		Season:        req.Season,
		Week:          req.Week,
		EffectiveFrom: effective,
		ExpiresAt:     req.ExpiresAt,
		IsActive:      !needsApproval,
		NeedsApproval: needsApproval,
		Reason:        req.Reason,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
	}

	res := &CreateResult{Override: o, NeedsApproval: needsApproval, Warnings: v.Warnings}
	if o.IsActive {
		replaced, err := m.replaceExisting(ctx, o, req.CreatedBy)
		if err != nil {
			return nil, err
		}
		res.Replaced = replaced
	}
	if err := m.store.CreateOverride(ctx, o); err != nil {
		return nil, eris.Wrap(err, "override: create")
	}

	m.log.Info("override: created",
		zap.String("override_id", o.ID),
		zap.String("player_id", o.PlayerID),
		zap.String("field", o.FieldName),
		zap.Int("season", o.Season),
		zap.Int("week", o.Week),
		zap.Bool("needs_approval", needsApproval),
		zap.String("created_by", o.CreatedBy),
	)
	return res, nil
}

func (m *Manager) replaceExisting(ctx context.Context, o *model.ManualOverride, by string) (string, error) {
	prev, err := m.existing(ctx, CreateRequest{PlayerID: o.PlayerID, FieldName: o.FieldName, Season: o.Season, Week: o.Week})
	if err != nil {
		return "", eris.Wrap(err, "override: look up existing")
	}
	if prev == nil || prev.ID == o.ID {
		return "", nil
	}
	if err := m.Deactivate(ctx, prev.ID, by, "Replaced by new override"); err != nil {
		return "", err
	}
	return prev.ID, nil
}

// BatchFailure is one request of a batch that could not be created.
type BatchFailure struct {
	Index  int      `json:"index"`
	Errors []string `json:"errors"`
}

// BatchResult reports CreateBatch.
type BatchResult struct {
	Success bool           `json:"success"`
	Created []string       `json:"created_overrides"`
	Pending []string       `json:"pending_approval"`
	Failed  []BatchFailure `json:"failed_overrides"`
}

// CreateBatch creates each request independently. The batch succeeds when
// at least one request did.
func (m *Manager) CreateBatch(ctx context.Context, reqs []CreateRequest, reason string) BatchResult {
	var out BatchResult
	for i, req := range reqs {
		res, err := m.Create(ctx, req)
		if err != nil {
			var inv *InvalidError
			if errors.As(err, &inv) {
				out.Failed = append(out.Failed, BatchFailure{Index: i, Errors: inv.Errors})
			} else {
				out.Failed = append(out.Failed, BatchFailure{Index: i, Errors: []string{err.Error()}})
			}
			continue
		}
		out.Created = append(out.Created, res.Override.ID)
		if res.NeedsApproval {
			out.Pending = append(out.Pending, res.Override.ID)
		}
	}
	out.Success = len(out.Failed) < len(reqs)
	m.log.Info("override: batch created",
		zap.String("reason", reason),
		zap.Int("created", len(out.Created)),
		zap.Int("failed", len(out.Failed)),
	)
	return out
}

// Approve activates a pending override and replaces any active override
// for the same target.
func (m *Manager) Approve(ctx context.Context, id, by string) (*model.ManualOverride, error) {
	o, err := m.store.GetOverride(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "override: approve")
	}
	if !o.NeedsApproval {
		if o.ApprovedBy != "" {
			return nil, eris.Errorf("override: %s already approved", id)
		}
		return nil, eris.Errorf("override: %s does not require approval", id)
	}
	if _, err := m.replaceExisting(ctx, o, by); err != nil {
		return nil, err
	}

	o.IsActive = true
	o.NeedsApproval = false
	o.ApprovedBy = by
	o.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateOverride(ctx, o); err != nil {
		return nil, eris.Wrap(err, "override: approve")
	}
	m.log.Info("override: approved", zap.String("override_id", id), zap.String("approved_by", by))
	return o, nil
}

// Reject deactivates a pending override.
func (m *Manager) Reject(ctx context.Context, id, by, reason string) error {
	return m.Deactivate(ctx, id, by, "Rejected: "+reason)
}

// Deactivate turns an override off. It is a no-op for inactive overrides
// that are not pending approval.
func (m *Manager) Deactivate(ctx context.Context, id, by, reason string) error {
	o, err := m.store.GetOverride(ctx, id)
	if err != nil {
		return eris.Wrap(err, "override: deactivate")
	}
	if !o.IsActive && !o.NeedsApproval {
		return nil
	}
	o.IsActive = false
	o.NeedsApproval = false
	o.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateOverride(ctx, o); err != nil {
		return eris.Wrap(err, "override: deactivate")
	}
	m.log.Info("override: deactivated",
		zap.String("override_id", id),
		zap.String("by", by),
		zap.String("reason", reason),
	)
	return nil
}

// Search lists overrides matching filter, newest first.
func (m *Manager) Search(ctx context.Context, filter store.OverrideFilter) ([]model.ManualOverride, error) {
	list, err := m.store.ListOverrides(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "override: search")
	}
	return list, nil
}

// Stats summarizes a season's overrides.
type Stats struct {
	Total           int            `json:"total_overrides"`
	Active          int            `json:"active_overrides"`
	PendingApproval int            `json:"pending_approval"`
	ByField         map[string]int `json:"overrides_by_field"`
	ByWeek          map[int]int    `json:"overrides_by_week"`
	RecentActivity  int            `json:"recent_activity"`
}

const statsLimit = 5000

// Stats counts the season's overrides. RecentActivity is the number
// created in the last 24 hours.
func (m *Manager) Stats(ctx context.Context, season int) (Stats, error) {
	list, err := m.store.ListOverrides(ctx, store.OverrideFilter{Season: season, Limit: statsLimit})
	if err != nil {
		return Stats{}, eris.Wrap(err, "override: stats")
	}

	s := Stats{Total: len(list), ByField: map[string]int{}, ByWeek: map[int]int{}}
	dayAgo := m.now().Add(-24 * time.Hour)
	for _, o := range list {
		if o.IsActive {
			s.Active++
		}
		if o.NeedsApproval {
			s.PendingApproval++
		}
		s.ByField[o.FieldName]++
		s.ByWeek[o.Week]++
		if o.CreatedAt.After(dayAgo) {
			s.RecentActivity++
		}
	}
	return s, nil
}
