package model

import "time"

// ManualOverride is an operator-entered correction that always wins
// resolution for one player field.
type ManualOverride struct {
	ID            string     `json:"id"`
	PlayerID      string     `json:"player_id"`
	FieldName     string     `json:"field_name"`
	OverrideValue string     `json:"override_value"`
	Season        int        `json:"season"`
	Week          int        `json:"week"` // 0 applies to every week
	EffectiveFrom time.Time  `json:"effective_from"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
	NeedsApproval bool       `json:"needs_approval"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Active reports whether the override applies at now.
func (o *ManualOverride) Active(now time.Time) bool {
	if !o.IsActive || now.Before(o.EffectiveFrom) {
		return false
	}
	return o.ExpiresAt == nil || !now.After(*o.ExpiresAt)
}

// AppliesTo reports whether the override targets the given week.
func (o *ManualOverride) AppliesTo(week int) bool {
	return o.Week == 0 || o.Week == week
}
