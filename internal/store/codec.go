package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

func scanOverride(row scannable) (*model.ManualOverride, error) {
	var o model.ManualOverride
	err := row.Scan(&o.ID, &o.PlayerID, &o.FieldName, &o.OverrideValue, &o.Season, &o.Week,
		&o.EffectiveFrom, &o.ExpiresAt, &o.IsActive, &o.NeedsApproval, &o.ApprovedBy,
		&o.Reason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func decodeResolved(raw []byte) (model.ResolvedRecord, error) {
	var rec model.ResolvedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, eris.Wrap(err, "store: unmarshal resolved record")
	}
	return rec, nil
}

func encodeDiffValues(e model.DiffLogEntry) (oldV, newV []byte, err error) {
	if e.OldValue != nil {
		if oldV, err = json.Marshal(e.OldValue); err != nil {
			return nil, nil, eris.Wrapf(err, "store: marshal old value for %s", e.FieldName)
		}
	}
	if e.NewValue != nil {
		if newV, err = json.Marshal(e.NewValue); err != nil {
			return nil, nil, eris.Wrapf(err, "store: marshal new value for %s", e.FieldName)
		}
	}
	return oldV, newV, nil
}

func decodeDiffValues(e *model.DiffLogEntry, oldV, newV []byte) error {
	if len(oldV) > 0 {
		if err := json.Unmarshal(oldV, &e.OldValue); err != nil {
			return eris.Wrap(err, "store: unmarshal old value")
		}
	}
	if len(newV) > 0 {
		if err := json.Unmarshal(newV, &e.NewValue); err != nil {
			return eris.Wrap(err, "store: unmarshal new value")
		}
	}
	return nil
}

func decodeExecution(rec *model.ExecutionRecord, cfg, result []byte) error {
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &rec.Config); err != nil {
			return eris.Wrap(err, "store: unmarshal execution config")
		}
	}
	if len(result) > 0 && string(result) != "null" {
		rec.Result = &model.IngestionResult{}
		if err := json.Unmarshal(result, rec.Result); err != nil {
			return eris.Wrap(err, "store: unmarshal execution result")
		}
	}
	return nil
}
