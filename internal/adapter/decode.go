package adapter

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
	"github.com/kpm34/college-football-fantasy-app-sub000/internal/resilience"
)

// envelope supplies record metadata a feed leaves out.
type envelope struct {
	adapter    string
	source     model.DataSource
	confidence float64
	sourceURL  string
	method     string
	fetchedAt  time.Time
}

// decodeFeed reads a feed body. The body is either a JSON array or an
// object with a "records" array. Each element is either a full raw record
// (it has a "data" object) or a bare data bag.
func decodeFeed(r io.Reader, env envelope) ([]model.RawDataRecord, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, resilience.NewFetchError(resilience.KindNetwork, eris.Wrap(err, "adapter: read feed"))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Records []json.RawMessage `json:"records"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, resilience.NewFetchError(resilience.KindParsing, eris.Wrap(err, "adapter: decode feed"))
		}
		items = wrapped.Records
	}

	out := make([]model.RawDataRecord, 0, len(items))
	for i, item := range items {
		rec, err := decodeItem(item, env)
		if err != nil {
			return nil, resilience.NewFetchError(resilience.KindParsing, eris.Wrapf(err, "adapter: decode record %d", i))
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeItem(item json.RawMessage, env envelope) (model.RawDataRecord, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(item, &probe); err != nil {
		return model.RawDataRecord{}, err
	}

	var rec model.RawDataRecord
	if _, ok := probe["data"]; ok {
		if err := json.Unmarshal(item, &rec); err != nil {
			return rec, err
		}
	} else if err := json.Unmarshal(item, &rec.Data); err != nil {
		return rec, err
	}

	if rec.Source == "" {
		rec.Source = env.source
	} else {
		rec.Source = model.ParseDataSource(string(rec.Source))
	}
	if rec.Confidence == 0 {
		rec.Confidence = env.confidence
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = env.fetchedAt
	}
	if rec.Provenance.Adapter == "" {
		rec.Provenance.Adapter = env.adapter
	}
	if rec.Provenance.SourceURL == "" {
		rec.Provenance.SourceURL = env.sourceURL
	}
	if rec.Provenance.Method == "" {
		rec.Provenance.Method = env.method
	}
	if rec.Provenance.FetchedAt.IsZero() {
		rec.Provenance.FetchedAt = env.fetchedAt
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return rec, nil
}
