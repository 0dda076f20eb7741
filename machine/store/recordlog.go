package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/machina-run/machina/machine/decide"
)

// RecordLog adapts a Store into a decide.Log, so decision recordings share
// the checkpoint database instead of a directory of JSON files.
type RecordLog struct {
	store Store

	mu  sync.Mutex
	seq map[string]int
}

// NewRecordLog creates a decision log on top of the given store.
func NewRecordLog(s Store) *RecordLog {
	return &RecordLog{store: s, seq: make(map[string]int)}
}

// Append persists a record as the session's next sequence entry.
func (l *RecordLog) Append(ctx context.Context, session string, rec decide.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	l.mu.Lock()
	l.seq[session]++
	seq := l.seq[session]
	l.mu.Unlock()

	return l.store.AppendRecord(ctx, session, seq, data)
}

// Session loads a session's records in sequence order. A session with no
// records returns an empty slice, matching the other decide.Log
// implementations.
func (l *RecordLog) Session(ctx context.Context, session string) ([]decide.Record, error) {
	stored, err := l.store.Session(ctx, session)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records := make([]decide.Record, 0, len(stored))
	for _, sr := range stored {
		var rec decide.Record
		if err := json.Unmarshal(sr.Data, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s/%d: %w", session, sr.Seq, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
