// Package eventlog is the append-only feed of attempt events. Aggregate
// reads never depend on it directly, but a replayed log reproduces the same
// projections, and administrative retractions append rather than delete.
package eventlog

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

const (
	TypeAttemptSubmitted = "AttemptSubmitted"
	TypeAttemptRetracted = "AttemptRetracted"
)

type Event struct {
	Offset    int64  `json:"offset"`
	Type      string `json:"type"`
	Key       string `json:"key"` // natural key: attempt id
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

type Log interface {
	Append(ctx context.Context, e Event) error
	Replay(ctx context.Context, fromOffset int64) ([]Event, error)
}

// SQLLog appends to the event_log table.
type SQLLog struct{ db *sql.DB }

func NewSQLLog(db *sql.DB) *SQLLog { return &SQLLog{db: db} }

func (l *SQLLog) Append(ctx context.Context, e Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

func (l *SQLLog) Replay(ctx context.Context, fromOffset int64) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log WHERE seq > $1 ORDER BY seq`,
		fromOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MemLog keeps events in memory for tests and the in-memory store.
type MemLog struct {
	mu     sync.Mutex
	events []Event
}

func NewMemLog() *MemLog { return &MemLog{} }

func (l *MemLog) Append(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Offset = int64(len(l.events) + 1)
	e.CreatedAt = time.Now().Unix()
	l.events = append(l.events, e)
	return nil
}

func (l *MemLog) Replay(_ context.Context, fromOffset int64) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Offset > fromOffset {
			out = append(out, e)
		}
	}
	return out, nil
}
