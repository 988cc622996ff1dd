// Package history keeps the append-only audit trail of cell changes.
// Appends are best-effort: a failed write warns and the reconciliation
// pass carries on, because losing one audit line is cheaper than losing
// the pass.
package history

import (
	"context"
	"log/slog"
	"time"
)

// Origin classifies who produced a change.
type Origin string

const (
	OriginSystem   Origin = "system"   // written by a reconciliation pass
	OriginUser     Origin = "user"     // explicit edit through the CLI or a host UI
	OriginExternal Origin = "external" // outside writer, observed while patching
)

// Record is one history entry. ID is assigned by the store on append and
// orders entries within a composite key.
type Record struct {
	ID           int64
	CompositeKey string
	OldValue     string
	NewValue     string
	Origin       Origin
	Note         string
	At           time.Time
}

// CellKey builds the composite key for a single-row panel cell.
func CellKey(panelID, field string) string {
	return panelID + ":" + field
}

// EntityCellKey builds the composite key for a multi-row panel cell. The
// literal "entity" prefix keeps the two key shapes from colliding.
func EntityCellKey(entityID, field string) string {
	return "entity:" + entityID + ":" + field
}

// Store is the persistence surface the log writes through.
type Store interface {
	AppendHistory(ctx context.Context, rec Record) error
	ReadHistory(ctx context.Context, compositeKey string) ([]Record, error)
	PruneHistory(ctx context.Context, compositeKey string) error
}

// Log is the best-effort journal over a Store.
type Log struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used when appends fail.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Log) { lg.log = l }
}

// WithClock sets the time source stamped onto records.
func WithClock(now func() time.Time) Option {
	return func(lg *Log) { lg.now = now }
}

// NewLog creates a Log over a store.
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{store: store, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes one entry. Failures are logged and swallowed.
func (l *Log) Append(ctx context.Context, key, oldValue, newValue string, origin Origin, note string) {
	rec := Record{
		CompositeKey: key,
		OldValue:     oldValue,
		NewValue:     newValue,
		Origin:       origin,
		Note:         note,
		At:           l.now(),
	}
	if err := l.store.AppendHistory(ctx, rec); err != nil {
		l.log.Warn("history append failed",
			"key", key,
			"origin", string(origin),
			"error", err)
	}
}

// Read returns all entries for a composite key in append order.
func (l *Log) Read(ctx context.Context, key string) ([]Record, error) {
	return l.store.ReadHistory(ctx, key)
}

// Prune drops all entries for a composite key.
func (l *Log) Prune(ctx context.Context, key string) error {
	return l.store.PruneHistory(ctx, key)
}
