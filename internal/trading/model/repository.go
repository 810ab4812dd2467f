package model

import "context"

// TickStore snapshots and restores the resting ticks of one book.
//
// Save replaces the previous snapshot as a whole: a concurrent or later Load
// sees either the old set or the new one, never a mix. Load returns ticks in
// the order they were saved.
type TickStore interface {
	Save(ctx context.Context, ticks []*Tick) error
	Load(ctx context.Context) ([]*Tick, error)
	Close() error
}
