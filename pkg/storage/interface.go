package storage

import (
	"context"
	"time"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/cache"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
)

// SnapshotStore persists result cache snapshots between runs
type SnapshotStore interface {
	// SaveEntries replaces the stored snapshot with entries. Expired entries are skipped.
	SaveEntries(ctx context.Context, entries []cache.Entry[models.CacheValue]) error

	// LoadEntries returns every stored entry that has not yet expired
	LoadEntries(ctx context.Context) ([]cache.Entry[models.CacheValue], error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// Count returns the number of live entries in the store
	Count() (int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// CacheStore combines both interfaces for owners of the store
type CacheStore interface {
	SnapshotStore
	StoreAdmin
}
