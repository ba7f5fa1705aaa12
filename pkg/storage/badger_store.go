package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/alian-ui/Doc-to-MD-sub000/pkg/cache"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/log"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/models"
	"github.com/alian-ui/Doc-to-MD-sub000/pkg/utils"
)

const (
	cacheKeyPrefix = "cache:"    // Prefix for result cache keys in DB
	cacheDBDir     = "cache_db" // Subdirectory name within stateDir for Badger DB files
)

// record is the stored form of one cache entry; the key lives in the badger key
type record struct {
	Value      models.CacheValue `json:"value"`
	InsertedAt time.Time         `json:"inserted_at"`
	TTL        time.Duration     `json:"ttl"`
}

// BadgerStore implements CacheStore using BadgerDB. Entries are written with a native
// badger TTL so stale values disappear even if nobody loads them.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
	now func() time.Time
}

// NewBadgerStore opens (or creates) the cache database for one site under stateDir.
// With resume false any previous snapshot is removed first.
func NewBadgerStore(stateDir, siteKey string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger.WithField("component", "cache_store"),
		now: time.Now,
	}

	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(siteKey)+"_"+cacheDBDir)

	if !resume {
		store.log.Debugf("Resume is off, removing previous cache snapshot: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			store.log.Errorf("Failed to remove existing cache directory %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create cache directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}
	store.db = db

	store.log.Infof("Cache store opened at: %s (Resume: %v)", dbPath, resume)
	return store, nil
}

// SaveEntries implements SnapshotStore
func (s *BadgerStore) SaveEntries(ctx context.Context, entries []cache.Entry[models.CacheValue]) error {
	if s.db == nil || s.db.IsClosed() {
		return fmt.Errorf("%w: cache store is closed", utils.ErrDatabase)
	}
	if err := s.db.DropPrefix([]byte(cacheKeyPrefix)); err != nil {
		return fmt.Errorf("%w: clearing previous snapshot: %w", utils.ErrDatabase, err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	now := s.now()
	written, skipped := 0, 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := e.TTL - now.Sub(e.InsertedAt)
		if remaining <= 0 {
			skipped++
			continue
		}

		val, err := json.Marshal(record{Value: e.Value, InsertedAt: e.InsertedAt, TTL: e.TTL})
		if err != nil {
			return fmt.Errorf("%w: encoding cache entry '%s': %w", utils.ErrParsing, e.Key, err)
		}
		// Badger expiry has second granularity; round up so short TTLs survive the write
		ttl := remaining.Truncate(time.Second) + time.Second
		if err := wb.SetEntry(badger.NewEntry([]byte(cacheKeyPrefix+e.Key), val).WithTTL(ttl)); err != nil {
			return fmt.Errorf("%w: writing cache entry '%s': %w", utils.ErrDatabase, e.Key, err)
		}
		written++
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("%w: flushing cache snapshot: %w", utils.ErrDatabase, err)
	}
	s.log.Infof("Saved cache snapshot: %d entries (%d expired skipped)", written, skipped)
	return nil
}

// LoadEntries implements SnapshotStore. Undecodable values are skipped with a warning.
func (s *BadgerStore) LoadEntries(ctx context.Context) ([]cache.Entry[models.CacheValue], error) {
	if s.db == nil || s.db.IsClosed() {
		return nil, fmt.Errorf("%w: cache store is closed", utils.ErrDatabase)
	}

	var out []cache.Entry[models.CacheValue]
	now := s.now()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cacheKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key()[len(cacheKeyPrefix):])

			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				s.log.Warnf("Skipping undecodable cache entry '%s': %v", key, err)
				continue
			}

			e := cache.Entry[models.CacheValue]{Key: key, Value: rec.Value, InsertedAt: rec.InsertedAt, TTL: rec.TTL}
			if e.Expired(now) {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading cache snapshot: %w", utils.ErrDatabase, err)
	}

	s.log.Debugf("Loaded %d cache entries from disk", len(out))
	return out, nil
}

// Count implements StoreAdmin
func (s *BadgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(cacheKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: counting cache entries: %w", utils.ErrDatabase, err)
	}
	return count, nil
}

// RunGC implements StoreAdmin
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Debug("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			for {
				// Rewrite while at least half of a value log file is reclaimable
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements StoreAdmin. Closing twice is a no-op.
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing cache DB: %v", err)
		return fmt.Errorf("%w: closing cache DB: %w", utils.ErrDatabase, err)
	}
	s.log.Debug("Cache DB closed.")
	return nil
}
