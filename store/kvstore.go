// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/kvutil"
	"github.com/bvk/pipwatch/syncmap"
	"github.com/bvkgo/kv"
)

const DefaultKeyspace = "/snapshots"

// KV is a Store on top of a bvkgo/kv database. Snapshots are stored at
// /snapshots/<date>/<symbol> keys.
type KV struct {
	db kv.Database

	keyspace string

	// lockMap serializes read-modify-write cycles for the same key within this
	// process.
	lockMap syncmap.Map[string, *sync.Mutex]
}

var _ Store = &KV{}

func NewKV(db kv.Database) *KV {
	return &KV{
		db:       db,
		keyspace: DefaultKeyspace,
	}
}

func (s *KV) key(symbol, date string) string {
	return path.Join(s.keyspace, date, symbol)
}

func (s *KV) lock(key string) func() {
	mu, _ := s.lockMap.LoadOrStore(key, new(sync.Mutex))
	mu.Lock()
	return mu.Unlock
}

func (s *KV) Upsert(ctx context.Context, u *Update) (bool, error) {
	if err := u.Check(); err != nil {
		return false, err
	}

	key := s.key(u.Symbol, u.Date)
	unlock := s.lock(key)
	defer unlock()

	merge := func(old *gobs.Snapshot) (*gobs.Snapshot, error) {
		return Merge(old, u, time.Now().UTC()), nil
	}
	created, err := kvutil.Update(ctx, s.db, key, merge)
	if err != nil {
		return false, fmt.Errorf("could not upsert snapshot at %q: %w", key, err)
	}
	return created, nil
}

func (s *KV) Exists(ctx context.Context, symbol, date string) (found bool, err error) {
	key := s.key(symbol, date)
	err = kv.WithReader(ctx, s.db, func(ctx context.Context, r kv.Reader) error {
		found, err = kvutil.Exists(ctx, r, key)
		return err
	})
	return found, err
}

func (s *KV) Get(ctx context.Context, symbol, date string) (*gobs.Snapshot, error) {
	return kvutil.GetDB[gobs.Snapshot](ctx, s.db, s.key(symbol, date))
}

func (s *KV) List(ctx context.Context, date string) ([]*gobs.Snapshot, error) {
	var snapshots []*gobs.Snapshot
	collect := func(ctx context.Context, _ string, v *gobs.Snapshot) error {
		snapshots = append(snapshots, v)
		return nil
	}
	begin, end := kvutil.PathRange(path.Join(s.keyspace, date))
	if err := kvutil.AscendDB(ctx, s.db, begin, end, collect); err != nil {
		return nil, fmt.Errorf("could not list snapshots for %s: %w", date, err)
	}
	return snapshots, nil
}
