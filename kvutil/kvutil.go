// Copyright (c) 2023 BVK Chaitanya

// Package kvutil has generic helpers to store gob-encoded values in a
// bvkgo/kv database.
package kvutil

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/bvkgo/kv"
)

func decode[T any](key string, r io.Reader) (*T, error) {
	v := new(T)
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return nil, fmt.Errorf("could not gob-decode value at key %q: %w", key, err)
	}
	return v, nil
}

// Get reads and decodes the value at key. Missing keys return an error that
// wraps os.ErrNotExist.
func Get[T any](ctx context.Context, g kv.Getter, key string) (*T, error) {
	r, err := g.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("could not get %q: %w", key, err)
	}
	return decode[T](key, r)
}

func Set[T any](ctx context.Context, s kv.Setter, key string, value *T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("could not gob-encode value for key %q: %w", key, err)
	}
	return s.Set(ctx, key, &buf)
}

// Exists returns true if key is present.
func Exists(ctx context.Context, g kv.Getter, key string) (bool, error) {
	if _, err := g.Get(ctx, key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func GetDB[T any](ctx context.Context, db kv.Database, key string) (value *T, err error) {
	err = kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		value, err = Get[T](ctx, r, key)
		return err
	})
	return value, err
}

func SetDB[T any](ctx context.Context, db kv.Database, key string, value *T) error {
	return kv.WithReadWriter(ctx, db, func(ctx context.Context, rw kv.ReadWriter) error {
		return Set(ctx, rw, key, value)
	})
}

// UpdateFunc receives the current value at a key, which is nil when the key
// doesn't exist, and returns the new value to store.
type UpdateFunc[T any] func(old *T) (*T, error)

// Update performs a read-modify-write of the value at key inside a single
// read-write transaction. It returns true if the key did not exist before.
func Update[T any](ctx context.Context, db kv.Database, key string, fn UpdateFunc[T]) (created bool, err error) {
	update := func(ctx context.Context, rw kv.ReadWriter) error {
		old, err := Get[T](ctx, rw, key)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			old = nil
		}
		created = old == nil
		value, err := fn(old)
		if err != nil {
			return err
		}
		return Set(ctx, rw, key, value)
	}
	if err := kv.WithReadWriter(ctx, db, update); err != nil {
		return false, err
	}
	return created, nil
}

type IterFunc[T any] func(ctx context.Context, key string, value *T) error

// Ascend decodes and visits all values in the key range in ascending order.
func Ascend[T any](ctx context.Context, r kv.Reader, begin, end string, fn IterFunc[T]) error {
	it, err := r.Ascend(ctx, begin, end)
	if err != nil {
		return fmt.Errorf("could not create ascending iterator: %w", err)
	}
	defer kv.Close(it)

	for k, v, err := it.Fetch(ctx, false); err == nil; k, v, err = it.Fetch(ctx, true) {
		value, err := decode[T](k, v)
		if err != nil {
			return err
		}
		if err := fn(ctx, k, value); err != nil {
			return err
		}
	}
	if _, _, err := it.Fetch(ctx, false); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not complete ascend: %w", err)
	}
	return nil
}

func AscendDB[T any](ctx context.Context, db kv.Database, begin, end string, fn IterFunc[T]) error {
	return kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		return Ascend(ctx, r, begin, end, fn)
	})
}

// PathRange returns the key range that covers all keys under a directory.
func PathRange(dir string) (begin, end string) {
	dir = path.Clean(dir)
	if dir == "/" {
		return "", ""
	}
	return dir + "/", dir + string(rune('/'+1))
}
