// Copyright (c) 2025 BVK Chaitanya

package kvutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
)

type item struct {
	Name  string
	Count int
}

func TestGetSetUpdate(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()

	if _, err := GetDB[item](ctx, db, "/items/a"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want os.ErrNotExist, got %v", err)
	}
	if err := SetDB(ctx, db, "/items/a", &item{Name: "a", Count: 1}); err != nil {
		t.Fatal(err)
	}

	inc := func(old *item) (*item, error) {
		if old == nil {
			return &item{Name: "b", Count: 1}, nil
		}
		old.Count++
		return old, nil
	}
	if created, err := Update(ctx, db, "/items/a", inc); err != nil || created {
		t.Fatalf("want update of existing key, got created=%v err=%v", created, err)
	}
	if created, err := Update(ctx, db, "/items/b", inc); err != nil || !created {
		t.Fatalf("want new key, got created=%v err=%v", created, err)
	}

	v, err := GetDB[item](ctx, db, "/items/a")
	if err != nil {
		t.Fatal(err)
	}
	if v.Count != 2 {
		t.Fatalf("want count 2, got %d", v.Count)
	}

	var names []string
	begin, end := PathRange("/items")
	collect := func(ctx context.Context, key string, v *item) error {
		names = append(names, v.Name)
		return nil
	}
	if err := AscendDB(ctx, db, begin, end, collect); err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("want [a b], got %v", names)
	}
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	db := kvmemdb.New()
	if err := SetDB(ctx, db, "/items/x", &item{Name: "x"}); err != nil {
		t.Fatal(err)
	}

	file := filepath.Join(t.TempDir(), "backup.gob")
	if err := BackupDB(ctx, db, file); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}

	restored := kvmemdb.New()
	if err := kv.WithReadWriter(ctx, restored, func(ctx context.Context, rw kv.ReadWriter) error {
		return Import(ctx, bytes.NewReader(data), rw)
	}); err != nil {
		t.Fatal(err)
	}
	v, err := GetDB[item](ctx, restored, "/items/x")
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "x" {
		t.Fatalf("want x, got %q", v.Name)
	}
}
