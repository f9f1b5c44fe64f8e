// Copyright (c) 2025 BVK Chaitanya

package db

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvmemdb"
)

func TestCleanRestore(t *testing.T) {
	ctx := context.Background()

	src := kvmemdb.New()
	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("/snapshots/2025-01-%02d/EURUSD", i+1)
		if err := kvutil.SetDB(ctx, src, key, &gobs.Snapshot{Symbol: "EURUSD"}); err != nil {
			t.Fatal(err)
		}
	}

	var backup bytes.Buffer
	export := func(ctx context.Context, r kv.Reader) error {
		return kvutil.Export(ctx, r, &backup)
	}
	if err := kv.WithReader(ctx, src, export); err != nil {
		t.Fatal(err)
	}

	dst := kvmemdb.New()
	if err := kvutil.SetDB(ctx, dst, "/stale", &gobs.KeyValue{Key: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := doClean(ctx, dst, 7); err != nil {
		t.Fatal(err)
	}
	n, err := doRestore(ctx, &backup, dst, 7)
	if err != nil {
		t.Fatal(err)
	}
	if n != 25 {
		t.Fatalf("want 25 keys restored, got %d", n)
	}

	exists := func(ctx context.Context, r kv.Reader) error {
		ok, err := kvutil.Exists(ctx, r, "/stale")
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("stale key must be removed")
		}
		return nil
	}
	if err := kv.WithReader(ctx, dst, exists); err != nil {
		t.Fatal(err)
	}
	count := 0
	begin, end := kvutil.PathRange("/snapshots")
	countFn := func(ctx context.Context, key string, v *gobs.Snapshot) error {
		if v.Symbol != "EURUSD" {
			t.Fatalf("key %q: want EURUSD, got %q", key, v.Symbol)
		}
		count++
		return nil
	}
	if err := kvutil.AscendDB(ctx, dst, begin, end, countFn); err != nil {
		t.Fatal(err)
	}
	if count != 25 {
		t.Fatalf("want 25 restored items, got %d", count)
	}
}

func TestRestoreInvalidKey(t *testing.T) {
	ctx := context.Background()

	var backup bytes.Buffer
	if err := gob.NewEncoder(&backup).Encode(&gobs.KeyValue{Key: "relative/key", Value: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if _, err := doRestore(ctx, &backup, kvmemdb.New(), 10); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for a bad key, got %v", err)
	}
}

func TestTypeNameValue(t *testing.T) {
	for _, name := range []string{"Snapshot", "TelegramState", "KeyValue"} {
		if _, err := TypeNameValue(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := TypeNameValue("TraderState"); err == nil {
		t.Fatalf("unknown type name must fail")
	}
}
