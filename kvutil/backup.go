// Copyright (c) 2023 BVK Chaitanya

package kvutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bvk/pipwatch/gobs"
	"github.com/bvkgo/kv"
)

// Export writes all database items as a stream of gob encoded key-values.
func Export(ctx context.Context, r kv.Reader, w io.Writer) error {
	it, err := r.Scan(ctx)
	if err != nil {
		return fmt.Errorf("could not create scanning iterator: %w", err)
	}
	defer kv.Close(it)

	encoder := gob.NewEncoder(w)
	for k, v, err := it.Fetch(ctx, false); err == nil; k, v, err = it.Fetch(ctx, true) {
		data, err := io.ReadAll(v)
		if err != nil {
			return fmt.Errorf("could not read value at key %q: %w", k, err)
		}
		if err := encoder.Encode(&gobs.KeyValue{Key: k, Value: data}); err != nil {
			return fmt.Errorf("could not encode item at key %q: %w", k, err)
		}
	}
	if _, _, err := it.Fetch(ctx, false); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not complete scan: %w", err)
	}
	return nil
}

// Import restores the items written by Export.
func Import(ctx context.Context, r io.Reader, rw kv.ReadWriter) error {
	decoder := gob.NewDecoder(r)
	for {
		var item gobs.KeyValue
		if err := decoder.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not decode backup item: %w", err)
		}
		if err := rw.Set(ctx, item.Key, bytes.NewReader(item.Value)); err != nil {
			return fmt.Errorf("could not restore key %q: %w", item.Key, err)
		}
	}
}

// BackupDB writes a consistent backup of the database into file. Output is
// written to a temporary file first and renamed into place on success.
func BackupDB(ctx context.Context, db kv.Database, file string) (status error) {
	abspath, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("could not determine absolute path: %w", err)
	}

	fp, err := os.CreateTemp(filepath.Dir(abspath), ".backup*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer func() {
		fp.Close()
		if status != nil {
			os.Remove(fp.Name())
		}
	}()

	bw := bufio.NewWriter(fp)
	if err := kv.WithReader(ctx, db, func(ctx context.Context, r kv.Reader) error {
		return Export(ctx, r, bw)
	}); err != nil {
		return fmt.Errorf("could not export db content: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("could not flush backup data: %w", err)
	}
	if err := fp.Sync(); err != nil {
		return fmt.Errorf("could not sync backup file: %w", err)
	}
	if err := os.Rename(fp.Name(), abspath); err != nil {
		return fmt.Errorf("could not rename backup file to %q: %w", abspath, err)
	}
	return nil
}
