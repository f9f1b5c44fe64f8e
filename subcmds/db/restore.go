// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"
)

type Restore struct {
	cmdutil.DBFlags

	numOpsPerTx int

	keepExisting bool
}

func (c *Restore) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("restore", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.IntVar(&c.numOpsPerTx, "num-ops-per-tx", 100, "max number of ops per restore transaction")
	fset.BoolVar(&c.keepExisting, "keep-existing", false, "when true, keys missing in the backup are not deleted")
	return "restore", fset, cli.CmdFunc(c.run)
}

func (c *Restore) Purpose() string {
	return "Restores the database from a backup file"
}

func (c *Restore) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("command takes one (input backup file) argument")
	}
	if c.numOpsPerTx <= 0 {
		return fmt.Errorf("num-ops-per-tx must be positive: %w", os.ErrInvalid)
	}

	fp, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("could not open file %q: %w", args[0], err)
	}
	defer fp.Close()

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return fmt.Errorf("could not get database instance: %w", err)
	}
	defer closer()

	if !c.keepExisting {
		if err := doClean(ctx, db, c.numOpsPerTx); err != nil {
			return fmt.Errorf("could not clear the database: %w", err)
		}
	}
	n, err := doRestore(ctx, bufio.NewReader(fp), db, c.numOpsPerTx)
	if err != nil {
		return fmt.Errorf("could not restore from backup after %d keys: %w", n, err)
	}
	fmt.Fprintf(cli.Stdout(ctx), "restored %d keys\n", n)
	return nil
}

// doClean deletes all keys in the database, at most nops keys per
// transaction.
func doClean(ctx context.Context, db kv.Database, nops int) error {
	for {
		var keys []string
		collect := func(ctx context.Context, r kv.Reader) error {
			it, err := r.Scan(ctx)
			if err != nil {
				return fmt.Errorf("could not create scanning iterator: %w", err)
			}
			defer kv.Close(it)

			for k, _, err := it.Fetch(ctx, false); err == nil && len(keys) < nops; k, _, err = it.Fetch(ctx, true) {
				keys = append(keys, k)
			}
			if _, _, err := it.Fetch(ctx, false); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("iterator fetch has failed: %w", err)
			}
			return nil
		}
		if err := kv.WithReader(ctx, db, collect); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}

		del := func(ctx context.Context, rw kv.ReadWriter) error {
			for _, k := range keys {
				if err := rw.Delete(ctx, k); err != nil {
					return fmt.Errorf("could not delete key %q: %w", k, err)
				}
			}
			return nil
		}
		if err := kv.WithReadWriter(ctx, db, del); err != nil {
			return err
		}
	}
}

// doRestore writes the gob encoded key-values from the reader into the
// database, at most nops keys per transaction. It returns the number of keys
// restored.
func doRestore(ctx context.Context, r io.Reader, db kv.Database, nops int) (int, error) {
	decoder := gob.NewDecoder(r)

	total := 0
	for eof := false; !eof; {
		var items []*gobs.KeyValue
		for len(items) < nops {
			item := new(gobs.KeyValue)
			if err := decoder.Decode(item); err != nil {
				if errors.Is(err, io.EOF) {
					eof = true
					break
				}
				return total, fmt.Errorf("could not decode item from backup file: %w", err)
			}
			if !cmdutil.IsGoodKey(item.Key) {
				return total, fmt.Errorf("backup has an invalid key %q: %w", item.Key, os.ErrInvalid)
			}
			items = append(items, item)
		}
		if len(items) == 0 {
			break
		}

		restore := func(ctx context.Context, rw kv.ReadWriter) error {
			for _, item := range items {
				if err := rw.Set(ctx, item.Key, bytes.NewReader(item.Value)); err != nil {
					return fmt.Errorf("could not restore at key %q: %w", item.Key, err)
				}
			}
			return nil
		}
		if err := kv.WithReadWriter(ctx, db, restore); err != nil {
			return total, err
		}
		total += len(items)
	}
	return total, nil
}
