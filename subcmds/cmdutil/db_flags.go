// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/bvk/pipwatch/kvutil"
	"github.com/bvkgo/kv"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
)

// DBFlags select the database for the db commands. Database is one of an
// in-memory copy of a backup file, a local badger directory or the remote
// database of a running daemon.
type DBFlags struct {
	ClientFlags

	dbURLPath string

	dbDir string

	fromBackup string

	backupBefore string
	backupAfter  string
}

func (f *DBFlags) SetFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dbDir, "db-dir", "", "Path to a local database directory; daemon must not be running")

	fset.StringVar(&f.fromBackup, "from-backup", "", "Path to a database backup file")

	f.ClientFlags.SetFlags(fset)
	fset.StringVar(&f.dbURLPath, "db-url-path", "/db", "path to db api handler")

	fset.StringVar(&f.backupBefore, "backup-before", "", "Path to a file to receive db backup before cmd is run")
	fset.StringVar(&f.backupAfter, "backup-after", "", "Path to a file to receive db backup after cmd is run")
}

func (f *DBFlags) dbCloser(db kv.Database, c io.Closer) func() {
	return func() {
		if len(f.backupAfter) != 0 {
			if err := kvutil.BackupDB(context.Background(), db, f.backupAfter); err != nil {
				slog.Warn("could not take db backup after it is used (ignored)", "err", err)
			}
		}
		if c != nil {
			c.Close()
		}
	}
}

// IsGoodKey returns true for absolute and clean database keys.
func IsGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}

// IsRemoteDatabase returns true if target database is a remote database over
// http.
func (f *DBFlags) IsRemoteDatabase() bool {
	return f.fromBackup == "" && f.dbDir == ""
}

func (f *DBFlags) GetDatabase(ctx context.Context) (db kv.Database, closer func(), status error) {
	defer func() {
		if status == nil && len(f.backupBefore) != 0 {
			if err := kvutil.BackupDB(ctx, db, f.backupBefore); err != nil {
				closer()
				db, closer, status = nil, nil, fmt.Errorf("could not take a db backup before it is used: %w", err)
			}
		}
	}()

	if len(f.fromBackup) != 0 {
		fp, err := os.Open(f.fromBackup)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open file %q: %w", f.fromBackup, err)
		}
		defer fp.Close()

		mdb := kvmemdb.New()
		restore := func(ctx context.Context, rw kv.ReadWriter) error {
			return kvutil.Import(ctx, bufio.NewReader(fp), rw)
		}
		if err := kv.WithReadWriter(ctx, mdb, restore); err != nil {
			return nil, nil, fmt.Errorf("could not restore in-memory db from backup: %w", err)
		}
		return mdb, f.dbCloser(mdb, nil), nil
	}

	if len(f.dbDir) != 0 {
		bdb, err := badger.Open(badger.DefaultOptions(f.dbDir))
		if err != nil {
			return nil, nil, fmt.Errorf("could not open the database: %w", err)
		}
		db := kvbadger.New(bdb, IsGoodKey)
		return db, f.dbCloser(db, bdb), nil
	}

	addrURL := f.ClientFlags.AddressURL()
	addrURL.Path = path.Join(addrURL.Path, f.dbURLPath)
	db = kvhttp.New(addrURL, f.ClientFlags.HttpClient())
	return db, f.dbCloser(db, nil), nil
}
