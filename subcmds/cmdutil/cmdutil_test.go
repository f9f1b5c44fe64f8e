// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/bvk/pipwatch/gobs"
	"github.com/bvk/pipwatch/kvutil"
	"github.com/bvkgo/kv/kvmemdb"
)

func TestPort(t *testing.T) {
	t.Setenv("PIPWATCH_SERVER_PORT", "")
	var cf ClientFlags
	if p := cf.Port(); p != DefaultPort {
		t.Fatalf("want default port %d, got %d", DefaultPort, p)
	}

	t.Setenv("PIPWATCH_SERVER_PORT", "12345")
	if p := cf.Port(); p != 12345 {
		t.Fatalf("want port from env 12345, got %d", p)
	}

	t.Setenv("PIPWATCH_SERVER_PORT", "notaport")
	if p := cf.Port(); p != DefaultPort {
		t.Fatalf("invalid env value must use the default port, got %d", p)
	}

	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	cf.SetFlags(fset)
	if err := fset.Parse([]string{"-connect-port", "2000"}); err != nil {
		t.Fatal(err)
	}
	if p := cf.Port(); p != 2000 {
		t.Fatalf("flag must override the env value, got %d", p)
	}
}

func TestTCPAddr(t *testing.T) {
	sf := ServerFlags{IP: "127.0.0.1", Port: 10000}
	if _, err := sf.TCPAddr(); err != nil {
		t.Fatal(err)
	}
	sf.IP = "localhost"
	if _, err := sf.TCPAddr(); err == nil {
		t.Fatalf("hostnames must be rejected")
	}
	sf = ServerFlags{IP: "127.0.0.1", Port: 70000}
	if _, err := sf.TCPAddr(); err == nil {
		t.Fatalf("out of range port must be rejected")
	}
}

func TestDataFlags(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	var df DataFlags
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	df.SetFlags(fset)
	if err := fset.Parse([]string{"-data-dir", dir}); err != nil {
		t.Fatal(err)
	}

	got, err := df.DataDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Fatalf("want data dir %q, got %q", dir, got)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data directory must be created: %v", err)
	}

	cpath, err := df.ConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "config.yaml"); cpath != want {
		t.Fatalf("want config path %q, got %q", want, cpath)
	}
	spath, err := df.SecretsPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "secrets.json"); spath != want {
		t.Fatalf("want secrets path %q, got %q", want, spath)
	}

	config := []byte("instruments:\n  - symbol: EURUSD\n    pip_difference: 15\ntrade:\n  dry_run: true\n")
	if err := os.WriteFile(cpath, config, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := df.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Instruments) != 1 || cfg.Instruments[0].Symbol != "EURUSD" {
		t.Fatalf("unexpected instruments: %+v", cfg.Instruments)
	}
}

func TestGet(t *testing.T) {
	type response struct {
		Path  string
		Query string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&response{Path: r.URL.Path, Query: r.URL.Query().Get("date")})
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}

	var cf ClientFlags
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	cf.SetFlags(fset)
	if err := fset.Parse([]string{"-connect-host", host, "-connect-port", port}); err != nil {
		t.Fatal(err)
	}

	resp, err := Get[response](context.Background(), &cf, "/api/snapshots", url.Values{"date": {"2025-01-06"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Path != "/api/snapshots" || resp.Query != "2025-01-06" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetDatabaseFromBackup(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "backup.gob")

	src := kvmemdb.New()
	if err := kvutil.SetDB(ctx, src, "/snapshots/2025-01-06/EURUSD", &gobs.Snapshot{Symbol: "EURUSD"}); err != nil {
		t.Fatal(err)
	}
	if err := kvutil.BackupDB(ctx, src, file); err != nil {
		t.Fatal(err)
	}

	var df DBFlags
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	df.SetFlags(fset)
	if err := fset.Parse([]string{"-from-backup", file}); err != nil {
		t.Fatal(err)
	}
	if df.IsRemoteDatabase() {
		t.Fatalf("backup file must not be a remote database")
	}

	db, closer, err := df.GetDatabase(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	v, err := kvutil.GetDB[gobs.Snapshot](ctx, db, "/snapshots/2025-01-06/EURUSD")
	if err != nil {
		t.Fatal(err)
	}
	if v.Symbol != "EURUSD" {
		t.Fatalf("want EURUSD, got %q", v.Symbol)
	}
}

func TestIsGoodKey(t *testing.T) {
	for _, k := range []string{"/a", "/snapshots/2025-01-06/EURUSD"} {
		if !IsGoodKey(k) {
			t.Fatalf("key %q must be good", k)
		}
	}
	for _, k := range []string{"a", "/a/", "/a//b", "/a/../b"} {
		if IsGoodKey(k) {
			t.Fatalf("key %q must be bad", k)
		}
	}
}
