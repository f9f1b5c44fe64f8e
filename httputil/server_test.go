// Copyright (c) 2025 BVK Chaitanya

package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"testing"
)

func TestServer(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
	id, err := s.StartTCP(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if addr.Port == 0 {
		t.Fatalf("want port to be updated")
	}

	s.AddHandler("/value", JSONHandler(func(r *http.Request) (map[string]int, error) {
		if r.URL.Query().Get("missing") != "" {
			return nil, fmt.Errorf("no value: %w", os.ErrNotExist)
		}
		return map[string]int{"value": 1}, nil
	}))

	resp, err := http.Get(fmt.Sprintf("http://%s/value", addr))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if m["value"] != 1 {
		t.Fatalf("want value 1, got %v", m)
	}

	resp, err = http.Get(fmt.Sprintf("http://%s/value?missing=1", addr))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}

	if !s.RemoveHandler("/value") || s.RemoveHandler("/value") {
		t.Fatalf("handler must be removed exactly once")
	}
	if err := s.Stop(id); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(id); err == nil {
		t.Fatalf("want error for stopped server")
	}
}
