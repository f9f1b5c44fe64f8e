// Copyright (c) 2025 BVK Chaitanya

package syncmap

import "testing"

func TestMap(t *testing.T) {
	var m Map[string, int]
	if _, ok := m.Load("a"); ok {
		t.Fatalf("want empty map")
	}
	m.Store("b", 2)
	if v, loaded := m.LoadOrStore("a", 1); loaded || v != 1 {
		t.Fatalf("want stored 1, got %d %v", v, loaded)
	}
	if v, loaded := m.LoadOrStore("a", 3); !loaded || v != 1 {
		t.Fatalf("want loaded 1, got %d %v", v, loaded)
	}
	if keys := Keys(&m); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("want [a b], got %v", keys)
	}
	m.Delete("a")
	if _, ok := m.Load("a"); ok {
		t.Fatalf("want deleted key")
	}
}
