// Copyright (c) 2023 BVK Chaitanya

package idgen

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestIDGen(t *testing.T) {
	seed := "EURUSD/2025-01-07"

	g1 := New(seed, 0)
	ids := make(map[uint64]uuid.UUID)
	for i := 0; i < 20; i++ {
		offset := g1.Offset()
		ids[offset] = g1.NextID()
	}

	g2 := New(seed, 5)
	for i := 5; i < 20; i++ {
		if want, got := ids[uint64(i)], g2.NextID(); want != got {
			t.Fatalf("offset %d: want %v, got %v", i, want, got)
		}
	}

	seen := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %v", id)
		}
		seen[id] = true
		if id.Version() != 3 {
			t.Fatalf("want version 3 uuid, got %d", id.Version())
		}
	}
}

func TestIDGenAt(t *testing.T) {
	g := New(t.Name(), 0)
	offset := uint64(rand.Intn(100))
	want := g.At(offset)
	for g.Offset() < offset {
		g.NextID()
	}
	if got := g.NextID(); got != want {
		t.Fatalf("want %v, got %v", want, got)
	}
	if New("a", 0).NextID() == New("b", 0).NextID() {
		t.Fatalf("different seeds must produce different ids")
	}
}
