// Copyright (c) 2025 BVK Chaitanya

package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/tracker"
	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	opens  []*exchange.OrderRequest
	closes []string

	err error
}

func (g *fakeGateway) OpenPosition(ctx context.Context, req *exchange.OrderRequest) (*exchange.OrderResult, error) {
	g.opens = append(g.opens, req)
	if g.err != nil {
		return nil, g.err
	}
	return &exchange.OrderResult{
		OrderID:       "1",
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Direction:     req.Direction,
		Volume:        req.Volume,
	}, nil
}

func (g *fakeGateway) CloseAllPositions(ctx context.Context, symbol string) ([]*exchange.OrderResult, error) {
	g.closes = append(g.closes, symbol)
	if g.err != nil {
		return nil, g.err
	}
	return []*exchange.OrderResult{{OrderID: "2", Symbol: symbol}}, nil
}

func event(symbol string, d exchange.Direction) *tracker.Event {
	return &tracker.Event{
		Symbol:        symbol,
		Direction:     d,
		CurrentPrice:  decimal.RequireFromString("1.1015"),
		PipDifference: 15,
		Time:          time.Now(),
	}
}

func TestNext(t *testing.T) {
	s, a := Next(Status{}, exchange.Up)
	if a != ActionOpen || s.OpenDirection != exchange.Up || s.ThresholdCount != 1 {
		t.Fatalf("flat+up: got %v %v", s, a)
	}
	s2, a := Next(s, exchange.Down)
	if a != ActionNone || s2 != s {
		t.Fatalf("open-up+down: got %v %v", s2, a)
	}
	s3, a := Next(s, exchange.Up)
	if a != ActionClose || !s3.IsFlat() || s3.ThresholdCount != 0 {
		t.Fatalf("open-up+up: got %v %v", s3, a)
	}
	s4, a := Next(s3, exchange.Up)
	if a != ActionOpen || s4.OpenDirection != exchange.Up || s4.ThresholdCount != 1 {
		t.Fatalf("position must reopen after close: got %v %v", s4, a)
	}
}

// TestInterleavings checks the status invariants for random event sequences.
func TestInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		var s Status
		for j := 0; j < 50; j++ {
			d := exchange.Directions[rng.Intn(2)]
			before := s
			next, action := Next(s, d)
			if err := next.Check(); err != nil {
				t.Fatalf("invariant failed after %v + %s: %v", before, d, err)
			}
			if action == ActionClose && before.ThresholdCount+1 != 2 {
				t.Fatalf("close happened at threshold count %d", before.ThresholdCount+1)
			}
			if next.IsFlat() && !before.IsFlat() && action != ActionClose {
				t.Fatalf("status became flat without a close action")
			}
			s = next
		}
	}
}

func TestMachineOpenClose(t *testing.T) {
	ctx := context.Background()
	gw := new(fakeGateway)
	m, err := NewMachine("EURUSD", gw, nil)
	if err != nil {
		t.Fatal(err)
	}

	out, err := m.Apply(ctx, event("EURUSD", exchange.Up))
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != ActionOpen || len(gw.opens) != 1 {
		t.Fatalf("want one open order, got %v / %d", out.Action, len(gw.opens))
	}
	if req := gw.opens[0]; req.Direction != exchange.Up || !req.Volume.Equal(decimal.RequireFromString("0.1")) || !req.Price.Equal(decimal.RequireFromString("1.1015")) {
		t.Fatalf("unexpected order request %#v", req)
	}
	if s := m.Status(); s.OpenDirection != exchange.Up || s.ThresholdCount != 1 {
		t.Fatalf("want open-up(1), got %v", s)
	}

	// Opposite direction crossing is ignored.
	out, err = m.Apply(ctx, event("EURUSD", exchange.Down))
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != ActionNone || m.Status().ThresholdCount != 1 {
		t.Fatalf("opposite direction must not change status, got %v", m.Status())
	}

	out, err = m.Apply(ctx, event("EURUSD", exchange.Up))
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != ActionClose || len(gw.closes) != 1 || !m.Status().IsFlat() {
		t.Fatalf("want close and flat status, got %v %v", out.Action, m.Status())
	}
}

func TestMachineGatewayFailure(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{err: errors.New("rejected")}
	m, err := NewMachine("EURUSD", gw, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Apply(ctx, event("EURUSD", exchange.Down)); !errors.Is(err, exchange.ErrInconsistent) {
		t.Fatalf("want inconsistent error, got %v", err)
	}
	if s := m.Status(); s.OpenDirection != exchange.Down || s.ThresholdCount != 1 {
		t.Fatalf("status must not be rolled back, got %v", s)
	}
}

func TestMachineClientOrderIDs(t *testing.T) {
	ctx := context.Background()

	gw1, gw2 := new(fakeGateway), new(fakeGateway)
	m1, _ := NewMachine("EURUSD", gw1, nil)
	m2, _ := NewMachine("EURUSD", gw2, nil)
	m1.SetSeed("2025-01-07")
	m2.SetSeed("2025-01-07")
	if _, err := m1.Apply(ctx, event("EURUSD", exchange.Up)); err != nil {
		t.Fatal(err)
	}
	if _, err := m2.Apply(ctx, event("EURUSD", exchange.Up)); err != nil {
		t.Fatal(err)
	}
	if gw1.opens[0].ClientOrderID != gw2.opens[0].ClientOrderID {
		t.Fatalf("client order ids must be deterministic for the same day")
	}
}

func TestMachineSetSeedKeepsStatus(t *testing.T) {
	ctx := context.Background()

	gw := new(fakeGateway)
	m, _ := NewMachine("EURUSD", gw, nil)
	m.SetSeed("2025-01-07")
	if _, err := m.Apply(ctx, event("EURUSD", exchange.Up)); err != nil {
		t.Fatal(err)
	}
	m.SetSeed("2025-01-08")
	if s := m.Status(); s.OpenDirection != exchange.Up || s.ThresholdCount != 1 {
		t.Fatalf("status must carry over a new seed, got %v", s)
	}
	out, err := m.Apply(ctx, event("EURUSD", exchange.Up))
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != ActionClose || len(gw.closes) != 1 || !m.Status().IsFlat() {
		t.Fatalf("want close on the second crossing after a new seed, got %+v", out)
	}
}

func TestMachineRejectsOtherSymbol(t *testing.T) {
	m, _ := NewMachine("EURUSD", new(fakeGateway), nil)
	if _, err := m.Apply(context.Background(), event("USDJPY", exchange.Up)); err == nil {
		t.Fatalf("want error for foreign symbol")
	}
}
