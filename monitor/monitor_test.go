// Copyright (c) 2025 BVK Chaitanya

package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bvk/pipwatch/baseline"
	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/lifecycle"
	"github.com/bvk/pipwatch/paper"
	"github.com/bvk/pipwatch/recorder"
	"github.com/bvk/pipwatch/store"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type scriptFeed struct {
	mu sync.Mutex

	bars  map[string]decimal.Decimal
	ticks []*exchange.Tick

	// block makes LatestTick wait for the context.
	block bool
	err   error
}

func (f *scriptFeed) LatestTick(ctx context.Context, symbol string) (*exchange.Tick, error) {
	f.mu.Lock()
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ticks) == 0 {
		return nil, exchange.ErrUnavailable
	}
	tick := f.ticks[0]
	if len(f.ticks) > 1 {
		f.ticks = f.ticks[1:]
	}
	return tick, nil
}

func (f *scriptFeed) HistoricalClose(ctx context.Context, symbol string, at time.Time) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.bars[at.In(ist).Format(time.DateTime)]
	return v, ok, nil
}

func (f *scriptFeed) IsSessionOpen(ctx context.Context, symbol string) (bool, error) {
	return true, nil
}

func (f *scriptFeed) push(ticks ...*exchange.Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, ticks...)
}

func quote(bid, ask string) *exchange.Tick {
	return &exchange.Tick{Symbol: "EURUSD", Bid: d(bid), Ask: d(ask), Time: time.Now()}
}

type clock struct {
	v atomic.Pointer[time.Time]
}

func (c *clock) set(t time.Time) { c.v.Store(&t) }
func (c *clock) now() time.Time  { return *c.v.Load() }

type testEnv struct {
	feed    *scriptFeed
	gateway *paper.Gateway
	db      store.Store
	clock   *clock
}

func newMonitor(t *testing.T, env *testEnv, symbol string, pips int64) *Monitor {
	t.Helper()
	if env.db == nil {
		env.db = store.NewKV(kvmemdb.New())
	}
	if env.gateway == nil {
		env.gateway = paper.New(nil)
	}
	resolver, err := baseline.New(env.feed, env.db, nil, &baseline.Options{
		Location:         ist,
		CutoffHour:       2,
		FallbackMinute:   30,
		OpenPollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := recorder.New(env.db, nil, ist)
	if err != nil {
		t.Fatal(err)
	}
	opts := &Options{
		PollInterval:          time.Millisecond,
		FeedTimeout:           10 * time.Millisecond,
		BaselineRetryInterval: time.Millisecond,
	}
	m, err := New(Instrument{Symbol: symbol, PipDifference: pips}, env.feed, env.gateway, resolver, rec, nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	m.now = env.clock.now
	return m
}

func waitFor(t *testing.T, m *Monitor, f func(s *Status) bool) *Status {
	t.Helper()
	for i := 0; i < 500; i++ {
		if s := m.Status(); f(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("monitor did not reach the expected status; last status %+v", m.Status())
	return nil
}

func runMonitor(m *Monitor) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx)
	}()
	return cancel, errCh
}

func TestOpenCloseCycle(t *testing.T) {
	env := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
		}},
		clock: new(clock),
	}
	env.clock.set(time.Date(2025, 1, 7, 5, 0, 0, 0, ist))
	env.feed.push(
		quote("1.1003", "1.1005"),
		quote("1.1013", "1.1015"), // up crossing opens a buy
		quote("1.1014", "1.1030"), // second up crossing closes it
	)

	m := newMonitor(t, env, "EURUSD", 15)
	cancel, errCh := runMonitor(m)

	s := waitFor(t, m, func(s *Status) bool { return s.Up != nil && s.Up.Crossings() == 2 })
	if !s.Trade.IsFlat() {
		t.Fatalf("want flat trade status after the second crossing, got %v", s.Trade)
	}
	if s.Down.Crossings() != 0 {
		t.Fatalf("want no down crossings, got %v", s.Down.Thresholds)
	}

	history := env.gateway.History()
	if len(history) != 2 || history[0].Direction != exchange.Up || history[1].Direction != exchange.Down {
		t.Fatalf("want a buy followed by a closing sell, got %v", history)
	}

	snap, err := env.db.Get(context.Background(), "EURUSD", "2025-01-07")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Thresholds) != 3 || !snap.Thresholds[2].Equal(d("1.1030")) {
		t.Fatalf("want thresholds [1.1000 1.1015 1.1030], got %v", snap.Thresholds)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("want context canceled, got %v", err)
	}
	if s := m.Status(); s.State != Terminated {
		t.Fatalf("want terminated state, got %s", s.State)
	}
}

func TestOppositeCrossingKeepsPosition(t *testing.T) {
	env := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
		}},
		clock: new(clock),
	}
	env.clock.set(time.Date(2025, 1, 7, 5, 0, 0, 0, ist))
	env.feed.push(
		quote("1.1013", "1.1015"), // opens up
		quote("1.0985", "1.1005"), // down crossing is recorded only
	)

	m := newMonitor(t, env, "EURUSD", 15)
	cancel, errCh := runMonitor(m)
	defer func() {
		cancel()
		<-errCh
	}()

	s := waitFor(t, m, func(s *Status) bool { return s.Down != nil && s.Down.Crossings() == 1 })
	if s.Trade.OpenDirection != exchange.Up || s.Trade.ThresholdCount != 1 {
		t.Fatalf("want open up position with count 1, got %v", s.Trade)
	}
	if n := len(env.gateway.Positions("EURUSD")); n != 1 {
		t.Fatalf("want one open position, got %d", n)
	}

	snap, err := env.db.Get(context.Background(), "EURUSD", "2025-01-07")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Direction != "down" || !snap.PreviousThreshold.Equal(d("1.0985")) {
		t.Fatalf("want down crossing in the snapshot, got %+v", snap)
	}
}

func TestDayBoundary(t *testing.T) {
	env := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
			"2025-01-08 02:00:00": d("1.1010"),
		}},
		clock: new(clock),
	}
	env.clock.set(time.Date(2025, 1, 7, 5, 0, 0, 0, ist))
	env.feed.push(quote("1.1013", "1.1015")) // opens up on the first day

	m := newMonitor(t, env, "EURUSD", 15)
	cancel, errCh := runMonitor(m)
	defer func() {
		cancel()
		<-errCh
	}()

	waitFor(t, m, func(s *Status) bool { return s.Up != nil && s.Up.Crossings() == 1 })

	env.clock.set(time.Date(2025, 1, 8, 5, 0, 0, 0, ist))
	s := waitFor(t, m, func(s *Status) bool {
		return s.State == Tracking && s.Baseline != nil && s.Baseline.Date == "2025-01-08"
	})
	if !s.Baseline.StartPrice.Equal(d("1.101")) {
		t.Fatalf("want new day baseline 1.101, got %s", s.Baseline.StartPrice)
	}
	if s.Trade.OpenDirection != exchange.Up || s.Trade.ThresholdCount != 1 {
		t.Fatalf("want open up position to carry over the new day, got %v", s.Trade)
	}
	if n := len(env.gateway.Positions("EURUSD")); n != 1 {
		t.Fatalf("want one open position on the new day, got %d", n)
	}

	env.feed.push(quote("1.1023", "1.1025")) // first up crossing of the new day
	s = waitFor(t, m, func(s *Status) bool {
		return s.Baseline != nil && s.Baseline.Date == "2025-01-08" && s.Up != nil && s.Up.Crossings() == 1
	})
	if !s.Trade.IsFlat() {
		t.Fatalf("want the carried position closed by the next up crossing, got %v", s.Trade)
	}
	if n := len(env.gateway.Positions("EURUSD")); n != 0 {
		t.Fatalf("want no open positions, got %d", n)
	}
	history := env.gateway.History()
	if len(history) != 2 || history[0].Direction != exchange.Up || history[1].Direction != exchange.Down {
		t.Fatalf("want a buy on the first day and a closing sell on the next, got %v", history)
	}
}

func TestCrossingPairInSamePoll(t *testing.T) {
	env := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
		}},
		clock: new(clock),
	}
	env.clock.set(time.Date(2025, 1, 7, 5, 0, 0, 0, ist))
	env.feed.push(
		quote("1.1015", "1.1015"), // up opens a buy
		quote("1.0985", "1.0985"), // up moves -30 and closes, then down opens a sell
	)

	m := newMonitor(t, env, "EURUSD", 15)
	cancel, errCh := runMonitor(m)
	defer func() {
		cancel()
		<-errCh
	}()

	s := waitFor(t, m, func(s *Status) bool { return s.Down != nil && s.Down.Crossings() == 2 })
	if s.Up.Crossings() != 2 {
		t.Fatalf("want two up crossings, got %v", s.Up.Thresholds)
	}
	if s.Trade.OpenDirection != exchange.Down || s.Trade.ThresholdCount != 1 {
		t.Fatalf("want open down position with count 1, got %v", s.Trade)
	}
	history := env.gateway.History()
	if len(history) != 3 || history[0].Direction != exchange.Up || history[1].Direction != exchange.Down || history[2].Direction != exchange.Down {
		t.Fatalf("want buy, closing sell and a new sell, got %v", history)
	}
	if n := len(env.gateway.Positions("EURUSD")); n != 1 {
		t.Fatalf("want one open position, got %d", n)
	}
}

func TestDeferredBaseline(t *testing.T) {
	env := &testEnv{feed: new(scriptFeed), clock: new(clock)}
	// Tuesday before the cutoff.
	env.clock.set(time.Date(2025, 1, 7, 1, 0, 0, 0, ist))

	m := newMonitor(t, env, "EURUSD", 15)
	cancel, errCh := runMonitor(m)

	s := waitFor(t, m, func(s *Status) bool { return s.LastError != "" })
	if s.State != AwaitingBaseline || !strings.Contains(s.LastError, "deferred") {
		t.Fatalf("want deferred baseline, got %+v", s)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop promptly")
	}
}

func TestFeedTimeout(t *testing.T) {
	env := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
		}, block: true},
		clock: new(clock),
	}
	env.clock.set(time.Date(2025, 1, 7, 5, 0, 0, 0, ist))

	m := newMonitor(t, env, "EURUSD", 15)
	cancel, errCh := runMonitor(m)
	defer func() {
		cancel()
		<-errCh
	}()

	s := waitFor(t, m, func(s *Status) bool { return s.State == Tracking && s.LastError != "" })
	if !strings.Contains(s.LastError, exchange.ErrTransient.Error()) {
		t.Fatalf("want transient error, got %q", s.LastError)
	}
}

func TestSupervisorIsolation(t *testing.T) {
	good := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
		}},
		clock: new(clock),
	}
	good.clock.set(time.Date(2025, 1, 7, 5, 0, 0, 0, ist))
	good.feed.push(quote("1.1003", "1.1005"))

	bad := &testEnv{
		feed: &scriptFeed{bars: map[string]decimal.Decimal{
			"2025-01-07 02:00:00": d("1.1000"),
		}, err: exchange.ErrFatal},
		clock: good.clock,
	}

	m1 := newMonitor(t, good, "EURUSD", 15)
	m2 := newMonitor(t, bad, "GBPUSD", 20)

	if _, err := NewSupervisor(m1, m1); err == nil {
		t.Fatalf("want error for duplicate symbols")
	}
	s, err := NewSupervisor(m1, m2)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()

	waitFor(t, m2, func(s *Status) bool { return s.State == Terminated })
	if st := m1.Status(); st.State == Terminated {
		t.Fatalf("fatal error in one monitor must not stop the others")
	}

	cancel()
	err = <-errCh
	if !errors.Is(err, exchange.ErrFatal) || !strings.Contains(err.Error(), "GBPUSD") {
		t.Fatalf("want fatal error from GBPUSD monitor, got %v", err)
	}
	if st := s.Statuses(); len(st) != 2 || st[0].State != Terminated {
		t.Fatalf("want all monitors terminated, got %v", st)
	}
	if _, ok := s.Monitor("gbpusd"); !ok {
		t.Fatalf("want case insensitive monitor lookup")
	}
}

func TestLifecycleOptions(t *testing.T) {
	env := &testEnv{feed: new(scriptFeed), clock: new(clock)}
	env.clock.set(time.Now())
	env.db = store.NewKV(kvmemdb.New())
	resolver, _ := baseline.New(env.feed, env.db, nil, nil)
	rec, _ := recorder.New(env.db, nil, ist)

	opts := &Options{Lifecycle: lifecycle.Options{Volume: d("-1")}}
	if _, err := New(Instrument{Symbol: "EURUSD", PipDifference: 15}, env.feed, paper.New(nil), resolver, rec, nil, opts); err == nil {
		t.Fatalf("want error for negative volume")
	}
	if _, err := New(Instrument{Symbol: "EURUSD"}, env.feed, paper.New(nil), resolver, rec, nil, nil); err == nil {
		t.Fatalf("want error for zero pip difference")
	}
}
