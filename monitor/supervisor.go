// Copyright (c) 2025 BVK Chaitanya

package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
)

// Supervisor runs one goroutine per monitor. Monitors share no mutable state;
// an error in one monitor never stops the others.
type Supervisor struct {
	monitors []*Monitor
}

func NewSupervisor(monitors ...*Monitor) (*Supervisor, error) {
	seen := make(map[string]bool)
	for _, m := range monitors {
		if seen[m.Symbol()] {
			return nil, fmt.Errorf("symbol %q is configured more than once: %w", m.Symbol(), os.ErrExist)
		}
		seen[m.Symbol()] = true
	}
	s := &Supervisor{
		monitors: slices.Clone(monitors),
	}
	return s, nil
}

// Run starts all monitors and waits for them to finish. Returns the joined
// errors of monitors that terminated before the context was canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(s.monitors))

	for i, m := range s.monitors {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := m.Run(ctx)
			if ctx.Err() == nil {
				slog.Error("monitor terminated", "symbol", m.Symbol(), "err", err)
				errs[i] = fmt.Errorf("monitor for %s: %w", m.Symbol(), err)
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}

func (s *Supervisor) Monitor(symbol string) (*Monitor, bool) {
	for _, m := range s.monitors {
		if strings.EqualFold(m.Symbol(), symbol) {
			return m, true
		}
	}
	return nil, false
}

// Statuses returns latest status of all monitors in configuration order.
func (s *Supervisor) Statuses() []*Status {
	var statuses []*Status
	for _, m := range s.monitors {
		statuses = append(statuses, m.Status())
	}
	return statuses
}
