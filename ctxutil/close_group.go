// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"os"
	"sync"
	"time"
)

// CloseGroup runs background goroutines that are stopped together. Zero value
// is ready to use.
type CloseGroup struct {
	closeCtx  context.Context
	causeFunc context.CancelCauseFunc

	wg sync.WaitGroup

	once sync.Once
}

func (cg *CloseGroup) init() {
	cg.closeCtx, cg.causeFunc = context.WithCancelCause(context.Background())
}

// Close cancels the group context with os.ErrClosed and waits for all
// goroutines to return.
func (cg *CloseGroup) Close() {
	cg.once.Do(cg.init)
	cg.causeFunc(os.ErrClosed)
	cg.wg.Wait()
}

func (cg *CloseGroup) Context() context.Context {
	cg.once.Do(cg.init)
	return cg.closeCtx
}

func (cg *CloseGroup) Go(f func(ctx context.Context)) {
	cg.once.Do(cg.init)

	cg.wg.Add(1)
	go func() {
		defer cg.wg.Done()
		f(cg.closeCtx)
	}()
}

// GoEvery runs f immediately and then after every interval till the group is
// closed.
func (cg *CloseGroup) GoEvery(interval time.Duration, f func(ctx context.Context)) {
	cg.Go(func(ctx context.Context) {
		for ctx.Err() == nil {
			f(ctx)
			Sleep(ctx, interval)
		}
	})
}
