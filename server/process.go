// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"os"
	"time"

	"github.com/bvk/pipwatch/api"
	"github.com/shirou/gopsutil/v4/process"
)

// processStats returns resource usage of the current process. Unavailable
// stats are left as zero values.
func processStats(ctx context.Context, start time.Time) *api.Process {
	stats := &api.Process{
		PID:       int32(os.Getpid()),
		StartTime: start,
		Uptime:    time.Since(start).Truncate(time.Second).String(),
	}
	p, err := process.NewProcessWithContext(ctx, stats.PID)
	if err != nil {
		return stats
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		stats.StartTime = time.UnixMilli(ms)
	}
	if v, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = v
	}
	if mem, err := p.MemoryInfo(); err == nil {
		stats.RSS = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		stats.NumThreads = n
	}
	if n, err := p.NumFDs(); err == nil {
		stats.NumFDs = n
	}
	return stats
}
