// Copyright (c) 2023 BVK Chaitanya

package httputil

import (
	"fmt"
	"os"
	"time"
)

type Options struct {
	// ServerCheckTimeout holds the http client timeout when checking for the
	// http server initialization.
	ServerCheckTimeout time.Duration

	// ServerCheckRetryInterval holds the amount of time to wait to check for
	// the http server readiness.
	ServerCheckRetryInterval time.Duration

	// ReadHeaderTimeout bounds the time to read request headers.
	ReadHeaderTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.ServerCheckTimeout == 0 {
		v.ServerCheckTimeout = 10 * time.Second
	}
	if v.ServerCheckRetryInterval == 0 {
		v.ServerCheckRetryInterval = 100 * time.Millisecond
	}
	if v.ReadHeaderTimeout == 0 {
		v.ReadHeaderTimeout = 10 * time.Second
	}
}

func (v *Options) Check() error {
	if v.ServerCheckTimeout < 0 || v.ServerCheckRetryInterval < 0 || v.ReadHeaderTimeout < 0 {
		return fmt.Errorf("http server timeouts cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
