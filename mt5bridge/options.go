// Copyright (c) 2025 BVK Chaitanya

package mt5bridge

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

var BaseURL = "http://127.0.0.1:5000"

type Options struct {
	// BaseURL is the address of the bridge REST service. Websocket endpoint is
	// derived from the same address.
	BaseURL string

	// Timeout to use for the HTTP requests.
	HttpClientTimeout time.Duration

	// RetryCount is the number of times a throttled request is retried.
	RetryCount int

	// RequestsPerSecond limits the request rate to the bridge.
	RequestsPerSecond float64

	// Timeout interval to create a new websocket session after a failure.
	WebsocketRetryInterval time.Duration

	// MaxTickAge is the max age of a streamed tick that can be returned as the
	// latest tick without a REST request.
	MaxTickAge time.Duration

	// Deviation is the max allowed price slippage in points for market deals.
	Deviation int

	// Magic is the expert advisor id attached to all orders.
	Magic int64

	// BreakerFailures is the number of consecutive transient failures that
	// opens the circuit breaker; BreakerTimeout is the open state duration.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func (v *Options) setDefaults() {
	if v.BaseURL == "" {
		v.BaseURL = BaseURL
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 5 * time.Second
	}
	if v.RetryCount == 0 {
		v.RetryCount = 3
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 20
	}
	if v.WebsocketRetryInterval == 0 {
		v.WebsocketRetryInterval = time.Second
	}
	if v.MaxTickAge == 0 {
		v.MaxTickAge = 2 * time.Second
	}
	if v.Deviation == 0 {
		v.Deviation = 20
	}
	if v.Magic == 0 {
		v.Magic = 123456
	}
	if v.BreakerFailures == 0 {
		v.BreakerFailures = 5
	}
	if v.BreakerTimeout == 0 {
		v.BreakerTimeout = 30 * time.Second
	}
}

func (v *Options) Check() error {
	u, err := url.Parse(v.BaseURL)
	if err != nil {
		return fmt.Errorf("could not parse bridge url %q: %w", v.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("bridge url scheme must be http or https: %w", os.ErrInvalid)
	}
	if v.RequestsPerSecond < 0 || v.RetryCount < 0 {
		return fmt.Errorf("bridge request limits cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
