// Copyright (c) 2025 BVK Chaitanya

// Package mt5bridge implements the price feed and the order gateway over a
// MetaTrader 5 REST and websocket bridge.
package mt5bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/exchange"
	"github.com/bvk/pipwatch/syncmap"
	"github.com/sony/gobreaker"
	"github.com/visvasity/topic"
	"golang.org/x/time/rate"

	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

type Client struct {
	cg ctxutil.CloseGroup

	opts Options

	baseURL *url.URL

	login  string
	signer jose.Signer

	client *http.Client

	limiter *rate.Limiter

	breaker *gobreaker.CircuitBreaker

	tickMap      syncmap.Map[string, *exchange.Tick]
	tickTopicMap syncmap.Map[string, *topic.Topic[*exchange.Tick]]
}

var (
	_ exchange.Feed    = &Client{}
	_ exchange.Gateway = &Client{}
)

// New creates a client for the bridge. Requests are authenticated with short
// lived HS256 tokens signed with the shared secret.
func New(login, secret string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if len(login) == 0 || len(secret) == 0 {
		return nil, fmt.Errorf("bridge login and secret are required: %w", os.ErrInvalid)
	}
	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse bridge url: %w", err)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		slog.Error("could not create go-jose.v2 pkg signer", "err", err)
		return nil, err
	}

	c := &Client{
		opts:    *opts,
		baseURL: baseURL,
		login:   login,
		signer:  signer,
		client: &http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mt5bridge",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("bridge circuit breaker state changed", "name", name, "from", from, "to", to)
		},
		// Only transport and server side failures count against the bridge.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, exchange.ErrTransient)
		},
	})
	return c, nil
}

// Close stops the websocket goroutines and closes all tick topics.
func (c *Client) Close() error {
	c.cg.Close()
	for _, t := range c.tickTopicMap.Range {
		t.Close()
	}
	return nil
}

func (c *Client) signJWT(method, path string) (string, error) {
	now := time.Now()
	cl := struct {
		*jwt.Claims
		URI string `json:"uri"`
	}{
		Claims: &jwt.Claims{
			Subject:   c.login,
			Issuer:    "pipwatch",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(2 * time.Minute)),
		},
		URI: strings.TrimSpace(method + " " + path),
	}
	return jwt.Signed(c.signer).Claims(cl).CompactSerialize()
}

func (c *Client) endpoint(path string, values url.Values) *url.URL {
	u := c.baseURL.JoinPath(path)
	if values != nil {
		u.RawQuery = values.Encode()
	}
	return u
}

// classify maps http status codes to the error taxonomy.
func classify(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var eresp ErrorResponse
	if err := json.Unmarshal(body, &eresp); err == nil && eresp.Message != "" {
		msg = eresp.Message
	}

	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("bridge returned %d (%s): %w", code, msg, exchange.ErrUnavailable)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("bridge returned %d (%s): %w", code, msg, exchange.ErrFatal)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("bridge returned %d (%s): %w", code, msg, exchange.ErrTransient)
	}
	return fmt.Errorf("bridge returned %d (%s)", code, msg)
}

func isThrottled(err error) bool {
	return errors.Is(err, exchange.ErrTransient) && strings.Contains(err.Error(), "returned 429")
}

func (c *Client) doOnce(ctx context.Context, method string, u *url.URL, payload []byte, result any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("could not create http request: %w", err)
	}
	token, err := c.signJWT(method, u.Path)
	if err != nil {
		return fmt.Errorf("could not create signed jwt token: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		var nerr net.Error
		if errors.As(err, &nerr) || errors.Is(err, io.EOF) {
			return fmt.Errorf("could not perform http %s request: %w: %w", method, exchange.ErrTransient, err)
		}
		return fmt.Errorf("could not perform http %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response body: %w: %w", exchange.ErrTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return classify(resp.StatusCode, data)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		slog.Error("could not decode response to json", "url", u.Path, "err", err)
		return fmt.Errorf("could not decode bridge response: %w", err)
	}
	return nil
}

// do performs the request through the circuit breaker and retries throttled
// requests.
func (c *Client) do(ctx context.Context, method string, u *url.URL, request, result any) error {
	var payload []byte
	if request != nil {
		data, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("could not marshal request body to json: %w", err)
		}
		payload = data
	}

	var err error
	for i := 0; i <= c.opts.RetryCount; i++ {
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.doOnce(ctx, method, u, payload, result)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("bridge is not available: %w: %w", exchange.ErrTransient, err)
		}
		if !isThrottled(err) {
			break
		}
		slog.Warn("bridge request is throttled (will retry)", "method", method, "path", u.Path)
		ctxutil.Sleep(ctx, time.Second)
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
	}
	return err
}

func (c *Client) getJSON(ctx context.Context, u *url.URL, result any) error {
	return c.do(ctx, http.MethodGet, u, nil, result)
}

func (c *Client) postJSON(ctx context.Context, u *url.URL, request, result any) error {
	return c.do(ctx, http.MethodPost, u, request, result)
}

// BreakerState returns the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
