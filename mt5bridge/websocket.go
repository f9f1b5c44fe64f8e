// Copyright (c) 2025 BVK Chaitanya

package mt5bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/exchange"
	"github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

func (c *Client) websocketURL() string {
	u := c.endpoint("/api/v1/ticks/stream", nil)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.signJWT(http.MethodGet, "/api/v1/ticks/stream")
	if err != nil {
		return nil, fmt.Errorf("could not create jwt token for websocket: %w", err)
	}
	header := http.Header{"Authorization": {"Bearer " + token}}

	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, c.websocketURL(), header)
	if err != nil {
		return nil, fmt.Errorf("could not dial to websocket tick stream: %w", err)
	}
	return conn, nil
}

func readMessage(ctx context.Context, conn *websocket.Conn) (*Message, error) {
	stopc := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, msg, err := conn.ReadMessage()
	if !stop() {
		// The AfterFunc was started. Wait for it to complete, and reset the Conn's
		// deadline.
		<-stopc
		conn.SetReadDeadline(time.Time{})
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("could not read websocket message: %w", err)
	}

	m := new(Message)
	if err := json.Unmarshal(msg, m); err != nil {
		return nil, fmt.Errorf("could not unmarshal websocket message: %w", err)
	}
	if m.Type == "error" {
		return nil, fmt.Errorf("received websocket error message: %s", m.Message)
	}
	return m, nil
}

func (c *Client) getTickTopic(symbol string) *topic.Topic[*exchange.Tick] {
	t, ok := c.tickTopicMap.Load(symbol)
	if !ok {
		t, _ = c.tickTopicMap.LoadOrStore(symbol, topic.New[*exchange.Tick]())
	}
	return t
}

func (c *Client) publish(resp *TickResponse) {
	if resp == nil || !resp.Bid.IsPositive() || !resp.Ask.IsPositive() {
		return
	}
	tick := &exchange.Tick{
		Symbol: resp.Symbol,
		Bid:    resp.Bid,
		Ask:    resp.Ask,
		Time:   resp.Time(),
	}
	c.tickMap.Store(resp.Symbol, tick)
	c.getTickTopic(resp.Symbol).Send(tick)
}

// GetTickUpdates returns a receiver for streamed ticks of a symbol. Symbol
// must be part of a WatchTicks call for the receiver to get any ticks.
func (c *Client) GetTickUpdates(symbol string) (*topic.Receiver[*exchange.Tick], error) {
	return topic.Subscribe(c.getTickTopic(symbol), 1, true)
}

// WatchTicks starts a background goroutine that streams ticks for the symbols
// from the bridge. Streamed ticks are used by LatestTick while they are fresh.
// Websocket is reconnected on failures till the client is closed.
func (c *Client) WatchTicks(symbols []string) {
	symbols = slices.Clone(symbols)
	for _, s := range symbols {
		c.getTickTopic(s)
	}

	dispatch := func(ctx context.Context) error {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.WriteJSON(&Message{Type: "subscribe", Symbols: symbols}); err != nil {
			return fmt.Errorf("could not subscribe to ticks: %w", err)
		}
		slog.Info("subscribed to the bridge tick stream", "symbols", symbols)

		for ctx.Err() == nil {
			msg, err := readMessage(ctx, conn)
			if err != nil {
				return err
			}
			if msg.Type == "tick" {
				c.publish(msg.Tick)
			}
		}
		return context.Cause(ctx)
	}

	c.cg.Go(func(ctx context.Context) {
		for ctx.Err() == nil {
			if err := dispatch(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("tick stream is interrupted (will retry)", "err", err)
				ctxutil.Sleep(ctx, c.opts.WebsocketRetryInterval)
				continue
			}
			break
		}
	})
}
