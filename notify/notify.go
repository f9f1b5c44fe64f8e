// Copyright (c) 2025 BVK Chaitanya

// Package notify delivers human readable alerts to one or more sinks without
// blocking the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/pipwatch/ctxutil"
	"github.com/bvk/pipwatch/metrics"
)

// Sink is a notification destination, like a telegram chat or a pushover
// device.
type Sink interface {
	SendMessage(ctx context.Context, at time.Time, text string) error
}

type message struct {
	at   time.Time
	text string
}

type Options struct {
	// QueueSize is the number of messages buffered before new messages are
	// dropped.
	QueueSize int

	// SendTimeout bounds the delivery time to each sink.
	SendTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.QueueSize == 0 {
		v.QueueSize = 100
	}
	if v.SendTimeout == 0 {
		v.SendTimeout = 30 * time.Second
	}
}

// Queue is a Sink that fans out messages to other sinks from a background
// goroutine. SendMessage never blocks; messages are dropped with a warning
// when the queue is full.
type Queue struct {
	cg ctxutil.CloseGroup

	opts Options

	sinks []Sink

	msgCh chan *message
}

var _ Sink = &Queue{}

func NewQueue(opts *Options, sinks ...Sink) *Queue {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	q := &Queue{
		opts:  *opts,
		sinks: sinks,
		msgCh: make(chan *message, opts.QueueSize),
	}
	q.cg.Go(q.goDeliver)
	return q
}

// Close stops the delivery goroutine. Queued messages that are not yet
// delivered are discarded.
func (q *Queue) Close() error {
	q.cg.Close()
	return nil
}

func (q *Queue) SendMessage(ctx context.Context, at time.Time, text string) error {
	if err := context.Cause(q.cg.Context()); err != nil {
		return err
	}
	select {
	case q.msgCh <- &message{at: at, text: text}:
		return nil
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		slog.Warn("notification queue is full (message is dropped)", "text", text)
		return nil
	}
}

// Sendf is a helper to format and enqueue a message with the current time.
func (q *Queue) Sendf(ctx context.Context, format string, args ...any) error {
	return q.SendMessage(ctx, time.Now(), fmt.Sprintf(format, args...))
}

func (q *Queue) goDeliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-q.msgCh:
			q.deliver(ctx, m)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, m *message) {
	for _, s := range q.sinks {
		sctx, scancel := context.WithTimeout(ctx, q.opts.SendTimeout)
		err := s.SendMessage(sctx, m.at, m.text)
		scancel()

		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			metrics.Notifications.WithLabelValues("failed").Inc()
			slog.Warn("could not send notification (ignored)", "err", err)
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
	}
}

// Log is a Sink that only writes messages to the log.
type Log struct{}

func (Log) SendMessage(ctx context.Context, at time.Time, text string) error {
	slog.Info("notification", "at", at.Format(time.DateTime), "text", text)
	return nil
}
