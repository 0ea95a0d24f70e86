// Package presence counts activity pings per namespace over a trailing window.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/pkg/logger"
	"github.com/okian/ludus/pkg/metrics"
)

// DefaultWindow is the trailing interval an event stays active.
const DefaultWindow = 24 * time.Hour

const streamPrefix = "presence:"

// Counter records presence events and counts the live ones. An event at
// time T is live while T > now - window.
type Counter struct {
	events repository.EventLog
	window time.Duration
	now    func() time.Time
	log    logger.Logger
}

// Option applies a configuration option to the Counter.
type Option func(*Counter)

// WithWindow sets the trailing window length.
func WithWindow(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Counter) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Counter) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a Counter over events.
func New(events repository.EventLog, opts ...Option) *Counter {
	c := &Counter{
		events: events,
		window: DefaultWindow,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the trailing window length.
func (c *Counter) Window() time.Duration { return c.window }

// clock truncates to milliseconds, the resolution every backend stores.
func (c *Counter) clock() time.Time {
	return c.now().Truncate(time.Millisecond)
}

// Record appends a presence event for namespace, drops expired ones and
// returns the live count including the new event.
func (c *Counter) Record(ctx context.Context, namespace string) (int, error) {
	stream := streamPrefix + namespace
	now := c.clock()
	cutoff := now.Add(-c.window)

	id := uuid.NewString()
	if err := c.events.Append(ctx, stream, id, now); err != nil {
		return 0, repository.Wrap("append", stream, id, err)
	}
	if err := c.events.TrimBefore(ctx, stream, cutoff); err != nil {
		return 0, repository.Wrap("trim", stream, "", err)
	}
	n, err := c.events.CountSince(ctx, stream, cutoff)
	if err != nil {
		return 0, repository.Wrap("count", stream, "", err)
	}
	metrics.RecordPresenceEvent(n)
	c.log.Debug(ctx, "presence recorded", logger.String("namespace", namespace), logger.Int("active", n))
	return n, nil
}

// Count returns the live count for namespace without writing.
func (c *Counter) Count(ctx context.Context, namespace string) (int, error) {
	stream := streamPrefix + namespace
	n, err := c.events.CountSince(ctx, stream, c.clock().Add(-c.window))
	if err != nil {
		return 0, repository.Wrap("count", stream, "", err)
	}
	metrics.RecordPresenceQuery(n)
	return n, nil
}
