// Package poller waits for an asynchronously judged submission to settle.
//
// A Poller performs at most MaxAttempts sequential fetches, sleeping a fixed
// interval between them, and reports either the terminal value or a Timeout.
// Fetch errors consume attempts like any other non-terminal observation.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 30
	DefaultInterval    = 2000 * time.Millisecond
)

// FetchFunc reads the current state of the tracked item.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Kind tells how a poll sequence ended.
type Kind int

const (
	// Terminal means the fetched value reached a final state.
	Terminal Kind = iota
	// Timeout means the attempt budget ran out while still non-terminal.
	Timeout
	// Canceled means the caller abandoned the sequence.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Terminal:
		return "terminal"
	case Timeout:
		return "timeout"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome is the single logical result of a poll sequence.
type Outcome[T any] struct {
	Kind     Kind
	Attempts int
	// Last is the most recent successfully fetched value; HasLast is false when
	// every attempt failed.
	Last    T
	HasLast bool
	// LastErr is the error of the final attempt, if it failed.
	LastErr error
}

// Config controls the attempt budget.
type Config struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	Interval    time.Duration `yaml:"interval"`
}

// Normalize fills zero or negative fields with defaults.
func (c Config) Normalize() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Budget is the total time a Poll spends sleeping when no attempt is terminal.
func (c Config) Budget() time.Duration {
	c = c.Normalize()
	return time.Duration(c.MaxAttempts-1) * c.Interval
}

// AttemptHook observes every attempt, e.g. for logging.
type AttemptHook[T any] func(attempt int, value T, err error)

// Poller tracks exactly one item. It holds no state between Poll calls.
type Poller[T any] struct {
	fetch      FetchFunc[T]
	isTerminal func(T) bool
	cfg        Config
	sleep      SleepFunc
	onAttempt  AttemptHook[T]
	factory    func() retry.Backoff
}

// Option configures a Poller.
type Option[T any] func(*Poller[T])

// WithConfig sets the attempt budget.
func WithConfig[T any](cfg Config) Option[T] {
	return func(p *Poller[T]) { p.cfg = cfg.Normalize() }
}

// WithSleep replaces the inter-attempt delay, typically with a fake clock.
func WithSleep[T any](sleep SleepFunc) Option[T] {
	return func(p *Poller[T]) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithAttemptHook registers an observer called after every fetch.
func WithAttemptHook[T any](hook AttemptHook[T]) Option[T] {
	return func(p *Poller[T]) { p.onAttempt = hook }
}

// New creates a Poller. isTerminal decides when fetching stops.
func New[T any](fetch FetchFunc[T], isTerminal func(T) bool, opts ...Option[T]) *Poller[T] {
	p := &Poller[T]{
		fetch:      fetch,
		isTerminal: isTerminal,
		cfg:        Config{}.Normalize(),
		sleep:      Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	cfg := p.cfg
	p.factory = func() retry.Backoff {
		b := retry.NewConstant(cfg.Interval)
		return retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), b)
	}
	return p
}

// Poll fetches until a terminal value, budget exhaustion or cancellation.
// Cancellation is only observed at attempt boundaries.
func (p *Poller[T]) Poll(ctx context.Context) Outcome[T] {
	var out Outcome[T]
	backoff := p.factory()

	for {
		if err := ctx.Err(); err != nil {
			out.Kind = Canceled
			out.LastErr = err
			return out
		}

		out.Attempts++
		value, err := p.fetch(ctx)
		out.LastErr = err
		if err == nil {
			out.Last = value
			out.HasLast = true
		}
		if p.onAttempt != nil {
			p.onAttempt(out.Attempts, value, err)
		}
		if err == nil && p.isTerminal(value) {
			out.Kind = Terminal
			return out
		}

		delay, stop := backoff.Next()
		if stop {
			out.Kind = Timeout
			return out
		}
		if err := p.sleep(ctx, delay); err != nil {
			out.Kind = Canceled
			if out.LastErr == nil {
				out.LastErr = err
			}
			return out
		}
	}
}

// Sleep is the default SleepFunc: a timer raced against ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ErrTimeout is returned by Err for Timeout outcomes.
var ErrTimeout = errors.New("still processing after attempt budget was exhausted")

// Err converts a non-terminal outcome into an error.
func (o Outcome[T]) Err() error {
	switch o.Kind {
	case Terminal:
		return nil
	case Timeout:
		return ErrTimeout
	default:
		if o.LastErr != nil {
			return o.LastErr
		}
		return context.Canceled
	}
}
