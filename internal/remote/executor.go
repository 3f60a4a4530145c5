// Package remote wraps calls against the remote store and auth provider with
// a per-attempt timeout and bounded retry. It holds no business state.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrUnavailable wraps a retryable failure that survived every attempt.
// Callers surface it as a generic "service unavailable" condition, distinct
// from validation and business refusals.
var ErrUnavailable = errors.New("remote service unavailable")

// Config controls executor behavior.
type Config struct {
	Timeout     time.Duration // per-attempt timeout
	MaxAttempts int           // total attempts, including the first
	Backoff     time.Duration // fixed wait between attempts
	PoolSize    int           // bounded worker pool for in-flight calls
}

// DefaultConfig returns the defaults used against the production store.
func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		PoolSize:    5,
	}
}

// Executor runs remote operations on a bounded pool. A stuck call keeps its
// pool slot until the underlying operation returns, but the caller is released
// as soon as the attempt times out.
type Executor struct {
	cfg Config
	sem chan struct{}
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{cfg: cfg, sem: make(chan struct{}, cfg.PoolSize), log: log}
}

// Do executes op, retrying retryable failures up to the configured attempt
// count with a fixed backoff. Non-retryable failures propagate immediately.
// After exhaustion the last failure is returned wrapped in ErrUnavailable.
func (e *Executor) Do(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := e.runOnce(ctx, op)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err
		e.log.Warn("remote call failed, retrying",
			"op", name, "attempt", attempt, "max_attempts", e.cfg.MaxAttempts, "error", err)
		if attempt < e.cfg.MaxAttempts {
			select {
			case <-time.After(e.cfg.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if lastErr == nil {
		return fmt.Errorf("%w: operation never ran", ErrUnavailable)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// runOnce acquires a pool slot and runs op under the per-attempt timeout. The
// slot is released by the operation goroutine itself, so an operation that
// ignores its context cannot be leaked against the caller, only its slot.
func (e *Executor) runOnce(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// Waiting for a pool slot counts against the attempt timeout, so a full
	// pool surfaces as a retryable deadline error instead of blocking forever.
	select {
	case e.sem <- struct{}{}:
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-e.sem }()
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		return attemptCtx.Err()
	}
}

// retryKeywords mirror the failure signals the remote store emits for
// transient conditions.
var retryKeywords = []string{"timeout", "deadline", "unavailable", "connection"}

// Retryable classifies an error as transient. Timeouts and connectivity
// failures retry; not-found, permission and validation errors do not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range retryKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
