// Package rate paces calls to remote mail stores.
package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates outbound store calls so remote servers are not flooded.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Wait waits on l, treating a nil limiter as unlimited.
func Wait(ctx context.Context, l Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

// TokenBucket releases a fixed number of tokens per second and holds at most
// burst of them.
type TokenBucket struct {
	ticker *time.Ticker
	tokens chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

// NewTokenBucket returns a limiter that releases rps tokens per second with a
// burst of one second's worth of tokens.
func NewTokenBucket(rps int) *TokenBucket {
	return NewTokenBucketBurst(rps, rps)
}

// NewTokenBucketBurst returns a limiter releasing rps tokens per second that
// starts full with burst tokens.
func NewTokenBucketBurst(rps, burst int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	tb := &TokenBucket{
		ticker: time.NewTicker(time.Second / time.Duration(rps)),
		tokens: make(chan struct{}, burst),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for range burst {
		tb.tokens <- struct{}{}
	}
	go tb.refill()
	return tb
}

func (t *TokenBucket) refill() {
	defer close(t.done)
	for {
		select {
		case <-t.quit:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop releases the ticker and its refill goroutine. It must be called once.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.quit)
	<-t.done
}

var _ Limiter = (*TokenBucket)(nil)
