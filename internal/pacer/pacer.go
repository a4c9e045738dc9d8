// Package pacer implements a small retry/backoff helper shared by the
// Upload Dispatcher and the Expiry Renewal Policy. It is not a generic
// exponential-backoff library: both callers need the specific "server told
// us exactly how long to wait" shape (HTTP 429 + Retry-After), so Call
// exposes that as a first-class retry signal alongside a decaying sleep
// for ordinary transient failures.
package pacer

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMinSleep     = 100 * time.Millisecond
	defaultMaxSleep     = 10 * time.Second
	defaultDecayConst   = 2
	defaultMaxRetries   = 10
)

// Pacer retries calls to a single upstream (one webhook endpoint, or one
// messages-API host), sleeping between attempts. Calls that succeed on
// the first attempt are not delayed.
type Pacer struct {
	mu        sync.Mutex
	minSleep  time.Duration
	maxSleep  time.Duration
	decay     uint
	maxRetry  int
	sleepTime time.Duration
}

// Option configures a Pacer.
type Option func(*Pacer)

// MinSleep sets the floor of the backoff sleep between retries.
func MinSleep(d time.Duration) Option { return func(p *Pacer) { p.minSleep = d } }

// MaxSleep sets the ceiling sleep duration between retries.
func MaxSleep(d time.Duration) Option { return func(p *Pacer) { p.maxSleep = d } }

// DecayConstant controls how quickly the sleep interval shrinks after a
// run of successes; bigger values decay more slowly.
func DecayConstant(c uint) Option { return func(p *Pacer) { p.decay = c } }

// MaxRetries bounds how many times Call will retry a single invocation.
func MaxRetries(n int) Option { return func(p *Pacer) { p.maxRetry = n } }

// New constructs a Pacer with the given options.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		minSleep: defaultMinSleep,
		maxSleep: defaultMaxSleep,
		decay:    defaultDecayConst,
		maxRetry: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sleepTime = p.minSleep
	return p
}

// RetryAfter is returned by a paced function to request a specific sleep
// duration before the next attempt (the HTTP 429 case), instead of the
// Pacer's own decaying backoff.
type RetryAfter struct {
	Wait time.Duration
}

func (RetryAfter) Error() string { return "pacer: retry after explicit wait" }

// Call invokes fn, retrying on transient failure. fn returns (retry, err):
// retry=true with a RetryAfter err sleeps exactly its Wait before trying
// again; retry=true with any other err (including nil) sleeps for the
// Pacer's exponentially growing backoff before trying again; retry=false
// returns err (possibly nil) immediately and decays the backoff toward
// minSleep. After maxRetry retries the last err is returned.
func (p *Pacer) Call(ctx context.Context, fn func() (retry bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetry; attempt++ {
		retry, err := fn()
		if !retry {
			p.mu.Lock()
			p.sleepTime = (p.sleepTime<<p.decay - p.sleepTime) >> p.decay
			if p.sleepTime < p.minSleep {
				p.sleepTime = p.minSleep
			}
			p.mu.Unlock()
			return err
		}
		lastErr = err

		var wait time.Duration
		var ra RetryAfter
		if asRetryAfter(err, &ra) {
			wait = ra.Wait
		} else {
			wait = p.attack()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func asRetryAfter(err error, out *RetryAfter) bool {
	ra, ok := err.(RetryAfter)
	if ok {
		*out = ra
	}
	return ok
}

// attack grows the sleep time after a retry (exponential back-off), bounded
// by maxSleep.
func (p *Pacer) attack() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleepTime *= 2
	if p.sleepTime > p.maxSleep {
		p.sleepTime = p.maxSleep
	}
	if p.sleepTime < p.minSleep {
		p.sleepTime = p.minSleep
	}
	return p.sleepTime
}

// Sleep blocks for d, honoring ctx cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
