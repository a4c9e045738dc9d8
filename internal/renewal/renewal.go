// Package renewal supplies fresh CDN URLs for locators whose signature
// has expired, via one of two swappable strategies bound through the
// Policy capability interface.
package renewal

import (
	"context"
	"sync"
	"time"

	"github.com/chunkdrive/chunkdrive/internal/locator"
)

// Policy renews a batch of expired Locators in one call, returning
// freshly-signed ones in the same order with the same
// ChannelID/AttachmentID/Filename and an extended Expire. Batching lets an
// implementation fan the underlying lookups out concurrently under its own
// pacing limit instead of serializing one request per chunk.
type Policy interface {
	Renew(ctx context.Context, locs []locator.Locator) ([]locator.Locator, error)
	Close() error
}

// launchThrottle paces the rate at which concurrent renewal lookups are
// *launched*, independent of how long each one then takes to complete.
// Shared by APIPolicy and SessionPolicy since both fan a batch out under
// the same ~45 req/s ceiling.
type launchThrottle struct {
	mu         sync.Mutex
	interval   time.Duration
	lastLaunch time.Time
}

func newLaunchThrottle(interval time.Duration) *launchThrottle {
	return &launchThrottle{interval: interval}
}

// wait blocks until at least interval has elapsed since the previous call.
func (t *launchThrottle) wait(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	next := t.lastLaunch.Add(t.interval)
	if next.Before(now) {
		next = now
	}
	t.lastLaunch = next
	wait := next.Sub(now)
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// renewBatch fans locs out across goroutines, launching each one no sooner
// than throttle allows, and collects the results back into a slice aligned
// with locs. Every launched lookup runs to completion; if any of them
// failed, the batch returns no locators and the error of the lowest-index
// failure.
func renewBatch(ctx context.Context, locs []locator.Locator, throttle *launchThrottle, renewOne func(context.Context, locator.Locator) (locator.Locator, error)) ([]locator.Locator, error) {
	if len(locs) == 0 {
		return nil, nil
	}

	out := make([]locator.Locator, len(locs))
	errs := make([]error, len(locs))

	var wg sync.WaitGroup
	for i, loc := range locs {
		if err := throttle.wait(ctx); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(i int, loc locator.Locator) {
			defer wg.Done()
			out[i], errs[i] = renewOne(ctx, loc)
		}(i, loc)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
