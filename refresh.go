package facegate

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

const (
	RefreshInitialInterval   = 1 * time.Minute
	RefreshMaxBackoff        = 30 * time.Minute
	RefreshBackoffMultiplier = 1.5
	RefreshJitterFactor      = 0.3
)

// SyncCallback is called after a refresh cycle that rebuilt the gallery.
type SyncCallback func(report *EnrollReport)

// Refresher keeps the local gallery current with the enrollment profile.
// Each cycle runs Enroll: an unchanged profile is cheap and backs the
// interval off toward RefreshMaxBackoff, a changed profile triggers a
// full re-enroll and resets it. Failed cycles retry with the same
// backoff.
type Refresher struct {
	client   *Client
	interval time.Duration

	mu        sync.RWMutex
	callbacks []SyncCallback
	started   bool
	cancel    context.CancelFunc
	err       error

	done chan struct{}
}

// Refresh creates a refresher that re-enrolls at the given base
// interval. Zero or negative means RefreshInitialInterval. The loop
// runs once Start is called.
func (c *Client) Refresh(interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = RefreshInitialInterval
	}
	return &Refresher{
		client:    c,
		interval:  interval,
		callbacks: make([]SyncCallback, 0),
		done:      make(chan struct{}),
	}
}

// OnSync registers a callback for every cycle that changed the gallery.
// The returned Subscription removes this specific callback.
func (r *Refresher) OnSync(callback SyncCallback) Subscription {
	r.mu.Lock()
	r.callbacks = append(r.callbacks, callback)
	callbackIndex := len(r.callbacks) - 1
	r.mu.Unlock()

	return &internalSubscription{
		cancel: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			// Mark this callback as nil (don't remove to preserve indices)
			if callbackIndex < len(r.callbacks) {
				r.callbacks[callbackIndex] = nil
			}
		},
	}
}

// Start begins the refresh loop. The first cycle runs immediately.
// Starting a running refresher is a no-op.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop ends the refresh loop and waits for it to exit. Stopping a
// refresher that never started is a no-op.
func (r *Refresher) Stop() {
	r.mu.Lock()
	started := r.started
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-r.done
	}
}

// Wait blocks until the loop ends and returns its terminal error, nil
// after a clean Stop.
func (r *Refresher) Wait() error {
	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()

	if started {
		<-r.done
	}
	return r.Err()
}

// Err returns the error that ended the loop, if any.
func (r *Refresher) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Refresher) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)

	interval := r.interval
	for {
		report, err := r.client.Enroll(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, ErrClientClosed), errors.Is(err, ErrNoExtractor):
			r.setErr(err)
			return
		case err != nil:
			// On error, back off and retry
			r.client.logger.Warn("gallery refresh failed", "error", err)
			interval = nextRefreshInterval(interval)
		case report.AlreadyCurrent:
			interval = nextRefreshInterval(interval)
		default:
			interval = r.interval
			r.emit(report)
		}

		if !r.sleep(ctx, interval) {
			return
		}
	}
}

// sleep waits for the interval plus jitter. It returns false when the
// context ends first.
func (r *Refresher) sleep(ctx context.Context, interval time.Duration) bool {
	// Add jitter to prevent thundering herd
	jitter := time.Duration(rand.Float64() * RefreshJitterFactor * float64(interval))

	select {
	case <-ctx.Done():
		return false
	case <-time.After(interval + jitter):
		return true
	}
}

func nextRefreshInterval(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * RefreshBackoffMultiplier)
	if next > RefreshMaxBackoff {
		next = RefreshMaxBackoff
	}
	return next
}

// emit calls all registered callbacks with the enrollment report.
func (r *Refresher) emit(report *EnrollReport) {
	r.mu.RLock()
	callbacks := make([]SyncCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	// Low volume expected; spawning per-sync is fine.
	for _, callback := range callbacks {
		if callback != nil {
			go callback(report)
		}
	}
}
