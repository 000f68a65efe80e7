package facegate

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/facegate/client-go/auditlog"
)

// Frame is one probe image pulled from a frame source.
type Frame struct {
	// Image is the encoded probe image.
	Image []byte
	// Source is the origin tag recorded in the scan log.
	Source string
}

// FrameSource yields probe frames, typically from a camera or a
// directory of stills. Next returning io.EOF ends the watch cleanly.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// ScanCallback is called after each frame has been scanned and logged.
type ScanCallback func(rec *auditlog.ScanRecord)

// Subscription represents an active subscription that can be
// unsubscribed.
type Subscription interface {
	// Unsubscribe stops the subscription and releases resources.
	Unsubscribe()
}

// internalSubscription implements the Subscription interface.
type internalSubscription struct {
	cancel func()
}

func (s *internalSubscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Watcher scans every frame a source yields and emits the resulting
// scan records to registered callbacks.
//
// A frame that fails to scan is logged and skipped; the watch keeps
// running until the source ends, Stop is called or the client closes.
type Watcher struct {
	client *Client
	source FrameSource

	mu        sync.RWMutex
	callbacks []ScanCallback
	started   bool
	cancel    context.CancelFunc
	err       error

	done chan struct{}
}

// Watch creates a watcher over the given frame source. The watch
// starts when the first callback is registered with OnScan.
func (c *Client) Watch(source FrameSource) *Watcher {
	return &Watcher{
		client:    c,
		source:    source,
		callbacks: make([]ScanCallback, 0),
		done:      make(chan struct{}),
	}
}

// OnScan registers a callback for every completed scan and starts the
// watch if it is not running yet. The returned Subscription removes
// this specific callback; the watch itself keeps running until Stop.
func (w *Watcher) OnScan(callback ScanCallback) Subscription {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	callbackIndex := len(w.callbacks) - 1
	w.mu.Unlock()

	w.start()

	return &internalSubscription{
		cancel: func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			// Mark this callback as nil (don't remove to preserve indices)
			if callbackIndex < len(w.callbacks) {
				w.callbacks[callbackIndex] = nil
			}
		},
	}
}

// start begins the watch loop if not already started.
func (w *Watcher) start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop ends the watch and waits for the loop to exit. Stopping a
// watcher that never started is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-w.done
	}
}

// Wait blocks until the watch ends and returns its terminal error, nil
// when the frame source ended cleanly.
func (w *Watcher) Wait() error {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()

	if started {
		<-w.done
	}
	return w.Err()
}

// Err returns the error that ended the watch, if any.
func (w *Watcher) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	for {
		frame, err := w.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			w.setErr(err)
			return
		}

		rec, err := w.client.Scan(ctx, frame.Image, frame.Source)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, ErrClientClosed) {
				w.setErr(err)
				return
			}
			// One bad frame does not end the watch.
			w.client.logger.Error("frame scan failed",
				"source", frame.Source, "error", err)
			continue
		}
		w.emit(rec)
	}
}

// emit calls all registered callbacks with the new scan record.
func (w *Watcher) emit(rec *auditlog.ScanRecord) {
	w.mu.RLock()
	callbacks := make([]ScanCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	// Low volume expected; spawning per-scan is fine.
	for _, callback := range callbacks {
		if callback != nil {
			go callback(rec)
		}
	}
}
