package segcache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// worker is the synchronous, timeout-bounded façade over one asynchronous
// cache provider. All calls happen on the manager goroutine; the worker
// only awaits futures, it never mutates shared state.
type worker struct {
	name     string
	cache    provider.SegmentCache
	timeouts Timeouts
	limiter  *rate.Limiter
	logger   *Logger
}

func newWorker(name string, cache provider.SegmentCache, t Timeouts, limiter *rate.Limiter, logger *Logger) *worker {
	return &worker{
		name:     name,
		cache:    cache,
		timeouts: t.withDefaults(),
		limiter:  limiter,
		logger:   logger.WithProvider(name),
	}
}

// Get fetches the body for header. A nil body means not found.
func (w *worker) Get(header *segment.Header) (segment.Body, error) {
	body, err := w.cache.Get(header).AwaitTimeout(w.timeouts.Read)
	if err != nil {
		return nil, w.translate("get", w.timeouts.Read, err)
	}
	return body, nil
}

// Contains reports whether the provider holds a body for header.
func (w *worker) Contains(header *segment.Header) (bool, error) {
	ok, err := w.cache.Contains(header).AwaitTimeout(w.timeouts.Lookup)
	if err != nil {
		return false, w.translate("contains", w.timeouts.Lookup, err)
	}
	return ok, nil
}

// Put stores a body. Throttled when a put rate limit is configured.
func (w *worker) Put(header *segment.Header, body segment.Body) error {
	if w.limiter != nil {
		_ = w.limiter.Wait(context.Background())
	}
	ok, err := w.cache.Put(header, body).AwaitTimeout(w.timeouts.Write)
	if err != nil {
		return w.translate("put", w.timeouts.Write, err)
	}
	if !ok {
		return &ProviderError{Op: "put", cause: errors.New("provider declined the segment")}
	}
	return nil
}

// Remove deletes the entry for header.
func (w *worker) Remove(header *segment.Header) (bool, error) {
	ok, err := w.cache.Remove(header).AwaitTimeout(w.timeouts.Write)
	if err != nil {
		return false, w.translate("remove", w.timeouts.Write, err)
	}
	return ok, nil
}

// SegmentHeaders lists every header in the provider.
func (w *worker) SegmentHeaders() ([]*segment.Header, error) {
	hs, err := w.cache.SegmentHeaders().AwaitTimeout(w.timeouts.Scan)
	if err != nil {
		return nil, w.translate("scan", w.timeouts.Scan, err)
	}
	return hs, nil
}

func (w *worker) translate(op string, budget time.Duration, err error) error {
	if errors.Is(err, future.ErrAwaitTimeout) {
		return &TimeoutError{Op: op, Budget: budget}
	}
	return &ProviderError{Op: op, cause: err}
}
