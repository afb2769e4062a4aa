package segcache

import (
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/index"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

// message is either a command (paired with a response) or an event
// (fire and forget).
type message interface{ isMessage() }

type command struct {
	id       uint64
	shutdown bool
	fn       func(m *Manager) (any, error)
}

func (command) isMessage() {}

type (
	loadSucceededEvent struct {
		seg  *segment.Segment
		body segment.Body
	}
	loadFailedEvent struct {
		seg   *segment.Segment
		cause error
	}
	segmentAddEvent struct {
		header *segment.Header
		body   segment.Body // may be nil
	}
	externalCreatedEvent struct{ header *segment.Header }
	externalDeletedEvent struct{ header *segment.Header }
)

func (loadSucceededEvent) isMessage()   {}
func (loadFailedEvent) isMessage()      {}
func (segmentAddEvent) isMessage()      {}
func (externalCreatedEvent) isMessage() {}
func (externalDeletedEvent) isMessage() {}

// Manager is the segment cache actor. One dedicated goroutine owns the
// index, the locally known bodies, and all provider dispatch; callers
// interact through commands and events on a bounded FIFO.
//
// Create one Manager per server instance and release it with Close.
type Manager struct {
	logger           *Logger
	workers          []*worker
	densityThreshold float64

	queue     chan message
	responses *respQueue
	nextID    atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}

	// Owned by the loop goroutine.
	ix      *index.Index
	bodies  map[string]segment.Body
	waiters map[string][]*future.Future[segment.Body]
}

// New creates and starts a Manager.
func New(opts ...Option) (*Manager, error) {
	o := options{
		logger:           NoopLogger(),
		densityThreshold: segment.DefaultDensityThreshold,
		queueSize:        DefaultEventQueueSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.providers) == 0 && o.providerName != "" {
		p, err := provider.Open(o.providerName)
		if err != nil {
			return nil, err
		}
		o.providers = append(o.providers, p)
	}

	m := &Manager{
		logger:           o.logger,
		densityThreshold: o.densityThreshold,
		queue:            make(chan message, o.queueSize),
		responses:        newRespQueue(o.queueSize),
		done:             make(chan struct{}),
		bodies:           make(map[string]segment.Body),
		waiters:          make(map[string][]*future.Future[segment.Body]),
	}

	var limiter *rate.Limiter
	if o.putRate > 0 {
		burst := o.putBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(o.putRate, burst)
	}
	for i, p := range o.providers {
		m.workers = append(m.workers, newWorker(fmt.Sprintf("provider-%d", i), p, o.timeouts, limiter, o.logger))
	}

	ready := make(chan struct{})
	go m.loop(ready, o)
	<-ready

	// Provider listeners translate remote entry transitions into manager
	// events. Handlers only enqueue; they never block on provider state.
	for _, p := range o.providers {
		p.AddListener(provider.ListenerFunc(m.handleProviderEvent))
	}
	return m, nil
}

func (m *Manager) handleProviderEvent(e provider.Event) {
	if e.Local {
		// Our own mutations are already reflected in the index.
		return
	}
	switch e.Type {
	case provider.EntryCreated:
		_ = m.ExternalSegmentCreated(e.Source)
	case provider.EntryDeleted:
		_ = m.ExternalSegmentDeleted(e.Source)
	}
}

// loop is the actor body. The index is created here so that its goroutine
// ownership check binds to the loop.
func (m *Manager) loop(ready chan<- struct{}, o options) {
	ixOpts := []index.Option{index.WithEvictionSeed(o.evictionSeed + 1)}
	if o.maxIndexHeaders > 0 {
		ixOpts = append(ixOpts, index.WithMaxHeaders(o.maxIndexHeaders))
	}
	m.ix = index.New(ixOpts...)
	close(ready)

	for msg := range m.queue {
		switch t := msg.(type) {
		case command:
			val, err := t.fn(m)
			m.responses.put(response{id: t.id, val: val, err: err})
			if t.shutdown {
				m.drainAndExit()
				return
			}
		default:
			// Event errors must not kill the loop: log and continue.
			if err := m.handleEvent(msg); err != nil {
				m.logger.Error("event failed", "error", err)
			}
		}
	}
}

// drainAndExit rejects whatever arrived behind the shutdown command so no
// command caller is left blocked on the response queue.
func (m *Manager) drainAndExit() {
	drain := func() {
		for {
			select {
			case msg := <-m.queue:
				if c, ok := msg.(command); ok {
					m.responses.put(response{id: c.id, err: ErrClosed})
				}
			default:
				return
			}
		}
	}
	drain()
	close(m.done)
	drain()
}

func (m *Manager) handleEvent(msg message) error {
	switch t := msg.(type) {
	case loadSucceededEvent:
		return m.installSegment(t.seg.Header(), t.body)
	case loadFailedEvent:
		m.failWaiters(t.seg.Header(), t.cause)
		return nil
	case segmentAddEvent:
		if t.body == nil {
			_, err := m.ix.Add(t.header)
			return err
		}
		return m.installSegment(t.header, t.body)
	case externalCreatedEvent:
		_, err := m.ix.Add(t.header)
		return err
	case externalDeletedEvent:
		delete(m.bodies, t.header.UniqueID())
		return m.ix.Remove(t.header)
	default:
		return fmt.Errorf("segcache: unknown message %T", msg)
	}
}

// installSegment makes a loaded segment visible: index it, remember its
// body, wake waiters, and push the body out to every provider. Provider
// failures are recoverable; the index is not rolled back and external
// consistency is eventual.
func (m *Manager) installSegment(header *segment.Header, body segment.Body) error {
	if _, err := m.ix.Add(header); err != nil {
		m.failWaiters(header, err)
		return err
	}
	uid := header.UniqueID()
	m.bodies[uid] = body
	for _, f := range m.waiters[uid] {
		f.Complete(body)
	}
	delete(m.waiters, uid)

	for _, w := range m.workers {
		if err := w.Put(header, body); err != nil {
			w.logger.Error("segment write failed", "segment", uid, "error", err)
		}
	}
	return nil
}

func (m *Manager) failWaiters(header *segment.Header, cause error) {
	uid := header.UniqueID()
	for _, f := range m.waiters[uid] {
		f.Fail(cause)
	}
	delete(m.waiters, uid)
}

// send enqueues a message, failing fast when the manager is closed.
func (m *Manager) send(msg message) error {
	if m.closed.Load() {
		return ErrClosed
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.queue <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

func (m *Manager) execute(fn func(m *Manager) (any, error)) (any, error) {
	id := m.nextID.Add(1)
	if err := m.send(command{id: id, fn: fn}); err != nil {
		return nil, err
	}
	return m.responses.take(id)
}

// Execute runs fn on the manager goroutine with exclusive access to the
// index, blocking until the result is available.
func Execute[T any](m *Manager, fn func(ix *index.Index) (T, error)) (T, error) {
	val, err := m.execute(func(m *Manager) (any, error) {
		return fn(m.ix)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return val.(T), nil
}

// Close shuts the manager down: the loop processes everything already
// queued, answers the terminal command, and exits; then every provider is
// torn down concurrently. Close is idempotent.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	id := m.nextID.Add(1)
	select {
	case m.queue <- command{id: id, shutdown: true, fn: func(*Manager) (any, error) {
		return "shutdown succeeded", nil
	}}:
		_, _ = m.responses.take(id)
	case <-m.done:
	}

	var g errgroup.Group
	for _, w := range m.workers {
		g.Go(func() error {
			w.cache.TearDown()
			return nil
		})
	}
	return g.Wait()
}

// LoadSucceeded tells the cache that a SQL worker completed loading a
// segment, providing its body. Called by SQL workers; fire and forget.
func (m *Manager) LoadSucceeded(seg *segment.Segment, body segment.Body) error {
	return m.send(loadSucceededEvent{seg: seg, body: body})
}

// LoadFailed tells the cache that an attempt to load a segment failed.
// Waiters are signalled; the index is untouched.
func (m *Manager) LoadFailed(seg *segment.Segment, cause error) error {
	return m.send(loadFailedEvent{seg: seg, cause: cause})
}

// SegmentAdd admits a header into the index; when body is non-nil it is
// also written to every provider.
func (m *Manager) SegmentAdd(header *segment.Header, body segment.Body) error {
	return m.send(segmentAddEvent{header: header, body: body})
}

// ExternalSegmentCreated records that a remote node announced a segment.
// The body stays remote until needed.
func (m *Manager) ExternalSegmentCreated(header *segment.Header) error {
	return m.send(externalCreatedEvent{header: header})
}

// ExternalSegmentDeleted records that a remote node dropped a segment.
func (m *Manager) ExternalSegmentDeleted(header *segment.Header) error {
	return m.send(externalDeletedEvent{header: header})
}

// Locate returns the indexed headers whose predicates admit the request.
func (m *Manager) Locate(req index.Request) ([]*segment.Header, error) {
	return Execute(m, func(ix *index.Index) ([]*segment.Header, error) {
		return ix.Locate(req)
	})
}

// FindRollupCandidates returns groups of headers the request could be
// rolled up from.
func (m *Manager) FindRollupCandidates(req index.Request) ([][]*segment.Header, error) {
	return Execute(m, func(ix *index.Index) ([][]*segment.Header, error) {
		return ix.FindRollupCandidates(req)
	})
}

// IntersectRegion returns the headers whose cells overlap the region.
func (m *Manager) IntersectRegion(prov segment.Provenance, region []segment.Column) ([]*segment.Header, error) {
	return Execute(m, func(ix *index.Index) ([]*segment.Header, error) {
		return ix.IntersectRegion(prov, region)
	})
}

// FlushRegion invalidates every segment overlapping the region: affected
// headers leave the index and every provider. The flushed headers are
// returned. Provider removals that fail are logged; the flush itself is
// not rolled back.
func (m *Manager) FlushRegion(prov segment.Provenance, region []segment.Column) ([]*segment.Header, error) {
	return Execute(m, func(ix *index.Index) ([]*segment.Header, error) {
		affected, err := ix.IntersectRegion(prov, region)
		if err != nil {
			return nil, err
		}
		for _, h := range affected {
			if err := ix.Remove(h); err != nil {
				return nil, err
			}
			delete(m.bodies, h.UniqueID())
			for _, w := range m.workers {
				if _, err := w.Remove(h); err != nil {
					w.logger.Error("segment remove failed", "segment", h.UniqueID(), "error", err)
				}
			}
		}
		return affected, nil
	})
}

// WatchLoad returns a future resolved when a segment with h's identity
// finishes loading. If the body is already known the future resolves
// immediately.
func (m *Manager) WatchLoad(h *segment.Header) (*future.Future[segment.Body], error) {
	return Execute(m, func(*index.Index) (*future.Future[segment.Body], error) {
		uid := h.UniqueID()
		if body, ok := m.bodies[uid]; ok {
			return future.Completed(body), nil
		}
		f := future.New[segment.Body]()
		m.waiters[uid] = append(m.waiters[uid], f)
		return f, nil
	})
}

// RollupFromCache answers a cell request of a dimensionality the cache has
// no exact segment for, by rolling up a higher-dimensional segment. The
// first candidate whose body can be fetched (locally, then from the
// providers) wins; the result is indexed, remembered and written out.
// Returns nil header when no candidate can serve the request: absence is a
// normal result.
func (m *Manager) RollupFromCache(req index.Request, agg segment.Aggregator) (*segment.Header, segment.Body, error) {
	type pair struct {
		header *segment.Header
		body   segment.Body
	}
	res, err := m.execute(func(m *Manager) (any, error) {
		groups, err := m.ix.FindRollupCandidates(req)
		if err != nil {
			return nil, err
		}
		keep := make([]string, 0, len(req.Coords))
		for expr := range req.Coords {
			keep = append(keep, expr)
		}
		for _, group := range groups {
			inputs := make([]segment.RollupInput, 0, len(group))
			for _, h := range group {
				body := m.fetchBody(h)
				if body == nil {
					break
				}
				inputs = append(inputs, segment.RollupInput{Header: h, Body: body})
			}
			if len(inputs) != len(group) {
				continue
			}
			header, body, err := segment.Rollup(inputs, keep, req.BitKey, agg, m.densityThreshold)
			if err != nil {
				return nil, err
			}
			if err := m.installSegment(header, body); err != nil {
				return nil, err
			}
			return pair{header: header, body: body}, nil
		}
		return pair{}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	p := res.(pair)
	return p.header, p.body, nil
}

// fetchBody resolves a header's body from local memory first, then from
// the providers in order. Runs on the loop goroutine.
func (m *Manager) fetchBody(h *segment.Header) segment.Body {
	if body, ok := m.bodies[h.UniqueID()]; ok {
		return body
	}
	for _, w := range m.workers {
		body, err := w.Get(h)
		if err != nil {
			w.logger.Error("segment read failed", "segment", h.UniqueID(), "error", err)
			continue
		}
		if body != nil {
			m.bodies[h.UniqueID()] = body
			return body
		}
	}
	return nil
}

// LoadProviderHeaders scans every provider and admits the discovered
// headers into the index, returning how many were new. Useful at startup
// to warm the index from a shared cache. Providers without a rich index
// are skipped: their headers do not round-trip and cannot be trusted as
// key material.
func (m *Manager) LoadProviderHeaders() (int, error) {
	return Execute(m, func(ix *index.Index) (int, error) {
		added := 0
		for _, w := range m.workers {
			if !w.cache.SupportsRichIndex() {
				continue
			}
			headers, err := w.SegmentHeaders()
			if err != nil {
				w.logger.Error("segment scan failed", "error", err)
				continue
			}
			for _, h := range headers {
				ok, err := ix.Add(h)
				if err != nil {
					return added, err
				}
				if ok {
					added++
				}
			}
		}
		return added, nil
	})
}

// CacheState writes a diagnostic dump of the index.
func (m *Manager) CacheState(w io.Writer) error {
	_, err := Execute(m, func(ix *index.Index) (struct{}, error) {
		return struct{}{}, ix.CacheState(w)
	})
	return err
}
