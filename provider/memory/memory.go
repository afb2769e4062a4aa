// Package memory provides an in-memory segment cache. It is the reference
// provider implementation and the default for tests and single-node
// deployments.
package memory

import (
	"reflect"
	"sync"

	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/provider"
	"github.com/hupe1980/segcache/segment"
)

func init() {
	provider.Register("memory", func() (provider.SegmentCache, error) {
		return New(), nil
	})
}

type entry struct {
	header *segment.Header
	body   segment.Body
}

// Cache is an in-memory segment cache keyed by header unique ID.
//
// The manager guarantees single-goroutine access, but the mutex makes the
// cache independently safe so tests can drive it directly.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	listeners []provider.Listener
	tornDown  bool
}

var _ provider.SegmentCache = (*Cache)(nil)

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get returns the body stored for header, or nil if absent.
func (c *Cache) Get(header *segment.Header) *future.Future[segment.Body] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tornDown {
		return future.Failed[segment.Body](provider.ErrTornDown)
	}
	e, ok := c.entries[header.UniqueID()]
	if !ok {
		return future.Completed[segment.Body](nil)
	}
	return future.Completed(e.body)
}

// Contains reports whether a body is stored for header.
func (c *Cache) Contains(header *segment.Header) *future.Future[bool] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tornDown {
		return future.Failed[bool](provider.ErrTornDown)
	}
	_, ok := c.entries[header.UniqueID()]
	return future.Completed(ok)
}

// Put stores a body under header and fires a local entry-created event.
func (c *Cache) Put(header *segment.Header, body segment.Body) *future.Future[bool] {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return future.Failed[bool](provider.ErrTornDown)
	}
	c.entries[header.UniqueID()] = entry{header: header, body: body}
	ls := c.snapshotListeners()
	c.mu.Unlock()

	fire(ls, provider.Event{Type: provider.EntryCreated, Source: header, Local: true})
	return future.Completed(true)
}

// Remove deletes the entry for header and fires a local entry-deleted
// event when something was removed.
func (c *Cache) Remove(header *segment.Header) *future.Future[bool] {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return future.Failed[bool](provider.ErrTornDown)
	}
	_, found := c.entries[header.UniqueID()]
	delete(c.entries, header.UniqueID())
	ls := c.snapshotListeners()
	c.mu.Unlock()

	if found {
		fire(ls, provider.Event{Type: provider.EntryDeleted, Source: header, Local: true})
	}
	return future.Completed(found)
}

// SegmentHeaders lists every header present.
func (c *Cache) SegmentHeaders() *future.Future[[]*segment.Header] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tornDown {
		return future.Failed[[]*segment.Header](provider.ErrTornDown)
	}
	out := make([]*segment.Header, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.header)
	}
	return future.Completed(out)
}

// AddListener attaches l.
func (c *Cache) AddListener(l provider.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener detaches l.
func (c *Cache) RemoveListener(l provider.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := reflect.TypeOf(l)
	for i, x := range c.listeners {
		var same bool
		switch {
		case t == nil || reflect.TypeOf(x) != t:
		case t.Kind() == reflect.Func:
			// Func listeners such as provider.ListenerFunc are not
			// comparable with ==; they match by code pointer.
			same = reflect.ValueOf(x).Pointer() == reflect.ValueOf(l).Pointer()
		case t.Comparable():
			same = x == l
		}
		if same {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// SupportsRichIndex reports true: headers are kept intact.
func (c *Cache) SupportsRichIndex() bool { return true }

// TearDown drops all entries; subsequent operations fail.
func (c *Cache) TearDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.listeners = nil
	c.tornDown = true
}

func (c *Cache) snapshotListeners() []provider.Listener {
	ls := make([]provider.Listener, len(c.listeners))
	copy(ls, c.listeners)
	return ls
}

func fire(ls []provider.Listener, e provider.Event) {
	for _, l := range ls {
		l.Handle(e)
	}
}
