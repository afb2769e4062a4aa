// Package provider defines the pluggable external segment cache contract.
//
// A provider stores segment bodies keyed by their headers, typically in a
// process-external medium shared between nodes. Providers are not assumed
// to be thread-safe: the cache manager guarantees single-goroutine access.
// Every operation is asynchronous and returns a future; the manager awaits
// each future under a configurable timeout budget.
package provider

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/segcache/future"
	"github.com/hupe1980/segcache/segment"
)

// EventType identifies a cache entry lifecycle transition.
type EventType uint8

const (
	// EntryCreated signals a segment became available in the cache.
	EntryCreated EventType = iota + 1
	// EntryDeleted signals a segment left the cache.
	EntryDeleted
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EntryCreated:
		return "entry-created"
	case EntryDeleted:
		return "entry-deleted"
	default:
		return fmt.Sprintf("event-type-%d", uint8(t))
	}
}

// Event notifies listeners of a cache entry transition.
//
// Local reports whether the transition originated on this node. Providers
// that cannot tell must report false. Providers must not echo the caller's
// own mutations back as events; only transitions caused by other nodes or
// third parties are required.
type Event struct {
	Type   EventType
	Source *segment.Header
	Local  bool
}

// Listener receives cache events. Handlers are invoked on the provider's
// goroutine and must be non-blocking and thread-safe.
type Listener interface {
	Handle(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// Handle calls f.
func (f ListenerFunc) Handle(e Event) { f(e) }

// SegmentCache is the external cache contract.
//
// Get resolves to nil when the header is unknown; absence is a normal
// result, not an error. After TearDown every operation fails.
type SegmentCache interface {
	// Get returns the body stored for header, or nil if absent.
	Get(header *segment.Header) *future.Future[segment.Body]

	// Contains reports whether a body is stored for header.
	Contains(header *segment.Header) *future.Future[bool]

	// Put stores a body under header. The result reports success.
	Put(header *segment.Header, body segment.Body) *future.Future[bool]

	// Remove deletes the entry for header. The result reports whether an
	// entry was found and removed.
	Remove(header *segment.Header) *future.Future[bool]

	// SegmentHeaders lists every header present in the cache.
	SegmentHeaders() *future.Future[[]*segment.Header]

	// AddListener attaches l to this cache.
	AddListener(l Listener)

	// RemoveListener detaches l from this cache.
	RemoveListener(l Listener)

	// SupportsRichIndex reports whether the cache preserves full header
	// contents. Without a rich index the manager treats the cache as
	// opaque bulk storage and cannot do partial invalidation against it.
	SupportsRichIndex() bool

	// TearDown releases all resources held by the cache.
	TearDown()
}

// ErrTornDown is returned by provider operations after TearDown.
var ErrTornDown = errors.New("provider: cache is torn down")

// Factory creates a provider instance. One instance is created per server.
type Factory func() (SegmentCache, error)

var registry = struct {
	mu     sync.Mutex
	names  []string
	byName map[string]Factory
}{byName: make(map[string]Factory)}

// Register makes a provider available under name. Typically called from a
// provider package's init. Registering a duplicate name panics.
func Register(name string, f Factory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, dup := registry.byName[name]; dup {
		panic(fmt.Sprintf("provider: Register called twice for %q", name))
	}
	registry.names = append(registry.names, name)
	registry.byName[name] = f
}

// Open instantiates the named provider. With an empty name the first
// registered provider is chosen, mirroring service discovery: the choice
// is whatever registration happened first, so deployments that care must
// name the provider explicitly.
func Open(name string) (SegmentCache, error) {
	registry.mu.Lock()
	var f Factory
	if name == "" {
		if len(registry.names) == 0 {
			registry.mu.Unlock()
			return nil, errors.New("provider: no providers registered")
		}
		f = registry.byName[registry.names[0]]
	} else {
		var ok bool
		f, ok = registry.byName[name]
		if !ok {
			registry.mu.Unlock()
			return nil, fmt.Errorf("provider: unknown provider %q", name)
		}
	}
	registry.mu.Unlock()
	return f()
}
