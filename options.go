package segcache

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/segcache/provider"
)

// Timeouts are the per-operation budgets applied to provider futures.
// Zero fields fall back to the defaults.
type Timeouts struct {
	Read   time.Duration // Get
	Lookup time.Duration // Contains
	Write  time.Duration // Put, Remove
	Scan   time.Duration // SegmentHeaders
}

// Default provider call budgets.
const (
	DefaultReadTimeout   = 5 * time.Second
	DefaultLookupTimeout = 5 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultScanTimeout   = 30 * time.Second
)

// DefaultEventQueueSize bounds the manager's FIFO when not configured.
const DefaultEventQueueSize = 1000

func (t Timeouts) withDefaults() Timeouts {
	if t.Read <= 0 {
		t.Read = DefaultReadTimeout
	}
	if t.Lookup <= 0 {
		t.Lookup = DefaultLookupTimeout
	}
	if t.Write <= 0 {
		t.Write = DefaultWriteTimeout
	}
	if t.Scan <= 0 {
		t.Scan = DefaultScanTimeout
	}
	return t
}

type options struct {
	logger           *Logger
	providers        []provider.SegmentCache
	providerName     string
	timeouts         Timeouts
	densityThreshold float64
	maxIndexHeaders  int
	evictionSeed     int64
	queueSize        int
	putRate          rate.Limit
	putBurst         int
}

// Option configures Manager construction.
type Option func(*options)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithProvider attaches an external cache provider. May be given multiple
// times; segment bodies are written to every attached provider.
func WithProvider(p provider.SegmentCache) Option {
	return func(o *options) {
		if p != nil {
			o.providers = append(o.providers, p)
		}
	}
}

// WithProviderName resolves a provider from the registry by name at
// construction time. An empty name resolves nothing: New then attaches no
// registry provider, not even the first registered one. Ignored when
// WithProvider is also given.
func WithProviderName(name string) Option {
	return func(o *options) { o.providerName = name }
}

// WithTimeouts sets the provider call budgets. Zero fields keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

// WithRollupDensityThreshold sets the fill ratio at or above which rollup
// results are stored densely. Must be in [0,1]; out-of-range values keep
// the default of 0.5.
func WithRollupDensityThreshold(t float64) Option {
	return func(o *options) {
		if t >= 0 && t <= 1 {
			o.densityThreshold = t
		}
	}
}

// WithMaxIndexHeaders bounds the in-memory index. Zero means unbounded.
func WithMaxIndexHeaders(n int) Option {
	return func(o *options) { o.maxIndexHeaders = n }
}

// WithEvictionSeed fixes the index eviction PRNG seed, making eviction
// reproducible. Mostly useful in tests.
func WithEvictionSeed(seed int64) Option {
	return func(o *options) { o.evictionSeed = seed }
}

// WithEventQueueSize sets the capacity of the manager's bounded FIFO.
func WithEventQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithPutRateLimit throttles provider writes to r puts per second with the
// given burst. Zero disables throttling.
func WithPutRateLimit(r float64, burst int) Option {
	return func(o *options) {
		o.putRate = rate.Limit(r)
		o.putBurst = burst
	}
}
