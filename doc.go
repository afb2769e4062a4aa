// Package segcache implements the segment cache subsystem of an OLAP query
// engine: the shared memory that holds pre-aggregated cell rectangles
// (segments) produced by one query so that later queries can reuse them by
// exact match, by subset filter, or by rollup across dimensionalities.
//
// The center of the package is the Manager, an actor whose single dedicated
// goroutine owns all mutations to the segment cache index and all dispatch
// to external cache providers. Callers send commands (synchronous from
// their perspective) and events (fire and forget) onto a bounded queue.
//
//	mgr, err := segcache.New(
//	    segcache.WithProvider(memory.New()),
//	    segcache.WithTimeouts(segcache.Timeouts{Write: 5 * time.Second}),
//	)
//	if err != nil { ... }
//	defer mgr.Close()
//
//	headers, err := mgr.Locate(req)
//
// Headers and bodies are immutable and may be shared freely; see the
// segment package for the data model and the provider package for the
// external cache contract.
package segcache
