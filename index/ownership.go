package index

import (
	"runtime"
	"strconv"
	"strings"
)

// goroutineID returns the numeric id of the calling goroutine, parsed from
// the runtime stack header. Go deliberately hides goroutine identity, but
// the single-writer contract of the index is worth the cost of one stack
// header per operation: an off-thread mutation corrupts the index silently,
// while this check turns it into an InvariantError at the call site.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i > 0 {
		if id, err := strconv.ParseUint(s[:i], 10, 64); err == nil {
			return id
		}
	}
	return 0
}
