package decoder

import "fmt"

// assertf panics on an internal invariant violation: a bug in the
// token-pruning or traceback algorithm, not a caller error or a bad graph.
// Every call site documents which invariant it is checking.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}
