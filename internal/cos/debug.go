package cos

import "fmt"

// Enabled gates debug-only assertions. Flip to true in development builds;
// left false removes the cost of Assert/AssertNoErr on the hot paths
// (timer handler, observer event loop) in production.
var Enabled = false

// Assert panics with args formatted as context if cond is false and
// debugging is enabled. It is a no-op when Enabled is false.
func Assert(cond bool, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
}

// AssertNoErr panics with err's message if err is non-nil and debugging is
// enabled.
func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
}
