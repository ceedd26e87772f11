package core

import "fmt"

// Ensure reports a broken caller contract. It always logs; builds tagged
// instancer_debug additionally panic so the violation is caught at its source.
// The return value is cond, which lets callers write `if !core.Ensure(...) { continue }`.
func Ensure(cond bool, msg string, args ...interface{}) bool {
	if cond {
		return true
	}
	text := fmt.Sprintf(msg, args...)
	getLogger().Error("ensure failed: " + text)
	if DebugAssertions {
		panic(text)
	}
	return false
}
