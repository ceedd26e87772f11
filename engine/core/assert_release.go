//go:build !instancer_debug

package core

// DebugAssertions turns Ensure failures into panics.
const DebugAssertions = false
