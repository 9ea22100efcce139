// Package helpers contains small generic utilities for tests.
package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quic-interop/interop-harness/framework/opt"
)

// TryReceive waits up to timeout for a value. The result has no value if nothing arrived in
// time.
func TryReceive[V any](ch <-chan V, timeout time.Duration) opt.Maybe[V] {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case value := <-ch:
		return opt.Some(value)
	case <-deadline.C:
		return opt.None[V]()
	}
}

// RequireValue fails the test if no value arrives on ch within timeout.
func RequireValue[V any](t *testing.T, ch <-chan V, timeout time.Duration, msgAndArgs ...interface{}) V {
	t.Helper()
	v := TryReceive(ch, timeout)
	require.True(t, v.IsDefined(), msgAndArgs...)
	return v.Value()
}
