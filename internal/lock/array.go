// Package lock provides the per-parallel-unit mutual-exclusion array the
// dispatcher uses to ensure each PU services at most one request at a time.
// It is a small, dedicated type rather than a bare []sync.Mutex so that
// Close can prove quiescence by blocking-acquiring every token, which is the
// array's one privileged operation.
package lock

import "sync"

// Array holds one mutex per parallel unit.
type Array struct {
	mus []sync.Mutex
}

// NewArray allocates n unlocked tokens.
func NewArray(n int) *Array {
	return &Array{mus: make([]sync.Mutex, n)}
}

// Len returns the number of PUs this array covers.
func (a *Array) Len() int {
	return len(a.mus)
}

// TryLock attempts to acquire the token for pu without blocking. The
// dispatcher's scan loop uses this exclusively: blocking on a busy PU would
// stall progress on every other PU sharing the dispatcher goroutine.
func (a *Array) TryLock(pu int) bool {
	return a.mus[pu].TryLock()
}

// Lock blocks until the token for pu is acquired. Used only by Close, to
// prove no request is in flight on any PU before tearing down.
func (a *Array) Lock(pu int) {
	a.mus[pu].Lock()
}

// Unlock releases the token for pu. The caller must currently hold it.
func (a *Array) Unlock(pu int) {
	a.mus[pu].Unlock()
}
