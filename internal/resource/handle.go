package resource

import "sync/atomic"

// Handle is proof of ownership of a Resource.
//
// Once interrupted a handle stays interrupted; any actuator command routed
// through RunUninterruptible is then silently dropped.
type Handle struct {
	owner       *Resource
	onPreempted func()
	interrupted atomic.Bool
}

// Release returns the handle to its resource. Safe to call more than once.
func (h *Handle) Release() {
	h.owner.Release(h)
}

// Interrupt marks the handle interrupted and fires its preemption callback.
// Later calls are no-ops. The callback runs after the resource lock is
// released, so it may call Release.
func (h *Handle) Interrupt() {
	h.owner.mu.Lock()
	fire := h.markInterrupted()
	h.owner.mu.Unlock()

	if fire && h.onPreempted != nil {
		h.onPreempted()
	}
}

// interrupt requires h.owner.mu to be held.
func (h *Handle) interrupt() {
	if h.markInterrupted() && h.onPreempted != nil {
		h.onPreempted()
	}
}

// markInterrupted reports whether this call made the transition.
func (h *Handle) markInterrupted() bool {
	return !h.interrupted.Swap(true)
}

// IsInterrupted reports whether the handle was preempted.
func (h *Handle) IsInterrupted() bool {
	return h.interrupted.Load()
}

// RunUninterruptible runs fn while holding the resource lock, unless the
// handle has been interrupted. It reports whether fn ran.
//
// Holding the lock means no preemption can slip in between the check and
// the hardware command issued by fn.
func (h *Handle) RunUninterruptible(fn func()) bool {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	if h.interrupted.Load() {
		return false
	}
	fn()
	return true
}
