package resource

import "sync"

// DefaultPriority is the priority used by system actions and scripts that
// do not declare one.
const DefaultPriority = 0

// Resource grants one active Handle at a time, ordered by priority.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Resource struct {
	mu       sync.Mutex
	priority int
	active   *Handle
}

// New returns a free Resource.
func New() *Resource {
	return &Resource{}
}

// Request asks for the resource at the given priority.
//
// The outcome depends on the current holder:
//   - none: a new handle is granted
//   - same priority: the active handle is returned again (not reference counted)
//   - weaker (numerically larger) priority: the holder is interrupted and
//     a new handle is granted
//   - stronger priority: nil
//
// onPreempted may be nil. It runs on the requesting goroutine while the
// resource lock is held, so it must not call back into this Resource.
func (r *Resource) Request(priority int, onPreempted func()) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.active == nil:
	case r.priority == priority:
		return r.active
	case r.priority > priority:
		r.active.interrupt()
	default:
		return nil
	}

	r.priority = priority
	r.active = &Handle{owner: r, onPreempted: onPreempted}
	return r.active
}

// Release frees the resource if h is the active handle.
// Releasing a stale handle is a no-op.
func (r *Resource) Release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == h {
		r.active = nil
		r.priority = 0
	}
}

// Reset drops the current holder without notifying it.
// Used when the robot is reconfigured and every script has been stopped.
func (r *Resource) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = nil
	r.priority = 0
}

// Holder reports the active priority, and whether the resource is held.
func (r *Resource) Holder() (priority int, held bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.priority, r.active != nil
}
