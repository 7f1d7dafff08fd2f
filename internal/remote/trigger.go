package remote

// EdgeTrigger reports transitions of a level signal.
// It is not safe for concurrent use.
type EdgeTrigger struct {
	previous int
	rising   func()
	falling  func()
}

// OnRising sets the callback for a rising edge. nil clears it.
func (e *EdgeTrigger) OnRising(fn func()) {
	e.rising = fn
}

// OnFalling sets the callback for a falling edge. nil clears it.
func (e *EdgeTrigger) OnFalling(fn func()) {
	e.falling = fn
}

// Handle feeds the next level and fires at most one callback.
func (e *EdgeTrigger) Handle(value int) {
	switch {
	case value > e.previous:
		if e.rising != nil {
			e.rising()
		}
	case value < e.previous:
		if e.falling != nil {
			e.falling()
		}
	}
	e.previous = value
}
