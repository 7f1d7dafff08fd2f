// Package remote turns remote-control frames into button and analog events.
//
// A Controller holds the per-session bindings and the latest input state.
// A Scheduler wraps it with a supervisory loop that detects when a
// controller starts sending frames and when it goes quiet:
//
//	sched := remote.NewScheduler(ctrl, 2*time.Second, 500*time.Millisecond)
//	sched.Detected.Subscribe(onDetected)
//	sched.Lost.Subscribe(onLost)
//	sched.Start()
//	...
//	sched.Submit(frame) // from the link
//	...
//	sched.Stop()
//
// Button indices are 0..31. Analog values are raw bytes with 127 as centre.
package remote
