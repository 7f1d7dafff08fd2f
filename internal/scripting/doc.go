// Package scripting runs named user scripts as cooperative goroutines.
//
// A Manager owns every Script. Each Script wraps a Body (a native GoBody or
// a LuaBody executed with gopher-lua) and can be started repeatedly with
// fresh inputs. Stopping is cooperative: a stop request cancels the run's
// context, which interrupts Control.Sleep and aborts a Lua VM at its next
// instruction.
//
// Environment seen by a run, later entries overriding earlier ones:
//
//	manager globals (Assign) -> per-script values ("robot") -> start inputs
//
// ErrCancelled signals a stopped run and is never reported as a failure.
package scripting
