package scripting

import (
	"maps"

	"github.com/google/uuid"
)

// Env is what a script run sees.
type Env struct {
	// RunID identifies this run in logs.
	RunID uuid.UUID

	// Values holds the merged globals, per-script values and inputs.
	Values map[string]any

	// Control is the cooperation handle.
	Control *Control
}

// Get returns the named value, or nil.
func (e *Env) Get(name string) any {
	return e.Values[name]
}

// Inputs returns the "input" value as raw analog bytes, if present.
func (e *Env) Inputs() []byte {
	b, _ := e.Values["input"].([]byte)
	return b
}

// Body is a runnable script. GoBody and LuaBody are the only implementations.
type Body interface {
	run(env *Env) error
}

// GoBody is a native script.
type GoBody func(env *Env) error

func (b GoBody) run(env *Env) error {
	return b(env)
}

func mergeEnv(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}
