package runner

import (
	"os"
	"sort"
	"strings"
)

// Env is an immutable KEY=VALUE environment handed to a single subprocess.
// Overlays return a new value; the process environment is never touched.
type Env struct {
	vars []string
}

// Inherit snapshots the current process environment.
func Inherit() Env {
	return NewEnv(os.Environ())
}

func NewEnv(base []string) Env {
	return Env{vars: append([]string(nil), base...)}
}

// Set returns a copy of e with key bound to value, replacing earlier bindings.
func (e Env) Set(key, value string) Env {
	prefix := key + "="
	out := make([]string, 0, len(e.vars)+1)
	for _, kv := range e.vars {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	out = append(out, prefix+value)
	return Env{vars: out}
}

// Overlay applies every entry of m, in key order so the result is stable.
func (e Env) Overlay(m map[string]string) Env {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := e
	for _, k := range keys {
		out = out.Set(k, m[k])
	}
	return out
}

// Get returns the value bound to key.
func (e Env) Get(key string) (string, bool) {
	prefix := key + "="
	for i := len(e.vars) - 1; i >= 0; i-- {
		if strings.HasPrefix(e.vars[i], prefix) {
			return strings.TrimPrefix(e.vars[i], prefix), true
		}
	}
	return "", false
}

// Slice returns a copy suitable for exec.Cmd.Env.
func (e Env) Slice() []string {
	return append([]string(nil), e.vars...)
}
