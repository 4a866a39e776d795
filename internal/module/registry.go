package module

import (
	"sort"
	"strings"

	"nativeforge/internal/errs"
)

// Library selects a supported module.
type Library string

const (
	LibraryFFmpeg Library = "ffmpeg"
)

// Libraries is every Library a Registry must provide.
var Libraries = []Library{LibraryFFmpeg}

// ParseLibrary validates a library selector.
func ParseLibrary(s string) (Library, error) {
	for _, l := range Libraries {
		if string(l) == strings.ToLower(s) {
			return l, nil
		}
	}
	return "", errs.Configuref("unknown library %s", s)
}

// Registry maps each Library to its factory.
type Registry struct {
	factories map[Library]Factory
}

// NewRegistry fails unless every Library has a factory and no unknown one
// is present.
func NewRegistry(factories map[Library]Factory) (*Registry, error) {
	var missing []string
	for _, l := range Libraries {
		if factories[l] == nil {
			missing = append(missing, string(l))
		}
	}
	if len(missing) > 0 {
		return nil, errs.Configuref("no module registered for %s", strings.Join(missing, ", "))
	}
	for l := range factories {
		if _, err := ParseLibrary(string(l)); err != nil {
			return nil, err
		}
	}
	return &Registry{factories: factories}, nil
}

// New constructs the module for lib.
func (r *Registry) New(lib Library, d Deps) (Module, error) {
	f, ok := r.factories[lib]
	if !ok {
		return nil, errs.Configuref("unknown library %s", lib)
	}
	return f(d)
}

// Names lists the registered libraries.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for l := range r.factories {
		names = append(names, string(l))
	}
	sort.Strings(names)
	return names
}
