package config

import "github.com/krabwidget/krab/internal/backend"

// DefaultSet returns the configuration of a first run: nothing selected,
// auto-connect on, and every kind carrying its default model but no
// endpoint or credentials.
func DefaultSet() Set {
	s := Set{
		Selected:    backend.KindNone,
		AutoConnect: true,
		Backends:    make(map[backend.Kind]backend.Config),
	}
	for _, k := range backend.Kinds() {
		d, _ := backend.Describe(k)
		s.Backends[k] = backend.Config{Model: d.DefaultModel()}
	}
	return s
}
