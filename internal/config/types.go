package config

import "github.com/krabwidget/krab/internal/backend"

// Set is the complete backend configuration: which kind is selected and the
// saved settings of every kind. Switching kinds never drops another kind's
// entry.
type Set struct {
	Selected    backend.Kind                    `json:"selected"`
	AutoConnect bool                            `json:"auto_connect"`
	Backends    map[backend.Kind]backend.Config `json:"backends"`
}

// Backend returns the saved config of k, or the zero Config.
func (s Set) Backend(k backend.Kind) backend.Config {
	return s.Backends[k]
}

// WithBackend returns a copy of s with the config of k replaced.
func (s Set) WithBackend(k backend.Kind, cfg backend.Config) Set {
	out := s.Clone()
	out.Backends[k] = cfg
	return out
}

// Clone returns a deep copy so callers can hand out snapshots.
func (s Set) Clone() Set {
	out := s
	out.Backends = make(map[backend.Kind]backend.Config, len(s.Backends))
	for k, v := range s.Backends {
		out.Backends[k] = v
	}
	return out
}

// LoadState tells callers where a loaded Set came from.
type LoadState int

const (
	// LoadFresh means nothing was stored yet; defaults were returned.
	LoadFresh LoadState = iota
	// LoadOK means the stored document was decoded.
	LoadOK
	// LoadCorrupted means a stored document existed but could not be
	// decoded; defaults were returned.
	LoadCorrupted
	// LoadUnavailable means the storage could not be read; defaults were
	// returned.
	LoadUnavailable
)

func (s LoadState) String() string {
	switch s {
	case LoadFresh:
		return "fresh"
	case LoadOK:
		return "ok"
	case LoadCorrupted:
		return "corrupted"
	case LoadUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}
