package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krabwidget/krab/internal/backend"
)

// Key is the storage key the backend configuration lives under.
const Key = "krab.backends"

const storeTimeout = 5 * time.Second

// KV is the persistent key-value storage the store writes to.
// Get reports found=false for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

// Store loads and saves the backend configuration Set as one JSON document.
type Store struct {
	kv  KV
	log logrus.FieldLogger
}

// NewStore creates a store over kv.
func NewStore(kv KV, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{kv: kv, log: log}
}

// storedSet mirrors Set with optional fields so absent values keep their
// defaults.
type storedSet struct {
	Selected    string                    `json:"selected"`
	AutoConnect *bool                     `json:"auto_connect"`
	Backends    map[string]backend.Config `json:"backends"`
}

// Load reconstructs the configuration. It never fails: when nothing is
// stored, the document is corrupt or the storage is unreachable, the
// defaults are returned and the LoadState says which case applied.
func (s *Store) Load(ctx context.Context) (Set, LoadState) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	cfg := DefaultSet()

	data, found, err := s.kv.Get(ctx, Key)
	if err != nil {
		s.log.WithError(err).Warn("config storage unavailable, using defaults")
		return cfg, LoadUnavailable
	}
	if !found {
		return cfg, LoadFresh
	}

	if err := merge(&cfg, data); err != nil {
		s.log.WithError(err).Warn("stored config is corrupt, using defaults")
		return DefaultSet(), LoadCorrupted
	}
	return cfg, LoadOK
}

// merge decodes a stored document over base. Entries of kinds added since
// the document was written keep their defaults.
func merge(base *Set, data []byte) error {
	var stored storedSet
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parsing %s: %w", Key, err)
	}

	selected, err := backend.ParseKind(stored.Selected)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", Key, err)
	}
	base.Selected = selected

	if stored.AutoConnect != nil {
		base.AutoConnect = *stored.AutoConnect
	}

	for name, bc := range stored.Backends {
		k, err := backend.ParseKind(name)
		if err != nil || k == backend.KindNone {
			// Entries written by a newer version are ignored.
			continue
		}
		base.Backends[k] = bc
	}
	return nil
}
