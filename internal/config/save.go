package config

import (
	"context"
	"encoding/json"
	"fmt"
)

// Save persists the whole configuration under Key. Saving the same Set twice
// leaves storage unchanged.
func (s *Store) Save(ctx context.Context, cfg Set) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	// Marshal config to JSON with indentation
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := s.kv.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("writing config to %s: %w", Key, err)
	}
	return nil
}
