package persistence

import (
	"context"
	"fmt"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// Options selects and configures a storage driver.
type Options struct {
	Driver     string
	SQLitePath string
	RedisURL   string
	Dir        string
}

// Storage bundles the key-value storage and the message log of one driver.
type Storage struct {
	KV       KV
	Messages MessageStore
	close    func() error
}

// Open connects the driver named in opts.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		store, err := NewSQLiteStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Storage{KV: store, Messages: store, close: store.Close}, nil
	case DriverRedis:
		store, err := NewRedisStore(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Storage{KV: store, Messages: store, close: store.Close}, nil
	case DriverFile:
		kv, err := NewFileKV(opts.Dir)
		if err != nil {
			return nil, err
		}
		return &Storage{KV: kv, Messages: NewKVMessageStore(kv)}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", opts.Driver)
	}
}

// Close releases the driver's connections.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
