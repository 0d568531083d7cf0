package session

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

func NewStore(storeType, connectionString string, ttl time.Duration) (store Store, err error) {
	switch storeType {
	case TypeMemory, "":
		store = NewMemoryStore(ttl)
	case TypeSQLite:
		store, err = NewSQLiteStore(connectionString, ttl)
	case TypeRedis:
		store, err = NewRedisStore(connectionString, ttl)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", storeType)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("session store initialized", "type", storeType, "ttl", ttl)
	return store, nil
}
