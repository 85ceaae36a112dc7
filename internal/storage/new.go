package storage

import (
	"fmt"

	"github.com/nexus-cdn/nexus/internal/config"
)

// New builds the Store selected by cfg.StorageBackend.
func New(cfg config.GlobalConfig) (Store, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMemory:
		return NewMemoryStore(), nil
	case config.StorageBackendFS, "":
		return NewFSStore(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
}
