package session

import (
	"fmt"

	coreconfig "vidforge/core/config"
)

// Store persists user sessions. Implementations must be safe for
// concurrent use; bot handlers run on per-update goroutines.
type Store interface {
	// Get returns a copy of the session for id.
	Get(id int64) (UserSession, bool)
	// Put stores the session for id, replacing any previous value.
	Put(id int64, s UserSession) error
	// Count returns the number of known users.
	Count() (int, error)
}

// OpenStore builds a Store from the configured storage driver.
func OpenStore(cfg coreconfig.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case coreconfig.StorageDriverFile:
		return OpenFileStore(cfg.File)
	case coreconfig.StorageDriverPostgres:
		return OpenPGStore(cfg.DB)
	}
	return nil, fmt.Errorf("session: unknown storage driver %q", cfg.Driver)
}
