package exclusion

import "fmt"

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config selects and locates the backing store.
type Config struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
}

// DefaultPath returns the conventional path for a backend.
func DefaultPath(backend string) string {
	if backend == BackendSQLite {
		return "reachout.db"
	}
	return "excluded_profiles.txt"
}

// Open returns the Store described by cfg. An empty backend means file.
func Open(cfg Config) (Store, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendFile
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath(backend)
	}

	switch backend {
	case BackendFile:
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("exclusion: unknown backend %q", cfg.Backend)
	}
}
