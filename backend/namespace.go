package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// StorageLocation is the root of all local memory namespaces. It is a plain
// value threaded through constructors; the subsystem never mutates process
// environment to communicate storage paths.
type StorageLocation struct {
	BaseDir string
}

// DefaultStorageLocation places namespaces under the user cache directory,
// falling back to the OS temp dir.
func DefaultStorageLocation() StorageLocation {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return StorageLocation{BaseDir: filepath.Join(dir, "crewmem")}
}

// NamespaceManager prepares isolated storage namespaces, one per
// (backend kind, crew identity) pair. Reusing a directory across backend-kind
// switches causes dimension/index mismatches, so Prepare purges any
// pre-existing content. Destructive; call exactly once per crew build.
type NamespaceManager struct {
	loc    StorageLocation
	logger *zap.Logger
}

// NewNamespaceManager creates a namespace manager rooted at loc.
func NewNamespaceManager(loc StorageLocation, logger *zap.Logger) *NamespaceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NamespaceManager{
		loc:    loc,
		logger: logger.With(zap.String("component", "namespace_manager")),
	}
}

// Prepare returns a freshly-purged namespace directory for the pair. A purge
// failure is logged as a warning and the path is still returned; the build
// continues with a possibly-stale namespace.
func (m *NamespaceManager) Prepare(kind Kind, crewID string) (string, error) {
	if crewID == "" {
		return "", fmt.Errorf("crew identity is required")
	}

	path := filepath.Join(m.loc.BaseDir, string(kind), sanitize(crewID))

	if _, err := os.Stat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to purge pre-existing namespace, continuing",
				zap.String("path", path),
				zap.Error(err))
		} else {
			m.logger.Info("purged pre-existing namespace", zap.String("path", path))
		}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create namespace %s: %w", path, err)
	}

	m.logger.Debug("namespace prepared",
		zap.String("backend_kind", string(kind)),
		zap.String("crew_id", crewID),
		zap.String("path", path))

	return path, nil
}

// Cleanup removes every namespace belonging to crewID across backend kinds.
func (m *NamespaceManager) Cleanup(crewID string) error {
	if crewID == "" {
		return fmt.Errorf("crew identity is required")
	}
	var firstErr error
	for _, kind := range []Kind{KindDefault, KindRemote} {
		path := filepath.Join(m.loc.BaseDir, string(kind), sanitize(crewID))
		if err := os.RemoveAll(path); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleanup namespace %s: %w", path, err)
		}
	}
	return firstErr
}

// sanitize keeps crew identities path-safe. Identities are hex hashes or
// caller-supplied names; anything outside a conservative set is replaced.
func sanitize(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
