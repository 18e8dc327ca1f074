package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"annotatrix/internal/annotatrix"
)

// MemoryVault is an in-memory implementation of annotatrix.Vault, useful
// for testing. It is safe for concurrent use.
type MemoryVault struct {
	snapshots map[string][]byte // treebankID -> snapshot
	versions  map[string]int64  // treebankID -> version
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		snapshots: make(map[string][]byte),
		versions:  make(map[string]int64),
	}
}

// PutSnapshot stores a snapshot for a treebank.
func (m *MemoryVault) PutSnapshot(treebankID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[treebankID] = data
	m.versions[treebankID] = version
	return nil
}

// SnapshotVersion returns the snapshot version for a treebank.
// Returns 0 if no snapshot has been stored.
func (m *MemoryVault) SnapshotVersion(treebankID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[treebankID], nil
}

// GetSnapshot writes the latest snapshot of a treebank to w.
func (m *MemoryVault) GetSnapshot(treebankID string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshots[treebankID]
	if !ok {
		return &annotatrix.NotFoundError{What: "snapshot", Key: treebankID}
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements annotatrix.Vault
var _ annotatrix.Vault = (*MemoryVault)(nil)
