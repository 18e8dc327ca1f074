package testutil

import (
	"testing"

	"annotatrix/internal/database"
	"annotatrix/internal/encryption"
	"annotatrix/internal/vault"
)

// NewTestOpener creates an in-memory store opener with plain token sealing.
// User ids come out as "user-1", "user-2", ... and every store is dropped
// when the test completes.
func NewTestOpener(t *testing.T) *database.MemoryOpener {
	t.Helper()

	opener := database.NewMemoryOpener(encryption.NewPlainSealer(), FixedClock(), NewPrefixedIDGenerator("user"))
	t.Cleanup(func() {
		opener.Close()
	})
	return opener
}

// NewTestDirOpener creates a store opener over a temporary corpora directory.
func NewTestDirOpener(t *testing.T) *database.DirOpener {
	t.Helper()

	opener, err := database.NewDirOpener(t.TempDir(), encryption.NewPlainSealer(), FixedClock(), NewPrefixedIDGenerator("user"))
	if err != nil {
		t.Fatalf("failed to create store opener: %v", err)
	}
	return opener
}

// NewTestVault creates a new in-memory snapshot vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault()
}
