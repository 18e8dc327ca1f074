package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"annotatrix/internal/annotatrix"
)

func TestMemoryVault_PutAndGetSnapshot(t *testing.T) {
	vault := NewMemoryVault()

	tests := []struct {
		name       string
		treebankID string
		content    string
	}{
		{name: "store and retrieve snapshot", treebankID: "abc", content: "SQLite format 3\x00..."},
		{name: "store empty snapshot", treebankID: "empty", content: ""},
		{name: "store large snapshot", treebankID: "large", content: strings.Repeat("x", 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vault.PutSnapshot(tt.treebankID, strings.NewReader(tt.content), int64(len(tt.content)), 1)
			if err != nil {
				t.Fatalf("PutSnapshot() error = %v", err)
			}

			var buf bytes.Buffer
			if err := vault.GetSnapshot(tt.treebankID, &buf); err != nil {
				t.Fatalf("GetSnapshot() error = %v", err)
			}
			if got := buf.String(); got != tt.content {
				t.Errorf("GetSnapshot() = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestMemoryVault_SnapshotOverwriteAndVersion(t *testing.T) {
	vault := NewMemoryVault()

	version, err := vault.SnapshotVersion("abc")
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("SnapshotVersion() before put = %d, want 0", version)
	}

	for i, content := range []string{"first", "second"} {
		if err := vault.PutSnapshot("abc", strings.NewReader(content), int64(len(content)), int64(100+i)); err != nil {
			t.Fatalf("PutSnapshot(%q) error = %v", content, err)
		}
	}

	var buf bytes.Buffer
	if err := vault.GetSnapshot("abc", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != "second" {
		t.Errorf("GetSnapshot() = %q, want latest %q", buf.String(), "second")
	}

	version, _ = vault.SnapshotVersion("abc")
	if version != 101 {
		t.Errorf("SnapshotVersion() = %d, want 101", version)
	}
}

func TestMemoryVault_SizeMismatch(t *testing.T) {
	vault := NewMemoryVault()

	err := vault.PutSnapshot("abc", strings.NewReader("short"), 100, 1)
	if err == nil {
		t.Fatal("PutSnapshot() expected error for size mismatch")
	}

	var buf bytes.Buffer
	if err := vault.GetSnapshot("abc", &buf); err == nil {
		t.Error("snapshot stored despite size mismatch")
	}
}

func TestMemoryVault_GetMissing(t *testing.T) {
	vault := NewMemoryVault()

	var buf bytes.Buffer
	err := vault.GetSnapshot("absent", &buf)
	if !errors.Is(err, annotatrix.ErrNotFound) {
		t.Errorf("GetSnapshot(absent) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryVault_ValidateSetup(t *testing.T) {
	if err := NewMemoryVault().ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}
