package encryption

import (
	"bytes"
	"testing"

	"annotatrix/internal/config"
)

func TestPlainSealer_SealOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
	}{
		{name: "simple", token: "gho_abc"},
		{name: "empty", token: ""},
		{name: "binary", token: "\x00\xff\x01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewPlainSealer()
			sealed, err := s.Seal(tt.token)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if !bytes.HasPrefix(sealed, plainHeader) {
				t.Error("sealed output does not start with the plain header")
			}

			got, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got != tt.token {
				t.Errorf("Open() = %q, want %q", got, tt.token)
			}
		})
	}
}

func TestPlainSealer_OpenRejectsForeignData(t *testing.T) {
	t.Parallel()

	if _, err := NewPlainSealer().Open([]byte("age-encryption.org/v1")); err == nil {
		t.Error("Open() should reject data without the plain header")
	}
}

func TestNewSealerFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TokensConfig
		wantErr bool
	}{
		{name: "none", cfg: config.TokensConfig{Type: "none"}},
		{name: "age", cfg: config.TokensConfig{Type: "age", PublicKeyPath: "/k/t.pub", PrivateKeyPath: "/k/t.key"}},
		{name: "default is age", cfg: config.TokensConfig{PublicKeyPath: "/k/t.pub", PrivateKeyPath: "/k/t.key"}},
		{name: "age without keys", cfg: config.TokensConfig{Type: "age"}, wantErr: true},
		{name: "unknown", cfg: config.TokensConfig{Type: "rot13"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSealerFromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NewSealerFromConfig() expected error, got %T", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSealerFromConfig() error = %v", err)
			}
			if got == nil {
				t.Fatal("NewSealerFromConfig() returned nil")
			}
		})
	}
}
