package vault

import (
	"context"
	"fmt"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
)

// NewVaultFromConfig creates a Vault implementation based on the backup config type.
func NewVaultFromConfig(ctx context.Context, cfg config.BackupConfig) (annotatrix.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(), nil
	case "s3":
		v, err := NewS3VaultFromConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return v, nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		v, err := NewFileSystemVault(cfg.FSVaultRoot)
		if err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
