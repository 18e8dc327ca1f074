package vault

import (
	"context"
	"testing"

	"annotatrix/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BackupConfig
		wantErr bool
	}{
		{
			name: "memory vault",
			cfg:  config.BackupConfig{Type: "memory"},
		},
		{
			name: "filesystem vault",
			cfg:  config.BackupConfig{Type: "filesystem", FSVaultRoot: t.TempDir()},
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.BackupConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name: "s3 vault",
			cfg: config.BackupConfig{
				Type:              "s3",
				S3Bucket:          "corpora-backup",
				S3Region:          "eu-west-1",
				S3AccessKeyID:     "AKIDEXAMPLE",
				S3SecretAccessKey: "secret",
			},
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.BackupConfig{Type: "s3", S3Region: "eu-west-1"},
			wantErr: true,
		},
		{
			name:    "unknown vault type",
			cfg:     config.BackupConfig{Type: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(context.Background(), tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && got != nil {
				t.Errorf("NewVaultFromConfig() = %T, want nil on error", got)
			}
			if !tt.wantErr && got == nil {
				t.Error("NewVaultFromConfig() returned nil vault")
			}
		})
	}
}
