package annotatrix

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// BackupService copies store snapshots to and from a vault.
type BackupService struct {
	stores     StoreOpener
	vault      Vault
	logger     Logger
	clock      Clock
	scratchDir string
}

// NewBackupService creates a BackupService. Snapshots are staged under
// scratchDir (the system temp dir when empty).
func NewBackupService(stores StoreOpener, vault Vault, logger Logger, clock Clock, scratchDir string) *BackupService {
	return &BackupService{
		stores:     stores,
		vault:      vault,
		logger:     logger,
		clock:      clock,
		scratchDir: scratchDir,
	}
}

// BackupAll snapshots every existing store into the vault and returns how
// many were written.
func (s *BackupService) BackupAll(ctx context.Context) (int, error) {
	if err := s.vault.ValidateSetup(); err != nil {
		return 0, fmt.Errorf("validating vault: %w", err)
	}

	ids, err := s.stores.List()
	if err != nil {
		return 0, fmt.Errorf("listing stores: %w", err)
	}

	count := 0
	for _, id := range ids {
		if err := s.backupOne(ctx, id); err != nil {
			return count, fmt.Errorf("backing up %s: %w", id, err)
		}
		count++
	}
	return count, nil
}

func (s *BackupService) backupOne(ctx context.Context, treebankID string) error {
	tmpPath, err := s.tempPath("annotatrix-snapshot-*.db")
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	store, err := s.stores.Open(ctx, treebankID)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	err = store.BackupTo(ctx, tmpPath)
	store.Close()
	if err != nil {
		return fmt.Errorf("snapshotting store: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	prev, err := s.vault.SnapshotVersion(treebankID)
	if err != nil {
		return fmt.Errorf("reading snapshot version: %w", err)
	}
	version := s.clock.Now().Unix()
	if version <= prev {
		version = prev + 1
	}

	if err := s.vault.PutSnapshot(treebankID, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}

	s.logger.Info("store backed up", "treebank_id", treebankID, "version", version, "bytes", info.Size())
	return nil
}

// Restore installs the vault's latest snapshot for a treebank. The store
// must not exist; restoring never overwrites live data.
func (s *BackupService) Restore(ctx context.Context, rawTreebankID string) error {
	treebankID, err := NormalizeTreebankID(rawTreebankID)
	if err != nil {
		return err
	}

	if err := s.vault.ValidateSetup(); err != nil {
		return fmt.Errorf("validating vault: %w", err)
	}

	exists, err := s.stores.Exists(treebankID)
	if err != nil {
		return fmt.Errorf("checking store: %w", err)
	}
	if exists {
		return validationErrorf("treebank_id", "store %s already exists", treebankID)
	}

	tmpPath, err := s.tempPath("annotatrix-restore-*.db")
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating restore file: %w", err)
	}
	err = s.vault.GetSnapshot(treebankID, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("downloading snapshot: %w", err)
	}

	if err := s.stores.Restore(ctx, treebankID, tmpPath); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}

	s.logger.Info("store restored", "treebank_id", treebankID)
	return nil
}

func (s *BackupService) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.scratchDir, pattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	f.Close()
	return f.Name(), nil
}
