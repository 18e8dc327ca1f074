package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/database/migrations"
)

// DirOpener keeps one SQLite file per treebank id under a corpora directory.
type DirOpener struct {
	dir    string
	sealer annotatrix.TokenSealer
	clock  annotatrix.Clock
	idgen  annotatrix.IDGenerator

	// mu serializes store creation within the process so two first saves
	// of the same id do not migrate the same file concurrently.
	mu sync.Mutex
}

// NewDirOpener creates the corpora directory if needed.
func NewDirOpener(dir string, sealer annotatrix.TokenSealer, clock annotatrix.Clock, idgen annotatrix.IDGenerator) (*DirOpener, error) {
	if dir == "" {
		return nil, fmt.Errorf("corpora directory required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating corpora directory: %w", err)
	}
	return &DirOpener{dir: dir, sealer: sealer, clock: clock, idgen: idgen}, nil
}

// Path is the store file of a treebank id.
func (o *DirOpener) Path(treebankID string) string {
	return annotatrix.StorePath(o.dir, treebankID, annotatrix.StoreExtension)
}

func (o *DirOpener) Open(ctx context.Context, treebankID string) (annotatrix.CorpusStore, error) {
	exists, err := o.Exists(treebankID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &annotatrix.NotFoundError{What: "treebank", Key: treebankID}
	}
	return o.open(treebankID)
}

func (o *DirOpener) OpenOrCreate(ctx context.Context, treebankID string) (annotatrix.CorpusStore, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open(treebankID)
}

func (o *DirOpener) open(treebankID string) (*CorpusDB, error) {
	db, err := OpenConnection(o.Path(treebankID))
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", treebankID, err)
	}
	// Stores written by an older binary are brought up to date on open.
	if err := migrations.Ensure(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store %s: %w", treebankID, err)
	}
	return NewCorpusDB(db, treebankID, o.sealer, o.clock, o.idgen), nil
}

func (o *DirOpener) Exists(treebankID string) (bool, error) {
	info, err := os.Stat(o.Path(treebankID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking store %s: %w", treebankID, err)
	}
	return info.Mode().IsRegular(), nil
}

func (o *DirOpener) List() ([]string, error) {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpora directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, annotatrix.StoreExtension) {
			continue
		}
		id := strings.TrimSuffix(name, annotatrix.StoreExtension)
		if normalized, err := annotatrix.NormalizeTreebankID(id); err != nil || normalized != id {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Restore copies snapshotPath into place as the store of treebankID. The
// snapshot is checked by migrating it before it becomes visible.
func (o *DirOpener) Restore(ctx context.Context, treebankID string, snapshotPath string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	exists, err := o.Exists(treebankID)
	if err != nil {
		return err
	}
	if exists {
		return &annotatrix.ValidationError{Field: "treebank_id", Reason: fmt.Sprintf("store %s already exists", treebankID)}
	}

	tmp, err := os.CreateTemp(o.dir, ".restore-*")
	if err != nil {
		return fmt.Errorf("creating restore file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := os.Open(snapshotPath)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("opening snapshot: %w", err)
	}
	_, err = io.Copy(tmp, src)
	src.Close()
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copying snapshot: %w", err)
	}

	db, err := OpenConnection(tmpPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	err = migrations.Ensure(db)
	db.Close()
	if err != nil {
		return fmt.Errorf("snapshot is not a corpus store: %w", err)
	}

	if err := os.Rename(tmpPath, o.Path(treebankID)); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}
	return nil
}

// MemoryOpener keeps stores in shared-cache in-memory SQLite databases.
// Each store lives until Close; it is meant for tests and throwaway servers.
type MemoryOpener struct {
	prefix string
	sealer annotatrix.TokenSealer
	clock  annotatrix.Clock
	idgen  annotatrix.IDGenerator

	mu      sync.Mutex
	keepers map[string]*sql.DB
	seq     int
	uris    map[string]string
}

// NewMemoryOpener creates an empty in-memory opener.
func NewMemoryOpener(sealer annotatrix.TokenSealer, clock annotatrix.Clock, idgen annotatrix.IDGenerator) *MemoryOpener {
	return &MemoryOpener{
		prefix:  uuid.New().String(),
		sealer:  sealer,
		clock:   clock,
		idgen:   idgen,
		keepers: make(map[string]*sql.DB),
		uris:    make(map[string]string),
	}
}

func (o *MemoryOpener) Open(ctx context.Context, treebankID string) (annotatrix.CorpusStore, error) {
	o.mu.Lock()
	uri, ok := o.uris[treebankID]
	o.mu.Unlock()
	if !ok {
		return nil, &annotatrix.NotFoundError{What: "treebank", Key: treebankID}
	}
	return o.open(treebankID, uri)
}

func (o *MemoryOpener) OpenOrCreate(ctx context.Context, treebankID string) (annotatrix.CorpusStore, error) {
	o.mu.Lock()
	uri, ok := o.uris[treebankID]
	if !ok {
		// Ids are not URI-safe, so each store gets a sequence number instead.
		o.seq++
		uri = fmt.Sprintf("file:mem-%s-%d?mode=memory&cache=shared", o.prefix, o.seq)

		// The keeper holds a connection so the database outlives store handles.
		keeper, err := OpenConnection(uri)
		if err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("creating store %s: %w", treebankID, err)
		}
		if err := migrations.Ensure(keeper); err != nil {
			keeper.Close()
			o.mu.Unlock()
			return nil, fmt.Errorf("migrating store %s: %w", treebankID, err)
		}
		o.keepers[treebankID] = keeper
		o.uris[treebankID] = uri
	}
	o.mu.Unlock()
	return o.open(treebankID, uri)
}

func (o *MemoryOpener) open(treebankID, uri string) (*CorpusDB, error) {
	db, err := OpenConnection(uri)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", treebankID, err)
	}
	return NewCorpusDB(db, treebankID, o.sealer, o.clock, o.idgen), nil
}

func (o *MemoryOpener) Exists(treebankID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.uris[treebankID]
	return ok, nil
}

func (o *MemoryOpener) List() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.uris))
	for id := range o.uris {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Restore is not available for in-memory stores.
func (o *MemoryOpener) Restore(ctx context.Context, treebankID string, snapshotPath string) error {
	return fmt.Errorf("restore is not supported for in-memory corpora")
}

// Close drops every in-memory store.
func (o *MemoryOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for id, keeper := range o.keepers {
		if err := keeper.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store %s: %w", id, err))
		}
	}
	o.keepers = make(map[string]*sql.DB)
	o.uris = make(map[string]string)
	return errors.Join(errs...)
}

// Compile-time checks
var (
	_ annotatrix.StoreOpener = (*DirOpener)(nil)
	_ annotatrix.StoreOpener = (*MemoryOpener)(nil)
)

