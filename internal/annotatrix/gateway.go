package annotatrix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// AllowedExtensions lists the file extensions accepted by Upload.
var AllowedExtensions = map[string]bool{
	"txt":    true,
	"conllu": true,
	"cg3":    true,
	"sd":     true,
	"corpus": true,
}

// UploadFile is a corpus file posted by the browser.
type UploadFile struct {
	Filename string
	Content  io.Reader
}

// UploadResult names the treebank created from an upload.
type UploadResult struct {
	TreebankID  string
	RedirectURL string
}

// Download is a materialized corpus text file. The caller must Close it,
// which removes the file.
type Download struct {
	File *os.File
	Name string
}

// Close closes and removes the transient file.
func (d *Download) Close() error {
	name := d.File.Name()
	err := d.File.Close()
	if rmErr := os.Remove(name); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// CorpusGateway turns browser-facing corpus operations into store and
// converter calls. Every operation opens its store afresh and releases it
// before returning.
type CorpusGateway struct {
	stores     StoreOpener
	converter  Converter
	logger     Logger
	idgen      IDGenerator
	scratchDir string
}

// NewCorpusGateway creates a CorpusGateway. Downloads are materialized under
// scratchDir (the system temp dir when empty).
func NewCorpusGateway(stores StoreOpener, converter Converter, logger Logger, idgen IDGenerator, scratchDir string) *CorpusGateway {
	return &CorpusGateway{
		stores:     stores,
		converter:  converter,
		logger:     logger,
		idgen:      idgen,
		scratchDir: scratchDir,
	}
}

// NewTreebank allocates a fresh treebank id and returns its corpus view.
func (g *CorpusGateway) NewTreebank() (string, string) {
	id := g.idgen.New()
	return id, CorpusViewPath(id)
}

// Save parses a state payload and replaces the treebank's corpus with it,
// creating the store on first save.
func (g *CorpusGateway) Save(ctx context.Context, rawTreebankID string, statePayload []byte) error {
	treebankID, err := NormalizeTreebankID(rawTreebankID)
	if err != nil {
		return err
	}

	state, err := ParseState(statePayload)
	if err != nil {
		return err
	}

	exists, err := g.stores.Exists(treebankID)
	if err != nil {
		return fmt.Errorf("checking store: %w", err)
	}
	if exists {
		g.logger.Debug("updating store", "treebank_id", treebankID)
	} else {
		g.logger.Warn("no store found, creating new one", "treebank_id", treebankID)
	}

	store, err := g.stores.OpenOrCreate(ctx, treebankID)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	if err := store.Update(ctx, state); err != nil {
		return fmt.Errorf("updating store: %w", err)
	}

	g.logger.Info("corpus saved", "treebank_id", treebankID, "sentences", len(state.Sentences))
	return nil
}

// Load returns the whole corpus, or only the sentence at the 0-based index
// when index is non-nil. A missing store returns a *NotFoundError.
func (g *CorpusGateway) Load(ctx context.Context, rawTreebankID string, index *int) (*Corpus, error) {
	treebankID, err := NormalizeTreebankID(rawTreebankID)
	if err != nil {
		return nil, err
	}

	store, err := g.stores.Open(ctx, treebankID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.logger.Warn("load: no store found", "treebank_id", treebankID)
		}
		return nil, err
	}
	defer store.Close()

	if index == nil {
		return store.AllSentences(ctx)
	}
	return store.Sentence(ctx, *index)
}

// Download materializes the treebank's corpus text into a transient file.
func (g *CorpusGateway) Download(ctx context.Context, rawTreebankID string) (*Download, error) {
	treebankID, err := NormalizeTreebankID(rawTreebankID)
	if err != nil {
		return nil, err
	}

	store, err := g.stores.Open(ctx, treebankID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.logger.Warn("download: no store found", "treebank_id", treebankID)
		}
		return nil, err
	}
	defer store.Close()

	text, filename, err := store.CorpusText(ctx)
	if err != nil {
		return nil, fmt.Errorf("rendering corpus: %w", err)
	}

	f, err := os.CreateTemp(g.scratchDir, treebankID+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating download file: %w", err)
	}
	if _, err := io.WriteString(f, text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("writing download file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("rewinding download file: %w", err)
	}

	g.logger.Debug("sending corpus", "treebank_id", treebankID, "filename", filename)
	return &Download{File: f, Name: filename}, nil
}

// Upload validates a posted corpus file and hands its content to the
// converter, which stores it and reports the new treebank id.
func (g *CorpusGateway) Upload(ctx context.Context, file *UploadFile) (*UploadResult, error) {
	if file == nil || file.Content == nil {
		return nil, validationErrorf("file", "no file received")
	}
	filename, err := ValidateUploadFilename(file.Filename)
	if err != nil {
		return nil, err
	}

	content, err := io.ReadAll(file.Content)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	g.logger.Info("converting upload", "filename", filename, "bytes", len(content))
	out, err := g.converter.Convert(ctx, content)
	if err != nil {
		return nil, err
	}

	treebankID, err := NormalizeTreebankID(lastLine(out))
	if err != nil {
		return nil, &ExternalToolError{Output: fmt.Sprintf("converter returned an unusable treebank id %q", out)}
	}

	return &UploadResult{TreebankID: treebankID, RedirectURL: CorpusViewPath(treebankID)}, nil
}

// lastLine returns the last non-empty line of converter output. The
// converter may log warnings before printing the id.
func lastLine(out []byte) string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}

// ValidateUploadFilename sanitizes a client-supplied filename and checks its
// extension against AllowedExtensions.
func ValidateUploadFilename(raw string) (string, error) {
	if raw == "" {
		return "", validationErrorf("file", "no file received")
	}
	filename := SecureFilename(raw)
	if filename == "" {
		return "", validationErrorf("file", "unusable filename %q", raw)
	}

	ext := ""
	if i := strings.LastIndex(filename, "."); i >= 0 {
		ext = strings.ToLower(filename[i+1:])
	}
	if !AllowedExtensions[ext] {
		return "", validationErrorf("file", "unable to upload file with extension %q", ext)
	}
	return filename, nil
}

// SecureFilename reduces a client filename to a safe base name made of
// ASCII letters, digits, '.', '_' and '-'.
func SecureFilename(raw string) string {
	base := filepath.Base(strings.ReplaceAll(raw, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.TrimLeft(b.String(), "._")
}
