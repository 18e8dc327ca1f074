package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"annotatrix/internal/annotatrix"
	"annotatrix/internal/config"
	"annotatrix/internal/converter"
	"annotatrix/internal/database"
	"annotatrix/internal/encryption"
	"annotatrix/internal/identity"
	"annotatrix/internal/metrics"
	"annotatrix/internal/server"
	"annotatrix/internal/session"
	"annotatrix/internal/vault"
)

// App is the application layer between the CLI and the core services.
// It constructs all dependencies from config and releases them on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	core    annotatrix.Logger
	logFile *os.File
	sealer  annotatrix.TokenSealer
	stores  annotatrix.StoreOpener
	closers []func() error
}

// New creates an App from cfg. component names the command in log lines
// (e.g. "server", "corpus"). The caller must call Close when done.
func New(cfg *config.Config, component string, level slog.Level) (*App, error) {
	logger, logFile, err := newLogger(cfg.LogDir, component, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Tokens)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating token sealer: %w", err)
	}

	stores, err := database.NewOpenerFromConfig(cfg.Corpora, sealer, annotatrix.RealClock{}, annotatrix.UUIDGenerator{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating corpus stores: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		core:    &slogAdapter{l: logger},
		logFile: logFile,
		sealer:  sealer,
		stores:  stores,
	}
	if c, ok := stores.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// NeedsPassphrase reports whether stored tokens are sealed with a
// passphrase-protected key that must be unlocked before serving.
func (a *App) NeedsPassphrase() bool {
	_, ok := a.sealer.(*encryption.AgeSealer)
	return ok
}

// UnlockTokens unlocks the token key. It is a no-op for plain sealing.
func (a *App) UnlockTokens(passphrase string) error {
	s, ok := a.sealer.(*encryption.AgeSealer)
	if !ok {
		return nil
	}
	if !s.IsConfigured() {
		return fmt.Errorf("token keys not found, run 'annotatrix config init' first")
	}
	return s.Unlock(passphrase)
}

// Server wires the HTTP server: GitHub identity, the converter, sessions
// and metrics.
func (a *App) Server() (*server.Server, error) {
	cfg := a.cfg

	gh, err := identity.NewGitHub(cfg.GitHub, cfg.Server.CallbackURL())
	if err != nil {
		return nil, fmt.Errorf("creating identity provider: %w", err)
	}
	a.closers = append(a.closers, func() error {
		gh.Close()
		return nil
	})

	m := metrics.New()

	proc, err := converter.NewFromConfig(cfg.Converter, cfg.Server, a.core)
	if err != nil {
		return nil, fmt.Errorf("creating converter: %w", err)
	}

	clock := annotatrix.RealClock{}
	ids := annotatrix.UUIDGenerator{}

	return server.New(server.Options{
		Gateway:   annotatrix.NewCorpusGateway(a.stores, m.InstrumentConverter(proc), a.core, ids, cfg.Corpora.ScratchDir),
		Binder:    annotatrix.NewIdentityBinder(a.stores, gh, a.core, ids),
		Sessions:  session.NewCodec(cfg.Server.SecretKey, cfg.Server.Protocol == "https", clock),
		Metrics:   m,
		Logger:    a.logger,
		StaticDir: cfg.Server.StaticDir,
		Upload:    cfg.Upload,
	}), nil
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return err
	}
	shutdownTimeout, err := a.cfg.Server.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "url", fmt.Sprintf("%s://%s/", a.cfg.Server.Protocol, a.cfg.Server.Addr()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// ListCorpora returns the ids of every stored treebank.
func (a *App) ListCorpora() ([]string, error) {
	return a.stores.List()
}

// ExportCorpus writes a treebank's regenerated corpus text to w and returns
// its display filename.
func (a *App) ExportCorpus(ctx context.Context, treebankID string, w io.Writer) (string, error) {
	gw := annotatrix.NewCorpusGateway(a.stores, nil, a.core, annotatrix.UUIDGenerator{}, a.cfg.Corpora.ScratchDir)
	dl, err := gw.Download(ctx, treebankID)
	if err != nil {
		return "", err
	}
	defer dl.Close()

	if _, err := io.Copy(w, dl.File); err != nil {
		return "", fmt.Errorf("writing corpus: %w", err)
	}
	return dl.Name, nil
}

// BackupAll snapshots every store into the configured vault.
func (a *App) BackupAll(ctx context.Context) (int, error) {
	svc, err := a.backupService(ctx)
	if err != nil {
		return 0, err
	}
	return svc.BackupAll(ctx)
}

// Restore installs the vault's snapshot of an absent treebank.
func (a *App) Restore(ctx context.Context, treebankID string) error {
	svc, err := a.backupService(ctx)
	if err != nil {
		return err
	}
	return svc.Restore(ctx, treebankID)
}

func (a *App) backupService(ctx context.Context) (*annotatrix.BackupService, error) {
	v, err := vault.NewVaultFromConfig(ctx, a.cfg.Backup)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	return annotatrix.NewBackupService(a.stores, v, a.core, annotatrix.RealClock{}, a.cfg.Corpora.ScratchDir), nil
}

// Close releases the stores, the identity provider and the log file.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
