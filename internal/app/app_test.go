package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"annotatrix/internal/config"
	"annotatrix/internal/encryption"
)

func newTestConfig(t *testing.T, backupRoot string) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Tokens = config.TokensConfig{Type: "none"}
	cfg.Server.SecretKey = "test-secret"
	cfg.GitHub.ClientSecret = "test-client-secret"
	cfg.Backup.FSVaultRoot = backupRoot
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, "test", slog.LevelError)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestApp_ServerSaveExportBackupRestore(t *testing.T) {
	ctx := context.Background()
	backupRoot := t.TempDir()

	a := newTestApp(t, newTestConfig(t, backupRoot))
	srv, err := a.Server()
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/annotatrix/running", nil))
	if !strings.Contains(rec.Body.String(), `"running"`) {
		t.Errorf("running = %q", rec.Body.String())
	}

	form := url.Values{
		"treebank_id": {"abc"},
		"state":       {`{"filename": "abc.conllu", "sentences": [{"text": "one"}, {"text": "two"}]}`},
	}
	req := httptest.NewRequest(http.MethodPost, "/annotatrix/save", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"success"`) {
		t.Fatalf("save = %q, want success", rec.Body.String())
	}

	ids, err := a.ListCorpora()
	if err != nil {
		t.Fatalf("ListCorpora() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "abc" {
		t.Errorf("ListCorpora() = %v, want [abc]", ids)
	}

	var out bytes.Buffer
	name, err := a.ExportCorpus(ctx, "abc", &out)
	if err != nil {
		t.Fatalf("ExportCorpus() error = %v", err)
	}
	if name != "abc.conllu" || out.String() != "one\n\ntwo\n" {
		t.Errorf("ExportCorpus() = %q, %q", name, out.String())
	}

	count, err := a.BackupAll(ctx)
	if err != nil {
		t.Fatalf("BackupAll() error = %v", err)
	}
	if count != 1 {
		t.Errorf("BackupAll() = %d, want 1", count)
	}

	// A fresh installation sharing the backup root gets the corpus back.
	fresh := newTestApp(t, newTestConfig(t, backupRoot))
	if err := fresh.Restore(ctx, "abc"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	out.Reset()
	if _, err := fresh.ExportCorpus(ctx, "abc", &out); err != nil {
		t.Fatalf("ExportCorpus() after restore error = %v", err)
	}
	if out.String() != "one\n\ntwo\n" {
		t.Errorf("restored corpus = %q", out.String())
	}
}

func TestApp_MemoryCorpora(t *testing.T) {
	cfg := newTestConfig(t, t.TempDir())
	cfg.Corpora = config.CorporaConfig{Type: "memory"}
	a := newTestApp(t, cfg)

	ids, err := a.ListCorpora()
	if err != nil {
		t.Fatalf("ListCorpora() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ListCorpora() = %v, want none", ids)
	}
}

func TestApp_Tokens(t *testing.T) {
	t.Run("plain sealing needs no passphrase", func(t *testing.T) {
		a := newTestApp(t, newTestConfig(t, t.TempDir()))
		if a.NeedsPassphrase() {
			t.Error("NeedsPassphrase() = true for plain sealing")
		}
		if err := a.UnlockTokens(""); err != nil {
			t.Errorf("UnlockTokens() error = %v", err)
		}
	})

	t.Run("age sealing must be set up first", func(t *testing.T) {
		cfg := newTestConfig(t, t.TempDir())
		cfg.Tokens = config.NewConfig(cfg.BaseDir).Tokens
		a := newTestApp(t, cfg)

		if !a.NeedsPassphrase() {
			t.Error("NeedsPassphrase() = false for age sealing")
		}
		if err := a.UnlockTokens("pass"); err == nil {
			t.Error("UnlockTokens() expected error before key setup")
		}
	})

	t.Run("age sealing unlocks with the setup passphrase", func(t *testing.T) {
		cfg := newTestConfig(t, t.TempDir())
		cfg.Tokens = config.TokensConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(cfg.BaseDir, "keys", "tokens.pub"),
			PrivateKeyPath: filepath.Join(cfg.BaseDir, "keys", "tokens.key"),
		}
		if err := encryption.NewAgeSealer(cfg.Tokens).Setup("correct horse"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}

		a := newTestApp(t, cfg)
		if err := a.UnlockTokens("wrong"); err == nil {
			t.Error("UnlockTokens() accepted a wrong passphrase")
		}
		if err := a.UnlockTokens("correct horse"); err != nil {
			t.Errorf("UnlockTokens() error = %v", err)
		}
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t, t.TempDir())
	cfg.Corpora.Type = "postgres"

	if _, err := New(cfg, "test", slog.LevelError); err == nil {
		t.Error("New() expected error for unknown corpora type")
	}
}
