package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"annotatrix/internal/app"
	"annotatrix/internal/config"
	"annotatrix/internal/encryption"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// envPassphrase unlocks the token key without a prompt, e.g. under systemd.
const envPassphrase = "ANNOTATRIX_TOKEN_PASSPHRASE"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and overlays the environment and the .env file.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		cfg = config.NewConfig(defaults["base_dir"])
	}

	envFile, _ := rootCmd.PersistentFlags().GetString("env-file")
	if err := config.ApplyEnv(cfg, envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads the config and creates an App. The caller must defer a.Close().
// component names the command in log lines.
func newApp(component string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if debug, _ := rootCmd.PersistentFlags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	a, err := app.New(cfg, component, level)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readPassphrase(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no terminal to read the passphrase from, set %s", envPassphrase)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func newSecretKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "annotatrix",
	Short:        "Annotatrix treebank server",
	SilenceUsage: true,
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the annotatrix HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		a, err := newApp("server")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.NeedsPassphrase() {
			passphrase := os.Getenv(envPassphrase)
			if passphrase == "" {
				if passphrase, err = readPassphrase("Token passphrase: "); err != nil {
					return err
				}
			}
			if err := a.UnlockTokens(passphrase); err != nil {
				return fmt.Errorf("unlocking tokens: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and token keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if cfg.Server.SecretKey, err = newSecretKey(); err != nil {
			return err
		}

		secret, err := readPassphrase("GitHub client secret (empty to use " + config.EnvGitHubClientSecret + "): ")
		if err != nil {
			return err
		}
		cfg.GitHub.ClientSecret = secret

		passphrase, err := readPassphrase("New token passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat token passphrase: ")
		if err != nil {
			return err
		}
		if passphrase == "" || passphrase != confirm {
			return fmt.Errorf("passphrases are empty or do not match")
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if err := encryption.NewAgeSealer(cfg.Tokens).Setup(passphrase); err != nil {
			return fmt.Errorf("failed to create token keys: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Token key: %s\n", cfg.Tokens.PublicKeyPath)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Listen:     %s://%s\n", cfg.Server.Protocol, cfg.Server.Addr())
		if cfg.Server.PublicURL != "" {
			fmt.Printf("Public URL: %s\n", cfg.Server.PublicURL)
		}
		fmt.Printf("Corpora:    %s %s\n", cfg.Corpora.Type, cfg.Corpora.Dir)
		fmt.Printf("Converter:  %s (timeout %s)\n", cfg.Converter.Command, cfg.Converter.Timeout)
		fmt.Printf("Tokens:     %s\n", cfg.Tokens.Type)
		fmt.Printf("Backup:     %s\n", cfg.Backup.Type)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\n%v\n", err)
		}
		return nil
	},
}

// corpus command
var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage stored treebanks",
}

var corpusListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored treebanks",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("corpus")
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.ListCorpora()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No treebanks stored.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var corpusExportCmd = &cobra.Command{
	Use:   "export TREEBANK_ID",
	Short: "Write a treebank's corpus text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("corpus")
		if err != nil {
			return err
		}
		defer a.Close()

		if output == "" {
			_, err := a.ExportCorpus(cmd.Context(), args[0], os.Stdout)
			return err
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		name, err := a.ExportCorpus(cmd.Context(), args[0], f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(output)
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %s to %s\n", name, output)
		return nil
	},
}

var corpusBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot every treebank into the backup vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.BackupAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Backed up %d treebank(s)\n", count)
		return nil
	},
}

var corpusRestoreCmd = &cobra.Command{
	Use:   "restore TREEBANK_ID",
	Short: "Restore a treebank from the backup vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Restore(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before reading settings")
	rootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// corpus subcommands
	corpusCmd.AddCommand(corpusListCmd)
	corpusCmd.AddCommand(corpusExportCmd)
	corpusExportCmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	corpusCmd.AddCommand(corpusBackupCmd)
	corpusCmd.AddCommand(corpusRestoreCmd)

	// root commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(corpusCmd)
}
