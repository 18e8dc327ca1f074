package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultGitHubClientID is the OAuth app id of the public annotatrix deployment.
const DefaultGitHubClientID = "298b7a22eb8bc53567d1"

// Config represents the main configuration for annotatrix.
type Config struct {
	BaseDir   string          `toml:"base_dir"`
	LogDir    string          `toml:"log_dir"`
	Server    ServerConfig    `toml:"server"`
	Corpora   CorporaConfig   `toml:"corpora"`
	GitHub    GitHubConfig    `toml:"github"`
	Converter ConverterConfig `toml:"converter"`
	Tokens    TokensConfig    `toml:"tokens"`
	Backup    BackupConfig    `toml:"backup"`
	Upload    UploadConfig    `toml:"upload"`
}

// ServerConfig holds the HTTP listener and session settings.
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Protocol  string `toml:"protocol"` // "http" or "https", as seen by browsers
	SecretKey string `toml:"secret_key"`
	StaticDir string `toml:"static_dir"`

	// PublicURL is the base URL browsers reach the server at, e.g.
	// "https://annotatrix.example.org". When empty, GitHub redirects to the
	// callback registered for the OAuth app.
	PublicURL string `toml:"public_url,omitempty"`

	// ShutdownTimeout is a Go duration string, e.g. "10s".
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// CorporaConfig represents configuration for the corpus stores.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CorporaConfig struct {
	Type       string `toml:"type"`                  // "sqlite" or "memory"
	Dir        string `toml:"dir,omitempty"`         // only used for type=sqlite
	ScratchDir string `toml:"scratch_dir,omitempty"` // downloads and snapshots; system temp dir when empty
}

// GitHubConfig holds the OAuth app credentials. The URL fields override the
// public GitHub endpoints and are empty in normal deployments.
type GitHubConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AuthURL      string `toml:"auth_url,omitempty"`
	TokenURL     string `toml:"token_url,omitempty"`
	APIURL       string `toml:"api_url,omitempty"`
	CacheSize    int64  `toml:"cache_size"` // max cached username lookups
}

// ConverterConfig describes the external corpus converter run on upload.
type ConverterConfig struct {
	Command string `toml:"command"`
	Timeout string `toml:"timeout"`
}

// TokensConfig selects how OAuth tokens are sealed at rest.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TokensConfig struct {
	Type           string `toml:"type"` // "age" (default) or "none"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// BackupConfig represents configuration for the snapshot vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BackupConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible servers such as MinIO

	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// UploadConfig limits the upload endpoint.
type UploadConfig struct {
	MaxBytes      int64   `toml:"max_bytes"`
	RatePerMinute float64 `toml:"rate_per_minute"` // per client; 0 disables limiting
	Burst         int     `toml:"burst"`
}

// NewConfig creates a new Config rooted at baseDir with default values.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5316,
			Protocol:        "http",
			StaticDir:       "server/public",
			ShutdownTimeout: "10s",
		},
		Corpora: CorporaConfig{
			Type: "sqlite",
			Dir:  filepath.Join(baseDir, "corpora"),
		},
		GitHub: GitHubConfig{
			ClientID:  DefaultGitHubClientID,
			CacheSize: 1024,
		},
		Converter: ConverterConfig{
			Command: "./scripts/cli-parser.js",
			Timeout: "60s",
		},
		Tokens: TokensConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "tokens.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "tokens.key"),
		},
		Backup: BackupConfig{
			Type:        "filesystem",
			FSVaultRoot: filepath.Join(baseDir, "backups"),
		},
		Upload: UploadConfig{
			MaxBytes:      32 << 20,
			RatePerMinute: 10,
			Burst:         3,
		},
	}
}

// Addr is the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CallbackURL is the OAuth redirect URL sent to GitHub, or "" to use the
// registered callback.
func (s ServerConfig) CallbackURL() string {
	if s.PublicURL == "" {
		return ""
	}
	return strings.TrimRight(s.PublicURL, "/") + "/github-callback"
}

// ShutdownTimeoutDuration parses ShutdownTimeout, defaulting to 10s.
func (s ServerConfig) ShutdownTimeoutDuration() (time.Duration, error) {
	return parseDuration("server.shutdown_timeout", s.ShutdownTimeout, 10*time.Second)
}

// TimeoutDuration parses Timeout, defaulting to 60s.
func (c ConverterConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("converter.timeout", c.Timeout, 60*time.Second)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, value)
	}
	return d, nil
}

// Environment variables that override file values. The names match the
// variables the annotatrix server has always read.
const (
	EnvCorporaPath        = "PATH_TO_CORPORA"
	EnvSecretKey          = "SECRET_KEY"
	EnvHost               = "HOST"
	EnvPort               = "PORT"
	EnvProtocol           = "PROTOCOL"
	EnvGitHubClientID     = "GITHUB_CLIENT_ID"
	EnvGitHubClientSecret = "GITHUB_CLIENT_SECRET"
	EnvPublicURL          = "PUBLIC_URL"
)

// ApplyEnv overlays environment variables onto cfg. When envFile is not
// empty it is loaded first; a missing file is not an error. Variables
// already set in the process environment take precedence over the file.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvCorporaPath); v != "" {
		cfg.Corpora.Dir = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.Server.SecretKey = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvProtocol); v != "" {
		cfg.Server.Protocol = v
	}
	if v := os.Getenv(EnvPublicURL); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv(EnvGitHubClientID); v != "" {
		cfg.GitHub.ClientID = v
	}
	if v := os.Getenv(EnvGitHubClientSecret); v != "" {
		cfg.GitHub.ClientSecret = v
	}
	return nil
}

// Validate reports the settings that prevent the server from starting.
func (c *Config) Validate() error {
	var problems []string

	if c.GitHub.ClientID == "" {
		problems = append(problems, "github.client_id is required")
	}
	if c.GitHub.ClientSecret == "" {
		problems = append(problems, fmt.Sprintf("github.client_secret is required (set %s)", EnvGitHubClientSecret))
	}
	if c.Server.SecretKey == "" {
		problems = append(problems, fmt.Sprintf("server.secret_key is required (set %s)", EnvSecretKey))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	switch c.Server.Protocol {
	case "http", "https":
	default:
		problems = append(problems, fmt.Sprintf("server.protocol %q must be http or https", c.Server.Protocol))
	}
	if c.Server.PublicURL != "" {
		if u, err := url.Parse(c.Server.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("server.public_url %q must be an absolute http(s) URL", c.Server.PublicURL))
		}
	}
	switch c.Corpora.Type {
	case "sqlite":
		if c.Corpora.Dir == "" {
			problems = append(problems, "corpora.dir is required for sqlite corpora")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("unknown corpora type: %s", c.Corpora.Type))
	}
	if c.Converter.Command == "" {
		problems = append(problems, "converter.command is required")
	}
	if _, err := c.Converter.TimeoutDuration(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Server.ShutdownTimeoutDuration(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Upload.MaxBytes < 0 {
		problems = append(problems, "upload.max_bytes must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path. The file holds
// secrets, so it is created owner-readable only.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
