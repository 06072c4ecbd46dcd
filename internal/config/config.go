package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// API contains connection settings for the remote analysis pipeline.
type API struct {
	BaseURL               string `toml:"base_url"`
	Token                 string `toml:"token"`
	ArtifactPath          string `toml:"artifact_path"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	UserAgent             string `toml:"user_agent"`
}

// Upload contains client-side upload constraints and progress reporting settings.
type Upload struct {
	MaxBytes           int64  `toml:"max_bytes"`
	ProgressMode       string `toml:"progress_mode"`
	ProgressCeiling    int    `toml:"progress_ceiling"`
	ProgressStep       int    `toml:"progress_step"`
	ProgressIntervalMS int    `toml:"progress_interval_ms"`
}

// Poll contains job status polling settings.
type Poll struct {
	IntervalMS     int `toml:"interval_ms"`
	FetchTimeoutMS int `toml:"fetch_timeout_ms"`
	MaxAttempts    int `toml:"max_attempts"`
	RetryDelayMS   int `toml:"retry_delay_ms"`
}

// Paths contains local directories used by the client.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	StateDir    string `toml:"state_dir"`
}

// Cache controls the optional on-disk job snapshot.
type Cache struct {
	Enabled bool `toml:"enabled"`
	// RetentionDays drops finished jobs older than this on startup; 0 keeps
	// them forever.
	RetentionDays int `toml:"retention_days"`
}

// Playback contains settings for artifact playback.
type Playback struct {
	FFprobeBinary string `toml:"ffprobe_binary"`
	Player        string `toml:"player"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Uploads        bool   `toml:"uploads"`
	Completions    bool   `toml:"completions"`
	Failures       bool   `toml:"failures"`
}

// Events contains configuration for job lifecycle publishing over NATS.
type Events struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Courtside.
//
// Configuration sections by subsystem:
//   - API: pipeline endpoint, credential, and request timeout
//   - Upload: size ceiling and progress reporting
//   - Poll: status polling cadence and retry budget
//   - Paths: download and state directories
//   - Cache: opt-in job snapshot persisted between runs
//   - Playback: ffprobe and external player
//   - Notifications: ntfy push notification settings
//   - Events: NATS lifecycle publishing
//   - Logging: log format and level
type Config struct {
	API           API           `toml:"api"`
	Upload        Upload        `toml:"upload"`
	Poll          Poll          `toml:"poll"`
	Paths         Paths         `toml:"paths"`
	Cache         Cache         `toml:"cache"`
	Playback      Playback      `toml:"playback"`
	Notifications Notifications `toml:"notifications"`
	Events        Events        `toml:"events"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("courtside.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the download directory and, when the job cache is
// enabled, the state directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DownloadDir}
	if c.Cache.Enabled {
		dirs = append(dirs, c.Paths.StateDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the per-request HTTP timeout for pipeline calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the delay between status polling cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// FetchTimeout bounds a single status fetch attempt.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Poll.FetchTimeoutMS) * time.Millisecond
}

// RetryDelay returns the pause between failed attempts within one polling cycle.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Poll.RetryDelayMS) * time.Millisecond
}

// ProgressInterval returns the cadence of estimated upload progress values.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Upload.ProgressIntervalMS) * time.Millisecond
}

// RealProgress reports whether upload progress follows transferred bytes
// instead of the synthetic estimate.
func (c *Config) RealProgress() bool {
	return c.Upload.ProgressMode == ProgressModeBytes
}

// CachePath returns the SQLite job snapshot location.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "courtside")
	}
	return "~/.local/state/courtside"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
