package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeAPI()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeUpload()
	c.normalizePoll()
	c.normalizePlayback()
	c.normalizeNotifications()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		if value, ok := os.LookupEnv("COURTSIDE_API_URL"); ok {
			c.API.BaseURL = strings.TrimSpace(value)
		}
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")

	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("COURTSIDE_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}

	c.API.ArtifactPath = strings.TrimSpace(c.API.ArtifactPath)
	if c.API.ArtifactPath == "" {
		c.API.ArtifactPath = defaultArtifactPath
	}
	if !strings.HasPrefix(c.API.ArtifactPath, "/") {
		c.API.ArtifactPath = "/" + c.API.ArtifactPath
	}
	c.API.ArtifactPath = strings.TrimRight(c.API.ArtifactPath, "/")

	if c.API.RequestTimeoutSeconds <= 0 {
		c.API.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeUpload() {
	c.Upload.ProgressMode = strings.ToLower(strings.TrimSpace(c.Upload.ProgressMode))
	if c.Upload.ProgressMode == "" {
		c.Upload.ProgressMode = ProgressModeEstimate
	}
	if c.Upload.ProgressIntervalMS <= 0 {
		c.Upload.ProgressIntervalMS = defaultProgressIntervalMS
	}
}

func (c *Config) normalizePoll() {
	if c.Poll.IntervalMS <= 0 {
		c.Poll.IntervalMS = defaultPollIntervalMS
	}
	if c.Poll.FetchTimeoutMS <= 0 {
		c.Poll.FetchTimeoutMS = defaultFetchTimeoutMS
	}
	if c.Poll.RetryDelayMS < 0 {
		c.Poll.RetryDelayMS = 0
	}
}

func (c *Config) normalizePlayback() {
	c.Playback.FFprobeBinary = strings.TrimSpace(c.Playback.FFprobeBinary)
	if c.Playback.FFprobeBinary == "" {
		c.Playback.FFprobeBinary = defaultFFprobeBinary
	}
	c.Playback.Player = strings.TrimSpace(c.Playback.Player)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("COURTSIDE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeEvents() {
	c.Events.NATSURL = strings.TrimSpace(c.Events.NATSURL)
	if c.Events.NATSURL == "" {
		if value, ok := os.LookupEnv("COURTSIDE_NATS_URL"); ok {
			c.Events.NATSURL = strings.TrimSpace(value)
		}
	}
	c.Events.Subject = strings.Trim(strings.TrimSpace(c.Events.Subject), ".")
	if c.Events.Subject == "" {
		c.Events.Subject = defaultEventSubject
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
