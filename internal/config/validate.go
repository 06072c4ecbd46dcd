package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validatePoll(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", c.API.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api.base_url must include a host, got %q", c.API.BaseURL)
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.MaxBytes <= 0 {
		return errors.New("upload.max_bytes must be positive")
	}
	switch c.Upload.ProgressMode {
	case ProgressModeEstimate, ProgressModeBytes:
	default:
		return fmt.Errorf("upload.progress_mode must be %q or %q, got %q", ProgressModeEstimate, ProgressModeBytes, c.Upload.ProgressMode)
	}
	if c.Upload.ProgressCeiling <= 0 || c.Upload.ProgressCeiling >= 100 {
		return errors.New("upload.progress_ceiling must be between 1 and 99")
	}
	if c.Upload.ProgressStep <= 0 {
		return errors.New("upload.progress_step must be positive")
	}
	return nil
}

func (c *Config) validatePoll() error {
	if c.Poll.MaxAttempts < 1 {
		return errors.New("poll.max_attempts must be >= 1")
	}
	if c.Cache.RetentionDays < 0 {
		return errors.New("cache.retention_days must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"poll.interval_ms":              c.Poll.IntervalMS,
		"poll.fetch_timeout_ms":         c.Poll.FetchTimeoutMS,
		"api.request_timeout_seconds":   c.API.RequestTimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validatePlayback() error {
	if strings.ContainsAny(c.Playback.FFprobeBinary, "\n\r") {
		return errors.New("playback.ffprobe_binary must be a single path")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.NATSURL == "" {
		return nil
	}
	if strings.ContainsAny(c.Events.Subject, " *>") {
		return fmt.Errorf("events.subject must be a literal subject, got %q", c.Events.Subject)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
