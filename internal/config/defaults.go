package config

const (
	defaultConfigPath            = "~/.config/courtside/config.toml"
	defaultBaseURL               = "http://localhost:8000"
	defaultArtifactPath          = "/processed"
	defaultRequestTimeoutSeconds = 120
	defaultUserAgent             = "Courtside/dev"
	defaultMaxBytes              = 100 * 1024 * 1024
	defaultProgressCeiling       = 90
	defaultProgressStep          = 10
	defaultProgressIntervalMS    = 200
	defaultPollIntervalMS        = 2000
	defaultFetchTimeoutMS        = 10000
	defaultPollMaxAttempts       = 3
	defaultRetryDelayMS          = 1000
	defaultDownloadDir           = "~/Downloads"
	defaultFFprobeBinary         = "ffprobe"
	defaultPlayer                = "mpv"
	defaultCacheRetentionDays    = 30
	defaultNotifyTimeout         = 10
	defaultEventSubject          = "courtside.jobs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"

	// ProgressModeEstimate reports synthetic upload progress.
	ProgressModeEstimate = "estimate"
	// ProgressModeBytes reports progress from bytes written to the transport.
	ProgressModeBytes = "bytes"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:               defaultBaseURL,
			ArtifactPath:          defaultArtifactPath,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			UserAgent:             defaultUserAgent,
		},
		Upload: Upload{
			MaxBytes:           defaultMaxBytes,
			ProgressMode:       ProgressModeEstimate,
			ProgressCeiling:    defaultProgressCeiling,
			ProgressStep:       defaultProgressStep,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		Poll: Poll{
			IntervalMS:     defaultPollIntervalMS,
			FetchTimeoutMS: defaultFetchTimeoutMS,
			MaxAttempts:    defaultPollMaxAttempts,
			RetryDelayMS:   defaultRetryDelayMS,
		},
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir(),
		},
		Cache: Cache{
			RetentionDays: defaultCacheRetentionDays,
		},
		Playback: Playback{
			FFprobeBinary: defaultFFprobeBinary,
			Player:        defaultPlayer,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Uploads:        true,
			Completions:    true,
			Failures:       true,
		},
		Events: Events{
			Subject: defaultEventSubject,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
