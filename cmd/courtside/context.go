package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"courtside/internal/config"
	"courtside/internal/events"
	"courtside/internal/jobcache"
	"courtside/internal/jobs"
	"courtside/internal/logging"
	"courtside/internal/notifications"
	"courtside/internal/pipeline"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.NewFromConfig(cfg, w)
}

// session bundles the collaborators a tracking command needs. The store is
// seeded from the job cache when enabled, and every applied change flows to
// the cache and the event publisher.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *pipeline.Client
	store     *jobs.Store
	cache     *jobcache.Cache
	publisher events.Publisher
	notifier  notifications.Service
}

func (c *commandContext) openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	client, err := pipeline.NewFromConfig(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	store := jobs.NewStore(client,
		jobs.WithFetchTimeout(cfg.FetchTimeout()),
		jobs.WithMaxAttempts(cfg.Poll.MaxAttempts),
		jobs.WithRetryDelay(cfg.RetryDelay()),
		jobs.WithLogger(logger),
	)

	s := &session{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		store:    store,
		notifier: notifications.NewService(cfg),
	}

	// Persistence and publishing outlive a cancelled command so the final
	// transitions still land.
	background := context.WithoutCancel(cmd.Context())

	if cfg.Cache.Enabled {
		cache, err := jobcache.OpenFromConfig(cmd.Context(), cfg, logger)
		if err != nil {
			return nil, err
		}
		if days := cfg.Cache.RetentionDays; days > 0 {
			cutoff := time.Now().AddDate(0, 0, -days)
			if removed, err := cache.Prune(cmd.Context(), cutoff); err != nil {
				logger.Warn("job cache prune failed", logging.Error(err))
			} else if removed > 0 {
				logger.Debug("pruned job cache", logging.Int64("removed", removed))
			}
		}
		cached, err := cache.Load(cmd.Context())
		if err != nil {
			cache.Close()
			return nil, err
		}
		store.Restore(cached...)
		store.Observe(cache.Observer(background))
		s.cache = cache
	}

	publisher, err := events.NewPublisher(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "event publisher unavailable", "event_connect_failed",
			logging.String("nats_url", cfg.Events.NATSURL),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job transitions will not be published"),
		)
		publisher = nil
	}
	if publisher != nil {
		store.Observe(events.Observer(background, publisher, logger))
		s.publisher = publisher
	}
	return s, nil
}

func (s *session) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("close job cache", logging.Error(err))
		}
	}
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(*session) error) error {
	s, err := c.openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
