package testsupport

import (
	"context"
	"testing"

	"courtside/internal/config"
	"courtside/internal/jobcache"
	"courtside/internal/logging"
)

// MustOpenCache opens the job snapshot for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *jobcache.Cache {
	t.Helper()

	cache, err := jobcache.OpenFromConfig(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("jobcache.OpenFromConfig: %v", err)
	}
	t.Cleanup(func() {
		cache.Close()
	})
	return cache
}
