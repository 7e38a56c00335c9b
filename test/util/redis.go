// Package util provides test utilities and helper functions for storage testing.
package util

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	// Shared connection URL for all tests in local dev
	sharedRedisURL string
	containerOnce  sync.Once
	containerErr   error
)

// SetupTestRedis returns a Redis connection URL for tests.
// - CI: Connects to an external Redis service container via CI_REDIS_URL.
// - Local: Uses a shared testcontainer (started once per package).
// Callers isolate themselves by key prefix or by flushing between tests.
func SetupTestRedis(t *testing.T) string {
	if ciRedisURL := os.Getenv("CI_REDIS_URL"); ciRedisURL != "" {
		t.Log("Using external Redis from CI_REDIS_URL")
		return ciRedisURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared Redis testcontainer for all tests")

		redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			containerErr = fmt.Errorf("failed to start redis container: %w", err)
			return
		}

		url, err := redisContainer.ConnectionString(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}

		sharedRedisURL = url
		t.Logf("Shared container ready: %s", sharedRedisURL)
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedRedisURL
}
