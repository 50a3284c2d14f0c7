package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func setupCache(t *testing.T) *SSLCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := NewSSLCache(ctx, addr, "", 1, time.Minute, zap.NewNop()) // DB 1 for tests
	if err != nil {
		t.Skip("Redis not available, skipping test")
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSSLCache_PutGetDelete(t *testing.T) {
	c := setupCache(t)
	ctx := context.Background()
	id := domain.TargetID("test-ssl-" + time.Now().Format("150405.000000"))

	got, err := c.GetSSL(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got, "miss should be nil, nil")

	to := time.Now().UTC().Add(20 * 24 * time.Hour).Truncate(time.Second)
	require.NoError(t, c.PutSSL(ctx, domain.SSLInfo{
		TargetID:  id,
		Host:      "example.com",
		Issuer:    "Test CA",
		ValidTo:   to,
		CheckedAt: time.Now().UTC().Truncate(time.Second),
	}))

	got, err = c.GetSSL(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "example.com", got.Host)
	assert.True(t, got.ValidTo.Equal(to))

	require.NoError(t, c.DeleteSSL(ctx, id))
	got, err = c.GetSSL(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}
