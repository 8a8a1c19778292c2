package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/boogy/aws-cwt-issuer/pkg/cache"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

func TestBootstrapCleanupDropsExpiredKeys(t *testing.T) {
	keyCache := cache.NewMemoryCacheWithOptions(10, time.Minute)
	keyCache.Set("stale", &cose.KeySet{}, time.Millisecond)
	keyCache.Set("live", &cose.KeySet{}, time.Minute)
	time.Sleep(5 * time.Millisecond)

	b := &Bootstrap{Cache: keyCache, Logger: testLogger()}
	b.Cleanup()

	stats := keyCache.GetStats()
	assert.Equal(t, 1, stats["size"])
	assert.Equal(t, 0, stats["expired"])

	_, found := keyCache.Get("live")
	assert.True(t, found)
}
