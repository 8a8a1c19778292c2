package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boogy/aws-cwt-issuer/internal/testutil"
	"github.com/boogy/aws-cwt-issuer/pkg/config"
	"github.com/boogy/aws-cwt-issuer/pkg/cose"
)

func keySet(t *testing.T, kid string) *cose.KeySet {
	t.Helper()
	set, err := cose.ParseKeySet(testutil.JWKSDocument(t, testutil.Ed25519JWK(kid)))
	require.NoError(t, err)
	return set
}

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemoryCache()

	_, found := c.Get("file:keys.jwks")
	assert.False(t, found)

	set := keySet(t, "a")
	c.Set("file:keys.jwks", set, time.Minute)

	got, found := c.Get("file:keys.jwks")
	require.True(t, found)
	assert.Same(t, set, got)

	c.Delete("file:keys.jwks")
	_, found = c.Get("file:keys.jwks")
	assert.False(t, found)
}

func TestMemoryCacheExpiration(t *testing.T) {
	c := NewMemoryCacheWithOptions(10, time.Minute)

	c.Set("short", keySet(t, "a"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, found := c.Get("short")
	assert.False(t, found)
}

func TestMemoryCacheLRUEviction(t *testing.T) {
	c := NewMemoryCacheWithOptions(2, time.Minute)

	c.Set("first", keySet(t, "1"), 0)
	time.Sleep(2 * time.Millisecond)
	c.Set("second", keySet(t, "2"), 0)
	time.Sleep(2 * time.Millisecond)

	// touch first so second becomes the least recently used
	_, found := c.Get("first")
	require.True(t, found)
	time.Sleep(2 * time.Millisecond)

	c.Set("third", keySet(t, "3"), 0)

	_, found = c.Get("second")
	assert.False(t, found, "second should have been evicted")
	_, found = c.Get("first")
	assert.True(t, found)
	_, found = c.Get("third")
	assert.True(t, found)
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	c := NewMemoryCacheWithOptions(1, time.Minute)

	c.Set("only", keySet(t, "1"), 0)
	c.Set("only", keySet(t, "2"), 0)

	got, found := c.Get("only")
	require.True(t, found)
	assert.Equal(t, []string{"2"}, got.KeyIDs())
}

func TestMemoryCacheCleanupAndStats(t *testing.T) {
	c := NewMemoryCacheWithOptions(5, time.Minute)

	c.Set("expired", keySet(t, "1"), time.Millisecond)
	c.Set("live", keySet(t, "2"), time.Minute)
	time.Sleep(5 * time.Millisecond)

	stats := c.GetStats()
	assert.Equal(t, 2, stats["size"])
	assert.Equal(t, 5, stats["maxSize"])
	assert.Equal(t, 1, stats["expired"])

	c.Cleanup()
	stats = c.GetStats()
	assert.Equal(t, 1, stats["size"])
	assert.Equal(t, 0, stats["expired"])
}

func TestNewCache(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr bool
	}{
		{name: "nil config", cfg: nil},
		{name: "memory", cfg: &config.Config{Cache: &config.Cache{Type: "memory", TTL: time.Minute, MaxLocalSize: 3}}},
		{name: "empty type", cfg: &config.Config{Cache: &config.Cache{}}},
		{name: "unsupported", cfg: &config.Config{Cache: &config.Cache{Type: "redis"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCache(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}

	c, err := NewCache(&config.Config{Cache: &config.Cache{Type: "memory", MaxLocalSize: 3}})
	require.NoError(t, err)
	assert.Equal(t, 3, c.(*memoryCache).maxSize)
	assert.Equal(t, Defaults.TTL, c.(*memoryCache).defaultTTL)
}
