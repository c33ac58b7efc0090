package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "opustrack")
	t.Setenv("JWT_SECRET", "secret")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, 7, cfg.RefreshTTLDays)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "opustrack_session", cfg.SessionCookie)
	assert.Equal(t, int64(10<<20), cfg.UploadMaxBytes)
	assert.Equal(t, "opustrack.events", cfg.EventsQueue)
	assert.False(t, cfg.IsProd())
	assert.False(t, cfg.CookieSecure)
}

func TestCookieSecureFollowsEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.CookieSecure, "production defaults to Secure cookies")

	t.Setenv("COOKIE_SECURE", "false")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.CookieSecure, "explicit setting wins")
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "Production")
	t.Setenv("PUBLIC_BASE_URL", "https://ops.example.com/")
	t.Setenv("COOKIE_SECURE", "yes")
	t.Setenv("RABBITMQ_URL", "amqp://mq")
	t.Setenv("AMQP_URL", "amqp://ignored")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "https://ops.example.com", cfg.PublicBaseURL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "amqp://mq", cfg.AMQPURL)
}

func TestFromEnvErrors(t *testing.T) {
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("JWT_SECRET", "")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	setRequired(t)
	t.Setenv("BCRYPT_COST", "2")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "BCRYPT_COST")

	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "0")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "TTL")
}

func TestLoadDotEnvKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("OPUSTRACK_TEST_A=file\nOPUSTRACK_TEST_B=file\n"), 0o600))
	t.Setenv("OPUSTRACK_TEST_A", "env")
	t.Setenv("OPUSTRACK_TEST_B", "")
	require.NoError(t, os.Unsetenv("OPUSTRACK_TEST_B"))

	LoadDotEnv(filepath.Join(dir, "missing.env"), p)
	assert.Equal(t, "env", os.Getenv("OPUSTRACK_TEST_A"))
	assert.Equal(t, "file", os.Getenv("OPUSTRACK_TEST_B"))
}

func TestRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL, "ttl is raised to five refill intervals")

	t.Setenv("RATE_LIMIT_BURST", "50")
	assert.Equal(t, 50, LoadRateLimitConfig().Capacity)
}

func TestCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head ,")
	t.Setenv("CACHE_TTL", "bogus")
	cfg := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.Equal(t, "opustrack:cache", cfg.Prefix)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "true")
	opt, err := RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)
	assert.NotNil(t, opt.TLSConfig)

	t.Setenv("REDIS_URL", "redis://:pw@redis.internal:6379/3")
	opt, err = RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 3, opt.DB)

	t.Setenv("REDIS_URL", "http://nope")
	_, err = RedisOptions()
	assert.ErrorContains(t, err, "REDIS_URL")
}
