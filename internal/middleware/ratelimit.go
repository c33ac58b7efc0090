package middleware

import (
    "context"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/opustrack/opustrack/internal/config"
)

// bucketScript refills KEYS[1] by whole intervals, then tries to take one
// token. ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed, remaining, retry_after_ms}.
var bucketScript = redis.NewScript(`
local now, cap, step, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens, at = tonumber(b[1]) or cap, tonumber(b[2]) or now
if now > at then
  local n = math.floor((now - at) / every)
  tokens = math.min(cap, tokens + n * step)
  at = at + n * every
end
local ok, wait = 0, 0
if tokens >= 1 then
  ok, tokens = 1, tokens - 1
else
  wait = every - (now - at)
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', at)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

type bucketResult struct {
    allowed   bool
    remaining int64
    retryMs   int64
}

// take spends one token from the bucket at key.
func take(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (bucketResult, error) {
    out, err := bucketScript.Run(ctx, rdb, []string{key},
        now.UnixMilli(), cfg.Capacity, cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(), int64(cfg.TTL.Seconds()),
    ).Slice()
    if err != nil {
        return bucketResult{}, err
    }
    if len(out) != 3 {
        return bucketResult{}, fmt.Errorf("ratelimit: script returned %d values", len(out))
    }
    return bucketResult{allowed: asInt64(out[0]) == 1, remaining: asInt64(out[1]), retryMs: asInt64(out[2])}, nil
}

// NewTokenBucket limits requests with a Redis token bucket shared by every
// API replica. Without Redis, or when Redis errors, requests pass.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    limit := strconv.Itoa(cfg.Capacity)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            res, err := take(c.Request().Context(), rdb, cfg, key, time.Now())
            if err != nil {
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] key=%s: %v", key, err)
                }
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if res.allowed {
                return next(c)
            }
            secs := (res.retryMs + 999) / 1000
            h.Set("Retry-After", strconv.FormatInt(secs, 10))
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

// asInt64 reads a Lua reply number.
func asInt64(v any) int64 {
    switch n := v.(type) {
    case int64:
        return n
    case int:
        return int64(n)
    case float64:
        return int64(n)
    case string:
        i, _ := strconv.ParseInt(n, 10, 64)
        return i
    }
    return 0
}

// buildRateKey names the bucket of a request per RATE_LIMIT_KEY_STRATEGY:
// ip, user, ip_route, ip_user_route or ip_user (default).
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := userID(c)
    route := c.Request().Method + " " + c.Path()

    var segs []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        segs = []string{"ip", ip}
    case "user":
        // anonymous callers share their address's bucket
        if uid == "guest" {
            segs = []string{"ip", ip}
        } else {
            segs = []string{"user", uid}
        }
    case "ip_route":
        segs = []string{"ip", ip, "route", route}
    case "ip_user_route":
        segs = []string{"ip", ip, "user", uid, "route", route}
    default:
        segs = []string{"ip", ip, "user", uid}
    }
    return cfg.Prefix + ":" + strings.Join(segs, ":")
}
