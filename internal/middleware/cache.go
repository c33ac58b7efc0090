package middleware

import (
    "bytes"
    "context"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/opustrack/opustrack/internal/config"
)

// captureWriter tees the response into buf, keeping at most limit bytes.
// size counts everything written so a truncated capture can be detected.
type captureWriter struct {
    http.ResponseWriter
    status int
    buf    bytes.Buffer
    size   int64
    limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
    cw.status = code
    cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
    keep := b
    if cw.limit > 0 {
        room := cw.limit - cw.size
        switch {
        case room <= 0:
            keep = nil
        case int64(len(b)) > room:
            keep = b[:room]
        }
    }
    cw.buf.Write(keep)
    cw.size += int64(len(b))
    return cw.ResponseWriter.Write(b)
}

// cacheKeyParts lists, per CACHE_KEY_STRATEGY, what distinguishes two
// cached catalog responses. Unknown strategies use route_query.
var cacheKeyParts = map[string]func(method, route, query string) []string{
    "route":              func(_, route, _ string) []string { return []string{"route", route} },
    "route_query":        func(_, route, query string) []string { return []string{"route", route, "q", query} },
    "method_route":       func(method, route, _ string) []string { return []string{"method", method, "route", route} },
    "method_route_query": func(method, route, query string) []string { return []string{"method", method, "route", route, "q", query} },
}

// cacheKeyFrom returns <prefix>:<sha256 hex>. Only the prefix stays
// readable, which is all RedisInvalidator needs.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    parts, ok := cacheKeyParts[strings.ToLower(cfg.KeyStrategy)]
    if !ok {
        parts = cacheKeyParts["route_query"]
    }
    r := c.Request()
    sum := sha256.Sum256([]byte(strings.Join(parts(r.Method, c.Path(), r.URL.RawQuery), ":")))
    return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// cachedResponse is what a cache entry holds.
type cachedResponse struct {
    Status int         `json:"status"`
    Header http.Header `json:"header"`
    Body   []byte      `json:"body"`
}

func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
    return json.Marshal(cachedResponse{Status: status, Header: header, Body: body})
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
    var cr cachedResponse
    if err := json.Unmarshal(bs, &cr); err != nil || cr.Status < 100 || cr.Status > 999 {
        return 0, nil, nil, false
    }
    if cr.Header == nil {
        cr.Header = make(http.Header)
    }
    return cr.Status, cr.Header, cr.Body, true
}

// responseCache is the state behind NewRedisCache.
type responseCache struct {
    cfg     config.CacheConfig
    rdb     *redis.Client
    ttl     time.Duration
    maxBody int64
}

// replay writes a stored entry and reports whether there was one.
func (rc *responseCache) replay(c echo.Context, key string) bool {
    bs, err := rc.rdb.Get(c.Request().Context(), key).Bytes()
    if err != nil {
        return false
    }
    status, hdr, body, ok := decodePayload(bs)
    if !ok {
        return false
    }
    out := c.Response().Header()
    for k, vals := range hdr {
        if strings.EqualFold(k, echo.HeaderContentLength) {
            continue
        }
        for _, v := range vals {
            out.Add(k, v)
        }
    }
    out.Set("X-Cache", "HIT")
    c.Response().WriteHeader(status)
    _, _ = c.Response().Write(body)
    return true
}

// store saves a complete 200 response. Cookies never go into the cache.
func (rc *responseCache) store(c echo.Context, key string, cw *captureWriter) {
    if cw.status != http.StatusOK || (rc.maxBody > 0 && cw.size > rc.maxBody) {
        return
    }
    hdr := c.Response().Header().Clone()
    hdr.Del(echo.HeaderSetCookie)
    hdr.Del("X-Cache")
    payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
    if err != nil {
        return
    }
    // the request context may already be cancelled once the client has its answer
    if err := rc.rdb.Set(context.Background(), key, payload, rc.ttl).Err(); err != nil {
        c.Logger().Warnf("[cache] store %s: %v", key, err)
    }
}

// NewRedisCache caches successful catalog responses of the configured
// methods. Admin writes drop them through a CacheInvalidator.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    rc := &responseCache{cfg: cfg, rdb: rdb, ttl: cfg.TTL, maxBody: int64(cfg.MaxBodyBytes)}
    if rc.ttl <= 0 {
        rc.ttl = 30 * time.Second
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
                return next(c)
            }
            key := cacheKeyFrom(cfg, c)
            if rc.replay(c, key) {
                return nil
            }

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: rc.maxBody}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }
            rc.store(c, key, cw)
            return nil
        }
    }
}

// CacheInvalidator drops cached catalog responses after a write.
type CacheInvalidator interface {
    Invalidate(ctx context.Context) error
}

// RedisInvalidator deletes every key under the cache prefix. A nil client
// makes it a no-op.
type RedisInvalidator struct {
    Prefix string
    RDB    *redis.Client
}

func (r RedisInvalidator) Invalidate(ctx context.Context) error {
    if r.RDB == nil {
        return nil
    }
    iter := r.RDB.Scan(ctx, 0, r.Prefix+":*", 200).Iterator()
    for iter.Next(ctx) {
        if err := r.RDB.Unlink(ctx, iter.Val()).Err(); err != nil {
            return err
        }
    }
    return iter.Err()
}
