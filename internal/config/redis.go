package config

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "os"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from REDIS_URL, or from REDIS_ADDR
// (REDIS_HOST + REDIS_PORT) with REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func RedisOptions() (*redis.Options, error) {
    if u := os.Getenv("REDIS_URL"); u != "" {
        opt, err := redis.ParseURL(u)
        if err != nil {
            return nil, fmt.Errorf("REDIS_URL: %w", err)
        }
        return opt, nil
    }
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    opt := &redis.Options{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
    }
    if envBool("REDIS_TLS", false) {
        opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opt, nil
}

// NewRedisClient connects to Redis. It returns nil when Redis is
// misconfigured or unreachable; the rate limiter and response cache are
// then pass-through.
func NewRedisClient() *redis.Client {
    opt, err := RedisOptions()
    if err != nil {
        log.Printf("config: %v; cache and rate limit disabled", err)
        return nil
    }
    client := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Printf("config: redis at %s unavailable, cache and rate limit disabled: %v", opt.Addr, err)
        _ = client.Close()
        return nil
    }
    return client
}
