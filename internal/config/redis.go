package config

// This file defines the Redis settings and client constructor.  Redis backs
// the shared token revocation list and the distributed rate limiter.  The
// client is built by the process entry point and closed on shutdown; callers
// receive it by injection.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds connection parameters and revocation-list settings.
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand, used when host/port are not both set
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS
//	REDIS_KEY_PREFIX – namespace for revoked-token fingerprints
//	REDIS_DEFAULT_TTL – entry TTL used when a caller cannot supply one
//	REDIS_TIMEOUT – upper bound for every revocation-store call
type Redis struct {
	Host       string        `env:"HOST"`
	Port       string        `env:"PORT"`
	Addr       string        `env:"ADDR" envDefault:"localhost:6379"`
	Password   string        `env:"PASSWORD"`
	DB         int           `env:"DB" envDefault:"0"`
	TLS        bool          `env:"TLS" envDefault:"false"`
	KeyPrefix  string        `env:"KEY_PREFIX" envDefault:"token_blacklist:"`
	DefaultTTL time.Duration `env:"DEFAULT_TTL" envDefault:"1h"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"500ms"`
}

// Address resolves the effective host:port.
func (r Redis) Address() string {
	if r.Host != "" && r.Port != "" {
		return r.Host + ":" + r.Port
	}
	if r.Addr == "" {
		return "localhost:6379"
	}
	return r.Addr
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout.  The client is always returned so the caller owns Close; a ping
// error means the server is unreachable right now, and the revocation list
// will fail open until it comes back.
func NewRedisClient(cfg Redis) (*redis.Client, error) {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		TLSConfig:    tlsConf,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client, client.Ping(ctx).Err()
}
