package config

import "time"

// RateLimitConfig drives the Redis token bucket placed in front of the
// unauthenticated auth endpoints.  Every successful request consumes one
// token; RefillTokens are added back every RefillInterval up to Capacity.
type RateLimitConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"true"`
	Capacity       int           `env:"CAPACITY" envDefault:"20"`
	RefillTokens   int           `env:"REFILL_TOKENS" envDefault:"1"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"3s"`
	TTL            time.Duration `env:"TTL" envDefault:"10m"`
	KeyStrategy    string        `env:"KEY_STRATEGY" envDefault:"ip_route"`
	Prefix         string        `env:"PREFIX" envDefault:"rl"`
	Debug          bool          `env:"DEBUG" envDefault:"false"`
}

// normalize clamps values so the Lua script never sees a zero interval and
// bucket keys outlive a full refill cycle.
func (c *RateLimitConfig) normalize() {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
}
