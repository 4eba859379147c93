package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig builds the limiter settings of one scope.  Variables
// are named RATE_LIMIT_<SCOPE>_<SETTING>; def supplies the scope defaults.
func LoadRateLimitConfig(scope string, def RateLimitConfig) RateLimitConfig {
	p := "RATE_LIMIT_" + strings.ToUpper(scope) + "_"
	cfg := RateLimitConfig{
		Enabled:        envBool(p+"ENABLED", envBool("RATE_LIMIT_ENABLED", true)),
		Capacity:       envInt(p+"CAPACITY", def.Capacity),
		RefillTokens:   envInt(p+"REFILL_TOKENS", def.RefillTokens),
		RefillInterval: envDur(p+"REFILL_INTERVAL", def.RefillInterval),
		TTL:            envDur(p+"TTL", def.TTL),
		KeyStrategy:    envStr(p+"KEY_STRATEGY", def.KeyStrategy),
		Prefix:         envStr(p+"PREFIX", "rl:"+strings.ToLower(scope)),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	minTTL := 5 * cfg.RefillInterval
	if cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}

// LoginRateLimit throttles credential guessing per client address.
func LoginRateLimit() RateLimitConfig {
	return LoadRateLimitConfig("login", RateLimitConfig{
		Capacity:       10,
		RefillTokens:   1,
		RefillInterval: 30 * time.Second,
		TTL:            15 * time.Minute,
		KeyStrategy:    "ip",
	})
}

// SubmitRateLimit throttles complaint submissions per submitter fingerprint.
func SubmitRateLimit() RateLimitConfig {
	return LoadRateLimitConfig("submit", RateLimitConfig{
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            30 * time.Minute,
		KeyStrategy:    "fingerprint",
	})
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
