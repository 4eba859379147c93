package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env              string        // application environment (e.g. "dev", "prod")
	Port             string        // HTTP port to listen on
	DBUser           string        // database username
	DBPass           string        // database password (optional)
	DBHost           string        // database host address
	DBPort           string        // database port number
	DBName           string        // database name
	DBMaxOpenConns   int           // pool size
	DBTimeout        time.Duration // per-operation statement/acquire budget
	JWTAccessSecret  string        // HMAC key for access tokens
	JWTRefreshSecret string        // HMAC key for refresh tokens, must differ from the access key
	AccessTTLMin     int           // access token time‑to‑live in minutes
	RefreshTTLDays   int           // refresh token time‑to‑live in days
	RefreshRotate    bool          // rotate the refresh token on every refresh
	BcryptCost       int           // bcrypt cost for password hashing
	SessionCap       int           // live refresh credentials kept per user
	LockTimeout      time.Duration // default Lock Manager acquire timeout
	FolioMaxAttempts int           // folio regenerations on a unique key collision
	LogLevel         string        // debug, info, warn, error
	TrustedProxies   []string      // CIDRs whose X-Forwarded-For is believed; empty means use the peer address
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		DBMaxOpenConns:   envInt("DB_MAX_OPEN_CONNS", 25),
		DBTimeout:        envDur("DB_TIMEOUT", 5*time.Second),
		JWTAccessSecret:  must("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: must("JWT_REFRESH_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:   envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		RefreshRotate:    envBool("REFRESH_ROTATE", false),
		BcryptCost:       envInt("BCRYPT_COST", 12),
		SessionCap:       envInt("SESSION_CAP", 3),
		LockTimeout:      envDur("LOCK_TIMEOUT", 2*time.Second),
		FolioMaxAttempts: envInt("FOLIO_MAX_ATTEMPTS", 5),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		TrustedProxies:   splitList(envStr("TRUSTED_PROXIES", "")),
	}
}

// LoadDatabase reads only what command line tools need to reach MySQL
// and hash passwords.
func LoadDatabase() Config {
	return Config{
		Env:            envStr("APP_ENV", "dev"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBMaxOpenConns: 2,
		DBTimeout:      envDur("DB_TIMEOUT", 5*time.Second),
		BcryptCost:     envInt("BCRYPT_COST", 12),
		LogLevel:       envStr("LOG_LEVEL", "info"),
	}
}

// IsDev reports whether verbose error messages may be returned to clients.
func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "development" || c.Env == "local"
}

// AccessTTL and RefreshTTL convert the configured units to durations.
func (c Config) AccessTTL() time.Duration  { return time.Duration(c.AccessTTLMin) * time.Minute }
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLDays) * 24 * time.Hour }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// splitList turns a comma separated value into its trimmed non-empty parts.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
