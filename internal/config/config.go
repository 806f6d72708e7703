package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request budget, must cover FetchTimeout

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Snapshot cache
	CacheTTL       time.Duration // default freshness window (ex: 10m)
	CacheRetention time.Duration // idle entries older than this are swept (ex: 24h)
	CacheCapacity  int           // max entries kept in memory
	SweepInterval  time.Duration // how often idle entries are swept
	WarmLimit      int           // snapshots loaded from redis at startup

	// Fetcher
	FetchTimeout time.Duration // per fetch, independent of callers (ex: 20s)
	MaxBodyBytes int64         // larger responses fail the fetch
	UserAgent    string
	Readability  bool // extract main content before conversion

	// Anchors
	FuzzyThreshold float64 // minimum similarity for an approximate match

	// Site policy
	PolicyFile     string        // optional, empty = default policy, no reloads
	ReloadInterval time.Duration // interval to reload the policy file (default: 1h)

	// Rate limit on the retrieval routes
	RateLimitBurst  int
	RateLimitRefill int // tokens per IP per minute

	// Redis (optional, empty address = in-memory only)
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts []string // optional, restrict admin endpoints to specific Host headers
	AllowedCIDRS []string // optional, restrict admin endpoints to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("FOLIO_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("FOLIO_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("FOLIO_REQUEST_TIMEOUT", 30*time.Second),

		// Logging
		LogLevel:  getenv("FOLIO_LOG_LEVEL", "info"),
		PrettyLog: mustBool("FOLIO_PRETTY_LOG", true),

		// Snapshot cache
		CacheTTL:       mustDuration("FOLIO_CACHE_TTL", 10*time.Minute),
		CacheRetention: mustDuration("FOLIO_CACHE_RETENTION", 24*time.Hour),
		CacheCapacity:  getenvInt("FOLIO_CACHE_CAPACITY", 1024),
		SweepInterval:  mustDuration("FOLIO_SWEEP_INTERVAL", 10*time.Minute),
		WarmLimit:      getenvInt("FOLIO_WARM_LIMIT", 256),

		// Fetcher
		FetchTimeout: mustDuration("FOLIO_FETCH_TIMEOUT", 20*time.Second),
		MaxBodyBytes: getenvInt64("FOLIO_MAX_BODY_BYTES", 10<<20),
		UserAgent:    getenv("FOLIO_USER_AGENT", ""),
		Readability:  mustBool("FOLIO_READABILITY", true),

		// Anchors
		FuzzyThreshold: getenvFloat("FOLIO_FUZZY_THRESHOLD", 0.7),

		// Site policy
		PolicyFile:     getenv("FOLIO_POLICY_FILE", ""), // Optional, empty = default policy
		ReloadInterval: mustDuration("FOLIO_RELOAD_POLICY_INTERVAL", time.Hour),

		// Rate limit
		RateLimitBurst:  getenvInt("FOLIO_RATE_LIMIT_BURST", 20),
		RateLimitRefill: getenvInt("FOLIO_RATE_LIMIT_REFILL", 60),

		// Redis settings
		RedisAddr:             getenv("FOLIO_REDIS_ADDR", ""),
		RedisUser:             getenv("FOLIO_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("FOLIO_REDIS_PASSWORD_REQUIRED", false),
		RedisDB:               getenvInt("FOLIO_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("FOLIO_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("FOLIO_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("FOLIO_TRUST_PROXY", false),
	}

	// A password is only demanded when redis is actually in use
	if cfg.RedisAddr != "" && cfg.RedisPasswordRequired {
		cfg.RedisPassword = requireEnv("FOLIO_REDIS_PASSWORD")
	} else {
		cfg.RedisPassword = getenv("FOLIO_REDIS_PASSWORD", "")
	}

	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		panic(fmt.Sprintf("❌ FATAL: FOLIO_FUZZY_THRESHOLD must be in (0, 1], got %v", cfg.FuzzyThreshold))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// RedisEnabled reports whether snapshots are persisted to redis.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cfgCopy := *c
	if cfgCopy.RedisPassword != "" {
		cfgCopy.RedisPassword = "***REDACTED***"
	}
	if cfgCopy.RedisUser != "" {
		cfgCopy.RedisUser = "***REDACTED***"
	}
	return cfgCopy
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
