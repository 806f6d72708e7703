package deps

import (
	"time"

	"github.com/MrSnakeDoc/folio/internal/anchor"
	"github.com/MrSnakeDoc/folio/internal/canon"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/metrics"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
	"github.com/MrSnakeDoc/folio/internal/sources/policy"
	redisstore "github.com/MrSnakeDoc/folio/internal/store/redis"
	"github.com/MrSnakeDoc/folio/internal/version"
)

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Build           version.Info
	TimeNow         func() time.Time     // for testing, defaults to time.Now
	AllowedHosts    []string             // Host headers allowed to access admin endpoints
	AllowedCIDRS    []string             // IPs allowed to access admin endpoints
	TrustProxy      bool                 // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RateLimitBurst  int                  // requests allowed at once per IP on retrieval routes
	RateLimitRefill int                  // tokens per IP per minute
	Canonicalizer   *canon.Canonicalizer // raw URL -> cache key
	Resolver        *snapshot.Resolver   // snapshot cache
	Anchors         *anchor.Engine       // anchor recovery
	RecoverWorkers  int                  // parallel recoveries per request
	Metrics         *metrics.Metrics     // Prometheus collectors
	Store           *redisstore.Store    // Redis snapshot store (nil if redis disabled)
	Policy          *policy.Active       // site policy in force
	PolicyFile      string               // Path to the policy file (empty if none)
	ReloadTrigger   chan struct{}        // Channel to trigger manual policy reload (nil if no policy file)
}
