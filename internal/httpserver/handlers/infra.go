package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`

	Cache         *snapshot.Stats `json:"cache,omitempty"`
	File          string          `json:"file,omitempty"`
	FragmentHosts *int            `json:"fragment_hosts,omitempty"`
	TTLOverrides  *int            `json:"ttl_overrides,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of every component.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"resolver": resolverStatus(d),
			"redis":    checkRedis(r.Context(), d),
			"policy":   policyStatus(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if resolver, exists := components["resolver"]; exists && !resolver.OK {
		return "critical"
	}

	// Redis down means no persistence across restarts, nothing more
	if redis, exists := components["redis"]; exists && !redis.OK && redis.Mode != "disabled" {
		return "degraded"
	}

	return "optimal"
}

func resolverStatus(d deps.Deps) componentStatus {
	if d.Resolver == nil {
		return componentStatus{OK: false, Error: "resolver not initialized"}
	}
	stats := d.Resolver.Stats()
	return componentStatus{OK: true, Mode: "single-flight", Cache: &stats}
}

func policyStatus(d deps.Deps) componentStatus {
	if d.Policy == nil {
		return componentStatus{OK: true, Mode: "default"}
	}
	p := d.Policy.Load()
	hosts, overrides := len(p.KeepFragmentHosts), p.Overrides()
	mode := "file"
	if d.PolicyFile == "" {
		mode = "default"
	}
	return componentStatus{
		OK:            true,
		Mode:          mode,
		File:          d.PolicyFile,
		FragmentHosts: &hosts,
		TTLOverrides:  &overrides,
	}
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "snapshots-not-persisted",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "snapshots-not-persisted",
			Error:  "timeout",
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "snapshots-persisted",
	}
}
