package routes

import (
	"net/http"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/metrics"
)

func walk(t *testing.T, r chi.Routes) map[string]bool {
	t.Helper()
	got := map[string]bool{}
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		got[method+" "+route] = true
		return nil
	})
	if err != nil {
		t.Fatalf("chi.Walk() error = %v", err)
	}
	return got
}

func TestRegisterAllMountsEveryGroup(t *testing.T) {
	r := chi.NewRouter()
	RegisterAll(r, deps.Deps{
		Logger:  logger.NewNop(),
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	})
	got := walk(t, r)

	want := []string{
		"GET /healthz",
		"GET /readyz",
		"GET /infra",
		"POST /reload",
		"GET /metrics",
		"GET /snapshot",
		"GET /view",
		"POST /anchors/",
		"POST /anchors/recover",
	}
	for _, w := range want {
		if !got[w] {
			keys := make([]string, 0, len(got))
			for k := range got {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			t.Errorf("route %q not registered, have %v", w, keys)
		}
	}
}

func TestMetricsRouteNeedsCollectors(t *testing.T) {
	r := chi.NewRouter()
	RegisterAll(r, deps.Deps{Logger: logger.NewNop()})

	if walk(t, r)["GET /metrics"] {
		t.Error("/metrics registered without collectors")
	}
}
