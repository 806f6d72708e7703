package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/syntax"
)

type viewResponse struct {
	URL         string        `json:"url"`
	DisplayURL  string        `json:"display_url"`
	Title       string        `json:"title,omitempty"`
	Markdown    string        `json:"markdown"`
	Fingerprint string        `json:"fingerprint"`
	FetchedAt   time.Time     `json:"fetched_at"`
	Syntax      syntax.Result `json:"syntax"`
}

// View returns the snapshot of ?url= for the page view, together with the
// syntax verdict. Any failure to produce the page is a 404.
func View(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
		if rawURL == "" {
			writeError(w, http.StatusNotFound, "page not found")
			return
		}

		res, snap, err := resolve(r.Context(), d, rawURL, directiveFrom(r))
		if err != nil {
			logResolveError(d, rawURL, err)
			writeError(w, http.StatusNotFound, "page not found")
			return
		}

		verdict := syntax.Detect(snap.Markdown)
		if !verdict.Supported && d.Metrics != nil {
			reasons := make([]string, len(verdict.Reasons))
			for i, reason := range verdict.Reasons {
				reasons[i] = string(reason)
			}
			d.Metrics.SyntaxFlagged(reasons)
		}

		writeJSON(w, http.StatusOK, viewResponse{
			URL:         res.Normalized,
			DisplayURL:  res.Display,
			Title:       snap.Title,
			Markdown:    snap.Markdown,
			Fingerprint: snap.Fingerprint,
			FetchedAt:   snap.FetchedAt,
			Syntax:      verdict,
		})
	}
}
