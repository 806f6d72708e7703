package handlers

import (
	"mime"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

// Snapshot serves the Markdown snapshot of ?url= as a file download.
func Snapshot(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
		if rawURL == "" {
			writeError(w, http.StatusBadRequest, "missing url parameter")
			return
		}

		_, snap, err := resolve(r.Context(), d, rawURL, directiveFrom(r))
		if err != nil {
			logResolveError(d, rawURL, err)
			writeError(w, statusFor(err), err.Error())
			return
		}

		etag := `"` + snap.Fingerprint + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", snap.FetchedAt.UTC().Format(http.TimeFormat))
		w.Header().Set("Cache-Control", "no-cache")
		if snap.Fingerprint != "" && r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		disposition := mime.FormatMediaType("attachment", map[string]string{
			"filename": snapshot.Filename(snap),
		})
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", disposition)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(snap.Markdown))
	}
}
