package handlers

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/folio/internal/anchor"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

const (
	// DefaultRecoverWorkers bounds parallel recoveries within one request.
	DefaultRecoverWorkers = 8

	maxAnchorsPerRequest = 1000

	statusDetached  = "detached"
	statusMalformed = "malformed"
)

type createAnchorRequest struct {
	URL   string `json:"url"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type createAnchorResponse struct {
	Anchor string      `json:"anchor"`
	Spec   anchor.Spec `json:"spec"`
}

// CreateAnchor builds an anchor token for a selection of the current
// snapshot of a page.
func CreateAnchor(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAnchorRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			writeError(w, http.StatusBadRequest, "missing url")
			return
		}

		_, snap, err := resolve(r.Context(), d, req.URL, snapshot.Directive{})
		if err != nil {
			logResolveError(d, req.URL, err)
			writeError(w, statusFor(err), err.Error())
			return
		}

		spec, err := anchor.New(snap.Markdown, req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		token, err := anchor.Encode(spec)
		if err != nil {
			d.Logger.Error("failed to encode anchor", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to encode anchor")
			return
		}

		writeJSON(w, http.StatusCreated, createAnchorResponse{Anchor: token, Spec: spec})
	}
}

type recoverRequest struct {
	URL      string   `json:"url,omitempty"`
	Markdown string   `json:"markdown,omitempty"`
	Anchors  []string `json:"anchors"`
}

type recoveredAnchor struct {
	Status string        `json:"status"` // confidence, detached or malformed
	Match  *anchor.Match `json:"match,omitempty"`
	Moved  bool          `json:"moved,omitempty"`
}

type recoverResponse struct {
	Fingerprint string            `json:"fingerprint,omitempty"`
	Results     []recoveredAnchor `json:"results"`
}

// RecoverAnchors locates a batch of anchors in either inline markdown or the
// current snapshot of url. Results keep the order of the request.
func RecoverAnchors(d deps.Deps) http.HandlerFunc {
	workers := d.RecoverWorkers
	if workers <= 0 {
		workers = DefaultRecoverWorkers
	}
	engine := d.Anchors
	if engine == nil {
		engine = anchor.NewEngine(anchor.Options{})
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req recoverRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Anchors) > maxAnchorsPerRequest {
			writeError(w, http.StatusRequestEntityTooLarge, "too many anchors")
			return
		}

		markdown, fp := req.Markdown, ""
		if markdown == "" {
			if strings.TrimSpace(req.URL) == "" {
				writeError(w, http.StatusBadRequest, "missing url or markdown")
				return
			}
			_, snap, err := resolve(r.Context(), d, req.URL, directiveFrom(r))
			if err != nil {
				logResolveError(d, req.URL, err)
				writeError(w, statusFor(err), err.Error())
				return
			}
			markdown, fp = snap.Markdown, snap.Fingerprint
		}

		results := make([]recoveredAnchor, len(req.Anchors))
		g, ctx := errgroup.WithContext(r.Context())
		g.SetLimit(workers)
		for i, token := range req.Anchors {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = recoverOne(d, engine, markdown, token)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			writeError(w, statusFor(err), "recovery interrupted")
			return
		}

		writeJSON(w, http.StatusOK, recoverResponse{Fingerprint: fp, Results: results})
	}
}

func recoverOne(d deps.Deps, engine *anchor.Engine, markdown, token string) recoveredAnchor {
	spec, err := anchor.Decode(token)
	if err != nil {
		if !errors.Is(err, anchor.ErrMalformedToken) {
			d.Logger.Warn("unexpected anchor decode error", logger.Error(err))
		}
		return recoveredAnchor{Status: statusMalformed}
	}

	m, ok := engine.Recover(markdown, spec)
	if d.Metrics != nil {
		confidence := ""
		if ok {
			confidence = string(m.Confidence)
		}
		d.Metrics.AnchorRecovered(confidence)
	}
	if !ok {
		return recoveredAnchor{Status: statusDetached}
	}
	return recoveredAnchor{
		Status: string(m.Confidence),
		Match:  &m,
		Moved:  m.Start != spec.Offset,
	}
}
