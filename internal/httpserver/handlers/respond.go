package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/folio/internal/canon"
	"github.com/MrSnakeDoc/folio/internal/httpserver/deps"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

// maxRequestBody bounds JSON request bodies, inline markdown included.
const maxRequestBody = 4 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// directiveFrom reads revalidate and stale from the query string.
func directiveFrom(r *http.Request) snapshot.Directive {
	q := r.URL.Query()
	var d snapshot.Directive
	if queryFlag(q.Get("revalidate")) {
		d.Mode = snapshot.RevalidateForce
	}
	d.AllowStale = queryFlag(q.Get("stale"))
	return d
}

func queryFlag(v string) bool {
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// resolve canonicalizes rawURL and returns its snapshot.
func resolve(ctx context.Context, d deps.Deps, rawURL string, dir snapshot.Directive) (canon.Result, *snapshot.Snapshot, error) {
	res, err := d.Canonicalizer.Canonicalize(rawURL)
	if err != nil {
		return canon.Result{}, nil, err
	}
	snap, err := d.Resolver.Resolve(ctx, res.Normalized, dir)
	if err != nil {
		return res, nil, err
	}
	return res, snap, nil
}

// statusFor maps a resolve error to an HTTP status.
func statusFor(err error) int {
	switch {
	case canon.IsInvalidURL(err):
		return http.StatusBadRequest
	case snapshot.IsFetchError(err), snapshot.IsConversionError(err):
		return http.StatusBadGateway
	case errors.Is(err, snapshot.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func logResolveError(d deps.Deps, rawURL string, err error) {
	fields := []logger.Field{logger.String("url", rawURL), logger.Error(err)}
	var fe *snapshot.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		fields = append(fields, logger.Int("origin_status", fe.StatusCode))
	}
	if canon.IsInvalidURL(err) {
		d.Logger.Debug("rejected url", fields...)
		return
	}
	d.Logger.Warn("failed to resolve snapshot", fields...)
}
