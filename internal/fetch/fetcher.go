// Package fetch retrieves web pages and converts them to Markdown.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/MrSnakeDoc/folio/internal/fingerprint"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/snapshot"
	"github.com/MrSnakeDoc/folio/internal/utils"
)

const (
	DefaultUserAgent    = "folio/1.0 (+https://github.com/MrSnakeDoc/folio)"
	DefaultMaxBodyBytes = 10 << 20
)

var (
	errBodyTooLarge = errors.New("response body exceeds limit")
	errUnexpected   = errors.New("unexpected status")
)

// Options configures a Fetcher.
type Options struct {
	UserAgent    string
	MaxBodyBytes int64

	// Readability extracts the main article before conversion, dropping
	// navigation and boilerplate.
	Readability bool

	// Client defaults to an http.Client with Timeout.
	Client  *http.Client
	Timeout time.Duration
}

// Fetcher implements snapshot.Fetcher over HTTP.
type Fetcher struct {
	client *http.Client
	opts   Options
	log    logger.Logger
}

// New creates a Fetcher.
func New(opts Options, log logger.Logger) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if log == nil {
		log = logger.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{client: client, opts: opts, log: log}
}

// FetchAndConvert downloads req.URL, conditionally when validators are set,
// and converts the response to Markdown.
func (f *Fetcher) FetchAndConvert(ctx context.Context, req snapshot.FetchRequest) (*snapshot.Document, error) {
	resp, err := f.fetchPage(ctx, req)
	if err != nil {
		return nil, &snapshot.FetchError{URL: req.URL, Err: err}
	}
	defer utils.Close(resp.Body)

	etag := resp.Header.Get("ETag")
	lastModified := resp.Header.Get("Last-Modified")

	switch {
	case resp.StatusCode == http.StatusNotModified:
		f.log.Debug("Origin reports not modified", logger.String("url", req.URL))
		return &snapshot.Document{NotModified: true, ETag: etag, LastModified: lastModified}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &snapshot.FetchError{URL: req.URL, StatusCode: resp.StatusCode, Err: errUnexpected}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &snapshot.FetchError{URL: req.URL, StatusCode: resp.StatusCode, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	var pg *page
	switch mediaType {
	case "text/markdown", "text/x-markdown", "text/plain":
		pg = &page{markdown: string(body)}
	case "", "text/html", "application/xhtml+xml":
		pg, err = f.convertHTML(body, contentType, req.URL)
		if err != nil {
			return nil, &snapshot.ConversionError{URL: req.URL, Err: err}
		}
	default:
		return nil, &snapshot.ConversionError{URL: req.URL, Err: fmt.Errorf("unsupported content type %q", mediaType)}
	}

	md := strings.TrimSpace(pg.markdown)
	if md == "" {
		return nil, &snapshot.ConversionError{URL: req.URL, Err: snapshot.ErrEmptyDocument}
	}
	md += "\n"

	return &snapshot.Document{
		Markdown:     md,
		Fingerprint:  fingerprint.Of(md),
		Title:        pg.title,
		ETag:         etag,
		LastModified: lastModified,
	}, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, req snapshot.FetchRequest) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", f.opts.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,text/markdown;q=0.9,text/plain;q=0.8")
	setConditionalHeaders(httpReq, req)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// setConditionalHeaders adds If-None-Match and If-Modified-Since when the
// previous snapshot carried validators.
func setConditionalHeaders(httpReq *http.Request, req snapshot.FetchRequest) {
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// decodeUTF8 transcodes body to UTF-8 using the declared or sniffed charset.
func decodeUTF8(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return string(decoded), nil
}
