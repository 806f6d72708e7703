package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/folio/internal/snapshot"
)

const articleHTML = `<!doctype html>
<html>
<head><title>Field Guide</title></head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1>Guide</h1>
<p>Hello <strong>world</strong>. Read the <a href="/docs">docs</a>.</p>
</main>
<footer>Copyright</footer>
<script>alert("x")</script>
</body>
</html>`

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAndConvertHTML(t *testing.T) {
	var gotUA string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", "Fri, 01 Mar 2024 10:00:00 GMT")
		_, _ = w.Write([]byte(articleHTML))
	})

	f := New(Options{UserAgent: "folio-test"}, nil)
	doc, err := f.FetchAndConvert(context.Background(), snapshot.FetchRequest{URL: srv.URL + "/guide"})
	if err != nil {
		t.Fatalf("FetchAndConvert() error = %v", err)
	}

	if gotUA != "folio-test" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "folio-test")
	}
	if doc.Title != "Field Guide" {
		t.Errorf("Title = %q, want %q", doc.Title, "Field Guide")
	}
	if !strings.Contains(doc.Markdown, "# Guide") {
		t.Errorf("Markdown = %q, want an ATX heading", doc.Markdown)
	}
	if !strings.Contains(doc.Markdown, "**world**") {
		t.Errorf("Markdown = %q, want bold text", doc.Markdown)
	}
	if !strings.Contains(doc.Markdown, "("+srv.URL+"/docs)") {
		t.Errorf("Markdown = %q, want absolute link", doc.Markdown)
	}
	for _, unwanted := range []string{"Home", "Copyright", "alert"} {
		if strings.Contains(doc.Markdown, unwanted) {
			t.Errorf("Markdown contains boilerplate %q: %q", unwanted, doc.Markdown)
		}
	}
	if doc.ETag != `"abc"` || doc.LastModified != "Fri, 01 Mar 2024 10:00:00 GMT" {
		t.Errorf("validators = %q / %q", doc.ETag, doc.LastModified)
	}
	if !strings.HasPrefix(doc.Fingerprint, "b3-") {
		t.Errorf("Fingerprint = %q, want b3- prefix", doc.Fingerprint)
	}
}

func TestFetchAndConvertConditional(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.Header().Set("ETag", `"v1"`)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	})

	f := New(Options{}, nil)
	doc, err := f.FetchAndConvert(context.Background(), snapshot.FetchRequest{URL: srv.URL, ETag: `"v1"`})
	if err != nil {
		t.Fatalf("FetchAndConvert() error = %v", err)
	}
	if !doc.NotModified {
		t.Error("NotModified = false, want true")
	}
	if doc.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", doc.ETag, `"v1"`)
	}
}

func TestFetchAndConvertMarkdownPassthrough(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte("# Already markdown\n\n| a | b |\n"))
	})

	doc, err := New(Options{}, nil).FetchAndConvert(context.Background(), snapshot.FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchAndConvert() error = %v", err)
	}
	if doc.Markdown != "# Already markdown\n\n| a | b |\n" {
		t.Errorf("Markdown = %q", doc.Markdown)
	}
}

func TestFetchAndConvertReadability(t *testing.T) {
	paragraph := strings.Repeat("This paragraph carries the actual article text for the reader. ", 12)
	html := `<html><head><title>Long Read</title></head><body>
<div class="sidebar"><ul><li><a href="/a">Link A</a></li><li><a href="/b">Link B</a></li></ul></div>
<article><h2>Chapter</h2><p>` + paragraph + `</p><p>` + paragraph + `</p></article>
</body></html>`
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	})

	doc, err := New(Options{Readability: true}, nil).FetchAndConvert(context.Background(), snapshot.FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("FetchAndConvert() error = %v", err)
	}
	if !strings.Contains(doc.Markdown, "actual article text") {
		t.Errorf("Markdown = %q, want article text", doc.Markdown)
	}
	if doc.Title == "" {
		t.Error("Title is empty")
	}
}

func TestFetchAndConvertErrors(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		opts           Options
		wantStatus     int
		wantConversion bool
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "body too large",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
			},
			opts:       Options{MaxBodyBytes: 1024},
			wantStatus: http.StatusOK,
		},
		{
			name: "binary content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
			},
			wantConversion: true,
		},
		{
			name: "empty page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html><body><script>1</script></body></html>"))
			},
			wantConversion: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.handler)
			_, err := New(tt.opts, nil).FetchAndConvert(context.Background(), snapshot.FetchRequest{URL: srv.URL})
			if err == nil {
				t.Fatal("FetchAndConvert() error = nil")
			}

			if tt.wantConversion {
				if !snapshot.IsConversionError(err) {
					t.Errorf("FetchAndConvert() error = %v, want *ConversionError", err)
				}
				return
			}
			var fe *snapshot.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("FetchAndConvert() error = %v, want *FetchError", err)
			}
			if fe.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestFetchAndConvertHonorsContext(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(Options{}, nil).FetchAndConvert(ctx, snapshot.FetchRequest{URL: srv.URL})
	if !snapshot.IsFetchError(err) {
		t.Fatalf("FetchAndConvert() error = %v, want *FetchError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchAndConvert() error = %v, want it to wrap context.DeadlineExceeded", err)
	}
}
