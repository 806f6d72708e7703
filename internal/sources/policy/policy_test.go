package policy

import (
	"testing"
	"time"
)

func TestPolicyTTLFor(t *testing.T) {
	p, err := Map(File{TTL: map[string]string{
		"docs.example.com":  "1h",
		"*.example.com":     "5m",
		"*.api.example.com": "30s",
	}})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}

	tests := []struct {
		url  string
		want time.Duration
	}{
		{url: "https://docs.example.com/guide", want: time.Hour},
		{url: "https://blog.example.com/", want: 5 * time.Minute},
		{url: "https://v1.api.example.com/x", want: 30 * time.Second},
		{url: "https://example.com/", want: 0},
		{url: "https://other.test/", want: 0},
		{url: "::not a url", want: 0},
	}

	for _, tt := range tests {
		if got := p.TTLFor(tt.url); got != tt.want {
			t.Errorf("TTLFor(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestActiveSwap(t *testing.T) {
	a := NewActive(nil)
	if got := a.TTLFor("https://docs.example.com/"); got != 0 {
		t.Errorf("TTLFor() on empty policy = %v, want 0", got)
	}

	p, err := Map(File{TTL: map[string]string{"docs.example.com": "1h"}})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	a.Store(p)

	if got := a.TTLFor("https://docs.example.com/"); got != time.Hour {
		t.Errorf("TTLFor() after Store = %v, want 1h", got)
	}
}
