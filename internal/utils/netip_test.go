package utils

import (
	"net/http/httptest"
	"testing"
)

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{" 10.0.0.0/8", "192.0.2.7", "", "not-an-ip", "2001:db8::/32"})

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"11.0.0.1", false},
		{"192.0.2.7", true},
		{"192.0.2.8", false},
		{"::ffff:10.0.0.1", true},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := m.Allow(tt.ip); got != tt.want {
			t.Errorf("Allow(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}

	if m.IsEmpty() {
		t.Error("IsEmpty() = true, want false")
	}
	if !NewIPMatcher([]string{"bogus", " "}).IsEmpty() {
		t.Error("IsEmpty() = false for a list without valid entries")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", want: "192.0.2.1"},
		{
			name:    "headers ignored without trust",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "192.0.2.1",
		},
		{
			name:       "left-most forwarded for",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "cloudflare header first",
			headers:    map[string]string{"CF-Connecting-IP": "198.51.100.4", "X-Forwarded-For": "203.0.113.9"},
			trustProxy: true,
			want:       "198.51.100.4",
		},
		{
			name:       "real ip fallback",
			headers:    map[string]string{"X-Real-IP": "198.51.100.5"},
			trustProxy: true,
			want:       "198.51.100.5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "192.0.2.1:4321"
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
