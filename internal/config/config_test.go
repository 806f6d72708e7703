package config

import (
	"os"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		shouldSet bool
		wantPanic bool
	}{
		{
			name:      "variable set",
			key:       "TEST_VAR",
			value:     "test_value",
			shouldSet: true,
			wantPanic: false,
		},
		{
			name:      "variable not set",
			key:       "TEST_VAR_MISSING",
			shouldSet: false,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{
			name:     "true value",
			key:      "TEST_BOOL",
			value:    "true",
			def:      false,
			expected: true,
		},
		{
			name:     "false value",
			key:      "TEST_BOOL_FALSE",
			value:    "false",
			def:      true,
			expected: false,
		},
		{
			name:     "invalid value uses default",
			key:      "TEST_BOOL_INVALID",
			value:    "invalid",
			def:      true,
			expected: true,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_BOOL_MISSING",
			value:    "",
			def:      false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestGetenvNumbers(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.85")
	t.Setenv("TEST_FLOAT_INVALID", "high")
	t.Setenv("TEST_INT64", "1048576")

	if got := getenvFloat("TEST_FLOAT", 0.7); got != 0.85 {
		t.Errorf("getenvFloat() = %v, want 0.85", got)
	}
	if got := getenvFloat("TEST_FLOAT_INVALID", 0.7); got != 0.7 {
		t.Errorf("getenvFloat() = %v, want default 0.7", got)
	}
	if got := getenvInt64("TEST_INT64", 1); got != 1<<20 {
		t.Errorf("getenvInt64() = %v, want %v", got, 1<<20)
	}
	if got := getenvInt64("TEST_INT64_MISSING", 42); got != 42 {
		t.Errorf("getenvInt64() = %v, want default 42", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(` a.example.com, "b.example.com" ,,'10.0.0.0/8'`)
	want := []string{"a.example.com", "b.example.com", "10.0.0.0/8"}
	if len(got) != len(want) {
		t.Fatalf("splitAndTrim() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitAndTrim()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ListenPort != ":8080" {
		t.Errorf("ListenPort = %v, want :8080", cfg.ListenPort)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if cfg.FuzzyThreshold != 0.7 {
		t.Errorf("FuzzyThreshold = %v, want 0.7", cfg.FuzzyThreshold)
	}
	if cfg.RedisEnabled() {
		t.Error("RedisEnabled() = true, want false without FOLIO_REDIS_ADDR")
	}
	if cfg.PolicyFile != "" {
		t.Errorf("PolicyFile = %q, want empty", cfg.PolicyFile)
	}
}

func TestLoadRedisPasswordRequired(t *testing.T) {
	t.Setenv("FOLIO_REDIS_ADDR", "localhost:6379")
	t.Setenv("FOLIO_REDIS_PASSWORD_REQUIRED", "true")

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Load() should have panicked without FOLIO_REDIS_PASSWORD")
		}
	}()
	Load()
}

func TestLoadRejectsFuzzyThreshold(t *testing.T) {
	t.Setenv("FOLIO_FUZZY_THRESHOLD", "1.5")

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Load() should have panicked on an out of range threshold")
		}
	}()
	Load()
}

func TestRedacted(t *testing.T) {
	cfg := &Config{RedisUser: "admin", RedisPassword: "s3cret"}
	red := cfg.Redacted()

	if red.RedisPassword == "s3cret" || red.RedisUser == "admin" {
		t.Errorf("Redacted() leaked credentials: %+v", red)
	}
	if cfg.RedisPassword != "s3cret" {
		t.Error("Redacted() modified the original config")
	}
}
