package fingerprint

import (
	"strings"
	"testing"
)

func TestOf(t *testing.T) {
	a := Of("The quick fox jumps.")
	b := Of("The quick fox jumps.")
	c := Of("The slow fox jumps.")

	if a != b {
		t.Errorf("Of() not deterministic: %v vs %v", a, b)
	}
	if a == c {
		t.Errorf("Of() collided for different input")
	}
	if !strings.HasPrefix(a, Prefix) {
		t.Errorf("Of() = %v, want prefix %v", a, Prefix)
	}
	if len(a) != len(Prefix)+64 {
		t.Errorf("Of() length = %v, want %v", len(a), len(Prefix)+64)
	}
}

func TestShort(t *testing.T) {
	fp := Of("hello")
	got := Short(fp, 8)
	if len(got) != 8 {
		t.Errorf("Short() length = %v, want 8", len(got))
	}
	if !strings.HasPrefix(strings.TrimPrefix(fp, Prefix), got) {
		t.Errorf("Short() = %v, not a prefix of %v", got, fp)
	}
	if Short("abc", 8) != "abc" {
		t.Errorf("Short() should return short input unchanged")
	}
}
