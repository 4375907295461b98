package octal

import (
	"strings"
	"testing"
)

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 7, 8, 63, 511, 1<<16 - 1, 1<<32 - 1}
	for _, n := range cases {
		formatted := Format(n, 11)
		got, ok := Parse(formatted)
		if !ok {
			t.Fatalf("Parse(%q) failed for n=%d", formatted, n)
		}
		if got != n {
			t.Errorf("round trip mismatch: n=%d formatted=%q got=%d", n, formatted, got)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"sign", "+17"},
		{"decimal digit", "178"},
		{"hex digit", "1af"},
		{"spaces", "  17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Parse([]byte(tt.input)); ok {
				t.Errorf("Parse(%q) unexpectedly succeeded", tt.input)
			}
		})
	}
}

func TestParseOverflow(t *testing.T) {
	// "37777777777" octal == 2^32-1, the next value overflows.
	if _, ok := Parse([]byte("40000000000")); ok {
		t.Error("expected overflow to fail")
	}
	if _, ok := Parse([]byte("37777777777")); !ok {
		t.Error("expected max uint32 to parse successfully")
	}
}

func TestFormatWidth(t *testing.T) {
	got := Format(8, 6)
	if string(got) != "000010" {
		t.Errorf("Format(8, 6) = %q, want %q", got, "000010")
	}
}

func TestNewIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if len(id) != IDLength {
			t.Fatalf("NewID() length = %d, want %d", len(id), IDLength)
		}
		if strings.ToLower(id) != id {
			t.Errorf("NewID() = %q, want lowercase", id)
		}
		for _, c := range id {
			if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')) {
				t.Errorf("NewID() = %q, contains disallowed character %q", id, c)
			}
		}
		if seen[id] {
			t.Fatalf("NewID() produced a collision within 1000 draws: %q", id)
		}
		seen[id] = true
	}
}
