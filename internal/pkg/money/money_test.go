// internal/pkg/money/money_test.go
package money

import "testing"

func TestFormatCents(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{50, "0.50"},
		{1250, "12.50"},
		{199900, "1999.00"},
		{-1250, "-12.50"},
		{-5, "-0.05"},
	}
	for _, c := range cases {
		if got := FormatCents(c.cents); got != c.want {
			t.Errorf("FormatCents(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}

func TestParseCents(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.50", 1250, false},
		{"12.5", 1250, false},
		{"12", 1200, false},
		{"0.05", 5, false},
		{"0", 0, false},
		{" 12.50 ", 1250, false},
		{"-12.50", -1250, false},
		{"-0.05", -5, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12.", 0, true},
		{"12.345", 0, true},
		{"12.-5", 0, true},
	}
	for _, c := range cases {
		got, err := ParseCents(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseCents(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCents(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseCents(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, 1, 99, 100, 12345, -12345} {
		got, err := ParseCents(FormatCents(cents))
		if err != nil {
			t.Fatalf("round trip %d: %v", cents, err)
		}
		if got != cents {
			t.Fatalf("round trip %d: got %d", cents, got)
		}
	}
}
