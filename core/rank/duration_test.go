package rank

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"3600", time.Hour, true},
		{" 90 ", 90 * time.Second, true},
		{"1d2h30m", 26*time.Hour + 30*time.Minute, true},
		{"1D 2H", 26 * time.Hour, true},
		{"15s", 15 * time.Second, true},
		{"2 d", 48 * time.Hour, true},
		{"1w", 0, false},
		{"", 0, false},
		{"soon", 0, false},
		{"106751d", 106751 * day, true},
		{"106752d", 0, false},
		{"106751d24h", 0, false},
		{"9223372036", 9223372036 * time.Second, true},
		{"9223372037", 0, false},
		{"99999999999999999999d", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseDuration(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseDuration(%q) = %v, %v, want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{26*time.Hour + 30*time.Minute, "1d2h30m"},
		{3*24*time.Hour + 5*time.Second, "3d5s"},
	}
	for _, c := range cases {
		d, want := c.d, c.want
		if got := FormatDuration(d); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", d, got, want)
		}
		if d > 0 {
			if back, ok := ParseDuration(want); !ok || back != d {
				t.Errorf("ParseDuration(%q) = %v, want %v", want, back, d)
			}
		}
	}
}
