package giveaway

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want int64
		err  error
	}{
		{"30s", 30, nil},
		{"15sec", 15, nil},
		{"5m", 300, nil},
		{"2MIN", 120, nil},
		{"1h", 3600, nil},
		{" 3hour ", 10800, nil},
		{"2d", 172800, nil},
		{"1day", 86400, nil},
		{"0s", 0, nil},
		{"10x", 0, ErrUnknownUnit},
		{"5weeks", 0, ErrUnknownUnit},
		{"h", 0, ErrInvalidFormat},
		{"10", 0, ErrInvalidFormat},
		{"", 0, ErrInvalidFormat},
		{"1h30m", 0, ErrInvalidFormat},
		{"1 h", 0, ErrInvalidFormat},
		{"-5m", 0, ErrInvalidFormat},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("ParseDuration(%q) err=%v want %v", tc.in, err, tc.err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ParseDuration(%q) err=%v should be a validation error", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseDuration(%q)=%d,%v want %d", tc.in, got, err, tc.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()
	for _, tok := range []string{"1s", "59s", "90s", "1m", "90m", "61min", "1h", "36h", "25hour", "1d", "14day"} {
		secs, err := ParseDuration(tok)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", tok, err)
		}
		again, err := ParseDuration(FormatToken(secs))
		if err != nil || again != secs {
			t.Fatalf("round trip %q -> %q -> %d,%v want %d", tok, FormatToken(secs), again, err, secs)
		}
	}
}

func TestSecondsRange(t *testing.T) {
	t.Parallel()
	limit := int64(math.MaxInt64 / int64(time.Second))
	if d, err := Seconds(limit); err != nil || d != time.Duration(limit)*time.Second {
		t.Fatalf("Seconds(limit) = %v, %v", d, err)
	}
	for _, secs := range []int64{0, -1, limit + 1, 18446744077600, 1 << 62} {
		if _, err := Seconds(secs); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("Seconds(%d) err = %v, want ErrInvalidDuration", secs, err)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()
	cases := map[time.Duration]string{
		0:                                  "0s",
		-time.Minute:                       "0s",
		45 * time.Second:                   "45s",
		time.Hour + 5*time.Second:          "1h 5s",
		26*time.Hour + 3*time.Minute + 4e9: "1d 2h 3m 4s",
	}
	for in, want := range cases {
		if got := FormatRemaining(in); got != want {
			t.Fatalf("FormatRemaining(%v)=%q want %q", in, got, want)
		}
	}
}

func TestParseDeadline(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	got, err := ParseDeadline("tomorrow at 6pm", now)
	if err != nil {
		t.Fatalf("ParseDeadline: %v", err)
	}
	if !got.After(now) || got.Day() != 15 || got.Hour() != 18 {
		t.Fatalf("unexpected deadline %v", got)
	}

	if _, err := ParseDeadline("whenever you like", now); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
