package counting

import "testing"

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		name        string
		numerator   int64
		denominator int64
		want        string
	}{
		{name: "exact half", numerator: 1, denominator: 2, want: "50.00"},
		{name: "exact quarter", numerator: 1, denominator: 4, want: "25.00"},
		{name: "third rounds down", numerator: 1, denominator: 3, want: "33.33"},
		{name: "two thirds rounds up", numerator: 2, denominator: 3, want: "66.67"},
		{name: "sixth rounds up", numerator: 1, denominator: 6, want: "16.67"},
		{name: "full", numerator: 7, denominator: 7, want: "100.00"},
		{name: "zero numerator", numerator: 0, denominator: 100, want: "0.00"},
		{name: "zero denominator", numerator: 5, denominator: 0, want: "0.00"},
		{name: "below one percent", numerator: 1, denominator: 200, want: "0.50"},
		{name: "large counts", numerator: 4567, denominator: 11000, want: "41.52"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatPercent(tt.numerator, tt.denominator)
			if got != tt.want {
				t.Errorf("formatPercent(%d, %d) = %q, want %q", tt.numerator, tt.denominator, got, tt.want)
			}
		})
	}
}

func TestFormatPercent_Stable(t *testing.T) {
	// The same ratio must render identically on every call; result bytes
	// feed the canonical encoding.
	for i := 0; i < 100; i++ {
		if got := formatPercent(3891, 11000); got != "35.37" {
			t.Fatalf("iteration %d: formatPercent(3891, 11000) = %q", i, got)
		}
	}
}

func TestRound4(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 1522.333333, want: 1522.3333},
		{in: 2.07590909, want: 2.0759},
		{in: 1.15545454, want: 1.1555},
		{in: 0.76863636, want: 0.7686},
		{in: 0, want: 0},
	}

	for _, tt := range tests {
		if got := round4(tt.in); got != tt.want {
			t.Errorf("round4(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
