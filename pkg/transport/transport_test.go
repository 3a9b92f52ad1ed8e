package transport

import "testing"

func TestFormatWeight(t *testing.T) {
	cases := []struct {
		grams float64
		want  string
	}{
		{0, "0.00"},
		{2, "2.00"},
		{12.5, "12.50"},
		{1.234, "1.23"},
		{253.7, "253.70"},
	}
	for _, c := range cases {
		if got := FormatWeight(c.grams); got != c.want {
			t.Errorf("FormatWeight(%v) = %q, want %q", c.grams, got, c.want)
		}
	}
}
