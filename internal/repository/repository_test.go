package repository

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateDetails(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "short string untouched",
			in:   "type=weather details=Москва",
			want: "type=weather details=Москва",
		},
		{
			name: "ascii over limit",
			in:   strings.Repeat("a", 300),
			want: strings.Repeat("a", 250),
		},
		{
			name: "cyrillic over limit cut on a rune boundary",
			in:   strings.Repeat("ж", 300),
			want: strings.Repeat("ж", 250),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateDetails(tt.in)
			if got != tt.want {
				t.Errorf("truncateDetails() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateDetails() produced invalid UTF-8")
			}
			if n := len([]rune(got)); n > maxDetailsLen {
				t.Errorf("result is %d runes, limit %d", n, maxDetailsLen)
			}
		})
	}
}
