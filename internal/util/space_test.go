package util

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestPadRight(t *testing.T) {
	tests := []struct {
		name     string
		str      string
		width    int
		expected string
	}{
		// Basic padding
		{"Empty string", "", 5, "     "},
		{"Short string", "abc", 10, "abc       "},
		{"Exact width", "hello", 5, "hello"},

		// Truncation cases
		{"String too long", "this is a very long string", 10, "this is..."},
		{"Service name", "Office Printer (2nd floor)", 12, "Office Pr..."},

		// Edge cases
		{"Zero width", "hello", 0, "..."},
		{"Width 4", "hello", 4, "h..."},

		// Wide characters
		{"Unicode characters", "café", 8, "café    "},
		{"Chinese characters", "你好", 8, "你好    "},
		{"Mixed characters", "hello世界", 12, "hello世界   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PadRight(tt.str, tt.width))
		})
	}
}

func TestPadRightVisualWidth(t *testing.T) {
	for _, s := range []string{"abc", "café", "你好", "a你b", "Drucker Büro"} {
		got := PadRight(s, 16)
		assert.Equal(t, 16, runewidth.StringWidth(got), "%q", s)
	}
}

func TestColumns(t *testing.T) {
	line := Columns([]int{6, 4}, "web", "ipv4", "10.0.0.1:80")
	assert.Equal(t, "web     ipv4  10.0.0.1:80", line)

	line = Columns([]int{3}, "printer", "x")
	assert.True(t, strings.HasPrefix(line, "..."), line)

	assert.Equal(t, "", Columns(nil))
	assert.Equal(t, "a  b", Columns(nil, "a", "b"))
}

func BenchmarkPadRight(b *testing.B) {
	testCases := []struct {
		name  string
		str   string
		width int
	}{
		{"Short ASCII", "hello", 20},
		{"Unicode", "café 你好 world", 25},
		{"Truncation", strings.Repeat("very long string ", 20), 30},
	}

	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				PadRight(tc.str, tc.width)
			}
		})
	}
}
