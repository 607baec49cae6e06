package avahi

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/miekg/dns"
)

// LabelMax is the longest DNS label in bytes.
const LabelMax = 63

// IsValidHostName reports whether name can be advertised as a host
// name: one non-empty DNS label of valid UTF-8. No daemon is involved.
func IsValidHostName(name string) bool {
	if name == "" || len(name) > LabelMax {
		return false
	}
	if !utf8.ValidString(name) || strings.ContainsAny(name, ".\\") {
		return false
	}
	labels, ok := dns.IsDomainName(name)
	return ok && labels == 1
}

// AlternativeHostName suggests the next name to try after name
// collided with another host: "foo" becomes "foo-2", "foo-2" becomes
// "foo-3". The result always fits in one label.
func AlternativeHostName(name string) string {
	base, n := name, 2
	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		if suffix := name[i+1:]; isCounter(suffix) {
			if v, err := strconv.Atoi(suffix); err == nil {
				base, n = name[:i], v+1
			}
		}
	}
	tail := "-" + strconv.Itoa(n)
	return truncateUTF8(base, LabelMax-len(tail)) + tail
}

func isCounter(s string) bool {
	if s == "" || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
