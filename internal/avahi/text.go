package avahi

import (
	"bytes"
	"unicode/utf8"
)

// Text is a string handed to a callback by the daemon. It is only
// meaningful for the duration of that callback and may be null or
// hold bytes that are not valid UTF-8.
type Text struct {
	b     []byte
	valid bool
}

// NullText is the Text of a null string pointer.
func NullText() Text { return Text{} }

// TextOf wraps s.
func TextOf(s string) Text { return Text{b: []byte(s), valid: true} }

// TextBytes wraps b without validating it.
func TextBytes(b []byte) Text { return Text{b: b, valid: true} }

// CText wraps the NUL-terminated string at the start of buf. A buffer
// with no terminator yields a null Text.
func CText(buf []byte) Text {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		return NullText()
	}
	return TextBytes(buf[:i])
}

// IsNull reports whether t came from a null pointer.
func (t Text) IsNull() bool { return !t.valid }

// Decode returns t as a Go string.
func (t Text) Decode() (string, error) {
	if !t.valid {
		return "", ErrNullText
	}
	if !utf8.Valid(t.b) {
		return "", ErrInvalidText
	}
	return string(t.b), nil
}
