// Package sanitize rewrites hand-typed, JSON-like text into strict JSON.
//
// Only two authoring habits are repaired: trailing commas before a closing
// brace or bracket, and bare identifier object keys. The rewrite is purely
// textual and does not track string literals, so a pattern such as
// `, word:` inside a quoted string is rewritten as if it were a key. Callers
// get whatever text results; a strict parse decides whether it is valid.
package sanitize

import (
	"regexp"
	"strings"
)

// space is the whitespace class of ECMAScript regular expressions and
// String.prototype.trim. It is wider than RE2's \s: it adds \v, NBSP, BOM
// and the Unicode space separators that pasted text often carries.
const space = `[\t\n\v\f\r \x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}\x{FEFF}]`

var (
	// A comma followed only by whitespace and then a closer.
	trailingComma = regexp.MustCompile(`,` + space + `*([}\]])`)

	// A bare identifier key: preceded by a delimiter run, followed by a colon.
	bareKey = regexp.MustCompile(`([ \t\r\n{,]+)` + space + `*([a-zA-Z_$][a-zA-Z0-9_$]*)` + space + `*:`)
)

func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ',
		'\u00A0', '\u1680', '\u2028', '\u2029', '\u202F', '\u205F', '\u3000', '\uFEFF':
		return true
	}
	return r >= '\u2000' && r <= '\u200A'
}

// Sanitize returns text with trailing commas removed, surrounding whitespace
// trimmed and bare identifier keys double-quoted. It never fails.
//
// Each pattern is applied in a single non-overlapping pass, so `[1,,]`
// becomes `[1,]` and still fails a strict parse.
func Sanitize(text string) string {
	cleaned := Trim(trailingComma.ReplaceAllString(text, "$1"))
	return bareKey.ReplaceAllString(cleaned, `${1}"${2}":`)
}

// Trim removes leading and trailing whitespace as String.prototype.trim does.
func Trim(text string) string {
	return strings.TrimFunc(text, isSpace)
}

// IsBlank reports whether text is empty after Trim.
func IsBlank(text string) bool {
	return Trim(text) == ""
}
