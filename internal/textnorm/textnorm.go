// Package textnorm implements lossy Unicode→ASCII folding and
// content-safe decoding of diffs and commit messages (spec.md §4.14,
// C14): git plumbing and review-service APIs both assume well-formed
// text, but commit messages and diff hunks arrive as raw bytes that may
// not even be valid UTF-8, let alone ASCII.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// replacementRune is substituted, one-for-one, for every non-ASCII byte
// decoded by ToUnicode.
const replacementRune = '�'

// ToUnicode decodes raw bytes defensively: every byte below 0x80 is kept
// as-is, every other byte becomes a single U+FFFD replacement rune. This
// is deliberately NOT a UTF-8 decode — diffs and commit messages are
// handled as an uninterpreted byte stream upstream (git itself imposes
// no encoding), so a byte sequence that happens to be valid UTF-8 is not
// given special treatment over one that isn't.
func ToUnicode(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if c < 0x80 {
			b.WriteByte(c)
		} else {
			b.WriteRune(replacementRune)
		}
	}
	return b.String()
}

// EnsureASCII is ToUnicode's byte-preserving sibling: every non-ASCII
// byte becomes a literal '?' instead of a Unicode replacement rune, so
// the result is itself valid ASCII bytes rather than UTF-8-encoded
// U+FFFD sequences.
func EnsureASCII(data []byte) []byte {
	out := make([]byte, len(data))
	for i, c := range data {
		if c < 0x80 {
			out[i] = c
		} else {
			out[i] = '?'
		}
	}
	return out
}

// punctuationFold maps the Unicode punctuation that shows up most often
// in commit messages and review comments (smart quotes, en/em dashes,
// ellipses, bullets) onto a plain-ASCII equivalent, rather than letting
// it fall through to the generic "drop it" fallback below.
var punctuationFold = map[rune]string{
	'…': "...", // horizontal ellipsis
	'‧': "?",   // hyphenation point

	'‐': "-", // hyphen
	'‑': "-", // non-breaking hyphen
	'–': "-", // en dash
	'—': "-", // em dash
	'―': "-", // horizontal bar
	'−': "-", // minus sign

	'´': "'", // acute accent
	'‘': "'", // left single quotation mark
	'’': "'", // right single quotation mark
	'“': `"`, // left double quotation mark
	'”': `"`, // right double quotation mark

	'·': "*", // middle dot
	'•': "*", // bullet
	'‣': ">", // triangular bullet
	'․': "*", // one dot leader
	'⁃': "-", // hyphen bullet
	'▸': ">", // black right-pointing small triangle
	'◦': "o", // white bullet
}

// diacriticStrip decomposes accented Latin letters (NFKD) and drops the
// resulting combining marks, so e.g. "café" folds to "cafe" instead of
// falling through to the generic "?" fallback below.
var diacriticStrip = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// ToASCII lossily folds a proper Unicode string down to ASCII bytes:
// known punctuation is translated via punctuationFold, accented Latin
// letters are decomposed and stripped of their diacritics, and anything
// still non-ASCII afterward becomes a literal '?'.
func ToASCII(s string) []byte {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
			continue
		}
		if folded, ok := punctuationFold[r]; ok {
			b.WriteString(folded)
			continue
		}

		stripped, _, err := transform.String(diacriticStrip, string(r))
		if err == nil && stripped != "" && isASCII(stripped) {
			b.WriteString(stripped)
			continue
		}

		b.WriteByte('?')
	}

	return []byte(b.String())
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
