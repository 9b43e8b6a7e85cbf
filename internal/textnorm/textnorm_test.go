package textnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcyd/arcyd/internal/textnorm"
)

func TestToASCIIEmpty(t *testing.T) {
	assert.Equal(t, []byte(""), textnorm.ToASCII(""))
}

func TestToASCIIPassesThroughPlainASCII(t *testing.T) {
	assert.Equal(t, []byte("hello world"), textnorm.ToASCII("hello world"))
}

func TestToASCIIPreservesWhitespaceNewlinesAndNULs(t *testing.T) {
	cases := map[string]string{
		"trailing  ":       "trailing  ",
		"  leading":        "  leading",
		"trailing\t\t":     "trailing\t\t",
		"\t\tleading":      "\t\tleading",
		"new\nline":        "new\nline",
		"windows\r\nline":  "windows\r\nline",
		"\nline":           "\nline",
		"\r\nline":         "\r\nline",
		"new\n":            "new\n",
		"windows\r\n":      "windows\r\n",
		"nul\x00middle":    "nul\x00middle",
		"nul-end\x00":      "nul-end\x00",
		"\x00nul-start":    "\x00nul-start",
	}
	for in, want := range cases {
		assert.Equal(t, []byte(want), textnorm.ToASCII(in), "input %q", in)
	}
}

func TestToASCIIEllipsis(t *testing.T) {
	assert.Equal(t, []byte("time passed..."), textnorm.ToASCII("time passed…"))
}

func TestToASCIIHyphenationPoint(t *testing.T) {
	assert.Equal(t, []byte("hy?phen?ate"), textnorm.ToASCII("hy‧phen‧ate"))
}

func TestToASCIIDashes(t *testing.T) {
	for _, r := range []rune{'‐', '‑', '–', '—', '―', '−'} {
		assert.Equal(t, []byte("-"), textnorm.ToASCII(string(r)), "rune %U", r)
	}
}

func TestToASCIIQuotes(t *testing.T) {
	assert.Equal(t, []byte("'"), textnorm.ToASCII("´"))
	assert.Equal(t, []byte("'"), textnorm.ToASCII("‘"))
	assert.Equal(t, []byte("'"), textnorm.ToASCII("’"))
	assert.Equal(t, []byte(`"`), textnorm.ToASCII("“"))
	assert.Equal(t, []byte(`"`), textnorm.ToASCII("”"))
}

func TestToASCIIBullets(t *testing.T) {
	assert.Equal(t, []byte("*"), textnorm.ToASCII("·"))
	assert.Equal(t, []byte("*"), textnorm.ToASCII("•"))
	assert.Equal(t, []byte(">"), textnorm.ToASCII("‣"))
	assert.Equal(t, []byte("*"), textnorm.ToASCII("․"))
	assert.Equal(t, []byte("-"), textnorm.ToASCII("⁃"))
	assert.Equal(t, []byte(">"), textnorm.ToASCII("▸"))
	assert.Equal(t, []byte("o"), textnorm.ToASCII("◦"))
}

func TestToASCIIStripsDiacritics(t *testing.T) {
	assert.Equal(t, []byte("cafe"), textnorm.ToASCII("café"))
}

func TestToASCIIFallsBackToQuestionMarkForUnknownNonASCII(t *testing.T) {
	assert.Equal(t, []byte("?"), textnorm.ToASCII("中"))
}

func TestToUnicodeKeepsASCIIBytes(t *testing.T) {
	assert.Equal(t, "hello", textnorm.ToUnicode([]byte("hello")))
}

func TestToUnicodeReplacesEachNonASCIIByteIndividually(t *testing.T) {
	assert.Equal(t, "�", textnorm.ToUnicode([]byte{0xFF}))
	assert.Equal(t, "���", textnorm.ToUnicode([]byte{0xe2, 0x80, 0xa6}))
}

func TestEnsureASCIIKeepsASCIIBytes(t *testing.T) {
	assert.Equal(t, []byte("hello"), textnorm.EnsureASCII([]byte("hello")))
}

func TestEnsureASCIIReplacesEachNonASCIIByteWithQuestionMark(t *testing.T) {
	assert.Equal(t, []byte("?"), textnorm.EnsureASCII([]byte{0xFF}))
	assert.Equal(t, []byte("???"), textnorm.EnsureASCII([]byte{0xe2, 0x80, 0xa6}))
}
