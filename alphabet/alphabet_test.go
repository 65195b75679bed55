package alphabet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	enc := NewEncoding(ASCIIAll + "abcdefghijklmnopqrstuvwxyz")

	cases := []string{
		"hello",
		"Hello",
		"HELLO",
		" hello",
		"café",
		"日本語",
		"it's",
	}
	for _, word := range cases {
		escaped := enc.EscapeString(word)
		got := Unescape(escaped)
		assert.Equal(t, word, got, "round trip for %q via %q", word, escaped)
	}
}

func TestEscapeCaseSidecars(t *testing.T) {
	enc := NewEncoding(ASCIIAll + "abcdefghijklmnopqrstuvwxyz")

	escaped, ws, up := enc.Escape("Run")
	assert.Equal(t, 0, ws)
	assert.Equal(t, 1, up)
	assert.Equal(t, "run", escaped)

	escaped, ws, up = enc.Escape("RUN")
	assert.Equal(t, 0, ws)
	assert.Equal(t, 2, up)
	assert.Equal(t, "run", escaped)

	escaped, ws, up = enc.Escape(" run")
	assert.Equal(t, 1, ws)
	assert.Equal(t, 0, up)
	assert.Equal(t, "run", escaped)
}

func TestEscapeNonAlphabetRune(t *testing.T) {
	enc := NewEncoding(ASCIIAll + "abcdefghijklmnopqrstuvwxyz")
	escaped := enc.EscapeString("café")
	assert.Contains(t, escaped, "U")
	require.Equal(t, "café", Unescape(escaped))
}

func TestEscapeWhitespaceAndSoftHyphen(t *testing.T) {
	assert.Equal(t, "N", EscapeChar('\n'))
	assert.Equal(t, "T", EscapeChar('\t'))
	assert.Equal(t, "G", EscapeChar(' '))
	assert.Equal(t, "H", EscapeChar('­'))
}

func TestUnescapeEmptyAndSpace(t *testing.T) {
	assert.Equal(t, "", Unescape(""))
	assert.Equal(t, " ", Unescape("G"))
}

func TestUnescapeTuple(t *testing.T) {
	enc := NewEncoding(ASCIIAll + "abcdefghijklmnopqrstuvwxyz")
	escaped, ws, up := enc.Escape(" Run")
	got := UnescapeTuple(escaped, ws, up)
	assert.Equal(t, " Run", got)
}

func TestUnescapeMalformedUtf8Group(t *testing.T) {
	assert.Equal(t, "?", Unescape("UFF"))
}
