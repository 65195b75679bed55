package pretokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphtok/umtoken/alphabet"
)

func newTestPreTokenizer() *PreTokenizer {
	enc := alphabet.NewEncoding(alphabet.ASCIIAll + "abcdefghijklmnopqrstuvwxyz")
	return New(enc, NormalizeDefault, nil)
}

func TestSplitBasicWords(t *testing.T) {
	p := newTestPreTokenizer()
	pieces := p.Split("Hello world")
	var texts []string
	for _, piece := range pieces {
		texts = append(texts, piece.Text)
	}
	assert.Equal(t, []string{"Hello", " world"}, texts)
}

func TestSplitAllCapsNotFollowedByLower(t *testing.T) {
	p := newTestPreTokenizer()
	pieces := p.Split("NASA launch")
	assert.Equal(t, "NASA", pieces[0].Text)
}

func TestSplitDigits(t *testing.T) {
	p := newTestPreTokenizer()
	pieces := p.Split("abc123 def")
	var texts []string
	for _, piece := range pieces {
		texts = append(texts, piece.Text)
	}
	assert.Contains(t, texts, "123")
}

func TestSplitReservedTokenFencing(t *testing.T) {
	p := newTestPreTokenizer()
	pieces := p.Split("hello [PAD] world")
	var sawReserved bool
	for _, piece := range pieces {
		if piece.Reserved {
			sawReserved = true
			assert.Equal(t, PadToken, piece.Text)
		}
	}
	assert.True(t, sawReserved)
}

func TestSplitAndEscapeRoundTripsViaUnescapeAndJoin(t *testing.T) {
	p := newTestPreTokenizer()
	text := "Hello [PAD] world"
	pieces := p.SplitAndEscape(text)
	got := p.UnescapeAndJoin(pieces)
	assert.Equal(t, text, got)
}

func TestNormalizeFoldsNonStandardWhitespace(t *testing.T) {
	p := newTestPreTokenizer()
	got := p.Normalize("a b")
	assert.Equal(t, "a b", got)
}

func TestNormalizeDropsControlCharacters(t *testing.T) {
	p := newTestPreTokenizer()
	got := p.Normalize("a\x00b")
	assert.Equal(t, "ab", got)
}

func TestEscapeUsesEncoding(t *testing.T) {
	p := newTestPreTokenizer()
	escaped := p.Escape("Run")
	require.NotEmpty(t, escaped)
	assert.Equal(t, "Run", p.Unescape(escaped))
}
