package tokenizer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphtok/umtoken/alphabet"
	"github.com/morphtok/umtoken/api"
	"github.com/morphtok/umtoken/model"
	"github.com/morphtok/umtoken/morph"
	"github.com/morphtok/umtoken/morpher"
	"github.com/morphtok/umtoken/pretokenizer"
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	enc := alphabet.NewEncoding(alphabet.ASCIIAll + "abcdefghijklmnopqrstuvwxyz")
	reserved := []string{"[PAD]", "[UNK]"}
	pre := pretokenizer.New(enc, pretokenizer.NormalizeDefault, reserved)

	bases := []string{"[PAD]", "[UNK]", "cat", "dog", "run"}
	rules := morph.DefaultRules()
	m := morpher.New(bases, rules)
	mdl := model.New(m, 1.0, 0.02, 1, 1)

	tk, err := New(pre, mdl)
	require.NoError(t, err)
	return tk
}

func TestTokenizeAndDetokenizeRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)

	pairs, tokensToWords, err := tk.Tokenize("cat dog", Options{})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, []int{0, 1}, tokensToWords)

	got, err := tk.Detokenize(pairs, Options{})
	require.NoError(t, err)
	assert.Equal(t, "cat dog", got)
}

func TestTokenizeCapturesCaseAndSpaceSidecars(t *testing.T) {
	tk := newTestTokenizer(t)

	pairs, _, err := tk.Tokenize("Cat", Options{})
	require.NoError(t, err)

	got, err := tk.Detokenize(pairs, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Cat", got)
}

func TestReservedTokenPassesThrough(t *testing.T) {
	tk := newTestTokenizer(t)

	pairs, tokensToWords, err := tk.Tokenize("[PAD] cat", Options{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pairs), 2)

	padID, ok := tk.vocabLookup["[PAD]"]
	require.True(t, ok)
	assert.Equal(t, padID, pairs[0][0])
	assert.Equal(t, 0, pairs[0][1])
	assert.Equal(t, 0, tokensToWords[0])

	got, err := tk.Detokenize(pairs, Options{})
	require.NoError(t, err)
	assert.Equal(t, "[PAD] cat", got)
}

func TestDetokenizeOmitsReservedWhenRequested(t *testing.T) {
	tk := newTestTokenizer(t)

	pairs, _, err := tk.Tokenize("[PAD] cat", Options{})
	require.NoError(t, err)

	got, err := tk.Detokenize(pairs, Options{OmitReserved: true})
	require.NoError(t, err)
	assert.Equal(t, " cat", got)
}

func TestEncodeDecodeFlatIDsRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)

	ids, err := tk.Encode("run dog")
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, 0, len(ids)%2)

	got, err := tk.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, "run dog", got)
}

func TestDecodeRejectsOddLengthIDs(t *testing.T) {
	tk := newTestTokenizer(t)
	_, err := tk.Decode([]int{1, 2, 3})
	assert.Error(t, err)
}

func TestSpecialTokenID(t *testing.T) {
	tk := newTestTokenizer(t)

	id, ok := tk.SpecialTokenID(api.TokPad)
	require.True(t, ok)
	assert.Equal(t, tk.vocabLookup["[PAD]"], id)

	_, ok = tk.SpecialTokenID(api.TokMask)
	assert.False(t, ok)
}

func TestEncodeWithOffsetsCoversWholeText(t *testing.T) {
	tk := newTestTokenizer(t)

	result, err := tk.EncodeWithOffsets("cat dog")
	require.NoError(t, err)
	require.NotEmpty(t, result.Offsets)
	last := result.Offsets[len(result.Offsets)-1]
	assert.Equal(t, len("cat dog"), last.End)
}

func TestTokenizeSplitAgreesWithMerged(t *testing.T) {
	tk := newTestTokenizer(t)

	merged, _, err := tk.Tokenize("Cat", Options{})
	require.NoError(t, err)
	split, _, err := tk.TokenizeSplit("Cat", Options{})
	require.NoError(t, err)
	require.Equal(t, len(merged), len(split))

	for i, q := range split {
		assert.Equal(t, merged[i][0], q[0])
		wantAux := q[1]*6 + q[2]*2 + q[3]
		assert.Equal(t, merged[i][1], wantAux)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tk := newTestTokenizer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenizer.json")

	require.NoError(t, tk.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)

	pairs, _, err := tk.Tokenize("cat dog", Options{})
	require.NoError(t, err)
	loadedPairs, _, err := loaded.Tokenize("cat dog", Options{})
	require.NoError(t, err)
	assert.Equal(t, pairs, loadedPairs)

	got, err := loaded.Detokenize(loadedPairs, Options{})
	require.NoError(t, err)
	assert.Equal(t, "cat dog", got)
}

func TestLocalCacheReusesEncoding(t *testing.T) {
	tk := newTestTokenizer(t)
	cache := make(LocalCache)

	first, _, err := tk.Tokenize("cat cat", Options{Cache: cache})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Contains(t, cache, "cat")
}
