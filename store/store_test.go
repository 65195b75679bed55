package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenizer.json")

	minLen := 3
	data := Persisted{
		Alphabet:       "abcdefghijklmnopqrstuvwxyz",
		ReservedTokens: []string{"[PAD]", "[UNK]"},
		Bases:          []string{"run", "cat"},
		VocabLogits:    []float64{-1.0, -2.0},
		VocabLangs:     []uint64{0, 1},
		Langs:          []string{"en", "fr"},
		Rules: []RuleDict{
			{Suffix: ""},
			{Suffix: "X"},
			{Suffix: "s", MinBaseLength: &minLen},
		},
		RuleLogits: []float64{-0.1, -0.2, -0.3},
		Alpha:      1.0,
		Beta:       0.02,
		UnkTokenID: 1,
		MinBaseLen: 1,
		Thumbprint: "abc123",
	}

	require.NoError(t, Save(path, data))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSaveOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenizer.json")

	require.NoError(t, Save(path, Persisted{Thumbprint: "first"}))
	require.NoError(t, Save(path, Persisted{Thumbprint: "second"}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Thumbprint)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
