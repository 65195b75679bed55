package langdata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandLanguagesShorthand(t *testing.T) {
	expanded := ExpandLanguages([]string{"eu3"})
	assert.ElementsMatch(t, []string{"en", "fr", "de"}, expanded)
}

func TestExpandLanguagesPassesThroughUnknownCodes(t *testing.T) {
	expanded := ExpandLanguages([]string{"xx"})
	assert.Equal(t, []string{"xx"}, expanded)
}

func TestExpandLanguagesDedupes(t *testing.T) {
	expanded := ExpandLanguages([]string{"en", "eu3"})
	count := 0
	for _, l := range expanded {
		if l == "en" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestGetAlphabetIncludesBaseLatin(t *testing.T) {
	alphabet := GetAlphabet([]string{"de"})
	for _, r := range MinLatinAlphabet {
		assert.True(t, strings.ContainsRune(alphabet, r))
	}
	assert.True(t, strings.ContainsRune(alphabet, 'ä'))
}

func TestGetAlphabetUnionsMultipleLanguages(t *testing.T) {
	alphabet := GetAlphabet([]string{"de", "es"})
	assert.True(t, strings.ContainsRune(alphabet, 'ü'))
	assert.True(t, strings.ContainsRune(alphabet, 'ñ'))
}
