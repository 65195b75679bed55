// Package api defines the tokenizer-facing interfaces and types shared by
// every backend in this module, mirroring the shape external callers expect
// regardless of which concrete tokenizer they hold.
package api

// TokenOffset is a half-open [Start, End) byte range into the original
// input text that a token was derived from.
type TokenOffset struct {
	Start int
	End   int
}

// EncodingResult bundles token ids together with their origin offsets, the
// form returned by EncodeWithOffsets.
type EncodingResult struct {
	TokenIDs []int
	Offsets  []TokenOffset
}

// SpecialToken enumerates the reserved tokens every trained model carries.
//
//go:generate enumer -type=SpecialToken -trimprefix=Tok -json
type SpecialToken int

const (
	TokPad SpecialToken = iota
	TokUnknown
	TokPre
	TokStartOfText
	TokEndOfText
	TokMask
	TokClassification
	TokFeed
	TokEmit
	TokCurrent
	TokSpecialTokensCount
)

// Tokenizer is the minimal surface every backend implements: encode text to
// ids, decode ids back to text, and resolve a special token to its id.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	SpecialTokenID(tok SpecialToken) (int, bool)
}

// TokenizerWithOffsets is implemented by backends that can report where in
// the original text each returned token came from.
type TokenizerWithOffsets interface {
	Tokenizer
	EncodeWithOffsets(text string) (EncodingResult, error)
}
