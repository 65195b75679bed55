// Package pretokenizer splits raw text into word-like pieces, normalizes
// them, and escapes each into the ASCII alphabet the morphological model
// operates over — fencing out any reserved tokens (like "[PAD]") so they
// pass through untouched.
package pretokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/morphtok/umtoken/alphabet"
)

// Reserved token literals, in the order a default reserved-token list uses
// them.
const (
	PadToken   = "[PAD]"
	UnkToken   = "[UNK]"
	PreToken   = "[PRE]"
	SotToken   = "[SOT]"
	EotToken   = "[EOT]"
	MskToken   = "[MSK]"
	ClsToken   = "[CLS]"
	FeedToken  = "[FEED]"
	EmitToken  = "[EMIT]"
	CurToken   = "[CUR]"
)

// DefaultReservedTokens is the reserved-token set every trained model
// carries unless overridden.
var DefaultReservedTokens = []string{
	PadToken, UnkToken, PreToken, SotToken, EotToken,
	MskToken, ClsToken, FeedToken, EmitToken, CurToken,
}

// Normalization selects how Normalize massages Unicode before splitting.
type Normalization int

const (
	// NormalizeDefault applies NFC only.
	NormalizeDefault Normalization = iota
	// NormalizeNFC applies NFC only (explicit alias of Default).
	NormalizeNFC
	// NormalizeIPT applies NFC then NFKC, for corpora mixing full-width and
	// compatibility-decomposed digits/letters (IPT = "international plain
	// text").
	NormalizeIPT
	// NormalizeNone performs no Unicode normalization at all.
	NormalizeNone
)

// Piece is one unit Split produces: either ordinary text to be escaped, or a
// reserved token to pass through untouched.
type Piece struct {
	Text     string
	Reserved bool
}

// PreTokenizer splits and escapes text against a target alphabet.
type PreTokenizer struct {
	Encoding       *alphabet.Encoding
	Normalization  Normalization
	ReservedTokens []string
	KeepSoftHyphen bool
}

// New builds a PreTokenizer. If reservedTokens is nil, DefaultReservedTokens
// is used.
func New(encoding *alphabet.Encoding, normalization Normalization, reservedTokens []string) *PreTokenizer {
	if reservedTokens == nil {
		reservedTokens = DefaultReservedTokens
	}
	return &PreTokenizer{
		Encoding:       encoding,
		Normalization:  normalization,
		ReservedTokens: reservedTokens,
	}
}

// Normalize applies Unicode normalization, folds non-standard whitespace
// into plain spaces/newlines, and strips format (Cf) and control characters
// (preserving the soft hyphen, which carries morphological meaning for this
// codec, unless KeepSoftHyphen is false). Combining marks are not stripped,
// including those NFC leaves uncombined.
func (p *PreTokenizer) Normalize(text string) string {
	switch p.Normalization {
	case NormalizeIPT:
		text = norm.NFC.String(text)
		text = norm.NFKC.String(text)
	case NormalizeNone:
		// no-op
	default:
		text = norm.NFC.String(text)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\r':
			b.WriteRune('\n')
		case r == ' ' || (unicode.Is(unicode.Zs, r) && r != ' '):
			b.WriteRune(' ')
		case r == '­':
			if p.KeepSoftHyphen {
				b.WriteRune(r)
			}
		case unicode.Is(unicode.Cf, r):
			// drop other format characters (zero-width joiners, BOM, ...)
		case unicode.IsControl(r) && r != '\n' && r != '\t':
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordLower(r rune) bool {
	return unicode.IsLower(r) || unicode.Is(unicode.Lo, r) || unicode.Is(unicode.Lm, r)
}

func isWordUpper(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsTitle(r)
}

// split runs the hand-rolled word-boundary scanner: Go's RE2 engine cannot
// express the lookbehind/backreference split pattern this is ported from, so
// each alternative of that pattern is scanned explicitly instead.
func split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	var out []string

	for i := 0; i < n; {
		j := i
		if runes[j] == ' ' && j+1 < n &&
			(isWordLower(runes[j+1]) || isWordUpper(runes[j+1]) || unicode.IsDigit(runes[j+1])) {
			j++
		}

		// Lowercase run, optionally preceded by one space.
		if j < n && isWordLower(runes[j]) {
			k := j
			for k < n && isWordLower(runes[k]) {
				k++
			}
			out = append(out, string(runes[i:k]))
			i = k
			continue
		}

		// Titlecase word: Upper, Lower, then a lowercase run.
		if j < n && isWordUpper(runes[j]) && j+1 < n && isWordLower(runes[j+1]) {
			k := j + 2
			for k < n && isWordLower(runes[k]) {
				k++
			}
			out = append(out, string(runes[i:k]))
			i = k
			continue
		}

		// All-caps run, not immediately followed by a lowercase letter.
		if j < n && isWordUpper(runes[j]) {
			k := j
			for k < n && isWordUpper(runes[k]) {
				k++
			}
			if !(k < n && isWordLower(runes[k])) {
				out = append(out, string(runes[i:k]))
				i = k
				continue
			}
		}

		// Digit run.
		if j < n && unicode.IsDigit(runes[j]) {
			k := j
			for k < n && unicode.IsDigit(runes[k]) {
				k++
			}
			out = append(out, string(runes[i:k]))
			i = k
			continue
		}

		// Whitespace run, only when not immediately preceded by a space
		// (a lone leading space was already consumed by the lowercase
		// branch above when one followed it).
		if j < n && runes[j] == ' ' && !(i > 0 && runes[i-1] == ' ') {
			k := j
			for k < n && runes[k] == ' ' {
				k++
			}
			out = append(out, string(runes[i:k]))
			i = k
			continue
		}

		// Fallback: a run of the same other character (punctuation, symbols).
		r0 := runes[j]
		k := j + 1
		for k < n && runes[k] == r0 {
			k++
		}
		out = append(out, string(runes[i:k]))
		i = k
	}
	return out
}

// Split normalizes text, fences out reserved tokens, and splits the
// remaining text into word-like pieces.
func (p *PreTokenizer) Split(text string) []Piece {
	text = p.Normalize(text)
	return p.splitReserved(text)
}

// splitReserved scans text left to right for the earliest occurrence of any
// reserved token, recursively splitting the non-reserved text around it.
func (p *PreTokenizer) splitReserved(text string) []Piece {
	if len(p.ReservedTokens) == 0 || text == "" {
		return wordPieces(text)
	}
	idx, tok := findEarliestReserved(text, p.ReservedTokens)
	if idx < 0 {
		return wordPieces(text)
	}
	var out []Piece
	if idx > 0 {
		out = append(out, wordPieces(text[:idx])...)
	}
	out = append(out, Piece{Text: tok, Reserved: true})
	out = append(out, p.splitReserved(text[idx+len(tok):])...)
	return out
}

func wordPieces(text string) []Piece {
	if text == "" {
		return nil
	}
	words := split(text)
	out := make([]Piece, len(words))
	for i, w := range words {
		out[i] = Piece{Text: w}
	}
	return out
}

func findEarliestReserved(text string, tokens []string) (int, string) {
	best := -1
	bestTok := ""
	for _, tok := range tokens {
		idx := strings.Index(text, tok)
		if idx < 0 {
			continue
		}
		if best == -1 || idx < best || (idx == best && len(tok) > len(bestTok)) {
			best = idx
			bestTok = tok
		}
	}
	return best, bestTok
}

// Escape escapes a single ordinary (non-reserved) word piece.
func (p *PreTokenizer) Escape(word string) string {
	return p.Encoding.EscapeString(word)
}

// SplitAndEscape splits text and escapes every non-reserved piece, leaving
// reserved-token pieces as their literal text.
func (p *PreTokenizer) SplitAndEscape(text string) []Piece {
	pieces := p.Split(text)
	out := make([]Piece, len(pieces))
	for i, piece := range pieces {
		if piece.Reserved {
			out[i] = piece
			continue
		}
		out[i] = Piece{Text: p.Escape(piece.Text)}
	}
	return out
}

// PieceTuple is one unit SplitAndEscapeTuple produces: an ordinary piece
// carries its escaped text plus the whitespace/case sidecars Escape stripped
// off separately (rather than baked back into the text, as Piece does); a
// reserved piece carries its literal text untouched. Start/End are the
// piece's byte offsets within the normalized text.
type PieceTuple struct {
	Text     string
	WS       int
	Up       int
	Reserved bool
	Start    int
	End      int
}

// SplitAndEscapeTuple splits and normalizes text like Split, but escapes
// each ordinary piece with its whitespace/case sidecars kept separate from
// the escaped text — the form a tokenizer needs to pack them into a
// property id alongside the rule id, rather than as literal escape letters
// in the vocabulary string.
func (p *PreTokenizer) SplitAndEscapeTuple(text string) []PieceTuple {
	text = p.Normalize(text)
	pieces := p.splitReserved(text)
	out := make([]PieceTuple, len(pieces))
	offset := 0
	for i, piece := range pieces {
		start := offset
		offset += len(piece.Text)
		if piece.Reserved {
			out[i] = PieceTuple{Text: piece.Text, Reserved: true, Start: start, End: offset}
			continue
		}
		escaped, ws, up := p.Encoding.Escape(piece.Text)
		out[i] = PieceTuple{Text: escaped, WS: ws, Up: up, Start: start, End: offset}
	}
	return out
}

// Unescape inverts Escape for a single escaped piece.
func (p *PreTokenizer) Unescape(escaped string) string {
	return alphabet.Unescape(escaped)
}

// UnescapeAndJoin inverts SplitAndEscape: unescapes every non-reserved piece
// and concatenates everything back into running text.
func (p *PreTokenizer) UnescapeAndJoin(pieces []Piece) string {
	var b strings.Builder
	for _, piece := range pieces {
		if piece.Reserved {
			b.WriteString(piece.Text)
			continue
		}
		b.WriteString(p.Unescape(piece.Text))
	}
	return b.String()
}
