// Package alphabet implements the reversible ASCII escape codec used to turn
// arbitrary Unicode words into strings over a fixed, lowercase-only alphabet.
//
// Uppercase Latin letters never appear in an escaped word: they are reserved
// for escape sequences (U for UTF-8 byte groups, A-F for hex digits, X for
// the end-of-word marker, Y for the upper-case sidecar flag) plus G, H, N, T
// for space, soft-hyphen, newline, and tab.
package alphabet

import (
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// EOW marks the end of a word; reserved, never produced by Escape itself.
	EOW = "X"
	// Upper prefixes an escaped word to carry a title/upper-case flag.
	Upper = "Y"
	// UTF8Prefix precedes each uppercase-hex byte of an escaped non-alphabet codepoint.
	UTF8Prefix = "U"

	spaceEsc   = "G"
	shyEsc     = "H"
	newlineEsc = "N"
	tabEsc     = "T"

	// SoftHyphen is the continuation marker: a word ending in it is not yet complete.
	SoftHyphen = "­"

	// HexDigits are the uppercase hex digits reserved alongside UTF8Prefix.
	HexDigits = "ABCDEF"

	// ASCIIDigits and ASCIIPunctuation are always part of the alphabet.
	ASCIIDigits      = "0123456789"
	ASCIIPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	// ASCIIEncoding is the four reserved single-letter escape characters.
	ASCIIEncoding = spaceEsc + shyEsc + newlineEsc + tabEsc
	// ASCIIAll is the union of the reserved encoding letters, digits, and punctuation.
	ASCIIAll = ASCIIEncoding + ASCIIDigits + ASCIIPunctuation
)

// unescapeRegex matches either a run of U<HH> byte groups or one of the
// single-letter whitespace/soft-hyphen escapes.
var unescapeRegex = regexp.MustCompile(`(?:` + UTF8Prefix + `[0-9A-F]{2})+|[` + spaceEsc + shyEsc + newlineEsc + tabEsc + `]`)

// Encoding escapes and unescapes words against a specific target alphabet.
type Encoding struct {
	Alphabet string
	set      map[rune]bool
}

// NewEncoding builds an Encoding for the given alphabet (a string of runes
// that must never be escaped; everything else is escape-encoded).
func NewEncoding(alphabet string) *Encoding {
	set := make(map[rune]bool, len(alphabet))
	for _, r := range alphabet {
		set[r] = true
	}
	return &Encoding{Alphabet: alphabet, set: set}
}

// Escape escapes a word, returning the escaped string plus the whitespace and
// case sidecars. ws is 1 if the word had a single leading space. up is 0 (no
// case), 1 (title case) or 2 (all upper case).
func (e *Encoding) Escape(word string) (escaped string, ws int, up int) {
	if word == "" {
		return "", 0, 0
	}
	if word == " " {
		return spaceEsc, 0, 0
	}

	runes := []rune(word)
	if runes[0] == ' ' && (len(runes) < 2 || runes[1] != ' ') {
		ws = 1
		runes = runes[1:]
	}
	if len(runes) > 0 && unicode.IsUpper(runes[0]) {
		up = 1
		if len(runes) > 1 && unicode.IsUpper(runes[1]) {
			up = 2
		}
	}
	lowered := strings.ToLower(string(runes))
	escaped = e.escapeChars(lowered)
	return escaped, ws, up
}

// EscapeString escapes a word into the single-string form used as a
// vocabulary key: ws*G + up*Y + escaped.
func (e *Encoding) EscapeString(word string) string {
	escaped, ws, up := e.Escape(word)
	if escaped == "" && ws == 0 && up == 0 {
		return ""
	}
	return strings.Repeat(spaceEsc, ws) + strings.Repeat(Upper, up) + escaped
}

func (e *Encoding) escapeChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if e.set[r] {
			b.WriteRune(r)
		} else {
			b.WriteString(EscapeChar(r))
		}
	}
	return b.String()
}

// EscapeChar escapes a single codepoint that does not belong to the target
// alphabet: whitespace/soft-hyphen map to their reserved letter, everything
// else becomes one U<HH> group per UTF-8 byte.
func EscapeChar(r rune) string {
	switch r {
	case ' ':
		return spaceEsc
	case '\n':
		return newlineEsc
	case '\t':
		return tabEsc
	case '­':
		return shyEsc
	default:
		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], r)
		var b strings.Builder
		b.Grow(n * 3)
		for _, byt := range buf[:n] {
			b.WriteString(UTF8Prefix)
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{byt})))
		}
		return b.String()
	}
}

// Unescape inverts EscapeString: it consumes the leading ws/up sidecar
// prefix, if any, then unescapes the remainder and reapplies the case.
func Unescape(escaped string) string {
	if escaped == "" {
		return ""
	}
	if escaped == spaceEsc {
		return " "
	}
	word := escaped
	ws := 0
	if strings.HasPrefix(word, spaceEsc) {
		ws = 1
		word = word[len(spaceEsc):]
	}
	up := 0
	if strings.HasPrefix(word, Upper) {
		if strings.HasPrefix(word[len(Upper):], Upper) {
			up = 2
			word = word[2*len(Upper):]
		} else {
			up = 1
			word = word[len(Upper):]
		}
	}
	return strings.Repeat(" ", ws) + applyCase(unescapeChars(word), up)
}

// UnescapeTuple inverts Escape: word is the escaped form without the ws/up
// prefix, ws and up are the sidecars returned by Escape.
func UnescapeTuple(word string, ws, up int) string {
	return strings.Repeat(" ", ws) + applyCase(unescapeChars(word), up)
}

func applyCase(word string, up int) string {
	switch up {
	case 1:
		return titleCase(word)
	case 2:
		return strings.ToUpper(word)
	default:
		return word
	}
}

// titleCase mirrors Python's str.capitalize(): upper-case the first rune,
// lower-case the rest.
func titleCase(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(word)
	head := strings.ToUpper(string(runes[0]))
	tail := strings.ToLower(string(runes[1:]))
	return head + tail
}

// unescapeChars inverts escapeChars: malformed U<HH> groups (illegal hex or
// non-UTF-8 byte sequences) decode to "?" rather than failing.
func unescapeChars(s string) string {
	return unescapeRegex.ReplaceAllStringFunc(s, unescapeChar)
}

func unescapeChar(m string) string {
	switch m {
	case spaceEsc:
		return " "
	case newlineEsc:
		return "\n"
	case tabEsc:
		return "\t"
	case shyEsc:
		return SoftHyphen
	}
	if strings.HasPrefix(m, UTF8Prefix) {
		hexDigits := strings.ReplaceAll(m, UTF8Prefix, "")
		raw, err := hex.DecodeString(hexDigits)
		if err != nil || !utf8.Valid(raw) {
			return "?"
		}
		return string(raw)
	}
	return "?"
}
