// Package tokenizer ties a pretokenizer and a model together into the
// encode/decode surface applications use, and persists that pair through the
// store package.
package tokenizer

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/morphtok/umtoken/alphabet"
	"github.com/morphtok/umtoken/api"
	"github.com/morphtok/umtoken/model"
	"github.com/morphtok/umtoken/morph"
	"github.com/morphtok/umtoken/morpher"
	"github.com/morphtok/umtoken/pretokenizer"
	"github.com/morphtok/umtoken/store"
)

// Pair is a merged token id: (vocab id, aux id), where aux id packs the rule
// id together with the case/whitespace sidecars of the word it starts:
// aux = rule_id*6 + (up_id*2+ws_id if this token starts its word, else 0).
type Pair [2]int

// Quad is the unmerged form of a token id: (vocab id, rule id, up id, ws id).
// up id and ws id are only meaningful on the first token of a word.
type Quad [4]int

// CachedIDs is what LocalCache stores per escaped word: the already-decoded
// (base, rule) id path, so repeated words in a corpus skip the lattice build.
type CachedIDs struct {
	BaseIDs []int
	RuleIDs []int
}

// LocalCache memoizes Encode results across calls within one tokenize pass.
// Callers tokenizing many texts sharing a vocabulary (e.g. a batch) should
// reuse the same LocalCache across those calls.
type LocalCache map[string]CachedIDs

// Options configures a single Tokenize/Detokenize call.
type Options struct {
	// ForceSlow forces the morpher's O(n^2) reference decomposition instead
	// of the trie-accelerated path. The tries are built when the model is
	// constructed either way; this only changes how candidates are searched.
	ForceSlow bool
	// Cache, if non-nil, is consulted and populated as words are encoded.
	Cache LocalCache
	// OmitReserved, used by Detokenize, replaces a reserved token with the
	// empty string instead of its literal text.
	OmitReserved bool
}

// wordTokens is the (base, rule) id path for one pretokenized piece, plus
// the case/whitespace sidecars that belong to its first token.
type wordTokens struct {
	baseIDs []int
	ruleIDs []int
	ws      int
	up      int
}

// Tokenizer encodes text into (vocab, rule) id paths via a PreTokenizer and
// a Model, and decodes those id paths back into text.
type Tokenizer struct {
	Pre        *pretokenizer.PreTokenizer
	Model      *model.Model
	Thumbprint string

	vocabLookup  map[string]int
	reservedByID map[int]bool
}

// New builds a Tokenizer, verifying every one of pre's reserved tokens has a
// matching entry in model's vocabulary (reserved tokens must have been
// trained or seeded as protected vocabulary entries).
func New(pre *pretokenizer.PreTokenizer, mdl *model.Model) (*Tokenizer, error) {
	lookup := make(map[string]int, len(mdl.Morpher.Bases))
	for i, b := range mdl.Morpher.Bases {
		lookup[b] = i
	}
	reserved := make(map[int]bool, len(pre.ReservedTokens))
	for _, t := range pre.ReservedTokens {
		id, ok := lookup[t]
		if !ok {
			return nil, errors.Errorf("tokenizer: reserved token %q is missing from the vocabulary", t)
		}
		reserved[id] = true
	}
	return &Tokenizer{
		Pre:          pre,
		Model:        mdl,
		Thumbprint:   mdl.Thumbprint(),
		vocabLookup:  lookup,
		reservedByID: reserved,
	}, nil
}

// appendEOW applies the same convention the trainer escapes words with: a
// word continuing across a hyphenation break (escaped soft hyphen, "H")
// loses that trailing marker instead of gaining an end-of-word one.
func appendEOW(escaped string) string {
	if strings.HasSuffix(escaped, "H") {
		return strings.TrimSuffix(escaped, "H")
	}
	return escaped + alphabet.EOW
}

func (tk *Tokenizer) encodeWord(escaped string, ws, up int, opts Options) wordTokens {
	var baseIDs, ruleIDs []int
	if opts.Cache != nil {
		if cached, ok := opts.Cache[escaped]; ok {
			baseIDs, ruleIDs = cached.BaseIDs, cached.RuleIDs
		}
	}
	if baseIDs == nil {
		word := appendEOW(escaped)
		baseIDs, ruleIDs, _ = tk.Model.Encode(word, 0, opts.ForceSlow)
		if opts.Cache != nil {
			opts.Cache[escaped] = CachedIDs{BaseIDs: baseIDs, RuleIDs: ruleIDs}
		}
	}
	return wordTokens{baseIDs: baseIDs, ruleIDs: ruleIDs, ws: ws, up: up}
}

// encodePiece turns one pretokenized piece into its id path. A reserved
// piece bypasses the model entirely: it resolves directly to its own
// vocabulary entry under the identity rule, the same way the trainer seeded
// it.
func (tk *Tokenizer) encodePiece(p pretokenizer.PieceTuple, opts Options) (wordTokens, error) {
	if p.Reserved {
		id, ok := tk.vocabLookup[p.Text]
		if !ok {
			return wordTokens{}, errors.Errorf("tokenizer: reserved token %q is missing from the vocabulary", p.Text)
		}
		return wordTokens{baseIDs: []int{id}, ruleIDs: []int{0}}, nil
	}
	return tk.encodeWord(p.Text, p.WS, p.Up, opts), nil
}

// encodeWords pretokenizes text and turns every resulting piece into its id
// path.
func (tk *Tokenizer) encodeWords(text string, opts Options) ([]wordTokens, error) {
	pieces := tk.Pre.SplitAndEscapeTuple(text)
	out := make([]wordTokens, len(pieces))
	for i, p := range pieces {
		w, err := tk.encodePiece(p, opts)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

// Tokenize splits, escapes, and encodes text into merged (vocab, aux) pairs,
// along with a parallel slice mapping each returned token to the index of
// the pretokenized word it came from.
func (tk *Tokenizer) Tokenize(text string, opts Options) ([]Pair, []int, error) {
	words, err := tk.encodeWords(text, opts)
	if err != nil {
		return nil, nil, err
	}
	var tokens []Pair
	var tokensToWords []int
	for wi, w := range words {
		for i := range w.baseIDs {
			aux := w.ruleIDs[i] * 6
			if i == 0 {
				aux += w.up*2 + w.ws
			}
			tokens = append(tokens, Pair{w.baseIDs[i], aux})
			tokensToWords = append(tokensToWords, wi)
		}
	}
	return tokens, tokensToWords, nil
}

// TokenizeSplit is Tokenize's unmerged form: every token keeps its rule id
// separate from the case/whitespace sidecars instead of packing them into
// one aux id.
func (tk *Tokenizer) TokenizeSplit(text string, opts Options) ([]Quad, []int, error) {
	words, err := tk.encodeWords(text, opts)
	if err != nil {
		return nil, nil, err
	}
	var tokens []Quad
	var tokensToWords []int
	for wi, w := range words {
		for i := range w.baseIDs {
			up, ws := 0, 0
			if i == 0 {
				up, ws = w.up, w.ws
			}
			tokens = append(tokens, Quad{w.baseIDs[i], w.ruleIDs[i], up, ws})
			tokensToWords = append(tokensToWords, wi)
		}
	}
	return tokens, tokensToWords, nil
}

// Detokenize reassembles text from a merged id path. A reserved token is
// recognized by vocabulary id, not by aux id, so it is treated as an
// end-of-word boundary even if the model's output never hands it a proper
// rule id; if one turns up in the middle of an unfinished word the partial
// word is flushed first, matching how a well-formed encode/decode round
// trip would have segmented it.
func (tk *Tokenizer) Detokenize(tokens []Pair, opts Options) (string, error) {
	var sb strings.Builder
	var baseIDs, ruleIDs []int
	ws, up := 0, 0
	wordStart := true

	flushWord := func() {
		if len(baseIDs) == 0 {
			return
		}
		word := tk.Model.Decode(baseIDs, ruleIDs)
		word = strings.TrimSuffix(word, alphabet.EOW)
		sb.WriteString(alphabet.UnescapeTuple(word, ws, up))
		baseIDs, ruleIDs = nil, nil
	}

	for _, t := range tokens {
		vocabID, auxID := t[0], t[1]
		ruleID := auxID / 6
		if wordStart {
			up = (auxID % 6) / 2
			ws = auxID % 2
			wordStart = false
		}

		if tk.reservedByID[vocabID] {
			flushWord()
			if !opts.OmitReserved {
				sb.WriteString(tk.Model.Morpher.Bases[vocabID])
			}
			wordStart = true
			continue
		}

		baseIDs = append(baseIDs, vocabID)
		ruleIDs = append(ruleIDs, ruleID)
		if tk.Model.IsEOWRule(ruleID) {
			flushWord()
			wordStart = true
		}
	}
	flushWord()
	return sb.String(), nil
}

// Encode implements api.Tokenizer: text is tokenized and flattened into a
// single int slice of (vocab, aux) pairs, two ints per token.
func (tk *Tokenizer) Encode(text string) ([]int, error) {
	pairs, _, err := tk.Tokenize(text, Options{})
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(pairs)*2)
	for _, p := range pairs {
		ids = append(ids, p[0], p[1])
	}
	return ids, nil
}

// Decode implements api.Tokenizer: the inverse of Encode.
func (tk *Tokenizer) Decode(ids []int) (string, error) {
	if len(ids)%2 != 0 {
		return "", errors.New("tokenizer: id sequence must have an even length of (vocab, aux) pairs")
	}
	pairs := make([]Pair, len(ids)/2)
	for i := range pairs {
		pairs[i] = Pair{ids[2*i], ids[2*i+1]}
	}
	return tk.Detokenize(pairs, Options{})
}

// specialTokenText maps api.SpecialToken to the reserved-token literal it
// corresponds to — indices line up with pretokenizer.DefaultReservedTokens.
var specialTokenText = [...]string{
	api.TokPad:           pretokenizer.PadToken,
	api.TokUnknown:       pretokenizer.UnkToken,
	api.TokPre:           pretokenizer.PreToken,
	api.TokStartOfText:   pretokenizer.SotToken,
	api.TokEndOfText:     pretokenizer.EotToken,
	api.TokMask:          pretokenizer.MskToken,
	api.TokClassification: pretokenizer.ClsToken,
	api.TokFeed:          pretokenizer.FeedToken,
	api.TokEmit:          pretokenizer.EmitToken,
	api.TokCurrent:       pretokenizer.CurToken,
}

// SpecialTokenID implements api.Tokenizer.
func (tk *Tokenizer) SpecialTokenID(tok api.SpecialToken) (int, bool) {
	if tok < 0 || int(tok) >= len(specialTokenText) {
		return 0, false
	}
	id, ok := tk.vocabLookup[specialTokenText[tok]]
	return id, ok
}

// EncodeWithOffsets implements api.TokenizerWithOffsets: every returned
// token is annotated with the byte range, in the normalized text, of the
// pretokenized word it came from (offsets are word-grained, not
// token-grained — every piece of a multi-piece word shares its word's
// range).
func (tk *Tokenizer) EncodeWithOffsets(text string) (api.EncodingResult, error) {
	pieces := tk.Pre.SplitAndEscapeTuple(text)
	var ids []int
	var offsets []api.TokenOffset
	cache := make(LocalCache)
	opts := Options{Cache: cache}

	for _, p := range pieces {
		w, err := tk.encodePiece(p, opts)
		if err != nil {
			return api.EncodingResult{}, err
		}
		off := api.TokenOffset{Start: p.Start, End: p.End}
		for i := range w.baseIDs {
			aux := w.ruleIDs[i] * 6
			if i == 0 {
				aux += w.up*2 + w.ws
			}
			ids = append(ids, w.baseIDs[i], aux)
			offsets = append(offsets, off)
		}
	}
	return api.EncodingResult{TokenIDs: ids, Offsets: offsets}, nil
}

func ruleToDict(r morph.Rule) store.RuleDict {
	d := store.RuleDict{Suffix: r.Suffix, Penalty: r.Penalty, Langs: r.Langs, MinBaseLength: r.MinBaseLength}
	if ro, ok := r.Op.(*morph.RegexOp); ok {
		d.ApplyPattern = ro.ApplyPattern.String()
		d.ApplySub = ro.ApplySub
		d.RevertPattern = ro.RevertPattern.String()
		d.RevertSub = ro.RevertSub
	}
	if r.Constraint != nil {
		d.Constraint = r.Constraint.String()
	}
	return d
}

func dictToRule(d store.RuleDict) (morph.Rule, error) {
	r := morph.Rule{Suffix: d.Suffix, Penalty: d.Penalty, Langs: d.Langs, MinBaseLength: d.MinBaseLength}
	if d.ApplyPattern != "" || d.RevertPattern != "" {
		op, err := morph.NewRegexOp(d.ApplyPattern, d.ApplySub, d.RevertPattern, d.RevertSub)
		if err != nil {
			return morph.Rule{}, errors.Wrapf(err, "compiling op for rule suffix %q", d.Suffix)
		}
		r.Op = op
	}
	if d.Constraint != "" {
		c, err := regexp.Compile(d.Constraint)
		if err != nil {
			return morph.Rule{}, errors.Wrapf(err, "compiling constraint for rule suffix %q", d.Suffix)
		}
		r.Constraint = c
	}
	return r, nil
}

// Save persists the tokenizer to path via the store package.
func (tk *Tokenizer) Save(path string) error {
	rules := make([]store.RuleDict, len(tk.Model.Morpher.Rules))
	for i, r := range tk.Model.Morpher.Rules {
		rules[i] = ruleToDict(r)
	}
	data := store.Persisted{
		Alphabet:           tk.Pre.Encoding.Alphabet,
		ReservedTokens:     tk.Pre.ReservedTokens,
		Normalization:      int(tk.Pre.Normalization),
		PreserveSoftHyphen: tk.Pre.KeepSoftHyphen,
		Bases:              tk.Model.Morpher.Bases,
		VocabLogits:        tk.Model.VocabLogits,
		VocabLangs:         tk.Model.VocabLangs,
		Langs:              tk.Model.Langs,
		Rules:              rules,
		RuleLogits:          tk.Model.RuleLogits,
		Alpha:              tk.Model.Alpha,
		Beta:               tk.Model.Beta,
		UnkTokenID:         tk.Model.UnkTokenID,
		MinBaseLen:         tk.Model.MinBaseLen,
		Thumbprint:         tk.Model.Thumbprint(),
	}
	return store.Save(path, data)
}

// Load reads a tokenizer back from path.
func Load(path string) (*Tokenizer, error) {
	data, err := store.Load(path)
	if err != nil {
		return nil, err
	}
	rules := make([]morph.Rule, len(data.Rules))
	for i, d := range data.Rules {
		r, err := dictToRule(d)
		if err != nil {
			return nil, err
		}
		rules[i] = r
	}
	m := morpher.New(data.Bases, rules)
	mdl := model.New(m, data.Alpha, data.Beta, data.UnkTokenID, data.MinBaseLen)
	mdl.VocabLogits = data.VocabLogits
	mdl.RuleLogits = data.RuleLogits
	mdl.VocabLangs = data.VocabLangs
	mdl.Langs = data.Langs

	enc := alphabet.NewEncoding(data.Alphabet)
	pre := pretokenizer.New(enc, pretokenizer.Normalization(data.Normalization), data.ReservedTokens)
	pre.KeepSoftHyphen = data.PreserveSoftHyphen

	tk, err := New(pre, mdl)
	if err != nil {
		return nil, err
	}
	tk.Thumbprint = data.Thumbprint
	return tk, nil
}

var _ api.Tokenizer = (*Tokenizer)(nil)
var _ api.TokenizerWithOffsets = (*Tokenizer)(nil)
