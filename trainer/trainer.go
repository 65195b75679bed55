// Package trainer implements the EM training loop that turns a weighted word
// list into a pruned vocabulary and a fitted model.Model: candidate
// generation, sharded expectation-maximization passes, removal-loss pruning,
// and final vocabulary ordering.
package trainer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/morphtok/umtoken/alphabet"
	"github.com/morphtok/umtoken/model"
	"github.com/morphtok/umtoken/morph"
	"github.com/morphtok/umtoken/morpher"
	"github.com/morphtok/umtoken/pretokenizer"
)

// Default hyperparameters, mirroring the values a from-scratch training run
// starts with absent any overrides.
const (
	DefaultAlpha            = 1.0
	DefaultBeta              = 0.02
	DefaultSpreadFactor      = 4.0
	DefaultMaxTokenLength    = 16
	DefaultMinCount          = 2
	DefaultIterations        = 5
	DefaultMinBaseLen        = 1
	DefaultWorkers           = 4
)

// Config holds every tunable of a training run. Build one with NewConfig and
// a chain of With* options rather than constructing it directly, so future
// fields can default sensibly.
type Config struct {
	VocabSize        int
	Alphabet         string
	EscapeChars      []string
	ReservedTokens   []string
	UnkToken         string
	SpreadFactor     float64
	MaxTokenLength   int
	TokenRegex       *regexp.Regexp
	DiscountExponent float64
	MinCount         int
	SeedTokens       []string
	SeedTokenLogit   float64
	SkipNumbers      bool
	Iterations       int
	Alpha            float64
	Beta             float64
	MinBaseLen       int
	TieByLangs       bool
	MinBalanceLangs  float64
	Workers          int
	ForceSlow        bool
}

// Option configures a Config produced by NewConfig.
type Option func(*Config)

func WithAlphabet(a string) Option           { return func(c *Config) { c.Alphabet = a } }
func WithEscapeChars(chars []string) Option  { return func(c *Config) { c.EscapeChars = chars } }
func WithReservedTokens(toks []string) Option { return func(c *Config) { c.ReservedTokens = toks } }
func WithUnkToken(tok string) Option         { return func(c *Config) { c.UnkToken = tok } }
func WithSpreadFactor(f float64) Option      { return func(c *Config) { c.SpreadFactor = f } }
func WithMaxTokenLength(n int) Option        { return func(c *Config) { c.MaxTokenLength = n } }
func WithTokenRegex(re *regexp.Regexp) Option { return func(c *Config) { c.TokenRegex = re } }
func WithDiscountExponent(e float64) Option  { return func(c *Config) { c.DiscountExponent = e } }
func WithMinCount(n int) Option              { return func(c *Config) { c.MinCount = n } }
func WithSeedTokens(toks []string, logit float64) Option {
	return func(c *Config) { c.SeedTokens = toks; c.SeedTokenLogit = logit }
}
func WithSkipNumbers(skip bool) Option        { return func(c *Config) { c.SkipNumbers = skip } }
func WithIterations(n int) Option             { return func(c *Config) { c.Iterations = n } }
func WithAlphaBeta(alpha, beta float64) Option { return func(c *Config) { c.Alpha = alpha; c.Beta = beta } }
func WithMinBaseLen(n int) Option             { return func(c *Config) { c.MinBaseLen = n } }
func WithTieByLangs(tie bool) Option          { return func(c *Config) { c.TieByLangs = tie } }
func WithMinBalanceLangs(frac float64) Option { return func(c *Config) { c.MinBalanceLangs = frac } }
func WithWorkers(n int) Option                { return func(c *Config) { c.Workers = n } }
func WithForceSlow(force bool) Option         { return func(c *Config) { c.ForceSlow = force } }

// NewConfig builds a Config for a target vocabulary size with sensible
// defaults, applying opts in order.
func NewConfig(vocabSize int, opts ...Option) Config {
	c := Config{
		VocabSize:      vocabSize,
		Alphabet:       alphabet.ASCIIAll,
		ReservedTokens: pretokenizer.DefaultReservedTokens,
		UnkToken:       pretokenizer.UnkToken,
		SpreadFactor:   DefaultSpreadFactor,
		MaxTokenLength: DefaultMaxTokenLength,
		MinCount:       DefaultMinCount,
		Iterations:     DefaultIterations,
		Alpha:          DefaultAlpha,
		Beta:           DefaultBeta,
		MinBaseLen:     DefaultMinBaseLen,
		Workers:        DefaultWorkers,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WordCount is one training example: an already-escaped word (see
// Trainer.escapeWord), its discounted weight, and the language it was
// observed in (empty string means language-agnostic).
type WordCount struct {
	Word    string
	Count   float64
	Lang    string
	LangBit uint64
}

// Trainer runs the EM loop described by a Config against a prepared word
// list, producing a model.Model over a pruned vocabulary.
type Trainer struct {
	Config    Config
	Encoding  *alphabet.Encoding
	Pre       *pretokenizer.PreTokenizer
	Protected map[string]bool
	Verbose   bool

	langBits map[string]uint64
}

// New validates cfg and builds a Trainer. The protected-token set (reserved
// tokens, escape characters, alphabet letters, seed tokens) is computed once
// up front; PrepareWords skips protected words, and prune and finalizeVocab
// consult it so protected strings are never pruned away. GenerateCandidates
// does not filter protected strings out of the candidate list.
func New(cfg Config) (*Trainer, error) {
	if cfg.Iterations <= 1 {
		return nil, errors.New("trainer: Iterations must be > 1")
	}
	if cfg.VocabSize <= 0 {
		return nil, errors.New("trainer: VocabSize must be > 0")
	}
	enc := alphabet.NewEncoding(cfg.Alphabet)
	pre := pretokenizer.New(enc, pretokenizer.NormalizeDefault, cfg.ReservedTokens)

	protected := make(map[string]bool)
	for _, t := range cfg.ReservedTokens {
		protected[t] = true
	}
	for _, c := range cfg.EscapeChars {
		protected[c] = true
	}
	for _, r := range cfg.Alphabet {
		protected[string(r)] = true
	}
	for _, t := range cfg.SeedTokens {
		protected[t] = true
	}

	return &Trainer{
		Config:    cfg,
		Encoding:  enc,
		Pre:       pre,
		Protected: protected,
		langBits:  make(map[string]uint64),
	}, nil
}

// langBit assigns (or recalls) the bit reserved for lang. Languages beyond
// the 64th distinct code observed get the zero mask, which HasAnyLang's zero-mask
// convention treats as "unconstrained" rather than a specific exclusive
// language — training still works, it just stops being able to single that
// language out for tying or reporting.
func (t *Trainer) langBit(lang string) uint64 {
	if lang == "" {
		return 0
	}
	if bit, ok := t.langBits[lang]; ok {
		return bit
	}
	idx := len(t.langBits)
	if idx >= 64 {
		return 0
	}
	bit := uint64(1) << uint(idx)
	t.langBits[lang] = bit
	return bit
}

// langList returns the languages assigned a bit by langBit, ordered by bit
// position, so a persisted model's VocabLangs/rule.Langs masks stay
// interpretable: element i is the language of bit 1<<i.
func (t *Trainer) langList() []string {
	if len(t.langBits) == 0 {
		return nil
	}
	out := make([]string, len(t.langBits))
	for lang, bit := range t.langBits {
		idx := 0
		for bit > 1 {
			bit >>= 1
			idx++
		}
		out[idx] = lang
	}
	return out
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// escapeWord turns a raw (unescaped) word into the form decompose/model
// operate on: escape it, then either strip a trailing soft-hyphen escape
// (the word continues into the next one, e.g. a hyphenation break) or append
// the end-of-word marker.
func (t *Trainer) escapeWord(raw string) string {
	escaped := t.Encoding.EscapeString(raw)
	if strings.HasSuffix(escaped, "H") {
		return strings.TrimSuffix(escaped, "H")
	}
	return escaped + alphabet.EOW
}

// PrepareWords filters, discounts, and escapes raw word counts into the
// WordCount list Train consumes. counts maps a raw (unescaped) word to its
// corpus frequency; langOfWord optionally maps a word to the language it was
// observed in, for per-language balancing and tying.
func (t *Trainer) PrepareWords(counts map[string]float64, langOfWord map[string]string) []WordCount {
	var prepared []WordCount
	for word, count := range counts {
		if word == "" || count < float64(t.Config.MinCount) {
			continue
		}
		if t.Protected[word] {
			continue
		}
		if t.Config.SkipNumbers && isAllDigits(word) {
			continue
		}
		weight := count
		if t.Config.DiscountExponent > 0 {
			weight = math.Pow(count, 1.0-t.Config.DiscountExponent)
		}
		lang := langOfWord[word]
		prepared = append(prepared, WordCount{
			Word:    t.escapeWord(word),
			Count:   weight,
			Lang:    lang,
			LangBit: t.langBit(lang),
		})
	}
	return t.balanceByLanguage(prepared)
}

// balanceByLanguage upsamples under-represented languages so that no
// language contributes less than MinBalanceLangs times the largest
// per-language total weight. A MinBalanceLangs of 0 disables balancing.
func (t *Trainer) balanceByLanguage(words []WordCount) []WordCount {
	if t.Config.MinBalanceLangs <= 0 {
		return words
	}
	totals := make(map[string]float64)
	for _, w := range words {
		totals[w.Lang] += w.Count
	}
	if len(totals) == 0 {
		return words
	}
	var maxTotal float64
	for _, total := range totals {
		if total > maxTotal {
			maxTotal = total
		}
	}
	target := maxTotal * t.Config.MinBalanceLangs

	out := make([]WordCount, len(words))
	copy(out, words)
	for i, w := range out {
		if total := totals[w.Lang]; total > 0 && total < target {
			out[i].Count *= target / total
		}
	}
	return out
}

// GenerateCandidates enumerates every substring of length 2..MaxTokenLength
// across all words, weighted by the summed word counts it occurs in, and
// returns the top SpreadFactor*VocabSize candidates by weight.
func (t *Trainer) GenerateCandidates(words []WordCount) []string {
	weights := make(map[string]float64)
	for _, w := range words {
		s := w.Word
		n := len(s)
		maxLen := t.Config.MaxTokenLength
		for i := 0; i < n; i++ {
			limit := i + maxLen
			if limit > n {
				limit = n
			}
			for j := i + 2; j <= limit; j++ {
				sub := s[i:j]
				if t.Config.TokenRegex != nil && !t.Config.TokenRegex.MatchString(sub) {
					continue
				}
				weights[sub] += w.Count
			}
		}
	}

	type candidate struct {
		text   string
		weight float64
	}
	list := make([]candidate, 0, len(weights))
	for text, weight := range weights {
		list = append(list, candidate{text, weight})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].weight != list[j].weight {
			return list[i].weight > list[j].weight
		}
		return list[i].text < list[j].text
	})

	limit := int(t.Config.SpreadFactor * float64(t.Config.VocabSize))
	if limit > len(list) {
		limit = len(list)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = list[i].text
	}
	return out
}

// chunkList shards items across n buckets by interleaving (item i goes to
// bucket i%n), the same strided assignment the EM passes use so that each
// worker sees a representative cross-section rather than a contiguous slab.
func chunkList(items []WordCount, n int) [][]WordCount {
	if n < 1 {
		n = 1
	}
	out := make([][]WordCount, n)
	for i, it := range items {
		out[i%n] = append(out[i%n], it)
	}
	return out
}

func addInto(dst, src []float64) {
	for i, v := range src {
		dst[i] += v
	}
}

// stepE runs one sharded expectation-maximization pass: every worker
// accumulates expected vocab/rule counts over its shard of words, the
// shards are summed, and the model's logits are updated from the total.
func (t *Trainer) stepE(ctx context.Context, mdl *model.Model, words []WordCount) error {
	workers := t.Config.Workers
	if workers < 1 {
		workers = 1
	}
	shards := chunkList(words, workers)

	vocabTotals := make([][]float64, workers)
	ruleTotals := make([][]float64, workers)

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			vocabAccum := make([]float64, len(mdl.Morpher.Bases))
			ruleAccum := make([]float64, len(mdl.Morpher.Rules))
			for _, w := range shards[i] {
				mdl.AddMarginal(w.Word, w.LangBit, w.Count, t.Config.ForceSlow, vocabAccum, ruleAccum)
			}
			vocabTotals[i] = vocabAccum
			ruleTotals[i] = ruleAccum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "stepE")
	}

	vocabSum := make([]float64, len(mdl.Morpher.Bases))
	ruleSum := make([]float64, len(mdl.Morpher.Rules))
	for i := 0; i < workers; i++ {
		addInto(vocabSum, vocabTotals[i])
		addInto(ruleSum, ruleTotals[i])
	}
	mdl.UpdateLogits(vocabSum, ruleSum)
	return nil
}

// computeLosses runs a sharded removal-loss pass, returning the total
// expected -log-likelihood increase attributable to each vocabulary entry.
func (t *Trainer) computeLosses(ctx context.Context, mdl *model.Model, words []WordCount) ([]float64, error) {
	workers := t.Config.Workers
	if workers < 1 {
		workers = 1
	}
	shards := chunkList(words, workers)
	totals := make([][]float64, workers)

	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			losses := make([]float64, len(mdl.Morpher.Bases))
			for _, w := range shards[i] {
				mdl.AddVocabLoss(w.Word, w.LangBit, w.Count, t.Config.ForceSlow, losses)
			}
			totals[i] = losses
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "computeLosses")
	}
	sum := make([]float64, len(mdl.Morpher.Bases))
	for i := 0; i < workers; i++ {
		addInto(sum, totals[i])
	}
	return sum, nil
}

// prune drops the lowest-loss rate fraction of non-protected vocabulary
// entries, returning the surviving vocabulary.
func (t *Trainer) prune(ctx context.Context, mdl *model.Model, words []WordCount, rate float64) ([]string, error) {
	losses, err := t.computeLosses(ctx, mdl, words)
	if err != nil {
		return nil, err
	}

	type entry struct {
		idx  int
		loss float64
	}
	var candidates []entry
	for i, b := range mdl.Morpher.Bases {
		if t.Protected[b] {
			continue
		}
		candidates = append(candidates, entry{i, losses[i]})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].loss < candidates[j].loss })

	dropCount := int(rate * float64(len(candidates)))
	if dropCount > len(candidates) {
		dropCount = len(candidates)
	}
	dropped := make(map[int]bool, dropCount)
	for i := 0; i < dropCount; i++ {
		dropped[candidates[i].idx] = true
	}

	kept := make([]string, 0, len(mdl.Morpher.Bases)-dropCount)
	for i, b := range mdl.Morpher.Bases {
		if dropped[i] {
			continue
		}
		kept = append(kept, b)
	}
	return kept, nil
}

// protectedOrder returns the position of tok in the reserved-token +
// seed-token list, used to keep protected vocabulary entries in their
// configured order at the head of the finalized vocabulary.
func (t *Trainer) protectedOrder(tok string) int {
	for i, r := range t.Config.ReservedTokens {
		if r == tok {
			return i
		}
	}
	for i, s := range t.Config.SeedTokens {
		if s == tok {
			return len(t.Config.ReservedTokens) + i
		}
	}
	return len(t.Config.ReservedTokens) + len(t.Config.SeedTokens)
}

// finalizeVocab orders the final iteration's vocabulary: protected tokens
// first (in their configured order), then everything else sorted by
// descending logit (most probable token first).
func (t *Trainer) finalizeVocab(mdl *model.Model) []string {
	var protected, rest []int
	for i, b := range mdl.Morpher.Bases {
		if t.Protected[b] {
			protected = append(protected, i)
		} else {
			rest = append(rest, i)
		}
	}
	sort.Slice(protected, func(i, j int) bool {
		return t.protectedOrder(mdl.Morpher.Bases[protected[i]]) < t.protectedOrder(mdl.Morpher.Bases[protected[j]])
	})
	sort.Slice(rest, func(i, j int) bool {
		return mdl.VocabLogits[rest[i]] > mdl.VocabLogits[rest[j]]
	})

	out := make([]string, 0, len(mdl.Morpher.Bases))
	for _, idx := range protected {
		out = append(out, mdl.Morpher.Bases[idx])
	}
	for _, idx := range rest {
		out = append(out, mdl.Morpher.Bases[idx])
	}
	return out
}

// tieLanguages records, for the final model, which languages actually used
// each vocabulary entry on its best (Viterbi-decoded) segmentation — not
// every candidate decomposition covering the word, which would tie far more
// of the vocabulary to a language than that language actually settled on —
// run only when Config.TieByLangs is set, since it costs an extra full pass
// over words.
func (t *Trainer) tieLanguages(mdl *model.Model, words []WordCount) {
	for _, w := range words {
		if w.LangBit == 0 {
			continue
		}
		baseIDs, _, ok := mdl.Encode(w.Word, w.LangBit, t.Config.ForceSlow)
		if !ok {
			continue
		}
		for _, baseID := range baseIDs {
			mdl.VocabLangs[baseID] |= w.LangBit
		}
	}
}

// Train runs the full EM loop: candidate generation, Iterations rounds of
// (E-step x2, or x3 on the final round) followed by pruning, and a final
// vocabulary ordering pass. rules must include the two mandatory default
// rules (see morph.DefaultRules).
func (t *Trainer) Train(ctx context.Context, rules []morph.Rule, words []WordCount) (*model.Model, error) {
	candidates := t.GenerateCandidates(words)
	vocab := make([]string, 0, len(t.Config.ReservedTokens)+len(candidates))
	vocab = append(vocab, t.Config.ReservedTokens...)
	vocab = append(vocab, candidates...)

	if len(vocab) <= t.Config.VocabSize {
		klog.Warningf("trainer: candidate vocabulary (%d) already at or below target size (%d); pruning will be a no-op", len(vocab), t.Config.VocabSize)
	}
	pruneRate := 1 - math.Pow(float64(len(vocab))/float64(t.Config.VocabSize), -1/float64(t.Config.Iterations-1))

	unkID := 0
	for i, tok := range t.Config.ReservedTokens {
		if tok == t.Config.UnkToken {
			unkID = i
		}
	}

	var mdl *model.Model
	for iter := 0; iter < t.Config.Iterations; iter++ {
		m := morpher.New(vocab, rules)
		mdl = model.New(m, t.Config.Alpha, t.Config.Beta, unkID, t.Config.MinBaseLen)

		passes := 2
		final := iter == t.Config.Iterations-1
		if final {
			passes = 3
		}
		for p := 0; p < passes; p++ {
			if err := t.stepE(ctx, mdl, words); err != nil {
				return nil, err
			}
		}

		if t.Verbose {
			klog.Infof("trainer: iteration %d/%d, vocab=%d", iter+1, t.Config.Iterations, len(vocab))
		}

		if final {
			vocab = t.finalizeVocab(mdl)
			m = morpher.New(vocab, rules)
			mdl = model.New(m, t.Config.Alpha, t.Config.Beta, unkID, t.Config.MinBaseLen)
			if err := t.stepE(ctx, mdl, words); err != nil {
				return nil, err
			}
			break
		}

		pruned, err := t.prune(ctx, mdl, words, pruneRate)
		if err != nil {
			return nil, err
		}
		vocab = pruned
	}

	mdl.Langs = t.langList()
	if t.Config.TieByLangs {
		t.tieLanguages(mdl, words)
	}
	return mdl, nil
}
