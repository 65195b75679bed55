// Package model ties a Morpher to a set of vocabulary and rule logits,
// turning escaped words into lattices, decoding them with Viterbi, and
// accumulating the expected counts an EM training pass needs.
package model

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	"github.com/morphtok/umtoken/alphabet"
	"github.com/morphtok/umtoken/lattice"
	"github.com/morphtok/umtoken/morpher"
)

const (
	// MinLogit floors every logit so that math.Exp never underflows to
	// exactly zero and downstream log-space arithmetic stays finite.
	MinLogit = -20.0
	// Cutoff is the minimum raw expected count treated as "seen" when
	// renormalizing; anything below it is assigned MinLogit outright.
	Cutoff = 1e-3
	// Shift is the small per-byte positional tiebreaker subtracted from an
	// edge's logit so Viterbi prefers fewer, longer pieces over more,
	// shorter ones when two segmentations would otherwise score equal.
	Shift = 1e-5
)

// Model pairs a compiled Morpher with vocabulary and rule logits. Langs, if
// set, names the language each bit of VocabLangs/rule.Langs stands for —
// Langs[i] is the language whose membership mask is 1<<i — so a persisted
// model's language bitmasks stay interpretable after reload.
type Model struct {
	Morpher    *morpher.Morpher
	VocabLogits []float64
	RuleLogits  []float64
	VocabLangs  []uint64
	Langs       []string
	Alpha       float64
	Beta        float64
	UnkTokenID  int
	MinBaseLen  int
}

// New builds a Model with uniform logits over the morpher's vocabulary and
// rule table.
func New(m *morpher.Morpher, alpha, beta float64, unkTokenID, minBaseLen int) *Model {
	model := &Model{
		Morpher:    m,
		VocabLangs: make([]uint64, len(m.Bases)),
		Alpha:      alpha,
		Beta:       beta,
		UnkTokenID: unkTokenID,
		MinBaseLen: minBaseLen,
	}
	model.ResetLogits()
	return model
}

// ResetLogits sets every vocab and rule logit to a uniform -log(count).
func (m *Model) ResetLogits() {
	m.VocabLogits = uniformLogits(len(m.Morpher.Bases))
	m.RuleLogits = uniformLogits(len(m.Morpher.Rules))
}

func uniformLogits(count int) []float64 {
	out := make([]float64, count)
	if count == 0 {
		return out
	}
	v := -math.Log(float64(count))
	for i := range out {
		out[i] = v
	}
	return out
}

// digamma approximates the digamma function via the recurrence ψ(x) =
// ψ(x+1) - 1/x shifted until x > 5, then the standard asymptotic series.
func digamma(x float64) float64 {
	var result float64
	for x <= 5 {
		result -= 1 / x
		x++
	}
	inv := 1 / x
	inv2 := inv * inv
	result += math.Log(x) - 0.5*inv

	coeffs := []float64{
		-1.0 / 12, 1.0 / 120, -1.0 / 252, 1.0 / 240,
		-1.0 / 132, 691.0 / 32760, -1.0 / 12, 3617.0 / 8160,
	}
	term := inv2
	for _, c := range coeffs {
		result += c * term
		term *= inv2
	}
	return result
}

// normalizeCounts turns accumulated expected counts into log-probabilities
// via a Dirichlet posterior-mean update (digamma(count) - digamma(total)),
// floored at MinLogit; counts below Cutoff are dropped to MinLogit outright.
func normalizeCounts(counts []float64) []float64 {
	var sum float64
	for _, c := range counts {
		if c >= Cutoff {
			sum += c
		}
	}
	logSum := digamma(sum)

	out := make([]float64, len(counts))
	for i, c := range counts {
		if c < Cutoff {
			out[i] = MinLogit
			continue
		}
		v := digamma(c) - logSum
		if v < MinLogit {
			v = MinLogit
		}
		out[i] = v
	}
	return out
}

// UpdateLogits replaces the model's logits with the normalized form of
// accumulated expected counts (the EM M-step).
func (m *Model) UpdateLogits(vocabCounts, ruleCounts []float64) {
	m.VocabLogits = normalizeCounts(vocabCounts)
	m.RuleLogits = normalizeCounts(ruleCounts)
}

// vocabTyingOK reports whether baseID is eligible for langMask under
// vocabulary-language tying: once a base has been tied to a set of
// languages (VocabLangs[baseID] != 0), decoding under an unrelated language
// mask must exclude it, and for a language-specific rule the base must also
// carry at least one of that rule's languages. An untied base (mask 0, the
// common case absent -tie-by-langs) is never restricted.
func (m *Model) vocabTyingOK(baseID int, ruleID int, langMask uint64) bool {
	tied := m.VocabLangs[baseID]
	if tied == 0 || langMask == 0 {
		return true
	}
	if tied&langMask == 0 {
		return false
	}
	if ruleID == 0 || ruleID == 1 {
		return true
	}
	rule := m.Morpher.Rules[ruleID]
	return rule.Langs == 0 || tied&rule.Langs != 0
}

// BuildLattice decomposes word and turns every candidate into a lattice
// edge, scored by vocab logit * alpha + rule logit * beta - rule penalty,
// minus a small positional shift that breaks ties toward longer pieces.
// Candidates whose base is tied to a language set disjoint from langMask
// (see vocabTyingOK) are excluded.
func (m *Model) BuildLattice(word string, langMask uint64, forceSlow bool) *lattice.Lattice {
	candidates := m.Morpher.Decompose(word, langMask, m.MinBaseLen, forceSlow)
	lat := lattice.New(len(word) + 1)
	for _, c := range candidates {
		if !m.vocabTyingOK(c.BaseID, c.RuleID, langMask) {
			continue
		}
		rule := m.Morpher.Rules[c.RuleID]
		logit := m.VocabLogits[c.BaseID]*m.Alpha + m.RuleLogits[c.RuleID]*m.Beta - rule.Penalty - float64(c.Start)*Shift
		lat.AddEdge(c.Start, c.End, logit, c)
	}
	return lat
}

// Encode decodes word into the best-scoring (base, rule) id path. If no path
// spans the whole word (e.g. an out-of-vocabulary character sequence), it
// falls back to the unknown-token id with a false ok.
func (m *Model) Encode(word string, langMask uint64, forceSlow bool) (baseIDs, ruleIDs []int, ok bool) {
	lat := m.BuildLattice(word, langMask, forceSlow)
	path, score := lat.Viterbi()
	if path == nil || math.IsInf(score, -1) {
		return []int{m.UnkTokenID}, []int{0}, false
	}
	baseIDs = make([]int, len(path))
	ruleIDs = make([]int, len(path))
	for i, ei := range path {
		c := lat.Edges()[ei].Data.(morpher.Candidate)
		baseIDs[i] = c.BaseID
		ruleIDs[i] = c.RuleID
	}
	return baseIDs, ruleIDs, true
}

// Decode rebuilds the original word from a (base, rule) id path.
func (m *Model) Decode(baseIDs, ruleIDs []int) string {
	return m.Morpher.Compose(baseIDs, ruleIDs)
}

// IsEOWRule reports whether ruleID's suffix carries the end-of-word marker,
// the signal a tokenizer uses to find word boundaries in a flat id stream.
func (m *Model) IsEOWRule(ruleID int) bool {
	return strings.HasSuffix(m.Morpher.Rules[ruleID].Suffix, alphabet.EOW)
}

// AddMarginal decomposes word and adds weight * P(edge | word) to the
// matching entries of vocabAccum and ruleAccum, the EM E-step's sufficient
// statistics.
func (m *Model) AddMarginal(word string, langMask uint64, weight float64, forceSlow bool, vocabAccum, ruleAccum []float64) {
	lat := m.BuildLattice(word, langMask, forceSlow)
	marginals := lat.MarginalLogits()
	for i, e := range lat.Edges() {
		c := e.Data.(morpher.Candidate)
		p := math.Exp(marginals[i]) * weight
		vocabAccum[c.BaseID] += p
		ruleAccum[c.RuleID] += p
	}
}

// AddVocabLoss decomposes word and adds weight * removal-loss to the vocab
// entry of every edge using it — the expected increase in -log P(word) if
// that vocabulary entry were pruned.
func (m *Model) AddVocabLoss(word string, langMask uint64, weight float64, forceSlow bool, losses []float64) {
	lat := m.BuildLattice(word, langMask, forceSlow)
	removal := lat.RemovalLosses()
	for i, e := range lat.Edges() {
		c := e.Data.(morpher.Candidate)
		losses[c.BaseID] += weight * removal[i]
	}
}

// UpdateTiedLangs ORs together the language bitmask of every base id within
// each group, so that base forms shared verbatim across languages (tied
// during training) carry the union of their languages rather than just the
// language of whichever word happened to introduce them first.
func (m *Model) UpdateTiedLangs(groups [][]int) {
	for _, group := range groups {
		var union uint64
		for _, baseID := range group {
			union |= m.VocabLangs[baseID]
		}
		for _, baseID := range group {
			m.VocabLangs[baseID] = union
		}
	}
}

// RearrangeVocab returns a new Model whose vocabulary is reordered: newOrder
// lists, for each new position, the old base id that belongs there. Rules are
// left untouched since rule ids are independent of vocabulary order.
func (m *Model) RearrangeVocab(newOrder []int) *Model {
	bases := make([]string, len(newOrder))
	vocabLogits := make([]float64, len(newOrder))
	vocabLangs := make([]uint64, len(newOrder))
	for newID, oldID := range newOrder {
		bases[newID] = m.Morpher.Bases[oldID]
		vocabLogits[newID] = m.VocabLogits[oldID]
		vocabLangs[newID] = m.VocabLangs[oldID]
	}
	rebuilt := morpher.New(bases, m.Morpher.Rules)
	return &Model{
		Morpher:     rebuilt,
		VocabLogits: vocabLogits,
		RuleLogits:  m.RuleLogits,
		VocabLangs:  vocabLangs,
		Langs:       m.Langs,
		Alpha:       m.Alpha,
		Beta:        m.Beta,
		UnkTokenID:  m.UnkTokenID,
		MinBaseLen:  m.MinBaseLen,
	}
}

// Thumbprint fingerprints the model's shape-defining parameters (alpha,
// beta, min base length, vocabulary, and rule table) so two persisted models
// can be compared for compatibility without a full diff.
func (m *Model) Thumbprint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%g|%g|%d|", m.Alpha, m.Beta, m.MinBaseLen)
	for _, b := range m.Morpher.Bases {
		sb.WriteString(b)
		sb.WriteByte('\n')
	}
	for _, r := range m.Morpher.Rules {
		fmt.Fprintf(&sb, "%s\x00%g\n", r.Suffix, r.Penalty)
	}
	sum := md5.Sum([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(sum[:6])
}

// FormatToken renders a (base, rule) pair as a short human-readable token,
// e.g. "run+ing" for a plain suffix or "ru[n->nn]+ing" when the rule's op
// doubles the trailing "n" before appending "ing" — only the span the op
// actually changed is bracketed, not the whole base.
func (m *Model) FormatToken(baseID, ruleID int) string {
	base := m.Morpher.Bases[baseID]
	rule := m.Morpher.Rules[ruleID]
	if rule.Op == nil {
		if rule.Suffix == "" {
			return base
		}
		return base + "+" + rule.Suffix
	}
	return fmt.Sprintf("%s+%s", rule.Op.FormatApply(base), rule.Suffix)
}
