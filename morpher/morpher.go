// Package morpher turns an escaped word into the set of candidate (base,
// rule) decompositions that cover it, for the model to assemble into a
// lattice, and inverts that process (compose) to rebuild a word from a
// chosen path of ids.
package morpher

import (
	"github.com/morphtok/umtoken/morph"
	"github.com/morphtok/umtoken/trie"
)

// Candidate is one (base, rule) pair that could cover word[Start:End].
type Candidate struct {
	BaseID int
	RuleID int
	Start  int
	End    int
}

// Morpher holds the compiled base vocabulary and rule table, plus the trie
// indexes used to enumerate candidates quickly.
type Morpher struct {
	Bases []string
	Rules []morph.Rule

	baseTrie          *trie.Dict
	reverseSuffixTrie *trie.Lookup
	maxBaseLength     int
	identityRuleID    int
	eowRuleID         int
}

// New compiles a Morpher from a base vocabulary and rule table. rules[0] must
// be the identity rule (empty suffix, no op) and rules[1] must be the
// end-of-word rule (suffix X, no op) — the two mandatory defaults every rule
// table carries.
func New(bases []string, rules []morph.Rule) *Morpher {
	baseIDs := make([]int, len(bases))
	maxLen := 0
	for i, b := range bases {
		baseIDs[i] = i
		if len(b) > maxLen {
			maxLen = len(b)
		}
	}
	baseTrie := trie.NewDict(bases, baseIDs)

	reverseSuffixKeys := make([]string, len(rules))
	reverseSuffixVals := make([]int, len(rules))
	for i, r := range rules {
		reverseSuffixKeys[i] = reverseString(r.Suffix)
		reverseSuffixVals[i] = i
	}
	reverseSuffixTrie := trie.NewLookup(reverseSuffixKeys, reverseSuffixVals)

	return &Morpher{
		Bases:             bases,
		Rules:             rules,
		baseTrie:          baseTrie,
		reverseSuffixTrie: reverseSuffixTrie,
		maxBaseLength:     maxLen,
		identityRuleID:    0,
		eowRuleID:         1,
	}
}

func reverseString(s string) string {
	r := []byte(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// Decompose enumerates every candidate covering of word with (base, rule)
// pairs whose rule applies to langMask (0 means unconstrained), respecting
// each rule's constraint regex and minimum base length (globalMinBaseLen is
// the fallback for rules that don't override it; rules 0 and 1 are always
// exempt). It uses the trie-indexed fast path unless forceSlow requests the
// naive O(n^2) scan, which exists as a correctness reference for the fast
// path.
func (m *Morpher) Decompose(word string, langMask uint64, globalMinBaseLen int, forceSlow bool) []Candidate {
	if forceSlow {
		return m.decomposeSlow(word, langMask, globalMinBaseLen)
	}
	return m.decomposeFast(word, langMask, globalMinBaseLen)
}

// eligibleBase reports whether base passes ruleID's minimum-length and
// constraint-regex eligibility predicates. Rules 0 and 1 (identity,
// end-of-word) are exempt from the minimum-length check.
func (m *Morpher) eligibleBase(ruleID int, r morph.Rule, base string, globalMinBaseLen int) bool {
	if ruleID != m.identityRuleID && ruleID != m.eowRuleID {
		if len(base) < r.EffectiveMinBaseLength(globalMinBaseLen) {
			return false
		}
	}
	if r.Constraint != nil && !r.Constraint.MatchString(base) {
		return false
	}
	return true
}

// decomposeSlow tries every (start, end, rule) triple directly. O(n^2 *
// len(rules)); used only when Decompose is called with forceSlow, e.g. to
// validate decomposeFast. The tries are built by New either way.
func (m *Morpher) decomposeSlow(word string, langMask uint64, globalMinBaseLen int) []Candidate {
	n := len(word)
	var out []Candidate
	for start := 0; start < n; start++ {
		for end := start + 1; end <= n; end++ {
			substr := word[start:end]
			for ruleID, r := range m.Rules {
				if !r.HasAnyLang(langMask) {
					continue
				}
				if !r.CanRevert(substr) {
					continue
				}
				base := r.Revert(substr)
				if !m.eligibleBase(ruleID, r, base, globalMinBaseLen) {
					continue
				}
				if baseID, ok := m.baseTrie.Get(base); ok {
					out = append(out, Candidate{BaseID: baseID, RuleID: ruleID, Start: start, End: end})
				}
			}
		}
	}
	return out
}

// decomposeFast finds candidates by indexing from both ends: base prefixes
// of every suffix of word are found directly via the base trie (covering the
// identity rule without per-rule scanning); every other rule, including the
// end-of-word rule, is found from its suffix: rule suffixes
// are found by walking the reversed-suffix trie backward from every end
// position, which prunes the rule set down to only those whose literal
// suffix text actually occurs there before the (bounded) base lookup runs.
func (m *Morpher) decomposeFast(word string, langMask uint64, globalMinBaseLen int) []Candidate {
	n := len(word)
	var out []Candidate

	identityRule := m.Rules[m.identityRuleID]
	for start := 0; start < n; start++ {
		keys, baseIDs := m.baseTrie.PrefixesAndValues(word[start:])
		for i, k := range keys {
			end := start + len(k)
			if !identityRule.HasAnyLang(langMask) {
				continue
			}
			if !m.eligibleBase(m.identityRuleID, identityRule, k, globalMinBaseLen) {
				continue
			}
			out = append(out, Candidate{BaseID: baseIDs[i], RuleID: m.identityRuleID, Start: start, End: end})
		}
	}

	for end := 1; end <= n; end++ {
		reversedHead := reverseString(word[:end])
		revKeys, ruleLists := m.reverseSuffixTrie.PrefixesAndValues(reversedHead)
		for i, revKey := range revKeys {
			suffixLen := len(revKey)
			j := end - suffixLen
			for _, ruleID := range ruleLists[i] {
				if ruleID == m.identityRuleID {
					continue
				}
				r := m.Rules[ruleID]
				if !r.HasAnyLang(langMask) {
					continue
				}
				lo := j - m.maxBaseLength
				if r.Op != nil {
					// An op can lengthen the base, so its stem is not
					// bounded by the longest base.
					lo = 0
				}
				if lo < 0 {
					lo = 0
				}
				for start := lo; start < j; start++ {
					substr := word[start:end]
					if !r.CanRevert(substr) {
						continue
					}
					base := r.Revert(substr)
					if !m.eligibleBase(ruleID, r, base, globalMinBaseLen) {
						continue
					}
					if baseID, ok := m.baseTrie.Get(base); ok {
						out = append(out, Candidate{BaseID: baseID, RuleID: ruleID, Start: start, End: end})
					}
				}
			}
		}
	}
	return out
}

// Compose rebuilds the word a sequence of (base, rule) ids encodes, applying
// each rule's op (if any) and suffix in turn.
func (m *Morpher) Compose(baseIDs, ruleIDs []int) string {
	var out string
	for i := range baseIDs {
		base := m.Bases[baseIDs[i]]
		rule := m.Rules[ruleIDs[i]]
		out += rule.Apply(base)
	}
	return out
}
