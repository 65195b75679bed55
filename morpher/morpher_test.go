package morpher

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphtok/umtoken/alphabet"
	"github.com/morphtok/umtoken/morph"
)

func newTestMorpher(t *testing.T) *Morpher {
	t.Helper()
	doubling, err := morph.NewRegexOp(`n$`, `nn`, `nn$`, `n`)
	require.NoError(t, err)

	rules := append(morph.DefaultRules(),
		morph.Rule{Suffix: "ing", Op: doubling},
		morph.Rule{Suffix: "ing"},
		morph.Rule{Suffix: "s"},
	)
	bases := []string{"run", "cat", "jump"}
	return New(bases, rules)
}

func TestDecomposeFastFindsIdentityAndEOW(t *testing.T) {
	m := newTestMorpher(t)
	cands := m.Decompose("cat"+alphabet.EOW, 0, 0, false)

	var sawEOW bool
	for _, c := range cands {
		if m.Rules[c.RuleID].Suffix == alphabet.EOW && m.Bases[c.BaseID] == "cat" {
			sawEOW = true
		}
	}
	assert.True(t, sawEOW)
}

func TestDecomposeFastFindsSuffixWithOp(t *testing.T) {
	m := newTestMorpher(t)
	cands := m.Decompose("running", 0, 0, false)

	var found bool
	for _, c := range cands {
		if m.Bases[c.BaseID] == "run" && m.Rules[c.RuleID].Suffix == "ing" && m.Rules[c.RuleID].Op != nil {
			found = true
			assert.Equal(t, 0, c.Start)
			assert.Equal(t, len("running"), c.End)
		}
	}
	assert.True(t, found, "expected a candidate decomposing running -> run + doubling-ing, got %+v", cands)
}

func TestDecomposeFastAndSlowAgree(t *testing.T) {
	m := newTestMorpher(t)
	words := []string{"running", "cats", "jump" + alphabet.EOW, "cat"}
	for _, w := range words {
		fast := m.Decompose(w, 0, 0, false)
		slow := m.Decompose(w, 0, 0, true)
		assert.ElementsMatch(t, slow, fast, "mismatch for word %q", w)
	}
}

func TestComposeRebuildsWord(t *testing.T) {
	m := newTestMorpher(t)
	doublingRuleID := -1
	for i, r := range m.Rules {
		if r.Suffix == "ing" && r.Op != nil {
			doublingRuleID = i
		}
	}
	require.NotEqual(t, -1, doublingRuleID)

	runBaseID := -1
	for i, b := range m.Bases {
		if b == "run" {
			runBaseID = i
		}
	}
	require.NotEqual(t, -1, runBaseID)

	got := m.Compose([]int{runBaseID}, []int{doublingRuleID})
	assert.Equal(t, "running", got)
}

func TestDecomposeRespectsLangMask(t *testing.T) {
	m := newTestMorpher(t)
	for i := range m.Rules {
		if m.Rules[i].Suffix == "s" {
			m.Rules[i].Langs = 2
		}
	}
	cands := m.Decompose("cats", 1, 0, false)
	for _, c := range cands {
		assert.NotEqual(t, "s", m.Rules[c.RuleID].Suffix)
	}
}

func TestDecomposeRespectsMinBaseLength(t *testing.T) {
	m := newTestMorpher(t)
	minLen := 4
	for i := range m.Rules {
		if m.Rules[i].Suffix == "s" {
			m.Rules[i].MinBaseLength = &minLen
		}
	}

	// "cat" (len 3) is below the rule's min base length of 4: no "s" candidate.
	cands := m.Decompose("cats", 0, 0, false)
	for _, c := range cands {
		assert.NotEqual(t, "s", m.Rules[c.RuleID].Suffix, "cat is shorter than min_base_length, should be excluded")
	}

	// "jump" (len 4) clears the bar.
	cands = m.Decompose("jumps", 0, 0, false)
	var found bool
	for _, c := range cands {
		if m.Rules[c.RuleID].Suffix == "s" && m.Bases[c.BaseID] == "jump" {
			found = true
		}
	}
	assert.True(t, found, "jump meets min_base_length and should still produce an s candidate")
}

func TestDecomposeRespectsConstraint(t *testing.T) {
	m := newTestMorpher(t)
	constraint := regexp.MustCompile(`^j`)
	for i := range m.Rules {
		if m.Rules[i].Suffix == "s" {
			m.Rules[i].Constraint = constraint
		}
	}

	// "cat" doesn't start with "j": constrained "s" rule must not fire.
	cands := m.Decompose("cats", 0, 0, false)
	for _, c := range cands {
		assert.NotEqual(t, "s", m.Rules[c.RuleID].Suffix, "cat fails the constraint regex, should be excluded")
	}

	// "jump" does start with "j": the constrained rule is eligible.
	cands = m.Decompose("jumps", 0, 0, false)
	var found bool
	for _, c := range cands {
		if m.Rules[c.RuleID].Suffix == "s" && m.Bases[c.BaseID] == "jump" {
			found = true
		}
	}
	assert.True(t, found, "jump satisfies the constraint and should still produce an s candidate")
}
