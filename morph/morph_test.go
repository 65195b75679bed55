package morph

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morphtok/umtoken/alphabet"
)

func TestRuleDefaultsApply(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 2)
	assert.Equal(t, "run", rules[0].Apply("run"))
	assert.Equal(t, "run"+alphabet.EOW, rules[1].Apply("run"))
	assert.True(t, rules[0].CanApply("run"))
	assert.True(t, rules[1].CanApply("run"))
}

func TestSuffixRuleApplyWithOp(t *testing.T) {
	op, err := NewRegexOp(`n$`, `nn`, `nn$`, `n`)
	require.NoError(t, err)
	rule := Rule{Suffix: "ing", Op: op}

	assert.True(t, rule.CanApply("run"))
	assert.Equal(t, "running", rule.Apply("run"))

	assert.True(t, rule.CanRevert("running"))
	assert.Equal(t, "run", rule.Revert("running"))
}

func TestRuleCanApplyNilOp(t *testing.T) {
	rule := Rule{Suffix: "s"}
	assert.True(t, rule.CanApply("cat"))
	assert.Equal(t, "cats", rule.Apply("cat"))
}

func TestRuleCanRevertRejectsShortOrMismatchedStem(t *testing.T) {
	rule := Rule{Suffix: "ing"}
	assert.False(t, rule.CanRevert("ing"))
	assert.False(t, rule.CanRevert("sing"[:2]))
	assert.True(t, rule.CanRevert("running"))
}

func TestRuleCanRevertExcludesEOWForEmptySuffix(t *testing.T) {
	rule := Rule{Suffix: ""}
	assert.False(t, rule.CanRevert("run"+alphabet.EOW))
	assert.True(t, rule.CanRevert("run"))
}

func TestMergeDuplicatesUnconstrainedWins(t *testing.T) {
	constrained := Rule{Suffix: "s", Penalty: 2, Langs: 1, Constraint: regexp.MustCompile(`^[aeiou]`)}
	unconstrained := Rule{Suffix: "s", Penalty: 1, Langs: 2}

	merged := MergeDuplicates([]Rule{constrained, unconstrained})
	require.Len(t, merged, 1)
	assert.Nil(t, merged[0].Constraint)
	assert.Equal(t, 1.0, merged[0].Penalty)
	assert.Equal(t, uint64(3), merged[0].Langs)
}

func TestMergeDuplicatesOrJoinsConstraints(t *testing.T) {
	a := Rule{Suffix: "s", Constraint: regexp.MustCompile(`^a`)}
	b := Rule{Suffix: "s", Constraint: regexp.MustCompile(`^b`)}

	merged := MergeDuplicates([]Rule{a, b})
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Constraint)
	assert.True(t, merged[0].Constraint.MatchString("apple"))
	assert.True(t, merged[0].Constraint.MatchString("banana"))
	assert.False(t, merged[0].Constraint.MatchString("cherry"))
}

func TestSortPlacesDefaultsFirst(t *testing.T) {
	rules := []Rule{
		{Suffix: "z"},
		{Suffix: alphabet.EOW},
		{Suffix: "a"},
		{Suffix: ""},
	}
	sorted := Sort(rules)
	require.Len(t, sorted, 4)
	assert.Equal(t, "", sorted[0].Suffix)
	assert.Equal(t, alphabet.EOW, sorted[1].Suffix)
	assert.Equal(t, "a", sorted[2].Suffix)
	assert.Equal(t, "z", sorted[3].Suffix)
}

func TestTranslateBackrefs(t *testing.T) {
	assert.Equal(t, "$1 and $2", TranslateBackrefs(`\1 and \2`))
}
