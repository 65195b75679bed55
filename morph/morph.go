// Package morph implements the morphological rule model: reversible string
// operations (Op) composed with a literal suffix into a Rule, plus the
// dedup/sort/update helpers the trainer and morpher need.
package morph

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/morphtok/umtoken/alphabet"
)

// Op is a reversible string transform applied to a base before a suffix is
// appended. Implementations must be side-effect free and safe for concurrent
// use by multiple goroutines decoding different words.
type Op interface {
	// Apply transforms base into the form the rule's suffix attaches to.
	Apply(base string) string
	// CanApply reports whether Apply is meaningful for base.
	CanApply(base string) bool
	// Revert undoes Apply: given the transformed stem (suffix already
	// stripped), recover the original base.
	Revert(stem string) string
	// CanRevert reports whether Revert is meaningful for stem.
	CanRevert(stem string) bool
	// IsUnconditional reports whether the op matches any input string.
	IsUnconditional() bool
	// Key returns a stable identity string used for dedup grouping and
	// equality checks; two ops with equal keys are considered the same op.
	Key() string
	// FormatApply renders base the way Apply transforms it, but for display:
	// only the span Apply actually changed is bracketed as "[from->to]", the
	// rest of base passes through untouched. If Apply wouldn't change base,
	// returns base as-is.
	FormatApply(base string) string
}

// unconditionalChars is the set of regex metacharacters that, used alone,
// match any string ("", "$", ".*", etc).
const unconditionalChars = "^$.+*?"

// RegexOp applies a regex substitution going forward and another coming
// back. Substitution templates use Go's regexp replacement syntax ($1,
// ${name}), not Perl/Python-style backreferences — see TranslateBackrefs.
type RegexOp struct {
	ApplyPattern  *regexp.Regexp
	ApplySub      string
	RevertPattern *regexp.Regexp
	RevertSub     string
}

// NewRegexOp compiles an apply/revert regex pair. Patterns are anchored as
// written; callers wanting whole-string anchoring must include ^ and $.
func NewRegexOp(applyPattern, applySub, revertPattern, revertSub string) (*RegexOp, error) {
	ap, err := regexp.Compile(applyPattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling apply pattern %q", applyPattern)
	}
	rp, err := regexp.Compile(revertPattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling revert pattern %q", revertPattern)
	}
	return &RegexOp{
		ApplyPattern:  ap,
		ApplySub:      applySub,
		RevertPattern: rp,
		RevertSub:     revertSub,
	}, nil
}

func (r *RegexOp) Apply(base string) string {
	return r.ApplyPattern.ReplaceAllString(base, r.ApplySub)
}

func (r *RegexOp) CanApply(base string) bool {
	return r.ApplyPattern.MatchString(base)
}

func (r *RegexOp) Revert(stem string) string {
	return r.RevertPattern.ReplaceAllString(stem, r.RevertSub)
}

func (r *RegexOp) CanRevert(stem string) bool {
	return r.RevertPattern.MatchString(stem)
}

func (r *RegexOp) IsUnconditional() bool {
	return isUnconditionalPattern(r.ApplyPattern.String())
}

func (r *RegexOp) Key() string {
	return r.ApplyPattern.String() + "\x00" + r.ApplySub + "\x00" + r.RevertPattern.String() + "\x00" + r.RevertSub
}

// FormatApply brackets only the substring ApplyPattern matched, e.g. base
// "run" under pattern "n$" / sub "nn" renders as "ru[n->nn]" rather than
// bracketing the whole word.
func (r *RegexOp) FormatApply(base string) string {
	loc := r.ApplyPattern.FindStringIndex(base)
	if loc == nil {
		return base
	}
	match := base[loc[0]:loc[1]]
	replacement := r.ApplyPattern.ReplaceAllString(match, r.ApplySub)
	if replacement == match {
		return base
	}
	return base[:loc[0]] + "[" + match + "->" + replacement + "]" + base[loc[1]:]
}

func isUnconditionalPattern(pattern string) bool {
	for _, c := range pattern {
		if !strings.ContainsRune(unconditionalChars, c) {
			return false
		}
	}
	return true
}

// TranslateBackrefs rewrites Perl/Python-style backreferences (\1, \2, ...)
// into Go regexp replacement syntax ($1, $2, ...), for data ported from
// tables written against Python's re.sub.
var backrefPattern = regexp.MustCompile(`\\(\d+)`)

func TranslateBackrefs(template string) string {
	return backrefPattern.ReplaceAllString(template, "$$$1")
}

// Rule is a suffix rule: optionally run an Op on the base, then append
// Suffix. Constraint, if non-nil, is an additional precondition on the base
// evaluated before the rule may be applied (used to merge otherwise-identical
// rules gathered under different training constraints). MinBaseLength, if
// non-nil, overrides the model's global minimum base length for this rule
// alone; it is never enforced against rule 0 (identity) or rule 1
// (end-of-word), the two defaults that must always be reachable.
type Rule struct {
	Suffix         string
	Op             Op
	Penalty        float64
	Langs          uint64
	Constraint     *regexp.Regexp
	MinBaseLength  *int
}

// EffectiveMinBaseLength returns r.MinBaseLength if set, otherwise global.
func (r Rule) EffectiveMinBaseLength(global int) int {
	if r.MinBaseLength != nil {
		return *r.MinBaseLength
	}
	return global
}

// HasAnyLang reports whether the rule applies to any language in mask.
// A rule or mask of 0 is treated as unconstrained (applies to everything).
func (r Rule) HasAnyLang(mask uint64) bool {
	if r.Langs == 0 || mask == 0 {
		return true
	}
	return r.Langs&mask != 0
}

// Apply runs Op (if any) then appends Suffix.
func (r Rule) Apply(base string) string {
	if r.Op != nil {
		base = r.Op.Apply(base)
	}
	return base + r.Suffix
}

// CanApply reports whether Apply is valid for base. A rule with no Op always
// can apply; otherwise it defers to the Op.
func (r Rule) CanApply(base string) bool {
	if r.Op == nil {
		return true
	}
	return r.Op.CanApply(base)
}

// CanRevert reports whether stem ends in Suffix (with something left over)
// and, if Op is set, whether the remaining base can be reverted by Op.
func (r Rule) CanRevert(stem string) bool {
	if len(stem) <= len(r.Suffix) || !strings.HasSuffix(stem, r.Suffix) {
		return false
	}
	if r.Suffix == "" && strings.HasSuffix(stem, alphabet.EOW) {
		return false
	}
	base := stem[:len(stem)-len(r.Suffix)]
	if r.Op == nil {
		return true
	}
	return r.Op.CanRevert(base)
}

// Revert strips Suffix and runs Op.Revert (if any) on what remains.
func (r Rule) Revert(stem string) string {
	base := stem[:len(stem)-len(r.Suffix)]
	if r.Op != nil {
		base = r.Op.Revert(base)
	}
	return base
}

// IsUnconditional reports whether the rule has no constraint and its Op (if
// any) matches unconditionally.
func (r Rule) IsUnconditional() bool {
	if r.Constraint != nil {
		return false
	}
	return r.Op == nil || r.Op.IsUnconditional()
}

// IsSame reports whether two rules have the same suffix, op identity, and
// constraint pattern (used to detect duplicates before merging).
func (r Rule) IsSame(other Rule) bool {
	if r.Suffix != other.Suffix {
		return false
	}
	if opKey(r.Op) != opKey(other.Op) {
		return false
	}
	return constraintString(r.Constraint) == constraintString(other.Constraint)
}

func opKey(op Op) string {
	if op == nil {
		return ""
	}
	return op.Key()
}

func constraintString(c *regexp.Regexp) string {
	if c == nil {
		return ""
	}
	return c.String()
}

// DropConstraint returns a copy of r with its constraint removed.
func (r Rule) DropConstraint() Rule {
	r.Constraint = nil
	return r
}

// DropPenalty returns a copy of r with its penalty zeroed.
func (r Rule) DropPenalty() Rule {
	r.Penalty = 0
	return r
}

// AddPenalty returns a copy of r with p added to its penalty.
func (r Rule) AddPenalty(p float64) Rule {
	r.Penalty += p
	return r
}

type dedupKey struct {
	suffix string
	op     string
}

// MergeDuplicates collapses rules sharing the same (suffix, op) pair into
// one. Penalty becomes the minimum across the group, Langs is the union, and
// the constraint is dropped entirely if any member of the group was
// unconstrained; otherwise the surviving constraint is the OR of every
// member's constraint pattern.
func MergeDuplicates(rules []Rule) []Rule {
	groups := make(map[dedupKey][]Rule)
	var order []dedupKey
	for _, r := range rules {
		k := dedupKey{r.Suffix, opKey(r.Op)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := make([]Rule, 0, len(order))
	for _, k := range order {
		group := groups[k]
		merged := group[0]
		unconstrained := merged.Constraint == nil
		patterns := make([]string, 0, len(group))
		if merged.Constraint != nil {
			patterns = append(patterns, merged.Constraint.String())
		}
		for _, r := range group[1:] {
			if r.Penalty < merged.Penalty {
				merged.Penalty = r.Penalty
			}
			merged.Langs |= r.Langs
			if r.Constraint == nil {
				unconstrained = true
			} else {
				patterns = append(patterns, r.Constraint.String())
			}
		}
		if unconstrained {
			merged.Constraint = nil
		} else if len(patterns) > 0 {
			merged.Constraint = regexp.MustCompile(strings.Join(patterns, "|"))
		}
		out = append(out, merged)
	}
	return out
}

// Sort orders rules with the two mandatory defaults first — the empty rule
// (no suffix, no op, no constraint) then the end-of-word rule (suffix X, no
// op, no constraint) — followed by every remaining rule sorted by suffix.
func Sort(rules []Rule) []Rule {
	var rule0, rule1 *Rule
	rest := make([]Rule, 0, len(rules))
	for i := range rules {
		r := rules[i]
		if rule0 == nil && r.Suffix == "" && r.Op == nil && r.Constraint == nil {
			rc := r
			rule0 = &rc
			continue
		}
		if rule1 == nil && r.Suffix == alphabet.EOW && r.Op == nil && r.Constraint == nil {
			rc := r
			rule1 = &rc
			continue
		}
		rest = append(rest, r)
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Suffix < rest[j].Suffix })

	out := make([]Rule, 0, len(rules))
	if rule0 != nil {
		out = append(out, *rule0)
	}
	if rule1 != nil {
		out = append(out, *rule1)
	}
	out = append(out, rest...)
	return out
}

// DefaultRules returns the two mandatory rules every rule table must carry
// at positions 0 and 1: the identity rule and the end-of-word rule.
func DefaultRules() []Rule {
	return []Rule{
		{Suffix: ""},
		{Suffix: alphabet.EOW},
	}
}
