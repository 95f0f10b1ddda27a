// Package rules converts actors between engine generations with a
// table-driven rule set.
//
// A Rule is keyed by (class, source generation, target generation). The
// rule for an actor is chosen most-specific first: a rule for the exact
// class, then a rule for the nearest ancestor class in the Hierarchy, then a
// wildcard rule, then identity passthrough. Property rules are looked up
// along the same chain, nearest first.
package rules

import (
	"strings"

	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Wildcard is the class of a rule that matches every class.
const Wildcard = "*"

// ValueConverter re-expresses one property value in the target generation.
type ValueConverter func(c *Context, v scene.Value) (scene.Value, error)

// Transform rewrites a converted actor and may drop it (by returning no
// actors) or split it into several. It runs after property rules.
type Transform func(c *Context, a *scene.Actor) ([]*scene.Actor, error)

// PropertyRule describes what happens to one property. A rule with only a
// Name marks the property as known and passes it through unchanged.
type PropertyRule struct {
	Name    string
	Rename  string
	Drop    bool
	Reason  string
	Convert ValueConverter
}

// Rule converts actors of one class for one generation pair. Source or
// Target set to scene.GenUnknown matches any generation.
type Rule struct {
	Class       string
	Source      scene.Generation
	Target      scene.Generation
	RenameClass string
	Drop        bool
	DropReason  string
	Properties  []PropertyRule
	Transform   Transform
	// Origin names where the rule came from, for diagnostics.
	Origin string
}

// Property returns the property rule for name, case-insensitively.
func (r *Rule) Property(name string) (PropertyRule, bool) {
	for _, p := range r.Properties {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return PropertyRule{}, false
}

// pairScore ranks how specifically r matches pair; -1 means no match.
func (r *Rule) pairScore(pair scene.Pair) int {
	score := 0
	switch r.Source {
	case pair.Source:
		score++
	case scene.GenUnknown:
	default:
		return -1
	}
	switch r.Target {
	case pair.Target:
		score++
	case scene.GenUnknown:
	default:
		return -1
	}
	return score
}

// Match describes how a rule was selected.
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchAncestor
	MatchWildcard
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchAncestor:
		return "ancestor"
	case MatchWildcard:
		return "wildcard"
	default:
		return "identity"
	}
}

// Ruleset is an indexed collection of rules plus the class hierarchy used to
// resolve them. It is read-only once conversion starts and may be shared by
// concurrent runs.
type Ruleset struct {
	byClass   map[string][]*Rule
	hierarchy *Hierarchy
}

// NewRuleset creates an empty Ruleset over h. A nil h uses
// DefaultHierarchy.
func NewRuleset(h *Hierarchy) *Ruleset {
	if h == nil {
		h = DefaultHierarchy()
	}
	return &Ruleset{byClass: make(map[string][]*Rule), hierarchy: h}
}

// Hierarchy returns the class table the rule set resolves through.
func (rs *Ruleset) Hierarchy() *Hierarchy { return rs.hierarchy }

// Add registers r. Among rules with the same class and equally specific
// generation match, the one added last wins.
//
// Precondition: r.Class must be non-empty.
func (rs *Ruleset) Add(r *Rule) {
	key := strings.ToLower(NormalizeClass(r.Class))
	if r.Class == Wildcard {
		key = Wildcard
	}
	rs.byClass[key] = append(rs.byClass[key], r)
}

// Len returns the number of registered rules.
func (rs *Ruleset) Len() int {
	n := 0
	for _, list := range rs.byClass {
		n += len(list)
	}
	return n
}

func (rs *Ruleset) best(key string, pair scene.Pair) *Rule {
	var (
		found *Rule
		score = -1
	)
	for _, r := range rs.byClass[key] {
		if s := r.pairScore(pair); s >= score && s >= 0 {
			found, score = r, s
		}
	}
	return found
}

// Chain returns the rules that apply to class under pair, most specific
// first: exact, then ancestors nearest first, then wildcard. m reports how
// the first rule was found.
//
// Postcondition: m is MatchNone exactly when the chain is empty.
func (rs *Ruleset) Chain(class string, pair scene.Pair) (chain []*Rule, m Match) {
	name := NormalizeClass(class)
	if r := rs.best(strings.ToLower(name), pair); r != nil {
		chain = append(chain, r)
		m = MatchExact
	}
	for _, anc := range rs.hierarchy.Ancestors(name) {
		if r := rs.best(strings.ToLower(anc), pair); r != nil {
			chain = append(chain, r)
			if m == MatchNone {
				m = MatchAncestor
			}
		}
	}
	if r := rs.best(Wildcard, pair); r != nil {
		chain = append(chain, r)
		if m == MatchNone {
			m = MatchWildcard
		}
	}
	return chain, m
}

// propertyRule finds the nearest rule in chain that mentions name.
func propertyRule(chain []*Rule, name string) (PropertyRule, bool) {
	for _, r := range chain {
		if p, ok := r.Property(name); ok {
			return p, true
		}
	}
	return PropertyRule{}, false
}
