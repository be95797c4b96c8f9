package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Rule maps changed paths matching Pattern to Target.
type Rule struct {
	Pattern string
	Target  string
	matcher glob.Glob
}

// Rules is an ordered set of livereload rules. Longer patterns are tried
// first so that specific rules win over catch-alls.
type Rules struct {
	rules []Rule
}

// CompileRules compiles a livereload mapping. A nil or empty mapping yields
// rules that map every path to itself.
func CompileRules(mapping map[string]string) (*Rules, error) {
	rules := make([]Rule, 0, len(mapping))
	for pattern, target := range mapping {
		matcher, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("livereload rule %q: %w", pattern, err)
		}
		rules = append(rules, Rule{Pattern: pattern, Target: target, matcher: matcher})
	}
	sort.Slice(rules, func(i, j int) bool {
		if len(rules[i].Pattern) != len(rules[j].Pattern) {
			return len(rules[i].Pattern) > len(rules[j].Pattern)
		}
		return rules[i].Pattern < rules[j].Pattern
	})
	return &Rules{rules: rules}, nil
}

// Match returns the target of the first rule matching path.
func (r *Rules) Match(path string) (string, bool) {
	if r == nil {
		return "", false
	}
	path = strings.TrimPrefix(path, "/")
	for _, rule := range r.rules {
		if rule.matcher.Match(path) {
			return rule.Target, true
		}
	}
	return "", false
}

// Map returns the path to reload for a changed path.
func (r *Rules) Map(path string) string {
	if target, ok := r.Match(path); ok {
		return target
	}
	return path
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}
