// Package filter implements the keyword rules that narrow a generation
// request's article set.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"rss_digest/internal/model"
)

// ErrInvalidRule is wrapped by every Compile error.
var ErrInvalidRule = errors.New("invalid rule")

type compiled struct {
	rule model.Rule
	re   *regexp.Regexp
	word string
}

// Matcher is a compiled rule set.
type Matcher struct {
	rules []compiled
}

// Compile prepares rules for matching. Regex rules are compiled
// case-insensitively; an invalid pattern is an error.
func Compile(rules []model.Rule) (*Matcher, error) {
	m := &Matcher{rules: make([]compiled, 0, len(rules))}
	for _, r := range rules {
		if strings.TrimSpace(r.Value) == "" {
			return nil, fmt.Errorf("%w: empty value", ErrInvalidRule)
		}
		c := compiled{rule: r}
		switch r.Kind {
		case model.RuleInclude, model.RuleExclude:
			c.word = strings.ToLower(r.Value)
		case model.RuleIncludeRe, model.RuleExcludeRe:
			re, err := regexp.Compile("(?i)" + r.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: regex %q: %w", ErrInvalidRule, r.Value, err)
			}
			c.re = re
		default:
			return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
		}
		m.rules = append(m.rules, c)
	}
	return m, nil
}

// Match checks whether an article passes the rule set.
// An empty set passes everything.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func (m *Matcher) Match(a model.Article) bool {
	if len(m.rules) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, c := range m.rules {
		hit := c.matches(a)
		if c.rule.IsInclude() {
			hasIncludes = true
			if hit {
				anyIncludeMatched = true
			}
			continue
		}
		if hit {
			return false
		}
	}

	return !hasIncludes || anyIncludeMatched
}

func (c compiled) matches(a model.Article) bool {
	text := textForScope(a, c.rule.Scope)
	if c.re != nil {
		return c.re.MatchString(text)
	}
	return strings.Contains(text, c.word)
}

func textForScope(a model.Article, scope model.RuleScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(a.Title)
	case model.ScopeContent:
		return strings.ToLower(a.Summary + " " + a.Content)
	default:
		return strings.ToLower(a.Title + " " + a.Summary + " " + a.Content)
	}
}

// Apply returns the articles passing rules, preserving order.
func Apply(articles []model.StoredArticle, rules []model.Rule) ([]model.StoredArticle, error) {
	if len(rules) == 0 {
		return articles, nil
	}
	m, err := Compile(rules)
	if err != nil {
		return nil, err
	}
	out := make([]model.StoredArticle, 0, len(articles))
	for _, a := range articles {
		if m.Match(a.Article) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
