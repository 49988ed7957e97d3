package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rss_digest/internal/filter"
	"rss_digest/internal/model"
	"rss_digest/internal/newsletter"
)

const (
	// DefaultDays is the digest period when none is given.
	DefaultDays = 7
	maxDays     = 365
)

// DigestRequest covers the days before now across all feeds.
func DigestRequest(now time.Time, days int) newsletter.Request {
	end := now.UTC().Truncate(time.Second)
	return newsletter.Request{
		Start: end.Add(-time.Duration(days) * 24 * time.Hour),
		End:   end,
	}
}

// ParseDigestArgs parses arguments for /digest and /articles.
// Format: [days] [ids...] [-s title|content|all] [+word | -word | +/regex/ | -/regex/ ...]
// A bare leading number is the period in days, "14d" always is; later
// numbers are feed ids.
func ParseDigestArgs(args string, now time.Time) (newsletter.Request, error) {
	parts := strings.Fields(args)
	days := DefaultDays
	scope := model.ScopeAll

	var ids []int64
	var rules []model.Rule
	for i := 0; i < len(parts); i++ {
		p := parts[i]
		switch {
		case p == "-s":
			if i+1 >= len(parts) {
				return newsletter.Request{}, fmt.Errorf("-s needs a scope: title, content, all")
			}
			i++
			s, err := parseScope(parts[i])
			if err != nil {
				return newsletter.Request{}, err
			}
			scope = s
		case strings.HasSuffix(p, "d") && isNumber(strings.TrimSuffix(p, "d")):
			n, err := parseDays(strings.TrimSuffix(p, "d"))
			if err != nil {
				return newsletter.Request{}, err
			}
			days = n
		case isNumber(p) && i == 0:
			n, err := parseDays(p)
			if err != nil {
				return newsletter.Request{}, err
			}
			days = n
		case isNumber(strings.TrimPrefix(p, "#")):
			id, _ := strconv.ParseInt(strings.TrimPrefix(p, "#"), 10, 64)
			ids = append(ids, id)
		case len(p) > 1 && (p[0] == '+' || p[0] == '-'):
			r, err := parseRule(p, scope)
			if err != nil {
				return newsletter.Request{}, err
			}
			rules = append(rules, r)
		default:
			return newsletter.Request{}, fmt.Errorf("unexpected argument %q, see /help", p)
		}
	}

	req := DigestRequest(now, days)
	req.FeedIDs = ids
	req.Rules = rules
	return req, nil
}

func parseRule(token string, scope model.RuleScope) (model.Rule, error) {
	include := token[0] == '+'
	value := token[1:]

	if len(value) > 2 && strings.HasPrefix(value, "/") && strings.HasSuffix(value, "/") {
		pattern := value[1 : len(value)-1]
		if err := filter.ValidateRegex(pattern); err != nil {
			return model.Rule{}, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		kind := model.RuleExcludeRe
		if include {
			kind = model.RuleIncludeRe
		}
		return model.Rule{Kind: kind, Scope: scope, Value: pattern}, nil
	}

	kind := model.RuleExclude
	if include {
		kind = model.RuleInclude
	}
	return model.Rule{Kind: kind, Scope: scope, Value: value}, nil
}

func parseScope(s string) (model.RuleScope, error) {
	switch s {
	case "title":
		return model.ScopeTitle, nil
	case "content":
		return model.ScopeContent, nil
	case "all":
		return model.ScopeAll, nil
	default:
		return "", fmt.Errorf("invalid scope %q, use: title, content, all", s)
	}
}

func parseDays(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxDays {
		return 0, fmt.Errorf("days must be between 1 and %d", maxDays)
	}
	return n, nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 63)
	return err == nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("feed ID is required")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.Fields(s)[0], "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid feed ID %q", s)
	}
	return id, nil
}
