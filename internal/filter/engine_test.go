package filter

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rss_digest/internal/model"
)

func art(title, summary string) model.Article {
	return model.Article{Title: title, Summary: summary}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		article model.Article
		rules   []model.Rule
		want    bool
	}{
		{
			name:    "no rules passes everything",
			article: art("anything", "whatever"),
			want:    true,
		},
		{
			name:    "include word matches case insensitively",
			article: art("KUBERNETES 1.32 released", "New features"),
			rules:   []model.Rule{{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "kubernetes"}},
			want:    true,
		},
		{
			name:    "include word no match",
			article: art("Python update", "New features"),
			rules:   []model.Rule{{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "kubernetes"}},
			want:    false,
		},
		{
			name:    "exclude vetoes an include hit",
			article: art("Kubernetes vacancy", "Apply now"),
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "kubernetes"},
				{Kind: model.RuleExclude, Scope: model.ScopeAll, Value: "vacancy"},
			},
			want: false,
		},
		{
			name:    "includes OR together",
			article: art("Docker update", ""),
			rules: []model.Rule{
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "kubernetes"},
				{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "docker"},
			},
			want: true,
		},
		{
			name:    "regex include",
			article: art("Helm chart v3.15", ""),
			rules:   []model.Rule{{Kind: model.RuleIncludeRe, Scope: model.ScopeAll, Value: `helm|docker`}},
			want:    true,
		},
		{
			name:    "regex exclude",
			article: art("Online course on K8s training", ""),
			rules:   []model.Rule{{Kind: model.RuleExcludeRe, Scope: model.ScopeAll, Value: `course.*training`}},
			want:    false,
		},
		{
			name:    "cyrillic include",
			article: art("Деплой в Kubernetes", "Руководство"),
			rules:   []model.Rule{{Kind: model.RuleInclude, Scope: model.ScopeAll, Value: "деплой"}},
			want:    true,
		},
		{
			name:    "title scope ignores summary",
			article: art("Release notes", "Kubernetes update"),
			rules:   []model.Rule{{Kind: model.RuleInclude, Scope: model.ScopeTitle, Value: "kubernetes"}},
			want:    false,
		},
		{
			name:    "content scope reads summary",
			article: art("Release notes", "Kubernetes sidecar support"),
			rules:   []model.Rule{{Kind: model.RuleInclude, Scope: model.ScopeContent, Value: "kubernetes"}},
			want:    true,
		},
		{
			name:    "content scope reads full content",
			article: model.Article{Title: "Release notes", Content: "<p>Kubernetes</p>"},
			rules:   []model.Rule{{Kind: model.RuleInclude, Scope: model.ScopeContent, Value: "kubernetes"}},
			want:    true,
		},
		{
			name:    "content exclude leaves title alone",
			article: art("Promo for Kubernetes", "Great article"),
			rules:   []model.Rule{{Kind: model.RuleExclude, Scope: model.ScopeContent, Value: "promo"}},
			want:    true,
		},
		{
			name:    "empty scope means all",
			article: art("Release notes", "Kubernetes"),
			rules:   []model.Rule{{Kind: model.RuleInclude, Value: "kubernetes"}},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.rules)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if diff := cmp.Diff(tt.want, m.Match(tt.article)); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule model.Rule
	}{
		{name: "invalid regex", rule: model.Rule{Kind: model.RuleIncludeRe, Value: "[invalid"}},
		{name: "unknown kind", rule: model.Rule{Kind: "maybe", Value: "x"}},
		{name: "empty value", rule: model.Rule{Kind: model.RuleInclude, Value: " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile([]model.Rule{tt.rule}); !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	in := []model.StoredArticle{
		{Article: model.Article{GUID: "1", Title: "Go 1.25 released"}},
		{Article: model.Article{GUID: "2", Title: "Rust news"}},
		{Article: model.Article{GUID: "3", Title: "go vet improvements"}},
	}
	got, err := Apply(in, []model.Rule{{Kind: model.RuleIncludeRe, Scope: model.ScopeTitle, Value: `\bgo\b`}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var guids []string
	for _, a := range got {
		guids = append(guids, a.GUID)
	}
	if diff := cmp.Diff([]string{"1", "3"}, guids); diff != "" {
		t.Errorf("GUIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{name: "valid simple", pattern: "hello"},
		{name: "valid alternation", pattern: "k8s|docker|helm"},
		{name: "valid group", pattern: `release.*v\d+`},
		{name: "invalid unclosed bracket", pattern: "[invalid", wantErr: true},
		{name: "invalid bad repetition", pattern: "*bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegex(tt.pattern)
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("ValidateRegex() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}
