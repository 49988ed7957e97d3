package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rss_digest/internal/model"
	"rss_digest/internal/prompt"
)

var validDraft = model.Draft{
	Titles:           []string{"t1", "t2", "t3", "t4", "t5"},
	Subjects:         []string{"s1", "s2", "s3", "s4", "s5"},
	Body:             "# Weekly\n\nAll the news.",
	TopAnnouncements: []string{"a1", "a2", "a3", "a4", "a5"},
}

func draftJSON(t *testing.T, d model.Draft) string {
	t.Helper()
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal draft: %v", err)
	}
	return string(b)
}

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/v1", APIKey: "test-key", Model: "test-model"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name string `json:"name"`
				} `json:"json_schema"`
			} `json:"response_format"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || req.ResponseFormat.Type != "json_schema" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    *model.Draft
		wantErr error
	}{
		{name: "valid draft", content: draftJSON(t, validDraft), want: &validDraft},
		{name: "fenced json", content: "```json\n" + draftJSON(t, validDraft) + "\n```", want: &validDraft},
		{
			name:    "four titles",
			content: draftJSON(t, model.Draft{Titles: []string{"1", "2", "3", "4"}, Subjects: validDraft.Subjects, Body: "b", TopAnnouncements: validDraft.TopAnnouncements}),
			wantErr: ErrInvalidDraft,
		},
		{
			name:    "missing body",
			content: draftJSON(t, model.Draft{Titles: validDraft.Titles, Subjects: validDraft.Subjects, TopAnnouncements: validDraft.TopAnnouncements}),
			wantErr: ErrInvalidDraft,
		},
		{name: "not json", content: "Sure! Here is your newsletter.", wantErr: ErrInvalidDraft},
		{name: "empty", content: "", wantErr: ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, completionHandler(t, tt.content))
			got, err := c.Generate(context.Background(), prompt.Prompt{System: "sys", User: "user"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("draft mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateUpstreamError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	})
	if _, err := c.Generate(context.Background(), prompt.Prompt{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func streamHandler(chunks []string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": c}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func split(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func TestStream(t *testing.T) {
	c := newClient(t, streamHandler(split(draftJSON(t, validDraft), 7)))

	var partials []model.Draft
	got, err := c.Stream(context.Background(), prompt.Prompt{}, func(d model.Draft) {
		partials = append(partials, d)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if diff := cmp.Diff(&validDraft, got); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}
	if len(partials) < 3 {
		t.Fatalf("expected several partial updates, got %d", len(partials))
	}
	for i := 1; i < len(partials); i++ {
		if len(partials[i].Titles) < len(partials[i-1].Titles) {
			t.Errorf("partial %d lost titles: %v -> %v", i, partials[i-1].Titles, partials[i].Titles)
		}
	}
	if diff := cmp.Diff(validDraft, partials[len(partials)-1]); diff != "" {
		t.Errorf("last partial mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamInvalidResult(t *testing.T) {
	c := newClient(t, streamHandler([]string{`{"titles":["only one"]`, `}`}))
	_, err := c.Stream(context.Background(), prompt.Prompt{}, nil)
	if !errors.Is(err, ErrInvalidDraft) {
		t.Fatalf("expected ErrInvalidDraft, got %v", err)
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{name: "complete", in: `{"body":"x"}`, want: `{"body":"x"}`, wantOK: true},
		{name: "open string", in: `{"body":"Hel`, want: `{"body":"Hel"}`, wantOK: true},
		{name: "open array", in: `{"titles":["a","b`, want: `{"titles":["a","b"]}`, wantOK: true},
		{name: "dangling comma", in: `{"body":"x",`, want: `{"body":"x"}`, wantOK: true},
		{name: "partial key", in: `{"titles":["a"],"sub`, want: `{"titles":["a"]}`, wantOK: true},
		{name: "key without value", in: `{"titles":`, want: `{}`, wantOK: true},
		{name: "escaped quote", in: `{"body":"say \"hi\" and \`, want: `{"body":"say \"hi\" and "}`, wantOK: true},
		{name: "nothing yet", in: ``, wantOK: false},
		{name: "prose", in: `Sure`, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RepairJSON(tt.in)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Fatalf("ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RepairJSON() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePartial(t *testing.T) {
	got, ok := ParsePartial(`{"titles":["One","Tw`)
	if !ok {
		t.Fatal("expected partial to parse")
	}
	if diff := cmp.Diff([]string{"One", "Tw"}, got.Titles); diff != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", diff)
	}
}

func TestDraftSchemaRequiresEveryField(t *testing.T) {
	b, err := json.Marshal(DraftSchema())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	for _, f := range []string{"titles", "subjects", "body", "top_announcements", "additional_info"} {
		if !strings.Contains(string(b), `"`+f+`"`) {
			t.Errorf("schema missing %s: %s", f, b)
		}
	}
}
