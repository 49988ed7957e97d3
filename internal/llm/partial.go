package llm

import (
	"encoding/json"
	"strings"

	"rss_digest/internal/model"
)

type cutPoint struct {
	pos   int
	stack []byte
}

// RepairJSON closes a truncated JSON document so it parses. It first tries
// to close the open string and containers in place, then falls back to the
// most recent point where every value was complete. ok is false when no
// prefix can be repaired, e.g. before the first '{'.
func RepairJSON(s string) (string, bool) {
	var (
		stack   []byte
		cuts    []cutPoint
		inStr   bool
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, ch)
			cuts = append(cuts, cutPoint{pos: i + 1, stack: clone(stack)})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ',':
			cuts = append(cuts, cutPoint{pos: i, stack: clone(stack)})
		}
	}

	body := s
	if inStr {
		if escaped {
			body = body[:len(body)-1]
		}
		body += `"`
	}
	if c := closeWith(body, stack); json.Valid([]byte(c)) {
		return c, true
	}
	for i := len(cuts) - 1; i >= 0; i-- {
		if c := closeWith(s[:cuts[i].pos], cuts[i].stack); json.Valid([]byte(c)) {
			return c, true
		}
	}
	return "", false
}

func closeWith(s string, stack []byte) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(s, " \t\r\n"))
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// ParsePartial decodes whatever part of a streamed draft is complete enough.
func ParsePartial(raw string) (model.Draft, bool) {
	repaired, ok := RepairJSON(raw)
	if !ok {
		return model.Draft{}, false
	}
	return decodeDraft(repaired)
}

func decodeDraft(s string) (model.Draft, bool) {
	var d model.Draft
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return model.Draft{}, false
	}
	return d, true
}

// unmarshal accepts output wrapped in a markdown code fence, which some
// compatible endpoints emit despite the response format.
func unmarshal(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return json.Unmarshal([]byte(s), v)
}
