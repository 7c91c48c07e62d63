// Package advice defines the output contract for generated advisory reports
// and the validate/repair pipeline that guarantees every job ends with a
// well-formed result.
package advice

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the only output contract version in circulation.
const Version = "v1"

// Citation backs a claim in the report. Source is a short origin tag such as
// "naver_blog", "kakao", or "internal_db".
type Citation struct {
	Source string `json:"source"`
	URL    string `json:"url,omitempty"`
	Quote  string `json:"quote,omitempty"`
}

// Output is the structured advisory report returned to callers.
type Output struct {
	Version   string     `json:"version"`
	Title     string     `json:"title"`
	Markdown  string     `json:"markdown"`
	Citations []Citation `json:"citations"`
	Warnings  []string   `json:"warnings"`
}

// ParseOutput extracts an Output from raw model text. Models frequently wrap
// JSON in markdown code fences or prepend conversational filler, so the
// parser strips fences, then takes the substring between the first { and the
// last } before unmarshalling.
func ParseOutput(raw string) (*Output, error) {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var out Output
	if err := json.Unmarshal([]byte(s[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("unmarshal advice output: %w", err)
	}
	if out.Citations == nil {
		out.Citations = []Citation{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	return &out, nil
}
