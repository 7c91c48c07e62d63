package advice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaehwang/sulbi/internal/llm"
)

const fallbackTitle = "상권 분석 리포트"

// Finalizer turns raw agent text into an Output that satisfies the contract.
// At most two model-assisted attempts (pack, then repair) are made before
// the deterministic fallback; Finalize is therefore total and never errors.
type Finalizer struct {
	client llm.Client
	model  string
}

func NewFinalizer(client llm.Client, model string) *Finalizer {
	return &Finalizer{client: client, model: model}
}

// Finalize runs draft -> pack -> repair -> sanitize until one stage yields a
// valid Output.
func (f *Finalizer) Finalize(ctx context.Context, raw string) *Output {
	draft, err := ParseOutput(raw)
	reason := ReasonSchemaInvalid
	if err == nil {
		if reason = Validate(draft); reason == "" {
			return draft
		}
	}
	slog.Debug("advice output invalid, attempting pack", "reason", reason)

	if f != nil && f.client != nil {
		packed, packReason := f.pack(ctx, raw)
		if packReason == "" {
			return packed
		}
		reason = packReason

		repaired, repairReason := f.repair(ctx, raw, reason)
		if repairReason == "" {
			return repaired
		}
	}

	slog.Warn("advice output unrepairable, using sanitize fallback", "reason", reason)
	return SanitizeFallback(raw, draft)
}

const packPrompt = `아래 텍스트를 다음 JSON 스키마로 다시 포장해라. 내용을 새로 만들지 말고 재구성만 해라.
{"version":"v1","title":"...","markdown":"...","citations":[{"source":"...","url":"...","quote":"..."}],"warnings":["..."]}
citations는 최소 1개. 근거 출처를 모르면 source를 "internal_db"로 해라. JSON만 출력해라.

[텍스트]
%s`

// pack asks the model to repack free-form text into the strict schema.
// Returns the output and an empty reason on success.
func (f *Finalizer) pack(ctx context.Context, raw string) (*Output, string) {
	return f.modelAttempt(ctx, fmt.Sprintf(packPrompt, raw))
}

const repairPrompt = `아래 JSON 출력이 검증에 실패했다. 실패 사유: %s
사유를 해결한 동일한 스키마의 올바른 JSON만 출력해라. 일본어 가나 문자와 "~~" 마커는 제거해라.
citations는 최소 1개 이상이어야 한다.

[출력]
%s`

// repair asks the model to fix the previous output against the stated
// validation failure.
func (f *Finalizer) repair(ctx context.Context, raw, reason string) (*Output, string) {
	return f.modelAttempt(ctx, fmt.Sprintf(repairPrompt, reason, raw))
}

func (f *Finalizer) modelAttempt(ctx context.Context, prompt string) (*Output, string) {
	resp, err := f.client.Chat(ctx, llm.Request{
		Model:    f.model,
		JSONOnly: true,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		slog.Debug("repair attempt failed", "error", err)
		return nil, ReasonSchemaInvalid
	}
	out, err := ParseOutput(resp.Content)
	if err != nil {
		return nil, ReasonSchemaInvalid
	}
	if reason := Validate(out); reason != "" {
		return nil, reason
	}
	return out, ""
}

// SanitizeFallback produces a contract-satisfying Output without a model:
// banned characters and markers are stripped locally and a minimal
// internal_db citation is synthesized. draft may be nil when the raw text
// never parsed.
func SanitizeFallback(raw string, draft *Output) *Output {
	out := &Output{Version: Version}
	if draft != nil {
		*out = *draft
		out.Version = Version
	} else {
		out.Markdown = raw
	}

	out.Markdown = stripBanned(out.Markdown)
	if strings.TrimSpace(out.Markdown) == "" {
		out.Markdown = "분석 결과를 정리하지 못했습니다. 다시 시도해 주세요."
	}
	out.Title = stripBanned(out.Title)
	if strings.TrimSpace(out.Title) == "" {
		out.Title = fallbackTitle
	}
	if len(out.Citations) == 0 {
		out.Citations = []Citation{{Source: "internal_db"}}
	}
	out.Warnings = append(out.Warnings, "출력이 자동 보정되었습니다.")
	return out
}

func stripBanned(s string) string {
	s = strings.ReplaceAll(s, strikethroughMarker, "")
	if !containsKana(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x3040 && r <= 0x30FF {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
