package advice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaehwang/sulbi/internal/llm"
)

// Route picks which data the answer should lean on: hard district metrics
// (DB) or trend documents (RAG). The route biases the system prompt and the
// tool hints, it does not gate any tool.
type Route string

const (
	RouteDB  Route = "DB"
	RouteRAG Route = "RAG"
)

var dbKeywords = []string{"월세", "임대료", "폐업률", "유동 인구", "매출", "점포 수"}

var ragKeywords = []string{
	"트렌드", "분위기", "데이트", "감성", "핫플", "요즘",
	"힙한", "인스타", "사진", "안주", "컨셉", "감성술집",
}

// classifyByKeywords is the deterministic fallback. Trend words win over
// metric words; a question matching neither defaults to DB.
func classifyByKeywords(question string) Route {
	for _, k := range ragKeywords {
		if strings.Contains(question, k) {
			return RouteRAG
		}
	}
	for _, k := range dbKeywords {
		if strings.Contains(question, k) {
			return RouteDB
		}
	}
	return RouteDB
}

// Classifier routes founder questions, asking the model when one is
// available and falling back to keyword matching otherwise. Classification
// is advisory, so it never returns an error.
type Classifier struct {
	client llm.Client
	model  string
}

func NewClassifier(client llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

const classifyPrompt = `다음 사용자의 질문이 어떤 유형인지 판단해줘.

[유형 설명]
- "트렌드/분위기/컨셉" 중심 -> RAG
  (예: 힙한 분위기, 감성, 인스타, 사진, 요즘 스타일, 신조어/밈 표현 등)
- "데이터/지표/숫자/시장분석" 중심 -> DB
  (예: 유동인구, 폐업률, 매출, 점포 수, 임대료, 통계, 지표 등)

[질문]
%q

정답은 RAG 또는 DB 중 하나만 딱 한 단어로 출력해.`

func (c *Classifier) Classify(ctx context.Context, question string) Route {
	q := strings.TrimSpace(question)
	if q == "" {
		return RouteDB
	}
	if c == nil || c.client == nil {
		return classifyByKeywords(q)
	}

	resp, err := c.client.Chat(ctx, llm.Request{
		Model: c.model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(classifyPrompt, q)},
		},
	})
	if err != nil {
		slog.Debug("question classifier: model call failed, using keywords", "error", err)
		return classifyByKeywords(q)
	}

	answer := strings.TrimSpace(resp.Content)
	switch {
	case strings.Contains(answer, "RAG"):
		return RouteRAG
	case strings.Contains(answer, "DB"):
		return RouteDB
	default:
		return classifyByKeywords(q)
	}
}
