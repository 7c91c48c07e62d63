package advice

import (
	"encoding/json"
	"fmt"

	"github.com/jaehwang/sulbi/internal/llm"
	"github.com/jaehwang/sulbi/internal/report"
)

// Options are the founder's stated conditions, passed through from the
// submission body.
type Options struct {
	BudgetLevel string `json:"budgetLevel"`
	Concept     string `json:"concept"`
	TargetAge   string `json:"targetAge"`
	OpenHours   string `json:"openHours,omitempty"`
}

const systemPrompt = `너는 서울 각 행정동의 술집 상권을 분석해서 1인 창업자에게 조언을 해주는 컨설턴트야.

- 출력은 반드시 한국어로 작성한다. 일본어 가나 문자를 섞지 않는다.
- JSON 상권 데이터에 없는 사실은 절대 지어내지 말 것.
- 숫자(평점, 리뷰 수, 매출 추세)를 적극적으로 활용해 트렌드를 설명해라.
- 필요하면 제공된 도구(trend_search, place_search, rent_lookup)를 호출해서 근거를 모아라.
- 데이터가 부족한 항목은 부족하다고 분명히 밝히고 추측하지 않는다.

최종 답변은 반드시 아래 JSON 스키마 하나만 출력한다. 코드 펜스 없이 순수 JSON만.
{
  "version": "v1",
  "title": "리포트 제목",
  "markdown": "## 섹션 구조를 갖춘 한국어 마크다운 본문",
  "citations": [{"source": "naver_blog|kakao|internal_db", "url": "선택", "quote": "선택"}],
  "warnings": ["데이터 한계 등 주의사항"]
}
citations는 최소 1개 이상이어야 한다. 근거가 전부 내부 데이터라면 source를 "internal_db"로 적어라.`

const routeBiasRAG = `이 질문은 트렌드/분위기 중심이다. trend_search 결과를 우선 근거로 삼아라.`

const routeBiasDB = `이 질문은 데이터/지표 중심이다. 상권 데이터 JSON과 rent_lookup 결과를 우선 근거로 삼아라.`

// BuildMessages composes the initial transcript for the agent loop from the
// slimmed district report, the founder's options, the question, and the
// classified route.
func BuildMessages(slim *report.SlimReport, opts Options, question string, route Route) ([]llm.Message, error) {
	reportJSON, err := json.MarshalIndent(slim, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal slim report: %w", err)
	}
	optionsJSON, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	bias := routeBiasDB
	if route == RouteRAG {
		bias = routeBiasRAG
	}

	user := fmt.Sprintf(`[상권 데이터(JSON)]
%s

[창업자 조건(JSON)]
%s

[창업자의 질문]
%s

%s

위 데이터를 기반으로 %q 행정동에서 술집을 창업하려는 1인 창업자를 위한 조언 리포트를 작성해줘.
상권 개요, 경쟁 구도, 가격/운영 전략, 리스크와 기회, 한 줄 요약 순서로 구성해라.`,
		reportJSON, optionsJSON, question, bias, slim.Dong.Name)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	}, nil
}
