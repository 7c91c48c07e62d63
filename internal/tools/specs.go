package tools

import (
	"encoding/json"

	"github.com/jaehwang/sulbi/internal/llm"
)

var trendSearchDef = llm.ToolDef{
	Name:        "trend_search",
	Description: "최근 술집/상권 트렌드 문서를 검색한다. 분위기, 컨셉, 소비 트렌드 관련 질문에 사용.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "검색 질의 (한국어 키워드)"},
			"area": {"type": "string", "description": "상권 키워드 (예: 성수동, 홍대입구)"}
		},
		"required": ["query"]
	}`),
}

var placeSearchDef = llm.ToolDef{
	Name:        "place_search",
	Description: "해당 동네의 실제 가게를 키워드로 검색한다. 경쟁 업체나 유사 컨셉 가게 확인에 사용.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"area": {"type": "string", "description": "행정동 이름 (예: 성수동)"},
			"keyword": {"type": "string", "description": "업종/컨셉 키워드 (예: 와인바)"}
		},
		"required": ["area"]
	}`),
}

var rentLookupDef = llm.ToolDef{
	Name:        "rent_lookup",
	Description: "해당 행정동의 상업용 임대 실거래 요약(건수, 최소/최대/평균 보증금)을 조회한다.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"area": {"type": "string", "description": "행정동 이름 (예: 한강로동)"}
		},
		"required": ["area"]
	}`),
}

// DefaultSpecs wires the three advice tools with their per-job caps. Trend
// and place searches may be asked twice per job with refined queries; rent
// data is static within a run, so once is enough.
func DefaultSpecs(trend *TrendSearch, place *PlaceSearch, rent *RentLookup) []Spec {
	return []Spec{
		{Def: trendSearchDef, Exec: trend, Cap: 2},
		{Def: placeSearchDef, Exec: place, Cap: 2},
		{Def: rentLookupDef, Exec: rent, Cap: 1},
	}
}
