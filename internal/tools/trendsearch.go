package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jaehwang/sulbi/internal/cache"
	"github.com/jaehwang/sulbi/internal/reranking"
	"github.com/jaehwang/sulbi/internal/retrieval"
)

// trendKeywords are the concept words worth carrying from a founder's
// question into a trend document query.
var trendKeywords = []string{
	"와인바", "와인", "맥주", "칵테일", "소주", "칵테일바",
	"고급", "프리미엄", "가성비", "조용한", "시끄러운", "힙한",
	"감성", "데이트", "혼술", "직장인", "회사원", "인스타",
	"사진", "안주", "루프탑", "루프탑바", "바", "펍",
	"겨울", "야장", "유튜브",
}

// BuildTrendQuery distills a founder question into a short search query:
// the area keyword plus up to three matched concept keywords, with "술집"
// standing in when nothing matches.
func BuildTrendQuery(question, areaKeyword string) string {
	q := strings.ToLower(question)

	var matched []string
	for _, kw := range trendKeywords {
		if strings.Contains(q, kw) {
			matched = append(matched, kw)
			if len(matched) == 3 {
				break
			}
		}
	}

	keywordPart := "술집"
	if len(matched) > 0 {
		keywordPart = strings.Join(matched, " ")
	}

	parts := make([]string, 0, 2)
	if areaKeyword != "" {
		parts = append(parts, areaKeyword)
	}
	parts = append(parts, keywordPart)

	query := strings.TrimSpace(strings.Join(parts, " "))
	if query == "" {
		return "서울 술집"
	}
	return query
}

const trendSnippetLimit = 400

// TrendHit is one reranked trend document, trimmed for the model. Source and
// URL give the model what it needs to cite the document.
type TrendHit struct {
	Source    string  `json:"source"`
	URL       string  `json:"url,omitempty"`
	Area      string  `json:"area,omitempty"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

// TrendSearch retrieves trend documents for a query and reranks them with
// the area hint. Results are cached per normalized query+area.
type TrendSearch struct {
	retriever  *retrieval.Retriever
	cache      *cache.TTLCache
	weights    reranking.Weights
	recallSize int
	topK       int
	now        func() time.Time
}

func NewTrendSearch(retriever *retrieval.Retriever, c *cache.TTLCache) *TrendSearch {
	return &TrendSearch{
		retriever:  retriever,
		cache:      c,
		weights:    reranking.Defaults(),
		recallSize: 20,
		topK:       5,
		now:        time.Now,
	}
}

// Configure overrides the ranking weights and recall sizes. Zero sizes keep
// the defaults.
func (t *TrendSearch) Configure(w reranking.Weights, recallSize, topK int) {
	t.weights = w
	if recallSize > 0 {
		t.recallSize = recallSize
	}
	if topK > 0 {
		t.topK = topK
	}
}

type trendSearchArgs struct {
	Query string `json:"query"`
	Area  string `json:"area"`
}

func (t *TrendSearch) Execute(ctx context.Context, args json.RawMessage, hints Hints) (any, error) {
	var a trendSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		slog.Debug("trend_search: malformed arguments, using job hints", "error", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		a.Query = BuildTrendQuery(hints.Question, hints.AreaKeyword)
	}
	if strings.TrimSpace(a.Area) == "" {
		a.Area = hints.AreaKeyword
	}

	query := strings.Join(strings.Fields(a.Query), " ")
	key := cache.HashKey("trend_search", strings.ToLower(query), a.Area)
	if v, ok := t.cache.Get(key); ok {
		return v, nil
	}

	docs, err := t.retriever.Search(ctx, query, t.recallSize)
	if err != nil {
		return nil, err
	}

	ranked := reranking.Rerank(docs, query, a.Area, t.now(), t.weights)
	if len(ranked) > t.topK {
		ranked = ranked[:t.topK]
	}

	hits := make([]TrendHit, 0, len(ranked))
	for _, r := range ranked {
		snippet := r.Doc.Text
		if runes := []rune(snippet); len(runes) > trendSnippetLimit {
			snippet = string(runes[:trendSnippetLimit])
		}
		hits = append(hits, TrendHit{
			Source:    r.Doc.Source,
			URL:       r.Doc.URL,
			Area:      r.Doc.Area,
			Snippet:   snippet,
			Score:     r.Score,
			CreatedAt: r.Doc.CreatedAt.Format(time.RFC3339),
		})
	}

	t.cache.Set(key, hits)
	return hits, nil
}
