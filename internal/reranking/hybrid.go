package reranking

import (
	"sort"
	"strings"
	"time"

	"github.com/jaehwang/sulbi/internal/retrieval"
)

// Weights holds the hybrid scoring knobs. Zero value is useless; build one
// from config or use Defaults.
type Weights struct {
	Vector    float64 // weight of the vector similarity component
	Lexical   float64 // weight of the lexical overlap component
	Freshness float64 // flat bonus for docs no older than FreshDays
	FreshDays int     // full-bonus age cutoff in days
	StaleDays int     // age at which the freshness bonus reaches zero
	AreaBonus float64 // flat bonus for docs matching the area hint
}

// Defaults returns the standard production weights.
func Defaults() Weights {
	return Weights{
		Vector:    0.7,
		Lexical:   0.3,
		Freshness: 0.01,
		FreshDays: 90,
		StaleDays: 365,
		AreaBonus: 0.03,
	}
}

// Ranked is a retrieved document with its final hybrid score.
type Ranked struct {
	retrieval.ScoredDoc
	Score float64
}

// Rerank scores each recalled document and returns them ordered by final
// score descending. The sort is stable: ties keep their recall order. The
// function has no hidden state, so scoring one doc never depends on the
// others and the output is independent of recall set ordering beyond
// tie-breaks.
//
// finalScore = wVec * 1/(1+distance)
//
//	+ wLex * lexicalOverlap(query, doc)
//	+ freshnessBonus(age)
//	+ areaBonus (when the doc's area tag contains the hint)
func Rerank(docs []retrieval.ScoredDoc, query, areaHint string, now time.Time, w Weights) []Ranked {
	tokens := queryTokens(query)

	ranked := make([]Ranked, len(docs))
	for i, d := range docs {
		score := w.Vector * (1 / (1 + float64(d.Distance)))
		score += w.Lexical * lexicalOverlap(tokens, d.Text)
		score += freshnessBonus(now.Sub(d.CreatedAt), w)
		if areaHint != "" && strings.Contains(d.Area, areaHint) {
			score += w.AreaBonus
		}
		ranked[i] = Ranked{ScoredDoc: d, Score: score}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// queryTokens splits the query on whitespace and keeps tokens of at least
// two characters (runes, so Korean words count by syllable blocks).
func queryTokens(query string) []string {
	var tokens []string
	for _, tok := range strings.Fields(query) {
		if len([]rune(tok)) >= 2 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// lexicalOverlap returns the fraction of query tokens found verbatim in the
// document text. No tokens means no signal, scored as zero.
func lexicalOverlap(tokens []string, text string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// freshnessBonus is the full Freshness weight up to FreshDays, decays
// linearly to zero at StaleDays, and is zero beyond.
func freshnessBonus(age time.Duration, w Weights) float64 {
	days := age.Hours() / 24
	switch {
	case days < 0:
		return w.Freshness // future-dated docs count as fresh
	case days <= float64(w.FreshDays):
		return w.Freshness
	case days <= float64(w.StaleDays):
		span := float64(w.StaleDays - w.FreshDays)
		return w.Freshness * (float64(w.StaleDays) - days) / span
	default:
		return 0
	}
}
