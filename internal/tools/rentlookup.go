package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jaehwang/sulbi/internal/cache"
	"github.com/jaehwang/sulbi/internal/localdata"
)

// RentLookup answers "what does commercial rent run here" from the loaded
// government contract data.
type RentLookup struct {
	rents localdata.RentClient
	cache *cache.TTLCache
}

func NewRentLookup(rents localdata.RentClient, c *cache.TTLCache) *RentLookup {
	return &RentLookup{rents: rents, cache: c}
}

type rentLookupArgs struct {
	Area string `json:"area"`
}

// rentMiss tells the model there is no contract data for the dong, which is
// common for smaller districts.
type rentMiss struct {
	Dong  string `json:"dong"`
	Found bool   `json:"found"`
}

func (r *RentLookup) Execute(ctx context.Context, args json.RawMessage, hints Hints) (any, error) {
	var a rentLookupArgs
	if err := json.Unmarshal(args, &a); err != nil {
		slog.Debug("rent_lookup: malformed arguments, using job hints", "error", err)
	}
	if strings.TrimSpace(a.Area) == "" {
		a.Area = hints.DongName
	}

	dong := strings.TrimSpace(a.Area)
	key := cache.HashKey("rent_lookup", dong)
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	summary, err := r.rents.SummaryByDong(ctx, dong)
	if err != nil {
		return nil, err
	}

	var data any
	if summary == nil {
		data = rentMiss{Dong: dong, Found: false}
	} else {
		data = summary
	}

	r.cache.Set(key, data)
	return data, nil
}
