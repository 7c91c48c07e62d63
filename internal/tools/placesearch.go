package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jaehwang/sulbi/internal/cache"
	"github.com/jaehwang/sulbi/internal/localdata"
)

// PlaceSearch looks up real venues near the district through the local place
// API, so the model can name actual competitors instead of inventing them.
type PlaceSearch struct {
	places localdata.PlaceClient
	cache  *cache.TTLCache
	size   int
}

func NewPlaceSearch(places localdata.PlaceClient, c *cache.TTLCache) *PlaceSearch {
	return &PlaceSearch{places: places, cache: c, size: 5}
}

type placeSearchArgs struct {
	Area    string `json:"area"`
	Keyword string `json:"keyword"`
}

func (p *PlaceSearch) Execute(ctx context.Context, args json.RawMessage, hints Hints) (any, error) {
	var a placeSearchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		slog.Debug("place_search: malformed arguments, using job hints", "error", err)
	}
	if strings.TrimSpace(a.Area) == "" {
		a.Area = hints.DongName
	}
	if strings.TrimSpace(a.Keyword) == "" {
		a.Keyword = hints.Concept
	}
	if strings.TrimSpace(a.Keyword) == "" {
		a.Keyword = "술집"
	}

	area := localdata.NormalizeArea(a.Area)
	query := strings.TrimSpace(area + " " + a.Keyword)

	key := cache.HashKey("place_search", query)
	if v, ok := p.cache.Get(key); ok {
		return v, nil
	}

	places, err := p.places.SearchPlaces(ctx, query, p.size)
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, places)
	return places, nil
}
