package localdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Place is one keyword search result.
type Place struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

// PlaceClient searches places by keyword.
type PlaceClient interface {
	// SearchPlaces runs a keyword search like "연남동 술집" and returns at
	// most size results.
	SearchPlaces(ctx context.Context, query string, size int) ([]Place, error)
}

// KakaoClient implements PlaceClient against the Kakao local keyword search
// API.
type KakaoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewKakaoClient builds a client for the given REST API key. baseURL
// overrides the production endpoint; pass "" for the default.
func NewKakaoClient(apiKey, baseURL string) *KakaoClient {
	if baseURL == "" {
		baseURL = "https://dapi.kakao.com/v2/local"
	}
	return &KakaoClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// kakaoDocument mirrors one entry of the keyword search response.
type kakaoDocument struct {
	PlaceName    string `json:"place_name"`
	CategoryName string `json:"category_name"`
	PlaceURL     string `json:"place_url"`
}

type kakaoSearchResponse struct {
	Documents []kakaoDocument `json:"documents"`
}

func (c *KakaoClient) SearchPlaces(ctx context.Context, query string, size int) ([]Place, error) {
	if size <= 0 {
		size = 5
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("size", strconv.Itoa(size))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search/keyword.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating place search request: %w", err)
	}
	req.Header.Set("Authorization", "KakaoAK "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("place search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("place search: unexpected status %d", resp.StatusCode)
	}

	var result kakaoSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding place search response: %w", err)
	}

	places := make([]Place, len(result.Documents))
	for i, d := range result.Documents {
		places[i] = Place{
			Name:     d.PlaceName,
			Category: d.CategoryName,
			URL:      d.PlaceURL,
		}
	}
	return places, nil
}
