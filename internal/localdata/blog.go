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

	"golang.org/x/net/html"
)

// BlogPost is one blog search hit with its markup already stripped.
type BlogPost struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	BloggerName string `json:"bloggerName"`
	PostDate    string `json:"postDate"` // "20251114" style
}

// BlogClient searches blog posts by keyword.
type BlogClient interface {
	SearchBlogs(ctx context.Context, query string, display int) ([]BlogPost, error)
}

// NaverClient implements BlogClient against the Naver blog search API.
type NaverClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
}

// NewNaverClient builds a client with the given credentials. baseURL
// overrides the production endpoint; pass "" for the default.
func NewNaverClient(clientID, clientSecret, baseURL string) *NaverClient {
	if baseURL == "" {
		baseURL = "https://openapi.naver.com/v1/search/blog.json"
	}
	return &NaverClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// naverBlogItem mirrors one entry of the blog search response. Title and
// description arrive with <b> highlighting baked in.
type naverBlogItem struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	BloggerName string `json:"bloggername"`
	PostDate    string `json:"postdate"`
}

type naverBlogResponse struct {
	Items []naverBlogItem `json:"items"`
}

func (c *NaverClient) SearchBlogs(ctx context.Context, query string, display int) ([]BlogPost, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if display <= 0 {
		display = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(display))
	params.Set("start", "1")
	params.Set("sort", "sim")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating blog search request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", c.clientID)
	req.Header.Set("X-Naver-Client-Secret", c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blog search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blog search: unexpected status %d", resp.StatusCode)
	}

	var result naverBlogResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding blog search response: %w", err)
	}

	posts := make([]BlogPost, len(result.Items))
	for i, item := range result.Items {
		posts[i] = BlogPost{
			Title:       StripHTML(item.Title),
			Link:        item.Link,
			Description: StripHTML(item.Description),
			BloggerName: item.BloggerName,
			PostDate:    item.PostDate,
		}
	}
	return posts, nil
}

// StripHTML returns the text content of an HTML fragment, dropping all tags.
// Entities like &amp; are decoded by the tokenizer.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}

	var b strings.Builder
	tz := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tz.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(tz.Text())
		}
	}
}
