package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/jaehwang/sulbi/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB
const maxURLFetchSize = 5 << 20    // 5MB

// DocSaver persists a trend doc and queues its embedding.
type DocSaver interface {
	SaveDoc(doc storage.TrendDoc) (id string, isNew bool, err error)
}

// DocLister pages through stored trend docs.
type DocLister interface {
	ListTrendDocs(limit int) ([]storage.TrendDoc, error)
}

// ManagementDeps wires the bearer-guarded operator surface.
type ManagementDeps struct {
	Saver      DocSaver
	Lister     DocLister
	Token      string
	HTTPClient *http.Client
}

// NewManagementHandler returns the operator router: trend-doc ingest and
// inspection, behind bearer auth.
func NewManagementHandler(deps ManagementDeps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/ingest", handleIngestDoc(deps))
	r.Get("/trend-docs", handleListTrendDocs(deps))

	return r
}

// IngestRequest adds one trend doc to the retrieval corpus. Type selects
// how Content/URL are interpreted: "text" (default), "url" (fetch body),
// or "pdf" (base64, text extracted per page).
type IngestRequest struct {
	Source  string `json:"source"`
	Type    string `json:"type"`
	Area    string `json:"area"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func handleIngestDoc(deps ManagementDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Source == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source is required")
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		var resolvedContent string
		switch req.Type {
		case "url":
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for type url")
				return
			}
			body, err := fetchURL(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			resolvedContent = body

		case "pdf":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			text, err := extractPDFText(decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract pdf text: %v", err)
				return
			}
			resolvedContent = text

		case "text":
			resolvedContent = req.Content

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown type %q", req.Type)
			return
		}

		if strings.TrimSpace(resolvedContent) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "resolved content is empty")
			return
		}

		doc := storage.TrendDoc{
			ID:        uuid.New().String(),
			Source:    req.Source,
			Area:      req.Area,
			URL:       req.URL,
			Content:   resolvedContent,
			CreatedAt: time.Now().UTC(),
		}
		id, isNew, err := deps.Saver.SaveDoc(doc)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document: %v", err)
			return
		}

		status := "queued"
		if !isNew {
			status = "duplicate"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     id,
			"status": status,
		})
	}
}

func fetchURL(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &urlStatusError{url: url, status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

type urlStatusError struct {
	url    string
	status int
}

func (e *urlStatusError) Error() string {
	return "url " + e.url + " returned status " + strconv.Itoa(e.status)
}

// extractPDFText concatenates plain text page by page. Image-only pages
// are skipped.
func extractPDFText(data []byte) (string, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= rdr.NumPage(); i++ {
		text, err := rdr.Page(i).GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func handleListTrendDocs(deps ManagementDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimitParam(r, 20, 100)

		docs, err := deps.Lister.ListTrendDocs(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list trend docs: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.TrendDoc{}
		}

		type docSummary struct {
			ID        string `json:"id"`
			Source    string `json:"source"`
			Area      string `json:"area,omitempty"`
			URL       string `json:"url,omitempty"`
			Embedded  bool   `json:"embedded"`
			CreatedAt string `json:"createdAt"`
		}
		out := make([]docSummary, len(docs))
		for i, d := range docs {
			out[i] = docSummary{
				ID:        d.ID,
				Source:    d.Source,
				Area:      d.Area,
				URL:       d.URL,
				Embedded:  len(d.Embedding) > 0,
				CreatedAt: d.CreatedAt.Format(time.RFC3339),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func parseLimitParam(r *http.Request, defaultVal, maxVal int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
