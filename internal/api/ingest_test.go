package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jaehwang/sulbi/internal/storage"
)

const testToken = "test-token-12345"

type fnSaver struct {
	saveFn func(doc storage.TrendDoc) (string, bool, error)
}

func (f *fnSaver) SaveDoc(doc storage.TrendDoc) (string, bool, error) { return f.saveFn(doc) }

type fnLister struct {
	listFn func(limit int) ([]storage.TrendDoc, error)
}

func (f *fnLister) ListTrendDocs(limit int) ([]storage.TrendDoc, error) { return f.listFn(limit) }

func newManagementHandler(saver *fnSaver, lister *fnLister) http.Handler {
	return NewManagementHandler(ManagementDeps{
		Saver:  saver,
		Lister: lister,
		Token:  testToken,
	})
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestManagement_RequiresBearerToken(t *testing.T) {
	h := newManagementHandler(&fnSaver{}, &fnLister{})

	for _, token := range []string{"", "wrong-token"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, "/trend-docs", "", token))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rr.Code)
		}
	}
}

func TestIngestDoc_Text(t *testing.T) {
	var saved storage.TrendDoc
	saver := &fnSaver{saveFn: func(doc storage.TrendDoc) (string, bool, error) {
		saved = doc
		return doc.ID, true, nil
	}}
	h := newManagementHandler(saver, &fnLister{})

	body := `{"source":"manual","type":"text","area":"성수동","content":"요즘 성수동 와인바가 뜬다"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Errorf("response = %v", resp)
	}
	if saved.Content != "요즘 성수동 와인바가 뜬다" || saved.Area != "성수동" || saved.Source != "manual" {
		t.Errorf("saved doc = %+v", saved)
	}
}

func TestIngestDoc_DuplicateReported(t *testing.T) {
	saver := &fnSaver{saveFn: func(doc storage.TrendDoc) (string, bool, error) {
		return "existing-id", false, nil
	}}
	h := newManagementHandler(saver, &fnLister{})

	body := `{"source":"manual","content":"같은 문서"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "duplicate" || resp["id"] != "existing-id" {
		t.Errorf("response = %v", resp)
	}
}

func TestIngestDoc_Validation(t *testing.T) {
	h := newManagementHandler(&fnSaver{}, &fnLister{})

	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"missing source", `{"content":"hello"}`},
		{"missing content and url", `{"source":"manual"}`},
		{"unknown type", `{"source":"manual","type":"docx","content":"x"}`},
		{"bad base64 pdf", `{"source":"manual","type":"pdf","content":"not-base64!!!"}`},
		{"whitespace content", `{"source":"manual","content":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", tc.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestIngestDoc_URLFetch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("블로그 본문: 연남동 칵테일바 탐방"))
	}))
	defer upstream.Close()

	var saved storage.TrendDoc
	saver := &fnSaver{saveFn: func(doc storage.TrendDoc) (string, bool, error) {
		saved = doc
		return doc.ID, true, nil
	}}
	h := NewManagementHandler(ManagementDeps{
		Saver:      saver,
		Lister:     &fnLister{},
		Token:      testToken,
		HTTPClient: upstream.Client(),
	})

	body := `{"source":"blog","type":"url","url":"` + upstream.URL + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(saved.Content, "연남동 칵테일바") {
		t.Errorf("saved content = %q", saved.Content)
	}
	if saved.URL != upstream.URL {
		t.Errorf("saved url = %q", saved.URL)
	}
}

func TestIngestDoc_URLFetchUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	h := NewManagementHandler(ManagementDeps{
		Saver:      &fnSaver{},
		Lister:     &fnLister{},
		Token:      testToken,
		HTTPClient: upstream.Client(),
	})

	body := `{"source":"blog","type":"url","url":"` + upstream.URL + `"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/ingest", body, testToken))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestListTrendDocs(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var gotLimit int
	lister := &fnLister{listFn: func(limit int) ([]storage.TrendDoc, error) {
		gotLimit = limit
		return []storage.TrendDoc{
			{ID: "d1", Source: "naver_blog", Area: "성수동", Embedding: []byte{1, 2}, CreatedAt: created},
			{ID: "d2", Source: "mcp", CreatedAt: created},
		}, nil
	}}
	h := newManagementHandler(&fnSaver{}, lister)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/trend-docs?limit=500", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if gotLimit != 100 {
		t.Errorf("limit = %d, want clamped to 100", gotLimit)
	}

	var docs []map[string]any
	json.NewDecoder(rr.Body).Decode(&docs)
	if len(docs) != 2 {
		t.Fatalf("docs = %v", docs)
	}
	if docs[0]["embedded"] != true || docs[1]["embedded"] != false {
		t.Errorf("embedded flags = %v %v", docs[0]["embedded"], docs[1]["embedded"])
	}
}
