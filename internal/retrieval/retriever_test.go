package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/jaehwang/sulbi/internal/llm"
)

// mockClient implements llm.Client for tests. Only Embed is used here.
type mockClient struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockClient) Chat(ctx context.Context, req llm.Request) (llm.Completion, error) {
	return llm.Completion{}, errors.New("not implemented")
}

func (m *mockClient) ChatStream(ctx context.Context, req llm.Request, onDelta func(string)) (llm.Completion, error) {
	return llm.Completion{}, errors.New("not implemented")
}

func (m *mockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.embedFn(ctx, texts)
}

// mockStore implements VectorStore, recording the search it received.
type mockStore struct {
	gotVector []float32
	gotTopK   int
	results   []ScoredDoc
	err       error
}

func (m *mockStore) Search(vector []float32, topK int) ([]ScoredDoc, error) {
	m.gotVector = vector
	m.gotTopK = topK
	return m.results, m.err
}

func (m *mockStore) Count() (int, error) { return len(m.results), nil }

func TestRetrieverSearch(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3}
	client := &mockClient{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			if len(texts) != 1 || texts[0] != "성수동 술집 분위기" {
				t.Errorf("embed input = %v", texts)
			}
			return [][]float32{want}, nil
		},
	}
	store := &mockStore{
		results: []ScoredDoc{
			{Doc: Doc{ID: "d1"}, Distance: 0.1},
			{Doc: Doc{ID: "d2"}, Distance: 0.4},
		},
	}

	r := NewRetriever(NewEmbedder(client), store)
	docs, err := r.Search(context.Background(), "성수동 술집 분위기", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if store.gotTopK != 20 {
		t.Errorf("topK = %d, want 20", store.gotTopK)
	}
	if len(store.gotVector) != 3 || store.gotVector[0] != 0.1 {
		t.Errorf("store received vector %v", store.gotVector)
	}
	if len(docs) != 2 || docs[0].ID != "d1" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestRetrieverSearch_EmbedError(t *testing.T) {
	client := &mockClient{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	r := NewRetriever(NewEmbedder(client), &mockStore{})

	if _, err := r.Search(context.Background(), "q", 5); err == nil {
		t.Error("expected error from failed embedding")
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewEmbedder(&mockClient{
		embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Error("Embed should not be called for empty input")
			return nil, nil
		},
	})

	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("expected nil, got %v", vecs)
	}
}
