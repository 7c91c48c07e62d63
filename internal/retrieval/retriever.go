package retrieval

import "context"

// Retriever combines embedding and vector search to produce the recall set
// for reranking.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds the query and returns the recallSize nearest documents in
// ascending distance order.
func (r *Retriever) Search(ctx context.Context, query string, recallSize int) ([]ScoredDoc, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.Search(vec, recallSize)
}
