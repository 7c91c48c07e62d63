package retrieval

import "time"

// VectorStore is the interface for similarity search over trend documents.
// The current implementation uses SQLite with brute-force cosine similarity;
// an ANN-capable backend could replace it behind this interface once the doc
// count makes full scans noticeable.
type VectorStore interface {
	// Search returns the topK documents nearest to the query vector,
	// ordered by ascending distance.
	Search(vector []float32, topK int) ([]ScoredDoc, error)

	// Count returns the number of searchable (embedded) documents.
	Count() (int, error)
}

// Doc is a trend document as seen by retrieval.
type Doc struct {
	ID        string
	Source    string
	Area      string
	URL       string
	Text      string
	CreatedAt time.Time
}

// ScoredDoc is a Doc with its cosine distance to the query vector.
// Distance is 1 - cosine similarity, so 0 means identical direction.
type ScoredDoc struct {
	Doc
	Distance float32
}
