package retrieval

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the trend_docs table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE trend_docs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			external_id TEXT UNIQUE,
			area TEXT NOT NULL DEFAULT '',
			url TEXT,
			content TEXT NOT NULL,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTestDoc(t *testing.T, db *sql.DB, id, area, content string, vec []float32) {
	t.Helper()
	var blob []byte
	if vec != nil {
		blob = EncodeVector(vec)
	}
	_, err := db.Exec(`
		INSERT INTO trend_docs (id, source, external_id, area, url, content, embedding, created_at)
		VALUES (?, 'naver_blog', ?, ?, 'https://blog.example/'||?, ?, ?, ?)`,
		id, id, area, id, content, blob, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("inserting doc %s: %v", id, err)
	}
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestSearch_NearestFirst(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	query := makeTestVector(128, 0.1)
	insertTestDoc(t, db, "d-exact", "성수동", "exact match", query)
	insertTestDoc(t, db, "d-far", "홍대입구", "far away", makeTestVector(128, 5.0))

	results, err := s.Search(query, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "d-exact" {
		t.Errorf("first ID = %q, want %q", results[0].ID, "d-exact")
	}
	if results[0].Distance > 0.001 {
		t.Errorf("distance = %f, want ~0 for identical vector", results[0].Distance)
	}
	if results[1].Distance < results[0].Distance {
		t.Error("results not in ascending distance order")
	}
	if results[0].Area != "성수동" {
		t.Errorf("Area = %q, want %q", results[0].Area, "성수동")
	}
	if results[0].URL == "" {
		t.Error("URL should round-trip")
	}
}

func TestSearch_TopK(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	for i := 0; i < 10; i++ {
		insertTestDoc(t, db, fmt.Sprintf("d%d", i), "성수동", "text", makeTestVector(128, float32(i)*0.01))
	}

	results, err := s.Search(makeTestVector(128, 0.05), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearch_SkipsUnembedded(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	insertTestDoc(t, db, "d-raw", "성수동", "not yet embedded", nil)
	insertTestDoc(t, db, "d-emb", "성수동", "embedded", makeTestVector(128, 0.1))

	results, err := s.Search(makeTestVector(128, 0.1), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != "d-emb" {
		t.Errorf("ID = %q, want %q", results[0].ID, "d-emb")
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

func TestSearch_EmptyTable(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	results, err := s.Search(makeTestVector(128, 0.1), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearch_TopKZero(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	results, err := s.Search(makeTestVector(128, 0.1), 0)
	if err != nil {
		t.Fatalf("Search with topK=0: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for topK=0, got %d", len(results))
	}
}

func TestSearch_ZeroQueryVector(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	insertTestDoc(t, db, "d1", "성수동", "text", makeTestVector(128, 0.1))

	results, err := s.Search(make([]float32, 128), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for zero vector, got %d", len(results))
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := makeTestVector(768, 0.3)
	decoded, err := DecodeVector(EncodeVector(vec))
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("dim = %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Fatalf("decoded[%d] = %f, want %f", i, decoded[i], vec[i])
		}
	}
}

func TestDecodeVector_CorruptLength(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for byte length not multiple of 4")
	}
}
