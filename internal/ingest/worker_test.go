package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaehwang/sulbi/internal/localdata"
	"github.com/jaehwang/sulbi/internal/retrieval"
	"github.com/jaehwang/sulbi/internal/storage"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFn(ctx, text)
}

type mockBlogClient struct {
	posts []localdata.BlogPost
	err   error
	lastQ string
}

func (m *mockBlogClient) SearchBlogs(_ context.Context, query string, display int) ([]localdata.BlogPost, error) {
	m.lastQ = query
	return m.posts, m.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveDocWithJob(t *testing.T, store *storage.Store, content string) string {
	t.Helper()
	im := NewImporter(store, nil)
	id, isNew, err := im.SaveDoc(storage.TrendDoc{
		Source:  SourceNaverBlog,
		Area:    "성수동",
		Content: content,
	})
	if err != nil || !isNew {
		t.Fatalf("SaveDoc: id=%s new=%v err=%v", id, isNew, err)
	}
	return id
}

func TestWorker_RunOnce_EmbedsDoc(t *testing.T) {
	store := openTestStore(t)
	docID := saveDocWithJob(t, store, "성수동 와인바 트렌드 정리")

	want := []float32{0.1, 0.2, 0.3}
	w := NewWorker(store, &mockEmbedder{embedFn: func(_ context.Context, text string) ([]float32, error) {
		if text != "성수동 와인바 트렌드 정리" {
			t.Errorf("embedded text = %q", text)
		}
		return want, nil
	}}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}

	doc, err := store.GetTrendDoc(docID)
	if err != nil {
		t.Fatalf("GetTrendDoc: %v", err)
	}
	vec, err := retrieval.DecodeVector(doc.Embedding)
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("stored vector = %v", vec)
	}

	// queue is drained
	if done, _ := w.RunOnce(context.Background()); done {
		t.Error("no job should remain")
	}
}

func TestWorker_RunOnce_NoJobs(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockEmbedder{}, 0)
	done, err := w.RunOnce(context.Background())
	if err != nil || done {
		t.Errorf("done = %v, err = %v", done, err)
	}
}

func TestWorker_RunOnce_EmbedFailureMarksJob(t *testing.T) {
	store := openTestStore(t)
	docID := saveDocWithJob(t, store, "본문")

	w := NewWorker(store, &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding api down")
	}}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("job should have been claimed")
	}

	doc, err := store.GetTrendDoc(docID)
	if err != nil {
		t.Fatalf("GetTrendDoc: %v", err)
	}
	if doc.Embedding != nil {
		t.Error("failed embed should leave the doc unembedded")
	}

	// the failed job backs off; it is not immediately claimable
	if done, _ := w.RunOnce(context.Background()); done {
		t.Error("job should be waiting out its backoff")
	}
}

func TestImporter_ImportArea(t *testing.T) {
	store := openTestStore(t)
	var posts []localdata.BlogPost
	for _, link := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		posts = append(posts, localdata.BlogPost{
			Title:       "성수동 술집 후기 " + link,
			Link:        "https://blog.example/" + link,
			Description: "분위기 좋은 집",
			BloggerName: "블로거",
			PostDate:    "20260815",
		})
	}
	blogs := &mockBlogClient{posts: posts}
	im := NewImporter(store, blogs)

	saved, err := im.ImportArea(context.Background(), "성수동", "성수동 와인바")
	if err != nil {
		t.Fatalf("ImportArea: %v", err)
	}
	if saved != 5 {
		t.Errorf("saved = %d, want top 5", saved)
	}
	if blogs.lastQ != "성수동 와인바" {
		t.Errorf("query = %q", blogs.lastQ)
	}

	docs, err := store.ListTrendDocs(10)
	if err != nil {
		t.Fatalf("ListTrendDocs: %v", err)
	}
	if len(docs) != 5 {
		t.Fatalf("docs = %d", len(docs))
	}
	for _, d := range docs {
		if d.Area != "성수동" || d.Source != SourceNaverBlog {
			t.Errorf("doc = %+v", d)
		}
	}

	// embed jobs queued for every saved doc
	claimed := 0
	for {
		job, err := store.ClaimNextJob([]string{JobEmbedType})
		if err != nil {
			t.Fatalf("ClaimNextJob: %v", err)
		}
		if job == nil {
			break
		}
		claimed++
	}
	if claimed != 5 {
		t.Errorf("embed jobs = %d, want 5", claimed)
	}

	// re-import is a no-op thanks to the external id
	saved, err = im.ImportArea(context.Background(), "성수동", "성수동 와인바")
	if err != nil {
		t.Fatalf("ImportArea (again): %v", err)
	}
	if saved != 0 {
		t.Errorf("re-import saved = %d, want 0", saved)
	}
}

func TestImporter_SearchErrorPropagates(t *testing.T) {
	store := openTestStore(t)
	im := NewImporter(store, &mockBlogClient{err: errors.New("naver 429")})
	if _, err := im.ImportArea(context.Background(), "성수동", "성수동"); err == nil {
		t.Fatal("want error")
	}
}

func TestWorker_Run_StopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return []float32{1}, nil
	}}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()
	cancel()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
