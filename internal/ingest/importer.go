package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jaehwang/sulbi/internal/localdata"
	"github.com/jaehwang/sulbi/internal/storage"
)

// SourceNaverBlog tags docs imported from the blog search API.
const SourceNaverBlog = "naver_blog"

// importTop caps how many posts one import saves per area.
const importTop = 5

// ImportStore is the subset of storage the importer writes through.
type ImportStore interface {
	SaveTrendDocIfNew(doc storage.TrendDoc) (bool, error)
	EnqueueJob(job storage.Job) error
}

// Importer pulls blog posts for a district keyword and saves them as trend
// docs, queueing an embed job for each new one.
type Importer struct {
	store  ImportStore
	blogs  localdata.BlogClient
	logger *slog.Logger
}

func NewImporter(store ImportStore, blogs localdata.BlogClient) *Importer {
	return &Importer{store: store, blogs: blogs, logger: slog.Default()}
}

// ImportArea searches blogs for the query and saves the top hits tagged with
// the area keyword. Returns how many new docs were saved.
func (im *Importer) ImportArea(ctx context.Context, areaKeyword, query string) (int, error) {
	posts, err := im.blogs.SearchBlogs(ctx, query, 10)
	if err != nil {
		return 0, fmt.Errorf("searching blogs for %q: %w", query, err)
	}
	if len(posts) > importTop {
		posts = posts[:importTop]
	}

	saved := 0
	for _, post := range posts {
		doc := storage.TrendDoc{
			ID:         uuid.New().String(),
			Source:     SourceNaverBlog,
			ExternalID: SourceNaverBlog + ":" + post.Link,
			Area:       areaKeyword,
			URL:        post.Link,
			Content:    composeDocContent(areaKeyword, post),
		}
		isNew, err := im.store.SaveTrendDocIfNew(doc)
		if err != nil {
			return saved, fmt.Errorf("saving trend doc: %w", err)
		}
		if !isNew {
			continue
		}
		if err := im.enqueueEmbed(doc.ID); err != nil {
			return saved, err
		}
		saved++
	}

	im.logger.Info("blog import finished", "area", areaKeyword, "query", query, "hits", len(posts), "saved", saved)
	return saved, nil
}

// SaveDoc stores one externally supplied document (API ingest, MCP) and
// queues its embedding. Returns the doc id and whether it was new.
func (im *Importer) SaveDoc(doc storage.TrendDoc) (string, bool, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.ExternalID == "" {
		doc.ExternalID = doc.Source + ":" + doc.ID
	}
	isNew, err := im.store.SaveTrendDocIfNew(doc)
	if err != nil {
		return "", false, fmt.Errorf("saving trend doc: %w", err)
	}
	if !isNew {
		return doc.ID, false, nil
	}
	if err := im.enqueueEmbed(doc.ID); err != nil {
		return doc.ID, true, err
	}
	return doc.ID, true, nil
}

func (im *Importer) enqueueEmbed(docID string) error {
	payload, err := json.Marshal(EmbedPayload{TrendDocID: docID})
	if err != nil {
		return fmt.Errorf("marshal embed payload: %w", err)
	}
	if err := im.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobEmbedType,
		PayloadJSON: string(payload),
	}); err != nil {
		return fmt.Errorf("enqueue embed job: %w", err)
	}
	return nil
}

// composeDocContent flattens a blog hit into the text that gets embedded.
func composeDocContent(areaKeyword string, post localdata.BlogPost) string {
	lines := []string{
		"[상권] " + areaKeyword,
		"[제목] " + post.Title,
		"[요약] " + post.Description,
		"[블로거] " + post.BloggerName,
		"[링크] " + post.Link,
		"[작성일] " + post.PostDate,
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
