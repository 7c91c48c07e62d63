// Package ingest feeds the trend-document store: importing blog posts per
// district and embedding saved docs in the background.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaehwang/sulbi/internal/retrieval"
	"github.com/jaehwang/sulbi/internal/storage"
)

// JobEmbedType is the generic job type claimed by the embed worker.
const JobEmbedType = "doc_embed"

// DocStore abstracts the job queue and trend-doc operations.
type DocStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetTrendDoc(id string) (storage.TrendDoc, error)
	UpdateTrendDocEmbedding(id string, embedding []byte) error
}

// ContentEmbedder generates embeddings for text.
type ContentEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Worker processes doc_embed jobs from the SQLite job queue.
type Worker struct {
	store    DocStore
	embedder ContentEmbedder
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store DocStore, embedder ContentEmbedder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("embed worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single doc_embed job. Returns true if a job
// was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobEmbedType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("embed job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// EmbedPayload is the doc_embed job payload.
type EmbedPayload struct {
	TrendDocID string `json:"trend_doc_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload EmbedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetTrendDoc(payload.TrendDocID)
	if err != nil {
		return fmt.Errorf("loading trend doc %s: %w", payload.TrendDocID, err)
	}

	vec, err := w.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}

	if err := w.store.UpdateTrendDocEmbedding(doc.ID, retrieval.EncodeVector(vec)); err != nil {
		return fmt.Errorf("storing embedding: %w", err)
	}
	return nil
}
