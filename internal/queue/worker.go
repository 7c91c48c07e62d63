package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jaehwang/sulbi/internal/advice"
	"github.com/jaehwang/sulbi/internal/agent"
	"github.com/jaehwang/sulbi/internal/localdata"
	"github.com/jaehwang/sulbi/internal/relay"
	"github.com/jaehwang/sulbi/internal/report"
	"github.com/jaehwang/sulbi/internal/storage"
	"github.com/jaehwang/sulbi/internal/tools"
)

// CancelledReason is recorded when a cancel flag is honored.
const CancelledReason = "cancelled"

var errCancelled = errors.New(CancelledReason)

// WorkerStore is the storage surface the worker pool drives jobs through.
type WorkerStore interface {
	ClaimNextAdviceJob() (*storage.AdviceJob, error)
	CompleteAdviceJob(id, resultJSON string) error
	FailAdviceJob(id, reason string) (bool, error)
	FailAdviceJobPermanently(id, reason string) error
	CancelRequested(id string) (bool, error)
	PruneTerminalAdviceJobs(ttl time.Duration) (int64, error)
}

// AgentRunner runs the tool-calling conversation for one job.
type AgentRunner interface {
	Run(ctx context.Context, in agent.RunInput, checkpoint agent.Checkpoint) (string, error)
}

// ResultFinalizer turns raw agent text into a contract-satisfying output.
type ResultFinalizer interface {
	Finalize(ctx context.Context, raw string) *advice.Output
}

// QuestionClassifier routes a question toward metrics or trend data.
type QuestionClassifier interface {
	Classify(ctx context.Context, question string) advice.Route
}

// PoolConfig wires a worker pool.
type PoolConfig struct {
	Store      WorkerStore
	Aggregator report.Aggregator
	Agent      AgentRunner
	Finalizer  ResultFinalizer
	Classifier QuestionClassifier
	Relay      *relay.Relay
	Limiter    *SlidingWindow
	Model      string

	Concurrency int           // workers; default 2
	Poll        time.Duration // claim poll interval; default 500ms
	TerminalTTL time.Duration // completed/failed retention; default 24h
}

// Pool pulls advice jobs and runs them through the full pipeline:
// report loading, agent rounds, streaming, validation, persistence.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger
}

func NewPool(cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	if cfg.TerminalTTL <= 0 {
		cfg.TerminalTTL = 24 * time.Hour
	}
	return &Pool{cfg: cfg, logger: slog.Default()}
}

// Run operates the pool until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pruneLoop(ctx)
	}()
	wg.Wait()
}

func (p *Pool) workLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		done, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.Poll):
		}
	}
}

// RunOnce claims and processes a single advice job, honoring the rate
// limiter. Returns true if a job was processed.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.cfg.Store.ClaimNextAdviceJob()
	if err != nil {
		return false, fmt.Errorf("claiming advice job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Acquire(ctx); err != nil {
			// shutdown while waiting; the claim stays active and a later
			// worker retries it after backoff
			p.failRetryable(job.ID, "worker shut down before start")
			return true, nil
		}
	}

	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *storage.AdviceJob) {
	jobID := job.ID
	checkpoint := func(context.Context) error {
		flagged, err := p.cfg.Store.CancelRequested(jobID)
		if err != nil {
			p.logger.Warn("cancel check failed", "job_id", jobID, "error", err)
			return nil
		}
		if flagged {
			return errCancelled
		}
		return nil
	}

	p.cfg.Relay.Progress(jobID, "report_loading")
	if err := checkpoint(ctx); err != nil {
		p.failPermanently(jobID, CancelledReason)
		return
	}

	rep, err := p.cfg.Aggregator.DistrictReport(ctx, job.DistrictID)
	if err != nil {
		if errors.Is(err, report.ErrDistrictNotFound) {
			p.failPermanently(jobID, fmt.Sprintf("district %d not found", job.DistrictID))
			return
		}
		p.failRetryable(jobID, fmt.Sprintf("loading district report: %v", err))
		return
	}
	slim := report.Slim(rep)

	var opts advice.Options
	if err := json.Unmarshal([]byte(job.OptionsJSON), &opts); err != nil {
		p.logger.Warn("unreadable job options, proceeding without", "job_id", jobID, "error", err)
	}

	route := p.cfg.Classifier.Classify(ctx, job.Question)
	msgs, err := advice.BuildMessages(slim, opts, job.Question, route)
	if err != nil {
		p.failRetryable(jobID, fmt.Sprintf("building prompt: %v", err))
		return
	}

	text, err := p.cfg.Agent.Run(ctx, agent.RunInput{
		JobID:    jobID,
		Model:    p.cfg.Model,
		Messages: msgs,
		Hints: tools.Hints{
			Question:    job.Question,
			DongName:    rep.Dong.Name,
			AreaKeyword: localdata.NormalizeArea(rep.Dong.Name),
			Concept:     opts.Concept,
		},
	}, checkpoint)
	if err != nil {
		if errors.Is(err, errCancelled) {
			p.failPermanently(jobID, CancelledReason)
			return
		}
		p.failRetryable(jobID, fmt.Sprintf("generating advice: %v", err))
		return
	}

	p.cfg.Relay.Progress(jobID, "validating")
	out := p.cfg.Finalizer.Finalize(ctx, text)
	resultJSON, err := json.Marshal(out)
	if err != nil {
		p.failRetryable(jobID, fmt.Sprintf("encoding result: %v", err))
		return
	}

	if err := p.cfg.Store.CompleteAdviceJob(jobID, string(resultJSON)); err != nil {
		p.failRetryable(jobID, fmt.Sprintf("persisting result: %v", err))
		return
	}
	p.cfg.Relay.Done(jobID, resultJSON)
	p.logger.Info("advice job completed", "job_id", jobID, "district_id", job.DistrictID)
}

// failRetryable records an attempt; the relay only sees an error once the
// retry budget is spent.
func (p *Pool) failRetryable(jobID, reason string) {
	terminal, err := p.cfg.Store.FailAdviceJob(jobID, reason)
	if err != nil {
		p.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
		return
	}
	p.logger.Warn("advice job attempt failed", "job_id", jobID, "reason", reason, "terminal", terminal)
	if terminal {
		p.cfg.Relay.Error(jobID, reason)
	}
}

func (p *Pool) failPermanently(jobID, reason string) {
	if err := p.cfg.Store.FailAdviceJobPermanently(jobID, reason); err != nil {
		p.logger.Error("failed to record permanent failure", "job_id", jobID, "error", err)
	}
	p.logger.Warn("advice job failed permanently", "job_id", jobID, "reason", reason)
	p.cfg.Relay.Error(jobID, reason)
}

// pruneLoop deletes terminal jobs past their TTL and expires relay
// snapshots.
func (p *Pool) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.cfg.Store.PruneTerminalAdviceJobs(p.cfg.TerminalTTL); err != nil {
				p.logger.Error("pruning terminal jobs failed", "error", err)
			} else if n > 0 {
				p.logger.Info("pruned terminal advice jobs", "count", n)
			}
			p.cfg.Relay.Prune()
		}
	}
}
