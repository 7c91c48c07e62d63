package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jaehwang/sulbi/internal/storage"
)

// SubmitStore is the storage surface the submission API needs.
type SubmitStore interface {
	CreateAdviceJob(job storage.AdviceJob) error
	GetAdviceJob(id string) (storage.AdviceJob, error)
	RequestCancel(id string) error
}

// Service accepts advice jobs and answers status queries. Every submission
// creates a fresh job id; identical requests are not deduplicated.
type Service struct {
	store SubmitStore

	// MaxAttempts is stamped onto new jobs; zero lets storage apply its
	// default retry budget.
	MaxAttempts int
}

func NewService(store SubmitStore) *Service {
	return &Service{store: store}
}

// SubmitInput is a validated advice request.
type SubmitInput struct {
	DistrictID  int
	OptionsJSON string
	Question    string
}

// Submit enqueues a job and returns its id.
func (s *Service) Submit(in SubmitInput) (string, error) {
	id := uuid.New().String()
	optionsJSON := in.OptionsJSON
	if optionsJSON == "" {
		optionsJSON = "{}"
	}
	err := s.store.CreateAdviceJob(storage.AdviceJob{
		ID:          id,
		DistrictID:  in.DistrictID,
		OptionsJSON: optionsJSON,
		Question:    in.Question,
		MaxAttempts: s.MaxAttempts,
	})
	if err != nil {
		return "", fmt.Errorf("creating advice job: %w", err)
	}
	return id, nil
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	JobID         string          `json:"jobId"`
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result"`
	FailureReason *string         `json:"failureReason"`
}

// Status reports a job's public status. Internal retry states surface as
// "active".
func (s *Service) Status(jobID string) (JobStatus, error) {
	job, err := s.store.GetAdviceJob(jobID)
	if err != nil {
		return JobStatus{}, err
	}

	st := JobStatus{
		JobID:  job.ID,
		Status: storage.PublicStatus(job.Status),
	}
	if job.ResultJSON != "" {
		st.Result = json.RawMessage(job.ResultJSON)
	}
	if job.Status == storage.StatusFailed && job.FailureReason != "" {
		reason := job.FailureReason
		st.FailureReason = &reason
	}
	return st, nil
}

// Cancel flags a job for cooperative cancellation. The worker honors the
// flag at its next stage boundary; termination is not guaranteed.
func (s *Service) Cancel(jobID string) error {
	return s.store.RequestCancel(jobID)
}
