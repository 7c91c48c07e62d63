package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/jaehwang/sulbi/internal/queue"
	"github.com/jaehwang/sulbi/internal/relay"
	"github.com/jaehwang/sulbi/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxQuestionRunes = 2000

// AdviceService is the queue surface the HTTP layer drives.
type AdviceService interface {
	Submit(in queue.SubmitInput) (string, error)
	Status(jobID string) (queue.JobStatus, error)
	Cancel(jobID string) error
}

// Deps wires the public HTTP surface.
type Deps struct {
	Advice AdviceService
	Relay  *relay.Relay

	PingInterval time.Duration // SSE heartbeat; default 15s
}

// NewHandler returns the public advice API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/report/advice", handleSubmitAdvice(deps))
	r.Get("/report/advice/{jobID}", handleAdviceStatus(deps))
	r.Get("/report/advice/{jobID}/stream", handleAdviceStream(deps))
	r.Post("/report/advice/{jobID}/cancel", handleCancelAdvice(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// AdviceRequest is the submission body.
type AdviceRequest struct {
	DistrictID int             `json:"districtId"`
	Options    json.RawMessage `json:"options"`
	Question   string          `json:"question"`
}

func handleSubmitAdvice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AdviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.DistrictID <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "districtId is required")
			return
		}
		req.Question = strings.TrimSpace(req.Question)
		if req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}
		if utf8.RuneCountInString(req.Question) > maxQuestionRunes {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question exceeds %d characters", maxQuestionRunes)
			return
		}
		optionsJSON := ""
		if len(req.Options) > 0 {
			var probe map[string]any
			if err := json.Unmarshal(req.Options, &probe); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "options must be a JSON object")
				return
			}
			optionsJSON = string(req.Options)
		}

		jobID, err := deps.Advice.Submit(queue.SubmitInput{
			DistrictID:  req.DistrictID,
			OptionsJSON: optionsJSON,
			Question:    req.Question,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue advice job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"jobId": jobID})
	}
}

func handleAdviceStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		st, err := deps.Advice.Status(jobID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "advice job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}
}

func handleCancelAdvice(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		err := deps.Advice.Cancel(jobID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "advice job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to request cancel: %v", err)
			return
		}

		// Best effort: the worker honors the flag at its next stage
		// boundary, so the job may still complete.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "cancel_requested"})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
