package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jaehwang/sulbi/internal/relay"
	"github.com/jaehwang/sulbi/internal/storage"
)

const defaultPingInterval = 15 * time.Second

// streamBufSize bounds how far a slow SSE client can lag before deltas are
// dropped; the snapshot replay covers the gap on reconnect.
const streamBufSize = 64

func handleAdviceStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		if _, err := deps.Advice.Status(jobID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "advice job not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load job: %v", err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		// The first frame is always a subscription ack, even when the job
		// is already terminal. Everything the client missed follows as
		// replay frames.
		writeSSE(w, flusher, relay.Event{Type: relay.TypeProgress, JobID: jobID, Stage: "subscribed"})

		replay, live, terminal := deps.Relay.Subscribe(jobID, streamBufSize)
		for _, e := range replay {
			writeSSE(w, flusher, e)
		}
		if terminal {
			return
		}
		defer deps.Relay.Unsubscribe(jobID, live)

		pingInterval := deps.PingInterval
		if pingInterval <= 0 {
			pingInterval = defaultPingInterval
		}
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				writeSSE(w, flusher, relay.Event{Type: relay.TypePing, JobID: jobID})
			case e, open := <-live:
				if !open {
					return
				}
				writeSSE(w, flusher, e)
				if e.Type == relay.TypeDone || e.Type == relay.TypeError {
					return
				}
			}
		}
	}
}

// writeSSE emits one event/data frame pair. The type rides in both the SSE
// event field (for EventSource listeners) and the JSON payload.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, e relay.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + e.Type + "\n"))
	w.Write([]byte("data: "))
	w.Write(b)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}
