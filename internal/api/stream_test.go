package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jaehwang/sulbi/internal/queue"
	"github.com/jaehwang/sulbi/internal/relay"
	"github.com/jaehwang/sulbi/internal/storage"
)

// sseEvents parses "data: {json}" frames off an SSE body.
func sseEvents(t *testing.T, body string) []relay.Event {
	t.Helper()
	var events []relay.Event
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e relay.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		events = append(events, e)
	}
	return events
}

func TestStream_TerminalJobReplaysAndCloses(t *testing.T) {
	r := relay.New(0)
	r.Progress("job-1", "report_loading")
	r.Delta("job-1", "결론: ")
	r.Delta("job-1", "입지가 좋습니다")
	r.Done("job-1", json.RawMessage(`{"version":"v1"}`))

	h := NewHandler(Deps{Advice: okService(), Relay: r})
	rr := doJSON(t, h, http.MethodGet, "/report/advice/job-1/stream", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := sseEvents(t, rr.Body.String())
	if len(events) != 4 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != relay.TypeProgress || events[0].Stage != "subscribed" {
		t.Errorf("first frame = %+v", events[0])
	}
	if events[1].Type != relay.TypeProgress || events[1].Stage != "report_loading" {
		t.Errorf("stage frame = %+v", events[1])
	}
	if events[2].Type != relay.TypeDeltaSnapshot || events[2].Text != "결론: 입지가 좋습니다" || events[2].Seq != 2 {
		t.Errorf("snapshot frame = %+v", events[2])
	}
	if events[3].Type != relay.TypeDone {
		t.Errorf("terminal frame = %+v", events[3])
	}
}

func TestStream_UnknownJob(t *testing.T) {
	svc := okService()
	svc.statusFn = func(string) (queue.JobStatus, error) {
		return queue.JobStatus{}, storage.ErrNotFound
	}
	h := NewHandler(Deps{Advice: svc, Relay: relay.New(0)})

	rr := doJSON(t, h, http.MethodGet, "/report/advice/nope/stream", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestStream_LiveEventsUntilDone(t *testing.T) {
	r := relay.New(0)
	h := NewHandler(Deps{Advice: okService(), Relay: r})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/report/advice/job-9/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	frames := make(chan relay.Event, 16)
	go func() {
		defer close(frames)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var e relay.Event
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e) == nil {
				frames <- e
			}
		}
	}()

	next := func() relay.Event {
		select {
		case e, ok := <-frames:
			if !ok {
				t.Fatal("stream closed early")
			}
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
		return relay.Event{}
	}

	if e := next(); e.Type != relay.TypeProgress || e.Stage != "subscribed" {
		t.Fatalf("first frame = %+v", e)
	}

	r.Progress("job-9", "streaming")
	if e := next(); e.Type != relay.TypeProgress || e.Stage != "streaming" {
		t.Fatalf("progress frame = %+v", e)
	}

	r.Delta("job-9", "분석 ")
	if e := next(); e.Type != relay.TypeDelta || e.Text != "분석 " || e.Seq != 1 {
		t.Fatalf("delta frame = %+v", e)
	}

	r.Done("job-9", json.RawMessage(`{"version":"v1"}`))
	if e := next(); e.Type != relay.TypeDone {
		t.Fatalf("terminal frame = %+v", e)
	}

	// handler returns after the terminal frame
	if _, ok := <-frames; ok {
		t.Error("frames after terminal event")
	}
}

func TestStream_PingHeartbeat(t *testing.T) {
	r := relay.New(0)
	h := NewHandler(Deps{Advice: okService(), Relay: r, PingInterval: 30 * time.Millisecond})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/report/advice/job-p/stream")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	for scanner.Scan() {
		if time.Now().After(deadline) {
			break
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e relay.Event
		if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e) != nil {
			continue
		}
		if e.Type == relay.TypePing {
			return
		}
	}
	t.Fatal("no ping frame observed")
}
