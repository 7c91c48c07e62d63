// Package relay broadcasts per-job streaming events to live subscribers and
// keeps a recoverable snapshot so reconnecting subscribers can catch up.
package relay

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types on the stream.
const (
	TypeProgress      = "progress"
	TypeDelta         = "delta"
	TypeDeltaSnapshot = "delta_snapshot"
	TypeDone          = "done"
	TypeError         = "error"
	TypePing          = "ping"
)

// Event is one typed frame on a job's stream. Delta events carry a
// monotonically increasing Seq starting at 1; a delta_snapshot is an
// absolute replace of everything up to its Seq, never an append.
type Event struct {
	Type    string          `json:"type"`
	JobID   string          `json:"jobId"`
	Seq     int64           `json:"seq,omitempty"`
	Stage   string          `json:"stage,omitempty"`
	Text    string          `json:"text,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Snapshot is the recoverable per-job state, overwritten on every publish.
type Snapshot struct {
	Stage     string
	LastSeq   int64
	Text      string
	Terminal  *Event // done or error, nil while running
	LastWrite time.Time
}

// DefaultTTL bounds how long a job's snapshot survives after its last
// write. Past it, reconnecting subscribers cannot recover history.
const DefaultTTL = 600 * time.Second

type jobState struct {
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event

	stage     string
	lastSeq   int64
	text      string
	terminal  *Event
	lastWrite time.Time
}

// Relay is a per-job, non-blocking broadcast hub. Exactly one producer (the
// worker running the job) publishes; any number of subscribers listen on
// buffered channels and miss events rather than blocking the producer.
type Relay struct {
	mu   sync.Mutex
	jobs map[string]*jobState
	ttl  time.Duration
	now  func() time.Time
}

func New(ttl time.Duration) *Relay {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Relay{
		jobs: make(map[string]*jobState),
		ttl:  ttl,
		now:  time.Now,
	}
}

// state returns the live job state, resurrecting or expiring as needed.
// Caller must hold mu.
func (r *Relay) state(jobID string) *jobState {
	js, ok := r.jobs[jobID]
	if ok && r.now().Sub(js.lastWrite) > r.ttl {
		r.closeSubsLocked(js)
		delete(r.jobs, jobID)
		ok = false
	}
	if !ok {
		// A fresh state counts as written now, so a subscriber attaching
		// before the first publish is not expired by that publish.
		js = &jobState{
			subs:       make(map[chan Event]struct{}),
			recvToSend: make(map[<-chan Event]chan Event),
			lastWrite:  r.now(),
		}
		r.jobs[jobID] = js
	}
	return js
}

func (r *Relay) closeSubsLocked(js *jobState) {
	for ch := range js.subs {
		close(ch)
	}
	js.subs = make(map[chan Event]struct{})
	js.recvToSend = make(map[<-chan Event]chan Event)
}

// broadcastLocked fans an event out without blocking. Caller must hold mu.
func (js *jobState) broadcastLocked(e Event) {
	for ch := range js.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full. Drop rather than block the producer;
			// consumers recover through the snapshot on reconnect.
		}
	}
}

// Progress publishes a stage label. Safe on a nil relay (no-op).
func (r *Relay) Progress(jobID, stage string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	js := r.state(jobID)
	if js.terminal != nil {
		return
	}
	js.stage = stage
	js.lastWrite = r.now()
	js.broadcastLocked(Event{Type: TypeProgress, JobID: jobID, Stage: stage})
}

// Delta appends streamed text and publishes it with the next sequence
// number. Returns the assigned seq.
func (r *Relay) Delta(jobID, text string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	js := r.state(jobID)
	if js.terminal != nil {
		return js.lastSeq
	}
	js.lastSeq++
	js.text += text
	js.lastWrite = r.now()
	js.broadcastLocked(Event{Type: TypeDelta, JobID: jobID, Seq: js.lastSeq, Text: text})
	return js.lastSeq
}

// Done publishes the terminal result and closes all subscriptions. The
// snapshot keeps the terminal event for late subscribers until the TTL.
func (r *Relay) Done(jobID string, result json.RawMessage) {
	r.terminal(jobID, Event{Type: TypeDone, JobID: jobID, Result: result})
}

// Error publishes a terminal failure and closes all subscriptions.
func (r *Relay) Error(jobID, message string) {
	r.terminal(jobID, Event{Type: TypeError, JobID: jobID, Message: message})
}

func (r *Relay) terminal(jobID string, e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	js := r.state(jobID)
	if js.terminal != nil {
		return
	}
	js.terminal = &e
	js.lastWrite = r.now()
	js.broadcastLocked(e)
	r.closeSubsLocked(js)
}

// Subscribe attaches to a job's stream. The returned replay frames must be
// delivered to the consumer first: the last stage (if any), then one
// absolute-replace delta_snapshot when accumulated text exists, then the
// terminal event if the job already finished. When terminal is true the
// live channel is nil and no further events will come.
func (r *Relay) Subscribe(jobID string, bufSize int) (replay []Event, live <-chan Event, terminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js := r.state(jobID)

	if js.stage != "" {
		replay = append(replay, Event{Type: TypeProgress, JobID: jobID, Stage: js.stage})
	}
	if js.text != "" {
		replay = append(replay, Event{Type: TypeDeltaSnapshot, JobID: jobID, Seq: js.lastSeq, Text: js.text})
	}
	if js.terminal != nil {
		replay = append(replay, *js.terminal)
		return replay, nil, true
	}

	ch := make(chan Event, bufSize)
	js.subs[ch] = struct{}{}
	js.recvToSend[ch] = ch
	return replay, ch, false
}

// Unsubscribe detaches a live channel and closes it. No-op for channels
// already closed by a terminal event or expiry.
func (r *Relay) Unsubscribe(jobID string, ch <-chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js, ok := r.jobs[jobID]
	if !ok {
		return
	}
	sendCh, ok := js.recvToSend[ch]
	if !ok {
		return
	}
	delete(js.subs, sendCh)
	delete(js.recvToSend, ch)
	close(sendCh)
}

// SnapshotFor returns a copy of the job's snapshot, if one survives.
func (r *Relay) SnapshotFor(jobID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	js, ok := r.jobs[jobID]
	if !ok || r.now().Sub(js.lastWrite) > r.ttl {
		return Snapshot{}, false
	}
	return Snapshot{
		Stage:     js.stage,
		LastSeq:   js.lastSeq,
		Text:      js.text,
		Terminal:  js.terminal,
		LastWrite: js.lastWrite,
	}, true
}

// Prune drops job states whose TTL has lapsed. Returns how many were
// removed.
func (r *Relay) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, js := range r.jobs {
		if js.lastWrite.Before(cutoff) {
			r.closeSubsLocked(js)
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
