package relay

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestRelay(ttl time.Duration) (*Relay, *time.Time) {
	r := New(ttl)
	now := time.Now()
	r.now = func() time.Time { return now }
	return r, &now
}

func TestDelta_SeqStartsAtOne(t *testing.T) {
	r, _ := newTestRelay(0)
	if seq := r.Delta("job1", "안"); seq != 1 {
		t.Errorf("first seq = %d, want 1", seq)
	}
	if seq := r.Delta("job1", "녕"); seq != 2 {
		t.Errorf("second seq = %d, want 2", seq)
	}
	// seq is per job
	if seq := r.Delta("job2", "x"); seq != 1 {
		t.Errorf("other job seq = %d, want 1", seq)
	}
}

func TestSubscribe_LiveEvents(t *testing.T) {
	r, _ := newTestRelay(0)
	replay, live, terminal := r.Subscribe("job1", 8)
	if len(replay) != 0 || terminal {
		t.Fatalf("replay = %v, terminal = %v", replay, terminal)
	}

	r.Progress("job1", "report_loading")
	r.Delta("job1", "첫 조각")

	e := <-live
	if e.Type != TypeProgress || e.Stage != "report_loading" {
		t.Errorf("event = %+v", e)
	}
	e = <-live
	if e.Type != TypeDelta || e.Seq != 1 || e.Text != "첫 조각" {
		t.Errorf("event = %+v", e)
	}

	r.Unsubscribe("job1", live)
	if _, open := <-live; open {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestSubscribe_BeforeFirstPublish(t *testing.T) {
	r, _ := newTestRelay(0)
	_, live, _ := r.Subscribe("job1", 8)

	r.Progress("job1", "report_loading")

	e, open := <-live
	if !open {
		t.Fatal("live channel closed by the first publish")
	}
	if e.Type != TypeProgress || e.Stage != "report_loading" {
		t.Errorf("event = %+v, want report_loading progress", e)
	}
}

func TestSubscribe_ReplayMidRun(t *testing.T) {
	r, _ := newTestRelay(0)
	r.Progress("job1", "report_loading")
	r.Progress("job1", "streaming")
	r.Delta("job1", "부분 ")
	r.Delta("job1", "텍스트")

	replay, live, terminal := r.Subscribe("job1", 8)
	if terminal {
		t.Fatal("job is not terminal")
	}
	if len(replay) != 2 {
		t.Fatalf("replay = %+v, want stage + snapshot", replay)
	}
	if replay[0].Type != TypeProgress || replay[0].Stage != "streaming" {
		t.Errorf("replay[0] = %+v", replay[0])
	}
	if replay[1].Type != TypeDeltaSnapshot || replay[1].Seq != 2 || replay[1].Text != "부분 텍스트" {
		t.Errorf("replay[1] = %+v", replay[1])
	}

	// live events continue after the snapshot point
	r.Delta("job1", "!")
	if e := <-live; e.Seq != 3 || e.Text != "!" {
		t.Errorf("live event = %+v", e)
	}
	r.Unsubscribe("job1", live)
}

func TestSubscribe_NoSnapshotWithoutText(t *testing.T) {
	r, _ := newTestRelay(0)
	r.Progress("job1", "agent_round_1")

	replay, live, _ := r.Subscribe("job1", 8)
	if len(replay) != 1 || replay[0].Type != TypeProgress {
		t.Errorf("replay = %+v, want only the stage", replay)
	}
	r.Unsubscribe("job1", live)
}

func TestDone_ClosesSubscribersAndReplays(t *testing.T) {
	r, _ := newTestRelay(0)
	_, live, _ := r.Subscribe("job1", 8)

	result := json.RawMessage(`{"version":"v1"}`)
	r.Delta("job1", "본문")
	r.Done("job1", result)

	var got []Event
	for e := range live {
		got = append(got, e)
	}
	if len(got) != 2 || got[1].Type != TypeDone {
		t.Fatalf("events = %+v", got)
	}

	// late subscriber gets the full replay and no live channel
	replay, ch, terminal := r.Subscribe("job1", 8)
	if !terminal || ch != nil {
		t.Fatalf("terminal = %v, ch = %v", terminal, ch)
	}
	last := replay[len(replay)-1]
	if last.Type != TypeDone || string(last.Result) != `{"version":"v1"}` {
		t.Errorf("replay = %+v", replay)
	}
}

func TestError_Terminal(t *testing.T) {
	r, _ := newTestRelay(0)
	r.Error("job1", "backend unavailable")

	replay, _, terminal := r.Subscribe("job1", 8)
	if !terminal {
		t.Fatal("want terminal")
	}
	if replay[len(replay)-1].Message != "backend unavailable" {
		t.Errorf("replay = %+v", replay)
	}

	// publishes after a terminal event are ignored
	r.Delta("job1", "늦은 조각")
	if snap, ok := r.SnapshotFor("job1"); !ok || snap.LastSeq != 0 {
		t.Errorf("snapshot = %+v, %v", snap, ok)
	}
}

func TestSlowSubscriberDoesNotBlockProducer(t *testing.T) {
	r, _ := newTestRelay(0)
	_, live, _ := r.Subscribe("job1", 1)

	// the producer must not block even though the buffer holds one event
	for i := 0; i < 10; i++ {
		r.Delta("job1", "x")
	}

	e := <-live
	if e.Seq != 1 {
		t.Errorf("buffered event seq = %d, want 1", e.Seq)
	}
	if snap, _ := r.SnapshotFor("job1"); snap.LastSeq != 10 {
		t.Errorf("LastSeq = %d, want 10 despite drops", snap.LastSeq)
	}
	r.Unsubscribe("job1", live)
}

func TestSnapshotExpiry(t *testing.T) {
	r, now := newTestRelay(time.Minute)
	r.Delta("job1", "본문")
	r.Done("job1", json.RawMessage(`{}`))

	*now = now.Add(2 * time.Minute)

	if _, ok := r.SnapshotFor("job1"); ok {
		t.Error("snapshot should have expired")
	}
	replay, _, terminal := r.Subscribe("job1", 8)
	if len(replay) != 0 || terminal {
		t.Errorf("expired job replayed: %+v, terminal=%v", replay, terminal)
	}
}

func TestPrune(t *testing.T) {
	r, now := newTestRelay(time.Minute)
	r.Delta("old", "x")
	*now = now.Add(2 * time.Minute)
	r.Delta("fresh", "y")

	if removed := r.Prune(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := r.SnapshotFor("fresh"); !ok {
		t.Error("fresh job pruned")
	}
}

func TestNilRelayIsNoOp(t *testing.T) {
	var r *Relay
	r.Progress("job1", "stage")
	if seq := r.Delta("job1", "x"); seq != 0 {
		t.Errorf("seq = %d", seq)
	}
	r.Done("job1", nil)
	r.Error("job1", "err")
}
