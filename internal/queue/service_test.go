package queue

import (
	"errors"
	"testing"

	"github.com/jaehwang/sulbi/internal/storage"
)

func TestService_SubmitAndStatus(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store)

	id, err := svc.Submit(SubmitInput{DistrictID: 11, Question: "여기 어때?"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("Submit returned empty job id")
	}

	st, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.JobID != id || st.Status != storage.StatusQueued {
		t.Errorf("status = %+v", st)
	}
	if st.Result != nil || st.FailureReason != nil {
		t.Errorf("fresh job carries result or reason: %+v", st)
	}

	job, err := store.GetAdviceJob(id)
	if err != nil {
		t.Fatalf("GetAdviceJob: %v", err)
	}
	if job.OptionsJSON != "{}" {
		t.Errorf("OptionsJSON = %q, want defaulted empty object", job.OptionsJSON)
	}
}

func TestService_SubmitNeverDeduplicates(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store)

	in := SubmitInput{DistrictID: 11, Question: "같은 질문"}
	a, err := svc.Submit(in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	b, err := svc.Submit(in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a == b {
		t.Errorf("identical submissions shared job id %q", a)
	}
}

func TestService_StatusRetryingShowsActive(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store)

	id, err := svc.Submit(SubmitInput{DistrictID: 11, Question: "q"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := store.ClaimNextAdviceJob(); err != nil {
		t.Fatalf("ClaimNextAdviceJob: %v", err)
	}
	if _, err := store.FailAdviceJob(id, "upstream timeout"); err != nil {
		t.Fatalf("FailAdviceJob: %v", err)
	}

	st, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != storage.StatusActive {
		t.Errorf("Status = %q, want active while retry budget remains", st.Status)
	}
	if st.FailureReason != nil {
		t.Errorf("non-terminal job leaked failure reason %q", *st.FailureReason)
	}
}

func TestService_StatusFailedCarriesReason(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store)

	id, err := svc.Submit(SubmitInput{DistrictID: 99, Question: "q"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := store.FailAdviceJobPermanently(id, "district 99 not found"); err != nil {
		t.Fatalf("FailAdviceJobPermanently: %v", err)
	}

	st, err := svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != storage.StatusFailed {
		t.Errorf("Status = %q", st.Status)
	}
	if st.FailureReason == nil || *st.FailureReason != "district 99 not found" {
		t.Errorf("FailureReason = %v", st.FailureReason)
	}
}

func TestService_StatusUnknownJob(t *testing.T) {
	svc := NewService(openTestStore(t))
	if _, err := svc.Status("no-such-job"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestService_Cancel(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(store)

	id, err := svc.Submit(SubmitInput{DistrictID: 11, Question: "q"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := svc.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	flagged, err := store.CancelRequested(id)
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if !flagged {
		t.Error("cancel flag not set")
	}

	if err := svc.Cancel("no-such-job"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Cancel unknown = %v, want ErrNotFound", err)
	}
}
