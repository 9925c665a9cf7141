package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeSubmitter records submitted payloads and returns scripted job ids.
type fakeSubmitter struct {
	payloads []*JobPayload
	jobIDs   []string
	err      error
}

func (f *fakeSubmitter) SubmitJob(_ context.Context, payload *JobPayload) (string, error) {
	f.payloads = append(f.payloads, payload)
	if f.err != nil {
		return "", f.err
	}
	if len(f.jobIDs) == 0 {
		return "job-1", nil
	}
	id := f.jobIDs[0]
	f.jobIDs = f.jobIDs[1:]
	return id, nil
}

type fakeChecker struct {
	exists bool
	err    error
	keys   []string
}

func (f *fakeChecker) Exists(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.exists, f.err
}

func testDispatchConfig() DispatchConfig {
	return DispatchConfig{
		WebhookURL:    "https://orchestrator.example.com/webhooks/transcoding",
		WebhookSecret: testSecret,
		Delivery:      ObjectStoreConfig{Endpoint: "https://r2.example.com", Bucket: "delivery"},
		Archive:       ObjectStoreConfig{Endpoint: "https://b2.example.com", Bucket: "archive"},
	}
}

func uploadedRecord() *MediaRecord {
	return &MediaRecord{
		MediaID:  "m1",
		TenantID: "t1",
		Type:     MediaTypeVideo,
		Status:   StatusUploaded,
		InputKey: "t1/originals/m1.mp4",
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	sub := &fakeSubmitter{jobIDs: []string{"j1"}}
	d := NewDispatcher(sub, nil, testDispatchConfig())

	jobID, err := d.Dispatch(context.Background(), uploadedRecord())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if jobID != "j1" {
		t.Errorf("jobID = %q, want j1", jobID)
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(sub.payloads))
	}

	p := sub.payloads[0]
	if p.MediaID != "m1" || p.CreatorID != "t1" || p.Type != MediaTypeVideo {
		t.Errorf("payload identity mismatch: %+v", p)
	}
	if p.InputKey != "t1/originals/m1.mp4" {
		t.Errorf("input key = %q", p.InputKey)
	}
	if p.OutputPrefix != "t1/hls/m1/" {
		t.Errorf("output prefix = %q, want path-generator value", p.OutputPrefix)
	}
	if p.WebhookURL != "https://orchestrator.example.com/webhooks/transcoding" || p.WebhookSecret != testSecret {
		t.Errorf("webhook config mismatch: url=%q", p.WebhookURL)
	}
	if p.Delivery.Bucket != "delivery" || p.Archive.Bucket != "archive" {
		t.Errorf("storage config mismatch: %+v / %+v", p.Delivery, p.Archive)
	}
}

func TestDispatcher_Dispatch_wrongState(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(sub, nil, testDispatchConfig())

	rec := uploadedRecord()
	rec.Status = StatusTranscoding
	if _, err := d.Dispatch(context.Background(), rec); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Error("no job should be submitted from a non-uploaded record")
	}
}

func TestDispatcher_Dispatch_missingInput(t *testing.T) {
	d := NewDispatcher(&fakeSubmitter{}, nil, testDispatchConfig())

	rec := uploadedRecord()
	rec.InputKey = ""
	if _, err := d.Dispatch(context.Background(), rec); !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestDispatcher_Dispatch_inputPreflight(t *testing.T) {
	checker := &fakeChecker{exists: true}
	d := NewDispatcher(&fakeSubmitter{}, checker, testDispatchConfig())

	if _, err := d.Dispatch(context.Background(), uploadedRecord()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(checker.keys) != 1 || checker.keys[0] != "t1/originals/m1.mp4" {
		t.Errorf("checker called with %v", checker.keys)
	}
}

func TestDispatcher_Dispatch_inputMissingFromStorage(t *testing.T) {
	sub := &fakeSubmitter{}
	d := NewDispatcher(sub, &fakeChecker{exists: false}, testDispatchConfig())

	if _, err := d.Dispatch(context.Background(), uploadedRecord()); !errors.Is(err, ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Error("no job should be submitted when the input object is missing")
	}
}

func TestDispatcher_Dispatch_submitError(t *testing.T) {
	submitErr := errors.New("provider unreachable")
	d := NewDispatcher(&fakeSubmitter{err: submitErr}, nil, testDispatchConfig())

	_, err := d.Dispatch(context.Background(), uploadedRecord())
	if !errors.Is(err, submitErr) {
		t.Errorf("expected wrapped submit error, got %v", err)
	}
	if !strings.Contains(err.Error(), "m1") {
		t.Errorf("error should identify the media: %v", err)
	}
}

func TestDispatcher_Dispatch_emptyJobID(t *testing.T) {
	d := NewDispatcher(&fakeSubmitter{jobIDs: []string{""}}, nil, testDispatchConfig())

	if _, err := d.Dispatch(context.Background(), uploadedRecord()); err == nil {
		t.Error("empty provider job id should be an error")
	}
}
