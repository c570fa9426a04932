package jobs

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPermanent(t *testing.T) {
	cause := errors.New("schema validation failed")
	err := Permanent(cause)

	if !errors.Is(err, ErrPermanent) {
		t.Error("expected ErrPermanent in chain")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
	if err.Error() != cause.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), cause.Error())
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestAnalysisJob_JSONHidesRawData(t *testing.T) {
	job := &AnalysisJob{
		JobID:   "job-1",
		UserID:  "alice@example.com",
		UserRef: "user_0123456789abcdef",
		Bundle:  json.RawMessage(`{"email":"alice@example.com"}`),
		Kind:    "single",
		Status:  JobStatusPending,
	}

	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "alice") {
		t.Errorf("job JSON leaks raw user data: %s", data)
	}
	if !strings.Contains(string(data), "user_0123456789abcdef") {
		t.Errorf("job JSON should carry user_ref: %s", data)
	}
	if job.GetType() != JobTypeAnalysis {
		t.Errorf("GetType() = %q", job.GetType())
	}
}
