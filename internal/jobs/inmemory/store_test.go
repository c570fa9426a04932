package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-insights/internal/jobs"
)

func TestStore_SaveAndGetReturnCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.AnalysisJob{JobID: "j1", Status: jobs.JobStatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	job.Status = jobs.JobStatusFailed

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job changed through caller pointer: %s", got.Status)
	}
}

func TestStore_Errors(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.SaveJob(ctx, &jobs.AnalysisJob{}); err == nil {
		t.Error("SaveJob without ID should fail")
	}
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob = %v, want ErrJobNotFound", err)
	}
	if err := store.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus = %v, want ErrJobNotFound", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.AnalysisJob{
		{JobID: "c", UserRef: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "a", UserRef: "u1", Status: jobs.JobStatusPending},
		{JobID: "b", UserRef: "u2", Status: jobs.JobStatusPending},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_ = store.SaveJob(ctx, j)
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all oldest first", jobs.JobFilter{}, []string{"c", "a", "b"}},
		{"by user", jobs.JobFilter{UserRef: "u1"}, []string{"c", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusPending}, []string{"a", "b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 2}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("job[%d] = %s, want %s", i, got[i].JobID, id)
				}
			}
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.SaveJob(ctx, &jobs.AnalysisJob{JobID: "j1", Status: jobs.JobStatusRunning})

	if err := store.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "analysis unavailable"); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	got, _ := store.GetJob(ctx, "j1")
	if got.Status != jobs.JobStatusFailed || got.Error != "analysis unavailable" {
		t.Errorf("got %s %q", got.Status, got.Error)
	}
}

func TestStore_TerminalJobsDropRawData(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.SaveJob(ctx, &jobs.AnalysisJob{JobID: "j1", UserID: "alice", Bundle: []byte(`{}`), UserRef: "user_1", Status: jobs.JobStatusRunning})
	running, _ := store.GetJob(ctx, "j1")
	if running.UserID != "alice" || len(running.Bundle) == 0 {
		t.Fatalf("running job lost its input: %+v", running)
	}

	_ = store.SaveJob(ctx, &jobs.AnalysisJob{JobID: "j1", UserID: "alice", Bundle: []byte(`{}`), UserRef: "user_1", Status: jobs.JobStatusCompleted})
	done, _ := store.GetJob(ctx, "j1")
	if done.UserID != "" || done.Bundle != nil {
		t.Errorf("completed job kept raw data: %q %s", done.UserID, done.Bundle)
	}
	if done.UserRef != "user_1" {
		t.Errorf("UserRef = %q, want user_1", done.UserRef)
	}
}

func TestStore_UpdateJobStatusStampsTimes(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return at }

	_ = store.SaveJob(ctx, &jobs.AnalysisJob{JobID: "j1", UserID: "alice", Status: jobs.JobStatusPending})

	_ = store.UpdateJobStatus(ctx, "j1", jobs.JobStatusRunning, "")
	got, _ := store.GetJob(ctx, "j1")
	if got.StartedAt == nil || !got.StartedAt.Equal(at) || got.CompletedAt != nil {
		t.Fatalf("running stamps = %v %v", got.StartedAt, got.CompletedAt)
	}

	store.now = func() time.Time { return at.Add(time.Minute) }
	_ = store.UpdateJobStatus(ctx, "j1", jobs.JobStatusFailed, "analysis unavailable")
	got, _ = store.GetJob(ctx, "j1")
	if !got.StartedAt.Equal(at) {
		t.Errorf("StartedAt moved to %v", got.StartedAt)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(at.Add(time.Minute)) {
		t.Errorf("CompletedAt = %v", got.CompletedAt)
	}
	if got.UserID != "" {
		t.Errorf("failed job kept user id %q", got.UserID)
	}
}

func TestStore_CopiesPointerFields(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	job := &jobs.AnalysisJob{JobID: "j1", From: &from, Status: jobs.JobStatusPending}
	_ = store.SaveJob(ctx, job)
	*job.From = from.AddDate(1, 0, 0)

	got, _ := store.GetJob(ctx, "j1")
	if !got.From.Equal(from) {
		t.Errorf("stored From changed through caller pointer: %v", got.From)
	}
}

func TestStore_SaveJobRequiresID(t *testing.T) {
	err := NewStore().SaveJob(context.Background(), nil)
	if err == nil || err.Error() != "SaveJob: job id is required" {
		t.Errorf("SaveJob(nil) = %v", err)
	}
}
