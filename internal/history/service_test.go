package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func record(callID, status string, wait, talk int, at time.Time) Record {
	return Record{
		CallID:          callID,
		TenantID:        "tenant-1",
		Provider:        "hosted_gateway",
		Direction:       "inbound",
		CallerPhone:     "+15550100",
		Status:          status,
		WaitTimeSeconds: wait,
		DurationSeconds: talk,
		CreatedAt:       at,
	}
}

func TestArchiveIsIdempotentPerCall(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	rec := record("call-1", "completed", 10, 120, base)
	if err := svc.Archive(ctx, rec); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	rec.Status = "failed"
	if err := svc.Archive(ctx, rec); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	rows := repo.All()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Status != "completed" {
		t.Fatalf("re-archive overwrote the record: %+v", rows[0])
	}
}

func TestArchiveValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Archive(context.Background(), Record{TenantID: "tenant-1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing call id: %v", err)
	}
	if err := svc.Archive(context.Background(), Record{CallID: "call-1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing tenant: %v", err)
	}
}

func TestSummarizeAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	rows := []Record{
		record("call-1", "completed", 10, 100, base.Add(time.Hour)),
		record("call-2", "completed", 30, 200, base.Add(2*time.Hour)),
		record("call-3", "missed", 50, 0, base.Add(3*time.Hour)),
		record("call-4", "abandoned", 6, 0, base.Add(4*time.Hour)),
		record("call-5", "failed", 0, 0, base.Add(5*time.Hour)),
	}
	rows[1].RecordingURL = "https://cdn.example.com/rec/call-2.mp3"
	for _, r := range rows {
		if err := svc.Archive(ctx, r); err != nil {
			t.Fatalf("Archive %s: %v", r.CallID, err)
		}
	}
	// Outside the window, must not count.
	if err := svc.Archive(ctx, record("call-6", "completed", 1, 1, base.Add(48*time.Hour))); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	sum, err := svc.Summarize(ctx, "tenant-1", TimeRange{From: base, To: base.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.TotalCalls != 5 {
		t.Fatalf("total = %d, want 5", sum.TotalCalls)
	}
	if sum.CompletedCalls != 2 || sum.MissedCalls != 1 || sum.AbandonedCalls != 1 || sum.FailedCalls != 1 {
		t.Fatalf("status counts wrong: %+v", sum)
	}
	if sum.RecordedCalls != 1 {
		t.Fatalf("recorded = %d, want 1", sum.RecordedCalls)
	}
	if sum.AverageWaitSeconds != 19 || sum.MaxWaitSeconds != 50 {
		t.Fatalf("wait stats wrong: avg=%d max=%d", sum.AverageWaitSeconds, sum.MaxWaitSeconds)
	}
	if sum.TotalTalkSeconds != 300 || sum.AverageTalkSeconds != 60 {
		t.Fatalf("talk stats wrong: %+v", sum)
	}
}

func TestSummarizeRejectsBadWindow(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	if _, err := svc.Summarize(ctx, "", TimeRange{From: base, To: base.Add(time.Hour)}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing tenant: %v", err)
	}
	if _, err := svc.Summarize(ctx, "tenant-1", TimeRange{From: base}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("zero To: %v", err)
	}
	if _, err := svc.Summarize(ctx, "tenant-1", TimeRange{From: base.Add(time.Hour), To: base}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("inverted window: %v", err)
	}
}

func TestListFiltersTenantAndWindow(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Archive(ctx, record("call-1", "completed", 1, 1, base.Add(time.Hour))); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	other := record("call-2", "completed", 1, 1, base.Add(time.Hour))
	other.TenantID = "tenant-2"
	if err := svc.Archive(ctx, other); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	rows, err := svc.List(ctx, "tenant-1", TimeRange{From: base, To: base.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || rows[0].CallID != "call-1" {
		t.Fatalf("rows = %+v", rows)
	}
}
