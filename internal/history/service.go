package history

import (
	"context"
	"errors"
)

var ErrInvalidRequest = errors.New("history: invalid request")

// Repository abstracts archive storage.
//
// IMPORTANT:
// - The archive is append-only; there are no Update/Delete methods.
// - Implementations must enforce tenant filtering.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, tenantID string, r TimeRange) ([]Record, error)
}

// Service archives terminal calls and answers wait-time queries.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Archive stores one terminal call. Re-archiving the same call id is a
// no-op at the repository level, keeping ingestion replay idempotent.
func (s *Service) Archive(ctx context.Context, rec Record) error {
	if s.repo == nil {
		return errors.New("history: repository not configured")
	}
	if rec.TenantID == "" || rec.CallID == "" {
		return ErrInvalidRequest
	}
	return s.repo.Append(ctx, rec)
}

// Summarize aggregates archived calls for one tenant over a window.
func (s *Service) Summarize(ctx context.Context, tenantID string, r TimeRange) (Summary, error) {
	if tenantID == "" {
		return Summary{}, ErrInvalidRequest
	}
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("history: repository not configured")
	}

	rows, err := s.repo.List(ctx, tenantID, r)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{TenantID: tenantID}
	totalWait := 0
	for _, rec := range rows {
		out.TotalCalls++
		totalWait += rec.WaitTimeSeconds
		if rec.WaitTimeSeconds > out.MaxWaitSeconds {
			out.MaxWaitSeconds = rec.WaitTimeSeconds
		}
		out.TotalTalkSeconds += rec.DurationSeconds
		if rec.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch rec.Status {
		case "completed":
			out.CompletedCalls++
		case "missed":
			out.MissedCalls++
		case "abandoned":
			out.AbandonedCalls++
		case "failed":
			out.FailedCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageWaitSeconds = totalWait / out.TotalCalls
		out.AverageTalkSeconds = out.TotalTalkSeconds / out.TotalCalls
	}
	return out, nil
}

// List returns the raw archived rows for one tenant over a window.
func (s *Service) List(ctx context.Context, tenantID string, r TimeRange) ([]Record, error) {
	if tenantID == "" || r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("history: repository not configured")
	}
	return s.repo.List(ctx, tenantID, r)
}
