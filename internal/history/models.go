package history

import "time"

// Record is one archived call. Items are written once, when a call reaches
// a terminal status, and never updated.
type Record struct {
	CallID         string `json:"call_id" db:"call_id"`
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	Provider       string `json:"provider" db:"provider"`
	ExternalCallID string `json:"external_call_id" db:"external_call_id"`
	Direction      string `json:"direction" db:"direction"`

	CallerPhone string `json:"caller_phone" db:"caller_phone"`
	CallerName  string `json:"caller_name,omitempty" db:"caller_name"`

	CallType string `json:"call_type" db:"call_type"`
	Priority string `json:"priority" db:"priority"`
	Status   string `json:"status" db:"status"`

	AnsweredBy      string `json:"answered_by,omitempty" db:"answered_by"`
	WaitTimeSeconds int    `json:"wait_time_seconds" db:"wait_time_seconds"`
	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TimeRange bounds a summary query; To must be after From.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Summary aggregates a tenant's archived calls over a window.
type Summary struct {
	TenantID string `json:"tenant_id"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	AbandonedCalls int `json:"abandoned_calls"`
	FailedCalls    int `json:"failed_calls"`
	RecordedCalls  int `json:"recorded_calls"`

	AverageWaitSeconds int `json:"average_wait_seconds"`
	MaxWaitSeconds     int `json:"max_wait_seconds"`

	TotalTalkSeconds   int `json:"total_talk_seconds"`
	AverageTalkSeconds int `json:"average_talk_seconds"`
}
