// Package aicall records and reports every AI extraction attempt.
package aicall

import (
	"time"
)

// Status is the outcome of an extraction attempt
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// InputType is the kind of document sent to the model
type InputType string

const (
	InputImage InputType = "image"
	InputPDF   InputType = "pdf"
)

// Record is one logged extraction attempt. Records are never updated.
type Record struct {
	ID         int64     `json:"id"`
	Model      string    `json:"model"`
	InputType  InputType `json:"input_type"`
	MIMEType   string    `json:"mime_type"`
	Filename   string    `json:"filename,omitempty"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary aggregates every logged attempt
type Summary struct {
	SuccessCount int   `json:"successCount"`
	ErrorCount   int   `json:"errorCount"`
	AvgDuration  int64 `json:"avgDuration"`
}

// ErrorRate is the rounded percentage of failed attempts
func (s Summary) ErrorRate() int {
	total := s.SuccessCount + s.ErrorCount
	if total == 0 {
		return 0
	}
	return int(float64(s.ErrorCount)*100/float64(total) + 0.5)
}

// List is one page of records plus the total count and summary
type List struct {
	Items    []*Record `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Summary  Summary   `json:"summary"`
}
