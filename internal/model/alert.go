// internal/model/alert.go
package model

import "time"

// Severity classifies an alert for presentation.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeveritySuccess, SeverityWarning, SeverityError, SeverityInfo:
		return true
	}
	return false
}

// Alert is a structured notification produced by the health monitor.
type Alert struct {
	Condition string         `json:"condition,omitempty"`
	Severity  Severity       `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// DailySummary aggregates one day of pipeline events. It is derived and
// recomputed on demand, never stored.
type DailySummary struct {
	Date          string         `json:"date"`
	Counts        map[string]int `json:"counts"`
	TotalEvents   int            `json:"total_events"`
	Published     int            `json:"published"`
	Failed        int            `json:"failed"`
	EstimatedCost float64        `json:"estimated_cost"`
}

// Credential is an external platform credential with a known expiry.
type Credential struct {
	Platform  Platform  `json:"platform"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}
