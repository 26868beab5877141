package model

import "time"

// SourceResult records one successful source invocation for provenance.
type SourceResult struct {
	Agency       string        `json:"agency"`
	Source       string        `json:"source"`
	URL          string        `json:"url"`
	Latency      time.Duration `json:"latency_ms"`
	SuccessRate  float64       `json:"success_rate"`
	UsedFallback bool          `json:"used_fallback,omitempty"`
	FallbackName string        `json:"fallback_source,omitempty"`
}

// SourceFailure records one failed source invocation for provenance.
type SourceFailure struct {
	Agency       string `json:"agency"`
	Source       string `json:"source"`
	Error        string `json:"error"`
	FailureCount int    `json:"failure_count"`
}

// RequirementItem is a single certification, document, labeling, or
// source-of-record line synthesized from a successful source result.
type RequirementItem struct {
	Name        string `json:"name"`
	Agency      string `json:"agency"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Requirements groups the aggregated line items by kind.
type Requirements struct {
	Certifications []RequirementItem `json:"certifications"`
	Documents      []RequirementItem `json:"documents"`
	Labeling       []RequirementItem `json:"labeling"`
	Sources        []RequirementItem `json:"sources"`
}

// Report is the aggregated output of one resolution run. Reports are
// not persisted by the engine; callers may persist them downstream.
type Report struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	ProductName string          `json:"product_name"`
	Agencies    []string        `json:"agencies_queried"`
	Working     []SourceResult  `json:"working_sources"`
	Failed      []SourceFailure `json:"failed_sources"`
	Requirement Requirements    `json:"requirements"`
	Confidence  float64         `json:"confidence"`
	Trace       []string        `json:"trace"`
	Errors      []string        `json:"errors"`
	StartedAt   time.Time       `json:"started_at"`
	ElapsedMS   int64           `json:"elapsed_ms"`
}
