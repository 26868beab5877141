package model

import "time"

// SourceCall is one row of the durable invocation audit log.
type SourceCall struct {
	ID       int64         `json:"id,omitempty"`
	Source   string        `json:"source"`
	Code     string        `json:"code"`
	Success  bool          `json:"success"`
	Latency  time.Duration `json:"latency_ms"`
	Error    string        `json:"error,omitempty"`
	CalledAt time.Time     `json:"called_at"`
}
