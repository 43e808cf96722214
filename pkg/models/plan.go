package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Generation modes recorded on a GenerationRun.
const (
	ModeSync   = "sync"
	ModeStream = "stream"
)

// AnalysisOptions are the user-chosen knobs rendered into the prompt.
type AnalysisOptions struct {
	Focus                       string `json:"focus" validate:"max=100"`
	IncludeSecurity             bool   `json:"security"`
	IncludeExternalDependencies bool   `json:"include_external"`
}

// DefaultAnalysisOptions returns focus "All" with both inclusions enabled.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		Focus:                       "All",
		IncludeSecurity:             true,
		IncludeExternalDependencies: true,
	}
}

// UnmarshalJSON applies the defaults to any field absent from the payload.
func (o *AnalysisOptions) UnmarshalJSON(data []byte) error {
	type raw AnalysisOptions
	v := raw(DefaultAnalysisOptions())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Focus == "" {
		v.Focus = "All"
	}
	*o = AnalysisOptions(v)
	return nil
}

// NormalizedLogEntry is the uniform projection of one sampled document.
type NormalizedLogEntry struct {
	Doc       int    `json:"doc"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
	Service   string `json:"service"`
}

// GenerationMetrics describes one blocking generation.
type GenerationMetrics struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	PlanLength      *int      `json:"plan_length,omitempty"`
}

// GenerationRun is the audit record persisted for each generation request.
// The plan text itself is never stored.
type GenerationRun struct {
	ID                          uuid.UUID `json:"id"`
	IndexName                   string    `json:"index_name"`
	Mode                        string    `json:"mode"`
	Focus                       string    `json:"focus"`
	IncludeSecurity             bool      `json:"include_security"`
	IncludeExternalDependencies bool      `json:"include_external"`
	Provider                    string    `json:"provider"`
	ModelID                     string    `json:"model_id"`
	Success                     bool      `json:"success"`
	ErrorMessage                *string   `json:"error,omitempty"`
	PlanLength                  *int      `json:"plan_length,omitempty"`
	DurationSeconds             float64   `json:"duration_seconds"`
	StartedAt                   time.Time `json:"started_at"`
	EndedAt                     time.Time `json:"ended_at"`
}

// SampleSummary aggregates a normalized sample for display.
type SampleSummary struct {
	Entries     int              `json:"entries"`
	ByLevel     map[string]int   `json:"by_level"`
	ByService   map[string]int   `json:"by_service"`
	TopPatterns []MessagePattern `json:"top_patterns"`
}

// MessagePattern is a normalized message shape and how often it occurs.
type MessagePattern struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
	Level   string `json:"level"`
	Sample  string `json:"sample"`
}
