// Package repro replays a story script deterministically and checks the
// run against an oracle, so a bug report can carry its own reproduction.
package repro

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// CaseSchema identifies repro case documents.
	CaseSchema = "talespin.repro_case.v1"
	// ReportSchema identifies run reports.
	ReportSchema = "talespin.repro_run_report.v1"
	// DefaultMaxSteps bounds a run when the case does not.
	DefaultMaxSteps = 2048
)

// StopReason says why a run ended.
type StopReason string

const (
	StopFinished     StopReason = "finished"
	StopStepLimit    StopReason = "step_limit"
	StopRuntimeError StopReason = "runtime_error"
	StopCompileError StopReason = "compile_error"
	StopInitError    StopReason = "init_error"
)

// Case is a self-contained reproduction: a script, a route through its
// choices, and what the reporter expected to observe.
type Case struct {
	Schema        string            `json:"schema"`
	Title         string            `json:"title"`
	CreatedUnixMs int64             `json:"created_unix_ms,omitempty"`
	Script        json.RawMessage   `json:"script"`
	MaxSteps      int               `json:"max_steps,omitempty"`
	ChoiceRoute   []int             `json:"choice_route,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	Oracle        Oracle            `json:"oracle"`
	Notes         string            `json:"notes,omitempty"`
}

// Oracle describes the failure signature a case expects.
type Oracle struct {
	ExpectedStopReason StopReason `json:"expected_stop_reason,omitempty"`
	ExpectedEventIP    *int       `json:"expected_event_ip,omitempty"`
	ExpectedEventKind  string     `json:"expected_event_kind,omitempty"`
	Monitors           []Monitor  `json:"monitors,omitempty"`
}

// MonitorType selects how a Monitor is evaluated.
type MonitorType string

const (
	MonitorEventKindAtStep        MonitorType = "event_kind_at_step"
	MonitorEventSignatureContains MonitorType = "event_signature_contains"
	MonitorVisualBackgroundAtStep MonitorType = "visual_background_at_step"
	MonitorVisualMusicAtStep      MonitorType = "visual_music_at_step"
	MonitorCharacterCountAtLeast  MonitorType = "character_count_at_least"
	MonitorStopMessageContains    MonitorType = "stop_message_contains"
	MonitorStalledSignatureWindow MonitorType = "stalled_signature_window"
)

// Monitor is one observation check. Which fields matter depends on Type.
type Monitor struct {
	Type      MonitorType `json:"type"`
	MonitorID string      `json:"monitor_id"`
	Step      int         `json:"step,omitempty"`
	Expected  *string     `json:"expected,omitempty"`
	Needle    string      `json:"needle,omitempty"`
	Min       int         `json:"min,omitempty"`
	Window    int         `json:"window,omitempty"`
}

// NewCase starts a case for script with default limits.
func NewCase(title string, script json.RawMessage) Case {
	return Case{
		Schema:        CaseSchema,
		Title:         title,
		CreatedUnixMs: time.Now().UnixMilli(),
		Script:        script,
		MaxSteps:      DefaultMaxSteps,
	}
}

// ParseCase decodes and checks a case document.
func ParseCase(data []byte) (Case, error) {
	var c Case
	if err := json.Unmarshal(data, &c); err != nil {
		return Case{}, fmt.Errorf("invalid repro json: %w", err)
	}
	if c.Schema != CaseSchema {
		return Case{}, fmt.Errorf("unsupported repro schema %q", c.Schema)
	}
	if len(c.Script) == 0 {
		return Case{}, fmt.Errorf("repro case script is required")
	}
	for i, m := range c.Oracle.Monitors {
		if err := m.validate(); err != nil {
			return Case{}, fmt.Errorf("monitor %d: %w", i, err)
		}
	}
	return c, nil
}

func (m Monitor) validate() error {
	switch m.Type {
	case MonitorEventKindAtStep, MonitorEventSignatureContains, MonitorVisualBackgroundAtStep,
		MonitorVisualMusicAtStep, MonitorCharacterCountAtLeast, MonitorStopMessageContains,
		MonitorStalledSignatureWindow:
	default:
		return fmt.Errorf("unknown monitor type %q", m.Type)
	}
	if m.MonitorID == "" {
		return fmt.Errorf("monitor_id is required")
	}
	if m.Step < 0 {
		return fmt.Errorf("step must not be negative")
	}
	return nil
}

func (c Case) maxSteps() int {
	if c.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return c.MaxSteps
}
