package repro

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/talespin/internal/story/encoding"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/save"
	"github.com/louisbranch/talespin/internal/story/script"
)

// StepTrace records the engine before one step of a run.
type StepTrace struct {
	Step           int     `json:"step"`
	EventIP        int     `json:"event_ip"`
	EventKind      string  `json:"event_kind"`
	EventSignature string  `json:"event_signature"`
	Background     *string `json:"visual_background"`
	Music          *string `json:"visual_music"`
	CharacterCount int     `json:"character_count"`
}

// MonitorResult is the outcome of one monitor.
type MonitorResult struct {
	MonitorID string `json:"monitor_id"`
	Matched   bool   `json:"matched"`
	Detail    string `json:"detail"`
}

// Report is the outcome of a run.
type Report struct {
	Schema          string          `json:"schema"`
	StopReason      StopReason      `json:"stop_reason"`
	StopMessage     string          `json:"stop_message"`
	FailingEventIP  *int            `json:"failing_event_ip,omitempty"`
	ExecutedSteps   int             `json:"executed_steps"`
	MaxSteps        int             `json:"max_steps"`
	Steps           []StepTrace     `json:"steps"`
	MonitorResults  []MonitorResult `json:"monitor_results"`
	MatchedMonitors []string        `json:"matched_monitors"`
	SignatureMatch  bool            `json:"signature_match"`
	OracleTriggered bool            `json:"oracle_triggered"`
	// StateDigest is the hex SHA-256 of the final save, empty when no
	// engine was created.
	StateDigest string `json:"state_digest,omitempty"`
}

// Run compiles the case script under p and drives it until it finishes,
// fails or hits the step limit. At each choice the next route entry is
// taken, defaulting to 0 and clamped to the last option.
func Run(c Case, p policy.Policy) Report {
	report := Report{
		Schema:          ReportSchema,
		MaxSteps:        c.maxSteps(),
		Steps:           []StepTrace{},
		MonitorResults:  []MonitorResult{},
		MatchedMonitors: []string{},
	}

	compiled, err := script.Compile(c.Script, p)
	if err != nil {
		report.StopReason = StopCompileError
		report.StopMessage = "compile failed: " + err.Error()
		return finish(c, report)
	}
	e, err := engine.New(compiled)
	if err != nil {
		report.StopReason = StopInitError
		report.StopMessage = "engine init failed: " + err.Error()
		return finish(c, report)
	}

	report.StopReason, report.StopMessage = drive(c, e, &report)
	if data, err := save.Save(e); err == nil {
		report.StateDigest = encoding.Sum(data).Hex()
	}
	return finish(c, report)
}

func drive(c Case, e *engine.Engine, report *Report) (StopReason, string) {
	cursor := 0
	for steps := 0; ; steps++ {
		if steps >= report.MaxSteps {
			return StopStepLimit, fmt.Sprintf("step limit reached (%d)", report.MaxSteps)
		}
		if e.Finished() {
			return StopFinished, "end of script"
		}
		ev, err := e.CurrentEvent()
		if err != nil {
			return StopRuntimeError, "current event: " + err.Error()
		}

		ip := e.Position()
		visual := e.VisualState()
		report.Steps = append(report.Steps, StepTrace{
			Step:           steps,
			EventIP:        ip,
			EventKind:      string(ev.Kind()),
			EventSignature: Signature(ev),
			Background:     visual.Background,
			Music:          visual.Music,
			CharacterCount: len(visual.Characters),
		})
		report.ExecutedSteps = len(report.Steps)

		if choice, ok := ev.(event.Choice); ok {
			selected := 0
			if cursor < len(c.ChoiceRoute) {
				selected = c.ChoiceRoute[cursor]
			}
			cursor++
			if selected > len(choice.Options)-1 {
				selected = len(choice.Options) - 1
			}
			if selected < 0 {
				selected = 0
			}
			err = e.Choose(selected)
		} else {
			err = e.Step()
		}
		if err != nil {
			report.FailingEventIP = &ip
			return StopRuntimeError, "step failed: " + err.Error()
		}
	}
}

func finish(c Case, report Report) Report {
	report.SignatureMatch = matchesSignature(c.Oracle, report)
	for _, m := range c.Oracle.Monitors {
		result := evaluate(m, report)
		report.MonitorResults = append(report.MonitorResults, result)
		if result.Matched {
			report.MatchedMonitors = append(report.MatchedMonitors, result.MonitorID)
		}
	}
	report.OracleTriggered = report.SignatureMatch || len(report.MatchedMonitors) > 0
	return report
}

func matchesSignature(o Oracle, r Report) bool {
	kind := strings.ToLower(strings.TrimSpace(o.ExpectedEventKind))
	if o.ExpectedStopReason == "" && o.ExpectedEventIP == nil && kind == "" {
		return false
	}
	if o.ExpectedStopReason != "" && o.ExpectedStopReason != r.StopReason {
		return false
	}
	if o.ExpectedEventIP != nil {
		failedThere := r.FailingEventIP != nil && *r.FailingEventIP == *o.ExpectedEventIP
		if !failedThere && !visited(r.Steps, *o.ExpectedEventIP) {
			return false
		}
	}
	if kind != "" {
		matched := false
		for _, step := range r.Steps {
			if o.ExpectedEventIP != nil && step.EventIP != *o.ExpectedEventIP {
				continue
			}
			if strings.EqualFold(step.EventKind, kind) {
				matched = true
			}
			if o.ExpectedEventIP != nil {
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func visited(steps []StepTrace, ip int) bool {
	for _, step := range steps {
		if step.EventIP == ip {
			return true
		}
	}
	return false
}

func evaluate(m Monitor, r Report) MonitorResult {
	result := MonitorResult{MonitorID: m.MonitorID}
	trace, ok := stepAt(r.Steps, m.Step)
	switch m.Type {
	case MonitorEventKindAtStep:
		want := strings.ToLower(strings.TrimSpace(deref(m.Expected)))
		result.Matched = ok && strings.EqualFold(trace.EventKind, want)
		result.Detail = fmt.Sprintf("step=%d expected_kind=%q", m.Step, want)
	case MonitorEventSignatureContains:
		result.Matched = ok && strings.Contains(trace.EventSignature, m.Needle)
		result.Detail = fmt.Sprintf("step=%d needle=%q", m.Step, m.Needle)
	case MonitorVisualBackgroundAtStep:
		got := trace.Background
		result.Matched = ok && equalOptional(got, m.Expected)
		result.Detail = fmt.Sprintf("step=%d expected_bg=%s got=%s", m.Step, quoteOptional(m.Expected), quoteOptional(got))
	case MonitorVisualMusicAtStep:
		got := trace.Music
		result.Matched = ok && equalOptional(got, m.Expected)
		result.Detail = fmt.Sprintf("step=%d expected_music=%s got=%s", m.Step, quoteOptional(m.Expected), quoteOptional(got))
	case MonitorCharacterCountAtLeast:
		result.Matched = ok && trace.CharacterCount >= m.Min
		result.Detail = fmt.Sprintf("step=%d min_chars=%d got=%d", m.Step, m.Min, trace.CharacterCount)
	case MonitorStopMessageContains:
		result.Matched = strings.Contains(r.StopMessage, m.Needle)
		result.Detail = fmt.Sprintf("stop_message contains %q", m.Needle)
	case MonitorStalledSignatureWindow:
		window := max(m.Window, 2)
		streak := 1
		for i := 1; i < len(r.Steps); i++ {
			if r.Steps[i].EventSignature != r.Steps[i-1].EventSignature {
				streak = 1
				continue
			}
			streak++
			if streak >= window {
				result.Matched = true
				break
			}
		}
		result.Detail = "window=" + strconv.Itoa(window)
	default:
		result.Detail = fmt.Sprintf("unknown monitor type %q", m.Type)
	}
	return result
}

func stepAt(steps []StepTrace, step int) (StepTrace, bool) {
	if step < 0 || step >= len(steps) {
		return StepTrace{}, false
	}
	return steps[step], true
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func quoteOptional(s *string) string {
	if s == nil {
		return "none"
	}
	return strconv.Quote(*s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
