package script

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/encoding"
	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/policy"
)

// Compile migrates, parses and compiles a JSON script. The result depends
// only on data and p.
func Compile(data []byte, p policy.Policy) (*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if err := policy.CheckLimit(policy.LimitScriptBytes, p.Limits.MaxScriptBytes, len(data)); err != nil {
		return nil, err
	}
	migrated, _, err := Migrate(data)
	if err != nil {
		return nil, err
	}
	raw, err := ParseRaw(migrated)
	if err != nil {
		return nil, err
	}
	return CompileRaw(raw, p)
}

// CompileRaw compiles an already decoded document. The document must use
// the current schema version; an empty version is taken as current.
func CompileRaw(raw Raw, p policy.Policy) (*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	if raw.SchemaVersion != "" && raw.SchemaVersion != SchemaVersion {
		return nil, unsupportedVersion(raw.SchemaVersion)
	}

	// Structure.
	labels := make(map[string]int, len(raw.Labels))
	for _, label := range raw.Labels {
		if _, dup := labels[label.Name]; dup {
			return nil, apperrors.WithMetadata(apperrors.CodeDuplicateLabel,
				fmt.Sprintf("duplicate label %q", label.Name), map[string]string{"Label": label.Name})
		}
		labels[label.Name] = label.Index
	}
	decoded := make([]pending, len(raw.Events))
	for i, data := range raw.Events {
		pe, err := decodeEvent(i, data)
		if err != nil {
			return nil, err
		}
		decoded[i] = pe
	}

	// Resolution.
	end := len(decoded)
	for _, label := range raw.Labels {
		if label.Index < 0 || label.Index >= end {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidTarget,
				fmt.Sprintf("label %q points at %d, outside [0, %d)", label.Name, label.Index, end),
				map[string]string{"Index": strconv.Itoa(label.Index), "Target": strconv.Quote(label.Name)})
		}
	}
	events := make([]event.Event, end)
	for i, pe := range decoded {
		resolved := make([]int, len(pe.targets))
		for j, ref := range pe.targets {
			target, ok := resolveTarget(ref, labels, end)
			if !ok {
				return nil, invalidTarget(i, ref.String())
			}
			resolved[j] = target
		}
		events[i] = withTargets(pe.ev, resolved)
	}

	// Presence.
	if _, ok := labels[StartLabel]; !ok {
		return nil, apperrors.New(apperrors.CodeMissingStartLabel, "missing start label")
	}

	// Policy.
	if err := checkPolicy(events, raw.Labels, p); err != nil {
		return nil, err
	}

	// Choices.
	for i, ev := range events {
		if choice, ok := ev.(event.Choice); ok && len(choice.Options) == 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeEmptyChoiceOptions,
				fmt.Sprintf("event %d: choice has no options", i),
				map[string]string{"Index": strconv.Itoa(i)})
		}
	}

	bin, err := encodeBinary(events, labels)
	if err != nil {
		return nil, err
	}
	return &Compiled{events: events, labels: labels, bin: bin, id: encoding.Sum(bin)}, nil
}

func unsupportedVersion(version string) error {
	return apperrors.WithMetadata(apperrors.CodeUnsupportedSchemaVersion,
		fmt.Sprintf("unsupported script schema version %q", version),
		map[string]string{"Version": version})
}

func resolveTarget(ref targetRef, labels map[string]int, end int) (int, bool) {
	if ref.named {
		index, ok := labels[ref.name]
		return index, ok
	}
	return ref.index, ref.index >= 0 && ref.index < end
}

func withTargets(ev event.Event, targets []int) event.Event {
	switch e := ev.(type) {
	case event.Jump:
		e.Target = targets[0]
		return e
	case event.JumpIf:
		e.Target = targets[0]
		return e
	case event.Choice:
		for i := range e.Options {
			e.Options[i].Target = targets[i]
		}
		return e
	case event.Dialogue, event.Scene, event.SetFlag, event.SetVar, event.Patch:
		return e
	default:
		panic(fmt.Sprintf("script: unhandled event type %T", ev))
	}
}
