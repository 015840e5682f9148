package script

import (
	"encoding/json"
	"fmt"
	"strings"
)

// legacyVersion is assumed for documents without script_schema_version.
const legacyVersion = "0.9"

// MigrationStep records one schema upgrade applied to a document.
type MigrationStep struct {
	StepID      string `json:"step_id"`
	FromVersion string `json:"from_version"`
	ToVersion   string `json:"to_version"`
	Changed     bool   `json:"changed"`
}

// MigrationReport describes how a document was upgraded.
type MigrationReport struct {
	FromVersion string          `json:"from_version"`
	ToVersion   string          `json:"to_version"`
	Steps       []MigrationStep `json:"steps,omitempty"`
}

// Changed reports whether any step modified the document.
func (r MigrationReport) Changed() bool {
	for _, step := range r.Steps {
		if step.Changed {
			return true
		}
	}
	return false
}

var legacyEventTypes = map[string]string{
	"setflag": "set_flag",
	"setvar":  "set_var",
	"jumpif":  "jump_if",
	"goto":    "jump",
}

// Migrate upgrades a script document to the current schema. Current
// documents are returned unchanged; 0.x documents are rewritten; any other
// version is UNSUPPORTED_SCHEMA_VERSION. The input is never modified.
func Migrate(data []byte) ([]byte, MigrationReport, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil || root == nil {
		return nil, MigrationReport{}, malformed(-1, "script must be a JSON object")
	}

	version := legacyVersion
	if rawVersion, ok := root["script_schema_version"]; ok {
		if err := json.Unmarshal(rawVersion, &version); err != nil {
			return nil, MigrationReport{}, malformed(-1, "script_schema_version must be a string")
		}
	}
	report := MigrationReport{FromVersion: version, ToVersion: version}

	switch {
	case version == SchemaVersion:
		return data, report, nil
	case strings.HasPrefix(version, "0."):
	default:
		return nil, report, unsupportedVersion(version)
	}

	changed, err := migrateLegacy(root)
	if err != nil {
		return nil, report, err
	}
	root["script_schema_version"] = json.RawMessage(`"` + SchemaVersion + `"`)
	out, err := json.Marshal(root)
	if err != nil {
		return nil, report, fmt.Errorf("encode migrated script: %w", err)
	}
	report.ToVersion = SchemaVersion
	report.Steps = []MigrationStep{{
		StepID:      "script_legacy_to_1_0",
		FromVersion: version,
		ToVersion:   SchemaVersion,
		Changed:     changed,
	}}
	return out, report, nil
}

func migrateLegacy(root map[string]json.RawMessage) (bool, error) {
	changed := false
	if _, ok := root["events"]; !ok {
		root["events"] = json.RawMessage(`[]`)
		changed = true
	}
	if _, ok := root["labels"]; !ok {
		root["labels"] = json.RawMessage(`{"start":0}`)
		changed = true
	}

	var events []map[string]json.RawMessage
	if err := json.Unmarshal(root["events"], &events); err != nil {
		return false, malformed(-1, "events must be an array of objects")
	}
	eventsChanged := false
	for i, ev := range events {
		if ev == nil {
			return false, malformed(i, "event must be an object")
		}
		var kind string
		if err := json.Unmarshal(ev["type"], &kind); err != nil {
			return false, malformed(i, "type is required")
		}
		normalized := strings.ToLower(kind)
		if alias, ok := legacyEventTypes[normalized]; ok {
			normalized = alias
		}
		if normalized != kind {
			typeJSON, err := json.Marshal(normalized)
			if err != nil {
				return false, fmt.Errorf("encode event type: %w", err)
			}
			ev["type"] = typeJSON
			eventsChanged = true
		}
	}
	if eventsChanged {
		encoded, err := json.Marshal(events)
		if err != nil {
			return false, fmt.Errorf("encode migrated events: %w", err)
		}
		root["events"] = encoded
		changed = true
	}
	return changed, nil
}
