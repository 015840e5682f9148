package script

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Raw is a decoded but unvalidated script document.
type Raw struct {
	SchemaVersion string
	Events        []json.RawMessage
	// Labels keeps declaration order and any duplicates so the compiler can
	// report them.
	Labels []Label
}

// Label binds a name to an event index.
type Label struct {
	Name  string
	Index int
}

type document struct {
	SchemaVersion *string            `json:"script_schema_version"`
	Events        *[]json.RawMessage `json:"events"`
	Labels        json.RawMessage    `json:"labels"`
}

// ParseRaw decodes a current-schema script document.
func ParseRaw(data []byte) (Raw, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Raw{}, malformed(-1, "invalid json: %v", err)
	}
	if doc.Events == nil {
		return Raw{}, malformed(-1, "events is required")
	}
	labels, err := parseLabels(doc.Labels)
	if err != nil {
		return Raw{}, err
	}
	raw := Raw{Events: *doc.Events, Labels: labels}
	if doc.SchemaVersion != nil {
		raw.SchemaVersion = *doc.SchemaVersion
	}
	return raw, nil
}

func parseLabels(data json.RawMessage) ([]Label, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, malformed(-1, "labels: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, malformed(-1, "labels must be an object")
	}

	var labels []Label
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(-1, "labels: %v", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, malformed(-1, "labels: unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, malformed(-1, "label %q: %v", name, err)
		}
		number, ok := value.(json.Number)
		if !ok {
			return nil, malformed(-1, "label %q index must be an integer", name)
		}
		index, err := strconv.Atoi(number.String())
		if err != nil {
			return nil, malformed(-1, "label %q index must be an integer", name)
		}
		labels = append(labels, Label{Name: name, Index: index})
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed(-1, "labels: %v", err)
	}
	return labels, nil
}
