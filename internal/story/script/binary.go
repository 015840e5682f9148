package script

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/encoding"
	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/policy"
)

// Compiled binary layout: magic | u16 LE version | u32 LE payload length |
// canonical JSON payload with index targets.
const (
	BinaryMagic     = "VNSC"
	BinaryVersion   = uint16(1)
	binaryHeaderLen = len(BinaryMagic) + 2 + 4
)

type compiledDocument struct {
	SchemaVersion string           `json:"script_schema_version"`
	Events        []map[string]any `json:"events"`
	Labels        map[string]int   `json:"labels"`
}

func encodeBinary(events []event.Event, labels map[string]int) ([]byte, error) {
	doc := compiledDocument{
		SchemaVersion: SchemaVersion,
		Events:        make([]map[string]any, len(events)),
		Labels:        labels,
	}
	for i, ev := range events {
		doc.Events[i] = eventDocument(ev)
	}
	payload, err := encoding.CanonicalJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("encode compiled script: %w", err)
	}

	out := make([]byte, binaryHeaderLen, binaryHeaderLen+len(payload))
	copy(out, BinaryMagic)
	binary.LittleEndian.PutUint16(out[4:6], BinaryVersion)
	binary.LittleEndian.PutUint32(out[6:10], uint32(len(payload)))
	return append(out, payload...), nil
}

// Decode reloads a compiled binary. The payload is recompiled under p and
// must re-encode to the exact input bytes.
func Decode(bin []byte, p policy.Policy) (*Compiled, error) {
	if len(bin) < len(BinaryMagic) || string(bin[:len(BinaryMagic)]) != BinaryMagic {
		return nil, malformed(-1, "not a compiled script")
	}
	if len(bin) < binaryHeaderLen {
		return nil, malformed(-1, "truncated compiled header")
	}
	if version := binary.LittleEndian.Uint16(bin[4:6]); version != BinaryVersion {
		return nil, apperrors.WithMetadata(apperrors.CodeVersionUnsupported,
			fmt.Sprintf("compiled format version %d is not supported", version),
			map[string]string{"Version": strconv.Itoa(int(version))})
	}
	size := binary.LittleEndian.Uint32(bin[6:10])
	if uint64(size) != uint64(len(bin)-binaryHeaderLen) {
		return nil, malformed(-1, "payload length %d does not match %d bytes", size, len(bin)-binaryHeaderLen)
	}

	raw, err := ParseRaw(bin[binaryHeaderLen:])
	if err != nil {
		return nil, err
	}
	compiled, err := CompileRaw(raw, p)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(compiled.bin, bin) {
		return nil, malformed(-1, "compiled payload is not canonical")
	}
	return compiled, nil
}

func eventDocument(ev event.Event) map[string]any {
	doc := map[string]any{"type": string(ev.Kind())}
	switch e := ev.(type) {
	case event.Dialogue:
		doc["speaker"] = e.Speaker
		doc["text"] = e.Text
	case event.Scene:
		if e.Background != nil {
			doc["background"] = *e.Background
		}
		if e.Music != nil {
			doc["music"] = *e.Music
		}
		doc["characters"] = characterDocuments(e.Characters)
	case event.Choice:
		options := make([]map[string]any, len(e.Options))
		for i, option := range e.Options {
			options[i] = map[string]any{"text": option.Text, "target": option.Target}
		}
		doc["prompt"] = e.Prompt
		doc["options"] = options
	case event.Jump:
		doc["target"] = e.Target
	case event.SetFlag:
		doc["key"] = e.Key
		doc["value"] = e.Value
	case event.SetVar:
		doc["key"] = e.Key
		doc["value"] = e.Value
	case event.JumpIf:
		doc["cond"] = conditionDocument(e.Cond)
		doc["target"] = e.Target
	case event.Patch:
		optionalDocument(doc, "background", e.Background)
		optionalDocument(doc, "music", e.Music)
		doc["add"] = characterDocuments(e.Add)
		updates := make([]map[string]any, len(e.Update))
		for i, update := range e.Update {
			updates[i] = characterDocument(update.Name, update.Expression, update.Position)
		}
		doc["update"] = updates
		remove := e.Remove
		if remove == nil {
			remove = []string{}
		}
		doc["remove"] = remove
	default:
		panic(fmt.Sprintf("script: unhandled event type %T", ev))
	}
	return doc
}

func conditionDocument(c event.Condition) map[string]any {
	switch cond := c.(type) {
	case event.VarCmp:
		return map[string]any{"kind": event.ConditionKind(c), "key": cond.Key, "op": string(cond.Op), "value": cond.Value}
	case event.FlagIs:
		return map[string]any{"kind": event.ConditionKind(c), "key": cond.Key, "is_set": cond.IsSet}
	default:
		panic(fmt.Sprintf("script: unhandled condition type %T", c))
	}
}

func optionalDocument(doc map[string]any, key string, o event.Optional) {
	switch o.Presence {
	case event.Present:
		doc[key] = o.Value
	case event.Cleared:
		doc[key] = nil
	case event.Absent:
	}
}

func characterDocuments(chars []event.Character) []map[string]any {
	out := make([]map[string]any, len(chars))
	for i, c := range chars {
		out[i] = characterDocument(c.Name, c.Expression, c.Position)
	}
	return out
}

func characterDocument(name string, expression, position *string) map[string]any {
	doc := map[string]any{"name": name}
	if expression != nil {
		doc["expression"] = *expression
	}
	if position != nil {
		doc["position"] = *position
	}
	return doc
}
