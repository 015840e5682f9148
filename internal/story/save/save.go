package save

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/encoding"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/event"
	"github.com/louisbranch/talespin/internal/story/script"
)

const (
	// Magic opens every save file.
	Magic = "VNSV"
	// FormatVersion is the save layout this build reads and writes.
	FormatVersion = uint16(1)

	headerLen   = len(Magic) + 2 + sha256.Size + 4
	checksumLen = sha256.Size
)

var (
	// ErrNotASaveFile is returned when the magic does not match.
	ErrNotASaveFile = apperrors.New(apperrors.CodeNotASaveFile, "not a save file")
	// ErrCorrupt is returned for checksum failures and undecodable payloads.
	ErrCorrupt = apperrors.New(apperrors.CodeCorrupt, "save file is corrupt")
)

// Snapshot is a save whose framing and checksum were verified.
type Snapshot struct {
	ScriptID encoding.Digest
	State    engine.State
}

type statePayload struct {
	Position int              `json:"position"`
	Flags    map[string]bool  `json:"flags"`
	Vars     map[string]int64 `json:"vars"`
	Visual   visualPayload    `json:"visual"`
	History  []engine.Line    `json:"history"`
}

type visualPayload struct {
	Background *string            `json:"background"`
	Music      *string            `json:"music"`
	Characters []characterPayload `json:"characters"`
}

type characterPayload struct {
	Name       string  `json:"name"`
	Expression *string `json:"expression"`
	Position   *string `json:"position"`
}

// Save encodes the engine's current state.
func Save(e *engine.Engine) ([]byte, error) {
	return Encode(e.Script().ID(), e.State())
}

// Encode writes state bound to scriptID. Equal inputs give equal bytes.
func Encode(scriptID encoding.Digest, state engine.State) ([]byte, error) {
	payload, err := encodePayload(state)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerLen, headerLen+len(payload)+checksumLen)
	copy(out, Magic)
	binary.LittleEndian.PutUint16(out[4:6], FormatVersion)
	copy(out[6:6+sha256.Size], scriptID[:])
	binary.LittleEndian.PutUint32(out[6+sha256.Size:headerLen], uint32(len(payload)))
	out = append(out, payload...)
	sum := sha256.Sum256(out)
	return append(out, sum[:]...), nil
}

// Load verifies data against compiled and returns the saved state. The
// engine is not touched; see Restore.
func Load(data []byte, compiled *script.Compiled) (engine.State, error) {
	scriptID, payload, err := verify(data)
	if err != nil {
		return engine.State{}, err
	}
	if scriptID != compiled.ID() {
		return engine.State{}, apperrors.New(apperrors.CodeScriptMismatch,
			fmt.Sprintf("save belongs to script %s, not %s", scriptID, compiled.ID()))
	}
	state, err := decodePayload(payload)
	if err != nil {
		return engine.State{}, err
	}
	if err := state.Validate(compiled.Len()); err != nil {
		return engine.State{}, err
	}
	return state, nil
}

// Restore loads data and replaces the engine state with it. On error the
// engine is unchanged.
func Restore(e *engine.Engine, data []byte) error {
	state, err := Load(data, e.Script())
	if err != nil {
		return err
	}
	return e.Restore(state)
}

// Decode verifies framing and checksum without a script, for tools that
// only need the metadata.
func Decode(data []byte) (Snapshot, error) {
	scriptID, payload, err := verify(data)
	if err != nil {
		return Snapshot{}, err
	}
	state, err := decodePayload(payload)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ScriptID: scriptID, State: state}, nil
}

func verify(data []byte) (encoding.Digest, []byte, error) {
	var id encoding.Digest
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return id, nil, ErrNotASaveFile
	}
	if len(data) < 6 {
		return id, nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if version := binary.LittleEndian.Uint16(data[4:6]); version != FormatVersion {
		return id, nil, apperrors.WithMetadata(apperrors.CodeVersionUnsupported,
			fmt.Sprintf("save format version %d is not supported", version),
			map[string]string{"Version": strconv.Itoa(int(version))})
	}
	if len(data) < headerLen+checksumLen {
		return id, nil, fmt.Errorf("%w: truncated", ErrCorrupt)
	}
	size := uint64(binary.LittleEndian.Uint32(data[6+sha256.Size : headerLen]))
	if uint64(len(data)) != uint64(headerLen)+size+uint64(checksumLen) {
		return id, nil, fmt.Errorf("%w: length mismatch", ErrCorrupt)
	}
	body := data[:len(data)-checksumLen]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], data[len(data)-checksumLen:]) {
		return id, nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	copy(id[:], data[6:6+sha256.Size])
	return id, data[headerLen : len(data)-checksumLen], nil
}

func encodePayload(state engine.State) ([]byte, error) {
	p := statePayload{
		Position: state.Position,
		Flags:    make(map[string]bool, len(state.Flags)),
		Vars:     make(map[string]int64, len(state.Vars)),
		Visual: visualPayload{
			Background: state.Visual.Background,
			Music:      state.Visual.Music,
			Characters: make([]characterPayload, len(state.Visual.Characters)),
		},
		History: state.History.Lines(),
	}
	for k, v := range state.Flags {
		p.Flags[k] = v
	}
	for k, v := range state.Vars {
		p.Vars[k] = v
	}
	for i, c := range state.Visual.Characters {
		p.Visual.Characters[i] = characterPayload{Name: c.Name, Expression: c.Expression, Position: c.Position}
	}
	payload, err := encoding.CanonicalJSON(p)
	if err != nil {
		return nil, fmt.Errorf("encode save payload: %w", err)
	}
	return payload, nil
}

func decodePayload(payload []byte) (engine.State, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var p statePayload
	if err := dec.Decode(&p); err != nil {
		return engine.State{}, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if dec.More() {
		return engine.State{}, fmt.Errorf("%w: trailing payload data", ErrCorrupt)
	}
	if len(p.History) > engine.HistoryCapacity {
		return engine.State{}, fmt.Errorf("%w: history has %d lines", ErrCorrupt, len(p.History))
	}

	state := engine.State{
		Position: p.Position,
		Flags:    p.Flags,
		Vars:     p.Vars,
		Visual: engine.Visual{
			Background: p.Visual.Background,
			Music:      p.Visual.Music,
			Characters: make([]event.Character, len(p.Visual.Characters)),
		},
		History: engine.NewHistory(p.History),
	}
	if state.Flags == nil {
		state.Flags = map[string]bool{}
	}
	if state.Vars == nil {
		state.Vars = map[string]int64{}
	}
	for i, c := range p.Visual.Characters {
		state.Visual.Characters[i] = event.Character{Name: c.Name, Expression: c.Expression, Position: c.Position}
	}
	if state.Position < 0 {
		return engine.State{}, fmt.Errorf("%w: negative position", ErrCorrupt)
	}
	return state, nil
}

// IsSaveError reports whether err carries a save-category code.
func IsSaveError(err error) bool {
	var domainErr *apperrors.Error
	return errors.As(err, &domainErr) && domainErr.Code.Category() == apperrors.CategorySave
}
