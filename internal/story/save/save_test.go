package save

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"path/filepath"
	"strconv"
	"testing"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/script"
)

const storyScript = `{"script_schema_version":"1.0","events":[
  {"type":"scene","background":"bg/room.png","music":"music/calm.ogg","characters":[{"name":"Ava","expression":"smile","position":"left"}]},
  {"type":"dialogue","speaker":"Ava","text":"Hello"},
  {"type":"set_flag","key":"met","value":true},
  {"type":"set_var","key":"counter","value":3},
  {"type":"patch","music":null,"add":[{"name":"Ben"}]},
  {"type":"choice","prompt":"Go?","options":[{"text":"Yes","target":"end"},{"text":"No","target":"start"}]},
  {"type":"dialogue","speaker":"Ava","text":"The end"}
],"labels":{"start":0,"end":6}}`

func compile(t *testing.T, src string) *script.Compiled {
	t.Helper()
	compiled, err := script.Compile([]byte(src), policy.Default())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return compiled
}

// playedEngine runs storyScript up to the choice.
func playedEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(compile(t, storyScript))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return e
}

func requireCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("error = %v, want %s", err, code)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	e := playedEngine(t)
	data, err := Save(e)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	state, err := Load(data, e.Script())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !state.Equal(e.State()) {
		t.Fatalf("loaded state = %+v, want %+v", state, e.State())
	}
	if state.Visual.Music != nil {
		t.Fatal("expected cleared music to survive round trip")
	}
}

func TestSaveRoundTripFullHistory(t *testing.T) {
	compiled := compile(t, storyScript)
	e, err := engine.New(compiled)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	state := e.State()
	for i := 0; i < engine.HistoryCapacity+17; i++ {
		state.History.Push(engine.Line{Speaker: "n", Text: strconv.Itoa(i)})
	}
	data, err := Encode(compiled.ID(), state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	loaded, err := Load(data, compiled)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Equal(state) {
		t.Fatal("history changed across round trip")
	}
	if first := loaded.History.Lines()[0].Text; first != "17" {
		t.Fatalf("oldest line = %q, want 17", first)
	}
}

func TestSaveIsDeterministic(t *testing.T) {
	e := playedEngine(t)
	first, err := Save(e)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := Save(e)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("save output differs between calls")
	}
}

func TestRestoreReplacesState(t *testing.T) {
	e := playedEngine(t)
	data, err := Save(e)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := e.Choose(0); err != nil {
		t.Fatalf("choose: %v", err)
	}
	if err := Restore(e, data); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if e.Position() != 5 {
		t.Fatalf("position = %d, want 5", e.Position())
	}
}

func TestLoadValidationOrder(t *testing.T) {
	e := playedEngine(t)
	data, err := Save(e)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	other := compile(t, `{"script_schema_version":"1.0","events":[{"type":"dialogue","speaker":"B","text":"other"}],"labels":{"start":0}}`)

	badMagic := clone(data)
	badMagic[0] = 'X'

	badVersion := clone(data)
	binary.LittleEndian.PutUint16(badVersion[4:6], 2)
	// A bad version is reported even with a broken checksum.
	badVersion[len(badVersion)-1] ^= 0xff

	flipped := clone(data)
	flipped[headerLen+2] ^= 0x01

	tests := []struct {
		name     string
		data     []byte
		compiled *script.Compiled
		code     apperrors.Code
	}{
		{name: "empty", data: nil, compiled: e.Script(), code: apperrors.CodeNotASaveFile},
		{name: "short", data: []byte("VN"), compiled: e.Script(), code: apperrors.CodeNotASaveFile},
		{name: "magic", data: badMagic, compiled: e.Script(), code: apperrors.CodeNotASaveFile},
		{name: "version", data: badVersion, compiled: e.Script(), code: apperrors.CodeVersionUnsupported},
		{name: "payload bit flip", data: flipped, compiled: e.Script(), code: apperrors.CodeCorrupt},
		{name: "truncated", data: data[:len(data)-1], compiled: e.Script(), code: apperrors.CodeCorrupt},
		{name: "header only", data: data[:10], compiled: e.Script(), code: apperrors.CodeCorrupt},
		{name: "script mismatch", data: data, compiled: other, code: apperrors.CodeScriptMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.data, tc.compiled)
			requireCode(t, err, tc.code)
		})
	}
}

func TestLoadRejectsMismatchWithValidChecksum(t *testing.T) {
	e := playedEngine(t)
	forged := clone(mustSave(t, e))
	forged[6] ^= 0xff
	resealChecksum(forged)
	_, err := Load(forged, e.Script())
	requireCode(t, err, apperrors.CodeScriptMismatch)
}

func TestLoadRejectsInvalidState(t *testing.T) {
	compiled := compile(t, storyScript)
	e, err := engine.New(compiled)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	state := e.State()
	state.Position = compiled.Len() + 1
	data, err := Encode(compiled.ID(), state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err = Load(data, compiled)
	requireCode(t, err, apperrors.CodeCorrupt)
}

func TestLoadRejectsGarbagePayload(t *testing.T) {
	compiled := compile(t, storyScript)
	payload := []byte(`{"position":0,"unknown":true}`)
	data := make([]byte, headerLen)
	copy(data, Magic)
	binary.LittleEndian.PutUint16(data[4:6], FormatVersion)
	id := compiled.ID()
	copy(data[6:], id[:])
	binary.LittleEndian.PutUint32(data[6+sha256.Size:], uint32(len(payload)))
	data = append(data, payload...)
	sum := sha256.Sum256(data)
	data = append(data, sum[:]...)

	_, err := Load(data, compiled)
	requireCode(t, err, apperrors.CodeCorrupt)
}

func TestDecodeSnapshot(t *testing.T) {
	e := playedEngine(t)
	snapshot, err := Decode(mustSave(t, e))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.ScriptID != e.Script().ID() {
		t.Fatalf("script id = %s", snapshot.ScriptID)
	}
	if snapshot.State.Position != 5 || !snapshot.State.Flags["met"] {
		t.Fatalf("state = %+v", snapshot.State)
	}
}

func TestFileRoundTrip(t *testing.T) {
	e := playedEngine(t)
	path := filepath.Join(t.TempDir(), "slot_001.sav")
	data := mustSave(t, e)
	if err := WriteFile(path, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("file contents differ")
	}

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.sav"))
	requireCode(t, err, apperrors.CodeIOFailure)
	err = WriteFile(filepath.Join(t.TempDir(), "no", "such", "dir", "x.sav"), data)
	requireCode(t, err, apperrors.CodeIOFailure)
}

func TestIsSaveError(t *testing.T) {
	_, err := Load(nil, compile(t, storyScript))
	if !IsSaveError(err) {
		t.Fatalf("expected save error, got %v", err)
	}
	if IsSaveError(apperrors.New(apperrors.CodeOutOfBounds, "x")) {
		t.Fatal("runtime error reported as save error")
	}
}

func mustSave(t *testing.T, e *engine.Engine) []byte {
	t.Helper()
	data, err := Save(e)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return data
}

func resealChecksum(data []byte) {
	sum := sha256.Sum256(data[:len(data)-checksumLen])
	copy(data[len(data)-checksumLen:], sum[:])
}

func clone(data []byte) []byte {
	return append([]byte(nil), data...)
}
