package playws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/script"
	"github.com/louisbranch/talespin/internal/story/storage/sqlite"
)

const storyScript = `{"script_schema_version":"1.0","events":[
  {"type":"dialogue","speaker":"Ava","text":"Hello"},
  {"type":"choice","prompt":"Go?","options":[{"text":"Yes","target":"end"},{"text":"No","target":"start"}]},
  {"type":"dialogue","speaker":"Ava","text":"The end"}
],"labels":{"start":0,"end":2}}`

type testFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	compiled, err := script.Compile([]byte(storyScript), policy.Default())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(NewHandler(Options{
		Script:  compiled,
		Session: play.Options{Store: store, Locale: "en-US"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, kind, requestID string, payload any) {
	t.Helper()
	frame := map[string]any{"type": kind, "request_id": requestID}
	if payload != nil {
		frame["payload"] = payload
	}
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got testFrame
	if err := websocket.JSON.Receive(conn, &got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func readFrame(t *testing.T, conn *websocket.Conn) play.Frame {
	t.Helper()
	got := read(t, conn)
	if got.Type != "story.frame" {
		t.Fatalf("frame type = %s, payload %s", got.Type, got.Payload)
	}
	var frame play.Frame
	if err := json.Unmarshal(got.Payload, &frame); err != nil {
		t.Fatalf("decode frame payload: %v", err)
	}
	return frame
}

func readError(t *testing.T, conn *websocket.Conn) errorPayload {
	t.Helper()
	got := read(t, conn)
	if got.Type != "error" {
		t.Fatalf("frame type = %s, want error", got.Type)
	}
	var payload errorPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload
}

func TestSessionFlow(t *testing.T) {
	conn := dial(t, newTestServer(t))

	first := readFrame(t, conn)
	if first.Position != 0 || first.Speaker != "Ava" || first.Text != "Hello" {
		t.Fatalf("first frame = %+v", first)
	}

	send(t, conn, "story.step", "1", nil)
	choice := readFrame(t, conn)
	if choice.Position != 1 || len(choice.Options) != 2 {
		t.Fatalf("choice frame = %+v", choice)
	}

	send(t, conn, "story.step", "2", nil)
	if got := readError(t, conn); got.Code != "AWAITING_CHOICE" || got.Message == "" {
		t.Fatalf("step at choice = %+v", got)
	}

	send(t, conn, "story.save", "3", map[string]any{"slot": "1"})
	saved := read(t, conn)
	if saved.Type != "story.saved" || saved.RequestID != "3" {
		t.Fatalf("save reply = %+v", saved)
	}

	send(t, conn, "story.choose", "4", map[string]any{"index": 0})
	if end := readFrame(t, conn); end.Position != 2 || end.Text != "The end" {
		t.Fatalf("after choose = %+v", end)
	}

	send(t, conn, "story.load", "5", map[string]any{"slot": "1"})
	if back := readFrame(t, conn); back.Position != 1 {
		t.Fatalf("after load = %+v", back)
	}

	send(t, conn, "story.slots", "6", nil)
	slots := read(t, conn)
	var listed struct {
		Slots []SlotInfo `json:"slots"`
	}
	if err := json.Unmarshal(slots.Payload, &listed); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(listed.Slots) != 1 || listed.Slots[0].Slot != "1" || listed.Slots[0].Position != 1 {
		t.Fatalf("slots = %+v", listed.Slots)
	}
}

func TestProtocolErrors(t *testing.T) {
	conn := dial(t, newTestServer(t))
	readFrame(t, conn)

	send(t, conn, "story.dance", "1", nil)
	if got := readError(t, conn); got.Code != "INVALID_ARGUMENT" {
		t.Fatalf("unsupported type = %+v", got)
	}
	send(t, conn, "story.jump", "2", map[string]any{})
	if got := readError(t, conn); got.Code != "INVALID_ARGUMENT" {
		t.Fatalf("empty jump = %+v", got)
	}
	send(t, conn, "story.jump", "3", map[string]any{"label": "nowhere"})
	if got := readError(t, conn); got.Code != "UNKNOWN_LABEL" {
		t.Fatalf("unknown label = %+v", got)
	}
	send(t, conn, "story.load", "4", map[string]any{"slot": "9"})
	if got := readError(t, conn); got.Code != "NOT_FOUND" {
		t.Fatalf("empty slot = %+v", got)
	}
}

func TestHandlerRoutes(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/up")
	if err != nil {
		t.Fatalf("get /up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/up status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/ws", "application/json", nil)
	if err != nil {
		t.Fatalf("post /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /ws status = %d", resp.StatusCode)
	}

	empty := httptest.NewServer(NewHandler(Options{}))
	defer empty.Close()
	resp, err = http.Get(empty.URL + "/ws")
	if err != nil {
		t.Fatalf("get /ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("no script status = %d", resp.StatusCode)
	}
}

func TestOversizedFrameIsRejectedUnread(t *testing.T) {
	conn := dial(t, newTestServer(t))
	readFrame(t, conn)

	send(t, conn, "story.jump", "1", map[string]any{"label": strings.Repeat("x", maxFrameBytes)})
	if got := readError(t, conn); got.Code != "INVALID_ARGUMENT" || got.Message != "frame too large" {
		t.Fatalf("oversized frame = %+v", got)
	}

	send(t, conn, "story.current", "2", nil)
	if frame := readFrame(t, conn); frame.Position != 0 {
		t.Fatalf("after oversized frame = %+v", frame)
	}
}

func TestMalformedFramesCloseConnection(t *testing.T) {
	conn := dial(t, newTestServer(t))
	readFrame(t, conn)

	for i := 0; i < maxDecodeErrorsPerConn; i++ {
		if _, err := conn.Write([]byte("{not json")); err != nil {
			t.Fatalf("write garbage: %v", err)
		}
		if got := readError(t, conn); got.Message != "invalid frame payload" {
			t.Fatalf("garbage frame %d = %+v", i, got)
		}
	}
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var frame testFrame
	if err := websocket.JSON.Receive(conn, &frame); err == nil {
		t.Fatalf("expected closed connection, got %+v", frame)
	}
}
