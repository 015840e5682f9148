package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/talespin/internal/services/mcp/domain"
	"github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/storage/sqlite"
)

const testScript = `{"script_schema_version":"1.0","events":[
  {"type":"dialogue","speaker":"Ava","text":"Hello"},
  {"type":"choice","prompt":"Go?","options":[{"text":"Yes","target":"end"},{"text":"No","target":"start"}]},
  {"type":"dialogue","speaker":"Ava","text":"The end"}
],"labels":{"start":0,"end":2}}`

func writeScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "story.json")
	if err := os.WriteFile(path, []byte(testScript), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testOptions(t *testing.T) domain.Options {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return domain.Options{Policy: policy.Default(), Session: play.Options{Store: store}}
}

// connect serves s over in-memory transports and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer connectCancel()
	session, err := client.Connect(connectCtx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = session.Close()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("serve did not stop after cancel")
		}
	})
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if out != nil && !result.IsError {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatalf("marshal %s result: %v", name, err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s result: %v", name, err)
		}
	}
	return result
}

func toolErrorText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestServerListsStoryTools(t *testing.T) {
	server, err := New(testOptions(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	session := connect(t, server)

	listed, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	var names []string
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	want := []string{
		"story_choose", "story_current", "story_jump", "story_load", "story_open",
		"story_repro", "story_save", "story_slots", "story_step", "story_visual",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v, want %v", names, want)
	}
}

func TestServerPlaysStoryOverMCP(t *testing.T) {
	server, err := New(testOptions(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	session := connect(t, server)

	result := callTool(t, session, "story_current", map[string]any{}, nil)
	if !result.IsError || !strings.Contains(toolErrorText(result), "story_open") {
		t.Fatalf("current before open = %+v", result)
	}

	var opened domain.StoryOpenResult
	if result := callTool(t, session, "story_open", map[string]any{"path": writeScript(t)}, &opened); result.IsError {
		t.Fatalf("open failed: %s", toolErrorText(result))
	}
	if opened.Frame.Speaker != "Ava" || opened.Events != 3 {
		t.Fatalf("opened = %+v", opened)
	}

	var frame domain.FrameResult
	callTool(t, session, "story_step", map[string]any{}, &frame)
	if frame.Kind != "choice" || len(frame.Options) != 2 {
		t.Fatalf("frame = %+v", frame)
	}

	result = callTool(t, session, "story_choose", map[string]any{"index": 7}, nil)
	if !result.IsError || !strings.Contains(toolErrorText(result), "INVALID_CHOICE_INDEX") {
		t.Fatalf("bad choose = %+v", result)
	}

	var saved domain.SlotResult
	if result := callTool(t, session, "story_save", map[string]any{"slot": "quick"}, &saved); result.IsError {
		t.Fatalf("save failed: %s", toolErrorText(result))
	}
	if saved.Slot != "quick" || saved.Position != 1 {
		t.Fatalf("saved = %+v", saved)
	}

	callTool(t, session, "story_choose", map[string]any{"index": 0}, &frame)
	if frame.Position != 2 {
		t.Fatalf("frame after choose = %+v", frame)
	}
	callTool(t, session, "story_load", map[string]any{"slot": "quick"}, &frame)
	if frame.Position != 1 || frame.Kind != "choice" {
		t.Fatalf("frame after load = %+v", frame)
	}

	read, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: domain.CurrentStoryURI})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	var payload domain.CurrentStoryPayload
	if err := json.Unmarshal([]byte(read.Contents[0].Text), &payload); err != nil {
		t.Fatalf("decode resource: %v", err)
	}
	if payload.Frame.Position != 1 {
		t.Fatalf("resource payload = %+v", payload)
	}
}

func TestRunOpensConfiguredScript(t *testing.T) {
	server, err := newConfiguredServer(Config{Workspace: testOptions(t), Script: writeScript(t)})
	if err != nil {
		t.Fatalf("new configured server: %v", err)
	}
	if _, err := server.Workspace().Session(); err != nil {
		t.Fatalf("expected open session: %v", err)
	}

	if _, err := newConfiguredServer(Config{Workspace: testOptions(t), Script: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("expected missing script to fail")
	}
}

// TestRunUnsupportedTransport ensures Run rejects unknown transport kinds.
func TestRunUnsupportedTransport(t *testing.T) {
	err := Run(context.Background(), Config{Transport: "websocket"})
	if err == nil {
		t.Fatal("expected error for unsupported transport")
	}
	if !strings.Contains(err.Error(), "not supported") {
		t.Errorf("expected 'not supported' in error, got: %v", err)
	}
}
