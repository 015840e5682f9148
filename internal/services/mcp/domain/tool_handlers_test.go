package domain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/policy"
	"github.com/louisbranch/talespin/internal/story/repro"
	"github.com/louisbranch/talespin/internal/story/storage/sqlite"
)

const storyScript = `{"script_schema_version":"1.0","events":[
  {"type":"scene","background":"bg/road.png","music":null,"characters":[{"name":"Ava","expression":"smile"}]},
  {"type":"dialogue","speaker":"Ava","text":"Hello"},
  {"type":"choice","prompt":"Go?","options":[{"text":"Yes","target":"end"},{"text":"No","target":"start"}]},
  {"type":"dialogue","speaker":"Ava","text":"The end"}
],"labels":{"start":0,"end":3}}`

type notifications struct {
	uris []string
}

func (n *notifications) notify(_ context.Context, uri string) {
	n.uris = append(n.uris, uri)
}

func writeStory(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "story.json")
	if err := os.WriteFile(path, []byte(storyScript), 0o600); err != nil {
		t.Fatalf("write story: %v", err)
	}
	return path
}

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewWorkspace(Options{
		Policy:  policy.Default(),
		Session: play.Options{Store: store},
	})
}

func openStory(t *testing.T, w *Workspace) StoryOpenResult {
	t.Helper()
	_, result, err := StoryOpenHandler(w, nil)(context.Background(), nil, StoryOpenInput{Path: writeStory(t, t.TempDir())})
	if err != nil {
		t.Fatalf("story open: %v", err)
	}
	return result
}

func TestStoryToolsRequireOpenStory(t *testing.T) {
	w := newWorkspace(t)
	ctx := context.Background()

	if _, _, err := StoryCurrentHandler(w)(ctx, nil, StoryCurrentInput{}); !errors.Is(err, ErrNoStory) {
		t.Fatalf("current error = %v", err)
	}
	if _, _, err := StoryStepHandler(w, nil)(ctx, nil, StoryStepInput{}); !errors.Is(err, ErrNoStory) {
		t.Fatalf("step error = %v", err)
	}
	if _, _, err := StorySlotsHandler(w)(ctx, nil, StorySlotsInput{}); !errors.Is(err, ErrNoStory) {
		t.Fatalf("slots error = %v", err)
	}
}

func TestStoryOpenHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		w := newWorkspace(t)
		n := &notifications{}
		_, result, err := StoryOpenHandler(w, n.notify)(context.Background(), nil, StoryOpenInput{Path: writeStory(t, t.TempDir())})
		if err != nil {
			t.Fatalf("story open: %v", err)
		}
		if result.Events != 4 || len(result.ScriptID) != 64 {
			t.Fatalf("result = %+v", result)
		}
		if result.Frame.Kind != "scene" || result.Frame.Position != 0 {
			t.Fatalf("frame = %+v", result.Frame)
		}
		if len(n.uris) != 1 || n.uris[0] != CurrentStoryURI {
			t.Fatalf("notifications = %v", n.uris)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, _, err := StoryOpenHandler(newWorkspace(t), nil)(context.Background(), nil, StoryOpenInput{Path: " "})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := StoryOpenHandler(newWorkspace(t), nil)(context.Background(), nil, StoryOpenInput{Path: filepath.Join(t.TempDir(), "nope.json")})
		if !apperrors.HasCode(err, apperrors.CodeIOFailure) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("compile error keeps code", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		if err := os.WriteFile(path, []byte(`{"script_schema_version":"1.0","events":[],"labels":{}}`), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, _, err := StoryOpenHandler(newWorkspace(t), nil)(context.Background(), nil, StoryOpenInput{Path: path})
		if !apperrors.HasCode(err, apperrors.CodeMissingStartLabel) {
			t.Fatalf("error = %v", err)
		}
		if !strings.Contains(err.Error(), "[MISSING_START_LABEL]") {
			t.Fatalf("error text = %q", err.Error())
		}
	})

	t.Run("root confines paths", func(t *testing.T) {
		root := t.TempDir()
		writeStory(t, root)
		w := NewWorkspace(Options{Policy: policy.Default(), Root: root})
		if _, _, err := StoryOpenHandler(w, nil)(context.Background(), nil, StoryOpenInput{Path: "story.json"}); err != nil {
			t.Fatalf("open inside root: %v", err)
		}
		if w.Path() != filepath.Join(root, "story.json") {
			t.Fatalf("path = %q", w.Path())
		}
		if _, _, err := StoryOpenHandler(w, nil)(context.Background(), nil, StoryOpenInput{Path: "../story.json"}); err == nil {
			t.Fatal("expected escape to fail")
		}
	})
}

func TestStoryPlayHandlers(t *testing.T) {
	w := newWorkspace(t)
	openStory(t, w)
	ctx := context.Background()
	n := &notifications{}

	frame := mustFrame(t)(StoryStepHandler(w, n.notify)(ctx, nil, StoryStepInput{}))
	if frame.Kind != "dialogue" || frame.Speaker != "Ava" || frame.Text != "Hello" {
		t.Fatalf("frame = %+v", frame)
	}
	frame = mustFrame(t)(StoryStepHandler(w, n.notify)(ctx, nil, StoryStepInput{}))
	if frame.Kind != "choice" || len(frame.Options) != 2 {
		t.Fatalf("choice frame = %+v", frame)
	}

	if _, _, err := StoryStepHandler(w, n.notify)(ctx, nil, StoryStepInput{}); !apperrors.HasCode(err, apperrors.CodeAwaitingChoice) {
		t.Fatalf("step at choice = %v", err)
	}
	if _, _, err := StoryChooseHandler(w, n.notify)(ctx, nil, StoryChooseInput{Index: 5}); !apperrors.HasCode(err, apperrors.CodeInvalidChoiceIndex) {
		t.Fatalf("bad choice = %v", err)
	}
	current := mustFrame(t)(StoryCurrentHandler(w)(ctx, nil, StoryCurrentInput{}))
	if current.Position != 2 {
		t.Fatalf("position after bad choice = %d", current.Position)
	}

	frame = mustFrame(t)(StoryChooseHandler(w, n.notify)(ctx, nil, StoryChooseInput{Index: 0}))
	if frame.Position != 3 || frame.Text != "The end" {
		t.Fatalf("frame = %+v", frame)
	}
	frame = mustFrame(t)(StoryStepHandler(w, n.notify)(ctx, nil, StoryStepInput{}))
	if !frame.Finished {
		t.Fatalf("expected finished, got %+v", frame)
	}

	frame = mustFrame(t)(StoryJumpHandler(w, n.notify)(ctx, nil, StoryJumpInput{Label: "start"}))
	if frame.Position != 0 || frame.Finished {
		t.Fatalf("frame after jump = %+v", frame)
	}
	if _, _, err := StoryJumpHandler(w, n.notify)(ctx, nil, StoryJumpInput{Label: "nowhere"}); !apperrors.HasCode(err, apperrors.CodeUnknownLabel) {
		t.Fatalf("unknown label = %v", err)
	}
	if len(n.uris) != 5 {
		t.Fatalf("expected 5 notifications, got %v", n.uris)
	}
}

func mustFrame(t *testing.T) func(*mcp.CallToolResult, FrameResult, error) FrameResult {
	return func(_ *mcp.CallToolResult, frame FrameResult, err error) FrameResult {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return frame
	}
}

func TestStoryVisualHandler(t *testing.T) {
	w := newWorkspace(t)
	openStory(t, w)
	ctx := context.Background()

	_, visual, err := StoryVisualHandler(w)(ctx, nil, StoryVisualInput{})
	if err != nil {
		t.Fatalf("visual: %v", err)
	}
	if visual.Background != nil || len(visual.Characters) != 0 {
		t.Fatalf("initial visual = %+v", visual)
	}

	mustFrame(t)(StoryStepHandler(w, nil)(ctx, nil, StoryStepInput{}))
	_, visual, err = StoryVisualHandler(w)(ctx, nil, StoryVisualInput{})
	if err != nil {
		t.Fatalf("visual: %v", err)
	}
	if visual.Background == nil || *visual.Background != "bg/road.png" {
		t.Fatalf("background = %v", visual.Background)
	}
	if visual.Music != nil {
		t.Fatalf("music = %q", *visual.Music)
	}
	if len(visual.Characters) != 1 || visual.Characters[0].Name != "Ava" {
		t.Fatalf("characters = %+v", visual.Characters)
	}
	if got := visual.Characters[0].Expression; got == nil || *got != "smile" {
		t.Fatalf("expression = %v", got)
	}
}

func TestStorySlotHandlers(t *testing.T) {
	w := newWorkspace(t)
	openStory(t, w)
	ctx := context.Background()
	n := &notifications{}

	mustFrame(t)(StoryStepHandler(w, nil)(ctx, nil, StoryStepInput{}))
	mustFrame(t)(StoryStepHandler(w, nil)(ctx, nil, StoryStepInput{}))

	_, saved, err := StorySaveHandler(w, n.notify)(ctx, nil, StorySaveInput{Slot: "3"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Slot != "3" || saved.Position != 2 || saved.ChapterLabel != "road" {
		t.Fatalf("saved = %+v", saved)
	}
	if saved.SummaryLine != "Ava: Hello" {
		t.Fatalf("summary = %q", saved.SummaryLine)
	}
	if _, _, err := StorySaveHandler(w, n.notify)(ctx, nil, StorySaveInput{Slot: "quick"}); err != nil {
		t.Fatalf("quicksave: %v", err)
	}
	if _, _, err := StorySaveHandler(w, n.notify)(ctx, nil, StorySaveInput{Slot: "0"}); !apperrors.HasCode(err, apperrors.CodeInvalidSlot) {
		t.Fatalf("slot 0 = %v", err)
	}

	_, listed, err := StorySlotsHandler(w)(ctx, nil, StorySlotsInput{})
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(listed.Slots) != 2 {
		t.Fatalf("slots = %+v", listed.Slots)
	}
	_, listed, err = StorySlotsHandler(w)(ctx, nil, StorySlotsInput{Filter: "quick = false"})
	if err != nil {
		t.Fatalf("filtered slots: %v", err)
	}
	if len(listed.Slots) != 1 || listed.Slots[0].Slot != "3" {
		t.Fatalf("filtered slots = %+v", listed.Slots)
	}

	mustFrame(t)(StoryJumpHandler(w, nil)(ctx, nil, StoryJumpInput{Label: "end"}))
	frame := mustFrame(t)(StoryLoadHandler(w, n.notify)(ctx, nil, StoryLoadInput{Slot: "3"}))
	if frame.Position != 2 || frame.Kind != "choice" {
		t.Fatalf("loaded frame = %+v", frame)
	}
	if _, _, err := StoryLoadHandler(w, n.notify)(ctx, nil, StoryLoadInput{Slot: "9"}); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("load empty slot = %v", err)
	}

	want := []string{SlotsURI, SlotsURI, CurrentStoryURI}
	if strings.Join(n.uris, ",") != strings.Join(want, ",") {
		t.Fatalf("notifications = %v, want %v", n.uris, want)
	}
}

func TestStoryReproHandler(t *testing.T) {
	c := repro.NewCase("loop", json.RawMessage(`{"script_schema_version":"1.0","events":[{"type":"jump","target":"start"}],"labels":{"start":0}}`))
	c.MaxSteps = 4
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal case: %v", err)
	}

	_, report, err := StoryReproHandler(policy.Default())(context.Background(), nil, StoryReproInput{CaseJSON: string(data)})
	if err != nil {
		t.Fatalf("repro: %v", err)
	}
	if report.StopReason != repro.StopStepLimit || report.ExecutedSteps != 4 {
		t.Fatalf("report = %+v", report)
	}

	if _, _, err := StoryReproHandler(policy.Default())(context.Background(), nil, StoryReproInput{CaseJSON: "{}"}); err == nil {
		t.Fatal("expected schema error")
	}
}

func TestCurrentStoryResourceHandler(t *testing.T) {
	w := newWorkspace(t)
	if _, err := CurrentStoryResourceHandler(w)(context.Background(), nil); !errors.Is(err, ErrNoStory) {
		t.Fatalf("error = %v", err)
	}
	openStory(t, w)

	result, err := CurrentStoryResourceHandler(w)(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: CurrentStoryURI},
	})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].URI != CurrentStoryURI {
		t.Fatalf("contents = %+v", result.Contents)
	}
	var payload CurrentStoryPayload
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Frame.Kind != "scene" || payload.Path != w.Path() {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSlotsResourceHandler(t *testing.T) {
	w := newWorkspace(t)
	openStory(t, w)
	if _, _, err := StorySaveHandler(w, nil)(context.Background(), nil, StorySaveInput{Slot: "1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	result, err := SlotsResourceHandler(w)(context.Background(), nil)
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if result.Contents[0].URI != SlotsURI {
		t.Fatalf("uri = %q", result.Contents[0].URI)
	}
	var payload StorySlotsResult
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Slots) != 1 || payload.Slots[0].Slot != "1" {
		t.Fatalf("payload = %+v", payload)
	}
}
