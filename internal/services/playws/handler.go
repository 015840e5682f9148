// Package playws serves play sessions over WebSocket. Every connection gets
// its own session on the shared compiled script; slot saves land in the
// shared slot store.
package playws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	errori18n "github.com/louisbranch/talespin/internal/platform/errors/i18n"
	"github.com/louisbranch/talespin/internal/story/play"
	"github.com/louisbranch/talespin/internal/story/script"
	"github.com/louisbranch/talespin/internal/story/storage"
)

const (
	maxFramesPerSecond     = 20
	maxDecodeErrorsPerConn = 3
	maxFramePayloadBytes   = 4 << 10
	// maxFrameBytes bounds a whole incoming message, envelope included.
	// Larger frames are discarded by the websocket reader unread.
	maxFrameBytes = maxFramePayloadBytes + 1<<10
)

// Options configures the handler.
type Options struct {
	Script  *script.Compiled
	Session play.Options
	Logger  *log.Logger
}

// NewHandler returns the routed handler:
//
//	/up  liveness probe
//	/ws  play session socket
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleConn(conn, opts, logger)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if opts.Script == nil {
			http.Error(w, "no story loaded", http.StatusServiceUnavailable)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

type inFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type outFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type choosePayload struct {
	Index int `json:"index"`
}

type jumpPayload struct {
	Label string `json:"label"`
}

type slotPayload struct {
	Slot string `json:"slot"`
}

type slotsPayload struct {
	Filter string `json:"filter,omitempty"`
}

// SlotInfo describes a saved slot.
type SlotInfo struct {
	Slot         string `json:"slot"`
	Position     int    `json:"position"`
	ChapterLabel string `json:"chapter_label,omitempty"`
	SummaryLine  string `json:"summary_line,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

func slotInfo(meta storage.Metadata) SlotInfo {
	return SlotInfo{
		Slot:         meta.Slot().String(),
		Position:     meta.Position,
		ChapterLabel: meta.ChapterLabel,
		SummaryLine:  meta.SummaryLine,
		UpdatedAt:    meta.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func handleConn(conn *websocket.Conn, opts Options, logger *log.Logger) {
	defer func() {
		_ = conn.Close()
	}()
	ctx := context.Background()
	if req := conn.Request(); req != nil {
		ctx = req.Context()
	}

	encoder := json.NewEncoder(conn)
	write := func(frame outFrame) bool {
		if err := encoder.Encode(frame); err != nil {
			logger.Printf("playws: write %s: %v", frame.Type, err)
			return false
		}
		return true
	}
	locale := opts.Session.Locale

	session, err := play.NewSession(opts.Script, opts.Session)
	if err != nil {
		write(errorFrame("", err, locale))
		return
	}
	first, err := session.Current(ctx)
	if err != nil {
		write(errorFrame("", err, locale))
		return
	}
	if !write(outFrame{Type: "story.frame", Payload: first}) {
		return
	}

	conn.MaxPayloadBytes = maxFrameBytes
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if !errors.Is(err, websocket.ErrFrameTooLarge) {
				if !errors.Is(err, io.EOF) {
					logger.Printf("playws: read: %v", err)
				}
				return
			}
			decodeErrors++
			write(protocolError("", "frame too large"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		var frame inFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			decodeErrors++
			write(protocolError("", "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			write(protocolError(frame.RequestID, "payload too large"))
			continue
		}
		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			write(protocolError(frame.RequestID, "rate limit exceeded"))
			return
		}

		if !write(dispatch(ctx, session, frame, locale)) {
			return
		}
	}
}

func dispatch(ctx context.Context, session *play.Session, frame inFrame, locale string) outFrame {
	reply := func(kind string, payload any, err error) outFrame {
		if err != nil {
			return errorFrame(frame.RequestID, err, locale)
		}
		return outFrame{Type: kind, RequestID: frame.RequestID, Payload: payload}
	}

	switch frame.Type {
	case "story.current":
		f, err := session.Current(ctx)
		return reply("story.frame", f, err)
	case "story.step":
		f, err := session.Step(ctx)
		return reply("story.frame", f, err)
	case "story.choose":
		var p choosePayload
		if err := decodePayload(frame.Payload, &p); err != nil {
			return protocolError(frame.RequestID, "invalid choose payload")
		}
		f, err := session.Choose(ctx, p.Index)
		return reply("story.frame", f, err)
	case "story.jump":
		var p jumpPayload
		if err := decodePayload(frame.Payload, &p); err != nil || strings.TrimSpace(p.Label) == "" {
			return protocolError(frame.RequestID, "label is required")
		}
		f, err := session.Jump(ctx, p.Label)
		return reply("story.frame", f, err)
	case "story.save":
		var p slotPayload
		if err := decodePayload(frame.Payload, &p); err != nil {
			return protocolError(frame.RequestID, "invalid save payload")
		}
		slot, err := storage.ParseSlot(p.Slot)
		if err != nil {
			return errorFrame(frame.RequestID, err, locale)
		}
		meta, err := session.SaveSlot(ctx, slot)
		if err != nil {
			return errorFrame(frame.RequestID, err, locale)
		}
		return reply("story.saved", slotInfo(meta), nil)
	case "story.load":
		var p slotPayload
		if err := decodePayload(frame.Payload, &p); err != nil {
			return protocolError(frame.RequestID, "invalid load payload")
		}
		slot, err := storage.ParseSlot(p.Slot)
		if err != nil {
			return errorFrame(frame.RequestID, err, locale)
		}
		f, err := session.LoadSlot(ctx, slot)
		return reply("story.frame", f, err)
	case "story.slots":
		var p slotsPayload
		if err := decodePayload(frame.Payload, &p); err != nil {
			return protocolError(frame.RequestID, "invalid slots payload")
		}
		metas, err := session.Slots(ctx, p.Filter)
		if err != nil {
			return errorFrame(frame.RequestID, err, locale)
		}
		slots := make([]SlotInfo, 0, len(metas))
		for _, meta := range metas {
			slots = append(slots, slotInfo(meta))
		}
		return reply("story.slots", map[string]any{"slots": slots}, nil)
	default:
		return protocolError(frame.RequestID, "unsupported frame type")
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func errorFrame(requestID string, err error, locale string) outFrame {
	return outFrame{Type: "error", RequestID: requestID, Payload: errorPayload{
		Code:    string(apperrors.CodeOf(err)),
		Message: errori18n.UserMessage(err, locale),
	}}
}

func protocolError(requestID, message string) outFrame {
	return outFrame{Type: "error", RequestID: requestID, Payload: errorPayload{
		Code:    "INVALID_ARGUMENT",
		Message: message,
	}}
}
