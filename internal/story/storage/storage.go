// Package storage defines persistence contracts for save slots.
package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/talespin/internal/platform/errors"
	"github.com/louisbranch/talespin/internal/story/engine"
	"github.com/louisbranch/talespin/internal/story/save"
)

const (
	// MaxSlot is the highest numbered slot.
	MaxSlot = 999
	// SummaryMaxRunes bounds Metadata.SummaryLine.
	SummaryMaxRunes = 96
)

// Slot addresses one save. The quicksave is {0, true}; numbered slots run
// from 1 to MaxSlot.
type Slot struct {
	ID    int
	Quick bool
}

// Quicksave returns the quicksave slot.
func Quicksave() Slot {
	return Slot{Quick: true}
}

// Numbered returns a validated numbered slot.
func Numbered(id int) (Slot, error) {
	slot := Slot{ID: id}
	if err := slot.Validate(); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// ParseSlot accepts "quick", "qs" or a slot number.
func ParseSlot(value string) (Slot, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "quick", "qs", "quicksave":
		return Quicksave(), nil
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return Slot{}, invalidSlot(value)
	}
	return Numbered(id)
}

// Validate rejects slots outside the quicksave and 1..MaxSlot.
func (s Slot) Validate() error {
	if s.Quick {
		if s.ID != 0 {
			return invalidSlot(s.String())
		}
		return nil
	}
	if s.ID < 1 || s.ID > MaxSlot {
		return invalidSlot(s.String())
	}
	return nil
}

func (s Slot) String() string {
	if s.Quick {
		return "quick"
	}
	return strconv.Itoa(s.ID)
}

func invalidSlot(value string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidSlot,
		fmt.Sprintf("invalid save slot %q", value),
		map[string]string{"Slot": value})
}

// NotFound reports a missing slot.
func NotFound(slot Slot) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("save slot %s is empty", slot),
		map[string]string{"Slot": slot.String()})
}

// RecoveryFailed reports a slot whose primary and backup both fail to decode.
func RecoveryFailed(slot Slot, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeRecoveryFailed,
		fmt.Sprintf("save slot %s could not be recovered", slot),
		map[string]string{"Slot": slot.String()}, cause)
}

// Metadata summarizes one stored slot.
type Metadata struct {
	SlotID       int
	Quick        bool
	UpdatedAt    time.Time
	ScriptIDHex  string
	Position     int
	ChapterLabel string
	SummaryLine  string
}

// Slot returns the slot the metadata describes.
func (m Metadata) Slot() Slot {
	return Slot{ID: m.SlotID, Quick: m.Quick}
}

// NewMetadata derives slot metadata from a decoded save.
func NewMetadata(slot Slot, snapshot save.Snapshot, updatedAt time.Time) Metadata {
	return Metadata{
		SlotID:       slot.ID,
		Quick:        slot.Quick,
		UpdatedAt:    updatedAt.UTC(),
		ScriptIDHex:  snapshot.ScriptID.Hex(),
		Position:     snapshot.State.Position,
		ChapterLabel: ChapterLabel(snapshot.State.Visual),
		SummaryLine:  SummaryLine(snapshot.State.History),
	}
}

// ChapterLabel names a save after its background: "bg/forest_road.png"
// becomes "forest road".
func ChapterLabel(v engine.Visual) string {
	if v.Background == nil {
		return ""
	}
	base := path.Base(strings.ReplaceAll(*v.Background, "\\", "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}

// SummaryLine renders the most recent history line as "speaker: text",
// truncated to SummaryMaxRunes.
func SummaryLine(h engine.History) string {
	line, ok := h.Last()
	if !ok {
		return ""
	}
	text := line.Text
	if line.Speaker != "" {
		text = line.Speaker + ": " + line.Text
	}
	if utf8.RuneCountInString(text) <= SummaryMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:SummaryMaxRunes-3]) + "..."
}

// Decoder turns stored bytes into a snapshot. Stores use it to derive
// metadata and to decide between a primary and its backup.
type Decoder func(data []byte) (save.Snapshot, error)

// PlainDecoder accepts unsealed saves.
func PlainDecoder(data []byte) (save.Snapshot, error) {
	return save.Decode(data)
}

// SealedDecoder accepts saves sealed under keys. Unsealed saves are rejected.
func SealedDecoder(keys *save.Keyring) Decoder {
	return func(data []byte) (save.Snapshot, error) {
		inner, err := save.OpenAuthenticated(data, keys)
		if err != nil {
			return save.Snapshot{}, err
		}
		return save.Decode(inner)
	}
}

// SlotStore persists save bytes per slot. Writing a slot keeps the bytes it
// replaces as a backup, and reads fall back to that backup when the primary
// no longer decodes.
type SlotStore interface {
	PutSlot(ctx context.Context, slot Slot, data []byte) (Metadata, error)
	GetSlot(ctx context.Context, slot Slot) ([]byte, Metadata, error)
	DeleteSlot(ctx context.Context, slot Slot) error
	// ListSlots returns slots newest first. filter is an AIP-160 expression
	// over slot_id, quick, position, script_id, chapter_label and updated_at.
	ListSlots(ctx context.Context, filter string) ([]Metadata, error)
}
