package play

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/message"

	errori18n "github.com/louisbranch/talespin/internal/platform/errors/i18n"
	i18ncatalog "github.com/louisbranch/talespin/internal/platform/i18n/catalog"
	"github.com/louisbranch/talespin/internal/story/render"
	"github.com/louisbranch/talespin/internal/story/storage"
)

// Run drives s from line commands on in until EOF or ":quit":
//
//	(empty)    step
//	N          choose option N (1-based)
//	:save N    save to slot N
//	:load N    load slot N
//	:qs, :ql   quicksave and quickload
//	:slots     list saves
//	:quit      stop
//
// Command failures are reported on out and do not stop the loop.
func Run(ctx context.Context, s *Session, in io.Reader, out io.Writer, locale string) error {
	h := host{
		session: s,
		out:     out,
		locale:  locale,
		printer: i18ncatalog.Default().Printer(locale),
		text:    render.NewTextRenderer(locale),
	}
	frame, err := s.Current(ctx)
	if err != nil {
		return err
	}
	h.show(frame)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == ":quit" || line == ":q" {
			return nil
		}
		h.handle(ctx, line)
	}
	return scanner.Err()
}

type host struct {
	session *Session
	out     io.Writer
	locale  string
	printer *message.Printer
	text    render.TextRenderer
}

func (h host) handle(ctx context.Context, line string) {
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var (
		frame Frame
		err   error
	)
	switch command {
	case "":
		frame, err = h.session.Step(ctx)
	case ":save", ":load":
		var slot storage.Slot
		if slot, err = storage.ParseSlot(arg); err != nil {
			break
		}
		if command == ":save" {
			if _, err = h.session.SaveSlot(ctx, slot); err == nil {
				h.println(h.printer.Sprintf("player.saved", slot))
				return
			}
			break
		}
		if frame, err = h.session.LoadSlot(ctx, slot); err == nil {
			h.println(h.printer.Sprintf("player.loaded", slot))
		}
	case ":qs":
		if _, err = h.session.QuickSave(ctx); err == nil {
			h.println(h.printer.Sprintf("player.saved", storage.Quicksave()))
			return
		}
	case ":ql":
		if frame, err = h.session.QuickLoad(ctx); err == nil {
			h.println(h.printer.Sprintf("player.loaded", storage.Quicksave()))
		}
	case ":slots":
		err = h.slots(ctx, arg)
		if err == nil {
			return
		}
	default:
		n, convErr := strconv.Atoi(command)
		if convErr != nil {
			h.println(h.printer.Sprintf("player.unknown_command", line))
			return
		}
		frame, err = h.session.Choose(ctx, n-1)
	}
	if err != nil {
		h.println(h.printer.Sprintf("player.error", errori18n.UserMessage(err, h.locale)))
		return
	}
	h.show(frame)
}

func (h host) slots(ctx context.Context, filter string) error {
	slots, err := h.session.Slots(ctx, filter)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		h.println(h.printer.Sprintf("player.no_slots"))
		return nil
	}
	for _, meta := range slots {
		h.println(h.printer.Sprintf("player.slot_line", meta.Slot(), meta.Position, meta.ChapterLabel, meta.SummaryLine))
	}
	return nil
}

func (h host) show(frame Frame) {
	switch {
	case frame.Finished:
		h.println(h.text.Finished())
	case frame.Rendered != "":
		h.println(frame.Rendered)
	default:
		text := frame.Text
		if frame.Speaker != "" {
			text = frame.Speaker + ": " + text
		}
		if text != "" {
			h.println(text)
		}
		for i, option := range frame.Options {
			h.println(h.printer.Sprintf("player.choice_option", i+1, option))
		}
	}
}

func (h host) println(line string) {
	fmt.Fprintln(h.out, line)
}
