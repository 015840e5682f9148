// Package script compiles raw story scripts into immutable, index-resolved
// programs with a content-derived identity.
//
// Compilation runs in fixed phases: structural decoding, label resolution,
// the start label check, policy limits and choice validation. Only a script
// that clears every phase is encoded into its canonical binary form, and the
// SHA-256 of that form becomes the script id that saves are bound to.
package script

import (
	"github.com/louisbranch/talespin/internal/story/encoding"
	"github.com/louisbranch/talespin/internal/story/event"
)

// SchemaVersion is the script JSON schema this build compiles.
const SchemaVersion = "1.0"

// StartLabel is the label execution begins at.
const StartLabel = "start"

// Compiled is a validated script. It is never mutated after construction and
// may be shared freely; accessors return copies.
type Compiled struct {
	events []event.Event
	labels map[string]int
	bin    []byte
	id     encoding.Digest
}

// ID returns the script identity.
func (c *Compiled) ID() encoding.Digest {
	return c.id
}

// Len returns the number of events. A position equal to Len is the end.
func (c *Compiled) Len() int {
	return len(c.events)
}

// Event returns a copy of the event at index.
func (c *Compiled) Event(index int) (event.Event, bool) {
	if index < 0 || index >= len(c.events) {
		return nil, false
	}
	return event.Clone(c.events[index]), true
}

// Events returns a copy of every event in order.
func (c *Compiled) Events() []event.Event {
	out := make([]event.Event, len(c.events))
	for i, ev := range c.events {
		out[i] = event.Clone(ev)
	}
	return out
}

// Label resolves a label name to its event index.
func (c *Compiled) Label(name string) (int, bool) {
	index, ok := c.labels[name]
	return index, ok
}

// Labels returns a copy of the label table.
func (c *Compiled) Labels() map[string]int {
	out := make(map[string]int, len(c.labels))
	for name, index := range c.labels {
		out[name] = index
	}
	return out
}

// Start returns the index of the start label.
func (c *Compiled) Start() int {
	return c.labels[StartLabel]
}

// Bytes returns the canonical binary form the id is computed over.
func (c *Compiled) Bytes() []byte {
	return append([]byte(nil), c.bin...)
}
