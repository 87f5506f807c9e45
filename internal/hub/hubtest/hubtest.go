// Package hubtest provides an in-memory hub.Channel for tests.
package hubtest

import (
	"errors"
	"sync"
)

// Emitted is one event captured by a RecordingChannel.
type Emitted struct {
	Event string
	Data  any
}

// RecordingChannel is an in-memory hub.Channel that records everything emitted to it.
type RecordingChannel struct {
	id string

	mu     sync.Mutex
	events []Emitted
	closed bool
}

func NewRecordingChannel(id string) *RecordingChannel {
	return &RecordingChannel{id: id}
}

func (c *RecordingChannel) ID() string { return c.id }

func (c *RecordingChannel) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel closed")
	}
	c.events = append(c.events, Emitted{Event: event, Data: data})
	return nil
}

func (c *RecordingChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *RecordingChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *RecordingChannel) Events() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Emitted, len(c.events))
	copy(out, c.events)
	return out
}

// EventNames returns the names of the emitted events in order.
func (c *RecordingChannel) EventNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, e := range c.events {
		names = append(names, e.Event)
	}
	return names
}

// Count returns how many times event was emitted.
func (c *RecordingChannel) Count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Event == event {
			n++
		}
	}
	return n
}
