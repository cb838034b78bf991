// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream reveals one streamed assistant reply at a steady rate.
//
// Two pieces of text are tracked: the buffer, which holds everything the
// server has sent so far, and the display, which is what the user sees. The
// buffer only grows as deltas arrive. A fixed-period tick moves the display
// toward the buffer by a constant number of runes, so bursty networks still
// produce smooth output. The display is always a prefix of the buffer.
package stream

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is a snapshot of one reply being revealed.
type State struct {
	StreamingMessageID string
	BufferedText       string
	DisplayedText      string
	Sources            []model.SourceCitation
	IsComplete         bool
}

// CaughtUp reports whether the display shows the whole buffer.
func (s State) CaughtUp() bool {
	return s.DisplayedText == s.BufferedText
}

// TickMsg advances the display of the stream identified by Gen.
type TickMsg struct {
	Gen  int
	Time time.Time
}

// TickFunc schedules a timer message; tea.Tick in production.
type TickFunc func(time.Duration, func(time.Time) tea.Msg) tea.Cmd

// Default reveal pacing.
const (
	DefaultInterval     = 33 * time.Millisecond // ~30fps
	DefaultCharsPerTick = 3
)

// =============================================================================
// CONSUMER
// =============================================================================

// Consumer owns the reveal state of at most one reply at a time.
// It is driven from the Bubble Tea update loop and is not safe for
// concurrent use.
type Consumer struct {
	state        State
	active       bool
	ticking      bool
	gen          int
	interval     time.Duration
	charsPerTick int
	tick         TickFunc
}

// NewConsumer creates an idle consumer paced by cfg.
func NewConsumer(cfg config.StreamConfig) *Consumer {
	c := &Consumer{
		interval:     cfg.RevealInterval(),
		charsPerTick: cfg.CharsPerTick,
		tick:         tea.Tick,
	}
	if c.interval <= 0 {
		c.interval = DefaultInterval
	}
	if c.charsPerTick <= 0 {
		c.charsPerTick = DefaultCharsPerTick
	}
	return c
}

// WithTicker replaces the timer source, for tests.
func (c *Consumer) WithTicker(fn TickFunc) *Consumer {
	c.tick = fn
	return c
}

// State returns a copy of the current state.
func (c *Consumer) State() State {
	s := c.state
	s.Sources = append([]model.SourceCitation(nil), c.state.Sources...)
	return s
}

// Busy reports whether a reply is in flight. A completed reply that is still
// being revealed does not count.
func (c *Consumer) Busy() bool {
	return c.active && !c.state.IsComplete
}

// Revealing reports whether a reply is registered and its display is not
// yet caught up with its buffer.
func (c *Consumer) Revealing() bool {
	return c.active && !c.state.CaughtUp()
}

// MessageID returns the id of the message being revealed, if any.
func (c *Consumer) MessageID() string {
	if !c.active {
		return ""
	}
	return c.state.StreamingMessageID
}

// Begin registers a new placeholder and resets buffer and display.
func (c *Consumer) Begin(messageID string) {
	c.gen++
	c.active = true
	c.ticking = false
	c.state = State{StreamingMessageID: messageID}
}

// Append grows the buffer and makes sure the reveal timer is running.
func (c *Consumer) Append(delta string) tea.Cmd {
	if !c.active || c.state.IsComplete || delta == "" {
		return nil
	}
	c.state.BufferedText += delta
	return c.ensureTicking()
}

// Complete marks the reply finished. The authoritative answer replaces the
// buffer; the display is clamped to the longest prefix it shares with the
// new buffer so it never shows text the final answer does not contain.
func (c *Consumer) Complete(answer string, sources []model.SourceCitation) tea.Cmd {
	if !c.active {
		return nil
	}
	c.state.IsComplete = true
	c.state.Sources = append([]model.SourceCitation(nil), sources...)
	if answer != "" {
		c.state.BufferedText = answer
		c.state.DisplayedText = CommonPrefix(c.state.DisplayedText, answer)
	}
	if c.state.CaughtUp() {
		c.finish()
		return nil
	}
	return c.ensureTicking()
}

// Rekey renames the message being revealed, after the server issued its id.
func (c *Consumer) Rekey(oldID, newID string) {
	if c.active && c.state.StreamingMessageID == oldID {
		c.state.StreamingMessageID = newID
	}
}

// Flush ends the reveal of a completed reply at once. It returns the reply's
// id and full text so the caller can write them out before the next Begin
// discards the state. Flush is a no-op while the reply is still streaming.
func (c *Consumer) Flush() (id, text string, ok bool) {
	if !c.active || !c.state.IsComplete {
		return "", "", false
	}
	c.gen++
	c.state.DisplayedText = c.state.BufferedText
	c.finish()
	return c.state.StreamingMessageID, c.state.BufferedText, true
}

// Abort drops the current reply without revealing the rest.
func (c *Consumer) Abort() {
	c.gen++
	c.active = false
	c.ticking = false
	c.state = State{}
}

// Update handles reveal ticks. It returns the next tick while the display is
// behind the buffer, and whether the display changed.
func (c *Consumer) Update(msg tea.Msg) (tea.Cmd, bool) {
	tick, ok := msg.(TickMsg)
	if !ok || tick.Gen != c.gen || !c.active {
		return nil, false
	}
	c.ticking = false

	before := c.state.DisplayedText
	c.state.DisplayedText = CatchUp(c.state.DisplayedText, c.state.BufferedText, c.charsPerTick)
	changed := c.state.DisplayedText != before

	if c.state.CaughtUp() {
		if c.state.IsComplete {
			c.finish()
		}
		return nil, changed
	}
	return c.ensureTicking(), changed
}

func (c *Consumer) finish() {
	c.active = false
	c.ticking = false
}

func (c *Consumer) ensureTicking() tea.Cmd {
	if c.ticking || c.state.CaughtUp() {
		return nil
	}
	c.ticking = true
	gen := c.gen
	return c.tick(c.interval, func(t time.Time) tea.Msg {
		return TickMsg{Gen: gen, Time: t}
	})
}

// =============================================================================
// PURE STEPS
// =============================================================================

// CatchUp advances displayed toward buffered by at most step runes. When
// displayed is not a prefix of buffered it restarts from their common prefix.
// The result is always a prefix of buffered and never shorter than the
// common prefix of the inputs.
func CatchUp(displayed, buffered string, step int) string {
	if step <= 0 {
		step = 1
	}
	base := []rune(CommonPrefix(displayed, buffered))
	target := []rune(buffered)
	if len(base) >= len(target) {
		return buffered
	}
	next := len(base) + step
	if next > len(target) {
		next = len(target)
	}
	return string(target[:next])
}

// CommonPrefix returns the longest rune-aligned common prefix of a and b.
func CommonPrefix(a, b string) string {
	ra, rb := []rune(a), []rune(b)
	n := len(ra)
	if len(rb) < n {
		n = len(rb)
	}
	i := 0
	for i < n && ra[i] == rb[i] {
		i++
	}
	return string(ra[:i])
}
