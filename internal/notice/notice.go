// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notice implements the transient, auto-expiring notifications the
// conversation engine raises for transport failures and rejected input.
// Notices never block interaction; the front-end renders whatever is active.
package notice

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// NOTICE TYPES
// =============================================================================

// Kind represents the severity of a notice.
type Kind int

const (
	// KindStatus is informational.
	KindStatus Kind = iota
	// KindError reports a failed network action.
	KindError
	// KindWarning reports rejected input, such as an unsupported file.
	KindWarning
	// KindSuccess confirms a completed action.
	KindSuccess
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindSuccess:
		return "success"
	default:
		return "status"
	}
}

const (
	// DefaultDuration is the auto-dismiss duration for status and success notices.
	DefaultDuration = 4 * time.Second
	// ErrorDuration is longer so failures can be read.
	ErrorDuration = 8 * time.Second
	// WarningDuration is the auto-dismiss duration for warnings.
	WarningDuration = 6 * time.Second
	// MaxActive caps how many notices are kept at once.
	MaxActive = 5
)

// Notice is one transient notification.
type Notice struct {
	ID        int
	Message   string
	Kind      Kind
	CreatedAt time.Time
	Duration  time.Duration
}

// ExpiredAt reports whether the notice should be dismissed at now.
func (n Notice) ExpiredAt(now time.Time) bool {
	return now.Sub(n.CreatedAt) >= n.Duration
}

func durationFor(kind Kind) time.Duration {
	switch kind {
	case KindError:
		return ErrorDuration
	case KindWarning:
		return WarningDuration
	default:
		return DefaultDuration
	}
}

// =============================================================================
// QUEUE
// =============================================================================

// Queue holds the active notices, newest first.
type Queue struct {
	mu      sync.Mutex
	notices []Notice
	nextID  int
	now     func() time.Time
}

// NewQueue creates an empty notice queue.
func NewQueue() *Queue {
	return &Queue{nextID: 1, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Push adds a notice and returns its id.
func (q *Queue) Push(kind Kind, message string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := Notice{
		ID:        q.nextID,
		Message:   message,
		Kind:      kind,
		CreatedAt: q.now(),
		Duration:  durationFor(kind),
	}
	q.nextID++

	q.notices = append([]Notice{n}, q.notices...)
	if len(q.notices) > MaxActive {
		q.notices = q.notices[:MaxActive]
	}
	return n.ID
}

// Error is shorthand for Push(KindError, message).
func (q *Queue) Error(message string) int { return q.Push(KindError, message) }

// Warn is shorthand for Push(KindWarning, message).
func (q *Queue) Warn(message string) int { return q.Push(KindWarning, message) }

// Status is shorthand for Push(KindStatus, message).
func (q *Queue) Status(message string) int { return q.Push(KindStatus, message) }

// Success is shorthand for Push(KindSuccess, message).
func (q *Queue) Success(message string) int { return q.Push(KindSuccess, message) }

// Dismiss removes a notice by id.
func (q *Queue) Dismiss(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, n := range q.notices {
		if n.ID == id {
			q.notices = append(q.notices[:i], q.notices[i+1:]...)
			return
		}
	}
}

// Expire drops expired notices and returns how many remain.
func (q *Queue) Expire() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	active := q.notices[:0]
	for _, n := range q.notices {
		if !n.ExpiredAt(now) {
			active = append(active, n)
		}
	}
	q.notices = active
	return len(q.notices)
}

// Active returns a copy of the current notices, newest first.
func (q *Queue) Active() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Notice, len(q.notices))
	copy(out, q.notices)
	return out
}

// Latest returns the newest notice, if any.
func (q *Queue) Latest() (Notice, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.notices) == 0 {
		return Notice{}, false
	}
	return q.notices[0], true
}

// Clear removes all notices.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notices = nil
}

// =============================================================================
// TEA MESSAGES
// =============================================================================

// TickMsg asks the owner to expire notices.
type TickMsg struct {
	Time time.Time
}

// TickCmd fires a TickMsg every 250ms while notices are showing.
func TickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
