// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/attachment"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
	"github.com/grayphite/polaris-frontend-sub000/internal/notice"
	"github.com/grayphite/polaris-frontend-sub000/internal/reference"
	"github.com/grayphite/polaris-frontend-sub000/internal/storage"
	"github.com/grayphite/polaris-frontend-sub000/internal/stream"
	"github.com/grayphite/polaris-frontend-sub000/internal/timeline"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned when the compose text is blank.
	ErrEmptyInput = errors.New("message is empty")

	// ErrUploadsPending is returned while an attachment is still uploading.
	ErrUploadsPending = errors.New("attachments are still uploading")

	// ErrStreamActive is returned while a reply is still streaming.
	ErrStreamActive = errors.New("a reply is still streaming")

	// ErrNoChat is returned when no chat is open.
	ErrNoChat = errors.New("no chat is open")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is everything the session needs from the server. *api.Client
// implements it.
type Backend interface {
	timeline.HistoryClient
	attachment.Uploader
	reference.MappingClient
	reference.Searcher

	SendMessage(ctx context.Context, chatID string, req api.SendRequest) (<-chan api.StreamEvent, error)
	RenameChat(ctx context.Context, chatID, name string) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Identity is the acting user. It is injected rather than read from any
// ambient state.
type Identity struct {
	UserID      string
	DisplayName string
	ProjectID   string
	ProjectRole string
}

// IdentityFromConfig builds an identity from the identity section.
func IdentityFromConfig(cfg config.IdentityConfig) Identity {
	return Identity{
		UserID:      cfg.UserID,
		DisplayName: cfg.DisplayName,
		ProjectID:   cfg.ProjectID,
		ProjectRole: cfg.ProjectRole,
	}
}

// Author returns the author stamped on optimistic user messages.
func (id Identity) Author() *model.AuthorInfo {
	if id.UserID == "" && id.DisplayName == "" {
		return nil
	}
	return &model.AuthorInfo{UserID: id.UserID, DisplayName: id.DisplayName}
}

// TitleFunc is told when a chat's display title changes, so the chat list
// can follow.
type TitleFunc func(chatID, title string)

// =============================================================================
// PHASE
// =============================================================================

// Phase is the state of the send state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseOptimisticInsert
	PhaseStreaming
	PhaseReconciling
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseOptimisticInsert:
		return "optimistic_insert"
	case PhaseStreaming:
		return "streaming"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the conversation engine of one open chat. It is not safe for
// concurrent use; drive it from the Bubble Tea update loop.
type Session struct {
	backend     Backend
	identity    Identity
	scratch     *storage.Scratch
	notices     *notice.Queue
	logger      *zap.Logger
	now         func() time.Time
	onTitle     TitleFunc
	recentLimit int

	timeline    *timeline.Manager
	attachments *attachment.Orchestrator
	references  *reference.Resolver
	picker      *reference.Picker
	stream      *stream.Consumer

	base   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	gen    int

	chat    model.Chat
	phase   Phase
	compose string
	caret   int
	pending *pendingSend
}

// pendingSend tracks the placeholders of the send in flight.
type pendingSend struct {
	userID      string
	assistantID string
}

// New creates a session with no chat open.
func New(backend Backend, scratch *storage.Scratch, cfg *config.Config, identity Identity, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if scratch == nil {
		scratch = storage.NewScratch(storage.NewMemoryStore(), logger)
	}

	s := &Session{
		backend:     backend,
		identity:    identity,
		scratch:     scratch,
		notices:     notice.NewQueue(),
		logger:      logger.Named("session"),
		now:         time.Now,
		recentLimit: cfg.Picker.RecentLimit,
		timeline:    timeline.NewManager(backend, cfg.Timeline, logger.Named("timeline")),
		attachments: attachment.New(backend, cfg.Uploads, logger.Named("attachment")),
		references:  reference.NewResolver(backend, scratch, logger.Named("reference")),
		picker:      reference.NewPicker(backend, scratch, cfg.Picker, logger.Named("picker")),
		stream:      stream.NewConsumer(cfg.Stream),
		base:        context.Background(),
	}
	s.ctx, s.cancel = context.WithCancel(s.base)
	return s
}

// WithContext sets the parent of every per-chat context.
func (s *Session) WithContext(ctx context.Context) *Session {
	s.cancel()
	s.base = ctx
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s
}

// WithClock overrides the time source for placeholder ids and timestamps.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// WithTitleCallback registers the chat-list collaborator.
func (s *Session) WithTitleCallback(fn TitleFunc) *Session {
	s.onTitle = fn
	return s
}

// WithNotices replaces the notice queue.
func (s *Session) WithNotices(q *notice.Queue) *Session {
	s.notices = q
	return s
}

// Timeline returns the message list.
func (s *Session) Timeline() *timeline.Manager { return s.timeline }

// Attachments returns the compose box attachments.
func (s *Session) Attachments() *attachment.Orchestrator { return s.attachments }

// References returns the reference chips.
func (s *Session) References() *reference.Resolver { return s.references }

// Picker returns the chat picker.
func (s *Session) Picker() *reference.Picker { return s.picker }

// Stream returns the reveal state of the current reply.
func (s *Session) Stream() *stream.Consumer { return s.stream }

// Notices returns the transient notice queue.
func (s *Session) Notices() *notice.Queue { return s.notices }

// Scratch returns the local scratch keys.
func (s *Session) Scratch() *storage.Scratch { return s.scratch }

// Identity returns the acting user.
func (s *Session) Identity() Identity { return s.identity }

// Chat returns the open chat.
func (s *Session) Chat() model.Chat { return s.chat }

// Title returns the display title of the open chat.
func (s *Session) Title() string { return s.chat.Title() }

// Phase returns the send state.
func (s *Session) Phase() Phase { return s.phase }

// Busy reports whether a send is in flight.
func (s *Session) Busy() bool {
	return s.pending != nil || s.stream.Busy()
}

// Compose returns the compose text and caret (in runes).
func (s *Session) Compose() (string, int) { return s.compose, s.caret }

// =============================================================================
// NAVIGATION
// =============================================================================

// Open switches to chat and discards all state of the previous one. In-flight
// results for the previous chat are dropped. If the previous chat never
// received a message it is deleted.
func (s *Session) Open(chat model.Chat) tea.Cmd {
	prev := s.chat.ID

	s.cancel()
	s.ctx, s.cancel = context.WithCancel(s.base)
	s.gen++

	s.stream.Abort()
	s.pending = nil
	s.phase = PhaseIdle
	s.compose, s.caret = "", 0

	if chat.ProjectID == "" {
		chat.ProjectID = s.identity.ProjectID
	}
	if chat.Name == "" || chat.Name == model.DefaultChatTitle {
		if title, ok := s.scratch.ProvisionalTitle(chat.ID); ok {
			chat.Name = title
		}
	}
	s.chat = chat

	project := s.projectID()
	s.timeline.Reset(chat.ID)
	s.attachments.Reset()
	s.references.Reset(project, chat.ID)
	s.picker.SetScope(project, chat.ID)

	if chat.MessageCount == 0 && chat.Title() == model.DefaultChatTitle {
		s.logWrite("mark empty chat", s.scratch.MarkEmptyChat(project, chat.ID))
	}
	s.logWrite("touch recent chat", s.scratch.TouchRecentChat(project, storage.RecentChat{
		ID:       chat.ID,
		Title:    chat.Name,
		OpenedAt: s.now(),
	}, s.recentLimit))

	s.logger.Debug("chat opened",
		zap.String("chat_id", chat.ID),
		zap.String("previous", prev),
		zap.Int("gen", s.gen))

	return tea.Batch(
		s.cleanupEmptyChats(chat.ID),
		s.timeline.LoadInitial(s.ctx),
		s.references.Load(s.ctx),
	)
}

// Close cancels in-flight work and deletes the open chat if it never
// received a message. It blocks and is meant for shutdown.
func (s *Session) Close(ctx context.Context) error {
	s.cancel()
	s.stream.Abort()
	s.pending = nil
	deleted, err := deleteChats(ctx, s.backend, s.emptyChatsExcept(""))
	s.forgetDeleted(deleted)
	return err
}

// Rename sets the chat title. The display updates at once; the server update
// runs in the background and a failure is only logged.
func (s *Session) Rename(title string) tea.Cmd {
	if s.chat.ID == "" || title == "" || title == s.chat.Name {
		return nil
	}
	chatID, project := s.chat.ID, s.projectID()
	s.applyTitle(title)
	if title != model.DefaultChatTitle {
		s.logWrite("unmark empty chat", s.scratch.UnmarkEmptyChat(project, chatID))
	}

	backend, ctx := s.backend, s.ctx
	return func() tea.Msg {
		err := backend.RenameChat(ctx, chatID, title)
		return renameDoneMsg{chatID: chatID, title: title, err: err}
	}
}

func (s *Session) applyTitle(title string) {
	s.chat.Name = title
	s.logWrite("store provisional title", s.scratch.SetProvisionalTitle(s.chat.ID, title))
	s.logWrite("rename recent chat", s.scratch.RenameRecentChat(s.projectID(), s.chat.ID, title))
	if s.onTitle != nil {
		s.onTitle(s.chat.ID, title)
	}
}

func (s *Session) projectID() string {
	if s.chat.ProjectID != "" {
		return s.chat.ProjectID
	}
	return s.identity.ProjectID
}

// logWrite logs a failed scratch write. Scratch state is advisory.
func (s *Session) logWrite(what string, err error) {
	if err != nil {
		s.logger.Warn("scratch write failed", zap.String("op", what), zap.Error(err))
	}
}
