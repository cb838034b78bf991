// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// STREAM TYPES
// =============================================================================

// FrameType names a server-sent frame.
type FrameType string

const (
	FrameTextDelta      FrameType = "text_delta"
	FrameStreamComplete FrameType = "stream_complete"
	FrameError          FrameType = "error"
)

// ErrStreamFailed is wrapped by errors reported in an error frame.
var ErrStreamFailed = errors.New("stream failed")

// SendRequest is the body of a send-message call.
type SendRequest struct {
	Question             string                 `json:"question"`
	FileReferenceIDs     []string               `json:"file_reference_ids,omitempty"`
	FileReferenceDetails []model.FileAttachment `json:"file_reference_details,omitempty"`
	ReferencedChatIDs    []string               `json:"referenced_chat_ids,omitempty"`
}

// StreamComplete is the payload of the terminal frame.
type StreamComplete struct {
	Message        model.HistoryRecord `json:"message"`
	ChatTitle      string              `json:"chat_title,omitempty"`
	IsFirstMessage bool                `json:"is_first_message"`
}

// StreamEvent is one decoded frame. Exactly one of Delta, Complete or Err is
// meaningful; Complete and Err are terminal.
type StreamEvent struct {
	Type     FrameType
	Delta    string
	Complete *StreamComplete
	Err      error
}

// StreamError represents an error that occurred during streaming,
// preserving any partial content received before the error.
type StreamError struct {
	Partial string // Content received before error
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type, data, and any error.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !(err == io.EOF && len(line) > 0) {
			if err == io.EOF {
				// If we have data, return it before EOF
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			eventType = ""
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[5:]
			if len(data) > 0 && data[0] == ' ' {
				data = data[1:]
			}
			dataLines = append(dataLines, data)
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// FRAME DECODING
// =============================================================================

type rawFrame struct {
	Type           FrameType       `json:"type"`
	Delta          string          `json:"delta"`
	Content        string          `json:"content"`
	Message        json.RawMessage `json:"message"`
	ChatTitle      string          `json:"chat_title"`
	IsFirstMessage bool            `json:"is_first_message"`
	Error          json.RawMessage `json:"error"`
}

// decodeFrame turns one SSE event into a StreamEvent. ok is false for frames
// that should be ignored.
func decodeFrame(eventType string, data []byte) (StreamEvent, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("[DONE]")) {
		return StreamEvent{}, false, nil
	}

	var f rawFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return StreamEvent{}, false, fmt.Errorf("malformed frame: %w", err)
	}
	if eventType != "" && eventType != "message" {
		f.Type = FrameType(eventType)
	}

	switch f.Type {
	case FrameTextDelta:
		delta := f.Delta
		if delta == "" {
			delta = f.Content
		}
		return StreamEvent{Type: FrameTextDelta, Delta: delta}, true, nil

	case FrameStreamComplete:
		var sc StreamComplete
		if len(f.Message) > 0 {
			if err := json.Unmarshal(f.Message, &sc.Message); err != nil {
				return StreamEvent{}, false, fmt.Errorf("malformed completion record: %w", err)
			}
		}
		sc.ChatTitle = strings.TrimSpace(f.ChatTitle)
		sc.IsFirstMessage = f.IsFirstMessage
		return StreamEvent{Type: FrameStreamComplete, Complete: &sc}, true, nil

	case FrameError:
		msg := frameErrorMessage(f)
		return StreamEvent{Type: FrameError, Err: fmt.Errorf("%w: %s", ErrStreamFailed, msg)}, true, nil

	default:
		return StreamEvent{}, false, nil
	}
}

func frameErrorMessage(f rawFrame) string {
	if len(f.Message) > 0 {
		var s string
		if json.Unmarshal(f.Message, &s) == nil && s != "" {
			return s
		}
	}
	if len(f.Error) > 0 {
		var s string
		if json.Unmarshal(f.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(f.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return "unknown error"
}

// =============================================================================
// SEND (STREAMING)
// =============================================================================

// SendMessage posts a question and streams the reply. The connection is
// established before returning; frames are then delivered on the channel,
// which is closed after the terminal event. A stream that ends without a
// completion frame delivers a *StreamError.
func (c *Client) SendMessage(ctx context.Context, chatID string, req SendRequest) (<-chan StreamEvent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, request{
		method:      http.MethodPost,
		path:        "/chats/" + url.PathEscape(chatID) + "/messages",
		body:        body,
		contentType: "application/json",
		accept:      "text/event-stream",
		streaming:   true,
	})
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 64)
	go c.pump(ctx, resp, events)
	return events, nil
}

// pump reads frames until the terminal event, EOF, or cancellation.
func (c *Client) pump(ctx context.Context, resp *http.Response, events chan<- StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	send := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var partial strings.Builder
	reader := NewSSEReader(io.LimitReader(resp.Body, MaxResponseSize))

	for {
		eventType, data, err := reader.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			send(StreamEvent{Err: &StreamError{Partial: partial.String(), Err: err}})
			return
		}

		ev, ok, err := decodeFrame(eventType, data)
		if err != nil {
			c.logger.Warn("skipping malformed frame", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		switch ev.Type {
		case FrameTextDelta:
			partial.WriteString(ev.Delta)
			if !send(ev) {
				return
			}
		case FrameStreamComplete:
			send(ev)
			return
		case FrameError:
			ev.Err = &StreamError{Partial: partial.String(), Err: ev.Err}
			send(ev)
			return
		}
	}
}
