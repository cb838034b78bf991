// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	cfg := config.Default().API
	cfg.BaseURL = server.URL
	cfg.Token = "tok-123"
	return NewClient(cfg).
		WithBackoff(time.Millisecond, 5*time.Millisecond).
		WithRateLimit(0, 0)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func TestClient_SetsHeaders(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "/projects/p1/chats", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		assert.Equal(t, "roadmap", r.URL.Query().Get("search"))
		w.Write([]byte(`{"records":[{"id":1,"name":"Roadmap"}],"pagination":{"has_next":true,"current_page":2,"pages":3}}`))
	}))

	page, err := client.ListChats(context.Background(), "p1", ListChatsParams{Page: 2, PageSize: 10, Search: "roadmap"})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "1", page.Records[0].ID)
	assert.True(t, page.Pagination.HasNext)
}

func TestClient_RetriesIdempotentOn5xx(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"records":[],"pagination":{}}`))
	}))

	_, err := client.GetHistory(context.Background(), "c1", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryPostOn5xx(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"database unavailable"}`))
	}))

	_, err := client.CreateChat(context.Background(), "p1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServer))
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "database unavailable", apiErr.Message)
}

func TestClient_ExhaustedRetriesKeepStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})).WithMaxRetries(1)

	_, err := client.GetReferenceMapping(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestAPIError_Is(t *testing.T) {
	assert.True(t, errors.Is(&APIError{Status: 401}, ErrUnauthorized))
	assert.True(t, errors.Is(&APIError{Status: 404}, ErrNotFound))
	assert.False(t, errors.Is(&APIError{Status: 404}, ErrServer))
	assert.True(t, errors.Is(&APIError{Status: 503}, ErrServer))
}

func TestNewAPIError_Envelopes(t *testing.T) {
	assert.Equal(t, "bad", newAPIError(400, []byte(`{"error":{"code":"x","message":"bad"}}`)).Message)
	assert.Equal(t, "nope", newAPIError(400, []byte(`{"message":"nope"}`)).Message)
	assert.Equal(t, "plain text", newAPIError(400, []byte("plain text")).Message)
}

func TestCalculateBackoff(t *testing.T) {
	c := NewClient(config.Default().API)
	assert.Equal(t, 500*time.Millisecond, c.calculateBackoff(0))
	assert.Equal(t, time.Second, c.calculateBackoff(1))
	assert.Equal(t, 10*time.Second, c.calculateBackoff(10))
}

// =============================================================================
// CHAT RECORDS
// =============================================================================

func TestClient_ChatLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/projects/p1/chats", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, model.DefaultChatTitle, body["name"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"c9","name":"New Chat"}`))
	})
	mux.HandleFunc("/chats/c9", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"id":"c9","name":"Trip notes","project_id":"p1","message_count":3}`))
		case http.MethodPatch:
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Write([]byte(`{"id":"c9","name":"` + body["name"] + `"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	chat, err := client.CreateChat(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, "c9", chat.ID)
	assert.Equal(t, "p1", chat.ProjectID)

	got, err := client.GetChat(ctx, "c9")
	require.NoError(t, err)
	assert.Equal(t, "Trip notes", got.Name)

	name := "Renamed"
	updated, err := client.UpdateChat(ctx, "c9", ChatUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	assert.NoError(t, client.DeleteChat(ctx, "c9"), "404 on delete counts as deleted")
}

// =============================================================================
// REFERENCE MAPPING
// =============================================================================

func TestReferenceMapping_DecodesAllShapes(t *testing.T) {
	data := []byte(`{
		"references": {
			"41": [1, "2"],
			"42": {"referencedChats": [{"chat_id": 7, "name": "Specs"}], "referencedChatIds": [7]},
			"43": {"referencedChatIds": [9]}
		},
		"referencedChatIds": [5]
	}`)

	var m ReferenceMapping
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, []model.PersistedReference{{ID: "1"}, {ID: "2"}}, model.NormalizeAll(m.ByMessage["41"]))
	assert.Equal(t, []model.PersistedReference{{ID: "7", Title: "Specs"}}, model.NormalizeAll(m.ByMessage["42"]))
	assert.Equal(t, []model.PersistedReference{{ID: "9"}}, model.NormalizeAll(m.ByMessage["43"]))
	assert.Equal(t, []model.PersistedReference{{ID: "5"}}, model.NormalizeAll(m.Legacy))
}

func TestReferenceMapping_LegacyOnly(t *testing.T) {
	var m ReferenceMapping
	require.NoError(t, json.Unmarshal([]byte(`{"referenced_chats":[{"id":"3","title":"Old"}]}`), &m))
	assert.Empty(t, m.ByMessage)
	assert.Equal(t, []model.PersistedReference{{ID: "3", Title: "Old"}}, model.NormalizeAll(m.Legacy))
}

// =============================================================================
// FILES
// =============================================================================

func TestClient_UploadFile(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files", r.URL.Path)
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "file", part.FormName())
		assert.Equal(t, "notes.txt", part.FileName())
		data, _ := io.ReadAll(part)
		assert.Equal(t, "hello", string(data))

		w.Write([]byte(`{"id": 77, "filename": "notes.txt", "mime_type": "text/plain", "downloadable": true}`))
	}))

	f, err := client.UploadFile(context.Background(), UploadRequest{
		Filename: "notes.txt",
		MimeType: "text/plain",
		FileType: model.FileTypeDocument,
		Data:     []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "77", f.ID)
	assert.Equal(t, model.UploadStatusSuccess, f.UploadStatus)
	assert.Equal(t, model.FileTypeDocument, f.FileType)
	assert.Equal(t, int64(5), f.SizeBytes)
}

func TestClient_DeleteFile(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(int(status.Load()))
	})).WithMaxRetries(0)

	assert.NoError(t, client.DeleteFile(context.Background(), "f1"))

	status.Store(http.StatusNotFound)
	assert.NoError(t, client.DeleteFile(context.Background(), "f1"))

	status.Store(http.StatusInternalServerError)
	assert.Error(t, client.DeleteFile(context.Background(), "f1"))
}

// =============================================================================
// STREAMING
// =============================================================================

func TestSSEReader_ReadEvent(t *testing.T) {
	input := "event: text_delta\ndata: {\"delta\":\"a\"}\n\n: comment\ndata: line1\ndata: line2\n\ndata: tail"
	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "text_delta", typ)
	assert.Equal(t, `{"delta":"a"}`, string(data))

	typ, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "", typ)
	assert.Equal(t, "line1\nline2", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, _, err = r.ReadEvent()
	assert.Equal(t, io.EOF, err)
}

func sseHandler(t *testing.T, frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			io.WriteString(w, "data: "+f+"\n\n")
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream")
		}
	}
}

func TestSendMessage_DeltasThenComplete(t *testing.T) {
	client := newTestClient(t, sseHandler(t,
		`{"type":"text_delta","delta":"Hi "}`,
		`{"type":"usage_update","tokens":3}`,
		`{"type":"text_delta","delta":"there"}`,
		`{"type":"stream_complete","message":{"id":42,"question":"Hello","answer":"Hi there","created_at":"2025-01-01T00:00:00Z"},"chat_title":"Greetings","is_first_message":true}`,
	))

	ch, err := client.SendMessage(context.Background(), "c1", SendRequest{Question: "Hello"})
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 3, "unknown frame types are ignored")
	assert.Equal(t, "Hi ", events[0].Delta)
	assert.Equal(t, "there", events[1].Delta)
	require.NotNil(t, events[2].Complete)
	assert.Equal(t, "42", events[2].Complete.Message.ID)
	assert.Equal(t, "Greetings", events[2].Complete.ChatTitle)
	assert.True(t, events[2].Complete.IsFirstMessage)
}

func TestSendMessage_ErrorFrameKeepsPartial(t *testing.T) {
	client := newTestClient(t, sseHandler(t,
		`{"type":"text_delta","delta":"Par"}`,
		`{"type":"error","message":"model overloaded"}`,
	))

	ch, err := client.SendMessage(context.Background(), "c1", SendRequest{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 2)

	var se *StreamError
	require.True(t, errors.As(events[1].Err, &se))
	assert.Equal(t, "Par", se.Partial)
	assert.True(t, errors.Is(events[1].Err, ErrStreamFailed))
	assert.Contains(t, events[1].Err.Error(), "stream error")
}

func TestSendMessage_TruncatedStream(t *testing.T) {
	client := newTestClient(t, sseHandler(t, `{"type":"text_delta","delta":"x"}`))

	ch, err := client.SendMessage(context.Background(), "c1", SendRequest{Question: "q"})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.True(t, errors.Is(events[1].Err, io.ErrUnexpectedEOF))
}

func TestSendMessage_ConnectFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.SendMessage(context.Background(), "c1", SendRequest{Question: "q"})
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
