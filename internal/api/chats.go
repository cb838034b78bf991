// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// CHAT RECORDS
// =============================================================================

// ListChatsParams filters a project chat listing.
type ListChatsParams struct {
	Page     int
	PageSize int
	Search   string
}

// ChatPage is one page of a project's chats.
type ChatPage struct {
	Records    []model.Chat     `json:"records"`
	Pagination model.Pagination `json:"pagination"`
}

// HistoryPage is one page of a chat's question/answer records.
type HistoryPage struct {
	Records    []model.HistoryRecord `json:"records"`
	Pagination model.Pagination      `json:"pagination"`
}

// ChatUpdate is a partial chat update. Nil fields are left unchanged.
type ChatUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func pageQuery(page, pageSize int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	return q
}

// ListChats returns one page of the project's chats, optionally filtered by
// a free-text search.
func (c *Client) ListChats(ctx context.Context, projectID string, p ListChatsParams) (*ChatPage, error) {
	q := pageQuery(p.Page, p.PageSize)
	if p.Search != "" {
		q.Set("search", p.Search)
	}

	var page ChatPage
	if err := c.doJSON(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/chats", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateChat creates a chat in the project. An empty name uses the default title.
func (c *Client) CreateChat(ctx context.Context, projectID, name string) (*model.Chat, error) {
	if name == "" {
		name = model.DefaultChatTitle
	}
	body := map[string]string{"name": name}

	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPost, "/projects/"+url.PathEscape(projectID)+"/chats", nil, body, &chat); err != nil {
		return nil, err
	}
	if chat.ProjectID == "" {
		chat.ProjectID = projectID
	}
	return &chat, nil
}

// GetChat fetches one chat record.
func (c *Client) GetChat(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil, nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChat applies a partial update and returns the updated record.
func (c *Client) UpdateChat(ctx context.Context, chatID string, upd ChatUpdate) (*model.Chat, error) {
	var chat model.Chat
	if err := c.doJSON(ctx, http.MethodPatch, "/chats/"+url.PathEscape(chatID), nil, upd, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// RenameChat is UpdateChat with only a name.
func (c *Client) RenameChat(ctx context.Context, chatID, name string) error {
	_, err := c.UpdateChat(ctx, chatID, ChatUpdate{Name: &name})
	return err
}

// DeleteChat deletes a chat. Deleting a chat that is already gone succeeds.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/chats/"+url.PathEscape(chatID), nil, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// GetHistory returns one page of a chat's records, newest page first.
func (c *Client) GetHistory(ctx context.Context, chatID string, page, pageSize int) (*HistoryPage, error) {
	var hp HistoryPage
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", pageQuery(page, pageSize), nil, &hp); err != nil {
		return nil, err
	}
	return &hp, nil
}
