// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// REFERENCE MAPPING
// =============================================================================

// ReferenceMapping is the per-message reference lookup of one chat.
//
// ByMessage maps a message id to the references stored against it. Legacy
// holds the top-level fields older backends returned instead of a map.
type ReferenceMapping struct {
	ByMessage map[string][]model.RawReference
	Legacy    []model.RawReference
}

// referenceEntry is one map value: either a bare list or an object carrying
// detailed and/or bare references.
type referenceEntry []model.RawReference

func (e *referenceEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = nil
		return nil
	}
	if data[0] == '[' {
		var list []model.RawReference
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*e = list
		return nil
	}
	var obj legacyFields
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unsupported reference entry: %w", err)
	}
	*e = obj.pick()
	return nil
}

// legacyFields accepts both camelCase and snake_case spellings.
type legacyFields struct {
	ReferencedChats        []model.RawReference `json:"referencedChats"`
	ReferencedChatIDs      []model.RawReference `json:"referencedChatIds"`
	ReferencedChatsSnake   []model.RawReference `json:"referenced_chats"`
	ReferencedChatIDsSnake []model.RawReference `json:"referenced_chat_ids"`
}

// pick prefers detailed objects over bare ids.
func (f legacyFields) pick() []model.RawReference {
	switch {
	case len(f.ReferencedChats) > 0:
		return f.ReferencedChats
	case len(f.ReferencedChatsSnake) > 0:
		return f.ReferencedChatsSnake
	case len(f.ReferencedChatIDs) > 0:
		return f.ReferencedChatIDs
	default:
		return f.ReferencedChatIDsSnake
	}
}

// UnmarshalJSON decodes the mapping envelope.
func (m *ReferenceMapping) UnmarshalJSON(data []byte) error {
	var env struct {
		References map[string]referenceEntry `json:"references"`
		legacyFields
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	m.ByMessage = make(map[string][]model.RawReference, len(env.References))
	for k, v := range env.References {
		m.ByMessage[k] = []model.RawReference(v)
	}
	m.Legacy = env.legacyFields.pick()
	return nil
}

// GetReferenceMapping fetches the message-to-references map of a chat.
func (c *Client) GetReferenceMapping(ctx context.Context, chatID string) (*ReferenceMapping, error) {
	var m ReferenceMapping
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/references", nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
