// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChatReference is another conversation supplied as context to a message.
type ChatReference struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Details string `json:"details,omitempty"`
}

// PersistedReference is the normal form of a reference the backend stored
// against a specific message.
type PersistedReference struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ToChatReference converts to the display shape.
func (p PersistedReference) ToChatReference() ChatReference {
	return ChatReference{ID: p.ID, Title: p.Title}
}

// =============================================================================
// LEGACY REFERENCE SHAPES
// =============================================================================

// RawReferenceKind tags which legacy shape a reference arrived in.
type RawReferenceKind int

const (
	// RawReferenceNumber is a bare numeric id: 42
	RawReferenceNumber RawReferenceKind = iota + 1
	// RawReferenceString is a bare id-like string: "42"
	RawReferenceString
	// RawReferenceObject is an object carrying id/chat_id and name/title
	RawReferenceObject
)

// RawReference is one reference entry exactly as the backend sent it.
// It is decoded once at the API boundary and normalized with Normalize.
type RawReference struct {
	Kind RawReferenceKind

	Number json.Number // RawReferenceNumber
	Text   string      // RawReferenceString

	// RawReferenceObject
	ObjectID     string
	ObjectChatID string
	ObjectName   string
	ObjectTitle  string
}

type rawReferenceObject struct {
	ID     json.RawMessage `json:"id"`
	ChatID json.RawMessage `json:"chat_id"`
	Name   string          `json:"name"`
	Title  string          `json:"title"`
}

// UnmarshalJSON decodes any of the three legacy shapes.
func (r *RawReference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty reference")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawReference{Kind: RawReferenceString, Text: s}
		return nil
	case '{':
		var obj rawReferenceObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = RawReference{
			Kind:         RawReferenceObject,
			ObjectID:     scalarString(obj.ID),
			ObjectChatID: scalarString(obj.ChatID),
			ObjectName:   obj.Name,
			ObjectTitle:  obj.Title,
		}
		return nil
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("unsupported reference shape: %s", string(data))
		}
		*r = RawReference{Kind: RawReferenceNumber, Number: n}
		return nil
	}
}

// MarshalJSON writes the reference back in its original shape.
func (r RawReference) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RawReferenceNumber:
		return []byte(r.Number.String()), nil
	case RawReferenceString:
		return json.Marshal(r.Text)
	case RawReferenceObject:
		return json.Marshal(map[string]string{
			"id":      r.ObjectID,
			"chat_id": r.ObjectChatID,
			"name":    r.ObjectName,
			"title":   r.ObjectTitle,
		})
	default:
		return []byte("null"), nil
	}
}

// scalarString turns a JSON number or string into its textual form.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// Normalize collapses a raw reference into its persisted form. ok is false
// when no usable id can be extracted.
func Normalize(r RawReference) (PersistedReference, bool) {
	var ref PersistedReference
	switch r.Kind {
	case RawReferenceNumber:
		ref.ID = canonicalID(r.Number.String())
	case RawReferenceString:
		ref.ID = canonicalID(r.Text)
	case RawReferenceObject:
		ref.ID = canonicalID(r.ObjectID)
		if ref.ID == "" {
			ref.ID = canonicalID(r.ObjectChatID)
		}
		ref.Title = strings.TrimSpace(r.ObjectTitle)
		if ref.Title == "" {
			ref.Title = strings.TrimSpace(r.ObjectName)
		}
	}
	if ref.ID == "" {
		return PersistedReference{}, false
	}
	return ref, true
}

// NormalizeAll normalizes a list, dropping unusable entries and duplicate ids.
// The first occurrence of an id wins.
func NormalizeAll(raws []RawReference) []PersistedReference {
	out := make([]PersistedReference, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		ref, ok := Normalize(raw)
		if !ok || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		out = append(out, ref)
	}
	return out
}

// canonicalID trims whitespace and strips a trailing ".0" from integral
// float renderings so 42 and 42.0 compare equal.
func canonicalID(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	}
	return s
}
