// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// The backend serializes ids as either JSON numbers or strings depending on
// the endpoint. The decoders below accept both and store the canonical text.

// ParseID returns the canonical textual form of a JSON id value.
func ParseID(raw json.RawMessage) string {
	return canonicalID(scalarString(raw))
}

func parseIDs(raws []json.RawMessage) []string {
	if len(raws) == 0 {
		return nil
	}
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if id := ParseID(raw); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// UnmarshalJSON accepts numeric or string ids.
func (c *Chat) UnmarshalJSON(data []byte) error {
	type alias Chat
	aux := struct {
		ID        json.RawMessage `json:"id"`
		ProjectID json.RawMessage `json:"project_id"`
		*alias
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ID = ParseID(aux.ID)
	c.ProjectID = ParseID(aux.ProjectID)
	return nil
}

// UnmarshalJSON accepts numeric or string ids.
func (r *HistoryRecord) UnmarshalJSON(data []byte) error {
	type alias HistoryRecord
	aux := struct {
		ID               json.RawMessage   `json:"id"`
		FileReferenceIDs []json.RawMessage `json:"file_reference_ids"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ID = ParseID(aux.ID)
	r.FileReferenceIDs = parseIDs(aux.FileReferenceIDs)
	return nil
}

// UnmarshalJSON accepts numeric or string ids.
func (f *FileAttachment) UnmarshalJSON(data []byte) error {
	type alias FileAttachment
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.ID = ParseID(aux.ID)
	return nil
}

// SameID reports whether two textual ids name the same record, treating
// integral float renderings ("42.0") as equal to their integer form.
func SameID(a, b string) bool {
	return canonicalID(a) == canonicalID(b)
}
