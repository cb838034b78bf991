// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// FILES
// =============================================================================

// UploadRequest is one file to store.
type UploadRequest struct {
	Filename string
	MimeType string
	FileType model.FileType
	Data     []byte
}

// UploadFile stores a file and returns its server metadata.
func (c *Client) UploadFile(ctx context.Context, up UploadRequest) (*model.FileAttachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Filename))
	if up.MimeType != "" {
		header.Set("Content-Type", up.MimeType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return nil, fmt.Errorf("write multipart data: %w", err)
	}
	if up.FileType != "" {
		if err := mw.WriteField("file_type", string(up.FileType)); err != nil {
			return nil, fmt.Errorf("write multipart field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	resp, err := c.doWithRetry(ctx, request{
		method:      http.MethodPost,
		path:        "/files",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	var f model.FileAttachment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if f.ID == "" {
		return nil, errors.New("upload response missing file id")
	}
	if f.Filename == "" {
		f.Filename = up.Filename
	}
	if f.MimeType == "" {
		f.MimeType = up.MimeType
	}
	if f.FileType == "" {
		f.FileType = up.FileType
	}
	if f.SizeBytes == 0 {
		f.SizeBytes = int64(len(up.Data))
	}
	f.UploadStatus = model.UploadStatusSuccess
	return &f, nil
}

// DeleteFile deletes a stored file. A file that is already gone counts as deleted.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
