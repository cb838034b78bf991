// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// FileType classifies an attachment.
type FileType string

const (
	FileTypeDocument FileType = "document"
	FileTypeImage    FileType = "image"
)

// UploadStatus is the lifecycle state of a queued file.
type UploadStatus string

const (
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusSuccess   UploadStatus = "success"
	UploadStatusError     UploadStatus = "error"
)

// FileAttachment is file metadata, either server-issued or a local placeholder.
type FileAttachment struct {
	ID           string       `json:"id"`
	Filename     string       `json:"filename"`
	MimeType     string       `json:"mime_type"`
	SizeBytes    int64        `json:"size_bytes"`
	FileType     FileType     `json:"file_type"`
	Downloadable bool         `json:"downloadable"`
	CreatedAt    time.Time    `json:"created_at"`
	UploadStatus UploadStatus `json:"upload_status,omitempty"`
	UploadError  string       `json:"upload_error,omitempty"`
}

// IsUploading reports whether the upload is still in flight.
func (f FileAttachment) IsUploading() bool {
	return f.UploadStatus == UploadStatusUploading
}

// IsReady reports whether the file can be referenced by a send.
func (f FileAttachment) IsReady() bool {
	return f.UploadStatus == UploadStatusSuccess
}
