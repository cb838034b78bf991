// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnsupportedType is returned when a file's type is not allowed for its kind.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrTooManyPages is returned when a PDF exceeds the page ceiling.
	ErrTooManyPages = errors.New("document has too many pages")

	// ErrFileTooLarge is returned when a file exceeds the size ceiling.
	ErrFileTooLarge = errors.New("file too large")
)

// Rejection is a file refused by local validation.
type Rejection struct {
	Filename string
	Err      error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %v", r.Filename, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// =============================================================================
// RULES
// =============================================================================

const pdfMIME = "application/pdf"

// Rules are the local validation limits for queued files.
type Rules struct {
	MaxPDFPages   int
	MaxFileBytes  int64
	DocumentTypes []string
	ImageTypes    []string
}

// RulesFromConfig builds rules from the uploads section.
func RulesFromConfig(cfg config.UploadsConfig) Rules {
	return Rules{
		MaxPDFPages:   cfg.MaxPDFPages,
		MaxFileBytes:  cfg.MaxFileBytes(),
		DocumentTypes: append([]string(nil), cfg.DocumentTypes...),
		ImageTypes:    append([]string(nil), cfg.ImageTypes...),
	}
}

func (r Rules) allowList(kind model.FileType) []string {
	if kind == model.FileTypeImage {
		return r.ImageTypes
	}
	return r.DocumentTypes
}

func (r Rules) allows(kind model.FileType, mimeType string) bool {
	base := baseType(mimeType)
	if base == "" {
		return false
	}
	for _, t := range r.allowList(kind) {
		if strings.EqualFold(baseType(t), base) {
			return true
		}
	}
	return false
}

// Check validates one file and returns its resolved MIME type.
func (r Rules) Check(f LocalFile, kind model.FileType) (string, error) {
	mimeType, ok := r.resolveType(f, kind)
	if !ok {
		return "", ErrUnsupportedType
	}
	if r.MaxFileBytes > 0 && int64(len(f.Data)) > r.MaxFileBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(f.Data), r.MaxFileBytes)
	}
	if mimeType == pdfMIME && r.MaxPDFPages > 0 {
		pages, err := CountPDFPages(f.Data)
		if err != nil {
			return "", fmt.Errorf("%w: unreadable pdf: %v", ErrUnsupportedType, err)
		}
		if pages > r.MaxPDFPages {
			return "", fmt.Errorf("%w: %d pages exceeds %d", ErrTooManyPages, pages, r.MaxPDFPages)
		}
	}
	return mimeType, nil
}

// resolveType sniffs the content and walks up the detected type hierarchy
// until an allowed type is found. The declared type (or the extension's
// type) is used only when sniffing is inconclusive, or to narrow a generic
// text/plain detection to a more specific allowed text type.
func (r Rules) resolveType(f LocalFile, kind model.FileType) (string, bool) {
	declared := baseType(f.MimeType)
	if declared == "" {
		declared = baseType(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))))
	}

	sniffed := mimetype.Detect(f.Data)
	if sniffed.Is("application/octet-stream") {
		if r.allows(kind, declared) {
			return declared, true
		}
		return "", false
	}

	for m := sniffed; m != nil; m = m.Parent() {
		if m.Is("application/octet-stream") {
			break
		}
		if !r.allows(kind, m.String()) {
			continue
		}
		found := baseType(m.String())
		if found == "text/plain" && strings.HasPrefix(declared, "text/") && r.allows(kind, declared) {
			return declared, true
		}
		return found, true
	}
	return "", false
}

func baseType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	base, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(t)
	}
	return base
}

// CountPDFPages opens the document and returns its page count.
func CountPDFPages(data []byte) (n int, err error) {
	// the reader panics on some malformed input
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}
