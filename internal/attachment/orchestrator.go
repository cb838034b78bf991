// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

// Uploader stores and deletes files on the backend.
type Uploader interface {
	UploadFile(ctx context.Context, up api.UploadRequest) (*model.FileAttachment, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// LocalFile is a file picked or dropped by the user.
type LocalFile struct {
	Name     string
	MimeType string // declared type, may be empty
	Data     []byte
}

// ClipboardItem is one entry of a paste event.
type ClipboardItem struct {
	MimeType string
	Data     []byte
}

// =============================================================================
// MESSAGES
// =============================================================================

// UploadDoneMsg carries the result of one upload.
type UploadDoneMsg struct {
	TempID string
	File   *model.FileAttachment
	Err    error
}

// DeleteDoneMsg carries the result of a server-side delete.
type DeleteDoneMsg struct {
	Gen   int
	File  model.FileAttachment
	Index int
	Err   error
}

// Result reports what applying a message did.
type Result struct {
	Applied bool
	// Err is a failure to surface as a notice.
	Err error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator holds the attachment list of the compose box.
type Orchestrator struct {
	uploader Uploader
	rules    Rules
	logger   *zap.Logger
	newID    func() string
	now      func() time.Time

	gen      int
	files    []model.FileAttachment
	pasteSeq int
}

// New creates an orchestrator with rules from cfg.
func New(uploader Uploader, cfg config.UploadsConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		uploader: uploader,
		rules:    RulesFromConfig(cfg),
		logger:   logger,
		newID:    func() string { return "tmp-" + uuid.NewString() },
		now:      time.Now,
	}
}

// WithIDFunc overrides the temporary id generator.
func (o *Orchestrator) WithIDFunc(fn func() string) *Orchestrator {
	o.newID = fn
	return o
}

// WithClock overrides the placeholder timestamp source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Rules returns the active validation rules.
func (o *Orchestrator) Rules() Rules { return o.rules }

// Files returns a copy of the attachment list in display order.
func (o *Orchestrator) Files() []model.FileAttachment {
	return append([]model.FileAttachment(nil), o.files...)
}

// Len returns the number of listed files, failed ones included.
func (o *Orchestrator) Len() int { return len(o.files) }

// HasUploading reports whether any upload is still in flight.
func (o *Orchestrator) HasUploading() bool {
	for _, f := range o.files {
		if f.IsUploading() {
			return true
		}
	}
	return false
}

// Ready returns the successfully uploaded files. Failed entries are excluded.
func (o *Orchestrator) Ready() []model.FileAttachment {
	var out []model.FileAttachment
	for _, f := range o.files {
		if f.IsReady() {
			out = append(out, f)
		}
	}
	return out
}

// ReadyIDs returns the server ids of the successfully uploaded files.
func (o *Orchestrator) ReadyIDs() []string {
	ready := o.Ready()
	ids := make([]string, 0, len(ready))
	for _, f := range ready {
		ids = append(ids, f.ID)
	}
	return ids
}

// Clear empties the list after a send. Uploaded files stay on the server;
// the sent message references them. A delete still in flight belongs to the
// old list, so its rollback is dropped.
func (o *Orchestrator) Clear() {
	o.gen++
	o.files = nil
}

// Reset discards all state on navigation. In-flight results for the old
// list no longer match any entry and are dropped.
func (o *Orchestrator) Reset() {
	o.gen++
	o.files = nil
	o.pasteSeq = 0
}

// Queue validates files and starts an upload for every accepted one. The
// rejections are reported without any network call.
func (o *Orchestrator) Queue(ctx context.Context, files []LocalFile, kind model.FileType) ([]*Rejection, tea.Cmd) {
	var (
		rejected []*Rejection
		cmds     []tea.Cmd
	)
	for _, f := range files {
		mimeType, err := o.rules.Check(f, kind)
		if err != nil {
			o.logger.Debug("attachment rejected",
				zap.String("filename", f.Name),
				zap.Error(err))
			rejected = append(rejected, &Rejection{Filename: f.Name, Err: err})
			continue
		}

		placeholder := model.FileAttachment{
			ID:           o.newID(),
			Filename:     f.Name,
			MimeType:     mimeType,
			SizeBytes:    int64(len(f.Data)),
			FileType:     kind,
			CreatedAt:    o.now(),
			UploadStatus: model.UploadStatusUploading,
		}
		o.files = append(o.files, placeholder)
		cmds = append(cmds, o.upload(ctx, placeholder.ID, api.UploadRequest{
			Filename: f.Name,
			MimeType: mimeType,
			FileType: kind,
			Data:     f.Data,
		}))
	}
	return rejected, tea.Batch(cmds...)
}

func (o *Orchestrator) upload(ctx context.Context, tempID string, req api.UploadRequest) tea.Cmd {
	uploader := o.uploader
	return func() tea.Msg {
		f, err := uploader.UploadFile(ctx, req)
		return UploadDoneMsg{TempID: tempID, File: f, Err: err}
	}
}

// Paste turns clipboard images into files and queues them. Non-image items
// are ignored.
func (o *Orchestrator) Paste(ctx context.Context, items []ClipboardItem) ([]*Rejection, tea.Cmd) {
	var files []LocalFile
	for _, item := range items {
		mimeType := baseType(item.MimeType)
		if mimeType == "" {
			mimeType = baseType(mimetype.Detect(item.Data).String())
		}
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		o.pasteSeq++
		files = append(files, LocalFile{
			Name:     fmt.Sprintf("pasted-image-%d%s", o.pasteSeq, extensionFor(mimeType)),
			MimeType: mimeType,
			Data:     item.Data,
		})
	}
	if len(files) == 0 {
		return nil, nil
	}
	return o.Queue(ctx, files, model.FileTypeImage)
}

func extensionFor(mimeType string) string {
	if m := mimetype.Lookup(mimeType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".png"
}

// Remove drops the entry at index. An uploading entry is dropped locally;
// its late result is ignored. An uploaded entry is dropped locally and a
// server delete is issued; a failed delete restores it. A failed entry is
// dropped locally.
func (o *Orchestrator) Remove(ctx context.Context, index int) tea.Cmd {
	if index < 0 || index >= len(o.files) {
		return nil
	}
	f := o.files[index]
	o.files = append(o.files[:index:index], o.files[index+1:]...)

	if !f.IsReady() {
		return nil
	}
	uploader, gen := o.uploader, o.gen
	return func() tea.Msg {
		err := uploader.DeleteFile(ctx, f.ID)
		return DeleteDoneMsg{Gen: gen, File: f, Index: index, Err: err}
	}
}

// Update applies upload and delete results.
func (o *Orchestrator) Update(msg tea.Msg) Result {
	switch msg := msg.(type) {
	case UploadDoneMsg:
		return o.applyUpload(msg)
	case DeleteDoneMsg:
		return o.applyDelete(msg)
	}
	return Result{}
}

func (o *Orchestrator) applyUpload(msg UploadDoneMsg) Result {
	idx := o.indexOf(msg.TempID)
	if idx < 0 {
		// removed or reset while uploading
		return Result{}
	}

	if msg.Err != nil || msg.File == nil {
		err := msg.Err
		if err == nil {
			err = errors.New("upload returned no file")
		}
		o.files[idx].UploadStatus = model.UploadStatusError
		o.files[idx].UploadError = err.Error()
		o.logger.Warn("upload failed",
			zap.String("filename", o.files[idx].Filename),
			zap.Error(err))
		return Result{Applied: true, Err: fmt.Errorf("upload %s: %w", o.files[idx].Filename, err)}
	}

	f := *msg.File
	f.UploadStatus = model.UploadStatusSuccess
	f.UploadError = ""
	o.files[idx] = f
	return Result{Applied: true}
}

func (o *Orchestrator) applyDelete(msg DeleteDoneMsg) Result {
	if msg.Gen != o.gen {
		return Result{}
	}
	if msg.Err == nil {
		return Result{Applied: true}
	}

	idx := msg.Index
	if idx > len(o.files) {
		idx = len(o.files)
	}
	o.files = append(o.files[:idx], append([]model.FileAttachment{msg.File}, o.files[idx:]...)...)
	o.logger.Warn("delete failed, file restored",
		zap.String("file_id", msg.File.ID),
		zap.Error(msg.Err))
	return Result{Applied: true, Err: fmt.Errorf("remove %s: %w", msg.File.Filename, msg.Err)}
}

func (o *Orchestrator) indexOf(id string) int {
	for i, f := range o.files {
		if f.ID == id {
			return i
		}
	}
	return -1
}
