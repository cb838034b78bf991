// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeUploader struct {
	mu        sync.Mutex
	uploads   []api.UploadRequest
	deletes   []string
	uploadErr error
	deleteErr error
}

func (f *fakeUploader) UploadFile(_ context.Context, up api.UploadRequest) (*model.FileAttachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, up)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &model.FileAttachment{
		ID:       "srv-" + strconv.Itoa(len(f.uploads)),
		Filename: up.Filename,
		MimeType: up.MimeType,
		FileType: up.FileType,
	}, nil
}

func (f *fakeUploader) DeleteFile(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeUploader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads) + len(f.deletes)
}

func newOrchestrator(up Uploader) *Orchestrator {
	n := 0
	return New(up, config.Default().Uploads, nil).WithIDFunc(func() string {
		n++
		return "tmp-" + strconv.Itoa(n)
	})
}

// drain runs cmd and flattens batches into the produced messages.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, drain(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// buildPDF writes a minimal well-formed document with the given page count.
func buildPDF(t *testing.T, pages int) []byte {
	t.Helper()

	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]byte, 0, pages*8)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R ", i+3)...)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestCountPDFPages(t *testing.T) {
	n, err := CountPDFPages(buildPDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = CountPDFPages([]byte("%PDF-1.4\nnot really"))
	assert.Error(t, err)
}

func TestQueue_RejectsLongPDFWithoutNetwork(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	rejected, cmd := o.Queue(context.Background(), []LocalFile{
		{Name: "big.pdf", MimeType: "application/pdf", Data: buildPDF(t, 120)},
	}, model.FileTypeDocument)

	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0], ErrTooManyPages)
	assert.Equal(t, "big.pdf", rejected[0].Filename)
	assert.Nil(t, cmd)
	assert.Zero(t, o.Len())
	assert.Zero(t, up.calls())
}

func TestQueue_AcceptsPDFUnderCeiling(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	rejected, cmd := o.Queue(context.Background(), []LocalFile{
		{Name: "short.pdf", Data: buildPDF(t, 4)},
	}, model.FileTypeDocument)
	require.Empty(t, rejected)

	files := o.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "tmp-1", files[0].ID)
	assert.Equal(t, model.UploadStatusUploading, files[0].UploadStatus)
	assert.Equal(t, "application/pdf", files[0].MimeType)
	assert.True(t, o.HasUploading())

	for _, msg := range drain(cmd) {
		res := o.Update(msg)
		assert.True(t, res.Applied)
		assert.NoError(t, res.Err)
	}

	files = o.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "srv-1", files[0].ID)
	assert.True(t, files[0].IsReady())
	assert.False(t, o.HasUploading())
	assert.Equal(t, []string{"srv-1"}, o.ReadyIDs())
}

func TestQueue_TypeChecks(t *testing.T) {
	tests := []struct {
		name     string
		file     LocalFile
		kind     model.FileType
		wantMIME string
		wantErr  error
	}{
		{
			name:     "png image",
			file:     LocalFile{Name: "a.png", Data: pngHeader},
			kind:     model.FileTypeImage,
			wantMIME: "image/png",
		},
		{
			name:    "png as document",
			file:    LocalFile{Name: "a.png", Data: pngHeader},
			kind:    model.FileTypeDocument,
			wantErr: ErrUnsupportedType,
		},
		{
			name:     "markdown narrows plain text",
			file:     LocalFile{Name: "notes.md", MimeType: "text/markdown", Data: []byte("# Notes\n\nsome text\n")},
			kind:     model.FileTypeDocument,
			wantMIME: "text/markdown",
		},
		{
			name:    "executable renamed to pdf",
			file:    LocalFile{Name: "x.pdf", MimeType: "application/pdf", Data: append([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff\x00\x00"), make([]byte, 64)...)},
			kind:    model.FileTypeDocument,
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "unreadable pdf",
			file:    LocalFile{Name: "broken.pdf", Data: []byte("%PDF-1.4\ngarbage without trailer")},
			kind:    model.FileTypeDocument,
			wantErr: ErrUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mimeType, err := RulesFromConfig(config.Default().Uploads).Check(tt.file, tt.kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, mimeType)
		})
	}
}

func TestQueue_SizeCeiling(t *testing.T) {
	cfg := config.Default().Uploads
	cfg.MaxFileMB = 1
	rules := RulesFromConfig(cfg)

	data := append([]byte(nil), pngHeader...)
	data = append(data, make([]byte, 1024*1024)...)
	_, err := rules.Check(LocalFile{Name: "huge.png", Data: data}, model.FileTypeImage)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadFailure_KeepsEntryMarked(t *testing.T) {
	up := &fakeUploader{uploadErr: errors.New("boom")}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{{Name: "a.png", Data: pngHeader}}, model.FileTypeImage)
	msgs := drain(cmd)
	require.Len(t, msgs, 1)

	res := o.Update(msgs[0])
	assert.True(t, res.Applied)
	assert.Error(t, res.Err)

	files := o.Files()
	require.Len(t, files, 1)
	assert.Equal(t, model.UploadStatusError, files[0].UploadStatus)
	assert.Equal(t, "boom", files[0].UploadError)
	assert.False(t, o.HasUploading())
	assert.Empty(t, o.ReadyIDs())
}

func TestRemove_UploadingIgnoresLateResult(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{{Name: "a.png", Data: pngHeader}}, model.FileTypeImage)
	assert.Nil(t, o.Remove(context.Background(), 0))
	assert.Zero(t, o.Len())

	for _, msg := range drain(cmd) {
		assert.False(t, o.Update(msg).Applied)
	}
	assert.Zero(t, o.Len())
}

func TestRemove_SuccessDeletesOnServer(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{
		{Name: "a.png", Data: pngHeader},
		{Name: "b.png", Data: pngHeader},
	}, model.FileTypeImage)
	for _, msg := range drain(cmd) {
		o.Update(msg)
	}
	require.Len(t, o.ReadyIDs(), 2)
	first := o.Files()[0]

	del := o.Remove(context.Background(), 0)
	require.NotNil(t, del)
	assert.Equal(t, 1, o.Len())

	res := o.Update(del())
	assert.True(t, res.Applied)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{first.ID}, up.deletes)
	assert.Equal(t, 1, o.Len())
}

func TestRemove_FailedDeleteRestoresAtIndex(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{
		{Name: "a.png", Data: pngHeader},
		{Name: "b.png", Data: pngHeader},
		{Name: "c.png", Data: pngHeader},
	}, model.FileTypeImage)
	for _, msg := range drain(cmd) {
		o.Update(msg)
	}
	before := o.Files()

	up.deleteErr = errors.New("server unavailable")
	del := o.Remove(context.Background(), 1)
	require.NotNil(t, del)
	require.Equal(t, 2, o.Len())

	res := o.Update(del())
	assert.Error(t, res.Err)
	assert.Equal(t, before, o.Files())
}

func TestRemove_ErroredIsLocal(t *testing.T) {
	up := &fakeUploader{uploadErr: errors.New("boom")}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{{Name: "a.png", Data: pngHeader}}, model.FileTypeImage)
	for _, msg := range drain(cmd) {
		o.Update(msg)
	}
	assert.Nil(t, o.Remove(context.Background(), 0))
	assert.Zero(t, o.Len())
	assert.Empty(t, up.deletes)
}

func TestReset_DropsStaleDeleteRollback(t *testing.T) {
	up := &fakeUploader{deleteErr: errors.New("nope")}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{{Name: "a.png", Data: pngHeader}}, model.FileTypeImage)
	for _, msg := range drain(cmd) {
		o.Update(msg)
	}
	del := o.Remove(context.Background(), 0)
	o.Reset()

	assert.False(t, o.Update(del()).Applied)
	assert.Zero(t, o.Len())
}

func TestClear_DropsStaleDeleteRollback(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	_, cmd := o.Queue(context.Background(), []LocalFile{
		{Name: "a.png", Data: pngHeader},
		{Name: "b.png", Data: pngHeader},
	}, model.FileTypeImage)
	for _, msg := range drain(cmd) {
		o.Update(msg)
	}

	up.deleteErr = errors.New("server unavailable")
	del := o.Remove(context.Background(), 0)
	require.NotNil(t, del)
	o.Clear()

	assert.False(t, o.Update(del()).Applied)
	assert.Empty(t, o.Files(), "a failed delete must not reappear in the next message")
}

func TestPaste_NamesImagesAndSkipsText(t *testing.T) {
	up := &fakeUploader{}
	o := newOrchestrator(up)

	rejected, cmd := o.Paste(context.Background(), []ClipboardItem{
		{MimeType: "text/plain", Data: []byte("hello")},
		{MimeType: "image/png", Data: pngHeader},
		{Data: pngHeader},
	})
	assert.Empty(t, rejected)
	require.NotNil(t, cmd)

	files := o.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "pasted-image-1.png", files[0].Filename)
	assert.Equal(t, "pasted-image-2.png", files[1].Filename)
	assert.Equal(t, model.FileTypeImage, files[0].FileType)

	drain(cmd)
	assert.Len(t, up.uploads, 2)
}

func TestPaste_NothingToQueue(t *testing.T) {
	o := newOrchestrator(&fakeUploader{})
	rejected, cmd := o.Paste(context.Background(), []ClipboardItem{{MimeType: "text/html", Data: []byte("<b>x</b>")}})
	assert.Nil(t, rejected)
	assert.Nil(t, cmd)
}
