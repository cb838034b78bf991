// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package timeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grayphite/polaris-frontend-sub000/internal/api"
	"github.com/grayphite/polaris-frontend-sub000/internal/config"
	"github.com/grayphite/polaris-frontend-sub000/internal/model"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeHistory serves pages of numbered records, newest page first.
type fakeHistory struct {
	total int
	err   error
	calls []int
}

func (f *fakeHistory) GetHistory(_ context.Context, _ string, page, pageSize int) (*api.HistoryPage, error) {
	f.calls = append(f.calls, page)
	if f.err != nil {
		return nil, f.err
	}
	newest := f.total - (page-1)*pageSize
	var recs []model.HistoryRecord
	for id := newest; id > newest-pageSize && id > 0; id-- {
		recs = append(recs, model.HistoryRecord{
			ID:        strconv.Itoa(id),
			Question:  fmt.Sprintf("q%d", id),
			Answer:    fmt.Sprintf("a%d", id),
			CreatedAt: base.Add(time.Duration(id) * time.Minute),
		})
	}
	return &api.HistoryPage{
		Records:    recs,
		Pagination: model.Pagination{HasNext: newest-pageSize > 0, CurrentPage: page},
	}, nil
}

func newManager(client HistoryClient, pageSize int) *Manager {
	m := NewManager(client, config.TimelineConfig{PageSize: pageSize, NearTopThreshold: 2}, nil)
	m.Reset("c1")
	return m
}

func ids(msgs []*model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestLoadInitial_ExpandsAndSorts(t *testing.T) {
	m := newManager(&fakeHistory{total: 3}, 2)

	cmd := m.LoadInitial(context.Background())
	require.True(t, m.Loading())
	res := m.Update(cmd())

	assert.True(t, res.Applied)
	assert.NoError(t, res.Err)
	assert.False(t, m.Loading())
	assert.True(t, m.HasMore())
	if diff := cmp.Diff([]string{"2", "2-reply", "3", "3-reply"}, ids(m.Messages())); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInitial_FailureLeavesEmptyList(t *testing.T) {
	m := newManager(&fakeHistory{err: errors.New("timeout")}, 20)
	m.Append(&model.Message{ID: "x", Timestamp: base})

	res := m.Update(m.LoadInitial(context.Background())())
	require.Error(t, res.Err)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.HasMore())

	// Still usable for sends
	m.Append(&model.Message{ID: "user-1", Role: model.RoleUser, Timestamp: base})
	assert.Equal(t, 1, m.Len())
}

func TestLoadInitial_FailureKeepsLocalSends(t *testing.T) {
	m := newManager(&fakeHistory{err: errors.New("timeout")}, 20)
	cmd := m.LoadInitial(context.Background())
	require.True(t, m.Loading())

	m.Append(
		&model.Message{ID: "user-1", Role: model.RoleUser, Timestamp: base, Content: "Hello"},
		&model.Message{ID: "assistant-1", Role: model.RoleAssistant, Timestamp: base},
	)

	res := m.Update(cmd())
	require.Error(t, res.Err)
	require.Equal(t, 2, m.Len())
	assert.Equal(t, "user-1", m.Messages()[0].ID)
	assert.False(t, m.HasMore())
	assert.False(t, m.Loading())
}

func TestLoadOlder_Guards(t *testing.T) {
	hist := &fakeHistory{total: 5}
	m := newManager(hist, 2)
	ctx := context.Background()
	m.Update(m.LoadInitial(ctx)())

	assert.Nil(t, m.LoadOlder(ctx, Scroll{Up: false, Offset: 0}), "downward scroll never pages")
	assert.Nil(t, m.LoadOlder(ctx, Scroll{Up: true, Offset: 10}), "far from top")

	cmd := m.LoadOlder(ctx, Scroll{Up: true, Offset: 1})
	require.NotNil(t, cmd)
	assert.Nil(t, m.LoadOlder(ctx, Scroll{Up: true, Offset: 0}), "at most one older fetch")

	res := m.Update(cmd())
	assert.True(t, res.Older)
	assert.Equal(t, "4", res.Anchor, "anchor is the entry that was first before the prepend")
	if diff := cmp.Diff([]string{"2", "2-reply", "3", "3-reply", "4", "4-reply", "5", "5-reply"}, ids(m.Messages())); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}

	m.Update(m.LoadOlder(ctx, Scroll{Up: true})())
	assert.False(t, m.HasMore())
	assert.Nil(t, m.LoadOlder(ctx, Scroll{Up: true}), "no more pages")
	assert.Equal(t, []int{1, 2, 3}, hist.calls)
	assert.True(t, model.IsSorted(m.Messages()))
}

func TestLoadOlder_EmptyPageStopsPaging(t *testing.T) {
	m := newManager(&fakeHistory{total: 2}, 2)
	ctx := context.Background()
	m.Update(m.LoadInitial(ctx)())
	m.hasMore = true // server claimed more, but the next page is empty

	m.Update(m.LoadOlder(ctx, Scroll{Up: true})())
	assert.False(t, m.HasMore())
}

func TestUpdate_DropsStaleResults(t *testing.T) {
	m := newManager(&fakeHistory{total: 2}, 2)
	cmd := m.LoadInitial(context.Background())

	m.Reset("c2")
	res := m.Update(cmd())
	assert.False(t, res.Applied)
	assert.Equal(t, 0, m.Len())
}

func TestMerge_DedupesAndSorts(t *testing.T) {
	m := newManager(&fakeHistory{}, 20)

	m.Append(
		&model.Message{ID: "b", Role: model.RoleAssistant, Timestamp: base},
		&model.Message{ID: "a", Role: model.RoleUser, Timestamp: base},
		&model.Message{ID: "c", Role: model.RoleUser, Timestamp: base.Add(-time.Minute)},
	)
	m.Append(&model.Message{ID: "a", Role: model.RoleUser, Timestamp: base, Content: "updated"})

	got := m.Messages()
	assert.Equal(t, []string{"c", "a", "b"}, ids(got))
	msg, _ := m.Find("a")
	assert.Equal(t, "updated", msg.Content)
}

func TestReplace_SwapsIDInPlace(t *testing.T) {
	m := newManager(&fakeHistory{}, 20)
	m.Append(
		&model.Message{ID: "user-1", Role: model.RoleUser, Timestamp: base},
		&model.Message{ID: "assistant-1", Role: model.RoleAssistant, Timestamp: base},
	)

	require.True(t, m.Replace("user-1", func(msg *model.Message) {
		msg.ID = "42"
		msg.RecordID = "42"
	}))
	require.True(t, m.Replace("assistant-1", func(msg *model.Message) {
		msg.ID = "42-reply"
		msg.Content = "Hi there"
	}))
	assert.False(t, m.Replace("missing", func(*model.Message) {}))

	assert.Equal(t, []string{"42", "42-reply"}, ids(m.Messages()))
	assert.Equal(t, "Hi there", m.Last().Content)
}

func TestRemove(t *testing.T) {
	m := newManager(&fakeHistory{}, 20)
	m.Append(
		&model.Message{ID: "u", Role: model.RoleUser, Timestamp: base},
		&model.Message{ID: "a", Role: model.RoleAssistant, Timestamp: base},
	)
	assert.True(t, m.Remove("a"))
	assert.False(t, m.Remove("a"))
	assert.Equal(t, []string{"u"}, ids(m.Messages()))
}
