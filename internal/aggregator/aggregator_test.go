package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/internal/records"
)

type stubFetcher struct {
	mu      sync.Mutex
	byCh    map[model.Channel][]model.Record
	delays  map[model.Channel]time.Duration
	fail    map[model.Channel]error
	queries []records.Query
}

func (s *stubFetcher) Fetch(ctx context.Context, ch model.Channel, q records.Query) ([]model.Record, error) {
	if d := s.delays[ch]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if err := s.fail[ch]; err != nil {
		return nil, err
	}
	return s.byCh[ch], nil
}

func TestWindowForDerivesFromEvent(t *testing.T) {
	ev := model.Event{EventTime: "2026-01-19T14:00:00", InternalUsers: []string{"U1", "U2"}}

	w, err := WindowFor(ev, Config{Content: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, w.ParticipantIDs)
	assert.Equal(t, "2026-01-19 00:00:00", w.Start)
	assert.Equal(t, "2026-01-19 23:59:59", w.End)
	assert.Equal(t, 1, w.Page)
	assert.Equal(t, 100, w.Size)
	assert.True(t, w.Content)
}

func TestWindowForConfigOverrides(t *testing.T) {
	ev := model.Event{EventTime: "2026-01-19 14:00:00", InternalUsers: []string{"U1"}}

	w, err := WindowFor(ev, Config{
		ParticipantIDs: []string{"X"},
		StartTime:      "2026-01-05 00:00:00",
		EndTime:        "2026-01-06 23:59:59",
		Size:           20,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, w.ParticipantIDs)
	assert.Equal(t, "2026-01-05 00:00:00", w.Start)
	assert.Equal(t, "2026-01-06 23:59:59", w.End)
	assert.Equal(t, 20, w.Size)
}

func TestWindowForBadEventTime(t *testing.T) {
	_, err := WindowFor(model.Event{EventTime: "nope"}, Config{})
	assert.ErrorIs(t, err, model.ErrInvalidTimestamp)
}

func TestCollectConcatenatesInChannelOrder(t *testing.T) {
	f := &stubFetcher{
		byCh: map[model.Channel][]model.Record{
			model.ChannelCall:  {{ID: "1", Channel: model.ChannelCall}},
			model.ChannelEmail: {{ID: "1", Channel: model.ChannelEmail}, {ID: "2", Channel: model.ChannelEmail}},
			model.ChannelIdeal: {{ID: "9", Channel: model.ChannelIdeal}},
		},
		// CALL finishes last, yet stays first.
		delays: map[model.Channel]time.Duration{model.ChannelCall: 20 * time.Millisecond},
	}

	a := New(f, nil)
	got, err := a.Collect(context.Background(), Window{ParticipantIDs: []string{"U1", "U2"}, Start: "s", End: "e", Content: true})
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, model.ChannelCall, got[0].Channel)
	assert.Equal(t, model.ChannelEmail, got[1].Channel)
	assert.Equal(t, "1", got[1].ID, "same id across channels is kept")
	assert.Equal(t, model.ChannelIdeal, got[3].Channel)

	require.Len(t, f.queries, 4)
	assert.Equal(t, "U1,U2", f.queries[0].ParticipantIDs)
	assert.True(t, f.queries[0].Content)
}

func TestCollectFailsOnAnyChannel(t *testing.T) {
	boom := errors.New("boom")
	f := &stubFetcher{fail: map[model.Channel]error{model.ChannelQTrade: boom}}

	_, err := New(f, nil).Collect(context.Background(), Window{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "QTRADE")
}
