package records

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/event-recon/backend/internal/model"
)

type fakeUpstream struct {
	t           *testing.T
	tokenCalls  atomic.Int32
	mu          sync.Mutex
	byUser      map[string][]map[string]any
	contentByID map[string]string
	keyed       bool
	dropContent bool
	lastParams  map[string][]string
	message     string
	status      int
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	return &fakeUpstream{
		t:           t,
		byUser:      map[string][]map[string]any{},
		contentByID: map[string]string{},
		message:     "success",
		status:      http.StatusOK,
	}
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/oauth2/access-token":
		assert.Equal(f.t, http.MethodPost, r.Method)
		assert.Equal(f.t, "key", r.URL.Query().Get("appKey"))
		assert.Equal(f.t, "secret", r.URL.Query().Get("appSecret"))
		f.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "success", "data": "tok-1"})
	case "/email/records", "/call/cdr/records":
		assert.Equal(f.t, "tok-1", r.Header.Get("access-token"))
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte("upstream exploded"))
			return
		}
		f.mu.Lock()
		f.lastParams = r.URL.Query()
		recs := f.byUser[r.URL.Query().Get("participantId")]
		if from := r.URL.Query().Get("fromParticipantId"); from != "" {
			recs = f.byUser[from]
		}
		f.mu.Unlock()
		if recs == nil {
			recs = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": f.message,
			"data":    map[string]any{"records": recs},
		})
	case "/media/unify-text":
		ids := r.URL.Query()["recordIds"]
		items := make([]map[string]any, 0, len(ids))
		for i := len(ids) - 1; i >= 0 && f.keyed; i-- {
			items = append(items, map[string]any{"recordId": ids[i], "content": f.contentByID[ids[i]]})
		}
		if !f.keyed {
			for _, id := range ids {
				items = append(items, map[string]any{"content": f.contentByID[id]})
			}
		}
		if f.dropContent {
			items = items[:len(items)-1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "success", "data": items})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, up *fakeUpstream) *Client {
	t.Helper()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	tokens := NewTokenSource(TokenConfig{BaseURL: srv.URL, AppKey: "key", AppSecret: "secret"}, srv.Client(), nil)
	return NewClient(Config{
		BaseURL: srv.URL,
		Endpoints: map[model.Channel]string{
			model.ChannelEmail: "/email/records",
			model.ChannelCall:  "/call/cdr/records",
		},
	}, tokens, srv.Client())
}

func rec(id, user string) map[string]any {
	return map[string]any{"id": id, "userId": user, "startTime": "2026-01-19 10:00:00", "otherUserName": "Alice"}
}

func TestFetchMergesParticipantsAndDedups(t *testing.T) {
	up := newFakeUpstream(t)
	up.byUser["u1"] = []map[string]any{rec("e1", "u1"), rec("e2", "u1")}
	up.byUser["u2"] = []map[string]any{rec("e2", "u2"), rec("e3", "u2")}

	c := newTestClient(t, up)
	got, err := c.Fetch(context.Background(), model.ChannelEmail, Query{
		ParticipantIDs: "u1, u2",
		StartTime:      "2026-01-19 00:00:00",
		EndTime:        "2026-01-19 23:59:59",
		Page:           1,
		Size:           100,
	})
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
		assert.Equal(t, model.ChannelEmail, r.Channel)
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids)
	assert.Equal(t, "u1", got[1].UserID, "first participant wins on duplicates")
	assert.Equal(t, "Alice", got[0].OtherUserName)
	assert.Equal(t, int32(1), up.tokenCalls.Load(), "token reused across requests")
	assert.Equal(t, "100", up.lastParams["size"][0])
}

func TestFetchHydratesContentPositionally(t *testing.T) {
	up := newFakeUpstream(t)
	up.byUser["u1"] = []map[string]any{rec("c1", "u1"), rec("c2", "u1")}
	up.contentByID = map[string]string{"c1": "hello", "c2": "world"}

	c := newTestClient(t, up)
	got, err := c.Fetch(context.Background(), model.ChannelCall, Query{ParticipantIDs: "u1", Content: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "world", got[1].Content)
}

func TestFetchHydratesContentByRecordID(t *testing.T) {
	up := newFakeUpstream(t)
	up.keyed = true
	up.byUser["u1"] = []map[string]any{rec("c1", "u1"), rec("c2", "u1")}
	up.contentByID = map[string]string{"c1": "hello", "c2": "world"}

	c := newTestClient(t, up)
	got, err := c.Fetch(context.Background(), model.ChannelCall, Query{ParticipantIDs: "u1", Content: true})
	require.NoError(t, err)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "world", got[1].Content)
}

func TestFetchContentMisaligned(t *testing.T) {
	up := newFakeUpstream(t)
	up.dropContent = true
	up.byUser["u1"] = []map[string]any{rec("c1", "u1"), rec("c2", "u1")}

	c := newTestClient(t, up)
	_, err := c.Fetch(context.Background(), model.ChannelCall, Query{ParticipantIDs: "u1", Content: true})
	assert.ErrorIs(t, err, ErrContentMisaligned)
}

func TestFetchNonSuccessEnvelope(t *testing.T) {
	up := newFakeUpstream(t)
	up.message = "invalid participant"

	c := newTestClient(t, up)
	_, err := c.Fetch(context.Background(), model.ChannelEmail, Query{ParticipantIDs: "u1"})

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "invalid participant", upErr.Message)
}

func TestFetchHTTPError(t *testing.T) {
	up := newFakeUpstream(t)
	up.status = http.StatusBadGateway

	c := newTestClient(t, up)
	_, err := c.Fetch(context.Background(), model.ChannelEmail, Query{ParticipantIDs: "u1"})

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusBadGateway, upErr.StatusCode)
	assert.Contains(t, upErr.Error(), "upstream exploded")
}

func TestFetchUnknownAndUnconfiguredChannel(t *testing.T) {
	c := newTestClient(t, newFakeUpstream(t))

	_, err := c.Fetch(context.Background(), "FAX", Query{ParticipantIDs: "u1"})
	assert.ErrorIs(t, err, model.ErrUnknownChannel)

	_, err = c.Fetch(context.Background(), model.ChannelIdeal, Query{ParticipantIDs: "u1"})
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestFetchByFromOrTo(t *testing.T) {
	up := newFakeUpstream(t)
	up.byUser["u9"] = []map[string]any{rec("e9", "u9")}
	c := newTestClient(t, up)

	got, err := c.FetchByFromOrTo(context.Background(), model.ChannelEmail, FromToQuery{FromParticipantID: "u9"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ChannelEmail, got[0].Channel)
	assert.Equal(t, "u9", up.lastParams["fromParticipantId"][0])
	assert.Empty(t, up.lastParams["toParticipantId"])
}

func TestFetchByFromOrToRequiresEndpointBeforeIO(t *testing.T) {
	up := newFakeUpstream(t)
	c := newTestClient(t, up)

	_, err := c.FetchByFromOrTo(context.Background(), model.ChannelEmail, FromToQuery{})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
	assert.Equal(t, int32(0), up.tokenCalls.Load())
}

func TestFetchContentEmptyIDsSkipsIO(t *testing.T) {
	up := newFakeUpstream(t)
	c := newTestClient(t, up)

	items, err := c.FetchContent(context.Background(), model.ChannelCall, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(0), up.tokenCalls.Load())
}

type memoryCache struct {
	mu     sync.Mutex
	tokens map[string]string
	sets   int
}

func (m *memoryCache) GetToken(_ context.Context, key string) (string, time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[key]
	return tok, time.Minute, ok, nil
}

func (m *memoryCache) SetToken(_ context.Context, key, token string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = token
	m.sets++
	return nil
}

func TestTokenSourceSharesThroughCache(t *testing.T) {
	up := newFakeUpstream(t)
	srv := httptest.NewServer(up)
	defer srv.Close()

	cache := &memoryCache{tokens: map[string]string{}}
	cfg := TokenConfig{BaseURL: srv.URL, AppKey: "key", AppSecret: "secret"}

	first, err := NewTokenSource(cfg, srv.Client(), cache).Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.AccessToken)

	second, err := NewTokenSource(cfg, srv.Client(), cache).Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", second.AccessToken)

	assert.Equal(t, int32(1), up.tokenCalls.Load(), "second replica reads the shared token")
	assert.Equal(t, 1, cache.sets)
}

func TestTokenSourceRejectsFailureEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "bad secret"})
	}))
	defer srv.Close()

	_, err := NewTokenSource(TokenConfig{BaseURL: srv.URL}, srv.Client(), nil).Token()
	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "bad secret", upErr.Message)
}

func TestFetchStopsWaitingForTokenOnDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "success", "data": "tok-1"})
	}))
	defer srv.Close()
	defer close(release)

	tokens := NewTokenSource(TokenConfig{BaseURL: srv.URL, AppKey: "key", AppSecret: "secret", Timeout: 10 * time.Second}, srv.Client(), nil)
	c := NewClient(Config{
		BaseURL:   srv.URL,
		Endpoints: map[model.Channel]string{model.ChannelCall: "/call/cdr/records"},
	}, tokens, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Fetch(ctx, model.ChannelCall, Query{ParticipantIDs: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
