package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/apperr"
	"github.com/joydrop/backend/internal/models"
)

// loopbackBus delivers published updates to subscribers in-process.
type loopbackBus struct {
	mu       sync.Mutex
	handlers map[uuid.UUID]func(models.CounterUpdate)
	cancels  int
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{handlers: make(map[uuid.UUID]func(models.CounterUpdate))}
}

func (b *loopbackBus) PublishCounter(_ context.Context, u models.CounterUpdate) error {
	b.mu.Lock()
	h := b.handlers[u.AccountID]
	b.mu.Unlock()
	if h != nil {
		h(u)
	}
	return nil
}

func (b *loopbackBus) SubscribeCounter(id uuid.UUID, h func(models.CounterUpdate)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
		b.cancels++
	}, nil
}

func testClient(h *Hub, id uuid.UUID) *Client {
	return &Client{ID: uuid.New().String(), AccountID: id, hub: h, send: make(chan WSMessage, 4)}
}

func TestHubDeliversThroughBus(t *testing.T) {
	bus := newLoopbackBus()
	h := NewHub(nil, bus)
	acct := uuid.New()
	a, b := testClient(h, acct), testClient(h, acct)
	other := testClient(h, uuid.New())
	h.Register(a)
	h.Register(b)
	h.Register(other)
	assert.Equal(t, 2, h.Watchers(acct))

	require.NoError(t, h.PublishCounter(context.Background(), models.CounterUpdate{AccountID: acct, EventCount: 7}))
	for _, c := range []*Client{a, b} {
		msg := <-c.send
		assert.Equal(t, EventCounter, msg.Event)
		var u models.CounterUpdate
		require.NoError(t, json.Unmarshal(msg.Data, &u))
		assert.Equal(t, int64(7), u.EventCount)
	}
	assert.Empty(t, other.send)

	h.Unregister(a)
	h.Unregister(b)
	assert.Equal(t, 0, h.Watchers(acct))
	assert.Equal(t, 1, bus.cancels)
	_, open := <-a.send
	assert.False(t, open)
}

func TestHubDropsUpdatesForSlowClients(t *testing.T) {
	h := NewHub(nil, nil)
	acct := uuid.New()
	c := testClient(h, acct)
	h.Register(c)
	for i := 0; i < 10; i++ {
		h.Broadcast(models.CounterUpdate{AccountID: acct, EventCount: int64(i)})
	}
	assert.Len(t, c.send, cap(c.send))
}

func TestChannelName(t *testing.T) {
	id := uuid.MustParse("7d1c1e9e-3f7e-4a55-9f0e-0c3a3f1f9b11")
	assert.Equal(t, "counter:7d1c1e9e-3f7e-4a55-9f0e-0c3a3f1f9b11", Channel(id))
}

func TestServeCounterStreamsSnapshotAndUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil)
	acct := &models.Account{ID: uuid.New(), Kind: models.KindOrganization, Slug: "acme", EventCount: 4, MemberCount: 2}
	resolve := func(_ context.Context, slug string) (*models.Account, error) {
		if slug != acct.Slug {
			return nil, apperr.NotFound("account")
		}
		return acct, nil
	}
	r := gin.New()
	r.GET("/ws/counters/:slug", ServeCounter(h, resolve, zap.NewNop()))
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/counters/"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"acme", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	var u models.CounterUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &u))
	assert.Equal(t, int64(4), u.EventCount)
	assert.Equal(t, int64(2), u.MemberCount)

	require.Eventually(t, func() bool { return h.Watchers(acct.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, h.PublishCounter(context.Background(), models.CounterUpdate{AccountID: acct.ID, Slug: "acme", EventCount: 5}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.NoError(t, json.Unmarshal(msg.Data, &u))
	assert.Equal(t, int64(5), u.EventCount)
}

// gatedBus blocks SubscribeCounter until release is closed.
type gatedBus struct {
	entered chan uuid.UUID
	release chan struct{}
	cancels atomic.Int32
}

func (b *gatedBus) PublishCounter(context.Context, models.CounterUpdate) error { return nil }

func (b *gatedBus) SubscribeCounter(id uuid.UUID, _ func(models.CounterUpdate)) (func(), error) {
	b.entered <- id
	<-b.release
	return func() { b.cancels.Add(1) }, nil
}

func TestHubSubscribesWithoutHoldingLock(t *testing.T) {
	bus := &gatedBus{entered: make(chan uuid.UUID, 4), release: make(chan struct{})}
	h := NewHub(nil, bus)
	slow, idle := uuid.New(), uuid.New()

	registered := make(chan struct{})
	go func() {
		h.Register(testClient(h, slow))
		close(registered)
	}()
	require.Equal(t, slow, <-bus.entered)

	done := make(chan struct{})
	go func() {
		h.Broadcast(models.CounterUpdate{AccountID: idle, EventCount: 1})
		assert.Equal(t, 1, h.Watchers(slow))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast for another account waited on a pending subscribe")
	}

	close(bus.release)
	<-registered
	assert.True(t, h.Subscribed(slow))
	assert.Equal(t, int32(0), bus.cancels.Load())
}

func TestHubDropsSubscriptionWhenRoomEmptiedWhileSubscribing(t *testing.T) {
	bus := &gatedBus{entered: make(chan uuid.UUID, 4), release: make(chan struct{})}
	h := NewHub(nil, bus)
	acct := uuid.New()
	c := testClient(h, acct)

	registered := make(chan struct{})
	go func() {
		h.Register(c)
		close(registered)
	}()
	<-bus.entered
	h.Unregister(c)
	close(bus.release)
	<-registered

	assert.False(t, h.Subscribed(acct))
	assert.Equal(t, int32(1), bus.cancels.Load())
	assert.Equal(t, 0, h.Watchers(acct))
}

func TestServeCounterSnapshotReadAfterRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil)
	id := uuid.New()
	var calls atomic.Int32
	var watchersAtReload atomic.Int32
	resolve := func(_ context.Context, slug string) (*models.Account, error) {
		n := calls.Add(1)
		if n > 1 {
			watchersAtReload.Store(int32(h.Watchers(id)))
		}
		// Each read sees one more committed joydrop.
		return &models.Account{ID: id, Kind: models.KindIndividual, Slug: slug, EventCount: int64(n)}, nil
	}
	r := gin.New()
	r.GET("/ws/counters/:slug", ServeCounter(h, resolve, zap.NewNop()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/counters/ida", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	var u models.CounterUpdate
	require.NoError(t, json.Unmarshal(msg.Data, &u))
	assert.Equal(t, int64(2), u.EventCount)
	assert.Equal(t, int32(1), watchersAtReload.Load())
}
