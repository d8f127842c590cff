package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventCounter is the websocket event carrying a models.CounterUpdate.
	EventCounter = "counter"
)

// Bus carries counter updates between server instances.
type Bus interface {
	PublishCounter(ctx context.Context, update models.CounterUpdate) error
	SubscribeCounter(accountID uuid.UUID, handler func(models.CounterUpdate)) (cancel func(), err error)
}

// Hub maintains account_id -> set of connections watching that account.
// With a Bus, updates go out through the bus and come back through the
// per-account subscription, so every instance delivers them exactly once.
type Hub struct {
	accounts map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func()
	mu       sync.RWMutex
	logger   *zap.Logger
	bus      Bus
}

// NewHub creates a hub. bus may be nil for a single instance.
func NewHub(logger *zap.Logger, bus Bus) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		accounts: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		bus:      bus,
	}
}

// PublishCounter implements aggregation.CounterPublisher.
func (h *Hub) PublishCounter(ctx context.Context, update models.CounterUpdate) error {
	if h.bus != nil {
		return h.bus.PublishCounter(ctx, update)
	}
	h.Broadcast(update)
	return nil
}

// Register adds a client to an account room. The first client of an account
// starts its bus subscription, outside the hub lock.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room := h.accounts[c.AccountID]
	if room == nil {
		room = make(map[string]*Client)
		h.accounts[c.AccountID] = room
	}
	room[c.ID] = c
	_, subscribed := h.subs[c.AccountID]
	h.mu.Unlock()
	h.logger.Debug("client watching account", zap.String("client_id", c.ID), zap.String("account_id", c.AccountID.String()))

	if h.bus != nil && !subscribed {
		h.subscribe(c.AccountID)
	}
}

// subscribe opens the bus subscription for accountID. A subscription that is
// no longer needed once it is ready (another Register won, or every client
// already left) is cancelled.
func (h *Hub) subscribe(accountID uuid.UUID) {
	cancel, err := h.bus.SubscribeCounter(accountID, h.Broadcast)
	if err != nil {
		h.logger.Warn("counter subscription failed", zap.String("account_id", accountID.String()), zap.Error(err))
		return
	}
	h.mu.Lock()
	_, taken := h.subs[accountID]
	keep := !taken && len(h.accounts[accountID]) > 0
	if keep {
		h.subs[accountID] = cancel
	}
	h.mu.Unlock()
	if !keep {
		cancel()
	}
}

// Subscribed reports whether the hub holds a bus subscription for accountID.
func (h *Hub) Subscribed(accountID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[accountID]
	return ok
}

// Unregister removes a client. The bus subscription ends with the last client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.accounts[c.AccountID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.accounts, c.AccountID)
			if cancel, ok := h.subs[c.AccountID]; ok {
				cancel()
				delete(h.subs, c.AccountID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left account", zap.String("client_id", c.ID), zap.String("account_id", c.AccountID.String()))
}

// Watchers returns the number of local clients watching accountID.
func (h *Hub) Watchers(accountID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.accounts[accountID])
}

// Broadcast delivers update to local clients of its account. Slow clients
// drop updates rather than block the sender.
func (h *Hub) Broadcast(update models.CounterUpdate) {
	msg, err := counterMessage(update)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.accounts[update.AccountID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("dropping counter update for slow client", zap.String("client_id", c.ID))
		}
	}
}

func counterMessage(update models.CounterUpdate) (WSMessage, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return WSMessage{}, err
	}
	return WSMessage{Event: EventCounter, Data: data}, nil
}
