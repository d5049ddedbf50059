package realtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kat-co/vala"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/presence"
)

// Live-push event names.
const (
	EventChatMessage         = "chat.message"
	EventChatRead            = "chat.read"
	EventNotificationCreated = "notification.created"
	EventNotificationUnread  = "notification.unread"
	EventPresenceOnline      = "presence.online"
	EventPresenceOffline     = "presence.offline"
	EventPong                = "pong"
)

type Event struct {
	Name    string      `json:"event"`
	Payload interface{} `json:"data,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

func NewEvent(name string, payload interface{}) Event {
	return Event{Name: name, Payload: payload, SentAt: time.Now().UTC()}
}

// Conn is one open live-push connection (a browser tab, a device...).
// Send must not block: a slow or closing connection returns an error instead.
type Conn interface {
	ID() string
	UserID() string
	Send(Event) error
	Close() error
}

// PresenceListener is told whenever a user goes online (first connection) or offline (last one closed).
// Listeners run off the connect path, one user at a time, and are only handed the user's current state.
type PresenceListener func(userID string, online bool)

// Pusher delivers events to every open connection of a user.
type Pusher interface {
	PushToUser(userID string, ev Event) int
	IsOnline(userID string) bool
}

// Hub glues the presence tracker to the open connections.
type Hub struct {
	tracker *presence.Tracker
	conns   sync.Map // {connID: Conn}
	logger  core.Logger
	metrics *metrics

	listenersMu sync.RWMutex
	listeners   []PresenceListener

	presenceMu sync.Mutex
	presence   map[string]*announcement // users with a pending or announced-online state
	announcing sync.WaitGroup
	closing    atomic.Bool
}

// announcement is the presence state told to the listeners for one user.
type announcement struct {
	online  bool // last state the listeners were given
	dirty   bool // the tracker changed since the last read
	running bool // a goroutine is announcing this user
}

var _ Pusher = (*Hub)(nil)

// NewHub creates a Hub. Metrics are registered on reg when it is not nil.
func NewHub(tracker *presence.Tracker, logger core.Logger, reg prometheus.Registerer) *Hub {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tracker, "tracker"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Hub{
		tracker:  tracker,
		logger:   logger,
		metrics:  newMetrics(reg),
		presence: make(map[string]*announcement),
	}
}

func (h *Hub) OnPresenceChange(l PresenceListener) {
	h.listenersMu.Lock()
	h.listeners = append(h.listeners, l)
	h.listenersMu.Unlock()
}

// presenceChanged schedules an announcement of userID's presence.
// At most one goroutine per user runs the listeners, so announcements of a user never overlap.
func (h *Hub) presenceChanged(userID string) {
	h.presenceMu.Lock()
	if h.closing.Load() {
		h.presenceMu.Unlock()
		return
	}
	a, ok := h.presence[userID]
	if !ok {
		a = new(announcement)
		h.presence[userID] = a
	}
	a.dirty = true
	if a.running {
		h.presenceMu.Unlock()
		return
	}
	a.running = true
	h.announcing.Add(1)
	h.presenceMu.Unlock()

	go h.announce(userID, a)
}

// announce re-reads the tracker until it stops changing and tells the listeners every time
// the state differs from what they last heard, so the last announcement always matches IsOnline.
func (h *Hub) announce(userID string, a *announcement) {
	defer h.announcing.Done()
	for {
		h.presenceMu.Lock()
		if !a.dirty || h.closing.Load() {
			a.running = false
			if !a.online {
				delete(h.presence, userID)
			}
			h.presenceMu.Unlock()
			return
		}
		a.dirty = false
		online := h.tracker.IsOnline(userID)
		changed := online != a.online
		a.online = online
		h.presenceMu.Unlock()

		if changed {
			h.notifyPresence(userID, online)
		}
	}
}

func (h *Hub) notifyPresence(userID string, online bool) {
	h.listenersMu.RLock()
	listeners := h.listeners
	h.listenersMu.RUnlock()
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error(fmt.Sprintf("presence listener panicked for user %s: %v", userID, r))
				}
			}()
			l(userID, online)
		}()
	}
}

// Flush waits for the pending presence announcements.
func (h *Hub) Flush() {
	h.announcing.Wait()
}

// Register makes conn reachable by PushToUser. It returns true if its user just came online.
func (h *Hub) Register(conn Conn) bool {
	if _, loaded := h.conns.LoadOrStore(conn.ID(), conn); loaded {
		return false
	}
	h.metrics.connections.Inc()

	first := h.tracker.Connect(conn.UserID(), conn.ID())
	if first {
		h.metrics.onlineUsers.Inc()
		h.presenceChanged(conn.UserID())
	}
	return first
}

// Unregister forgets conn; calling it more than once is harmless.
// It returns true if its user just went offline.
func (h *Hub) Unregister(conn Conn) bool {
	current, ok := h.conns.Load(conn.ID())
	if !ok || current != conn {
		return false
	}
	h.conns.Delete(conn.ID())
	h.metrics.connections.Dec()

	last := h.tracker.Disconnect(conn.UserID(), conn.ID())
	if last {
		h.metrics.onlineUsers.Dec()
		h.presenceChanged(conn.UserID())
	}
	return last
}

func (h *Hub) IsOnline(userID string) bool {
	return h.tracker.IsOnline(userID)
}

func (h *Hub) OnlineUsers() []string {
	return h.tracker.OnlineUsers()
}

// PushToUser sends ev to each open connection of the user and returns the number of successful deliveries.
// Failures are logged, never returned: pushing is best-effort and must not undo the caller's work.
func (h *Hub) PushToUser(userID string, ev Event) int {
	var delivered int
	for _, connID := range h.tracker.Connections(userID) {
		v, ok := h.conns.Load(connID)
		if !ok { // closed between the snapshot & now
			h.metrics.pushes.WithLabelValues(pushSkipped).Inc()
			continue
		}
		if err := v.(Conn).Send(ev); err != nil {
			h.metrics.pushes.WithLabelValues(pushFailed).Inc()
			h.logger.Warn(fmt.Sprintf("pushing %s to user %s (conn %s): %v", ev.Name, userID, connID, err))
			continue
		}
		h.metrics.pushes.WithLabelValues(pushDelivered).Inc()
		delivered++
	}
	return delivered
}

// PushToUsers is PushToUser over several users.
func (h *Hub) PushToUsers(userIDs []string, ev Event) int {
	var delivered int
	for _, id := range userIDs {
		delivered += h.PushToUser(id, ev)
	}
	return delivered
}

// CloseAll closes every open connection; used on shutdown.
// Presence is no longer announced once it starts.
func (h *Hub) CloseAll() {
	// under presenceMu so that no announcement starts once Flush waits
	h.presenceMu.Lock()
	h.closing.Store(true)
	h.presenceMu.Unlock()
	defer h.Flush()

	h.conns.Range(func(_, v interface{}) bool {
		conn := v.(Conn)
		if err := conn.Close(); err != nil {
			h.logger.Warn(fmt.Sprintf("closing conn %s: %v", conn.ID(), err))
		}
		h.Unregister(conn)
		return true
	})
}
