package ws

import (
	"log/slog"
	"sort"
	"sync"
)

// Conn is the minimal connection surface the registry pushes through.
type Conn interface {
	Enqueue(event string, data any) error
	Close()
}

// Registry maps user IDs to their single active connection. It is the
// authority on who is online right now. A user reconnecting replaces (and
// closes) their previous connection: last connection wins.
type Registry struct {
	mu     sync.RWMutex
	online map[string]Conn
	log    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		online: make(map[string]Conn),
		log:    logger,
	}
}

// Register records conn as the user's active connection and broadcasts the
// updated online set to everyone registered. A previous connection for the
// same user is closed.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.online[userID]; ok && prev != conn {
		prev.Close()
	} else if !ok {
		connectionsGauge.Inc()
	}
	r.online[userID] = conn
	r.log.Info("user connected", "user_id", userID, "online", len(r.online))
	r.broadcastOnlineLocked()
}

// Unregister removes the mapping, but only while conn is still the current
// handle; the deferred unregister of a replaced connection is a no-op.
// Removal broadcasts the updated online set.
func (r *Registry) Unregister(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.online[userID]
	if !ok || current != conn {
		return
	}
	delete(r.online, userID)
	connectionsGauge.Dec()
	r.log.Info("user disconnected", "user_id", userID, "online", len(r.online))
	r.broadcastOnlineLocked()
}

// IsOnline reports whether the user has an active connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[userID]
	return ok
}

// Snapshot returns the sorted set of online user IDs.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Emit pushes an event to one user. It reports false when the user has no
// active connection; the event is not queued or retried.
func (r *Registry) Emit(userID, event string, data any) bool {
	r.mu.RLock()
	conn, ok := r.online[userID]
	r.mu.RUnlock()
	if !ok {
		eventsMissed.WithLabelValues(event).Inc()
		return false
	}
	if err := conn.Enqueue(event, data); err != nil {
		r.log.Warn("push failed", "user_id", userID, "event", event, "error", err)
		return false
	}
	eventsDelivered.WithLabelValues(event).Inc()
	return true
}

// Broadcast pushes an event to every registered connection.
func (r *Registry) Broadcast(event string, data any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for userID, conn := range r.online {
		if err := conn.Enqueue(event, data); err != nil {
			r.log.Warn("broadcast push failed", "user_id", userID, "event", event, "error", err)
		}
	}
}

// broadcastOnlineLocked sends the current online set to all connections.
// Called with the write lock held so broadcasts are serialized with
// mutations: the last broadcast always reflects the final state.
func (r *Registry) broadcastOnlineLocked() {
	snapshot := r.snapshotLocked()
	for userID, conn := range r.online {
		if err := conn.Enqueue(EventOnlineUsers, snapshot); err != nil {
			r.log.Warn("online-set push failed", "user_id", userID, "error", err)
		}
	}
}

func (r *Registry) snapshotLocked() []string {
	ids := make([]string, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
