package interpreter

import (
	"context"
	"sync"
	"time"
)

// Listener is the room's view of one connected duplex channel: an outbound
// queue the transport's writer goroutine drains, and the participant
// identity it's currently bound to for outbound audio (if any).
type Listener struct {
	ID            string
	SessionID     string
	Send          chan []byte
	participantID string
	mu            sync.RWMutex
	lastFrameAt   time.Time
}

func NewListener(id, sessionID string, queueDepth int) *Listener {
	return &Listener{ID: id, SessionID: sessionID, Send: make(chan []byte, queueDepth)}
}

// BindParticipant associates this connection with a speaking identity
// after an audio_metadata/audio-chunk-metadata control message (spec.md
// §4.8 "Listener authorization for outbound audio").
func (l *Listener) BindParticipant(participantID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.participantID = participantID
}

func (l *Listener) BoundParticipant() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.participantID
}

// AllowFrame enforces the per-participant ingress rate limit of spec.md
// §4.8/§5: binary frames capped at 100/s, honored here via the >=10ms
// minimum gap between accepted frames.
func (l *Listener) AllowFrame(now time.Time, minGap time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.lastFrameAt.IsZero() && now.Sub(l.lastFrameAt) < minGap {
		return false
	}
	l.lastFrameAt = now
	return true
}

// Enqueue delivers payload to this listener's outbound queue, dropping it
// if the queue is full (spec.md P1/§4.8: "slow listeners must never stall
// the pipeline").
func (l *Listener) Enqueue(payload []byte) bool {
	select {
	case l.Send <- payload:
		return true
	default:
		return false
	}
}

// Room owns the set of Listener Connections for one session, grounded on
// the pack's room_hub.go (Room/Listener/Broadcast shape) and
// audio-translator's meeting.Room (participant/listener maps, per-room
// target-language cache).
type Room struct {
	SessionID string

	mu        sync.RWMutex
	listeners map[string]*Listener
	store     SessionStore
	logger    Logger
}

func NewRoom(sessionID string, store SessionStore, logger Logger) *Room {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Room{
		SessionID: sessionID,
		listeners: make(map[string]*Listener),
		store:     store,
		logger:    logger,
	}
}

// AddListener registers a connection; rooms are created lazily by the
// registry on the first join, so this just adds to the set here.
func (r *Room) AddListener(l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[l.ID] = l
}

// RemoveListener removes a connection and reports whether the room is now
// empty (callers use this to decide whether to tear the room down).
func (r *Room) RemoveListener(id string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
	return len(r.listeners) == 0
}

func (r *Room) ListenerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// broadcastRaw serializes once (the caller passes the already-encoded
// payload) and dispatches to every connection whose send buffer isn't
// full, satisfying P1 (room integrity): every open connection gets exactly
// one copy, connections outside the room get none.
func (r *Room) broadcastRaw(payload []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listeners {
		if !l.Enqueue(payload) {
			r.logger.Warn("listener send buffer full, dropping broadcast", "session", r.SessionID, "listener", l.ID)
		}
	}
}

// BroadcastEncoded fans an already wire-encoded message out to every
// listener. pkg/transport owns JSON encoding of TranslationBroadcast /
// AudioSynthesized and calls this once per message.
func (r *Room) BroadcastEncoded(payload []byte) {
	r.broadcastRaw(payload)
}

// ConnectedParticipants implements RoomMembership by asking the
// SessionStore for the session's current roster — the Fan-out needs
// display languages, not connection identities.
func (r *Room) ConnectedParticipants() []*Participant {
	if r.store == nil {
		return nil
	}
	participants, err := r.store.GetParticipants(context.Background(), r.SessionID)
	if err != nil {
		r.logger.Warn("failed to load participants for fan-out", "session", r.SessionID, "error", err)
		return nil
	}
	return participants
}

// RoomRegistry is the process-global (constructed once at startup, per
// spec.md §9 "Global mutable state") map of session ID to Room.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	store  SessionStore
	logger Logger
}

func NewRoomRegistry(store SessionStore, logger Logger) *RoomRegistry {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &RoomRegistry{rooms: make(map[string]*Room), store: store, logger: logger}
}

// GetOrCreate returns the room for sessionID, creating it lazily on first
// join per spec.md §4.8.
func (reg *RoomRegistry) GetOrCreate(sessionID string) *Room {
	reg.mu.RLock()
	if r, ok := reg.rooms[sessionID]; ok {
		reg.mu.RUnlock()
		return r
	}
	reg.mu.RUnlock()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[sessionID]; ok {
		return r
	}
	r := NewRoom(sessionID, reg.store, reg.logger)
	reg.rooms[sessionID] = r
	return r
}

func (reg *RoomRegistry) Get(sessionID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[sessionID]
	return r, ok
}

// RemoveIfEmpty destroys the room entry if it has no connections left.
func (reg *RoomRegistry) RemoveIfEmpty(sessionID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[sessionID]; ok && r.ListenerCount() == 0 {
		delete(reg.rooms, sessionID)
	}
}
