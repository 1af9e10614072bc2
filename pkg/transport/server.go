package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// Server is the Transport Adapter of spec.md §4.9: it accepts duplex
// connections at a fixed endpoint, binds each to a Session Room, and
// dispatches binary frames to the bound participant's Speaker Stream. Server
// owns no state of its own beyond what it needs to wire connections to the
// Stream Manager / Room Registry / Fanout already constructed by the
// caller (cmd/interpreter-server).
type Server struct {
	rooms   *interpreter.RoomRegistry
	streams *interpreter.StreamManager
	fanout  *interpreter.Fanout
	store   interpreter.SessionStore
	cfg     interpreter.Config
	logger  interpreter.Logger
}

func NewServer(rooms *interpreter.RoomRegistry, streams *interpreter.StreamManager, fanout *interpreter.Fanout, store interpreter.SessionStore, cfg interpreter.Config, logger interpreter.Logger) *Server {
	if logger == nil {
		logger = &interpreter.NoOpLogger{}
	}
	return &Server{rooms: rooms, streams: streams, fanout: fanout, store: store, cfg: cfg, logger: logger}
}

// ServeHTTP accepts the upgrade and runs the connection until it closes.
// Mount this at the interpreter's fixed WebSocket endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	c := &connection{
		server: s,
		conn:   conn,
		ctx:    r.Context(),
	}
	c.run()
}

// connection is one duplex channel: a reader task (this goroutine) and a
// writer task (spawned below), matching spec.md §5's "one reader task and
// one writer task" per listener.
type connection struct {
	server   *Server
	conn     *websocket.Conn
	ctx      context.Context
	listener *interpreter.Listener
	room     *interpreter.Room
}

const listenerQueueDepth = 64

func (c *connection) run() {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	connID := newConnID()
	writerDone := make(chan struct{})

	defer func() {
		if c.listener != nil && c.room != nil {
			empty := c.room.RemoveListener(c.listener.ID)
			if empty {
				c.server.rooms.RemoveIfEmpty(c.room.SessionID)
			}
		}
		<-writerDone
	}()

	for {
		msgType, payload, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageText:
			if int64(len(payload)) > c.server.cfg.MaxControlFrameBytes {
				c.server.logger.Warn("control frame exceeds max size, dropping", "conn", connID)
				continue
			}
			if !json.Valid(payload) {
				c.handleBinary(payload)
				continue
			}
			c.handleControl(ctx, payload, connID, writerDone)
		case websocket.MessageBinary:
			c.handleBinary(payload)
		}
	}
}

func (c *connection) handleControl(ctx context.Context, payload []byte, connID string, writerDone chan struct{}) {
	msg, err := decodeControl(payload)
	if err != nil {
		c.server.logger.Warn("malformed control message, dropping", "error", err)
		return
	}

	switch msg.Type {
	case TypeJoinSession:
		p := msg.Payload.(JoinSessionPayload)
		c.joinSession(ctx, p.SessionID, connID, writerDone)
	case TypeAudioMetadata:
		p := msg.Payload.(AudioMetadataPayload)
		c.configureSpeaker(ctx, p)
	case TypeAudioChunkMetadata:
		p := msg.Payload.(AudioChunkMetadataPayload)
		if p.ParticipantID != "" {
			if _, err := c.authorizeSpeaker(ctx, p.ParticipantID); err == nil {
				c.listener.BindParticipant(p.ParticipantID)
			}
		}
	case TypeSpeakPermission:
		p := msg.Payload.(SpeakPermissionPayload)
		c.applySpeakPermission(ctx, p, payload)
	case TypeSpeakerStatus, TypeHandRaise:
		c.relay(payload)
	}
}

// authorizeSpeaker implements spec.md §4.8's "Listener authorization for
// outbound audio": a participant may be bound to this connection's audio
// only if it belongs to the room's session and either already has
// is_speaking permission or is the host (auto-promoted to is_speaking on
// this, its first association). Returns interpreter.ErrNotSpeaking or
// ErrUnknownParticipant on failure; either way the caller drops the
// association per spec.md §7's "participant without speaking permission"
// protocol error.
func (c *connection) authorizeSpeaker(ctx context.Context, participantID string) (*interpreter.Participant, error) {
	if c.room == nil {
		return nil, interpreter.ErrUnknownParticipant
	}
	p, err := c.server.store.GetParticipant(ctx, c.room.SessionID, participantID)
	if err != nil {
		c.server.logger.Warn("audio binding for unknown participant, dropping", "session", c.room.SessionID, "participant", participantID, "error", err)
		return nil, interpreter.ErrUnknownParticipant
	}
	if p.SessionID != c.room.SessionID {
		c.server.logger.Warn("audio binding for participant outside session, dropping", "session", c.room.SessionID, "participant", participantID)
		return nil, interpreter.ErrUnknownParticipant
	}
	if p.IsSpeaking {
		return p, nil
	}
	if p.Role == interpreter.RoleHost {
		if err := c.server.store.SetSpeaking(ctx, c.room.SessionID, participantID, true); err != nil {
			c.server.logger.Warn("auto-promoting host to speaking failed", "session", c.room.SessionID, "participant", participantID, "error", err)
		}
		p.IsSpeaking = true
		return p, nil
	}
	c.server.logger.Warn("participant lacks speaking permission, dropping audio binding", "session", c.room.SessionID, "participant", participantID)
	return nil, interpreter.ErrNotSpeaking
}

// applySpeakPermission persists a host's speak-permission grant/revoke to
// the store (so authorizeSpeaker sees it) before relaying the message
// unchanged, per spec.md §6's speak-permission wire entry.
func (c *connection) applySpeakPermission(ctx context.Context, p SpeakPermissionPayload, raw []byte) {
	if p.SessionID != "" && p.ParticipantID != "" {
		if err := c.server.store.SetSpeaking(ctx, p.SessionID, p.ParticipantID, p.IsSpeaking); err != nil {
			c.server.logger.Warn("speak-permission update failed", "session", p.SessionID, "participant", p.ParticipantID, "error", err)
		}
	}
	c.relay(raw)
}

// joinSession binds this connection to a room and starts its writer task.
// Rooms are created lazily on first join per spec.md §4.8.
func (c *connection) joinSession(ctx context.Context, sessionID, connID string, writerDone chan struct{}) {
	room := c.server.rooms.GetOrCreate(sessionID)
	listener := interpreter.NewListener(connID, sessionID, listenerQueueDepth)
	room.AddListener(listener)

	c.room = room
	c.listener = listener

	go c.writeLoop(ctx, listener, writerDone)
}

// writeLoop drains the listener's outbound queue to the connection; it owns
// the bounded outbound queue per spec.md §5.
func (c *connection) writeLoop(ctx context.Context, l *interpreter.Listener, done chan struct{}) {
	defer close(done)
	for {
		select {
		case payload, ok := <-l.Send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// configureSpeaker declares (or changes) a speaker's identity, sample rate,
// and primary language, and restarts the Speaker Stream's STT session on an
// actual config change (spec.md §6 audio_metadata). Authorization happens
// here, not in handleBinary, because this is the association point spec.md
// §4.8 gates: only an authorized participant gets bound and gets a Speaker
// Stream at all.
func (c *connection) configureSpeaker(ctx context.Context, p AudioMetadataPayload) {
	if c.room == nil || c.listener == nil {
		return
	}
	if _, err := c.authorizeSpeaker(ctx, p.ParticipantID); err != nil {
		return
	}
	c.listener.BindParticipant(p.ParticipantID)

	lang := interpreter.Language(p.TargetLanguage)
	if lang == "" {
		lang = interpreter.LanguageDefault
	}

	speaker := c.server.streams.GetOrCreate(c.room.SessionID, p.ParticipantID, p.ParticipantID)
	speaker.Configure(p.SampleRate, lang)

	go c.pumpSpeakerEvents(speaker)
}

// pumpSpeakerEvents forwards one Speaker Stream's events to interim
// transcript broadcasts and the Translation Fan-out. GetOrCreate returns the
// same *SpeakerStream, so each repeated audio_metadata message attaches
// another consumer to the same Events() channel; every event is handled by
// exactly one of them, and all of them exit once Events() closes on Stop.
func (c *connection) pumpSpeakerEvents(speaker *interpreter.SpeakerStream) {
	room := c.room
	adapter := &roomBroadcaster{room: room}
	for ev := range speaker.Events() {
		switch ev.Type {
		case interpreter.EventInterim:
			text, _ := ev.Data.(string)
			raw, err := EncodeInterimTranscript(InterimTranscriptPayload{
				Text:          text,
				ParticipantID: ev.ParticipantID,
				SessionID:     ev.SessionID,
			})
			if err == nil {
				room.BroadcastEncoded(raw)
			}
		case interpreter.EventSentence:
			sent, ok := ev.Data.(*interpreter.Sentence)
			if !ok || sent == nil {
				continue
			}
			c.server.fanout.Process(context.Background(), sent, room, adapter)
		case interpreter.EventError:
			c.server.logger.Warn("speaker stream error", "session", ev.SessionID, "participant", ev.ParticipantID, "error", ev.Data)
		}
	}
}

// handleBinary enforces spec.md §4.8/§4.9's frame rules: size cap, a bound
// participant, and the per-participant ingress rate limit, before writing
// the frame verbatim to the bound Speaker Stream. The participant-
// authorization check itself already happened in authorizeSpeaker at bind
// time (configureSpeaker / audio-chunk-metadata) — an unauthorized
// participant is never bound, so BoundParticipant() being empty is what
// drops its frames here.
func (c *connection) handleBinary(payload []byte) {
	if int64(len(payload)) > c.server.cfg.MaxControlFrameBytes {
		c.server.logger.Warn("binary frame exceeds max size, dropping")
		return
	}
	if c.listener == nil || c.room == nil {
		return
	}
	participantID := c.listener.BoundParticipant()
	if participantID == "" {
		return
	}
	if !c.listener.AllowFrame(time.Now(), c.server.cfg.IngressMinFrameGap) {
		return
	}

	speaker, ok := c.server.streams.Get(c.room.SessionID, participantID)
	if !ok {
		return
	}
	speaker.WriteFrame(payload)
}

// relay forwards a moderation/status control message unchanged to every
// connection in the room, the sender's included.
func (c *connection) relay(payload []byte) {
	if c.room == nil {
		return
	}
	c.room.BroadcastEncoded(payload)
}

// roomBroadcaster adapts a Room (which only knows how to fan out already-
// encoded bytes) to interpreter.Broadcaster (which the Fan-out calls with
// typed messages), doing the JSON encoding pkg/interpreter deliberately
// doesn't know about.
type roomBroadcaster struct {
	room *interpreter.Room
}

func (b *roomBroadcaster) BroadcastTranslation(t interpreter.TranslationBroadcast) {
	translations := make(map[string]string, len(t.Translations))
	for lang, text := range t.Translations {
		translations[string(lang)] = text
	}
	raw, err := EncodeTranslation(TranslationPayload{
		SessionID:        t.SessionID,
		ParticipantID:    t.ParticipantID,
		SpeakerName:      t.SpeakerName,
		OriginalText:     t.OriginalText,
		OriginalLanguage: string(t.OriginalLanguage),
		Translations:     translations,
		Timestamp:        t.Timestamp.UnixMilli(),
		HasErrors:        t.HasErrors,
		ErrorCount:       t.ErrorCount,
	})
	if err != nil {
		return
	}
	b.room.BroadcastEncoded(raw)
}

func (b *roomBroadcaster) BroadcastAudioSynthesized(a interpreter.AudioSynthesized) {
	raw, err := EncodeAudioSynthesized(AudioSynthesizedPayload{
		Language:      string(a.Language),
		AudioContent:  base64.StdEncoding.EncodeToString(a.AudioContent),
		ParticipantID: a.ParticipantID,
		SpeakerName:   a.SpeakerName,
		Text:          a.Text,
		Timestamp:     a.Timestamp.UnixMilli(),
	})
	if err != nil {
		return
	}
	b.room.BroadcastEncoded(raw)
}
