package interpreter

import (
	"context"
	"sync"
	"time"
)

// StreamManager is the registry of spec.md §4.5: Speaker Streams keyed by
// (session, participant), with a reaper that destroys anything idle past
// ReaperTimeout. Grounded on the pack's keyed-registry-plus-reaper shape
// (stream_manager.go in the example pack's AWS transcode layer) applied to
// Speaker Streams instead of transcode jobs.
type StreamManager struct {
	mu       sync.RWMutex
	streams  map[string]*SpeakerStream
	provider StreamingSTTProvider
	cfg      Config
	logger   Logger

	ctx       context.Context
	cancel    context.CancelFunc
	reaperDone chan struct{}
}

func streamKey(sessionID, participantID string) string {
	return sessionID + "|" + participantID
}

// NewStreamManager starts the reaper goroutine immediately; call Destroy to
// stop it and tear down every stream.
func NewStreamManager(parent context.Context, provider StreamingSTTProvider, cfg Config, logger Logger) *StreamManager {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(parent)
	m := &StreamManager{
		streams:    make(map[string]*SpeakerStream),
		provider:   provider,
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		reaperDone: make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// GetOrCreate returns the existing stream for (sessionID, participantID) or
// constructs a new one lazily.
func (m *StreamManager) GetOrCreate(sessionID, participantID, speakerName string) *SpeakerStream {
	key := streamKey(sessionID, participantID)

	m.mu.RLock()
	if s, ok := m.streams[key]; ok {
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[key]; ok {
		return s
	}
	s := NewSpeakerStream(m.ctx, sessionID, participantID, speakerName, m.provider, m.cfg, m.logger)
	m.streams[key] = s
	return s
}

// Get returns the stream for (sessionID, participantID) if one exists.
func (m *StreamManager) Get(sessionID, participantID string) (*SpeakerStream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[streamKey(sessionID, participantID)]
	return s, ok
}

// StopStream removes and stops the stream for (sessionID, participantID).
func (m *StreamManager) StopStream(sessionID, participantID string) {
	key := streamKey(sessionID, participantID)
	m.mu.Lock()
	s, ok := m.streams[key]
	if ok {
		delete(m.streams, key)
	}
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// StopSession stops every stream belonging to sessionID.
func (m *StreamManager) StopSession(sessionID string) {
	prefix := sessionID + "|"
	m.mu.Lock()
	var toStop []*SpeakerStream
	for key, s := range m.streams {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			toStop = append(toStop, s)
			delete(m.streams, key)
		}
	}
	m.mu.Unlock()
	for _, s := range toStop {
		s.Stop()
	}
}

func (m *StreamManager) reapLoop() {
	defer close(m.reaperDone)
	ticker := time.NewTicker(m.cfg.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

func (m *StreamManager) reapOnce() {
	now := time.Now()
	m.mu.Lock()
	var stale []*SpeakerStream
	for key, s := range m.streams {
		if now.Sub(s.LastActivityAt()) > m.cfg.ReaperTimeout {
			stale = append(stale, s)
			delete(m.streams, key)
		}
	}
	m.mu.Unlock()
	for _, s := range stale {
		m.logger.Info("reaping inactive speaker stream", "session", s.sessionID, "participant", s.participantID)
		s.Stop()
	}
}

// Destroy stops every Speaker Stream and the reaper; called on shutdown or
// session end.
func (m *StreamManager) Destroy() {
	m.mu.Lock()
	streams := make([]*SpeakerStream, 0, len(m.streams))
	for _, s := range m.streams {
		streams = append(streams, s)
	}
	m.streams = make(map[string]*SpeakerStream)
	m.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
	m.cancel()
	<-m.reaperDone
}

// Count returns the number of live streams; used for metrics/observability.
func (m *StreamManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}
