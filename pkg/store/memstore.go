// Package store provides SessionStore and TranslationStore implementations.
// MemStore is the in-process reference implementation used by tests and by
// cmd/interpreter-server when no durable backend is configured; BadgerStore
// is the durable TranslationStore backed by badger/v4.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// MemStore holds sessions, participants, and translation records entirely
// in memory, guarded by one RWMutex per concern — the same map+mutex shape
// the Stream Manager and Room Registry use for their own registries.
type MemStore struct {
	mu           sync.RWMutex
	sessions     map[string]*interpreter.Session
	participants map[string]map[string]*interpreter.Participant // sessionID -> participantID -> participant

	recMu   sync.RWMutex
	records []interpreter.TranslationRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		sessions:     make(map[string]*interpreter.Session),
		participants: make(map[string]map[string]*interpreter.Participant),
	}
}

func (m *MemStore) CreateSession(sessionID, hostParticipantID string, ttl time.Duration) *interpreter.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := &interpreter.Session{
		ID:                sessionID,
		HostParticipantID: hostParticipantID,
		ExpiresAt:         time.Now().Add(ttl),
	}
	m.sessions[sessionID] = sess
	if _, ok := m.participants[sessionID]; !ok {
		m.participants[sessionID] = make(map[string]*interpreter.Participant)
	}
	return sess
}

func (m *MemStore) AddParticipant(p interpreter.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[p.SessionID]; !ok {
		m.participants[p.SessionID] = make(map[string]*interpreter.Participant)
	}
	cp := p
	m.participants[p.SessionID][p.ID] = &cp
}

func (m *MemStore) RemoveParticipant(sessionID, participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members, ok := m.participants[sessionID]; ok {
		delete(members, participantID)
	}
}

func (m *MemStore) GetSession(ctx context.Context, sessionID string) (*interpreter.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, interpreter.ErrUnknownSession
	}
	return sess, nil
}

func (m *MemStore) GetParticipants(ctx context.Context, sessionID string) ([]*interpreter.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.participants[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]*interpreter.Participant, 0, len(members))
	for _, p := range members {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemStore) GetParticipant(ctx context.Context, sessionID, participantID string) (*interpreter.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.participants[sessionID]
	if !ok {
		return nil, interpreter.ErrUnknownParticipant
	}
	p, ok := members[participantID]
	if !ok {
		return nil, interpreter.ErrUnknownParticipant
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) SetSpeaking(ctx context.Context, sessionID, participantID string, speaking bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.participants[sessionID]
	if !ok {
		return interpreter.ErrUnknownParticipant
	}
	p, ok := members[participantID]
	if !ok {
		return interpreter.ErrUnknownParticipant
	}
	p.IsSpeaking = speaking
	return nil
}

func (m *MemStore) SetHandRaised(ctx context.Context, sessionID, participantID string, raised bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.participants[sessionID]
	if !ok {
		return interpreter.ErrUnknownParticipant
	}
	p, ok := members[participantID]
	if !ok {
		return interpreter.ErrUnknownParticipant
	}
	p.HandRaised = raised
	return nil
}

func (m *MemStore) Persist(ctx context.Context, rec interpreter.TranslationRecord) error {
	m.recMu.Lock()
	defer m.recMu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemStore) GetTranscript(ctx context.Context, sessionID string, lang interpreter.Language) ([]interpreter.TranslationRecord, error) {
	m.recMu.RLock()
	defer m.recMu.RUnlock()
	var out []interpreter.TranslationRecord
	for _, rec := range m.records {
		if rec.SessionID == sessionID && rec.TargetLanguage == lang {
			out = append(out, rec)
		}
	}
	return out, nil
}
