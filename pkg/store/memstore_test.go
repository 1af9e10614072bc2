package store

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

func TestMemStore_SessionAndParticipantLifecycle(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	sess := m.CreateSession("sess-1", "p1", time.Hour)
	if sess.ID != "sess-1" {
		t.Fatalf("unexpected session id: %s", sess.ID)
	}

	m.AddParticipant(interpreter.Participant{ID: "p1", SessionID: "sess-1", Name: "Alice", Role: interpreter.RoleHost})
	m.AddParticipant(interpreter.Participant{ID: "p2", SessionID: "sess-1", Name: "Bob", Role: interpreter.RoleParticipant})

	got, err := m.GetSession(ctx, "sess-1")
	if err != nil || got.ID != "sess-1" {
		t.Fatalf("expected session sess-1, got %+v err %v", got, err)
	}

	members, err := m.GetParticipants(ctx, "sess-1")
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 participants, got %d err %v", len(members), err)
	}

	if err := m.SetSpeaking(ctx, "sess-1", "p1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, err := m.GetParticipant(ctx, "sess-1", "p1")
	if err != nil || !p.IsSpeaking {
		t.Fatalf("expected p1 speaking, got %+v err %v", p, err)
	}

	m.RemoveParticipant("sess-1", "p2")
	members, _ = m.GetParticipants(ctx, "sess-1")
	if len(members) != 1 {
		t.Fatalf("expected 1 participant after removal, got %d", len(members))
	}
}

func TestMemStore_GetSessionUnknown(t *testing.T) {
	m := NewMemStore()
	if _, err := m.GetSession(context.Background(), "nope"); err != interpreter.ErrUnknownSession {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestMemStore_TranslationPersistAndRetrieve(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	rec := interpreter.TranslationRecord{
		SessionID:        "sess-1",
		ParticipantID:    "p1",
		OriginalText:     "hello",
		OriginalLanguage: interpreter.LanguageEnglish,
		TargetLanguage:   "Spanish",
		TranslatedText:   "hola",
		Timestamp:        time.Now(),
	}
	if err := m.Persist(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := m.GetTranscript(ctx, "sess-1", "Spanish")
	if err != nil || len(out) != 1 || out[0].TranslatedText != "hola" {
		t.Fatalf("unexpected transcript result: %+v err %v", out, err)
	}

	out, err = m.GetTranscript(ctx, "sess-1", "French")
	if err != nil || len(out) != 0 {
		t.Fatalf("expected no records for French, got %+v", out)
	}
}
