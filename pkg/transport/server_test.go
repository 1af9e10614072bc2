package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// mockStreamingSTT hands back a channel the test can drive by invoking the
// stored onTranscript callback directly, the same shape
// pkg/interpreter's own MockStreamingSTTProvider uses.
type mockStreamingSTT struct {
	mu           sync.Mutex
	onTranscript func(string, float64, bool) error
}

func (m *mockStreamingSTT) Transcribe(ctx context.Context, audio []byte, lang interpreter.Language) (string, error) {
	return "", nil
}
func (m *mockStreamingSTT) Name() string { return "mock-streaming-stt" }
func (m *mockStreamingSTT) StreamTranscribe(ctx context.Context, sampleRateHz int, lang interpreter.Language, onTranscript func(string, float64, bool) error) (chan<- []byte, <-chan error, error) {
	m.mu.Lock()
	m.onTranscript = onTranscript
	m.mu.Unlock()
	ch := make(chan []byte, 32)
	errCh := make(chan error, 1)
	go func() {
		for range ch {
		}
	}()
	return ch, errCh, nil
}

func (m *mockStreamingSTT) sendFinal(text string) {
	m.mu.Lock()
	cb := m.onTranscript
	m.mu.Unlock()
	if cb != nil {
		cb(text, 0.95, true)
	}
}

type passthroughTranslate struct{}

func (passthroughTranslate) Translate(ctx context.Context, text string, from, to interpreter.Language) (string, error) {
	return "[" + string(to) + "] " + text, nil
}
func (passthroughTranslate) Name() string { return "passthrough-translate" }

func newTestServer(t *testing.T, stt *mockStreamingSTT) (*httptest.Server, *interpreter.StreamManager, *fakeSessionStore) {
	t.Helper()
	store := newFakeSessionStore()
	rooms := interpreter.NewRoomRegistry(store, nil)
	streams := interpreter.NewStreamManager(context.Background(), stt, interpreter.DefaultConfig(), nil)
	fanout := interpreter.NewFanout(passthroughTranslate{}, nil, interpreter.NewSynthesisCache(10), nil, nil, interpreter.DefaultConfig(), nil)

	srv := NewServer(rooms, streams, fanout, store, interpreter.DefaultConfig(), nil)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	t.Cleanup(func() {
		streams.Destroy()
		ts.Close()
	})
	return ts, streams, store
}

// fakeSessionStore is a minimal SessionStore with one listener and one
// host speaker registered against "sess-1".
type fakeSessionStore struct {
	mu           sync.Mutex
	participants []*interpreter.Participant
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		participants: []*interpreter.Participant{
			{ID: "listener-1", SessionID: "sess-1", Language: "Spanish", PreferredOutput: interpreter.OutputText},
			{ID: "speaker-1", SessionID: "sess-1", Role: interpreter.RoleHost},
		},
	}
}

func (f *fakeSessionStore) GetSession(ctx context.Context, sessionID string) (*interpreter.Session, error) {
	return &interpreter.Session{ID: sessionID}, nil
}
func (f *fakeSessionStore) GetParticipants(ctx context.Context, sessionID string) ([]*interpreter.Participant, error) {
	return f.participants, nil
}
func (f *fakeSessionStore) GetParticipant(ctx context.Context, sessionID, participantID string) (*interpreter.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.ID == participantID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, interpreter.ErrUnknownParticipant
}
func (f *fakeSessionStore) SetSpeaking(ctx context.Context, sessionID, participantID string, speaking bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants {
		if p.ID == participantID {
			p.IsSpeaking = speaking
			return nil
		}
	}
	return interpreter.ErrUnknownParticipant
}
func (f *fakeSessionStore) SetHandRaised(ctx context.Context, sessionID, participantID string, raised bool) error {
	return nil
}

func TestServer_JoinConfigureSpeakTranslationBroadcast(t *testing.T) {
	stt := &mockStreamingSTT{}
	ts, _, _ := newTestServer(t, stt)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	mustWriteJSON(t, ctx, conn, map[string]interface{}{"type": "join-session", "sessionId": "sess-1"})
	mustWriteJSON(t, ctx, conn, map[string]interface{}{
		"type": "audio_metadata", "participantId": "speaker-1", "sampleRate": 16000, "targetLanguage": "English",
	})

	// Give configureSpeaker's goroutine a moment to register onTranscript.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stt.mu.Lock()
		ready := stt.onTranscript != nil
		stt.mu.Unlock()
		if ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stt.sendFinal("hello there.")

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("unexpected read error waiting for translation: %v", err)
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("unexpected unmarshal error: %v", err)
		}
		if env.Type != TypeTranslation {
			continue
		}
		var tp TranslationPayload
		if err := json.Unmarshal(env.Data, &tp); err != nil {
			t.Fatalf("unexpected translation payload error: %v", err)
		}
		if tp.OriginalText != "hello there." {
			t.Errorf("expected original text 'hello there.', got %q", tp.OriginalText)
		}
		if got := tp.Translations["Spanish"]; got != "[Spanish] hello there." {
			t.Errorf("expected passthrough translation, got %q", got)
		}
		break
	}
}

// TestServer_UnauthorizedParticipantAudioIgnored exercises spec.md §4.8's
// authorization gate directly: a participant the store doesn't know about,
// and a known participant without speaking permission, must never get a
// Speaker Stream wired up for them.
func TestServer_UnauthorizedParticipantAudioIgnored(t *testing.T) {
	stt := &mockStreamingSTT{}
	ts, _, _ := newTestServer(t, stt)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	mustWriteJSON(t, ctx, conn, map[string]interface{}{"type": "join-session", "sessionId": "sess-1"})

	// "ghost" belongs to no session; "listener-1" exists but has neither
	// is_speaking nor the host role. Neither should be authorized.
	mustWriteJSON(t, ctx, conn, map[string]interface{}{
		"type": "audio_metadata", "participantId": "ghost", "sampleRate": 16000, "targetLanguage": "English",
	})
	mustWriteJSON(t, ctx, conn, map[string]interface{}{
		"type": "audio_metadata", "participantId": "listener-1", "sampleRate": 16000, "targetLanguage": "English",
	})

	time.Sleep(100 * time.Millisecond)

	stt.mu.Lock()
	registered := stt.onTranscript != nil
	stt.mu.Unlock()
	if registered {
		t.Fatal("expected no Speaker Stream to be created for an unauthorized participant")
	}
}

func mustWriteJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
}
