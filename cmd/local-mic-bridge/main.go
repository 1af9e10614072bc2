// local-mic-bridge is a manual-testing client: it captures one local
// microphone with malgo and speaks it into a running interpreter-server
// over the wire protocol, printing every translation broadcast it receives
// back (other broadcasts are ignored). It does not drive STT/translate/TTS
// itself — that's the server's job — it only plays the role of one
// speaker's browser tab.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
)

const (
	sampleRate = 16000
	channels   = 1
)

// envelope mirrors pkg/transport's inbound wire shape closely enough to
// read the translation broadcasts this client prints without depending on
// transport's unexported decode path.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type translationPayload struct {
	SpeakerName      string            `json:"speakerName"`
	OriginalText     string            `json:"originalText"`
	OriginalLanguage string            `json:"originalLanguage"`
	Translations     map[string]string `json:"translations"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	serverURL := os.Getenv("INTERPRETER_SERVER_URL")
	if serverURL == "" {
		serverURL = "ws://localhost:8080/ws"
	}
	sessionID := os.Getenv("SESSION_ID")
	if sessionID == "" {
		sessionID = "demo-session"
	}
	participantID := os.Getenv("PARTICIPANT_ID")
	if participantID == "" {
		participantID = "local-mic"
	}
	targetLanguage := os.Getenv("SPEAKER_LANGUAGE")
	if targetLanguage == "" {
		targetLanguage = "English"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		log.Fatalf("Error: dialing %s: %v", serverURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	mustWriteJSON(ctx, conn, map[string]interface{}{
		"type":      "join-session",
		"sessionId": sessionID,
	})
	mustWriteJSON(ctx, conn, map[string]interface{}{
		"type":           "audio_metadata",
		"participantId":  participantID,
		"sampleRate":     sampleRate,
		"targetLanguage": targetLanguage,
	})

	go readLoop(ctx, conn)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate

	onSamples := func(_, pInput []byte, frameCount uint32) {
		if len(pInput) == 0 {
			return
		}
		frame := make([]byte, len(pInput))
		copy(frame, pInput)
		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			log.Printf("Error: writing audio frame: %v", err)
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Speaking into session %q as participant %q (%s). Press Ctrl+C to exit.\n", sessionID, participantID, targetLanguage)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")
}

// readLoop prints every translation broadcast until the connection closes.
func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		if env.Type != "translation" {
			continue
		}
		var tp translationPayload
		if err := json.Unmarshal(env.Data, &tp); err != nil {
			continue
		}
		fmt.Printf("\n[%s, %s] %s\n", tp.SpeakerName, tp.OriginalLanguage, tp.OriginalText)
		for lang, text := range tp.Translations {
			fmt.Printf("  -> %s: %s\n", lang, text)
		}
	}
}

func mustWriteJSON(ctx context.Context, conn *websocket.Conn, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Fatalf("Error: marshaling control message: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		log.Fatalf("Error: writing control message: %v", err)
	}
}
