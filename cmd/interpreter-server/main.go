package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/joho/godotenv"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/metrics"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/providers/detect"
	sttProvider "github.com/lokutor-ai/lokutor-interpreter/pkg/providers/stt"
	translateProvider "github.com/lokutor-ai/lokutor-interpreter/pkg/providers/translate"
	ttsProvider "github.com/lokutor-ai/lokutor-interpreter/pkg/providers/tts"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/store"
	"github.com/lokutor-ai/lokutor-interpreter/pkg/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	logger := interpreter.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	googleKey := os.Getenv("GOOGLE_API_KEY")
	lokutorKey := os.Getenv("LOKUTOR_API_KEY")

	translateProviderName := os.Getenv("TRANSLATE_PROVIDER")
	if translateProviderName == "" {
		translateProviderName = "groq"
	}

	if lokutorKey == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// STT: the only Streaming STT Provider the pack wires is Google's
	// bidirectional speech API, so the Stream Manager always drives that one
	// regardless of which provider translates and synthesizes.
	speechClient, err := speech.NewClient(ctx)
	if err != nil {
		log.Fatalf("Error: creating Google Speech client: %v", err)
	}
	defer speechClient.Close()
	stt := sttProvider.NewGoogleStreamingSTT(speechClient)

	var translate interpreter.TranslateProvider
	switch translateProviderName {
	case "openai":
		if openaiKey == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai translation")
		}
		translate = translateProvider.NewOpenAITranslate(openaiKey, "")
	case "anthropic":
		if anthropicKey == "" {
			log.Fatal("Error: ANTHROPIC_API_KEY must be set for anthropic translation")
		}
		translate = translateProvider.NewAnthropicTranslate(anthropicKey, "")
	case "google":
		if googleKey == "" {
			log.Fatal("Error: GOOGLE_API_KEY must be set for google translation")
		}
		translate = translateProvider.NewGoogleTranslate(googleKey, "")
	case "groq":
		fallthrough
	default:
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq translation")
		}
		translate = translateProvider.NewGroqTranslate(groqKey, "")
	}

	tts := ttsProvider.NewLokutorTTS(lokutorKey)

	cfg := interpreter.DefaultConfig()

	sessionStore := store.NewMemStore()

	var translationStore interpreter.TranslationStore = sessionStore
	if dir := os.Getenv("BADGER_DIR"); dir != "" {
		badgerStore, err := store.NewBadgerStore(dir)
		if err != nil {
			log.Fatalf("Error: opening badger store at %q: %v", dir, err)
		}
		defer badgerStore.Close()
		translationStore = badgerStore
	}

	var mismatchDetector interpreter.MismatchDetector
	if os.Getenv("DISABLE_MISMATCH_DETECTION") == "" {
		mismatchDetector = detect.NewLinguaDetector([]interpreter.Language{
			interpreter.LanguageEnglish, "Spanish", "French", "German", "Italian",
			"Portuguese", "Chinese", "Arabic", "Korean", "Hindi",
		})
	}

	cache := interpreter.NewSynthesisCache(cfg.SynthesisCacheCap)
	streams := interpreter.NewStreamManager(ctx, stt, cfg, logger)
	defer streams.Destroy()
	rooms := interpreter.NewRoomRegistry(sessionStore, logger)
	fanout := interpreter.NewFanout(translate, tts, cache, translationStore, mismatchDetector, cfg, logger)

	server := transport.NewServer(rooms, streams, fanout, sessionStore, cfg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeHTTP)

	var metricsRegistry *metrics.Registry
	if os.Getenv("DISABLE_METRICS") == "" {
		metricsRegistry, err = metrics.New()
		if err != nil {
			log.Fatalf("Error: initializing metrics: %v", err)
		}
		defer metricsRegistry.Shutdown(context.Background())
		mux.Handle("/metrics", metricsRegistry.Handler())
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		fmt.Printf("Interpreter server listening on %s (translate=%s, tts=lokutor, stt=google-streaming)\n", addr, translateProviderName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error: http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error: graceful shutdown: %v", err)
	}
}
