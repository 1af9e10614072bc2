package interpreter

import (
	"context"
	"sync"
	"time"
)

// TranslationBroadcast is the `translation` message of spec.md §6/§4.7.
type TranslationBroadcast struct {
	SessionID        string
	ParticipantID    string
	SpeakerName      string
	OriginalText     string
	OriginalLanguage Language
	Translations     map[Language]string
	Timestamp        time.Time
	HasErrors        bool
	ErrorCount       int
}

// AudioSynthesized is the `audio-synthesized` message of spec.md §6/§4.7.
type AudioSynthesized struct {
	Language      Language
	AudioContent  []byte
	ParticipantID string
	SpeakerName   string
	Text          string
	Timestamp     time.Time
}

// Broadcaster is the narrow room contract the fan-out needs to publish its
// two outbound message kinds; pkg/interpreter/room.go implements it.
type Broadcaster interface {
	BroadcastTranslation(TranslationBroadcast)
	BroadcastAudioSynthesized(AudioSynthesized)
}

// Fanout implements spec.md §4.7: on each Sentence Event, translate into
// every display language the room currently needs, synthesize for the
// subset that wants voice (consulting the cache first), broadcast both,
// and persist one Translation Record per target language. Grounded on the
// pack's translateParallel (goroutine-per-language + WaitGroup + mutex-
// guarded results map), generalized to the need_text/need_voice split and
// TTS fan-out with cache consultation.
type Fanout struct {
	translate TranslateProvider
	tts       TTSProvider
	cache     *SynthesisCache
	store     TranslationStore
	detector  MismatchDetector
	cfg       Config
	logger    Logger
}

// MismatchDetector is the optional language-detection safety net (ADDED,
// §9 of SPEC_FULL.md): flags a Sentence Event whose text looks nothing
// like its declared source language. Never blocks the pipeline.
type MismatchDetector interface {
	Detect(text string, declared Language) (actual Language, mismatched bool)
}

func NewFanout(translate TranslateProvider, tts TTSProvider, cache *SynthesisCache, store TranslationStore, detector MismatchDetector, cfg Config, logger Logger) *Fanout {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Fanout{translate: translate, tts: tts, cache: cache, store: store, detector: detector, cfg: cfg, logger: logger}
}

// Process runs the full fan-out algorithm of spec.md §4.7 for one Sentence
// Event against the given room membership, publishing through b.
func (f *Fanout) Process(ctx context.Context, sent *Sentence, members RoomMembership, b Broadcaster) {
	if f.detector != nil {
		if actual, mismatched := f.detector.Detect(sent.Text, sent.SourceLanguage); mismatched {
			f.logger.Warn("sentence language mismatch", "declared", sent.SourceLanguage, "detected", actual, "session", sent.SessionID)
		}
	}

	participants := members.ConnectedParticipants()
	needText := uniqueLanguages(participants, false)
	needVoice := uniqueLanguages(participants, true)

	translations, errCount := f.translateAll(ctx, sent, needText)

	b.BroadcastTranslation(TranslationBroadcast{
		SessionID:        sent.SessionID,
		ParticipantID:    sent.ParticipantID,
		SpeakerName:      sent.SpeakerName,
		OriginalText:     sent.Text,
		OriginalLanguage: sent.SourceLanguage,
		Translations:     translations,
		Timestamp:        sent.EmittedAt,
		HasErrors:        errCount > 0,
		ErrorCount:       errCount,
	})

	f.persistAll(ctx, sent, translations)

	f.synthesizeAll(ctx, sent, translations, needVoice, b)
}

func uniqueLanguages(participants []*Participant, voiceOnly bool) []Language {
	seen := make(map[Language]bool)
	var langs []Language
	for _, p := range participants {
		if voiceOnly && p.PreferredOutput != OutputVoice {
			continue
		}
		if !seen[p.Language] {
			seen[p.Language] = true
			langs = append(langs, p.Language)
		}
	}
	return langs
}

// translateAll translates sent.Text into every language in needText in
// parallel, passing through when from == to, fail-open to the original
// text on permanent failure.
func (f *Fanout) translateAll(ctx context.Context, sent *Sentence, needText []Language) (map[Language]string, int) {
	results := make(map[Language]string, len(needText))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var errCount int32AtomicCounter

	for _, lang := range needText {
		lang := lang
		wg.Add(1)
		go func() {
			defer wg.Done()

			if lang == sent.SourceLanguage {
				mu.Lock()
				results[lang] = sent.Text
				mu.Unlock()
				return
			}

			tctx, cancel := context.WithTimeout(ctx, f.cfg.TranslateTimeout)
			defer cancel()

			text, err := f.translate.Translate(tctx, sent.Text, sent.SourceLanguage, lang)
			if err != nil {
				f.logger.Warn("translation failed, passing through", "lang", lang, "error", err)
				text = sent.Text
				errCount.inc()
			}
			mu.Lock()
			results[lang] = text
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results, errCount.get()
}

// int32AtomicCounter avoids pulling in sync/atomic for a single counter
// that's only ever touched under no particular ordering requirement beyond
// "don't race" — a plain mutex-guarded int is simplest here.
type int32AtomicCounter struct {
	mu sync.Mutex
	n  int
}

func (c *int32AtomicCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *int32AtomicCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (f *Fanout) persistAll(ctx context.Context, sent *Sentence, translations map[Language]string) {
	if f.store == nil {
		return
	}
	for lang, text := range translations {
		rec := TranslationRecord{
			SessionID:        sent.SessionID,
			ParticipantID:    sent.ParticipantID,
			OriginalText:     sent.Text,
			OriginalLanguage: sent.SourceLanguage,
			TargetLanguage:   lang,
			TranslatedText:   text,
			Confidence:       sent.Confidence,
			Timestamp:        sent.EmittedAt,
		}
		if err := f.store.Persist(ctx, rec); err != nil {
			f.logger.Warn("failed to persist translation record", "lang", lang, "error", err)
		}
	}
}

// synthesizeAll synthesizes audio for every language in needVoice,
// consulting the cache first, and broadcasts an AudioSynthesized message
// per successful synthesis. A synthesis failure simply omits that
// language's audio event (spec.md §7 "audio-synthesized event is omitted
// for that language").
func (f *Fanout) synthesizeAll(ctx context.Context, sent *Sentence, translations map[Language]string, needVoice []Language, b Broadcaster) {
	if f.tts == nil {
		return
	}
	var wg sync.WaitGroup
	for _, lang := range needVoice {
		lang := lang
		text, ok := translations[lang]
		if !ok || text == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			audio, ok := f.cache.Get(text, lang)
			if !ok {
				var err error
				audio, err = f.tts.Synthesize(ctx, text, "", lang)
				if err != nil {
					f.logger.Warn("synthesis failed, omitting audio event", "lang", lang, "error", err)
					return
				}
				f.cache.Put(text, lang, audio)
			}
			b.BroadcastAudioSynthesized(AudioSynthesized{
				Language:      lang,
				AudioContent:  audio,
				ParticipantID: sent.ParticipantID,
				SpeakerName:   sent.SpeakerName,
				Text:          text,
				Timestamp:     time.Now(),
			})
		}()
	}
	wg.Wait()
}
