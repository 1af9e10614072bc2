package interpreter

import (
	"context"
	"strings"
	"sync"
	"time"
)

// sttResult is how the STT provider's onTranscript callback (which runs on
// a goroutine the provider owns) hands a result to the stream's single
// worker goroutine. generation lets the worker recognize and still accept
// late results from a stream that's mid-rotation-drain.
type sttResult struct {
	generation int
	transcript string
	confidence float64
	isFinal    bool
}

type sttTerminal struct {
	generation int
	err        error
}

// SpeakerStream is the per-(session,participant) state machine of
// spec.md §4.4: it owns one live streaming-STT connection, gates audio
// through the VAD, aggregates finals into Sentence Events, and rotates the
// underlying STT stream before the provider's duration cap. Architected as
// an explicit state machine driven by a single worker goroutine (spec.md
// §9 "Per-speaker state machine vs. callback tangle"), generalizing the
// teacher's ManagedStream: one worker loop, one mutex guarding only the
// fields a second goroutine (the reaper, API callers) reads, everything
// else single-writer.
type SpeakerStream struct {
	sessionID     string
	participantID string
	speakerName   string
	provider      StreamingSTTProvider
	cfg           Config
	logger        Logger

	ctx    context.Context
	cancel context.CancelFunc

	frameCh     chan []byte
	configureCh chan configureRequest
	sttResultCh chan sttResult
	sttErrCh    chan sttTerminal
	restartCh   chan struct{}
	events      chan StreamEvent
	stopCh      chan struct{}
	closeOnce   sync.Once
	doneCh      chan struct{}

	// mu guards only the fields read from outside the worker goroutine
	// (reaper polling LastActivityAt, API callers reading State).
	mu              sync.Mutex
	state           SpeakerState
	lastActivityAt  time.Time
	lastFinalAt     time.Time

	// worker-goroutine-only state below; never touched from another
	// goroutine, so it needs no lock (mirrors the teacher's sentence
	// accumulator invariant).
	sampleRateHz     int
	primaryLanguage  Language
	generation       int
	sttChan          chan<- []byte
	oldSTTChan       chan<- []byte
	streamCreatedAt  time.Time
	restartDisabled  bool
	pendingFrames    [][]byte
	agg              *sentenceAggregator
	vad              *RMSVAD
	silenceTimer     *time.Timer
	silenceTimerC    <-chan time.Time
	drainTimer       *time.Timer
	drainTimerC      <-chan time.Time
}

type configureRequest struct {
	sampleRateHz int
	language     Language
}

// NewSpeakerStream constructs a Speaker Stream in state IDLE; it does not
// open a provider stream until the first frame arrives or Configure is
// called.
func NewSpeakerStream(parent context.Context, sessionID, participantID, speakerName string, provider StreamingSTTProvider, cfg Config, logger Logger) *SpeakerStream {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(parent)
	s := &SpeakerStream{
		sessionID:     sessionID,
		participantID: participantID,
		speakerName:   speakerName,
		provider:      provider,
		cfg:           cfg,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		frameCh:       make(chan []byte, 256),
		configureCh:   make(chan configureRequest, 4),
		sttResultCh:   make(chan sttResult, 64),
		sttErrCh:      make(chan sttTerminal, 4),
		restartCh:     make(chan struct{}, 1),
		events:        make(chan StreamEvent, 256),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		state:         StateIdle,
		vad:           NewRMSVAD(cfg.VADThreshold, cfg.VADSilentFrameFloor),
		agg:           newSentenceAggregator(cfg),
		primaryLanguage: LanguageDefault,
	}
	go s.run()
	return s
}

// Events returns the channel of StreamEvent values (interim, sentence,
// error, state_change) this stream publishes.
func (s *SpeakerStream) Events() <-chan StreamEvent { return s.events }

// WriteFrame enqueues a raw PCM frame. Non-blocking: if the internal queue
// is saturated the frame is dropped, matching the room's broadcast
// backpressure philosophy (a slow pipeline must never stall ingestion).
func (s *SpeakerStream) WriteFrame(frame []byte) {
	select {
	case s.frameCh <- frame:
	default:
		s.logger.Warn("speaker stream frame dropped, queue full", "session", s.sessionID, "participant", s.participantID)
	}
}

// Configure sets the sample rate and primary language for STT and restarts
// the underlying stream on change, per spec.md's "configure the speaker
// stream at most once per audio_metadata message, and restart the
// underlying STT stream on config change" (the Open Question resolution
// for the source's metadataSentRef/inline-send duplication — see
// DESIGN.md).
func (s *SpeakerStream) Configure(sampleRateHz int, lang Language) {
	select {
	case s.configureCh <- configureRequest{sampleRateHz: sampleRateHz, language: lang}:
	case <-s.ctx.Done():
	}
}

// State returns the current lifecycle state.
func (s *SpeakerStream) State() SpeakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivityAt is the observable the Stream Manager's reaper polls.
func (s *SpeakerStream) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

func (s *SpeakerStream) setState(st SpeakerState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.emit(EventStateChange, st)
}

func (s *SpeakerStream) touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now()
	s.mu.Unlock()
}

func (s *SpeakerStream) emit(t EventType, data interface{}) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.events <- StreamEvent{Type: t, SessionID: s.sessionID, ParticipantID: s.participantID, Data: data}:
	default:
		s.logger.Warn("speaker stream event dropped, channel full", "session", s.sessionID)
	}
}

// Stop flushes any pending accumulator as a final Sentence Event, cancels
// the in-flight provider stream, and tears the worker down. Idempotent.
func (s *SpeakerStream) Stop() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *SpeakerStream) run() {
	defer close(s.doneCh)
	rotationTicker := time.NewTicker(s.cfg.RotationCheckInterval)
	defer rotationTicker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.flushAndStop()
			return
		case <-s.ctx.Done():
			s.flushAndStop()
			return
		case req := <-s.configureCh:
			s.handleConfigure(req)
		case frame := <-s.frameCh:
			s.handleFrame(frame)
		case res := <-s.sttResultCh:
			s.handleSTTResult(res)
		case term := <-s.sttErrCh:
			s.handleSTTError(term)
		case <-s.restartCh:
			if s.State() == StateIdle {
				s.openStream()
			}
		case <-rotationTicker.C:
			s.checkRotation()
		case <-s.silenceTimerFired():
			s.flushSentenceIfNonEmpty()
		case <-s.drainTimerFired():
			s.completeDrain()
		}
	}
}

// silenceTimerFired returns the active silence timer's channel, or a nil
// channel (which blocks forever in select) when no timer is armed.
func (s *SpeakerStream) silenceTimerFired() <-chan time.Time {
	return s.silenceTimerC
}

func (s *SpeakerStream) drainTimerFired() <-chan time.Time {
	return s.drainTimerC
}

func (s *SpeakerStream) handleConfigure(req configureRequest) {
	changed := req.sampleRateHz != s.sampleRateHz || req.language != s.primaryLanguage
	s.sampleRateHz = req.sampleRateHz
	s.primaryLanguage = req.language
	s.restartDisabled = false
	if !changed {
		return
	}
	st := s.State()
	if st == StateActive || st == StateRotating || st == StateStarting {
		s.closeActiveStream()
	}
	s.openStream()
}

func (s *SpeakerStream) handleFrame(frame []byte) {
	s.touch()
	switch s.State() {
	case StateIdle:
		s.pendingFrames = append(s.pendingFrames, frame)
		s.openStream()
	case StateStarting:
		s.pendingFrames = append(s.pendingFrames, frame)
	case StateActive, StateRotating:
		s.forwardFrame(frame)
	case StateStopped:
		// dropped; stream is torn down
	}
}

func (s *SpeakerStream) forwardFrame(frame []byte) {
	if s.vad.Forward(frame) && s.sttChan != nil {
		select {
		case s.sttChan <- frame:
		default:
			s.logger.Warn("stt channel full, dropping frame", "session", s.sessionID, "participant", s.participantID)
		}
	}
}

// openStream dials a new provider session and transitions IDLE -> STARTING
// -> ACTIVE once open, draining any pending frames queued during the
// transition (spec.md §4.4 write-path table).
func (s *SpeakerStream) openStream() {
	if s.restartDisabled {
		return
	}
	s.setState(StateStarting)
	s.generation++
	gen := s.generation

	ctx, cancel := context.WithCancel(s.ctx)
	_ = cancel // retained on the stream's context tree; closed via s.ctx cancellation on Stop
	rate := s.sampleRateHz
	if rate == 0 {
		rate = 16000
	}
	lang := s.primaryLanguage
	if lang == "" {
		lang = LanguageDefault
	}

	sttChan, errChan, err := s.provider.StreamTranscribe(ctx, rate, lang, func(transcript string, confidence float64, isFinal bool) error {
		select {
		case s.sttResultCh <- sttResult{generation: gen, transcript: transcript, confidence: confidence, isFinal: isFinal}:
		case <-s.ctx.Done():
		}
		return nil
	})
	if err != nil {
		s.emit(EventError, err)
		s.handleOpenFailure(err)
		return
	}

	s.sttChan = sttChan
	s.streamCreatedAt = time.Now()
	s.setState(StateActive)
	s.watchTerminal(gen, errChan)

	for _, f := range s.pendingFrames {
		s.forwardFrame(f)
	}
	s.pendingFrames = nil
}

// watchTerminal bridges a provider's terminal-error channel (owned by the
// provider's own goroutines) onto the worker's single-threaded sttErrCh,
// tagged with the generation it belongs to so late/stale terminations from
// a rotated-away stream are recognizable and ignored.
func (s *SpeakerStream) watchTerminal(gen int, errChan <-chan error) {
	go func() {
		err := <-errChan
		if err == nil {
			return
		}
		select {
		case s.sttErrCh <- sttTerminal{generation: gen, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *SpeakerStream) handleOpenFailure(err error) {
	verdict := Classify(err, httpStatusFromError(err), "")
	if IsQuotaExhausted(err, "") {
		s.restartDisabled = true
		s.setState(StateIdle)
		return
	}
	if verdict == Permanent {
		s.setState(StateStopped)
		return
	}
	s.setState(StateIdle)
}

// checkRotation implements spec.md §4.4's "critical trick": at
// stream_created_at + rotate_at, open a second stream, leave the old one
// open for the drain window, then close it.
func (s *SpeakerStream) checkRotation() {
	if s.State() != StateActive {
		return
	}
	if time.Since(s.streamCreatedAt) < s.cfg.StreamRotateAt {
		return
	}
	s.setState(StateRotating)
	s.oldSTTChan = s.sttChan

	gen := s.generation + 1
	s.generation = gen
	ctx, cancel := context.WithCancel(s.ctx)
	_ = cancel
	rate := s.sampleRateHz
	if rate == 0 {
		rate = 16000
	}
	newChan, errChan, err := s.provider.StreamTranscribe(ctx, rate, s.primaryLanguage, func(transcript string, confidence float64, isFinal bool) error {
		select {
		case s.sttResultCh <- sttResult{generation: gen, transcript: transcript, confidence: confidence, isFinal: isFinal}:
		case <-s.ctx.Done():
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("rotation failed to open new stream, retrying next tick", "session", s.sessionID, "error", err)
		s.setState(StateActive)
		s.oldSTTChan = nil
		return
	}
	s.sttChan = newChan
	s.streamCreatedAt = time.Now()
	s.watchTerminal(gen, errChan)

	s.drainTimer = time.NewTimer(s.cfg.StreamDrainWindow)
	s.drainTimerC = s.drainTimer.C
}

// completeDrain closes the old stream's channel after the 2s drain window
// and returns the stream to ACTIVE.
func (s *SpeakerStream) completeDrain() {
	if s.oldSTTChan != nil {
		close(s.oldSTTChan)
		s.oldSTTChan = nil
	}
	s.drainTimer = nil
	s.drainTimerC = nil
	if s.State() == StateRotating {
		s.setState(StateActive)
	}
}

func (s *SpeakerStream) closeActiveStream() {
	if s.sttChan != nil {
		close(s.sttChan)
		s.sttChan = nil
	}
	if s.oldSTTChan != nil {
		close(s.oldSTTChan)
		s.oldSTTChan = nil
	}
	if s.drainTimer != nil {
		s.drainTimer.Stop()
		s.drainTimer = nil
		s.drainTimerC = nil
	}
}

func (s *SpeakerStream) handleSTTResult(res sttResult) {
	s.touch()
	if !res.isFinal {
		s.emit(EventInterim, res.transcript)
		return
	}
	s.mu.Lock()
	s.lastFinalAt = time.Now()
	s.mu.Unlock()

	shouldEmit := s.agg.addFinal(res.transcript)
	if shouldEmit {
		s.emitSentence(res.confidence)
		return
	}
	s.armSilenceTimer()
}

func (s *SpeakerStream) armSilenceTimer() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	s.silenceTimer = time.NewTimer(s.cfg.SentenceSilenceTimeout)
	s.silenceTimerC = s.silenceTimer.C
}

func (s *SpeakerStream) flushSentenceIfNonEmpty() {
	s.silenceTimer = nil
	s.silenceTimerC = nil
	if s.agg.empty() {
		return
	}
	s.emitSentence(0)
}

func (s *SpeakerStream) emitSentence(confidence float64) {
	text := strings.TrimSpace(s.agg.drain())
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
		s.silenceTimerC = nil
	}
	if text == "" {
		return
	}
	sent := &Sentence{
		Text:           text,
		SourceLanguage: s.primaryLanguage,
		ParticipantID:  s.participantID,
		SpeakerName:    s.speakerName,
		SessionID:      s.sessionID,
		Confidence:     confidence,
		EmittedAt:      time.Now(),
	}
	s.emit(EventSentence, sent)
}

// handleSTTError implements the restart rules of spec.md §4.4: transient
// errors restart if there was activity within the last 5s; quota errors
// disable automatic restart entirely; permanent errors stop the stream.
func (s *SpeakerStream) handleSTTError(term sttTerminal) {
	if term.generation != s.generation {
		return // stale terminal from a drained/rotated-away stream
	}
	s.emit(EventError, term.err)

	if IsQuotaExhausted(term.err, "") {
		s.restartDisabled = true
		s.setState(StateIdle)
		return
	}

	verdict := Classify(term.err, httpStatusFromError(term.err), "")
	if verdict == Permanent {
		s.setState(StateStopped)
		s.closeActiveStream()
		return
	}

	s.closeActiveStream()
	s.setState(StateIdle)
	if time.Since(s.LastActivityAt()) <= 5*time.Second {
		time.AfterFunc(500*time.Millisecond, func() {
			select {
			case s.restartCh <- struct{}{}:
			case <-s.ctx.Done():
			}
		})
	}
}

func (s *SpeakerStream) flushAndStop() {
	if !s.agg.empty() {
		s.emitSentence(0)
	}
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	if s.drainTimer != nil {
		s.drainTimer.Stop()
	}
	s.closeActiveStream()
	s.pendingFrames = nil
	s.setState(StateStopped)
	s.cancel()
	close(s.events)
}
