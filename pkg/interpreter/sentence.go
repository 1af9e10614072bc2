package interpreter

import (
	"strings"
	"time"
)

// sentenceAggregator accumulates finalized STT fragments into emittable
// Sentence Events under the three triggers of spec.md §4.4. It is driven
// exclusively from the Speaker Stream's single worker goroutine and holds
// no internal locking — the same "no second goroutine touches the
// accumulator" invariant the teacher's ManagedStream relies on for its
// sentence buffer.
type sentenceAggregator struct {
	text            strings.Builder
	tokenCount      int
	minTokens       int
	tokenCeiling    int
	silenceTimeout  time.Duration
}

func newSentenceAggregator(cfg Config) *sentenceAggregator {
	return &sentenceAggregator{
		minTokens:      cfg.SentenceMinTokens,
		tokenCeiling:   cfg.SentenceTokenCeiling,
		silenceTimeout: cfg.SentenceSilenceTimeout,
	}
}

// addFinal appends a finalized STT fragment and reports whether it should
// be emitted immediately (punctuation+minTokens, or length ceiling). When
// it returns false the caller is responsible for (re)arming the silence
// timer.
func (a *sentenceAggregator) addFinal(fragment string) (emit bool) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return false
	}
	if a.text.Len() > 0 {
		a.text.WriteByte(' ')
	}
	a.text.WriteString(fragment)
	a.tokenCount = len(strings.Fields(a.text.String()))

	if endsWithTerminalPunctuation(fragment) && a.tokenCount >= a.minTokens {
		return true
	}
	if a.tokenCount >= a.tokenCeiling {
		return true
	}
	return false
}

// endsWithTerminalPunctuation reports whether s ends with '.', '!' or '?',
// optionally followed by whitespace, per spec.md §4.4 trigger 1.
func endsWithTerminalPunctuation(s string) bool {
	s = strings.TrimRight(s, " \t\n\r")
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '!' || last == '?'
}

// empty reports whether the accumulator has anything to flush.
func (a *sentenceAggregator) empty() bool {
	return a.text.Len() == 0
}

// drain returns and clears the accumulated text.
func (a *sentenceAggregator) drain() string {
	s := a.text.String()
	a.text.Reset()
	a.tokenCount = 0
	return s
}
