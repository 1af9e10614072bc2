// Package detect implements the language-mismatch safety net: a sanity
// check that a Sentence's declared source language actually looks like
// the text, logged as a warning and never allowed to block the pipeline.
package detect

import (
	"strings"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
	"github.com/pemistahl/lingua-go"
)

// languageByName resolves the wire's human-readable display name to the
// lingua.Language constant it corresponds to; unrecognized names are
// treated as "no opinion" by Detect.
var languageByName = map[interpreter.Language]lingua.Language{
	interpreter.LanguageEnglish: lingua.English,
	"Spanish":                   lingua.Spanish,
	"French":                    lingua.French,
	"German":                    lingua.German,
	"Italian":                   lingua.Italian,
	"Portuguese":                lingua.Portuguese,
	"Chinese":                   lingua.Chinese,
	"Arabic":                    lingua.Arabic,
	"Korean":                    lingua.Korean,
	"Hindi":                     lingua.Hindi,
}

// reverseLanguage inverts languageByName for reporting a detected language
// back as a display name.
var reverseLanguage = func() map[lingua.Language]interpreter.Language {
	m := make(map[lingua.Language]interpreter.Language, len(languageByName))
	for name, lang := range languageByName {
		m[lang] = name
	}
	return m
}()

// LinguaDetector implements interpreter.MismatchDetector over the set of
// languages the deployment actually supports; build once at startup with
// NewLinguaDetector(allLanguages) and share across every Fanout.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

func NewLinguaDetector(languages []interpreter.Language) *LinguaDetector {
	var set []lingua.Language
	for _, name := range languages {
		if l, ok := languageByName[name]; ok {
			set = append(set, l)
		}
	}
	if len(set) < 2 {
		// lingua requires at least two candidate languages to build a
		// detector; fall back to the full supported set.
		set = set[:0]
		for _, l := range languageByName {
			set = append(set, l)
		}
	}
	detector := lingua.NewLanguageDetectorBuilder().FromLanguages(set...).Build()
	return &LinguaDetector{detector: detector}
}

// Detect reports the language lingua thinks the text is actually written
// in, and whether that disagrees with declared. Text shorter than a
// handful of words is skipped — lingua's accuracy on short fragments is
// poor enough to produce more noise than signal.
func (d *LinguaDetector) Detect(text string, declared interpreter.Language) (actual interpreter.Language, mismatched bool) {
	if len(strings.Fields(text)) < 4 {
		return declared, false
	}

	detected, exists := d.detector.DetectLanguageOf(text)
	if !exists {
		return declared, false
	}

	actual, ok := reverseLanguage[detected]
	if !ok {
		return declared, false
	}
	return actual, actual != declared
}
