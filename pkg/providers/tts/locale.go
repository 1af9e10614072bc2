package tts

import (
	"strings"

	"github.com/lokutor-ai/lokutor-interpreter/pkg/interpreter"
)

// localeByLanguage maps the display-name Language the core speaks to the
// BCP-47 locale a synthesis voice catalog is keyed by. Arabic is the one
// special case: Lokutor's catalog only ships a Gulf-dialect voice under
// ar-XA, not the ar-SA code STT providers expect.
var localeByLanguage = map[interpreter.Language]string{
	interpreter.LanguageEnglish: "en-US",
	"Spanish":                   "es-US",
	"French":                    "fr-FR",
	"German":                    "de-DE",
	"Italian":                   "it-IT",
	"Portuguese":                "pt-BR",
	"Japanese":                  "ja-JP",
	"Chinese":                   "cmn-Hans-CN",
	"Arabic":                    "ar-XA",
	"Korean":                    "ko-KR",
	"Hindi":                     "hi-IN",
}

// defaultVoiceByLocale names the voice used when a Participant hasn't
// chosen one explicitly; every locale here defaults to the first female
// voice, matching the teacher's own single-voice agent default.
var defaultVoiceByLocale = map[string]interpreter.Voice{
	"en-US": interpreter.VoiceF1,
}

// LocaleFor resolves a display-name Language to the BCP-47 locale a
// synthesis request needs, defaulting to English when the language is
// unrecognized.
func LocaleFor(lang interpreter.Language) string {
	if code, ok := localeByLanguage[lang]; ok {
		return code
	}
	return "en-US"
}

// DefaultVoiceFor resolves the voice to use when none was chosen: the
// locale's own default if one exists, else the base language's default,
// else English's.
func DefaultVoiceFor(lang interpreter.Language) interpreter.Voice {
	locale := LocaleFor(lang)
	if v, ok := defaultVoiceByLocale[locale]; ok {
		return v
	}
	base := strings.SplitN(locale, "-", 2)[0]
	for code, v := range defaultVoiceByLocale {
		if strings.SplitN(code, "-", 2)[0] == base {
			return v
		}
	}
	return defaultVoiceByLocale["en-US"]
}
