package stt

import (
	"testing"
)

func TestLocaleFor_KnownLanguage(t *testing.T) {
	if got := localeFor("Spanish"); got != "es-US" {
		t.Fatalf("expected es-US, got %s", got)
	}
}

func TestLocaleFor_UnknownDefaultsToEnglish(t *testing.T) {
	if got := localeFor("Klingon"); got != "en-US" {
		t.Fatalf("expected en-US default, got %s", got)
	}
}

func TestGoogleStreamingSTT_Name(t *testing.T) {
	g := NewGoogleStreamingSTT(nil)
	if g.Name() != "google-streaming-stt" {
		t.Fatalf("unexpected name: %s", g.Name())
	}
}
