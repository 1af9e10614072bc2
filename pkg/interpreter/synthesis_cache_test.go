package interpreter

import "testing"

func TestSynthesisCache_HitReturnsIdenticalBytes(t *testing.T) {
	c := NewSynthesisCache(500)
	c.Put("hello", LanguageEnglish, []byte{1, 2, 3})

	b1, ok := c.Get("hello", LanguageEnglish)
	if !ok {
		t.Fatal("expected hit")
	}
	b2, ok := c.Get("hello", LanguageEnglish)
	if !ok {
		t.Fatal("expected hit")
	}
	if string(b1) != string(b2) {
		t.Fatal("expected two reads to return identical bytes (P8 cache idempotence)")
	}
}

func TestSynthesisCache_Miss(t *testing.T) {
	c := NewSynthesisCache(500)
	if _, ok := c.Get("nope", LanguageEnglish); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestSynthesisCache_FIFOEvictionAtCapacity(t *testing.T) {
	c := NewSynthesisCache(2)
	c.Put("a", LanguageEnglish, []byte("a"))
	c.Put("b", LanguageEnglish, []byte("b"))
	c.Put("c", LanguageEnglish, []byte("c"))

	if _, ok := c.Get("a", LanguageEnglish); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get("b", LanguageEnglish); !ok {
		t.Fatal("expected second entry to remain")
	}
	if _, ok := c.Get("c", LanguageEnglish); !ok {
		t.Fatal("expected newest entry to remain")
	}
	if c.Len() != 2 {
		t.Fatalf("expected capacity-bounded size of 2, got %d", c.Len())
	}
}

func TestSynthesisCache_DuplicatePutIsNoOp(t *testing.T) {
	c := NewSynthesisCache(500)
	c.Put("hello", LanguageEnglish, []byte("first"))
	c.Put("hello", LanguageEnglish, []byte("second"))
	b, _ := c.Get("hello", LanguageEnglish)
	if string(b) != "first" {
		t.Fatalf("expected first write to win, got %q", b)
	}
}
