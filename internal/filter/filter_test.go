package filter

import "testing"

func TestProfaneDetectsFilteredWords(t *testing.T) {
	f := New()

	if !f.Profane("this is shit") {
		t.Error("expected profanity to be detected")
	}
	if f.Profane("hello everyone, nice to meet you") {
		t.Error("expected clean text to pass")
	}
}

func TestProfaneEmptyText(t *testing.T) {
	f := New()
	if f.Profane("") {
		t.Error("expected empty text to pass")
	}
}

func TestProfaneExtraWords(t *testing.T) {
	f := New("flibbertigibbet")

	if !f.Profane("you absolute flibbertigibbet") {
		t.Error("expected extra word to be filtered")
	}
	if New().Profane("you absolute flibbertigibbet") {
		t.Error("expected default dictionary to allow the word")
	}
}
