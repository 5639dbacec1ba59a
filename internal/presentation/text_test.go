package presentation_test

import (
	"reflect"
	"testing"

	"github.com/p-n-ai/pai-lesson/internal/presentation"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"three sentences", "Hello there. How are you? Fine!", []string{"Hello there.", "How are you?", "Fine!"}},
		{"no terminal punctuation", "Just a phrase", []string{"Just a phrase"}},
		{"decimal stays whole", "Pi is 3.14 roughly. Yes.", []string{"Pi is 3.14 roughly.", "Yes."}},
		{"newlines are whitespace", "One.\nTwo.", []string{"One.", "Two."}},
		{"ellipsis", "Wait... what?", []string{"Wait...", "what?"}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := presentation.SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestClampSentence(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 3, 0},
		{-1, 3, 0},
		{2, 3, 2},
		{3, 3, 2},
		{10, 3, 2},
		{1, 0, 0},
	}

	for _, tt := range tests {
		if got := presentation.ClampSentence(tt.i, tt.n); got != tt.want {
			t.Errorf("ClampSentence(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestHighlightWord(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		offset int
		want   string
		ok     bool
	}{
		{"word start", "The quick fox", 4, "quick", true},
		{"inside word", "The quick fox", 6, "quick", true},
		{"on space", "The quick fox", 3, "quick", true},
		{"first word", "The quick fox", 0, "The", true},
		{"last word", "The quick fox", 12, "fox", true},
		{"past end", "The quick fox", 13, "", false},
		{"negative", "The quick fox", -1, "", false},
		{"trailing space", "fox   ", 4, "", false},
		{"multibyte", "¿Qué tal?", 1, "¿Qué", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := presentation.HighlightWord(tt.text, tt.offset)
			if ok != tt.ok {
				t.Fatalf("HighlightWord() ok = %v, want %v", ok, tt.ok)
			}
			if got.Word != tt.want {
				t.Errorf("HighlightWord() = %q, want %q", got.Word, tt.want)
			}
		})
	}
}

func TestParagraphs(t *testing.T) {
	got := presentation.Paragraphs("one\n\ntwo")
	want := []string{"one", "", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs() = %q, want %q", got, want)
	}
}
