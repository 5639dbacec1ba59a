package presentation

import (
	"strings"
	"unicode"
)

// SplitSentences splits text after each '.', '!' or '?' that is followed by
// whitespace or the end of the text. Sentences are trimmed; empty ones are dropped.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// ClampSentence bounds i to [0, n-1]. There is no wraparound.
func ClampSentence(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Paragraphs splits text on newlines, keeping empty lines so offsets line up
// with the source text.
func Paragraphs(text string) []string {
	return strings.Split(text, "\n")
}

// Highlight is a word located in a text, in rune offsets.
type Highlight struct {
	Word  string `json:"word"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// HighlightWord finds the word at offset (a rune index into text). An offset
// inside a word selects the whole word; an offset on whitespace selects the
// next word. Offsets outside the text yield no highlight.
func HighlightWord(text string, offset int) (Highlight, bool) {
	runes := []rune(text)
	if offset < 0 || offset >= len(runes) {
		return Highlight{}, false
	}

	start := offset
	if unicode.IsSpace(runes[start]) {
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		if start == len(runes) {
			return Highlight{}, false
		}
	} else {
		for start > 0 && !unicode.IsSpace(runes[start-1]) {
			start--
		}
	}

	end := start
	for end < len(runes) && !unicode.IsSpace(runes[end]) {
		end++
	}
	return Highlight{Word: string(runes[start:end]), Start: start, End: end}, true
}

// Segment is a run of paragraph text, optionally marked as highlighted.
type Segment struct {
	Text      string `json:"text"`
	Highlight bool   `json:"highlight,omitempty"`
}

// Paragraph is one rendered line of a text step.
type Paragraph struct {
	Segments []Segment `json:"segments"`
}

// markParagraphs splits text into paragraphs and marks the highlighted word
// inside the paragraph that contains it.
func markParagraphs(text string, hl *Highlight) []Paragraph {
	lines := Paragraphs(text)
	out := make([]Paragraph, 0, len(lines))
	pos := 0
	for _, line := range lines {
		lr := []rune(line)
		pStart, pEnd := pos, pos+len(lr)
		pos = pEnd + 1

		if hl == nil || hl.Start < pStart || hl.Start >= pEnd {
			out = append(out, Paragraph{Segments: []Segment{{Text: line}}})
			continue
		}

		ls, le := hl.Start-pStart, hl.End-pStart
		var segs []Segment
		if ls > 0 {
			segs = append(segs, Segment{Text: string(lr[:ls])})
		}
		segs = append(segs, Segment{Text: string(lr[ls:le]), Highlight: true})
		if le < len(lr) {
			segs = append(segs, Segment{Text: string(lr[le:])})
		}
		out = append(out, Paragraph{Segments: segs})
	}
	return out
}
