package chunker

import (
	"regexp"
	"strings"

	"github.com/junwei-liu/docgate/internal/intent"
	"github.com/junwei-liu/docgate/internal/models"
)

// Mode-dependent chunk sizing, in runes. Translation wants large chunks to
// preserve context across seams; qa and extraction want small chunks for
// retrieval precision; summarize/analyze/compare sit in between.
const (
	translateMaxChars = 100_000
	summarizeMaxChars = 30_000
	analyzeMaxChars   = 25_000
	compareMaxChars   = 25_000
	qaMaxChars        = 20_000
	extractMaxChars   = 15_000
)

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceEnd    = regexp.MustCompile(`([.!?。！？])\s*`)
)

// Split produces a deterministic ordered chunk sequence for the given mode.
// Boundaries respect paragraphs, then sentences; a single sentence larger
// than the mode's maximum is hard-split on rune boundaries. Empty input
// yields nil: no content is not an error.
func Split(text string, mode intent.Mode) []models.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	max := maxChars(mode)
	var pieces []string
	switch mode {
	case intent.ModeQA, intent.ModeExtract:
		pieces = packSentences(text, max)
	default:
		pieces = packParagraphs(text, max)
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, models.Chunk{Index: i, Text: p, Size: len([]rune(p))})
	}
	return chunks
}

func maxChars(mode intent.Mode) int {
	switch mode {
	case intent.ModeTranslate:
		return translateMaxChars
	case intent.ModeSummarize:
		return summarizeMaxChars
	case intent.ModeAnalyze:
		return analyzeMaxChars
	case intent.ModeCompare:
		return compareMaxChars
	case intent.ModeExtract:
		return extractMaxChars
	default:
		return qaMaxChars
	}
}

// packParagraphs greedily joins whole paragraphs up to max runes. Paragraphs
// that alone exceed max fall through to sentence packing.
func packParagraphs(text string, max int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			curLen = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		n := len([]rune(para))
		if n > max {
			flush()
			out = append(out, packSentences(para, max)...)
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 2
		}
		if curLen+sep+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += n
	}
	flush()
	return out
}

// packSentences greedily joins sentences up to max runes, hard-splitting any
// single sentence that alone exceeds the limit.
func packSentences(text string, max int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			curLen = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		for _, s := range splitSentences(para) {
			n := len([]rune(s))
			if n > max {
				flush()
				out = append(out, hardSplit(s, max)...)
				continue
			}
			sep := 0
			if curLen > 0 {
				sep = 1
			}
			if curLen+sep+n > max {
				flush()
			}
			if curLen > 0 {
				cur.WriteString(" ")
				curLen++
			}
			cur.WriteString(s)
			curLen += n
		}
	}
	flush()
	return out
}

func splitParagraphs(text string) []string {
	raw := paragraphSplit.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences cuts after terminal punctuation, ASCII or CJK. Text with no
// terminator at all comes back as a single sentence.
func splitSentences(text string) []string {
	idxs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(idxs) == 0 {
		return []string{strings.TrimSpace(text)}
	}

	var out []string
	prev := 0
	for _, loc := range idxs {
		s := strings.TrimSpace(text[prev:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		prev = loc[1]
	}
	if tail := strings.TrimSpace(text[prev:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func hardSplit(s string, max int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
	}
	return out
}
