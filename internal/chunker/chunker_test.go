package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junwei-liu/docgate/internal/intent"
)

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", intent.ModeQA))
	assert.Nil(t, Split("   \n\n  ", intent.ModeTranslate))
}

func TestSplitDeterministic(t *testing.T) {
	text := "First paragraph with a sentence. And another one.\n\nSecond paragraph here."
	a := Split(text, intent.ModeSummarize)
	b := Split(text, intent.ModeSummarize)
	assert.Equal(t, a, b)
}

func TestSplitIndexesAndSizes(t *testing.T) {
	// Two paragraphs that cannot share a qa chunk force multiple chunks.
	big := strings.Repeat("A short sentence follows here. ", 1200) // ~37k runes
	chunks := Split(big, intent.ModeQA)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, len([]rune(c.Text)), c.Size)
		assert.LessOrEqual(t, c.Size, 20_000)
	}
}

func TestSplitRespectsSentenceBoundaries(t *testing.T) {
	big := strings.Repeat("This sentence is exactly as long as it looks. ", 800)
	for _, c := range Split(big, intent.ModeQA) {
		assert.True(t, strings.HasSuffix(c.Text, "."), "chunk ends mid-sentence: %q", c.Text[len(c.Text)-20:])
	}
}

func TestSplitHardSplitsOversizedSentence(t *testing.T) {
	// One "sentence" with no terminator, longer than the extract limit.
	s := strings.Repeat("词", 40_000)
	chunks := Split(s, intent.ModeExtract)
	require.Len(t, chunks, 3) // 15k + 15k + 10k
	assert.Equal(t, 15_000, chunks[0].Size)
	assert.Equal(t, 15_000, chunks[1].Size)
	assert.Equal(t, 10_000, chunks[2].Size)
}

func TestSplitModeSizing(t *testing.T) {
	big := strings.Repeat("One more plain sentence for the pile. ", 4000) // ~152k runes
	translate := Split(big, intent.ModeTranslate)
	qa := Split(big, intent.ModeQA)
	assert.Less(t, len(translate), len(qa), "translate chunks should be larger, so fewer")
}

func TestSplitCJKSentences(t *testing.T) {
	text := "这是第一句话。这是第二句话！这是第三句话？"
	chunks := Split(text, intent.ModeQA)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, strings.ReplaceAll(chunks[0].Text, " ", ""))
}

func TestSplitKeepsAllText(t *testing.T) {
	text := "Alpha beta gamma. Delta epsilon.\n\nZeta eta theta."
	chunks := Split(text, intent.ModeAnalyze)
	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
		joined.WriteString(" ")
	}
	for _, w := range []string{"Alpha", "gamma", "Delta", "Zeta", "theta"} {
		assert.Contains(t, joined.String(), w)
	}
}
