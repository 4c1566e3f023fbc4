package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEmptyInput(t *testing.T) {
	require.Empty(t, Split("", 100, 10))
	require.Empty(t, Split("   \n\t  \n", 100, 10))
}

func TestSplitSentenceOverlapExample(t *testing.T) {
	spans := Split("A. B. C.", 2, 1)
	require.Len(t, spans, 2)
	require.Equal(t, "A. B.", strings.TrimSpace(spans[0].Text))
	require.Equal(t, "B. C.", strings.TrimSpace(spans[1].Text))
	require.Equal(t, 0, spans[0].Position)
	require.Equal(t, 1, spans[1].Position)
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50) +
		"\n\n" + strings.Repeat("Attention is all you need for sequence modeling. ", 30)
	a := Split(text, 60, 12)
	b := Split(text, 60, 12)
	require.Equal(t, a, b)
	require.Greater(t, len(a), 1)
}

func TestSplitSpansIndexOriginalText(t *testing.T) {
	text := "First sentence here. Second one follows! Third closes the set? Fourth is last."
	for _, s := range Split(text, 8, 2) {
		require.Equal(t, text[s.Start:s.End], s.Text)
	}
}

func TestSplitReconstructsText(t *testing.T) {
	text := strings.Repeat("Gradient descent converges under convexity assumptions. ", 40)
	spans := Split(text, 30, 6)
	require.Greater(t, len(spans), 1)

	var sb strings.Builder
	for i, s := range spans {
		if i == 0 {
			sb.WriteString(s.Text)
			continue
		}
		// Drop the part already emitted by the previous span.
		prev := spans[i-1]
		require.LessOrEqual(t, s.Start, prev.End, "spans must touch or overlap")
		sb.WriteString(s.Text[prev.End-s.Start:])
	}
	require.Equal(t, text, sb.String())
}

func TestSplitOverlapInvariant(t *testing.T) {
	text := strings.Repeat("Neural networks approximate continuous functions. ", 60)
	spans := Split(text, 40, 10)
	require.Greater(t, len(spans), 1)
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		require.Less(t, cur.Start, prev.End, "adjacent spans must overlap")
		shared := text[cur.Start:prev.End]
		require.True(t, strings.HasSuffix(prev.Text, shared))
		require.True(t, strings.HasPrefix(cur.Text, shared))
	}
}

func TestSplitHardCutOversizedSentence(t *testing.T) {
	// One giant "sentence" with no terminators must still be split.
	text := strings.Repeat("tokenstream ", 500)
	spans := Split(text, 50, 10)
	require.Greater(t, len(spans), 1)
	for _, s := range spans {
		require.LessOrEqual(t, s.TokenCount, 120, "hard cuts keep spans bounded")
	}
}

func TestSplitParagraphBoundaryPreferred(t *testing.T) {
	text := "Intro paragraph stays whole\n\nSecond paragraph stands alone\n\nThird one too"
	spans := Split(text, 100, 0)
	require.Len(t, spans, 1)
	require.Equal(t, text, spans[0].Text)

	spans = Split(text, 5, 0)
	require.Len(t, spans, 3)
	require.Equal(t, "Intro paragraph stays whole", strings.TrimSpace(spans[0].Text))
	require.Equal(t, "Second paragraph stands alone", strings.TrimSpace(spans[1].Text))
	require.Equal(t, "Third one too", strings.TrimSpace(spans[2].Text))
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens(" "))
	require.Equal(t, 4, EstimateTokens("one two three four"))
	require.Equal(t, 2, EstimateTokens("你好"))
}
