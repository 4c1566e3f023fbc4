package chunker

import (
	"strings"
	"unicode"
)

// Span is one retrieval unit cut from the input text. Start/End index the
// original text; Text always equals text[Start:End].
type Span struct {
	Position   int
	Start      int
	End        int
	Text       string
	TokenCount int
}

// Split cuts text into overlapping spans of roughly targetTokens
// token-equivalents each. Sentence boundaries are preferred, paragraph
// breaks always close a sentence, and a hard character cut is used only
// when a single sentence alone exceeds the target. The trailing
// overlapTokens of each span are repeated at the start of the next one so
// a fact sitting on a boundary stays retrievable from at least one span.
//
// Split is deterministic: the same text and parameters always produce the
// same boundaries. Empty or whitespace-only input yields no spans.
func Split(text string, targetTokens, overlapTokens int) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if targetTokens <= 0 {
		targetTokens = 400
	}
	if overlapTokens < 0 || overlapTokens >= targetTokens {
		overlapTokens = targetTokens / 5
	}

	var pieces []piece
	for _, s := range splitSentences(text) {
		pieces = append(pieces, hardCut(text, s, targetTokens)...)
	}

	var spans []Span
	i := 0
	for i < len(pieces) {
		j := i
		tokens := 0
		for j < len(pieces) {
			if tokens > 0 && tokens+pieces[j].tokens > targetTokens {
				break
			}
			tokens += pieces[j].tokens
			j++
		}
		start, end := pieces[i].start, pieces[j-1].end
		seg := text[start:end]
		spans = append(spans, Span{
			Position:   len(spans),
			Start:      start,
			End:        end,
			Text:       seg,
			TokenCount: EstimateTokens(seg),
		})
		if j >= len(pieces) {
			break
		}
		// Walk back whole pieces until the overlap budget is spent. The
		// next span must still start after this one's first piece so the
		// loop always advances.
		k := j
		spent := 0
		for k > i+1 {
			t := pieces[k-1].tokens
			if spent+t > overlapTokens {
				break
			}
			spent += t
			k--
		}
		i = k
	}
	return spans
}

type piece struct {
	start  int
	end    int
	tokens int
}

// splitSentences walks the text once and emits sentence-or-smaller pieces.
// A piece closes at a sentence terminator followed by whitespace, or at a
// paragraph break (blank line). Trailing whitespace sticks to the piece in
// front of it, so concatenating adjacent pieces reproduces the input.
func splitSentences(text string) []piece {
	var out []piece
	runes := []rune(text)
	byteAt := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		byteAt[i] = off
		off += len(string(r))
	}
	byteAt[len(runes)] = off

	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		terminator := r == '.' || r == '!' || r == '?' || r == '。'
		paragraph := r == '\n' && i+1 < len(runes) && runes[i+1] == '\n'
		if terminator {
			j := i + 1
			for j < len(runes) && (runes[j] == '"' || runes[j] == ')' || runes[j] == '\'') {
				j++
			}
			if j >= len(runes) || unicode.IsSpace(runes[j]) {
				for j < len(runes) && unicode.IsSpace(runes[j]) {
					j++
				}
				out = appendPiece(out, text, byteAt[start], byteAt[j])
				start = j
				i = j - 1
				continue
			}
		}
		if paragraph {
			j := i
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			out = appendPiece(out, text, byteAt[start], byteAt[j])
			start = j
			i = j - 1
		}
	}
	if byteAt[start] < len(text) {
		out = appendPiece(out, text, byteAt[start], len(text))
	}
	return out
}

func appendPiece(out []piece, text string, start, end int) []piece {
	if end <= start {
		return out
	}
	seg := text[start:end]
	if strings.TrimSpace(seg) == "" {
		// Pure whitespace glues onto the previous piece so nothing is lost.
		if n := len(out); n > 0 {
			out[n-1].end = end
		}
		return out
	}
	return append(out, piece{start: start, end: end, tokens: EstimateTokens(seg)})
}

// hardCut splits a single oversized piece at character boundaries. Normal
// sentences pass through untouched.
func hardCut(text string, p piece, targetTokens int) []piece {
	if p.tokens <= targetTokens {
		return []piece{p}
	}
	seg := text[p.start:p.end]
	runes := []rune(seg)
	parts := p.tokens/targetTokens + 1
	step := len(runes) / parts
	if step == 0 {
		step = len(runes)
	}
	var out []piece
	off := p.start
	for i := 0; i < len(runes); i += step {
		j := i + step
		if j > len(runes) {
			j = len(runes)
		}
		sub := string(runes[i:j])
		out = append(out, piece{start: off, end: off + len(sub), tokens: EstimateTokens(sub)})
		off += len(sub)
	}
	return out
}

// EstimateTokens approximates token count: one per word for ASCII text and
// one per rune for CJK content.
func EstimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
