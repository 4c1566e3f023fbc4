package rag

import (
	"fmt"
	"strings"

	"github.com/xxxsen/paperpilot/internal/chunker"
	"github.com/xxxsen/paperpilot/internal/model"
)

const systemInstruction = `You are a research assistant. Answer the question using only the provided source excerpts. Cite facts to their sources by title. If the excerpts do not contain the answer, say so instead of guessing.`

// Evidence is one retrieved chunk ready for prompt assembly, in retrieval
// order (best match first).
type Evidence struct {
	ChunkID       string
	DocumentID    string
	DocumentTitle string
	Text          string
}

// assemblePrompt builds a bounded prompt from the evidence, the question and
// prior turns. The budget is spent in priority order: system text and the
// question always fit, then evidence, then history. History is dropped
// oldest turn first; evidence is only trimmed from the tail once history is
// already gone, and the best match is always kept.
func assemblePrompt(question string, evidence []Evidence, history []*model.ChatTurn, budget int) (string, []Evidence) {
	fixed := chunker.EstimateTokens(systemInstruction) + chunker.EstimateTokens(question)
	remain := budget - fixed

	included := make([]Evidence, 0, len(evidence))
	for i, ev := range evidence {
		cost := chunker.EstimateTokens(ev.Text) + chunker.EstimateTokens(ev.DocumentTitle)
		if cost > remain && i > 0 {
			break
		}
		included = append(included, ev)
		remain -= cost
	}

	// Newest turns are the most relevant context, so fill from the end and
	// emit in chronological order.
	var kept []*model.ChatTurn
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		if turn.Failed {
			continue
		}
		cost := chunker.EstimateTokens(turn.Question) + chunker.EstimateTokens(turn.Answer)
		if cost > remain {
			break
		}
		kept = append([]*model.ChatTurn{turn}, kept...)
		remain -= cost
	}

	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\n")
	if len(included) > 0 {
		sb.WriteString("Source excerpts:\n")
		for _, ev := range included {
			fmt.Fprintf(&sb, "[Source: %s]\n%s\n\n", ev.DocumentTitle, ev.Text)
		}
	}
	if len(kept) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range kept {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Question: %s", question)
	return sb.String(), included
}
