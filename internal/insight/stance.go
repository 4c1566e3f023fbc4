package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/paperpilot/internal/ai"
)

const stancePrompt = `Two excerpts from different research papers follow. Decide whether they make opposing claims about the same subject. Reply with exactly one word: YES if they contradict each other, NO otherwise.

Excerpt 1:
%s

Excerpt 2:
%s`

type llmStanceClassifier struct {
	gen ai.IGenerator
}

// NewStanceClassifier judges polarity with the generation backend. Vector
// similarity already established that the passages talk about the same
// thing.
func NewStanceClassifier(gen ai.IGenerator) StanceClassifier {
	return &llmStanceClassifier{gen: gen}
}

func (s *llmStanceClassifier) Opposing(ctx context.Context, a, b string) (bool, error) {
	reply, err := s.gen.Generate(ctx, fmt.Sprintf(stancePrompt, a, b))
	if err != nil {
		return false, err
	}
	verdict := strings.ToUpper(strings.TrimSpace(reply))
	return strings.HasPrefix(verdict, "YES"), nil
}
