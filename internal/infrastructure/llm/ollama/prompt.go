package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func buildAnswerPrompt(question string, fragments []string) string {
	var contextBuilder strings.Builder
	for idx, fragment := range fragments {
		fmt.Fprintf(&contextBuilder, "[%d]\n%s\n\n", idx+1, fragment)
	}

	return fmt.Sprintf(`Answer the user question using only the context below.
If the context does not contain the answer, say that you do not know.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}

func buildJudgePrompt(question string, candidates []domain.JudgeCandidate) string {
	var list strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&list, "[%d]\n%s\n\n", c.Index, c.Content)
	}

	return `You rank text passages by how well they answer a question.
Return strict JSON object {"ranked_indices": [..]} listing passage indices from most to least relevant.
Leave out passages that are irrelevant. No markdown, no extra keys.

Question:
` + question + `

Passages:
` + list.String()
}
