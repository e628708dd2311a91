package retriever

import (
	"fmt"
	"strings"

	"github.com/lexarch/lexarch/internal/index"
)

// AnswerSystemPrompt frames generation over retrieved passages. Exported
// so collaborators (and their tests) can recognize this call.
const AnswerSystemPrompt = `You are an assistant for Austrian building law and related technical standards. Answer strictly from the provided source passages. When sources disagree, laws and regulations override guidelines, and guidelines override technical standards. Quote calculations and area figures exactly as written in the sources. Cite the document and page for every claim. If the passages do not answer the question, say so plainly instead of guessing.`

// answerPrompt assembles the generation prompt: conversation context,
// then the ranked passages in authority order, then the question.
func answerPrompt(req Request, chunks []index.ScoredChunk) string {
	var sb strings.Builder

	if req.Context != "" {
		sb.WriteString("Context from the conversation so far:\n")
		sb.WriteString(req.Context)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Source passages, ordered by legal authority (most authoritative first):\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s (page %d, %s, %s)\n%s\n\n",
			i+1, c.Identity, c.Page, c.Tier.Label(), c.Jurisdiction, c.Text)
	}

	sb.WriteString("Question: ")
	sb.WriteString(req.Query)
	return sb.String()
}
