package pipeline

import (
	"context"
	"log/slog"

	"github.com/lexarch/lexarch/internal/llm"
)

const gateSystemPrompt = `You decide whether a question needs the document retrieval pipeline. Questions about Austrian building law, regulations, technical standards, areas, distances, parking obligations, or accessibility need it. Greetings, small talk, and questions about the conversation itself do not. Respond with JSON only: {"use_agent": true|false, "reason": "..."}.`

// GateDecision is the gate's verdict on one question.
type GateDecision struct {
	UseAgent bool   `json:"use_agent"`
	Reason   string `json:"reason"`
}

// Gate is a cheap pre-pipeline classifier: trivial questions get a
// direct completion instead of the full retrieval pipeline.
type Gate struct {
	llm llm.Client
	log *slog.Logger
}

func NewGate(client llm.Client, log *slog.Logger) *Gate {
	return &Gate{llm: client, log: log}
}

// Decide classifies the question. Errors and unparseable replies
// default to running the full pipeline, the safe direction.
func (g *Gate) Decide(ctx context.Context, query string) GateDecision {
	raw, err := g.llm.Complete(ctx, gateSystemPrompt, "Question: "+query)
	if err != nil {
		g.log.Warn("gate failed, defaulting to full pipeline", "error", err)
		return GateDecision{UseAgent: true, Reason: "gate unavailable"}
	}

	// use_agent is a pointer so a reply that omits the key counts as
	// unparseable instead of silently skipping the pipeline.
	var reply struct {
		UseAgent *bool  `json:"use_agent"`
		Reason   string `json:"reason"`
	}
	if err := llm.DecodeJSON(raw, &reply); err != nil || reply.UseAgent == nil {
		g.log.Warn("gate reply unparseable, defaulting to full pipeline", "error", err)
		return GateDecision{UseAgent: true, Reason: "gate reply unparseable"}
	}
	return GateDecision{UseAgent: *reply.UseAgent, Reason: reply.Reason}
}
