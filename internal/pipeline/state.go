// Package pipeline drives a question through an explicit state machine:
// metadata extraction, planning, document selection, retrieval, and
// summarization, with an audit trail of every stage's output.
package pipeline

import (
	"time"

	"github.com/lexarch/lexarch/internal/retriever"
)

// Stage names the states of the answer pipeline.
type Stage string

const (
	StageMetadataExtraction Stage = "metadata_extraction"
	StagePlanning           Stage = "planning"
	StageDocumentSelection  Stage = "document_selection"
	StageRetrieval          Stage = "retrieval"
	StageSummarization      Stage = "summarization"
	StageDone               Stage = "done"
)

// AuditEntry records one stage's output. The ordered audit log is a
// replayable trace of why a document or jurisdiction was chosen.
type AuditEntry struct {
	Stage   Stage     `json:"stage"`
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// State is the mutable context threaded through one pipeline run.
// Created per request, mutated in place by each stage, never shared
// between requests.
type State struct {
	Query               string
	ConversationContext string

	Metadata          map[string]any
	PlannedSteps      []string
	SelectedDocuments []string

	Summary       string
	Citations     []retriever.Citation
	LowConfidence bool
	Degraded      bool

	auditLog []AuditEntry
}

// NewState creates the state for one request.
func NewState(query, conversationContext string) *State {
	return &State{
		Query:               query,
		ConversationContext: conversationContext,
		Metadata:            map[string]any{},
	}
}

func (s *State) audit(stage Stage, payload any) {
	s.auditLog = append(s.auditLog, AuditEntry{
		Stage:   stage,
		Payload: payload,
		Time:    time.Now().UTC(),
	})
}

// AuditLog returns the ordered stage trace.
func (s *State) AuditLog() []AuditEntry {
	return s.auditLog
}
