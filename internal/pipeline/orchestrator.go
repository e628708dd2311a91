package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lexarch/lexarch/internal/corpus"
	"github.com/lexarch/lexarch/internal/index"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
	"github.com/lexarch/lexarch/internal/retriever"
)

// Step keywords recognized by planning. Routing reads only the first
// planned step; anything unrecognized falls back to document selection,
// since skipping retrieval risks answering without grounding.
const (
	StepRetrievePDFs = "retrieve_pdfs"
	StepSummarize    = "summarize"
)

const selectionFallbackCount = 3

// Orchestrator runs the pipeline stages sequentially for one request.
// A single Orchestrator serves concurrent requests; all per-request
// data lives in State.
type Orchestrator struct {
	llm       llm.Client
	retriever *retriever.Retriever
	indexer   *index.Indexer
	corpus    *corpus.Corpus
	log       *slog.Logger
}

func NewOrchestrator(client llm.Client, r *retriever.Retriever, ix *index.Indexer, c *corpus.Corpus, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		llm:       client,
		retriever: r,
		indexer:   ix,
		corpus:    c,
		log:       log,
	}
}

// Run drives the state machine to Done. Stage failures degrade rather
// than abort: the returned State always carries an answer in Summary.
// Only context cancellation aborts the run.
func (o *Orchestrator) Run(ctx context.Context, st *State) error {
	stage := StageMetadataExtraction
	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch stage {
		case StageMetadataExtraction:
			o.extractMetadata(ctx, st)
			stage = StagePlanning
		case StagePlanning:
			o.plan(ctx, st)
			stage = route(st.PlannedSteps)
		case StageDocumentSelection:
			o.selectDocuments(ctx, st)
			stage = StageRetrieval
		case StageRetrieval:
			o.retrieve(ctx, st)
			stage = StageSummarization
		case StageSummarization:
			o.summarize(ctx, st)
			stage = StageDone
		default:
			return fmt.Errorf("unknown pipeline stage %q", stage)
		}
	}
	return nil
}

// route decides the branch after planning from the first step keyword.
func route(steps []string) Stage {
	if len(steps) == 0 {
		return StageDocumentSelection
	}
	switch strings.TrimSpace(strings.ToLower(steps[0])) {
	case StepSummarize:
		return StageSummarization
	case StepRetrievePDFs:
		return StageDocumentSelection
	default:
		return StageDocumentSelection
	}
}

func (o *Orchestrator) extractMetadata(ctx context.Context, st *State) {
	var parsed struct {
		MetaData map[string]any `json:"meta_data"`
	}

	raw, err := o.llm.Complete(ctx, metadataSystemPrompt, metadataPrompt(st))
	if err == nil {
		err = llm.DecodeJSON(raw, &parsed)
	}
	if err != nil || parsed.MetaData == nil {
		o.log.Warn("metadata extraction failed, continuing with empty metadata", "error", err)
		parsed.MetaData = map[string]any{}
	}

	st.Metadata = parsed.MetaData
	if js := jurisdictionHint(st.Query); len(js) > 0 {
		st.Metadata["jurisdiction"] = string(js[0])
	}
	st.audit(StageMetadataExtraction, st.Metadata)
}

func (o *Orchestrator) plan(ctx context.Context, st *State) {
	var parsed struct {
		Steps []string `json:"steps"`
	}

	raw, err := o.llm.Complete(ctx, planningSystemPrompt, planningPrompt(st))
	if err == nil {
		err = llm.DecodeJSON(raw, &parsed)
	}
	if err != nil || len(parsed.Steps) == 0 {
		o.log.Warn("planning failed, defaulting to retrieval", "error", err)
		parsed.Steps = []string{StepRetrievePDFs}
	}

	st.PlannedSteps = parsed.Steps
	st.audit(StagePlanning, st.PlannedSteps)
}

// selectDocuments picks a bounded candidate set from the corpus. An
// unparseable selection falls back to the first few available documents
// so the pipeline never halts here.
func (o *Orchestrator) selectDocuments(ctx context.Context, st *State) {
	available, err := o.corpus.List()
	if err != nil {
		o.log.Warn("corpus listing failed", "error", err)
		available = nil
	}

	selected := o.askSelection(ctx, st, available)
	if len(selected) == 0 && len(available) > 0 {
		n := selectionFallbackCount
		if n > len(available) {
			n = len(available)
		}
		selected = available[:n]
	}

	st.SelectedDocuments = selected
	st.audit(StageDocumentSelection, st.SelectedDocuments)
}

func (o *Orchestrator) askSelection(ctx context.Context, st *State, available []string) []string {
	if len(available) == 0 {
		return nil
	}

	var parsed struct {
		Documents []string `json:"documents"`
	}
	raw, err := o.llm.Complete(ctx, selectionSystemPrompt, selectionPrompt(st, available))
	if err == nil {
		err = llm.DecodeJSON(raw, &parsed)
	}
	if err != nil {
		o.log.Warn("document selection failed, using fallback", "error", err)
		return nil
	}

	// Keep only documents that actually exist in the corpus.
	availableSet := make(map[string]bool, len(available))
	for _, id := range available {
		availableSet[id] = true
	}
	var selected []string
	for _, id := range parsed.Documents {
		id = strings.TrimSpace(id)
		if availableSet[id] {
			selected = append(selected, id)
		}
	}
	return selected
}

func (o *Orchestrator) retrieve(ctx context.Context, st *State) {
	// Integration point with the indexing path: selected documents are
	// brought up to date before searching, one writer per identity.
	for _, identity := range st.SelectedDocuments {
		if _, err := o.indexer.EnsureIndexed(ctx, identity); err != nil {
			o.log.Warn("skipping unindexable document", "identity", identity, "error", err)
		}
	}

	result := o.retriever.Retrieve(ctx, retriever.Request{
		Query:         st.Query,
		Candidates:    st.SelectedDocuments,
		Jurisdictions: jurisdictionHint(st.Query),
		Context:       st.ConversationContext,
	})

	st.Summary = result.AnswerText
	st.Citations = result.Citations
	st.LowConfidence = result.LowConfidence
	st.Degraded = result.Degraded
	st.audit(StageRetrieval, result)
}

// summarize produces the final answer. It reuses the audit log instead
// of re-deriving upstream values; when generation is down, the
// retrieval summary (or an explanatory message) stands.
func (o *Orchestrator) summarize(ctx context.Context, st *State) {
	answer, err := o.llm.Complete(ctx, summarySystemPrompt, summaryPrompt(st))
	if err != nil {
		o.log.Warn("summarization failed, keeping retrieval summary", "error", err)
		if st.Summary == "" {
			st.Summary = "The answer could not be generated because the language model is unavailable. Please retry shortly."
			st.Degraded = true
		}
		st.audit(StageSummarization, st.Summary)
		return
	}

	st.Summary = strings.TrimSpace(answer)
	st.audit(StageSummarization, st.Summary)
}

// jurisdictionHint detects an explicit jurisdiction in the query text.
// No match means no filter, never a guess.
func jurisdictionHint(query string) []metadata.Jurisdiction {
	lower := strings.ToLower(query)
	for _, marker := range []string{"wien", "vienna"} {
		if strings.Contains(lower, marker) {
			return []metadata.Jurisdiction{metadata.JurisdictionVienna}
		}
	}
	for _, marker := range []string{"linz", "oberösterreich", "oberoesterreich", "upper austria", "oö"} {
		if strings.Contains(lower, marker) {
			return []metadata.Jurisdiction{metadata.JurisdictionUpperAustria}
		}
	}
	return nil
}
