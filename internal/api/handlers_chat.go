package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lexarch/lexarch/internal/conversation"
	"github.com/lexarch/lexarch/internal/pipeline"
	"github.com/lexarch/lexarch/internal/retriever"
)

const directAnswerPrompt = `You are a helpful assistant for an Austrian building law document service. Answer briefly. For substantive legal or technical questions, tell the user to ask them directly so the document pipeline can ground the answer in sources.`

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type chatResponse struct {
	Answer         string               `json:"answer"`
	Citations      []retriever.Citation `json:"citations"`
	ConversationID string               `json:"conversation_id"`
	LowConfidence  bool                 `json:"low_confidence"`
	Degraded       bool                 `json:"degraded,omitempty"`
	UsedPipeline   bool                 `json:"used_pipeline"`
}

// handleChat answers one user message: gate, then either a direct
// completion or the full retrieval pipeline, then turn persistence.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		jsonError(w, "message is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	conversationID := req.ConversationID
	var history []conversation.Message
	if conversationID == "" {
		id, err := s.conversations.Create(ctx, req.UserID)
		if err != nil {
			jsonError(w, "failed to create conversation: "+err.Error(), http.StatusInternalServerError)
			return
		}
		conversationID = id
	} else {
		var err error
		history, err = s.conversations.History(ctx, conversationID, s.cfg.HistoryLimit)
		if err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				jsonError(w, "unknown conversation", http.StatusNotFound)
				return
			}
			jsonError(w, "failed to load conversation: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	historyText := conversation.FormatHistory(history)

	resp := chatResponse{ConversationID: conversationID, Citations: []retriever.Citation{}}
	assistant := conversation.Message{Role: "assistant"}

	decision := s.gate.Decide(ctx, req.Message)
	if decision.UseAgent {
		st := pipeline.NewState(req.Message, historyText)
		if err := s.orchestrator.Run(ctx, st); err != nil {
			jsonError(w, "pipeline aborted: "+err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Answer = st.Summary
		resp.Citations = st.Citations
		resp.LowConfidence = st.LowConfidence
		resp.Degraded = st.Degraded
		resp.UsedPipeline = true

		assistant.Content = st.Summary
		assistant.Steps = st.PlannedSteps
		assistant.Documents = st.SelectedDocuments
		assistant.Citations = st.Citations
	} else {
		answer, err := s.llm.Complete(ctx, directAnswerPrompt, req.Message)
		if err != nil {
			s.log.Error("direct completion failed", "error", err)
			answer = "The service is temporarily unavailable. Please retry shortly."
			resp.Degraded = true
		}
		resp.Answer = strings.TrimSpace(answer)
		assistant.Content = resp.Answer
	}

	if err := s.conversations.Append(ctx, conversationID, conversation.Message{Role: "user", Content: req.Message}); err != nil {
		s.log.Error("failed to persist user turn", "conversation", conversationID, "error", err)
	}
	if err := s.conversations.Append(ctx, conversationID, assistant); err != nil {
		s.log.Error("failed to persist assistant turn", "conversation", conversationID, "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	id, err := s.conversations.Create(r.Context(), req.UserID)
	if err != nil {
		jsonError(w, "failed to create conversation: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": id})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.conversations.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		jsonError(w, "failed to list conversations: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []conversation.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	msgs, err := s.conversations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			jsonError(w, "unknown conversation", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load conversation: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": msgs})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
