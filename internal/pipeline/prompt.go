package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

const metadataSystemPrompt = `You extract structured metadata from questions about Austrian building law. Respond with JSON only: {"meta_data": {"topic": ..., "jurisdiction": ..., "document_type": ...}}. Omit keys you cannot determine.`

func metadataPrompt(st *State) string {
	return "Question: " + st.Query
}

const planningSystemPrompt = `You plan how to answer a question about Austrian building law and technical standards. Respond with JSON only: {"steps": [...]}. Use "retrieve_pdfs" as the first step when the answer needs passages from the indexed legal documents, or "summarize" when the question can be answered from the conversation context alone.`

func planningPrompt(st *State) string {
	var sb strings.Builder
	if st.ConversationContext != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(st.ConversationContext)
		sb.WriteString("\n\n")
	}
	if len(st.Metadata) > 0 {
		meta, _ := json.Marshal(st.Metadata)
		sb.WriteString("Extracted metadata: ")
		sb.Write(meta)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(st.Query)
	return sb.String()
}

const selectionSystemPrompt = `You pick the documents most likely to answer a question about Austrian building law. Filename prefixes indicate authority: 1_ and 2_ are laws and regulations, 3_ are guidelines, 4_ are technical standards. Folder names indicate jurisdiction. Respond with JSON only: {"documents": [...]} listing at most 5 filenames exactly as given.`

func selectionPrompt(st *State, available []string) string {
	var sb strings.Builder
	sb.WriteString("Available documents:\n")
	for _, id := range available {
		sb.WriteString("- ")
		sb.WriteString(id)
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(st.Query)
	return sb.String()
}

const summarySystemPrompt = `You write the final answer for a question about Austrian building law. Base it on the pipeline trace provided, especially the retrieved passages and their citations. Keep calculations and area figures exactly as retrieved. Cite documents and pages. If retrieval was low-confidence or degraded, state the limitation clearly.`

func summaryPrompt(st *State) string {
	var sb strings.Builder

	if st.ConversationContext != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(st.ConversationContext)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Pipeline trace:\n")
	for _, entry := range st.AuditLog() {
		payload, err := json.Marshal(entry.Payload)
		if err != nil {
			payload = []byte(fmt.Sprintf("%q", fmt.Sprint(entry.Payload)))
		}
		fmt.Fprintf(&sb, "- %s: %s\n", entry.Stage, payload)
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(st.Query)
	return sb.String()
}
