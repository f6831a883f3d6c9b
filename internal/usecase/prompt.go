package usecase

import (
	"strings"

	"icp-wizard/internal/domain"
	"icp-wizard/internal/icp"
)

const (
	finalizeTurn = "Finalize"

	chatFallback     = "I didn't get a response. Please try again."
	finalizeFallback = "No finalize text returned; please try again."
)

func buildSystemPrompt() string {
	return strings.Join([]string{
		"You are an ICP Discovery Assistant running on a public web page.",
		"Ask one question at a time. Be concise. Confirm multi-part answers and move forward.",
		"Cover firmographics, buyer roles, pains and triggers, buying behavior, tech and process gaps, fit and non-fit criteria, and priority segments.",
		`When all fields are reasonably populated, say "I am ready to finalize."`,
		`When the user says "Finalize", return ONLY these sections in this order:`,
		"",
		sectionContract(),
	}, "\n")
}

func sectionContract() string {
	return strings.Join([]string{
		icp.MarkerMarkdown,
		"<concise, client-ready narrative summary>",
		"",
		icp.MarkerJSON,
		"<valid JSON matching schema>",
		"",
		icp.MarkerCompanies,
		icp.CompaniesHeader,
		"",
		icp.MarkerPeople,
		icp.PeopleHeader,
	}, "\n")
}

func buildSchemaPrompt(schema string) string {
	return strings.Join([]string{
		"The JSON section must be a single object matching the " + icp.SchemaName + " schema below.",
		"Do not wrap it in code fences. Start each CSV section with its header row.",
		"",
		schema,
	}, "\n")
}

// buildChatMessages prepends the system instruction to the conversation.
func buildChatMessages(history []domain.ChatMessage) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: buildSystemPrompt()})
	return append(messages, history...)
}

// buildFinalizeMessages adds the schema hint and the synthetic final user turn.
func buildFinalizeMessages(history []domain.ChatMessage, schema string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+3)
	messages = append(messages,
		domain.ChatMessage{Role: domain.RoleSystem, Content: buildSystemPrompt()},
		domain.ChatMessage{Role: domain.RoleSystem, Content: buildSchemaPrompt(schema)},
	)
	messages = append(messages, history...)
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: finalizeTurn})
}

// normalizeHistory drops messages without content and trims the rest.
func normalizeHistory(history []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		out = append(out, domain.ChatMessage{Role: m.Role, Content: content})
	}
	return out
}
