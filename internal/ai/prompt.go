package ai

import (
	"strings"

	"gopherai-docchat/internal/model"
)

// DefaultSystemPrompt is sent as the provider's system instruction and never shown to the user.
const DefaultSystemPrompt = `You are an advanced PhD-level specialist with expertise across multiple academic disciplines.
Analyze documents thoroughly, cite specific sections when relevant, and provide clear, well-structured responses.
Be precise but accessible. When summarizing or answering questions about a document, ground your response
in the actual content provided. Use markdown formatting for better readability.`

const (
	documentStart = "--- DOCUMENT CONTENT ---"
	documentEnd   = "--- END DOCUMENT ---"
	historyIntro  = "Below is the conversation so far. Continue naturally from here."
)

// BuildPrompt lays out the document text, then every prior turn in order, then
// the new question, ending on an open assistant line.
func BuildPrompt(documentText string, history []model.Turn, question string) string {
	var b strings.Builder
	b.Grow(len(documentText) + len(question) + 256)

	b.WriteString(documentStart)
	b.WriteByte('\n')
	b.WriteString(documentText)
	b.WriteByte('\n')
	b.WriteString(documentEnd)
	b.WriteString("\n\n")
	b.WriteString(historyIntro)
	b.WriteString("\n\n")

	for _, turn := range history {
		writeLine(&b, "User", turn.Question)
		writeLine(&b, "Assistant", turn.Answer)
	}
	writeLine(&b, "User", strings.TrimSpace(question))
	b.WriteString("Assistant: ")
	return b.String()
}

func writeLine(b *strings.Builder, role, content string) {
	b.WriteString(role)
	b.WriteString(": ")
	b.WriteString(content)
	b.WriteString("\n\n")
}
