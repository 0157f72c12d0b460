package llm

import "strings"

// History caps. CoarseHistory bounds how many stored turns are loaded and
// considered while building a prompt; CallHistory is the ceiling actually
// sent upstream.
const (
	CoarseHistory = 20
	CallHistory   = 10
)

// Prompt is everything the adapter needs to build a provider request.
type Prompt struct {
	Instructions string    // chatbot persona and rules
	Knowledge    string    // resolved context, empty in training mode
	Manual       bool      // Knowledge is an operator-curated answer
	History      []Message // prior turns, oldest first
	Question     string
}

// Training reports whether no knowledge grounds this prompt.
func (p Prompt) Training() bool { return strings.TrimSpace(p.Knowledge) == "" }

// WithoutKnowledge returns p in training mode.
func (p Prompt) WithoutKnowledge() Prompt {
	p.Knowledge, p.Manual = "", false
	return p
}

const (
	defaultInstructions = "You are a helpful customer support assistant. Be concise, friendly and accurate."

	manualWording = "A verified answer from the knowledge base matches this question. " +
		"Base your reply on it and do not contradict it.\n\nVerified answer:\n"

	semanticWording = "Use the following knowledge base excerpts to answer. " +
		"If they do not contain the answer, say you are not sure and offer to connect the user with a human.\n\nExcerpts:\n"

	trainingWording = "No knowledge base content matched this question. " +
		"Answer from general knowledge about the business only if you are confident; " +
		"otherwise say you are not sure and offer to connect the user with a human."
)

// SystemPrompt renders the system message for p.
func SystemPrompt(p Prompt) string {
	var b strings.Builder
	instr := strings.TrimSpace(p.Instructions)
	if instr == "" {
		instr = defaultInstructions
	}
	b.WriteString(instr)
	b.WriteString("\n\n")
	switch {
	case p.Training():
		b.WriteString(trainingWording)
	case p.Manual:
		b.WriteString(manualWording)
		b.WriteString(p.Knowledge)
	default:
		b.WriteString(semanticWording)
		b.WriteString(p.Knowledge)
	}
	return b.String()
}

// CapHistory keeps the last n turns and drops turns with unknown roles or
// empty content.
func CapHistory(h []Message, n int) []Message {
	out := make([]Message, 0, min(len(h), max(n, 0)))
	start := max(len(h)-n, 0)
	for _, m := range h[start:] {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Messages returns the capped history followed by the current question.
func (p Prompt) Messages() []Message {
	h := CapHistory(p.History, CoarseHistory)
	h = CapHistory(h, CallHistory)
	return append(h, Message{Role: RoleUser, Content: p.Question})
}
