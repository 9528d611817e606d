// Package prompt builds generation requests from policy text and memory.
package prompt

import (
	"strings"

	"github.com/ent0n29/anuva/internal/memory"
)

// MaxFactLines caps how many facts are rendered into the system prompt.
const MaxFactLines = 5

// SystemPolicy is the persona and hard constraints sent with every request.
const SystemPolicy = `You are Anuva, a thoughtful, supportive AI companion.
- Be reflective, curious, and engaging.
- Respond naturally to the user input; avoid repeating generic sentences.
- Reference user's previous messages or facts when relevant.
- Ask follow-up questions to keep the conversation flowing.
- Keep responses concise, clear, and helpful.
- Never simulate romantic or exclusive relationships.
- Encourage real-world action, learning, and safety.`

// Message is a role/content pair as understood by chat-completion providers.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the ephemeral generation request for one turn.
type Request struct {
	SystemPrompt string
	History      []Message
	Input        string
	UserID       string
}

// Messages returns the history followed by the live input as the final user entry.
func (r Request) Messages() []Message {
	out := make([]Message, 0, len(r.History)+1)
	out = append(out, r.History...)
	return append(out, Message{Role: string(memory.RoleUser), Content: r.Input})
}

// Assemble is pure: it never reads storage. When the window already ends with
// the live input as a user turn, that entry is left out of History so the
// input is sent exactly once.
func Assemble(window []memory.Turn, facts []memory.Fact, userID, input string) Request {
	history := window
	if n := len(history); n > 0 && history[n-1].Role == memory.RoleUser && history[n-1].Text == input {
		history = history[:n-1]
	}

	msgs := make([]Message, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Text})
	}

	return Request{
		SystemPrompt: systemPrompt(facts),
		History:      msgs,
		Input:        input,
		UserID:       userID,
	}
}

func systemPrompt(facts []memory.Fact) string {
	if len(facts) == 0 {
		return SystemPolicy
	}
	if len(facts) > MaxFactLines {
		facts = facts[:MaxFactLines]
	}
	var b strings.Builder
	b.WriteString(SystemPolicy)
	b.WriteString("\n\nUser facts:")
	for _, f := range facts {
		b.WriteString("\n- ")
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}
