// Package fallback produces deterministic substitute replies when no
// generation provider can answer.
package fallback

import "sync"

// Responder yields a reply for a session without calling a provider.
type Responder interface {
	Reply(sessionID string) string
	Reset(sessionID string)
}

// Line is one entry of the reference dialogue.
type Line struct {
	Role string
	Text string
}

// ReferenceDialogue alternates user and assistant lines, starting with the user.
var ReferenceDialogue = []Line{
	{"user", "Hey Anuva, I feel stuck today."},
	{"assistant", "I hear you. Can you tell me a little more about what's making you feel stuck?"},
	{"user", "I've been trying to focus on work, but I keep getting distracted."},
	{"assistant", "Distractions are tough. Sometimes breaking tasks into really small steps helps. What's the next small thing you could do right now?"},
	{"user", "Maybe just start by organizing my desk."},
	{"assistant", "Perfect! Organizing your space can clear mental clutter too. How long will you spend on it?"},
	{"user", "I'll try 10 minutes."},
	{"assistant", "Great! Small wins add up. After that, maybe reward yourself with a short break or a stretch."},
	{"user", "That sounds doable."},
	{"assistant", "Exactly! Sometimes the trick is just starting. How have you been sleeping lately?"},
	{"user", "Not great, maybe 5–6 hours."},
	{"assistant", "Sleep really affects focus. Maybe a short wind-down routine before bed could help. Would you like some ideas?"},
	{"user", "Yes, please."},
	{"assistant", "Try this: 1) dim lights 30 min before sleep, 2) avoid screens, 3) jot down 3 things you're grateful for, 4) breathe deeply for 2–3 minutes."},
	{"user", "I like that, it feels simple enough."},
	{"assistant", "Exactly. Small changes are often the most sustainable. How's your mood today on a scale of 1–10?"},
	{"user", "Around 6, I guess."},
	{"assistant", "That's fair. Even acknowledging your feelings is progress. Have you done anything recently that made you happy?"},
	{"user", "I went for a short walk this morning."},
	{"assistant", "Nice! Walking is a great reset. Did you notice anything interesting outside?"},
	{"user", "Some birds and flowers, it was peaceful."},
	{"assistant", "Beautiful. Those little moments can really boost your mood. Maybe you could do a 5-min walk break later today too."},
	{"user", "I will try that."},
	{"assistant", "Perfect! Remember, progress is about consistency, not perfection. How about we set a small goal for the next hour?"},
	{"user", "I'll finish the first draft of my notes."},
	{"assistant", "Great! That's specific and achievable. I'll be here if you want to reflect afterward."},
}

const (
	firstAssistant  = 1
	secondAssistant = 3
)

// ScriptedResponder walks the reference dialogue one assistant line per call,
// keeping a cursor per session. Once the dialogue is exhausted it restarts at
// the second assistant line so the opening line is not repeated every cycle.
type ScriptedResponder struct {
	mu      sync.Mutex
	lines   []Line
	cursors map[string]int
}

func NewScriptedResponder() *ScriptedResponder {
	return &ScriptedResponder{
		lines:   ReferenceDialogue,
		cursors: make(map[string]int),
	}
}

func (r *ScriptedResponder) Reply(sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.cursors[sessionID]
	if !ok {
		idx = firstAssistant
	}
	if idx >= len(r.lines) {
		idx = secondAssistant
	}
	r.cursors[sessionID] = idx + 2
	return r.lines[idx].Text
}

// Reset forgets the session's position; the next reply starts from the top.
func (r *ScriptedResponder) Reset(sessionID string) {
	r.mu.Lock()
	delete(r.cursors, sessionID)
	r.mu.Unlock()
}

// Sessions reports how many sessions currently hold a cursor.
func (r *ScriptedResponder) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cursors)
}
