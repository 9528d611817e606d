package prompt

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/anuva/internal/memory"
)

func TestAssembleWithoutFactsUsesPolicyOnly(t *testing.T) {
	req := Assemble(nil, nil, "u1", "hello")
	require.Equal(t, SystemPolicy, req.SystemPrompt)
	require.NotContains(t, req.SystemPrompt, "User facts")
	require.Empty(t, req.History)
	require.Equal(t, []Message{{Role: "user", Content: "hello"}}, req.Messages())
	require.Equal(t, "u1", req.UserID)
}

func TestAssembleRendersAtMostFiveFacts(t *testing.T) {
	var facts []memory.Fact
	for i := 0; i < 7; i++ {
		facts = append(facts, memory.Fact{Key: fmt.Sprintf("k%d", i), Value: fmt.Sprintf("v%d", i)})
	}
	req := Assemble(nil, facts, "u1", "hi")

	require.True(t, strings.HasPrefix(req.SystemPrompt, SystemPolicy))
	require.Contains(t, req.SystemPrompt, "User facts:\n- k0: v0\n- k1: v1")
	require.Contains(t, req.SystemPrompt, "- k4: v4")
	require.NotContains(t, req.SystemPrompt, "k5")
}

func TestAssembleKeepsHistoryOrderAndDropsDuplicateInput(t *testing.T) {
	now := time.Now()
	window := []memory.Turn{
		memory.NewTurn(memory.RoleUser, "I feel stuck", now),
		memory.NewTurn(memory.RoleAssistant, "Tell me more", now),
		memory.NewTurn(memory.RoleUser, "work is hard", now),
	}
	req := Assemble(window, nil, "u1", "work is hard")

	require.Equal(t, []Message{
		{Role: "user", Content: "I feel stuck"},
		{Role: "assistant", Content: "Tell me more"},
	}, req.History)

	msgs := req.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, Message{Role: "user", Content: "work is hard"}, msgs[2])
}

func TestAssembleKeepsTrailingTurnThatDiffersFromInput(t *testing.T) {
	now := time.Now()
	window := []memory.Turn{
		memory.NewTurn(memory.RoleUser, "earlier", now),
		memory.NewTurn(memory.RoleAssistant, "reply", now),
	}
	req := Assemble(window, nil, "u1", "new")
	require.Len(t, req.History, 2)
	require.Len(t, req.Messages(), 3)
}

func TestAssembleDoesNotMutateWindow(t *testing.T) {
	window := []memory.Turn{memory.NewTurn(memory.RoleUser, "same", time.Now())}
	_ = Assemble(window, nil, "u1", "same")
	require.Len(t, window, 1)
	require.Equal(t, "same", window[0].Text)
}
