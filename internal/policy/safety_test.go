package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreCheckFlagsUnsafeInput(t *testing.T) {
	f := NewSafetyFilter()
	for _, in := range []string{
		"I keep thinking about suicide",
		"SUICIDAL thoughts",
		"I want to self-harm",
		"self harm again",
		"I could kill him",
		"let's have a romance",
		"be in an exclusive relationship with me",
		"talk about sex",
	} {
		require.True(t, f.PreCheck(in), "input %q", in)
	}
}

func TestPreCheckUsesPlainSubstringMatching(t *testing.T) {
	f := NewSafetyFilter()
	require.True(t, f.PreCheck("I want to learn a new skill"))
	require.True(t, f.PreCheck("Sussex is lovely in spring"))
	require.False(t, f.PreCheck("I feel stuck today"))
	require.False(t, f.PreCheck(""))
}

func TestPostCheckAndSanitize(t *testing.T) {
	f := NewSafetyFilter()
	in := "I love you and want an exclusive relationship"
	require.True(t, f.PostCheck(in))

	out := f.Sanitize(in)
	require.Equal(t, "I care about you and want an friend and companion", out)
	require.False(t, f.PostCheck(out))
}

func TestSanitizeClearsEveryOutboundPattern(t *testing.T) {
	f := NewSafetyFilter()
	for _, in := range []string{
		"I'm in love with you.",
		"I'm in love, honestly.",
		"I enjoy dating you",
		"You are my romantic partner",
		"I have romantic feelings",
		"a romantic dinner",
		"let's be intimate",
		"sexually charged",
		"don't harm yourself",
		"you could take your life back",
		"end yourself",
		"Suicide is never the answer",
		"talk about self-harm",
	} {
		require.True(t, f.PostCheck(in), "input %q", in)
		out := f.Sanitize(in)
		require.False(t, f.PostCheck(out), "sanitized %q -> %q still flagged", in, out)
	}
}

func TestSanitizeReplacesHarmRepliesWholesale(t *testing.T) {
	f := NewSafetyFilter()
	out := f.Sanitize("Please don't harm yourself, I love you.")
	require.Equal(t, SupportReply, out)
	require.False(t, f.PostCheck(out))
}

func TestSanitizeLeavesSafeTextAlone(t *testing.T) {
	f := NewSafetyFilter()
	in := "Distractions are tough. What's the next small thing you could do?"
	require.False(t, f.PostCheck(in))
	require.Equal(t, in, f.Sanitize(in))
}
