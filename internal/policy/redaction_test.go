package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	require.True(t, changed)
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		require.Contains(t, out, marker)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	out, changed := RedactPII("I ran 5k today")
	require.False(t, changed)
	require.Equal(t, "I ran 5k today", out)
}

func TestLogPreview(t *testing.T) {
	require.Equal(t, "hi there", LogPreview("  hi\n\tthere ", 0))

	long := strings.Repeat("a", 100)
	got := LogPreview(long, 10)
	require.Equal(t, strings.Repeat("a", 10)+"…", got)

	require.Equal(t, "mail [REDACTED_EMAIL]", LogPreview("mail sam@example.com", 0))
}
