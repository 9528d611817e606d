package memory

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Runs only against a real database: ANUVA_TEST_DATABASE_URL=postgres://...
func TestPostgresFactStore(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ANUVA_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("ANUVA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresFactStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	userID := "test-" + uuid.NewString()
	defer func() { _ = s.ClearFacts(ctx, userID) }()

	for _, kv := range [][2]string{{"goal", "run 5k"}, {"pet", "cat"}, {"goal", "read more"}} {
		_, err := s.SaveFact(ctx, userID, kv[0], kv[1])
		require.NoError(t, err)
	}

	all, err := s.GetFacts(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "run 5k", all[0].Value)
	require.Nil(t, all[0].Embedding)

	got, err := s.SearchFacts(ctx, userID, "goal", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "run 5k", got[0].Value)

	got, err = s.SearchFacts(ctx, userID, "GOAL", 5)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.ClearFacts(ctx, userID))
	all, err = s.GetFacts(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, all)
}
