package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperpilot/internal/model"
	appErr "github.com/xxxsen/paperpilot/internal/pkg/errors"
	"github.com/xxxsen/paperpilot/internal/pkg/timeutil"
	"github.com/xxxsen/paperpilot/internal/repo"
	"github.com/xxxsen/paperpilot/test/testutil"
)

func TestConversationRepoAppendAndRecent(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	conv := repo.NewConversationRepo(db)
	sess := &model.ChatSession{
		ID:     "sess-conv-1",
		UserID: "user-conv-1",
		Title:  "New chat",
		Ctime:  timeutil.NowMilli(),
	}
	require.NoError(t, conv.CreateSession(context.Background(), sess))

	_, err := conv.GetSession(context.Background(), "user-conv-2", "sess-conv-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	for _, q := range []string{"q1", "q2", "q3"} {
		turn := &model.ChatTurn{
			SessionID: "sess-conv-1",
			Question:  q,
			Answer:    "a-" + q,
			Citations: []string{"doc-1"},
			Ctime:     timeutil.NowMilli(),
		}
		require.NoError(t, conv.AppendTurn(context.Background(), "user-conv-1", turn))
	}

	// Seq is assigned server side, append order defines it.
	turns, err := conv.ListTurns(context.Background(), "user-conv-1", "sess-conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, 1, turns[0].Seq)
	require.Equal(t, "q1", turns[0].Question)
	require.Equal(t, []string{"doc-1"}, turns[0].Citations)

	// Recent turns come back chronological even though the query walks
	// backwards from the tail.
	recent, err := conv.RecentTurns(context.Background(), "user-conv-1", "sess-conv-1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "q2", recent[0].Question)
	require.Equal(t, "q3", recent[1].Question)
}

func TestConversationRepoFailedTurnKeepsCitations(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	conv := repo.NewConversationRepo(db)
	sess := &model.ChatSession{
		ID:     "sess-conv-fail",
		UserID: "user-conv-fail",
		Title:  "New chat",
		Ctime:  timeutil.NowMilli(),
	}
	require.NoError(t, conv.CreateSession(context.Background(), sess))

	turn := &model.ChatTurn{
		SessionID: "sess-conv-fail",
		Question:  "what happened",
		Citations: []string{"doc-a", "doc-b"},
		Failed:    true,
		Ctime:     timeutil.NowMilli(),
	}
	require.NoError(t, conv.AppendTurn(context.Background(), "user-conv-fail", turn))

	turns, err := conv.ListTurns(context.Background(), "user-conv-fail", "sess-conv-fail")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.True(t, turns[0].Failed)
	require.Equal(t, []string{"doc-a", "doc-b"}, turns[0].Citations)
}
