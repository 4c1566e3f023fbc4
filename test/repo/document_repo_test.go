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

func TestDocumentRepoCRUDAndIsolation(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	now := timeutil.NowMilli()
	doc := &model.Document{
		ID:      "doc-crud-1",
		UserID:  "user-crud-1",
		Title:   "Attention Is All You Need",
		Content: "abstract text",
		State:   model.DocumentStatePending,
		Ctime:   now,
		Mtime:   now,
	}
	require.NoError(t, docs.Create(context.Background(), doc))

	fetched, err := docs.GetDocument(context.Background(), "user-crud-1", "doc-crud-1")
	require.NoError(t, err)
	require.Equal(t, "Attention Is All You Need", fetched.Title)
	require.Equal(t, model.DocumentStatePending, fetched.State)

	_, err = docs.GetDocument(context.Background(), "user-crud-2", "doc-crud-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, docs.UpdateState(context.Background(), "user-crud-1", "doc-crud-1", model.DocumentStateFailed, "embed timeout"))
	fetched, err = docs.GetDocument(context.Background(), "user-crud-1", "doc-crud-1")
	require.NoError(t, err)
	require.Equal(t, model.DocumentStateFailed, fetched.State)
	require.Equal(t, "embed timeout", fetched.FailReason)

	require.NoError(t, docs.SetComplexity(context.Background(), "user-crud-1", "doc-crud-1", 7))
	require.NoError(t, docs.SetSummary(context.Background(), "user-crud-1", "doc-crud-1", "a summary"))
	fetched, err = docs.GetDocument(context.Background(), "user-crud-1", "doc-crud-1")
	require.NoError(t, err)
	require.Equal(t, 7, fetched.Complexity)
	require.Equal(t, "a summary", fetched.Summary)

	require.NoError(t, docs.Delete(context.Background(), "user-crud-1", "doc-crud-1"))
	_, err = docs.GetDocument(context.Background(), "user-crud-1", "doc-crud-1")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentRepoListByState(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	now := timeutil.NowMilli()
	for i, state := range []int{model.DocumentStateFailed, model.DocumentStateFailed, model.DocumentStateIndexed} {
		doc := &model.Document{
			ID:     "doc-state-" + string(rune('a'+i)),
			UserID: "user-state-1",
			Title:  "t",
			State:  state,
			Ctime:  now,
			Mtime:  now,
		}
		require.NoError(t, docs.Create(context.Background(), doc))
		defer func(id string) {
			_ = docs.Delete(context.Background(), "user-state-1", id)
		}(doc.ID)
	}

	failed, err := docs.ListByState(context.Background(), model.DocumentStateFailed, 10)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, d := range failed {
		ids[d.ID] = true
	}
	require.True(t, ids["doc-state-a"])
	require.True(t, ids["doc-state-b"])
	require.False(t, ids["doc-state-c"])
}
