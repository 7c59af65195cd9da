package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newUser(t *testing.T, s *Store, interests ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := s.EnsureUser(ctx, "ext-"+uuid.NewString())
	require.NoError(t, err)
	if len(interests) > 0 {
		require.NoError(t, s.SetUserInterests(ctx, id, interests))
	}
	return id
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestEnsureUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.EnsureUser(ctx, "user-a")
	require.NoError(t, err)
	again, err := s.EnsureUser(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	missing, err := s.GetUserIDByExternalID(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, missing)

	ok, err := s.UserExists(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UserExists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserInterests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newUser(t, s)

	got, err := s.GetUserInterests(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetUserInterests(ctx, id, []string{"AI", "Travel"}))
	require.NoError(t, s.SetUserInterests(ctx, id, []string{"Cooking"}))

	got, err = s.GetUserInterests(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cooking"}, got)
}

func TestCreateJobIfNoneActive_SingleActiveJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := newUser(t, s, "AI")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[uuid.UUID]int{}
		created int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, ok, err := s.CreateJobIfNoneActive(ctx, userID, []string{"AI"})
			assert.NoError(t, err)
			if job == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[job.ID]++
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	// Once terminal, a new job may be created.
	for id := range ids {
		ok, err := s.UpdateJobStatus(ctx, id, types.JobCancelled, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}
	next, ok, err := s.CreateJobIfNoneActive(ctx, userID, []string{"AI"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, ids, next.ID)
}

func TestUpdateJobStatus_Guarded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := newUser(t, s, "AI")

	job, _, err := s.CreateJobIfNoneActive(ctx, userID, []string{"AI", "Travel"})
	require.NoError(t, err)
	assert.Equal(t, types.JobPending, job.Status)
	assert.Equal(t, []string{"AI", "Travel"}, job.SelectedInterests)
	assert.Nil(t, job.StartedAt)

	// Counters only move while processing.
	require.NoError(t, s.IncrementJobProgress(ctx, job.ID, 1, 1, 1))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ResearchCompleted)

	ok, err := s.UpdateJobStatus(ctx, job.ID, types.JobProcessing, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.UpdateJobStatus(ctx, job.ID, types.JobProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok, "processing is only reachable from pending")

	require.NoError(t, s.IncrementJobProgress(ctx, job.ID, 1, 1, 0))
	require.NoError(t, s.IncrementJobProgress(ctx, job.ID, 1, 1, 1))
	require.NoError(t, s.IncrementJobProgress(ctx, job.ID, -5, -5, -5))

	msg := "boom"
	ok, err = s.UpdateJobStatus(ctx, job.ID, types.JobFailed, &msg)
	require.NoError(t, err)
	require.True(t, ok)

	for _, next := range []types.JobStatus{types.JobCompleted, types.JobCancelled, types.JobFailed} {
		ok, err = s.UpdateJobStatus(ctx, job.ID, next, nil)
		require.NoError(t, err)
		assert.False(t, ok, "terminal job moved to %s", next)
	}
	require.NoError(t, s.IncrementJobProgress(ctx, job.ID, 1, 1, 1))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
	assert.Equal(t, 2, got.ResearchCompleted)
	assert.Equal(t, 2, got.CompositionCompleted)
	assert.Equal(t, 1, got.VisualsCompleted)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	_, err = s.UpdateJobStatus(ctx, job.ID, types.JobPending, nil)
	assert.Error(t, err)
}

func TestGetJob_Missing(t *testing.T) {
	s := newTestStore(t)
	job, err := s.GetJob(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailStaleJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base.Add(-time.Hour) }
	old, _, err := s.CreateJobIfNoneActive(ctx, newUser(t, s, "a"), []string{"a"})
	require.NoError(t, err)

	s.now = func() time.Time { return base }
	fresh, _, err := s.CreateJobIfNoneActive(ctx, newUser(t, s, "b"), []string{"b"})
	require.NoError(t, err)

	n, err := s.FailStaleJobs(ctx, base.Add(-30*time.Minute), "job timed out after 10m0s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetJob(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Contains(t, *got.Error, "timed out")

	got, err = s.GetJob(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobPending, got.Status)
}

func TestListUsersNeedingDailyPrompts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	withInterests := newUser(t, s, "AI")
	newUser(t, s) // no interests
	empty := newUser(t, s)
	require.NoError(t, s.SetUserInterests(ctx, empty, []string{}))

	ranYesterday := newUser(t, s, "Travel")
	s.now = func() time.Time { return midnight.Add(-time.Hour) }
	_, _, err := s.CreateJobIfNoneActive(ctx, ranYesterday, []string{"Travel"})
	require.NoError(t, err)

	ranToday := newUser(t, s, "Cooking")
	s.now = func() time.Time { return midnight.Add(time.Hour) }
	_, _, err = s.CreateJobIfNoneActive(ctx, ranToday, []string{"Cooking"})
	require.NoError(t, err)

	ids, err := s.ListUsersNeedingDailyPrompts(ctx, midnight)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{withInterests, ranYesterday}, ids)
}

func TestPromptLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := newUser(t, s, "AI")

	url := "https://img.example/a.png"
	style := types.ArtStyle("watercolor")
	p := &types.WritingPrompt{
		UserID:          userID,
		Interest:        "AI",
		Hook:            "What machines dream about",
		Blurb:           "<p>One</p>",
		ImageURL:        &url,
		Tags:            []string{"ai"},
		SuggestedAngles: []string{"angle"},
		Sources:         []types.Source{{Title: "T", URL: "https://x"}},
		ArtStyle:        &style,
	}
	require.NoError(t, s.CreatePrompt(ctx, p))
	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, types.PromptReady, p.Status)

	got, err := s.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, url, *got.ImageURL)
	assert.Equal(t, style, *got.ArtStyle)
	assert.Equal(t, []types.Source{{Title: "T", URL: "https://x"}}, got.Sources)

	used, err := s.TransitionPrompt(ctx, p.ID, types.PromptUsed)
	require.NoError(t, err)
	require.NotNil(t, used)
	assert.Equal(t, types.PromptUsed, used.Status)
	assert.NotNil(t, used.UsedAt)

	again, err := s.TransitionPrompt(ctx, p.ID, types.PromptDismissed)
	require.NoError(t, err)
	assert.Nil(t, again)

	_, err = s.TransitionPrompt(ctx, p.ID, types.PromptFailed)
	assert.Error(t, err)

	deleted, err := s.DeletePrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeletePrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	missing, err := s.GetPrompt(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListPrompts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	userID := newUser(t, s, "AI")
	other := newUser(t, s, "AI")

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := range 5 {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		p := &types.WritingPrompt{UserID: userID, Interest: "AI", Hook: "h", Blurb: "b"}
		require.NoError(t, s.CreatePrompt(ctx, p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, s.CreatePrompt(ctx, &types.WritingPrompt{UserID: other, Interest: "AI", Hook: "h", Blurb: "b"}))

	_, err := s.TransitionPrompt(ctx, ids[0], types.PromptDismissed)
	require.NoError(t, err)

	ready, err := s.ListPrompts(ctx, types.PromptFilter{UserID: userID})
	require.NoError(t, err)
	require.Len(t, ready, 4)
	assert.Equal(t, ids[4], ready[0].ID, "newest first")

	page, err := s.ListPrompts(ctx, types.PromptFilter{UserID: userID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)

	both, err := s.ListPrompts(ctx, types.PromptFilter{
		UserID:   userID,
		Statuses: []types.PromptStatus{types.PromptReady, types.PromptDismissed},
	})
	require.NoError(t, err)
	assert.Len(t, both, 5)

	n, err := s.CountReadyPrompts(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
