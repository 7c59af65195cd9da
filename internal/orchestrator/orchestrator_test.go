package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/db/sqlite"
	"github.com/jonathan/ink-prompts/internal/pipeline"
	"github.com/jonathan/ink-prompts/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]bool
	noVisual map[string]bool
	panicOn  string
	block    chan struct{}
}

func (r *stubRunner) Run(_ context.Context, topic string, _ uuid.UUID) pipeline.Result {
	r.mu.Lock()
	r.calls = append(r.calls, topic)
	r.mu.Unlock()

	if r.block != nil {
		<-r.block
	}
	if r.panicOn == topic {
		panic("runner exploded")
	}
	if r.fail[topic] {
		return pipeline.FailedResult(topic, "upstream exploded")
	}
	res := pipeline.Result{
		Interest: topic,
		Research: types.EmptyReport(topic),
		Content: types.PromptContent{
			Hook:            "Hook for " + topic,
			Blurb:           "<p>blurb</p>",
			Tags:            []string{"tag"},
			SuggestedAngles: []string{"angle"},
		},
		Success: true,
	}
	if !r.noVisual[topic] {
		res.Visual = &types.GeneratedVisual{ImageURL: "https://img.example/" + topic, ArtStyle: "watercolor"}
	}
	return res
}

func (r *stubRunner) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestOrchestrator(t *testing.T, runner Runner, mutate ...func(*Options)) (*Orchestrator, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	opts := Options{
		Store:           store,
		Runner:          runner,
		Dispatcher:      NewDispatcher(8),
		JobTimeout:      5 * time.Second,
		DailyBatchPause: -1,
		Location:        time.UTC,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts), store
}

func seedUser(t *testing.T, store *sqlite.Store, interests ...string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := store.EnsureUser(ctx, "ext-"+uuid.NewString())
	require.NoError(t, err)
	if interests != nil {
		require.NoError(t, store.SetUserInterests(ctx, id, interests))
	}
	return id
}

func readyPrompts(t *testing.T, store *sqlite.Store, userID uuid.UUID) []types.WritingPrompt {
	t.Helper()
	prompts, err := store.ListPrompts(context.Background(), types.PromptFilter{
		UserID:   userID,
		Statuses: []types.PromptStatus{types.PromptReady},
		Limit:    50,
	})
	require.NoError(t, err)
	return prompts
}

func TestGeneratePrompts_FullRun(t *testing.T) {
	runner := &stubRunner{noVisual: map[string]bool{"Cooking": true}}
	o, store := newTestOrchestrator(t, runner)
	ctx := context.Background()
	userID := seedUser(t, store, "AI", "Travel", "Cooking")

	job, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, types.JobPending, job.Status)
	assert.ElementsMatch(t, []string{"AI", "Travel", "Cooking"}, job.SelectedInterests)

	o.Dispatcher().Wait()

	view, err := o.GetJobStatus(ctx, userID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, view.Job.Status)
	assert.Equal(t, 3, view.Job.ResearchCompleted)
	assert.Equal(t, 3, view.Job.CompositionCompleted)
	assert.Equal(t, 2, view.Job.VisualsCompleted)
	assert.Equal(t, types.JobProgress{Total: 3, Completed: 3, Stage: types.StageDone}, view.Progress)
	assert.NotNil(t, view.Job.StartedAt)
	assert.NotNil(t, view.Job.CompletedAt)

	prompts := readyPrompts(t, store, userID)
	require.Len(t, prompts, 3)
	for _, p := range prompts {
		assert.Equal(t, "Hook for "+p.Interest, p.Hook)
		if p.Interest == "Cooking" {
			assert.Nil(t, p.ImageURL)
			assert.Nil(t, p.ArtStyle)
		} else {
			require.NotNil(t, p.ImageURL)
			assert.Equal(t, "https://img.example/"+p.Interest, *p.ImageURL)
		}
	}
}

func TestGeneratePrompts_SelectsBoundedSubset(t *testing.T) {
	runner := &stubRunner{}
	o, store := newTestOrchestrator(t, runner, func(o *Options) { o.InterestsPerGeneration = 2 })
	userID := seedUser(t, store, "a", "b", "c", "d", "e")

	job, err := o.GeneratePrompts(context.Background(), userID)
	require.NoError(t, err)
	o.Dispatcher().Wait()

	require.Len(t, job.SelectedInterests, 2)
	assert.NotEqual(t, job.SelectedInterests[0], job.SelectedInterests[1])
	assert.Subset(t, []string{"a", "b", "c", "d", "e"}, job.SelectedInterests)
	assert.ElementsMatch(t, job.SelectedInterests, runner.topics())
}

func TestGeneratePrompts_NoInterests(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubRunner{})
	ctx := context.Background()
	userID := seedUser(t, store)

	_, err := o.GeneratePrompts(ctx, userID)
	var verr *types.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "interests", verr.Field)

	active, err := store.GetActiveJob(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, active, "no job row should be created")
}

func TestGeneratePrompts_UnknownUser(t *testing.T) {
	o, _ := newTestOrchestrator(t, &stubRunner{})

	_, err := o.GeneratePrompts(context.Background(), uuid.New())
	var nf *types.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Resource)
}

func TestGeneratePrompts_ReturnsActiveJob(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	o, store := newTestOrchestrator(t, runner)
	ctx := context.Background()
	userID := seedUser(t, store, "AI", "Travel")

	first, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)
	second, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = o.RegeneratePrompts(ctx, userID)
	var active *types.ErrActiveJob
	require.ErrorAs(t, err, &active)
	assert.Equal(t, first.ID, active.JobID)

	close(runner.block)
	o.Dispatcher().Wait()

	// Terminal now; a new job is allowed and old prompts stay.
	third, err := o.RegeneratePrompts(ctx, userID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	o.Dispatcher().Wait()
	assert.Len(t, readyPrompts(t, store, userID), 4)
}

func TestProcessJob_PartialFailure(t *testing.T) {
	runner := &stubRunner{fail: map[string]bool{"Travel": true}}
	o, store := newTestOrchestrator(t, runner)
	ctx := context.Background()
	userID := seedUser(t, store, "AI", "Travel", "Cooking")

	job, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)
	o.Dispatcher().Wait()

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Nil(t, got.Error)
	assert.Equal(t, 2, got.ResearchCompleted)
	assert.Equal(t, 2, got.CompositionCompleted)
	assert.Len(t, readyPrompts(t, store, userID), 2)
}

func TestProcessJob_AllFail(t *testing.T) {
	runner := &stubRunner{fail: map[string]bool{"AI": true}, panicOn: "Travel"}
	o, store := newTestOrchestrator(t, runner)
	ctx := context.Background()
	userID := seedUser(t, store, "AI", "Travel")

	job, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)
	o.Dispatcher().Wait()

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "all prompt pipelines failed")
	assert.Contains(t, *got.Error, "runner exploded")
	assert.Empty(t, readyPrompts(t, store, userID))
}

func TestProcessJob_Timeout(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	o, store := newTestOrchestrator(t, runner, func(o *Options) { o.JobTimeout = 100 * time.Millisecond })
	t.Cleanup(func() { close(runner.block) })
	ctx := context.Background()
	userID := seedUser(t, store, "AI")

	job, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		o.Dispatcher().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not failed after its timeout")
	}

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "timed out after 100ms")
	assert.NotNil(t, got.CompletedAt)
}

func TestRunJob_ExpiredWhileQueued(t *testing.T) {
	runner := &stubRunner{}
	o, store := newTestOrchestrator(t, runner, func(o *Options) { o.JobTimeout = time.Minute })
	ctx := context.Background()
	userID := seedUser(t, store, "AI")

	job, created, err := store.CreateJobIfNoneActive(ctx, userID, []string{"AI"})
	require.NoError(t, err)
	require.True(t, created)

	// A slot freed up only after the job's ceiling had already passed.
	o.runJob(job, time.Now().Add(-time.Second))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "timed out after 1m0s")
	assert.Nil(t, got.StartedAt)
	assert.Empty(t, runner.topics())
}

func TestGeneratePrompts_QueuedJobKeepsCeiling(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	o, store := newTestOrchestrator(t, runner, func(o *Options) {
		o.Dispatcher = NewDispatcher(1)
		o.JobTimeout = 200 * time.Millisecond
	})
	t.Cleanup(func() { close(runner.block) })
	ctx := context.Background()

	first, err := o.GeneratePrompts(ctx, seedUser(t, store, "AI"))
	require.NoError(t, err)
	second, err := o.GeneratePrompts(ctx, seedUser(t, store, "Travel"))
	require.NoError(t, err)

	o.Dispatcher().Wait()

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		got, err := store.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.JobFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Contains(t, *got.Error, "timed out after 200ms")
	}
}

func TestCancelJob_DiscardsLateResults(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	o, store := newTestOrchestrator(t, runner)
	ctx := context.Background()
	userID := seedUser(t, store, "AI", "Travel")

	job, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := store.GetJob(ctx, job.ID)
		return err == nil && j.Status == types.JobProcessing
	}, 2*time.Second, 10*time.Millisecond)

	cancelled, err := o.CancelJob(ctx, userID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, cancelled.Status)

	close(runner.block)
	o.Dispatcher().Wait()

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, got.Status)
	assert.Zero(t, got.ResearchCompleted)
	assert.Empty(t, readyPrompts(t, store, userID))

	_, err = o.CancelJob(ctx, userID, job.ID)
	var conflict *types.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestJobOwnership(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubRunner{})
	ctx := context.Background()
	owner := seedUser(t, store, "AI")
	intruder := seedUser(t, store, "AI")

	job, err := o.GeneratePrompts(ctx, owner)
	require.NoError(t, err)
	o.Dispatcher().Wait()

	var forbidden *types.ErrForbidden
	_, err = o.GetJobStatus(ctx, intruder, job.ID)
	assert.ErrorAs(t, err, &forbidden)
	_, err = o.CancelJob(ctx, intruder, job.ID)
	assert.ErrorAs(t, err, &forbidden)

	var nf *types.ErrNotFound
	_, err = o.GetJobStatus(ctx, owner, uuid.New())
	assert.ErrorAs(t, err, &nf)
}

func TestDailyGeneration_OncePerDay(t *testing.T) {
	runner := &stubRunner{}
	o, store := newTestOrchestrator(t, runner, func(o *Options) { o.DailyBatchSize = 2 })
	ctx := context.Background()

	for range 5 {
		seedUser(t, store, "AI", "Travel")
	}
	seedUser(t, store) // no interests, never selected

	first, err := o.RunDailyGenerationForAllUsers(ctx)
	require.NoError(t, err)
	o.Dispatcher().Wait()
	assert.Equal(t, types.DailyRunResult{Processed: 5, Succeeded: 5}, first)

	second, err := o.RunDailyGenerationForAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DailyRunResult{}, second)
}

func TestDailyGeneration_CountsFailures(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubRunner{})
	ctx := context.Background()
	seedUser(t, store, "AI")

	failing := &failingStore{Store: store, err: errors.New("db down")}
	o.store = failing

	res, err := o.RunDailyGenerationForAllUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.DailyRunResult{Processed: 1, Failed: 1}, res)
}

type failingStore struct {
	*sqlite.Store
	err error
}

func (f *failingStore) GetUserInterests(context.Context, uuid.UUID) ([]string, error) {
	return nil, f.err
}

func TestReconcileStuckJobs(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	o, store := newTestOrchestrator(t, runner, func(o *Options) { o.JobTimeout = time.Hour })
	ctx := context.Background()
	userID := seedUser(t, store, "AI")

	job, err := o.GeneratePrompts(ctx, userID)
	require.NoError(t, err)

	n, err := o.ReconcileStuckJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	o.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = o.ReconcileStuckJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	close(runner.block)
	o.Dispatcher().Wait()

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.Status)
	assert.Contains(t, *got.Error, "timed out")
	assert.Empty(t, readyPrompts(t, store, userID))
}

func TestGenerateAndWait(t *testing.T) {
	o, store := newTestOrchestrator(t, &stubRunner{})
	userID := seedUser(t, store, "AI")

	job, err := o.GenerateAndWait(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, job.Status)
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher(2)

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	for range 6 {
		require.NoError(t, d.Go(func() {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}))
	}
	d.Wait()
	assert.LessOrEqual(t, peak, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.ErrorIs(t, d.Go(func() {}), ErrDispatcherClosed)
}
