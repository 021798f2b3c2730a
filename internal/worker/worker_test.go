package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelami/reelads/internal/db"
	"github.com/reelami/reelads/internal/models"
	"github.com/reelami/reelads/internal/notify"
	"github.com/reelami/reelads/internal/projectstore"
	"github.com/reelami/reelads/internal/queue"
	"github.com/reelami/reelads/internal/services"
)

// fakeRepo implements Repository in memory with the same conditional-write
// semantics as the SQL layer: status moves only when the current status is a
// legal source for the event, and credits decrement only when the balance
// allows it.
type fakeRepo struct {
	mu          sync.Mutex
	projects    map[uuid.UUID]*models.Project
	predictions map[string]uuid.UUID
	users       map[uuid.UUID]*models.User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		projects:    make(map[uuid.UUID]*models.Project),
		predictions: make(map[string]uuid.UUID),
		users:       make(map[uuid.UUID]*models.User),
	}
}

func (f *fakeRepo) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, fmt.Errorf("project: %w", db.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) TransitionProjectStatus(_ context.Context, id uuid.UUID, event models.StatusEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return false, fmt.Errorf("project: %w", db.ErrNotFound)
	}
	for _, from := range models.EventSources(event) {
		if p.Status == from {
			p.Status = models.EventTarget(event)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) UpdateProjectError(_ context.Context, id uuid.UUID, status models.ProjectStatus, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.Status = status
		p.ErrorMessage = &msg
	}
	return nil
}

func (f *fakeRepo) SetProjectVoiceOver(_ context.Context, id uuid.UUID, audioURL string, durationSec float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.TTSAudioURL = &audioURL
		p.AudioDurationSec = &durationSec
	}
	return nil
}

func (f *fakeRepo) SetProjectLipsyncJob(_ context.Context, id uuid.UUID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.LipsyncJobID = &jobID
	}
	return nil
}

func (f *fakeRepo) SetProjectLipsyncVideo(_ context.Context, id uuid.UUID, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.LipsyncVideoPath = &localPath
	}
	return nil
}

func (f *fakeRepo) SetProjectAssetMontage(_ context.Context, id uuid.UUID, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.AssetMontagePath = &localPath
	}
	return nil
}

func (f *fakeRepo) SetProjectFinalVideo(_ context.Context, id uuid.UUID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[id]; ok {
		p.FinalVideoURL = &url
	}
	return nil
}

func (f *fakeRepo) GetProjectIDForPrediction(_ context.Context, predictionID string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.predictions[predictionID]
	if !ok {
		return uuid.Nil, fmt.Errorf("prediction %s: %w", predictionID, db.ErrUnknownJob)
	}
	return id, nil
}

func (f *fakeRepo) CreatePredictionMapping(_ context.Context, predictionID string, projectID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.predictions[predictionID]; !exists {
		f.predictions[predictionID] = projectID
	}
	return nil
}

func (f *fakeRepo) DeletePredictionMapping(_ context.Context, predictionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.predictions, predictionID)
	return nil
}

func (f *fakeRepo) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", db.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) AddCredits(_ context.Context, userID uuid.UUID, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.Credits += amount
	}
	return nil
}

// ConsumeCredit mirrors the SQL layer's atomic conditional decrement.
func (f *fakeRepo) ConsumeCredit(_ context.Context, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.Credits < 1 {
		return false, nil
	}
	u.Credits--
	return true, nil
}

func (f *fakeRepo) credits(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].Credits
}

func (f *fakeRepo) status(id uuid.UUID) models.ProjectStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects[id].Status
}

// fakeLipsync stands in for the external renderer.
type fakeLipsync struct {
	submitted  int
	downloaded int
}

func (f *fakeLipsync) SubmitLipsyncJob(context.Context, string, string) (string, error) {
	f.submitted++
	return fmt.Sprintf("pred-%d", f.submitted), nil
}

func (f *fakeLipsync) DownloadOutput(_ context.Context, _ string, outputPath string) error {
	f.downloaded++
	return os.WriteFile(outputPath, []byte("video"), 0644)
}

func newTestWorker(t *testing.T, repo *fakeRepo) (*Worker, *queue.Queue) {
	t.Helper()

	mr := miniredis.RunT(t)
	q, err := queue.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	workDir := t.TempDir()
	store, err := projectstore.New(16, projectstore.WorkdirCleanup(workDir))
	require.NoError(t, err)

	w := New(
		repo, q, store, nil,
		nil, nil, &fakeLipsync{}, services.NewFFmpegService(workDir),
		notify.NewDispatcher(),
		3, time.Millisecond,
	)
	return w, q
}

func seedProject(repo *fakeRepo, status models.ProjectStatus) *models.Project {
	userID := uuid.New()
	repo.users[userID] = &models.User{ID: userID, Email: "owner@example.com", Credits: 0}

	p := &models.Project{
		ID:     uuid.New(),
		UserID: userID,
		Status: status,
	}
	repo.projects[p.ID] = p
	return p
}

func queueLen(t *testing.T, q *queue.Queue, name string) int64 {
	t.Helper()
	n, err := q.GetQueueLength(context.Background(), name)
	require.NoError(t, err)
	return n
}

func TestTryStartPostProcessingExactlyOnce(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)
	p := seedProject(repo, models.StatusActorGenerationDone)

	// Both branches race into convergence at once
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.tryStartPostProcessing(context.Background(), p.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.StatusVideoEditing, repo.status(p.ID))
	assert.Equal(t, int64(1), queueLen(t, q, queue.QueuePostProcess),
		"exactly one post-process job per project")
}

func TestTryStartPostProcessingNotReady(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)
	p := seedProject(repo, models.StatusActorGenerationStarted)

	require.NoError(t, w.tryStartPostProcessing(context.Background(), p.ID))

	assert.Equal(t, models.StatusActorGenerationStarted, repo.status(p.ID))
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
}

func TestReconcileSucceededConverges(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)
	p := seedProject(repo, models.StatusActorGenerationStarted)
	montage := "/tmp/montage.mp4"
	repo.projects[p.ID].AssetMontagePath = &montage
	repo.predictions["pred-1"] = p.ID

	job := &queue.Job{
		ID:           uuid.New(),
		Type:         "reconcile",
		PredictionID: "pred-1",
		Outcome:      queue.OutcomeSucceeded,
		OutputURL:    "https://cdn.example.com/out.mp4",
	}
	require.NoError(t, w.handleReconcile(context.Background(), job))

	assert.Equal(t, models.StatusVideoEditing, repo.status(p.ID))
	assert.NotNil(t, repo.projects[p.ID].LipsyncVideoPath)
	assert.Equal(t, int64(1), queueLen(t, q, queue.QueuePostProcess))

	// The prediction index entry is compacted on terminal resolution, so a
	// redelivery resolves to an unknown job and is dropped.
	require.NoError(t, w.handleReconcile(context.Background(), job))
	assert.Equal(t, models.StatusVideoEditing, repo.status(p.ID))
	assert.Equal(t, int64(1), queueLen(t, q, queue.QueuePostProcess))
}

func TestReconcileDuplicateLosesStatusGate(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)

	// Project already moved past the actor stage (first delivery won)
	p := seedProject(repo, models.StatusVideoEditing)
	repo.predictions["pred-1"] = p.ID

	job := &queue.Job{
		ID:           uuid.New(),
		PredictionID: "pred-1",
		Outcome:      queue.OutcomeSucceeded,
		OutputURL:    "https://cdn.example.com/out.mp4",
	}
	require.NoError(t, w.handleReconcile(context.Background(), job))

	assert.Equal(t, models.StatusVideoEditing, repo.status(p.ID))
	assert.Nil(t, repo.projects[p.ID].LipsyncVideoPath, "losing the gate must not write")
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
	assert.Equal(t, 0, repo.credits(p.UserID), "no-op delivery must not refund")
	assert.Empty(t, repo.predictions, "stale mapping is compacted on the lost gate")
}

func TestReconcileSucceededTerminalProjectUntouched(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)
	lipsync := w.lipsync.(*fakeLipsync)

	// The montage branch failed the project, then the webhook for the
	// still-running render arrives. Terminal statuses are sinks.
	p := seedProject(repo, models.StatusAssetsVideoFailed)
	repo.users[p.UserID].Credits = 1 // the failing branch already refunded
	repo.predictions["pred-1"] = p.ID

	job := &queue.Job{
		ID:           uuid.New(),
		PredictionID: "pred-1",
		Outcome:      queue.OutcomeSucceeded,
		OutputURL:    "https://cdn.example.com/out.mp4",
	}
	require.NoError(t, w.handleReconcile(context.Background(), job))

	assert.Equal(t, models.StatusAssetsVideoFailed, repo.status(p.ID))
	assert.Nil(t, repo.projects[p.ID].LipsyncVideoPath, "terminal project must not be mutated")
	assert.Equal(t, 0, lipsync.downloaded, "no output download for a dead project")
	assert.Equal(t, 1, repo.credits(p.UserID), "no second refund")
	assert.Empty(t, repo.predictions, "mapping compacted so redeliveries drop")
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
}

func TestReconcileFailedOutcome(t *testing.T) {
	repo := newFakeRepo()
	w, _ := newTestWorker(t, repo)
	p := seedProject(repo, models.StatusActorGenerationStarted)
	repo.predictions["pred-1"] = p.ID

	job := &queue.Job{
		ID:           uuid.New(),
		PredictionID: "pred-1",
		Outcome:      queue.OutcomeFailed,
	}
	err := w.handleReconcile(context.Background(), job)
	require.Error(t, err)

	assert.Equal(t, models.StatusActorGenerationFailed, repo.status(p.ID))
	assert.NotNil(t, repo.projects[p.ID].ErrorMessage)
	assert.Equal(t, 1, repo.credits(p.UserID), "failure refunds the generation credit")

	// A late success after the failure resolves to an unknown prediction
	late := &queue.Job{
		ID:           uuid.New(),
		PredictionID: "pred-1",
		Outcome:      queue.OutcomeSucceeded,
		OutputURL:    "https://cdn.example.com/out.mp4",
	}
	require.NoError(t, w.handleReconcile(context.Background(), late))
	assert.Equal(t, models.StatusActorGenerationFailed, repo.status(p.ID))
	assert.Equal(t, 1, repo.credits(p.UserID), "refund happens once")
}

func TestReconcileUnknownPredictionDropped(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)

	job := &queue.Job{
		ID:           uuid.New(),
		PredictionID: "pred-never-issued",
		Outcome:      queue.OutcomeSucceeded,
		OutputURL:    "https://cdn.example.com/out.mp4",
	}
	require.NoError(t, w.handleReconcile(context.Background(), job))
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
}

func TestWaitForMontageExhaustionFailsProject(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)

	// Lip-sync finished but the montage never lands
	p := seedProject(repo, models.StatusActorGenerationDone)

	err := w.waitForMontage(context.Background(), p.ID)
	require.Error(t, err)

	assert.Equal(t, models.StatusVideoEditingFailed, repo.status(p.ID))
	assert.NotNil(t, repo.projects[p.ID].ErrorMessage)
	assert.Equal(t, 1, repo.credits(p.UserID))
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
}

func TestWaitForMontageSucceedsWhenMontageArrives(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)
	p := seedProject(repo, models.StatusActorGenerationDone)

	// Montage lands while the reconcile worker is polling
	go func() {
		time.Sleep(2 * time.Millisecond)
		montage := "/tmp/montage.mp4"
		repo.mu.Lock()
		repo.projects[p.ID].AssetMontagePath = &montage
		repo.mu.Unlock()
	}()

	require.NoError(t, w.waitForMontage(context.Background(), p.ID))

	assert.Equal(t, models.StatusVideoEditing, repo.status(p.ID))
	assert.Equal(t, int64(1), queueLen(t, q, queue.QueuePostProcess))
}

func TestWaitForMontageStopsOnTerminalStatus(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)

	// Montage branch failed the project on its own
	p := seedProject(repo, models.StatusAssetsVideoFailed)

	require.NoError(t, w.waitForMontage(context.Background(), p.ID))

	assert.Equal(t, models.StatusAssetsVideoFailed, repo.status(p.ID))
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
	assert.Equal(t, 0, repo.credits(p.UserID), "the branch that failed already refunded")
}

func TestVoiceLipsyncSkipsTerminalProject(t *testing.T) {
	repo := newFakeRepo()
	w, _ := newTestWorker(t, repo)
	lipsync := w.lipsync.(*fakeLipsync)

	// The montage branch already failed the project terminally
	p := seedProject(repo, models.StatusAssetsVideoFailed)
	script := "Buy this serum."
	actor := "https://cdn.example.com/actor.mp4"
	repo.projects[p.ID].FinalScript = &script
	repo.projects[p.ID].ActorVideoURL = &actor

	job := &queue.Job{ID: uuid.New(), Type: "voice_lipsync", ProjectID: p.ID}
	require.NoError(t, w.handleVoiceLipsync(context.Background(), job))

	assert.Equal(t, 0, lipsync.submitted, "no paid render for a dead project")
	assert.Equal(t, models.StatusAssetsVideoFailed, repo.status(p.ID))
	assert.Equal(t, 0, repo.credits(p.UserID), "skipping is not a new failure")
	assert.Empty(t, repo.predictions)
}

func TestAssetMontageSkipsTerminalProject(t *testing.T) {
	repo := newFakeRepo()
	w, q := newTestWorker(t, repo)

	// The voice-over branch already failed the project terminally
	p := seedProject(repo, models.StatusVoiceOverFailed)

	job := &queue.Job{ID: uuid.New(), Type: "asset_montage", ProjectID: p.ID}
	require.NoError(t, w.handleAssetMontage(context.Background(), job))

	assert.Equal(t, models.StatusVoiceOverFailed, repo.status(p.ID))
	assert.Equal(t, 0, repo.credits(p.UserID), "skipping is not a new failure")
	assert.Equal(t, int64(0), queueLen(t, q, queue.QueuePostProcess))
}

func TestFailStageRefundsAndNotifiesOnce(t *testing.T) {
	repo := newFakeRepo()
	w, _ := newTestWorker(t, repo)
	p := seedProject(repo, models.StatusProcessing)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proj, _ := repo.GetProject(context.Background(), p.ID)
			_ = w.failStage(context.Background(), proj, models.EventVoiceOverFailed, fmt.Errorf("tts blew up"))
		}()
	}
	wg.Wait()

	assert.Equal(t, models.StatusVoiceOverFailed, repo.status(p.ID))
	assert.Equal(t, 1, repo.credits(p.UserID), "racing failure reports refund exactly once")
}

func TestConsumeCreditConcurrent(t *testing.T) {
	repo := newFakeRepo()
	userID := uuid.New()
	repo.users[userID] = &models.User{ID: userID, Email: "owner@example.com", Credits: 3}

	var granted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ConsumeCredit(context.Background(), userID)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), granted, "10 concurrent starts against 3 credits grant exactly 3")
	assert.Equal(t, 0, repo.credits(userID))
}
