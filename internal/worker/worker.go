package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/reelami/reelads/internal/models"
	"github.com/reelami/reelads/internal/notify"
	"github.com/reelami/reelads/internal/projectstore"
	"github.com/reelami/reelads/internal/queue"
	"github.com/reelami/reelads/internal/services"
	"github.com/reelami/reelads/internal/storage"
)

// Repository is the persistence surface the worker needs. *db.DB satisfies it.
type Repository interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	TransitionProjectStatus(ctx context.Context, id uuid.UUID, event models.StatusEvent) (bool, error)
	UpdateProjectError(ctx context.Context, id uuid.UUID, status models.ProjectStatus, errorMessage string) error
	SetProjectVoiceOver(ctx context.Context, id uuid.UUID, audioURL string, durationSec float64) error
	SetProjectLipsyncJob(ctx context.Context, id uuid.UUID, jobID string) error
	SetProjectLipsyncVideo(ctx context.Context, id uuid.UUID, localPath string) error
	SetProjectAssetMontage(ctx context.Context, id uuid.UUID, localPath string) error
	SetProjectFinalVideo(ctx context.Context, id uuid.UUID, url string) error
	GetProjectIDForPrediction(ctx context.Context, predictionID string) (uuid.UUID, error)
	DeletePredictionMapping(ctx context.Context, predictionID string) error
	CreatePredictionMapping(ctx context.Context, predictionID string, projectID uuid.UUID) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	AddCredits(ctx context.Context, userID uuid.UUID, amount int) error
}

// LipsyncRenderer submits lip-sync renders to the external service and
// fetches their output. *services.ReplicateService satisfies it.
type LipsyncRenderer interface {
	SubmitLipsyncJob(ctx context.Context, videoURL, audioURL string) (string, error)
	DownloadOutput(ctx context.Context, outputURL, outputPath string) error
}

type Worker struct {
	repo     Repository
	queue    *queue.Queue
	store    *projectstore.Store
	storage  *storage.Storage
	openai   *services.OpenAIService
	tts      map[models.TTSProvider]services.TTSService
	lipsync  LipsyncRenderer
	ffmpeg   *services.FFmpegService
	notifier *notify.Dispatcher

	// Convergence retry policy: how long a finished lip-sync render waits
	// for the asset montage before the project is failed.
	convergenceMaxAttempts int
	convergenceInterval    time.Duration
}

func New(
	repo Repository,
	q *queue.Queue,
	store *projectstore.Store,
	stor *storage.Storage,
	openaiSvc *services.OpenAIService,
	ttsProviders map[models.TTSProvider]services.TTSService,
	lipsyncSvc LipsyncRenderer,
	ffmpegSvc *services.FFmpegService,
	notifier *notify.Dispatcher,
	convergenceMaxAttempts int,
	convergenceInterval time.Duration,
) *Worker {
	return &Worker{
		repo:                   repo,
		queue:                  q,
		store:                  store,
		storage:                stor,
		openai:                 openaiSvc,
		tts:                    ttsProviders,
		lipsync:                lipsyncSvc,
		ffmpeg:                 ffmpegSvc,
		notifier:               notifier,
		convergenceMaxAttempts: convergenceMaxAttempts,
		convergenceInterval:    convergenceInterval,
	}
}

// Start begins processing jobs from all queues
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueVoiceLipsync, w.handleVoiceLipsync)
		go w.processQueue(ctx, queue.QueueAssetMontage, w.handleAssetMontage)
		go w.processQueue(ctx, queue.QueueReconcile, w.handleReconcile)
		go w.processQueue(ctx, queue.QueuePostProcess, w.handlePostProcess)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s)", job.ID, job.Type)

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Job %s completed", job.ID)
			}
		}
	}
}

// loadProject reads through the in-memory store, falling back to the
// database after eviction or a restart.
func (w *Worker) loadProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if project, ok := w.store.Get(id); ok {
		return project, nil
	}

	project, err := w.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	w.store.Put(id, project)
	return project, nil
}

// ---------------------------------------------------------------------------
// Branch A: voice-over then lip-sync submission
// ---------------------------------------------------------------------------

func (w *Worker) handleVoiceLipsync(ctx context.Context, job *queue.Job) error {
	project, err := w.loadProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	// Terminal projects are sinks. A stale queued job (or a montage branch
	// that already failed the project) must not spend TTS or lip-sync money.
	if models.IsTerminal(project.Status) {
		log.Printf("[Pipeline] skipping voice-over for project %s, already terminal (status=%s)",
			project.ID, project.Status)
		return nil
	}

	if project.FinalScript == nil || *project.FinalScript == "" {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("project has no script"))
	}
	if project.ActorVideoURL == nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("project has no actor selected"))
	}

	// Pick the TTS provider the selected voice belongs to
	provider := models.TTSProviderOpenAI
	if project.VoiceProvider != nil {
		provider = *project.VoiceProvider
	}
	tts, ok := w.tts[provider]
	if !ok {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("no TTS service for provider %q", provider))
	}

	voiceID := ""
	if project.VoiceIdentifier != nil {
		voiceID = *project.VoiceIdentifier
	}

	speech, err := tts.GenerateSpeech(ctx, *project.FinalScript, voiceID)
	if err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("tts failed: %w", err))
	}

	// Keep a local copy for duration probing and later transcription
	projectDir, err := w.ffmpeg.ProjectDir(project.ID.String())
	if err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, err)
	}
	audioPath := filepath.Join(projectDir, "voiceover."+speech.Format)
	if err := os.WriteFile(audioPath, speech.AudioData, 0644); err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("failed to write voice-over: %w", err))
	}

	durationSec, err := w.ffmpeg.GetAudioDuration(ctx, audioPath)
	if err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("failed to probe voice-over duration: %w", err))
	}

	// The lip-sync renderer needs a public URL for the audio
	storagePath := w.storage.VoiceOverPath(project.ID, speech.Format)
	if err := w.storage.Upload(ctx, storagePath, speech.AudioData, "audio/mpeg"); err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, fmt.Errorf("failed to upload voice-over: %w", err))
	}
	audioURL := w.storage.GetPublicURL(storagePath)

	if err := w.repo.SetProjectVoiceOver(ctx, project.ID, audioURL, durationSec); err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, err)
	}
	advanced, err := w.repo.TransitionProjectStatus(ctx, project.ID, models.EventVoiceOverReady)
	if err != nil {
		return w.failStage(ctx, project, models.EventVoiceOverFailed, err)
	}
	if !advanced {
		// The montage branch failed the project while the voice-over rendered.
		// Stop before submitting a paid external lip-sync job.
		log.Printf("[Pipeline] project %s moved on during voice-over (status gate lost), stopping branch",
			project.ID)
		return nil
	}

	project.TTSAudioURL = &audioURL
	project.AudioDurationSec = &durationSec
	project.Touch()
	w.store.Put(project.ID, project)

	log.Printf("[Pipeline] Voice-over ready for project %s (%.1fs), submitting lip-sync", project.ID, durationSec)

	// Submit the external lip-sync render. Completion arrives via webhook.
	predictionID, err := w.lipsync.SubmitLipsyncJob(ctx, *project.ActorVideoURL, audioURL)
	if err != nil {
		return w.failStage(ctx, project, models.EventLipsyncFailed, fmt.Errorf("lip-sync submission failed: %w", err))
	}

	// Index the prediction before reporting it started so a fast webhook
	// can always resolve its project.
	if err := w.repo.CreatePredictionMapping(ctx, predictionID, project.ID); err != nil {
		return w.failStage(ctx, project, models.EventLipsyncFailed, err)
	}
	if err := w.repo.SetProjectLipsyncJob(ctx, project.ID, predictionID); err != nil {
		return w.failStage(ctx, project, models.EventLipsyncFailed, err)
	}
	advanced, err = w.repo.TransitionProjectStatus(ctx, project.ID, models.EventLipsyncSubmitted)
	if err != nil {
		return w.failStage(ctx, project, models.EventLipsyncFailed, err)
	}
	if !advanced {
		// The project failed terminally while the submission went out. Compact
		// the index so the eventual webhook resolves to nothing and drops.
		w.repo.DeletePredictionMapping(ctx, predictionID)
		log.Printf("[Pipeline] project %s moved on after lip-sync submission, dropping prediction %s",
			project.ID, predictionID)
		return nil
	}

	project.LipsyncJobID = &predictionID
	project.Touch()
	w.store.Put(project.ID, project)

	return nil
}

// ---------------------------------------------------------------------------
// Branch B: asset montage
// ---------------------------------------------------------------------------

func (w *Worker) handleAssetMontage(ctx context.Context, job *queue.Job) error {
	project, err := w.loadProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	if models.IsTerminal(project.Status) {
		log.Printf("[Pipeline] skipping montage for project %s, already terminal (status=%s)",
			project.ID, project.Status)
		return nil
	}

	if len(project.Assets) == 0 {
		return w.failStage(ctx, project, models.EventMontageFailed, fmt.Errorf("project has no assets"))
	}
	if project.VideoConfiguration == nil {
		return w.failStage(ctx, project, models.EventMontageFailed, fmt.Errorf("project has no video configuration"))
	}

	advanced, err := w.repo.TransitionProjectStatus(ctx, project.ID, models.EventMontageStarted)
	if err != nil {
		return w.failStage(ctx, project, models.EventMontageFailed, err)
	}
	if !advanced {
		// Either the other branch failed the project (stop) or the lip-sync
		// render finished before this job was picked up, in which case the
		// status stays on the actor side and the montage still renders.
		current, err := w.repo.GetProject(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("failed to reload project: %w", err)
		}
		if models.IsTerminal(current.Status) {
			log.Printf("[Pipeline] skipping montage for project %s, already terminal (status=%s)",
				project.ID, current.Status)
			return nil
		}
	}

	projectDir, err := w.ffmpeg.ProjectDir(project.ID.String())
	if err != nil {
		return w.failStage(ctx, project, models.EventMontageFailed, err)
	}

	localPaths := make([]string, len(project.Assets))
	for i, asset := range project.Assets {
		if _, err := os.Stat(asset.LocalPath); err != nil {
			// The workdir was evicted between upload and render; pull the
			// durable copy back down.
			if err := os.MkdirAll(filepath.Dir(asset.LocalPath), 0755); err != nil {
				return w.failStage(ctx, project, models.EventMontageFailed, err)
			}
			storagePath := w.storage.AssetPath(project.ID, filepath.Base(asset.LocalPath))
			if err := w.storage.DownloadToFile(ctx, storagePath, asset.LocalPath); err != nil {
				return w.failStage(ctx, project, models.EventMontageFailed,
					fmt.Errorf("asset %d missing from working directory and refetch failed: %w", i, err))
			}
		}
		localPaths[i] = asset.LocalPath
	}

	targetDuration := float64(project.VideoConfiguration.DurationSeconds)
	montagePath, err := w.ffmpeg.RenderAssetMontage(ctx, projectDir, project.Assets, localPaths, targetDuration)
	if err != nil {
		return w.failStage(ctx, project, models.EventMontageFailed, fmt.Errorf("montage render failed: %w", err))
	}

	if err := w.repo.SetProjectAssetMontage(ctx, project.ID, montagePath); err != nil {
		return w.failStage(ctx, project, models.EventMontageFailed, err)
	}

	project.AssetMontagePath = &montagePath
	project.Touch()
	w.store.Put(project.ID, project)

	log.Printf("[Pipeline] Asset montage done for project %s", project.ID)

	// If the lip-sync render already finished, this is the moment the
	// branches converge.
	return w.tryStartPostProcessing(ctx, project.ID)
}

// ---------------------------------------------------------------------------
// Reconcile: webhook deliveries from the lip-sync renderer
// ---------------------------------------------------------------------------

func (w *Worker) handleReconcile(ctx context.Context, job *queue.Job) error {
	projectID, err := w.repo.GetProjectIDForPrediction(ctx, job.PredictionID)
	if err != nil {
		// Unknown prediction: stale delivery for a cleaned-up project, or a
		// job this deployment never issued. Drop it.
		log.Printf("[Reconcile] dropping webhook for unknown prediction %s: %v", job.PredictionID, err)
		return nil
	}

	project, err := w.loadProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	switch job.Outcome {
	case queue.OutcomeSucceeded:
		return w.reconcileSucceeded(ctx, project, job)

	case queue.OutcomeFailed:
		w.repo.DeletePredictionMapping(ctx, job.PredictionID)
		return w.failStage(ctx, project, models.EventLipsyncFailed,
			fmt.Errorf("lip-sync render failed externally"))

	case queue.OutcomeCanceled:
		w.repo.DeletePredictionMapping(ctx, job.PredictionID)
		return w.failStage(ctx, project, models.EventLipsyncCanceled,
			fmt.Errorf("lip-sync render was cancelled"))

	default:
		log.Printf("[Reconcile] ignoring outcome %q for prediction %s", job.Outcome, job.PredictionID)
		return nil
	}
}

func (w *Worker) reconcileSucceeded(ctx context.Context, project *models.Project, job *queue.Job) error {
	// Terminal projects are sinks: a success landing after another stage
	// already failed the project must not touch it. Compact the index so
	// redeliveries drop at resolution.
	if models.IsTerminal(project.Status) {
		w.repo.DeletePredictionMapping(ctx, job.PredictionID)
		log.Printf("[Reconcile] dropping success for project %s, already terminal (status=%s)",
			project.ID, project.Status)
		return nil
	}

	if job.OutputURL == "" {
		return w.failStage(ctx, project, models.EventLipsyncFailed,
			fmt.Errorf("lip-sync succeeded but reported no output"))
	}

	projectDir, err := w.ffmpeg.ProjectDir(project.ID.String())
	if err != nil {
		return w.failStage(ctx, project, models.EventLipsyncFailed, err)
	}

	lipsyncPath := filepath.Join(projectDir, "actor_lipsync.mp4")
	if err := w.lipsync.DownloadOutput(ctx, job.OutputURL, lipsyncPath); err != nil {
		return w.failStage(ctx, project, models.EventLipsyncFailed,
			fmt.Errorf("failed to download lip-sync output: %w", err))
	}

	// This edge is the dedupe point: a duplicate delivery (or a delivery
	// racing the failure path) loses the conditional update and stops here
	// without writing anything. The project is only mutated past this point.
	advanced, err := w.repo.TransitionProjectStatus(ctx, project.ID, models.EventLipsyncCompleted)
	if err != nil {
		return fmt.Errorf("failed to record lip-sync completion: %w", err)
	}
	if !advanced {
		w.repo.DeletePredictionMapping(ctx, job.PredictionID)
		log.Printf("[Reconcile] duplicate or late delivery for project %s (status=%s), ignoring",
			project.ID, project.Status)
		return nil
	}

	if err := w.repo.SetProjectLipsyncVideo(ctx, project.ID, lipsyncPath); err != nil {
		return w.failStage(ctx, project, models.EventCombineFailed, err)
	}

	project.Status = models.StatusActorGenerationDone
	project.LipsyncVideoPath = &lipsyncPath
	project.Touch()
	w.store.Put(project.ID, project)

	w.repo.DeletePredictionMapping(ctx, job.PredictionID)

	log.Printf("[Pipeline] Lip-sync complete for project %s, waiting for asset montage", project.ID)

	return w.waitForMontage(ctx, project.ID)
}

// waitForMontage polls for the asset montage after the lip-sync render has
// finished. Bounded: after convergenceMaxAttempts the project is failed
// rather than left hanging forever on a montage that will never arrive.
func (w *Worker) waitForMontage(ctx context.Context, projectID uuid.UUID) error {
	for attempt := 1; attempt <= w.convergenceMaxAttempts; attempt++ {
		project, err := w.repo.GetProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to reload project: %w", err)
		}

		if models.IsTerminal(project.Status) {
			// Montage branch failed on its own; nothing left to wait for
			return nil
		}

		if project.AssetMontagePath != nil {
			return w.tryStartPostProcessing(ctx, projectID)
		}

		log.Printf("[Reconcile] montage not ready for project %s (attempt %d/%d)",
			projectID, attempt, w.convergenceMaxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.convergenceInterval):
		}
	}

	project, err := w.repo.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to reload project: %w", err)
	}
	return w.failStage(ctx, project, models.EventCombineFailed,
		fmt.Errorf("asset montage did not finish within %d attempts", w.convergenceMaxAttempts))
}

// tryStartPostProcessing enqueues final assembly if this caller wins the
// combine edge. Both branches call it at their finish line; the conditional
// transition guarantees exactly one post-process job per project.
func (w *Worker) tryStartPostProcessing(ctx context.Context, projectID uuid.UUID) error {
	won, err := w.repo.TransitionProjectStatus(ctx, projectID, models.EventCombineStarted)
	if err != nil {
		return fmt.Errorf("failed to claim combine stage: %w", err)
	}
	if !won {
		return nil
	}

	log.Printf("[Pipeline] Branches converged for project %s, starting post-processing", projectID)
	return w.queue.EnqueuePostProcess(ctx, projectID)
}

// ---------------------------------------------------------------------------
// Post-processing: combine, captions, upload
// ---------------------------------------------------------------------------

func (w *Worker) handlePostProcess(ctx context.Context, job *queue.Job) error {
	project, err := w.repo.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	if project.LipsyncVideoPath == nil || project.AssetMontagePath == nil {
		return w.failStage(ctx, project, models.EventCombineFailed,
			fmt.Errorf("post-processing started without both branch outputs"))
	}

	projectDir, err := w.ffmpeg.ProjectDir(project.ID.String())
	if err != nil {
		return w.failStage(ctx, project, models.EventCombineFailed, err)
	}

	// Combine the two halves into the split-screen frame
	combinedPath := filepath.Join(projectDir, "combined.mp4")
	if err := w.ffmpeg.CombineVertically(ctx, *project.LipsyncVideoPath, *project.AssetMontagePath, combinedPath); err != nil {
		return w.failStage(ctx, project, models.EventCombineFailed, fmt.Errorf("combine failed: %w", err))
	}

	combinedDuration, err := w.ffmpeg.GetVideoDuration(ctx, combinedPath)
	if err != nil {
		return w.failStage(ctx, project, models.EventCombineFailed,
			fmt.Errorf("combined video unreadable: %w", err))
	}
	log.Printf("[Pipeline] Combined video for project %s runs %.1fs", project.ID, combinedDuration)

	if _, err := w.repo.TransitionProjectStatus(ctx, project.ID, models.EventCaptionsStarted); err != nil {
		return w.failStage(ctx, project, models.EventCombineFailed, err)
	}

	captionedPath, err := w.addCaptions(ctx, project, projectDir, combinedPath)
	if err != nil {
		return w.failStage(ctx, project, models.EventCaptionsFailed, err)
	}

	if _, err := w.repo.TransitionProjectStatus(ctx, project.ID, models.EventUploadStarted); err != nil {
		return w.failStage(ctx, project, models.EventCaptionsFailed, err)
	}

	finalPath := w.storage.FinalVideoPath(project.ID)
	if err := w.storage.UploadFile(ctx, finalPath, captionedPath, "video/mp4"); err != nil {
		return w.failStage(ctx, project, models.EventUploadFailed, fmt.Errorf("final upload failed: %w", err))
	}
	finalURL := w.storage.GetPublicURL(finalPath)

	if err := w.repo.SetProjectFinalVideo(ctx, project.ID, finalURL); err != nil {
		return w.failStage(ctx, project, models.EventUploadFailed, err)
	}
	if _, err := w.repo.TransitionProjectStatus(ctx, project.ID, models.EventCompleted); err != nil {
		return w.failStage(ctx, project, models.EventUploadFailed, err)
	}

	log.Printf("[Pipeline] Project %s completed: %s", project.ID, finalURL)

	project.FinalVideoURL = &finalURL
	project.Status = models.StatusCompleted

	if user, err := w.repo.GetUser(ctx, project.UserID); err == nil {
		w.notifier.ProjectCompleted(ctx, project, user.Email)
	} else {
		log.Printf("[Pipeline] could not load user %s for notification: %v", project.UserID, err)
	}

	// Dropping the project from the store reclaims its working directory
	w.store.Delete(project.ID)

	return nil
}

// addCaptions transcribes the voice-over and burns word-highlight captions
// into the combined video.
func (w *Worker) addCaptions(ctx context.Context, project *models.Project, projectDir, combinedPath string) (string, error) {
	audioPath := filepath.Join(projectDir, "voiceover.mp3")
	audioData, err := os.ReadFile(audioPath)
	if err != nil && project.TTSAudioURL != nil {
		// Local copy may have been lost to a restart; refetch the uploaded one
		if err = w.storage.DownloadURL(ctx, *project.TTSAudioURL, audioPath); err == nil {
			audioData, err = os.ReadFile(audioPath)
		}
	}
	if err != nil {
		return "", fmt.Errorf("voice-over unavailable for transcription: %w", err)
	}

	words, err := w.openai.TranscribeAudio(ctx, audioData, "en")
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	subtitlePath := filepath.Join(projectDir, "captions.ass")
	if err := services.GenerateASSCaptions(words, subtitlePath); err != nil {
		return "", err
	}

	captionedPath := filepath.Join(projectDir, "captioned.mp4")
	if err := w.ffmpeg.BurnCaptions(ctx, combinedPath, subtitlePath, captionedPath); err != nil {
		return "", fmt.Errorf("caption burn failed: %w", err)
	}

	return captionedPath, nil
}

// ---------------------------------------------------------------------------
// Failure handling
// ---------------------------------------------------------------------------

// failStage moves a project into the stage-specific failure status, refunds
// the generation credit, and notifies the owner. The conditional transition
// makes it safe under races: only the caller that wins the edge refunds and
// notifies, every other caller is a no-op.
func (w *Worker) failStage(ctx context.Context, project *models.Project, event models.StatusEvent, cause error) error {
	won, terr := w.repo.TransitionProjectStatus(ctx, project.ID, event)
	if terr != nil {
		return fmt.Errorf("failed to record failure (%v): %w", cause, terr)
	}
	if !won {
		log.Printf("[Pipeline] failure for project %s superseded (status already moved): %v", project.ID, cause)
		return cause
	}

	failedStatus := models.EventTarget(event)
	if err := w.repo.UpdateProjectError(ctx, project.ID, failedStatus, cause.Error()); err != nil {
		log.Printf("[Pipeline] failed to persist error message for project %s: %v", project.ID, err)
	}

	log.Printf("[Pipeline] Project %s failed at %s: %v", project.ID, failedStatus, cause)

	// The user keeps their credit when generation fails
	if err := w.repo.AddCredits(ctx, project.UserID, 1); err != nil {
		log.Printf("[Pipeline] failed to refund credit for user %s: %v", project.UserID, err)
	}

	project.Status = failedStatus
	msg := cause.Error()
	project.ErrorMessage = &msg

	if user, err := w.repo.GetUser(ctx, project.UserID); err == nil {
		w.notifier.ProjectFailed(ctx, project, user.Email, cause.Error())
	}

	// Reclaim the working directory; the failed aggregate stays in Postgres
	w.store.Delete(project.ID)

	return cause
}
