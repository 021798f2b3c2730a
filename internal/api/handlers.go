package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelami/reelads/internal/db"
	"github.com/reelami/reelads/internal/models"
	"github.com/reelami/reelads/internal/projectstore"
	"github.com/reelami/reelads/internal/queue"
	"github.com/reelami/reelads/internal/services"
	"github.com/reelami/reelads/internal/storage"
)

// Asset uploads are capped per file; product shots don't need more.
const maxAssetUploadBytes = 100 << 20 // 100 MB

type Handler struct {
	db      *db.DB
	queue   *queue.Queue
	store   *projectstore.Store
	storage *storage.Storage
	openai  *services.OpenAIService
	workDir string
}

func NewHandler(
	database *db.DB,
	q *queue.Queue,
	store *projectstore.Store,
	stor *storage.Storage,
	openaiSvc *services.OpenAIService,
	workDir string,
) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		store:   store,
		storage: stor,
		openai:  openaiSvc,
		workDir: workDir,
	}
}

// userID resolves the acting user from the X-User-ID header. The gateway in
// front of this service terminates real authentication and forwards the
// resolved user.
func userID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing X-User-ID header")
	}
	return uuid.Parse(raw)
}

// loadProject reads through the in-memory store with a database fallback, so
// configuration calls keep working after an eviction or restart.
func (h *Handler) loadProject(r *http.Request, id uuid.UUID) (*models.Project, error) {
	if project, ok := h.store.Get(id); ok {
		return project, nil
	}

	project, err := h.db.GetProject(r.Context(), id)
	if err != nil {
		return nil, err
	}

	h.store.Put(id, project)
	return project, nil
}

// persistProject writes the aggregate to both the store and the database.
func (h *Handler) persistProject(r *http.Request, project *models.Project) error {
	project.Touch()
	h.store.Put(project.ID, project)
	return h.db.UpsertProject(r.Context(), project)
}

// projectFromURL parses the {id} URL param and loads the project.
func (h *Handler) projectFromURL(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return nil, false
	}

	project, err := h.loadProject(r, projectID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to load project")
		}
		return nil, false
	}

	return project, true
}

// CreateProduct handles POST /v1/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid or missing user")
		return
	}

	var req models.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Description == "" {
		respondError(w, http.StatusBadRequest, "Name and description are required")
		return
	}

	product := &models.Product{
		ID:          uuid.New(),
		UserID:      uid,
		Name:        req.Name,
		Description: req.Description,
		ProductLink: req.ProductLink,
	}

	if err := h.db.CreateProduct(r.Context(), product); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid or missing user")
		return
	}

	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := h.db.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	if product.UserID != uid {
		respondError(w, http.StatusForbidden, "Product belongs to another user")
		return
	}

	project := &models.Project{
		ID:        uuid.New(),
		UserID:    uid,
		ProductID: product.ID,
		Status:    models.StatusCreated,
	}

	if err := h.persistProject(r, project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateProjectResponse{
		ProjectID: project.ID,
		Status:    project.Status,
	})
}

// UpdateVideoConfiguration handles PUT /v1/projects/{id}/video-configuration
func (h *Handler) UpdateVideoConfiguration(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromURL(w, r)
	if !ok {
		return
	}

	var config models.VideoConfiguration
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if config.DurationSeconds < 15 || config.DurationSeconds > 120 {
		respondError(w, http.StatusBadRequest, "Duration must be between 15 and 120 seconds")
		return
	}

	next, err := models.Transition(project.Status, models.EventConfigure)
	if err != nil {
		respondError(w, http.StatusConflict, "Project can no longer be configured")
		return
	}

	project.VideoConfiguration = &config
	project.Status = next

	if err := h.persistProject(r, project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// GenerateScript handles POST /v1/projects/{id}/generate-script
func (h *Handler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromURL(w, r)
	if !ok {
		return
	}

	if project.VideoConfiguration == nil {
		respondError(w, http.StatusBadRequest, "Set the video configuration before generating a script")
		return
	}
	if models.IsTerminal(project.Status) || project.Status == models.StatusProcessing {
		respondError(w, http.StatusConflict, "Project is no longer editable")
		return
	}

	product, err := h.db.GetProduct(r.Context(), project.ProductID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load product")
		return
	}

	script, err := h.openai.GenerateScript(r.Context(), product, project.VideoConfiguration)
	if err != nil {
		log.Printf("[API] script generation failed for project %s: %v", project.ID, err)
		respondError(w, http.StatusBadGateway, "Script generation failed")
		return
	}

	project.FinalScript = &script

	if err := h.persistProject(r, project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save script")
		return
	}

	respondJSON(w, http.StatusOK, models.GenerateScriptResponse{
		ScriptGenerated: true,
		Script:          script,
	})
}

// ListActorsAndVoices handles GET /v1/actors-and-voices
func (h *Handler) ListActorsAndVoices(w http.ResponseWriter, r *http.Request) {
	actors, err := h.db.ListActors(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list actors")
		return
	}

	voices, err := h.db.ListVoices(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list voices")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"actors": actors,
		"voices": voices,
	})
}

// SelectActorVoice handles POST /v1/projects/{id}/select-actor-voice
func (h *Handler) SelectActorVoice(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromURL(w, r)
	if !ok {
		return
	}

	var req models.SelectActorVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor, err := h.db.GetActor(r.Context(), req.ActorID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Actor not found")
		return
	}

	voiceID := req.VoiceID
	if voiceID == uuid.Nil {
		voiceID = actor.DefaultVoiceID
	}
	voice, err := h.db.GetVoice(r.Context(), voiceID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Voice not found")
		return
	}

	next, err := models.Transition(project.Status, models.EventConfigure)
	if err != nil {
		respondError(w, http.StatusConflict, "Project can no longer be configured")
		return
	}

	// Snapshot the collaborator fields the pipeline needs mid-flight
	project.ActorID = &actor.ID
	project.VoiceID = &voice.ID
	project.ActorVideoURL = &actor.FullVideoURL
	project.VoiceProvider = &voice.Provider
	project.VoiceIdentifier = &voice.VoiceIdentifier
	project.Status = next

	if err := h.persistProject(r, project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save selection")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// UploadAssets handles POST /v1/projects/{id}/assets (multipart form, field "files")
func (h *Handler) UploadAssets(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromURL(w, r)
	if !ok {
		return
	}

	if models.IsTerminal(project.Status) || project.Status == models.StatusProcessing {
		respondError(w, http.StatusConflict, "Project is no longer editable")
		return
	}

	if err := r.ParseMultipartForm(maxAssetUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No files provided")
		return
	}

	assetsDir := filepath.Join(h.workDir, project.ID.String(), "assets")
	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to prepare working directory")
		return
	}

	for i, header := range files {
		assetType, err := assetTypeFor(header)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		localPath := filepath.Join(assetsDir, fmt.Sprintf("%02d_%s", len(project.Assets)+i, filepath.Base(header.Filename)))
		if err := saveUpload(header, localPath); err != nil {
			log.Printf("[API] asset save failed for project %s: %v", project.ID, err)
			respondError(w, http.StatusInternalServerError, "Failed to save asset")
			return
		}

		// Keep a durable copy: the montage worker refetches it if the local
		// workdir is evicted before rendering.
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		storagePath := h.storage.AssetPath(project.ID, filepath.Base(localPath))
		if err := h.storage.UploadFile(r.Context(), storagePath, localPath, contentType); err != nil {
			log.Printf("[API] durable asset copy failed for project %s: %v", project.ID, err)
			respondError(w, http.StatusInternalServerError, "Failed to store asset")
			return
		}

		project.Assets = append(project.Assets, models.Asset{
			Type:      assetType,
			LocalPath: localPath,
		})
	}

	if err := h.persistProject(r, project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save assets")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"uploaded":     len(files),
		"total_assets": len(project.Assets),
	})
}

func assetTypeFor(header *multipart.FileHeader) (models.AssetType, error) {
	contentType := header.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.AssetTypeImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return models.AssetTypeVideo, nil
	}

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return models.AssetTypeImage, nil
	case ".mp4", ".mov", ".webm":
		return models.AssetTypeVideo, nil
	}

	return "", fmt.Errorf("unsupported asset type for %q", header.Filename)
}

func saveUpload(header *multipart.FileHeader, localPath string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// ListVideoLayouts handles GET /v1/video-layouts
func (h *Handler) ListVideoLayouts(w http.ResponseWriter, r *http.Request) {
	layouts, err := h.db.ListVideoLayouts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list layouts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"layouts": layouts})
}

// SelectLayout handles POST /v1/projects/{id}/select-layout
func (h *Handler) SelectLayout(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromURL(w, r)
	if !ok {
		return
	}

	var req models.SelectLayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	layout, err := h.db.GetVideoLayout(r.Context(), req.LayoutID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Layout not found")
		return
	}

	next, err := models.Transition(project.Status, models.EventConfigure)
	if err != nil {
		respondError(w, http.StatusConflict, "Project can no longer be configured")
		return
	}

	project.LayoutID = &layout.ID
	project.LayoutName = &layout.Name
	project.Status = next

	if err := h.persistProject(r, project); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save layout")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// StartGeneration handles POST /v1/projects/{id}/generate.
//
// Order matters here: the credit is consumed before the status edge, and the
// status edge is conditional, so double-submits cost at most one credit (the
// loser of the edge gets its credit back).
func (h *Handler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	project, ok := h.projectFromURL(w, r)
	if !ok {
		return
	}

	if project.FinalScript == nil || *project.FinalScript == "" {
		respondError(w, http.StatusBadRequest, "Generate a script before starting")
		return
	}
	if project.ActorID == nil || project.VoiceID == nil {
		respondError(w, http.StatusBadRequest, "Select an actor and voice before starting")
		return
	}
	if project.LayoutID == nil {
		respondError(w, http.StatusBadRequest, "Select a layout before starting")
		return
	}
	if len(project.Assets) == 0 {
		respondError(w, http.StatusBadRequest, "Upload at least one asset before starting")
		return
	}

	consumed, err := h.db.ConsumeCredit(r.Context(), project.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to check credits")
		return
	}
	if !consumed {
		respondError(w, http.StatusForbidden, "Insufficient credits")
		return
	}

	started, err := h.db.TransitionProjectStatus(r.Context(), project.ID, models.EventStartGeneration)
	if err != nil {
		h.refundCredit(r, project.UserID)
		respondError(w, http.StatusInternalServerError, "Failed to start generation")
		return
	}
	if !started {
		h.refundCredit(r, project.UserID)
		respondError(w, http.StatusConflict, "Generation already started or project not ready")
		return
	}

	project.Status = models.StatusProcessing
	project.Touch()
	h.store.Put(project.ID, project)

	if err := h.queue.EnqueueVoiceLipsync(r.Context(), project.ID); err != nil {
		h.refundCredit(r, project.UserID)
		respondError(w, http.StatusInternalServerError, "Failed to schedule generation")
		return
	}
	if err := h.queue.EnqueueAssetMontage(r.Context(), project.ID); err != nil {
		// Branch A is already running; it will fail the project on its own
		// if this branch never produces a montage.
		log.Printf("[API] failed to enqueue montage for project %s: %v", project.ID, err)
	}

	respondJSON(w, http.StatusAccepted, models.StartGenerationResponse{
		GenerationStarted: true,
		Message:           "Video generation started",
	})
}

func (h *Handler) refundCredit(r *http.Request, uid uuid.UUID) {
	if err := h.db.AddCredits(r.Context(), uid, 1); err != nil {
		log.Printf("[API] failed to refund credit for user %s: %v", uid, err)
	}
}

// GetProjectStatus handles GET /v1/projects/{id}/status
func (h *Handler) GetProjectStatus(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	// Status reads go to the database: it is the authority once the pipeline
	// is writing from worker goroutines.
	project, err := h.db.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to load project")
		}
		return
	}

	respondJSON(w, http.StatusOK, models.ProjectStatusResponse{
		Status:        project.Status,
		Message:       statusMessage(project.Status),
		FinalVideoURL: project.FinalVideoURL,
		ErrorMessage:  project.ErrorMessage,
	})
}

// GetUserCredits handles GET /v1/users/credits
func (h *Handler) GetUserCredits(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid or missing user")
		return
	}

	user, err := h.db.GetUser(r.Context(), uid)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to load user")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"credits": user.Credits})
}

// statusMessage maps a pipeline status to the text the polling client shows.
func statusMessage(status models.ProjectStatus) string {
	switch status {
	case models.StatusCreated, models.StatusDraft:
		return "Project is being configured"
	case models.StatusProcessing:
		return "Generating voice-over"
	case models.StatusVoiceOverReady:
		return "Voice-over ready, preparing actor video"
	case models.StatusActorGenerationStarted:
		return "Rendering actor video"
	case models.StatusActorGenerationDone:
		return "Actor video ready, waiting for asset montage"
	case models.StatusAssetsVideoStarted:
		return "Rendering asset montage"
	case models.StatusVideoEditing:
		return "Assembling final video"
	case models.StatusCaptionsAddition:
		return "Adding captions"
	case models.StatusUpload:
		return "Uploading final video"
	case models.StatusCompleted:
		return "Your video is ready"
	default:
		if models.IsTerminal(status) {
			return "Video generation failed"
		}
		return "Processing"
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
