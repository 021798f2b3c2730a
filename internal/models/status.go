package models

import (
	"errors"
	"fmt"
)

// ProjectStatus is the single status field the whole pipeline advances through.
type ProjectStatus string

const (
	StatusCreated    ProjectStatus = "created"
	StatusDraft      ProjectStatus = "draft"
	StatusProcessing ProjectStatus = "processing"

	// Branch A: voice-over then external lip-sync render
	StatusVoiceOverReady          ProjectStatus = "voice_over_ready"
	StatusVoiceOverFailed         ProjectStatus = "voice_over_failed"
	StatusActorGenerationStarted  ProjectStatus = "actor_generation_started"
	StatusActorGenerationDone     ProjectStatus = "actor_generation_completed"
	StatusActorGenerationFailed   ProjectStatus = "actor_generation_failed"
	StatusActorGenerationCanceled ProjectStatus = "actor_generation_cancelled"

	// Branch B: asset montage render. Completion is recorded by the presence
	// of Project.AssetMontagePath, not by a dedicated status value.
	StatusAssetsVideoStarted ProjectStatus = "assets_video_generation_started"
	StatusAssetsVideoFailed  ProjectStatus = "assets_video_generation_failed"

	// Convergent post-processing
	StatusVideoEditing           ProjectStatus = "video_editing"
	StatusVideoEditingFailed     ProjectStatus = "video_editing_failed"
	StatusCaptionsAddition       ProjectStatus = "captions_addition"
	StatusCaptionsAdditionFailed ProjectStatus = "captions_addition_failed"
	StatusUpload                 ProjectStatus = "upload"
	StatusUploadFailed           ProjectStatus = "upload_failed"
	StatusCompleted              ProjectStatus = "completed"
	StatusFailed                 ProjectStatus = "failed"
)

// StatusEvent names a pipeline occurrence that may advance project status.
type StatusEvent string

const (
	EventConfigure        StatusEvent = "configure"
	EventStartGeneration  StatusEvent = "start_generation"
	EventVoiceOverReady   StatusEvent = "voice_over_ready"
	EventVoiceOverFailed  StatusEvent = "voice_over_failed"
	EventLipsyncSubmitted StatusEvent = "lipsync_submitted"
	EventLipsyncCompleted StatusEvent = "lipsync_completed"
	EventLipsyncFailed    StatusEvent = "lipsync_failed"
	EventLipsyncCanceled  StatusEvent = "lipsync_cancelled"
	EventMontageStarted   StatusEvent = "montage_started"
	EventMontageFailed    StatusEvent = "montage_failed"
	EventCombineStarted   StatusEvent = "combine_started"
	EventCombineFailed    StatusEvent = "combine_failed"
	EventCaptionsStarted  StatusEvent = "captions_started"
	EventCaptionsFailed   StatusEvent = "captions_failed"
	EventUploadStarted    StatusEvent = "upload_started"
	EventUploadFailed     StatusEvent = "upload_failed"
	EventCompleted        StatusEvent = "completed"
	EventEscalateFailure  StatusEvent = "escalate_failure"
)

// ErrInvalidTransition reports a status edge that is not in the transition
// table. These are programming errors and must surface loudly instead of
// silently overwriting status.
var ErrInvalidTransition = errors.New("invalid status transition")

type statusEdge struct {
	from []ProjectStatus
	to   ProjectStatus
}

// transitions enumerates every legal edge. The voice/lip-sync branch and the
// asset-montage branch interleave on the one status field, so branch-A events
// explicitly list StatusAssetsVideoStarted as a legal source and vice versa.
// Edges are enumerated, never inferred.
var transitions = map[StatusEvent]statusEdge{
	EventConfigure: {
		from: []ProjectStatus{StatusCreated, StatusDraft},
		to:   StatusDraft,
	},
	EventStartGeneration: {
		from: []ProjectStatus{StatusDraft},
		to:   StatusProcessing,
	},
	EventVoiceOverReady: {
		from: []ProjectStatus{StatusProcessing, StatusAssetsVideoStarted},
		to:   StatusVoiceOverReady,
	},
	EventVoiceOverFailed: {
		from: []ProjectStatus{StatusProcessing, StatusAssetsVideoStarted},
		to:   StatusVoiceOverFailed,
	},
	EventLipsyncSubmitted: {
		from: []ProjectStatus{StatusVoiceOverReady, StatusAssetsVideoStarted},
		to:   StatusActorGenerationStarted,
	},
	EventLipsyncCompleted: {
		from: []ProjectStatus{StatusActorGenerationStarted, StatusAssetsVideoStarted},
		to:   StatusActorGenerationDone,
	},
	EventLipsyncFailed: {
		from: []ProjectStatus{StatusVoiceOverReady, StatusActorGenerationStarted, StatusAssetsVideoStarted},
		to:   StatusActorGenerationFailed,
	},
	EventLipsyncCanceled: {
		from: []ProjectStatus{StatusActorGenerationStarted, StatusAssetsVideoStarted},
		to:   StatusActorGenerationCanceled,
	},
	EventMontageStarted: {
		from: []ProjectStatus{StatusProcessing, StatusVoiceOverReady, StatusActorGenerationStarted},
		to:   StatusAssetsVideoStarted,
	},
	EventMontageFailed: {
		from: []ProjectStatus{StatusAssetsVideoStarted, StatusVoiceOverReady, StatusActorGenerationStarted, StatusActorGenerationDone},
		to:   StatusAssetsVideoFailed,
	},
	// The single edge gating the convergent combine stage. Winning this
	// transition is what makes convergence idempotent under duplicate
	// webhooks and racing branches.
	EventCombineStarted: {
		from: []ProjectStatus{StatusActorGenerationDone},
		to:   StatusVideoEditing,
	},
	EventCombineFailed: {
		from: []ProjectStatus{StatusActorGenerationDone, StatusVideoEditing},
		to:   StatusVideoEditingFailed,
	},
	EventCaptionsStarted: {
		from: []ProjectStatus{StatusVideoEditing},
		to:   StatusCaptionsAddition,
	},
	EventCaptionsFailed: {
		from: []ProjectStatus{StatusCaptionsAddition},
		to:   StatusCaptionsAdditionFailed,
	},
	EventUploadStarted: {
		from: []ProjectStatus{StatusCaptionsAddition},
		to:   StatusUpload,
	},
	EventUploadFailed: {
		from: []ProjectStatus{StatusUpload},
		to:   StatusUploadFailed,
	},
	EventCompleted: {
		from: []ProjectStatus{StatusUpload},
		to:   StatusCompleted,
	},
	// Operators may collapse any stage-specific failure into the generic
	// terminal. This is the only edge leaving a failure state.
	EventEscalateFailure: {
		from: []ProjectStatus{
			StatusVoiceOverFailed, StatusActorGenerationFailed,
			StatusAssetsVideoFailed, StatusVideoEditingFailed,
			StatusCaptionsAdditionFailed, StatusUploadFailed,
		},
		to: StatusFailed,
	},
}

// Transition returns the status that follows current when event occurs, or
// ErrInvalidTransition if the edge is not in the table.
func Transition(current ProjectStatus, event StatusEvent) (ProjectStatus, error) {
	edge, ok := transitions[event]
	if !ok {
		return current, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, event)
	}
	for _, from := range edge.from {
		if from == current {
			return edge.to, nil
		}
	}
	return current, fmt.Errorf("%w: event %q not allowed from status %q", ErrInvalidTransition, event, current)
}

// EventTarget returns the status an event transitions into.
func EventTarget(event StatusEvent) ProjectStatus {
	return transitions[event].to
}

// EventSources returns every status an event may legally fire from. Used to
// build conditional status updates in the persistence layer.
func EventSources(event StatusEvent) []ProjectStatus {
	edge := transitions[event]
	out := make([]ProjectStatus, len(edge.from))
	copy(out, edge.from)
	return out
}

// IsTerminal reports whether a status is a sink: no pipeline work may run for
// the project once it is reached (escalation to the generic failed state is
// the one bookkeeping exception).
func IsTerminal(status ProjectStatus) bool {
	switch status {
	case StatusVoiceOverFailed, StatusActorGenerationFailed, StatusActorGenerationCanceled,
		StatusAssetsVideoFailed, StatusVideoEditingFailed, StatusCaptionsAdditionFailed,
		StatusUploadFailed, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
