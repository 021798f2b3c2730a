package notify

import (
	"context"
	"log"

	"github.com/reelami/reelads/internal/models"
)

// Notifier delivers a completion or failure notice for one project.
// Implementations are best-effort: a delivery failure is logged and never
// fails the pipeline.
type Notifier interface {
	ProjectCompleted(ctx context.Context, project *models.Project, userEmail string) error
	ProjectFailed(ctx context.Context, project *models.Project, userEmail, reason string) error
}

// Dispatcher fans a notice out to every configured notifier.
type Dispatcher struct {
	notifiers []Notifier
}

func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

// ProjectCompleted sends completion notices. Errors are logged, not returned;
// notification delivery never blocks or fails the pipeline.
func (d *Dispatcher) ProjectCompleted(ctx context.Context, project *models.Project, userEmail string) {
	for _, n := range d.notifiers {
		if err := n.ProjectCompleted(ctx, project, userEmail); err != nil {
			log.Printf("[Notify] completion notice failed (project=%s): %v", project.ID, err)
		}
	}
}

// ProjectFailed sends failure notices, same delivery semantics as completion.
func (d *Dispatcher) ProjectFailed(ctx context.Context, project *models.Project, userEmail, reason string) {
	for _, n := range d.notifiers {
		if err := n.ProjectFailed(ctx, project, userEmail, reason); err != nil {
			log.Printf("[Notify] failure notice failed (project=%s): %v", project.ID, err)
		}
	}
}
