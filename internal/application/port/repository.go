package port

import (
	"context"
	"errors"

	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
)

var (
	// ErrWorkflowExists is returned when a project already has a workflow record
	ErrWorkflowExists = errors.New("workflow already exists")

	// ErrVersionConflict is returned when a workflow changed since it was loaded
	ErrVersionConflict = errors.New("workflow version conflict")
)

// WorkflowRepository persists one workflow record per project.
// GetByProjectID returns nil, nil when no record exists.
type WorkflowRepository interface {
	Create(ctx context.Context, state *entity.WorkflowState) error
	GetByProjectID(ctx context.Context, projectID string) (*entity.WorkflowState, error)

	// Save writes state only if the stored version equals state.Version, then
	// appends the given history events. On success state.Version is incremented.
	Save(ctx context.Context, state *entity.WorkflowState, appended []entity.HistoryEvent) error

	List(ctx context.Context) ([]*entity.WorkflowState, error)
}

// AgencyDirectory resolves agencies. Matches are ordered by creation time then id.
// GetByID and Find return nil, nil when nothing matches.
type AgencyDirectory interface {
	GetByID(ctx context.Context, id string) (*entity.Agency, error)
	Find(ctx context.Context, criteria entity.AgencyCriteria) (*entity.Agency, error)
	FindAll(ctx context.Context, criteria entity.AgencyCriteria, limit int) ([]*entity.Agency, error)
}

// AgencyRepository extends the directory with writes used by admin tooling
type AgencyRepository interface {
	AgencyDirectory
	Create(ctx context.Context, agency *entity.Agency) error
}

// NotificationRepository persists inter-agency messages
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id string) (*entity.Notification, error)
	ListByProject(ctx context.Context, projectID string) ([]*entity.Notification, error)
	ListPending(ctx context.Context, limit int) ([]*entity.Notification, error)
	MarkRelayed(ctx context.Context, id, chatMessageID string) error
	MarkSkipped(ctx context.Context, id, reason string) error
	// MarkFailed records a failed attempt; the message stays pending until
	// attempts reaches maxAttempts.
	MarkFailed(ctx context.Context, id, errMsg string, maxAttempts int) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
