package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/pkg/utils"
)

// ErrInvalidNotification is returned when an intent fails validation
var ErrInvalidNotification = errors.New("invalid notification")

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NotificationService records inter-agency messages and serves the project message thread
type NotificationService interface {
	port.NotificationEmitter
	Get(ctx context.Context, id string) (*entity.Notification, error)
	ListByProject(ctx context.Context, projectID string) ([]*entity.Notification, error)
}

type notificationServiceImpl struct {
	repo         port.NotificationRepository
	logger       Logger
	relayEnabled bool
	now          func() time.Time
}

// NewNotificationService creates a new NotificationService. When relayEnabled
// is set, new messages are queued for the chat relay worker.
func NewNotificationService(repo port.NotificationRepository, logger Logger, relayEnabled bool) NotificationService {
	return &notificationServiceImpl{
		repo:         repo,
		logger:       logger,
		relayEnabled: relayEnabled,
		now:          time.Now,
	}
}

func (s *notificationServiceImpl) Send(ctx context.Context, intent entity.NotificationIntent) (string, error) {
	intent.Subject = utils.SanitizeString(intent.Subject)
	intent.Message = utils.SanitizeString(intent.Message)
	if err := utils.ValidateStruct(intent); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}

	status := entity.NotificationStatusRecorded
	if s.relayEnabled {
		status = entity.NotificationStatusPending
	}

	n := entity.NewNotification(uuid.NewString(), intent, status, s.now().UTC())
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("Failed to record notification",
			"project_id", intent.ProjectID,
			"from_agency", intent.From,
			"to_agency", intent.To,
			"error", err,
		)
		return "", fmt.Errorf("create notification: %w", err)
	}

	s.logger.Info("Notification recorded",
		"notification_id", n.ID,
		"project_id", n.ProjectID,
		"from_agency", n.FromAgency,
		"to_agency", n.ToAgency,
		"type", n.Type,
		"priority", n.Priority,
		"status", n.Status,
	)
	return n.ID, nil
}

func (s *notificationServiceImpl) Get(ctx context.Context, id string) (*entity.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *notificationServiceImpl) ListByProject(ctx context.Context, projectID string) ([]*entity.Notification, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", ErrInvalidNotification)
	}
	list, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}
