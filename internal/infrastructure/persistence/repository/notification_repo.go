package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"github.com/garyjia/pmajay-coordination/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlite.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

const notificationColumns = `id, from_agency, to_agency, project_id, type, subject, message, priority,
	status, attempts, last_error, chat_message_id, created_at, updated_at, relayed_at`

// Create records a notification
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var relayedAt sql.NullTime
	if n.RelayedAt != nil {
		relayedAt = sql.NullTime{Time: n.RelayedAt.UTC(), Valid: true}
	}

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		n.ID,
		n.FromAgency,
		n.ToAgency,
		n.ProjectID,
		string(n.Type),
		n.Subject,
		n.Message,
		string(n.Priority),
		n.Status,
		n.Attempts,
		n.LastError,
		n.ChatMessage,
		n.CreatedAt.UTC(),
		n.UpdatedAt.UTC(),
		relayedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("project_id", n.ProjectID),
			zap.String("to_agency", n.ToAgency),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ListByProject returns a project's message thread, oldest first
func (r *NotificationRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE project_id = ? ORDER BY created_at, id`
	return r.query(ctx, query, projectID)
}

// ListPending returns messages awaiting relay, oldest first
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]*entity.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE status = ? ORDER BY created_at, id LIMIT ?`
	return r.query(ctx, query, entity.NotificationStatusPending, limit)
}

// MarkRelayed records successful chat delivery
func (r *NotificationRepository) MarkRelayed(ctx context.Context, id, chatMessageID string) error {
	now := r.now().UTC()
	query := `
		UPDATE notifications
		SET status = ?, chat_message_id = ?, attempts = attempts + 1, last_error = '',
			relayed_at = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, id, "relayed", query,
		entity.NotificationStatusRelayed, chatMessageID, now, now, id)
}

// MarkSkipped records that a message cannot be relayed
func (r *NotificationRepository) MarkSkipped(ctx context.Context, id, reason string) error {
	query := `UPDATE notifications SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	return r.update(ctx, id, "skipped", query,
		entity.NotificationStatusSkipped, reason, r.now().UTC(), id)
}

// MarkFailed counts a failed attempt and gives up at maxAttempts
func (r *NotificationRepository) MarkFailed(ctx context.Context, id, errMsg string, maxAttempts int) error {
	query := `
		UPDATE notifications
		SET attempts = attempts + 1,
			last_error = ?,
			status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, id, "failed", query,
		errMsg, maxAttempts, entity.NotificationStatusFailed, r.now().UTC(), id)
}

func (r *NotificationRepository) update(ctx context.Context, id, op, query string, args ...interface{}) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update notification",
			zap.String("id", id),
			zap.String("op", op),
			zap.Error(err))
		return fmt.Errorf("failed to mark notification %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(row rowScanner) (*entity.Notification, error) {
	var (
		n         entity.Notification
		typ       string
		priority  string
		relayedAt sql.NullTime
	)
	if err := row.Scan(
		&n.ID,
		&n.FromAgency,
		&n.ToAgency,
		&n.ProjectID,
		&typ,
		&n.Subject,
		&n.Message,
		&priority,
		&n.Status,
		&n.Attempts,
		&n.LastError,
		&n.ChatMessage,
		&n.CreatedAt,
		&n.UpdatedAt,
		&relayedAt,
	); err != nil {
		return nil, err
	}
	n.Type = entity.NotificationType(typ)
	n.Priority = entity.Priority(priority)
	if relayedAt.Valid {
		t := relayedAt.Time
		n.RelayedAt = &t
	}
	return &n, nil
}
