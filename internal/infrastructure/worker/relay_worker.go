package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/pmajay-coordination/internal/application/port"
	"github.com/garyjia/pmajay-coordination/internal/domain/entity"
	"go.uber.org/zap"
)

// RelayWorkerConfig holds configuration for the chat relay worker
type RelayWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendTimeout  time.Duration
}

// DefaultRelayWorkerConfig returns default configuration
func DefaultRelayWorkerConfig() RelayWorkerConfig {
	return RelayWorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    20,
		MaxAttempts:  3,
		SendTimeout:  10 * time.Second,
	}
}

// RelayStats is a snapshot of worker counters
type RelayStats struct {
	Relayed       int       `json:"relayed"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	LastProcessed time.Time `json:"last_processed"`
	LastError     string    `json:"last_error,omitempty"`
}

// RelayWorker forwards pending inter-agency notifications to the recipient
// agency's Lark chat. Recording a notification never waits on this worker.
type RelayWorker struct {
	config RelayWorkerConfig

	notifications port.NotificationRepository
	agencies      port.AgencyDirectory
	relay         port.ChatRelay
	logger        *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	stats     RelayStats
}

// NewRelayWorker creates a new relay worker
func NewRelayWorker(
	config RelayWorkerConfig,
	notifications port.NotificationRepository,
	agencies port.AgencyDirectory,
	relay port.ChatRelay,
	logger *zap.Logger,
) *RelayWorker {
	defaults := DefaultRelayWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	return &RelayWorker{
		config:        config,
		notifications: notifications,
		agencies:      agencies,
		relay:         relay,
		logger:        logger,
	}
}

// Start begins the worker polling loop
func (w *RelayWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("relay worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("RelayWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_attempts", w.config.MaxAttempts))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the batch in flight
func (w *RelayWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("RelayWorker stopped",
		zap.Int("relayed", stats.Relayed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name for identification
func (w *RelayWorker) Name() string {
	return "RelayWorker"
}

// Stats returns the current counters
func (w *RelayWorker) Stats() RelayStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *RelayWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Relay loop context cancelled")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Failed to relay pending notifications", zap.Error(err))
			}
		}
	}
}

// RunOnce relays one batch of pending notifications and returns how many
// were picked up.
func (w *RelayWorker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.notifications.ListPending(ctx, w.config.BatchSize)
	if err != nil {
		w.recordError(err)
		return 0, fmt.Errorf("failed to list pending notifications: %w", err)
	}

	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}
		w.relayOne(ctx, n)
	}

	w.mu.Lock()
	w.stats.LastProcessed = time.Now()
	w.mu.Unlock()
	return len(pending), nil
}

func (w *RelayWorker) relayOne(ctx context.Context, n *entity.Notification) {
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("project_id", n.ProjectID),
		zap.String("from_agency", n.FromAgency),
		zap.String("to_agency", n.ToAgency),
	}

	recipient, err := w.agencies.GetByID(ctx, n.ToAgency)
	if err != nil {
		w.fail(ctx, n, fmt.Errorf("recipient lookup failed: %w", err), fields)
		return
	}
	if recipient == nil || recipient.ChatOpenID == "" {
		if err := w.notifications.MarkSkipped(ctx, n.ID, "recipient has no chat id"); err != nil {
			w.logger.Error("Failed to mark notification skipped", append(fields, zap.Error(err))...)
			return
		}
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()
		w.logger.Debug("Notification not relayed, recipient has no chat id", fields...)
		return
	}

	var sender string
	if from, err := w.agencies.GetByID(ctx, n.FromAgency); err == nil && from != nil {
		sender = from.Name
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	chatID, err := w.relay.SendText(sendCtx, recipient.ChatOpenID, FormatNotification(n, sender))
	cancel()
	if err != nil {
		w.fail(ctx, n, err, fields)
		return
	}

	if err := w.notifications.MarkRelayed(ctx, n.ID, chatID); err != nil {
		w.logger.Error("Failed to mark notification relayed", append(fields, zap.Error(err))...)
		return
	}
	w.mu.Lock()
	w.stats.Relayed++
	w.mu.Unlock()
	w.logger.Info("Notification relayed", append(fields, zap.String("chat_message_id", chatID))...)
}

func (w *RelayWorker) fail(ctx context.Context, n *entity.Notification, cause error, fields []zap.Field) {
	w.recordError(cause)
	w.logger.Warn("Failed to relay notification",
		append(fields, zap.Int("attempt", n.Attempts+1), zap.Error(cause))...)

	if err := w.notifications.MarkFailed(ctx, n.ID, cause.Error(), w.config.MaxAttempts); err != nil {
		w.logger.Error("Failed to record relay failure", append(fields, zap.Error(err))...)
		return
	}
	if n.Attempts+1 >= w.config.MaxAttempts {
		w.mu.Lock()
		w.stats.Failed++
		w.mu.Unlock()
	}
}

func (w *RelayWorker) recordError(err error) {
	w.mu.Lock()
	w.stats.LastError = err.Error()
	w.mu.Unlock()
}

// FormatNotification renders a notification as chat text
func FormatNotification(n *entity.Notification, senderName string) string {
	from := n.FromAgency
	if senderName != "" {
		from = fmt.Sprintf("%s (%s)", senderName, n.FromAgency)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", n.Priority, n.Subject)
	fmt.Fprintf(&b, "Project: %s\n", n.ProjectID)
	fmt.Fprintf(&b, "From: %s\n", from)
	fmt.Fprintf(&b, "Type: %s\n\n", n.Type)
	b.WriteString(n.Message)
	return b.String()
}
