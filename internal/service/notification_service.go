package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/herbtrace-api/internal/models"
	"github.com/noah-isme/herbtrace-api/pkg/jobs"
)

// EventPublisher delivers one fan-out event to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// LogEventPublisher writes events to the log. It stands in for Redis when Redis is disabled.
type LogEventPublisher struct {
	logger *zap.Logger
}

// NewLogEventPublisher constructs a log publisher.
func NewLogEventPublisher(logger *zap.Logger) *LogEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogEventPublisher) Publish(_ context.Context, event models.Event) error {
	p.logger.Info("event",
		zap.String("type", string(event.Type)),
		zap.String("action", event.Action),
		zap.String("lot_id", event.LotID),
		zap.String("message", event.Message),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

// NotificationConfig sizes the fan-out worker pool.
type NotificationConfig struct {
	Workers    int
	BufferSize int
}

// NotificationService fans events out asynchronously. Delivery is at-most-once: a failed
// publish is not retried and a full buffer drops the event.
type NotificationService struct {
	queue     *jobs.Queue
	publisher EventPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService wires the publisher behind a jobs queue.
func NewNotificationService(publisher EventPublisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = NewLogEventPublisher(logger)
	}
	svc := &NotificationService{
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 0,
		Logger:     logger,
	})
	return svc
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers. Buffered events are discarded.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Emit schedules the event for delivery and returns immediately.
func (s *NotificationService) Emit(event models.Event) {
	if s == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	err := s.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: string(event.Type), Payload: event})
	if err == nil {
		return
	}
	s.metrics.RecordNotification(NotificationDropped)
	if errors.Is(err, jobs.ErrQueueFull) {
		s.logger.Warn("notification buffer full, event dropped", zap.String("type", string(event.Type)), zap.String("lot_id", event.LotID))
		return
	}
	s.logger.Warn("notification not scheduled", zap.String("type", string(event.Type)), zap.Error(err))
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		return errors.New("notification job without event payload")
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.RecordNotification(NotificationFailed)
		return err
	}
	s.metrics.RecordNotification(NotificationPublished)
	return nil
}
