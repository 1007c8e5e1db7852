package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// RequestMeta is the request an audited event came from
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// AuditService records authentication events off the request path. Events are
// queued on a buffered channel and written by a pool of workers; a full
// buffer drops the event rather than slowing down login.
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	// mu guards started/stopped; senders hold it shared so Stop never closes
	// the channel under them
	mu      sync.RWMutex
	started bool
	stopped bool
}

var (
	// ErrNotRunning is returned when events are logged before Start or after Stop
	ErrNotRunning = errors.New("audit service not running")

	// ErrBufferFull is returned when an event is dropped
	ErrBufferFull = errors.New("audit event buffer full")
)

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize <= 0 || config.WorkerCount <= 0 {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits up to timeout for the queued ones to
// be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)))
		return ErrBufferFull
	}
}

// LogEventBlocking queues an event, waiting for buffer space until ctx is done
func (s *AuditService) LogEventBlocking(ctx context.Context, event *AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// LogLoginSucceeded records a successful login
func (s *AuditService) LogLoginSucceeded(identity models.Identity, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionLoginSucceeded).
		WithIdentity(identity).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogLoginFailed records a rejected login. The reason is kept in the audit
// trail only; the client always gets the same generic message.
func (s *AuditService) LogLoginFailed(email, reason string, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionLoginFailed).
		WithEmail(email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithDetails(map[string]string{"reason": reason})

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogLogout records a logout. identity is zero when the request carried no
// valid session.
func (s *AuditService) LogLogout(identity models.Identity, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionLogout).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if !identity.IsZero() {
		log.WithIdentity(identity)
	}

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogRegistered records a new account
func (s *AuditService) LogRegistered(identity models.Identity, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionRegistered).
		WithIdentity(identity).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithDetails(map[string]string{"role": string(identity.Role)})

	return s.LogEvent(&AuditEvent{Log: log})
}
