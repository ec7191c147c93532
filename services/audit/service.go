// Package audit records credential vault and tenant administration events
// without holding up the request that produced them.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/upb/tenant-gateway/models"
	"github.com/upb/tenant-gateway/repositories"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

var (
	// ErrNotRunning is returned when events are logged before Start or after Stop
	ErrNotRunning = errors.New("audit service not running")

	// ErrBufferFull is returned when the event buffer cannot take another entry
	ErrBufferFull = errors.New("audit event buffer full")
)

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo    repositories.AuditRepository
	logger       *zap.Logger
	eventChan    chan *models.AuditLog
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup

	// mu guards started/stopped and the channel close
	mu      sync.RWMutex
	started bool
	stopped bool

	dropped atomic.Int64
	failed  atomic.Int64
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Per-entry insert timeout
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	return &AuditService{
		auditRepo:    auditRepo,
		logger:       logger,
		eventChan:    make(chan *models.AuditLog, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
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

// Stop stops accepting events and waits for the pending ones to be written
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
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an entry without blocking. A full buffer drops the entry.
func (s *AuditService) LogEvent(log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.eventChan <- log:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("tenant_id", log.TenantID.String()))
		return ErrBufferFull
	}
}

// LogEventBlocking queues an entry, waiting for buffer space until ctx is done
func (s *AuditService) LogEventBlocking(ctx context.Context, log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotRunning
	}

	select {
	case s.eventChan <- log:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for log := range s.eventChan {
		if err := s.processEvent(log); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("tenant_id", log.TenantID.String()))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	return s.auditRepo.Insert(ctx, log)
}

// List returns a page of a tenant's audit trail, newest first. limit is
// clamped to [1, MaxPageSize]; zero selects DefaultPageSize.
func (s *AuditService) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.auditRepo.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	return logs, nil
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
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int   `json:"buffer_size"`
	PendingEvents int   `json:"pending_events"`
	WorkerCount   int   `json:"worker_count"`
	Started       bool  `json:"started"`
	Dropped       int64 `json:"dropped"`
	Failed        int64 `json:"failed"`
}
