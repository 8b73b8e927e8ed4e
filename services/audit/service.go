package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/portal/models"
	"github.com/upb/portal/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when recording before Start
	ErrNotStarted = errors.New("access recorder not started")
	// ErrBufferFull is returned when the event buffer is saturated
	ErrBufferFull = errors.New("access event buffer full")
)

// Recorder persists access events asynchronously so that the request path
// never waits on the database. A nil *Recorder drops everything silently.
type Recorder struct {
	repo        repositories.AccessEventRepository
	logger      *zap.Logger
	eventChan   chan *models.AccessEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1024,
		WorkerCount: 2,
	}
}

// NewRecorder creates a new Recorder instance
func NewRecorder(repo repositories.AccessEventRepository, logger *zap.Logger, config Config) *Recorder {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	return &Recorder{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.AccessEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Recorder) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("access recorder already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started access recorder",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop drains pending events, waiting at most timeout
func (s *Recorder) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping access recorder", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("access recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("access recorder stop timeout after %v", timeout)
	}
}

// Record queues an event without blocking. Full buffers drop the event.
func (s *Recorder) Record(event *models.AccessEvent) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("access event channel full, dropping event",
			zap.String("decision", string(event.Decision)),
			zap.String("path", event.Path))
		return ErrBufferFull
	}
}

func (s *Recorder) worker(id int) {
	defer s.wg.Done()

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to persist access event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("decision", string(event.Decision)),
				zap.String("request_id", event.RequestID))
		}
	}
}

func (s *Recorder) processEvent(event *models.AccessEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.repo.Insert(ctx, event)
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// GetStats returns statistics about the recorder
func (s *Recorder) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}
