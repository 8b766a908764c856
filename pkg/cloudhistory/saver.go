package cloudhistory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSaveQueue   = 32
	DefaultSaveWorkers = 2
)

// SaveFunc performs one write attempt.
type SaveFunc func(ctx context.Context, rec SaveRecord) error

// Saver runs cloud writes on a fixed number of workers fed by a bounded
// queue. Enqueue never blocks; when the queue is full the record is dropped.
type Saver struct {
	save    SaveFunc
	timeout time.Duration
	workers int

	mu     sync.RWMutex
	queue  chan SaveRecord
	closed bool

	eg      *errgroup.Group
	dropped atomic.Int64
}

type SaverSettings struct {
	QueueSize int
	Workers   int
	// Timeout bounds each write.
	Timeout time.Duration
}

func NewSaver(save SaveFunc, s SaverSettings) *Saver {
	if s.QueueSize <= 0 {
		s.QueueSize = DefaultSaveQueue
	}
	if s.Workers <= 0 {
		s.Workers = DefaultSaveWorkers
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return &Saver{
		save:    save,
		timeout: s.Timeout,
		workers: s.Workers,
		queue:   make(chan SaveRecord, s.QueueSize),
	}
}

// Start launches the workers. They exit once Close has drained the queue.
func (s *Saver) Start() {
	s.eg = &errgroup.Group{}
	for i := 0; i < s.workers; i++ {
		s.eg.Go(func() error {
			for rec := range s.queue {
				s.run(rec)
			}
			return nil
		})
	}
}

func (s *Saver) run(rec SaveRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.save(ctx, rec); err != nil {
		log.Warn().Err(err).Str("conversation_id", rec.UserID).Str("role", rec.Role).Msg("cloud save failed")
	}
}

// Enqueue reports whether rec was accepted.
func (s *Saver) Enqueue(rec SaveRecord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		log.Warn().Str("conversation_id", rec.UserID).Msg("saver closed, dropping cloud save")
		return false
	}
	select {
	case s.queue <- rec:
		return true
	default:
		s.dropped.Add(1)
		log.Warn().
			Str("conversation_id", rec.UserID).
			Str("role", rec.Role).
			Int("queue", cap(s.queue)).
			Msg("cloud save queue full, dropping")
		return false
	}
}

// Dropped counts records rejected because the queue was full.
func (s *Saver) Dropped() int64 { return s.dropped.Load() }

// Pending is the number of queued, not yet started saves.
func (s *Saver) Pending() int { return len(s.queue) }

// Close stops accepting saves and waits for queued ones until ctx is done.
func (s *Saver) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	if s.eg == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.eg.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%d cloud saves abandoned", len(s.queue))
	}
}
