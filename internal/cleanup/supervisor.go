package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tgdrive/filebot/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDelay = 15 * time.Minute
	// deleteTimeout bounds the delete calls of one task.
	deleteTimeout = 30 * time.Second
)

// Deleter removes a message from a chat.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

type task struct {
	chatID     int64
	messageIDs []int64
	timer      *time.Timer
}

// Supervisor owns one-shot delayed deletions. Tasks live only in memory;
// whatever is pending at Shutdown is dropped.
type Supervisor struct {
	deleter Deleter
	delay   time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*task
}

func NewSupervisor(ctx context.Context, deleter Deleter, delay time.Duration, logger *zap.Logger) *Supervisor {
	if delay <= 0 {
		delay = defaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Supervisor{
		deleter: deleter,
		delay:   delay,
		logger:  logger.Named("cleanup"),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*task),
	}
}

func (s *Supervisor) Delay() time.Duration {
	return s.delay
}

// Schedule queues the messages for deletion after the configured delay and
// returns the task id right away.
func (s *Supervisor) Schedule(chatID int64, messageIDs ...int64) string {
	id := uuid.NewString()
	t := &task{chatID: chatID, messageIDs: messageIDs}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return id
	}
	s.tasks[id] = t
	metrics.CleanupPending.Inc()
	s.wg.Add(1)
	t.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		if !s.take(id) {
			return
		}
		s.run(id, t)
	})
	return id
}

// take removes the task from the pending set. It reports false when the
// task was already cancelled.
func (s *Supervisor) take(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	metrics.CleanupPending.Dec()
	return s.ctx.Err() == nil
}

func (s *Supervisor) run(id string, t *task) {
	ctx, cancel := context.WithTimeout(s.ctx, deleteTimeout)
	defer cancel()

	var g errgroup.Group
	for _, msgID := range t.messageIDs {
		g.Go(func() error {
			err := s.deleter.DeleteMessage(ctx, t.chatID, msgID)
			metrics.CleanupDeletes.WithLabelValues(metrics.Result(err)).Inc()
			if err != nil {
				s.logger.Debug("delete failed",
					zap.String("task", id),
					zap.Int64("chat_id", t.chatID),
					zap.Int64("message_id", msgID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Debug("cleanup done", zap.String("task", id), zap.Int("messages", len(t.messageIDs)))
}

// Cancel stops a pending task. It reports whether the task was still pending.
func (s *Supervisor) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
		metrics.CleanupPending.Dec()
	}
	s.mu.Unlock()
	if ok && t.timer.Stop() {
		s.wg.Done()
	}
	return ok
}

func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown drops pending tasks and waits for running ones to finish.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.cancel()
	pending := s.tasks
	s.tasks = make(map[string]*task)
	metrics.CleanupPending.Sub(float64(len(pending)))
	s.mu.Unlock()

	dropped := 0
	for _, t := range pending {
		if t.timer.Stop() {
			s.wg.Done()
			dropped++
		}
	}
	s.wg.Wait()
	if dropped > 0 {
		s.logger.Info("dropped pending cleanups", zap.Int("count", dropped))
	}
}
