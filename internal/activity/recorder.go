// Package activity пишет журнал действий пользователей. События уходят
// в буферизованный канал и сохраняются фоновым обработчиком, ошибки
// записи только логируются.
package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kurodrive/internal/domain"
	"kurodrive/internal/logging"
	"kurodrive/internal/metrics"
	"kurodrive/internal/repository"
)

const (
	DefaultBuffer = 1024
	unknownIP     = "unknown"
	writeTimeout  = 5 * time.Second
)

type Event struct {
	ActorID      string
	ActorName    string
	Action       domain.Action
	ResourceKind domain.ResourceKind
	ResourceName string
	SourceIP     string
}

// Recorder принимает события без ожидания и без возврата ошибки.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

type Sink interface {
	Append(ctx context.Context, e *domain.ActivityLogEntry) error
}

type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// StoreSink сохраняет записи в хранилище метаданных.
type StoreSink struct {
	store repository.Store
}

func NewStoreSink(store repository.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Append(ctx context.Context, e *domain.ActivityLogEntry) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Activity().Append(ctx, e)
	})
}

type AsyncRecorder struct {
	sink    Sink
	logger  logging.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan *domain.ActivityLogEntry
	done   chan struct{}
}

func NewAsyncRecorder(sink Sink, buffer int, logger logging.Logger, m metrics.Recorder) *AsyncRecorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &AsyncRecorder{
		sink:    sink,
		logger:  logger.With("component", "activity"),
		metrics: m,
		now:     time.Now,
		queue:   make(chan *domain.ActivityLogEntry, buffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *AsyncRecorder) Record(ctx context.Context, e Event) {
	entry := &domain.ActivityLogEntry{
		ID:           uuid.New(),
		ActorID:      e.ActorID,
		ActorName:    e.ActorName,
		Action:       e.Action,
		ResourceKind: e.ResourceKind,
		ResourceName: e.ResourceName,
		SourceIP:     e.SourceIP,
		CreatedAt:    r.now().UTC(),
	}
	if strings.TrimSpace(entry.SourceIP) == "" {
		entry.SourceIP = unknownIP
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(ctx, entry, "recorder closed")
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.drop(ctx, entry, "buffer full")
	}
}

func (r *AsyncRecorder) drop(ctx context.Context, e *domain.ActivityLogEntry, reason string) {
	r.metrics.ActivityDropped()
	r.logger.Warn(ctx, "activity entry dropped",
		"reason", reason, "action", e.Action, "actor_id", e.ActorID)
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.Append(ctx, e); err != nil {
			r.logger.Error(ctx, "failed to write activity entry",
				"action", e.Action, "actor_id", e.ActorID, "error", err)
		}
		cancel()
	}
}

// Close перестаёт принимать события и ждёт, пока очередь будет записана
// или истечёт ctx.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
