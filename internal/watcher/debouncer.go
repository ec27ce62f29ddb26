package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/unify/internal/logging"
	"github.com/google/uuid"
)

// Batch is one debounced group of changes, in discovery order.
type Batch struct {
	ID        string
	Events    []ChangeEvent
	CreatedAt time.Time
}

// Paths returns the changed paths in order.
func (b Batch) Paths() []string {
	out := make([]string, len(b.Events))
	for i, e := range b.Events {
		out[i] = e.Path
	}
	return out
}

// BatchHandler consumes a batch. ctx is cancelled when a newer batch is
// emitted or the watcher stops; handlers check it between files.
type BatchHandler func(ctx context.Context, batch Batch) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	logger  logging.Logger
	mutex   sync.Mutex
	timer   *time.Timer
	index   map[string]int
	pending []ChangeEvent
	handler BatchHandler
	parent  context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration, logger logging.Logger) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Debouncer{
		delay:  delay,
		logger: logger,
		index:  make(map[string]int),
		parent: context.Background(),
	}
}

// SetHandler sets the batch consumer.
func (d *Debouncer) SetHandler(handler BatchHandler) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.handler = handler
}

// Start makes batch tokens children of ctx.
func (d *Debouncer) Start(ctx context.Context) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.parent = ctx
	d.stopped = false
}

// Add records an event and restarts the quiet period. A later event for a
// path replaces the earlier one but keeps its position; a file created and
// then written in one window is still reported as an addition.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	if i, ok := d.index[event.Path]; ok {
		prev := d.pending[i]
		if prev.IsAddition && !event.IsDeletion {
			event.IsAddition = true
			event.Type = EventTypeCreated
		}
		d.pending[i] = event
	} else {
		d.index[event.Path] = len(d.pending)
		d.pending = append(d.pending, event)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

// Pending returns how many paths wait for the next batch.
func (d *Debouncer) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}

	batch := Batch{
		ID:        uuid.NewString(),
		Events:    d.pending,
		CreatedAt: time.Now(),
	}
	d.pending = nil
	d.index = make(map[string]int)
	d.timer = nil

	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel
	handler := d.handler
	d.mutex.Unlock()

	defer cancel()
	if handler == nil {
		return
	}

	d.logger.Debug(ctx, "emitting batch", "batch_id", batch.ID, "changes", len(batch.Events))
	if err := handler(ctx, batch); err != nil {
		d.logger.Error(ctx, err, "batch handler failed", "batch_id", batch.ID)
	}
}

// Stop cancels the active token, stops the timer and drops pending events.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pending = nil
	d.index = make(map[string]int)
}
