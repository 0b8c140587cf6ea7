package tasks

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/internal/storage"
)

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*ScheduledTask
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*ScheduledTask)}
}

func (s *memTaskStore) Create(_ context.Context, task *ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memTaskStore) Get(_ context.Context, id string) (*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTaskStore) List(_ context.Context) ([]*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ScheduledTask
	for _, t := range s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memTaskStore) ListDue(_ context.Context, now time.Time) ([]*ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*ScheduledTask
	for _, t := range s.tasks {
		if t.Status == TaskStatusActive && !t.NextRunAt.After(now) {
			cp := *t
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *memTaskStore) Update(_ context.Context, task *ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *memTaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

type recordingInvoker struct {
	mu   sync.Mutex
	runs []string
	done chan struct{}
}

func (r *recordingInvoker) RunScheduledTurn(_ context.Context, task *ScheduledTask) error {
	r.mu.Lock()
	r.runs = append(r.runs, task.ID)
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
	return nil
}

func (r *recordingInvoker) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func schedulerLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

func TestSchedulerRunsDueTask(t *testing.T) {
	store := newMemTaskStore()
	store.Create(context.Background(), &ScheduledTask{
		ID:          "t1",
		GroupFolder: "family",
		Schedule:    "@every 1h",
		Prompt:      "check in",
		Status:      TaskStatusActive,
		NextRunAt:   time.Now().Add(-time.Second),
	})

	invoker := &recordingInvoker{done: make(chan struct{}, 1)}
	s := NewScheduler(store, invoker, SchedulerConfig{PollInterval: 10 * time.Millisecond}, schedulerLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-invoker.done:
	case <-time.After(5 * time.Second):
		t.Fatal("due task never ran")
	}
	s.Stop()

	got, err := store.Get(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.NextRunAt.After(time.Now()) {
		t.Errorf("NextRunAt = %v, task was not rescheduled into the future", got.NextRunAt)
	}
	if got.LastRunAt == nil {
		t.Error("LastRunAt not recorded")
	}
}

func TestSchedulerReschedulesBeforeRunning(t *testing.T) {
	// A task still due on the next poll means the pre-run reschedule failed
	// and a slow turn would fire twice.
	store := newMemTaskStore()
	store.Create(context.Background(), &ScheduledTask{
		ID:          "t1",
		GroupFolder: "family",
		Schedule:    "@every 1h",
		Prompt:      "check in",
		Status:      TaskStatusActive,
		NextRunAt:   time.Now().Add(-time.Second),
	})

	invoker := &recordingInvoker{done: make(chan struct{}, 1)}
	s := NewScheduler(store, invoker, SchedulerConfig{PollInterval: 10 * time.Millisecond}, schedulerLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-invoker.done:
	case <-time.After(5 * time.Second):
		t.Fatal("due task never ran")
	}
	// Give the poller several more ticks to (incorrectly) re-fire.
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if n := invoker.runCount(); n != 1 {
		t.Errorf("task ran %d times, want 1", n)
	}
}

func TestSchedulerPausesUnparseableTask(t *testing.T) {
	// A stored schedule can go bad if written by an older build; the
	// scheduler must quarantine it instead of retrying forever.
	store := newMemTaskStore()
	store.Create(context.Background(), &ScheduledTask{
		ID:          "bad",
		GroupFolder: "family",
		Schedule:    "not a schedule",
		Prompt:      "x",
		Status:      TaskStatusActive,
		NextRunAt:   time.Now().Add(-time.Second),
	})

	invoker := &recordingInvoker{done: make(chan struct{}, 1)}
	s := NewScheduler(store, invoker, SchedulerConfig{PollInterval: 10 * time.Millisecond}, schedulerLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		got, err := store.Get(context.Background(), "bad")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == TaskStatusPaused {
			break
		}
		select {
		case <-deadline:
			t.Fatal("unparseable task never paused")
		case <-time.After(10 * time.Millisecond):
		}
	}
	s.Stop()

	if n := invoker.runCount(); n != 0 {
		t.Errorf("unparseable task ran %d times, want 0", n)
	}
}
