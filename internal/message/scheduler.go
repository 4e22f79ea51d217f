package message

import (
	"sync"

	"github.com/jaennil/guide_helper/tilestream/pkg/metrics"
)

// Cancelable is returned by operations that can be called off.
// Cancel is idempotent.
type Cancelable interface {
	Cancel()
}

type CancelFunc func()

func (f CancelFunc) Cancel() { f() }

// Metadata travels with a task and sets its priority.
type Metadata struct {
	Type string
	Zoom int
}

// Priority is 100 - zoom: deeper tiles run first.
func (m Metadata) Priority() int {
	return 100 - m.Zoom
}

type task struct {
	id       uint64
	fn       func()
	priority int
}

// Scheduler runs at most one task per tick on its invoker goroutine, the
// task with the lowest priority value first and equal priorities in the
// order they were added.
type Scheduler struct {
	mu      sync.Mutex
	nextID  uint64
	tasks   []*task
	invoker *ThrottledInvoker
	removed bool
}

func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.invoker = NewThrottledInvoker(s.process)
	return s
}

// Add queues fn. Cancelling before fn is picked removes it; afterwards it
// is a no-op.
func (s *Scheduler) Add(fn func(), md Metadata) Cancelable {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return CancelFunc(func() {})
	}
	id := s.nextID
	s.nextID++
	s.tasks = append(s.tasks, &task{id: id, fn: fn, priority: md.Priority()})
	s.mu.Unlock()

	metrics.SchedulerQueued.Inc()
	s.invoker.Trigger()

	return CancelFunc(func() { s.cancel(id) })
}

func (s *Scheduler) cancel(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks {
		if t.id == id {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			metrics.SchedulerQueued.Dec()
			return
		}
	}
}

func (s *Scheduler) process() {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return
	}
	best := 0
	for i, t := range s.tasks {
		if t.priority < s.tasks[best].priority {
			best = i
		}
	}
	t := s.tasks[best]
	s.tasks = append(s.tasks[:best], s.tasks[best+1:]...)
	more := len(s.tasks) > 0
	s.mu.Unlock()

	metrics.SchedulerQueued.Dec()
	if more {
		s.invoker.Trigger()
	}
	t.fn()
}

// Len is the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Remove drops queued tasks and stops the invoker.
func (s *Scheduler) Remove() {
	s.mu.Lock()
	metrics.SchedulerQueued.Sub(float64(len(s.tasks)))
	s.tasks = nil
	s.removed = true
	s.mu.Unlock()
	s.invoker.Remove()
}
