// Package worker runs the background side of tile loading: a pool of
// workers shared by every tile source, each running its tasks one at a
// time by priority.
package worker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"sync"

	"github.com/jaennil/guide_helper/tilestream/internal/message"
	"github.com/jaennil/guide_helper/tilestream/internal/transfer"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/tilestream/pkg/metrics"
)

var ErrAlreadyAcquired = errors.New("owner already holds the worker pool")

// Handlers are the tasks a worker answers. The last worker of the pool is
// reserved for storage and gets the Storage set; the rest get Fungible.
type Handlers struct {
	Fungible map[string]message.Handler
	Storage  map[string]message.Handler
}

func (h Handlers) forWorker(storage bool) map[string]message.Handler {
	src := h.Fungible
	if storage {
		src = h.Storage
	}
	out := maps.Clone(src)
	if out == nil {
		out = make(map[string]message.Handler, 1)
	}
	out[message.TaskCheckIfReady] = func(_ context.Context, _ any) (any, error) {
		return true, nil
	}
	return out
}

var _ message.Pool = (*Pool)(nil)

// Size is the number of workers a pool capped at limit runs.
func Size(limit int) int {
	return max(2, min(runtime.NumCPU(), limit))
}

// Pool is reference counted by owner. Workers start on the first Acquire
// and stop when the last owner releases them. Each owner gets its own
// channel to every worker; tasks from all owners share the worker's
// scheduler.
type Pool struct {
	size     int
	registry *transfer.Registry
	handlers Handlers
	log      logger.Logger

	mu      sync.Mutex
	workers []*message.Scheduler
	owners  map[string][]*message.Actor
}

func NewPool(limit int, reg *transfer.Registry, handlers Handlers, l logger.Logger) *Pool {
	return &Pool{
		size:     Size(limit),
		registry: reg,
		handlers: handlers,
		log:      logger.OrNop(l),
		owners:   make(map[string][]*message.Actor),
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Acquire returns one port per worker for owner, the storage worker last.
func (p *Pool) Acquire(owner string) ([]*message.Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.owners[owner]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyAcquired, owner)
	}
	if p.workers == nil {
		p.workers = make([]*message.Scheduler, p.size)
		for i := range p.workers {
			p.workers[i] = message.NewScheduler()
		}
		metrics.WorkersActive.Set(float64(p.size))
		p.log.Info("worker pool started", "workers", p.size)
	}

	ports := make([]*message.Port, p.size)
	actors := make([]*message.Actor, p.size)
	for i, sched := range p.workers {
		storage := i == p.size-1
		name := fmt.Sprintf("worker %d", i)
		if storage {
			name = "storage worker"
		}
		local, remote := message.NewChannel()
		actors[i] = message.NewActor(name, remote, p.registry,
			message.WithHandlers(p.handlers.forWorker(storage)),
			message.WithQueueAll(),
			message.WithScheduler(sched),
			message.WithLogger(p.log),
		)
		ports[i] = local
	}
	p.owners[owner] = actors
	p.log.Debug("worker pool acquired", "owner", owner, "owners", len(p.owners))
	return ports, nil
}

// Release drops owner's channels. Unknown owners are ignored.
func (p *Pool) Release(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actors, ok := p.owners[owner]
	if !ok {
		return
	}
	for _, a := range actors {
		a.Remove()
	}
	delete(p.owners, owner)
	p.log.Debug("worker pool released", "owner", owner, "owners", len(p.owners))

	if len(p.owners) == 0 {
		p.stop()
	}
}

// Close releases every owner.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for owner, actors := range p.owners {
		for _, a := range actors {
			a.Remove()
		}
		delete(p.owners, owner)
	}
	p.stop()
}

// Running reports whether workers are started.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers != nil
}

func (p *Pool) stop() {
	if p.workers == nil {
		return
	}
	for _, s := range p.workers {
		s.Remove()
	}
	p.workers = nil
	metrics.WorkersActive.Set(0)
	p.log.Info("worker pool stopped")
}
