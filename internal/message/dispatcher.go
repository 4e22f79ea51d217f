package message

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jaennil/guide_helper/tilestream/internal/transfer"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
)

// TaskCheckIfReady is answered by every worker once it accepts tasks.
const TaskCheckIfReady = "checkIfReady"

var ErrNoWorkers = errors.New("worker pool returned no workers")

// Pool hands out one channel per worker to each owner. The last port is
// the reserved storage worker.
type Pool interface {
	Acquire(owner string) ([]*Port, error)
	Release(owner string)
}

// Dispatcher owns one actor per pooled worker for a single tile source.
type Dispatcher struct {
	id      string
	pool    Pool
	actors  []*Actor
	next    atomic.Uint64
	ready   atomic.Bool
	log     logger.Logger
	removed sync.Once
}

func NewDispatcher(pool Pool, reg *transfer.Registry, l logger.Logger) (*Dispatcher, error) {
	l = logger.OrNop(l)
	id := uuid.NewString()

	ports, err := pool.Acquire(id)
	if err != nil {
		return nil, fmt.Errorf("acquire workers: %w", err)
	}
	if len(ports) == 0 {
		pool.Release(id)
		return nil, ErrNoWorkers
	}

	d := &Dispatcher{id: id, pool: pool, log: l}
	for i, p := range ports {
		name := fmt.Sprintf("worker %d", i)
		if i == len(ports)-1 {
			name = "storage worker"
		}
		d.actors = append(d.actors, NewActor(name, p, reg, WithLogger(l)))
	}

	d.Broadcast(TaskCheckIfReady, nil, func(_ []any, err error) {
		if err != nil {
			l.Warn("workers failed readiness check", "dispatcher", id, "error", err)
			return
		}
		d.ready.Store(true)
		l.Debug("workers ready", "dispatcher", id, "count", len(d.actors))
	})
	return d, nil
}

func (d *Dispatcher) ID() string {
	return d.id
}

// Ready reports whether every worker answered the readiness broadcast.
func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Actor returns the next fungible actor in round-robin order.
func (d *Dispatcher) Actor() Sender {
	fungible := len(d.actors) - 1
	if fungible < 1 {
		return d.actors[0]
	}
	n := d.next.Add(1)
	return d.actors[int(n%uint64(fungible))]
}

// StorageActor returns the actor of the reserved storage worker.
func (d *Dispatcher) StorageActor() Sender {
	return d.actors[len(d.actors)-1]
}

// Broadcast sends the task to every actor. cb gets the results in actor
// order once all have answered, with the first error seen.
func (d *Dispatcher) Broadcast(taskType string, data any, cb func([]any, error)) {
	if cb == nil {
		cb = func([]any, error) {}
	}

	var (
		mu        sync.Mutex
		results   = make([]any, len(d.actors))
		remaining = len(d.actors)
		firstErr  error
	)
	done := func(i int, v any, err error) {
		mu.Lock()
		results[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
		remaining--
		last := remaining == 0
		mu.Unlock()
		if last {
			cb(results, firstErr)
		}
	}

	for i, a := range d.actors {
		if _, err := a.Send(taskType, data, func(v any, err error) { done(i, v, err) }, false, nil); err != nil {
			done(i, nil, err)
		}
	}
}

// BroadcastWait is Broadcast for callers that can block.
func (d *Dispatcher) BroadcastWait(ctx context.Context, taskType string, data any) ([]any, error) {
	results := make([]any, len(d.actors))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range d.actors {
		g.Go(func() error {
			v, err := a.Request(gctx, taskType, data, false, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", a.Name(), err)
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Remove closes every actor and releases the pool.
func (d *Dispatcher) Remove() {
	d.removed.Do(func() {
		for _, a := range d.actors {
			a.Remove()
		}
		d.pool.Release(d.id)
	})
}
