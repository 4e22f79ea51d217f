package message

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jaennil/guide_helper/tilestream/internal/transfer"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
)

var (
	ErrUnknownTask  = errors.New("unknown task type")
	ErrHandlerPanic = errors.New("task handler panicked")
	ErrActorRemoved = errors.New("actor removed")
)

// codes under which the errors above cross a channel
const (
	unknownTaskCode  = "unknown_task"
	handlerPanicCode = "handler_panic"
)

// Callback receives the result of a request. It is called at most once,
// and never after the request was cancelled.
type Callback func(result any, err error)

// Handler executes an inbound task.
type Handler func(ctx context.Context, payload any) (any, error)

// Sender is the requesting side of an actor.
type Sender interface {
	Send(taskType string, data any, cb Callback, mustQueue bool, md *Metadata) (Cancelable, error)
	Request(ctx context.Context, taskType string, data any, mustQueue bool, md *Metadata) (any, error)
	Name() string
}

type pending struct {
	cb Callback
	md Metadata
}

// Actor is one end of a channel. It sends tasks to the peer, resolves
// responses to the matching callbacks and runs inbound tasks through its
// handler map.
type Actor struct {
	name      string
	port      *Port
	registry  *transfer.Registry
	handlers  map[string]Handler
	queueAll  bool
	scheduler *Scheduler
	ownSched  bool
	log       logger.Logger

	mu        sync.Mutex
	callbacks map[string]pending
	queued    map[string]Cancelable

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type ActorOption func(*Actor)

// WithHandlers sets the tasks this actor answers.
func WithHandlers(h map[string]Handler) ActorOption {
	return func(a *Actor) { a.handlers = h }
}

// WithQueueAll routes every inbound message through the scheduler. Worker
// side actors use it so tasks run one at a time.
func WithQueueAll() ActorOption {
	return func(a *Actor) { a.queueAll = true }
}

// WithScheduler shares s between actors. The actor does not stop a shared
// scheduler on Remove.
func WithScheduler(s *Scheduler) ActorOption {
	return func(a *Actor) { a.scheduler = s }
}

func WithLogger(l logger.Logger) ActorOption {
	return func(a *Actor) { a.log = logger.OrNop(l) }
}

// NewActor starts listening on port.
func NewActor(name string, port *Port, reg *transfer.Registry, opts ...ActorOption) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		name:      name,
		port:      port,
		registry:  reg,
		log:       logger.Nop(),
		callbacks: make(map[string]pending),
		queued:    make(map[string]Cancelable),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.scheduler == nil {
		a.scheduler = NewScheduler()
		a.ownSched = true
	}
	reg.RegisterError(unknownTaskCode, ErrUnknownTask)
	reg.RegisterError(handlerPanicCode, ErrHandlerPanic)

	a.wg.Add(1)
	go a.listen()
	return a
}

func (a *Actor) Name() string {
	return a.name
}

// Send posts a task to the peer. Serialization failures are returned
// before anything is sent. The returned handle drops the callback and asks
// the peer to skip the task if it is still queued there.
func (a *Actor) Send(taskType string, data any, cb Callback, mustQueue bool, md *Metadata) (Cancelable, error) {
	var tl transfer.TransferList
	payload, err := a.registry.Serialize(data, &tl)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", taskType, err)
	}

	id := uuid.NewString()
	if cb != nil {
		p := pending{cb: cb, md: Metadata{Type: "message"}}
		if md != nil {
			p.md = *md
		}
		a.mu.Lock()
		a.callbacks[id] = p
		a.mu.Unlock()
	}

	err = a.port.Post(Message{
		ID:          id,
		Type:        taskType,
		HasCallback: cb != nil,
		MustQueue:   mustQueue,
		Data:        payload,
		Transfer:    tl,
	})
	if err != nil {
		a.dropCallback(id)
		return nil, fmt.Errorf("send %s: %w", taskType, err)
	}

	var once sync.Once
	return CancelFunc(func() {
		once.Do(func() {
			a.dropCallback(id)
			_ = a.port.Post(Message{ID: id, Type: TypeCancel})
		})
	}), nil
}

type reply struct {
	v   any
	err error
}

// Request sends a task and waits for its response or for ctx.
func (a *Actor) Request(ctx context.Context, taskType string, data any, mustQueue bool, md *Metadata) (any, error) {
	ch := make(chan reply, 1)
	c, err := a.Send(taskType, data, func(v any, err error) {
		ch <- reply{v: v, err: err}
	}, mustQueue, md)
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		c.Cancel()
		return nil, ctx.Err()
	case <-a.ctx.Done():
		return nil, ErrActorRemoved
	}
}

// Pending is the number of requests awaiting a response.
func (a *Actor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.callbacks)
}

// Remove closes the channel. Callbacks still pending are never called.
func (a *Actor) Remove() {
	a.once.Do(func() {
		a.cancel()
		a.port.Close()
		a.wg.Wait()

		a.mu.Lock()
		a.callbacks = make(map[string]pending)
		for id, c := range a.queued {
			c.Cancel()
			delete(a.queued, id)
		}
		a.mu.Unlock()

		if a.ownSched {
			a.scheduler.Remove()
		}
	})
}

func (a *Actor) dropCallback(id string) {
	a.mu.Lock()
	delete(a.callbacks, id)
	a.mu.Unlock()
}

func (a *Actor) listen() {
	defer a.wg.Done()
	for {
		msg, ok := a.port.Next(a.ctx)
		if !ok {
			return
		}
		a.receive(msg)
	}
}

func (a *Actor) receive(msg Message) {
	if msg.ID == "" {
		return
	}

	if msg.Type == TypeCancel {
		a.mu.Lock()
		c, ok := a.queued[msg.ID]
		delete(a.queued, msg.ID)
		a.mu.Unlock()
		if ok {
			c.Cancel()
		}
		return
	}

	if !msg.MustQueue && !a.queueAll {
		a.process(msg)
		return
	}

	a.mu.Lock()
	md := Metadata{Type: "message"}
	if p, ok := a.callbacks[msg.ID]; ok {
		md = p.md
	}
	if z, ok := zoomOf(msg.Data); ok {
		md.Zoom = z
	}
	a.queued[msg.ID] = a.scheduler.Add(func() { a.process(msg) }, md)
	a.mu.Unlock()
}

func (a *Actor) process(msg Message) {
	a.mu.Lock()
	delete(a.queued, msg.ID)
	a.mu.Unlock()

	if msg.Type == TypeResponse {
		a.mu.Lock()
		p, ok := a.callbacks[msg.ID]
		delete(a.callbacks, msg.ID)
		a.mu.Unlock()
		if !ok {
			return
		}
		if msg.Error != nil {
			p.cb(nil, a.registry.DeserializeError(msg.Error))
			return
		}
		v, err := a.registry.Deserialize(msg.Data)
		p.cb(v, err)
		return
	}

	payload, err := a.registry.Deserialize(msg.Data)
	if err != nil {
		a.respond(msg, nil, err)
		return
	}
	h, ok := a.handlers[msg.Type]
	if !ok {
		a.log.Warn("unknown task", "actor", a.name, "type", msg.Type)
		a.respond(msg, nil, fmt.Errorf("%w: %q", ErrUnknownTask, msg.Type))
		return
	}
	result, err := a.run(h, payload)
	a.respond(msg, result, err)
}

func (a *Actor) run(h Handler, payload any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("task handler panicked", "actor", a.name, "panic", r)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(a.ctx, payload)
}

func (a *Actor) respond(msg Message, result any, err error) {
	if !msg.HasCallback {
		if err != nil {
			a.log.Warn("task failed", "actor", a.name, "type", msg.Type, "error", err)
		}
		return
	}

	resp := Message{ID: msg.ID, Type: TypeResponse}
	if err == nil {
		var tl transfer.TransferList
		data, serr := a.registry.Serialize(result, &tl)
		if serr != nil {
			err = serr
		} else {
			resp.Data = data
			resp.Transfer = tl
		}
	}
	if err != nil {
		resp.Error, _ = a.registry.Serialize(err, nil)
	}

	if perr := a.port.Post(resp); perr != nil {
		a.log.Debug("response dropped", "actor", a.name, "type", msg.Type, "error", perr)
	}
}

// zoomOf reads the zoom field of a serialized payload.
func zoomOf(data any) (int, bool) {
	o, ok := data.(transfer.Object)
	if !ok {
		return 0, false
	}
	z, err := o.Int("zoom")
	if err != nil {
		return 0, false
	}
	return z, true
}
