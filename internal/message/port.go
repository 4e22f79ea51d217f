// Package message is the actor layer tile sources use to talk to workers:
// a pair of ports carries messages between two goroutines, an Actor pairs
// requests with responses, and a Scheduler runs queued tasks one at a time
// by priority.
package message

import (
	"context"
	"errors"
	"sync"

	"github.com/jaennil/guide_helper/tilestream/internal/transfer"
)

// Control message types.
const (
	TypeCancel   = "<cancel>"
	TypeResponse = "<response>"
)

var ErrPortClosed = errors.New("port is closed")

// Message is the envelope exchanged between actors.
type Message struct {
	ID          string
	Type        string
	HasCallback bool
	MustQueue   bool
	Data        any
	Error       any

	Transfer transfer.TransferList
}

type mailbox struct {
	mu     sync.Mutex
	queue  []Message
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (m *mailbox) put(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrPortClosed
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	close(m.done)
}

// Port is one end of a message channel. Post never blocks: the peer's
// mailbox grows as needed.
type Port struct {
	inbox *mailbox
	peer  *mailbox
}

// NewChannel returns two connected ports.
func NewChannel() (*Port, *Port) {
	a, b := newMailbox(), newMailbox()
	return &Port{inbox: a, peer: b}, &Port{inbox: b, peer: a}
}

// Post delivers msg to the other end.
func (p *Port) Post(msg Message) error {
	return p.peer.put(msg)
}

// Next blocks until a message arrives, the port is closed or ctx is done.
// Messages are returned in the order they were posted.
func (p *Port) Next(ctx context.Context) (Message, bool) {
	m := p.inbox
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Message{}, false
		}
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue[0] = Message{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, true
		}
		m.mu.Unlock()

		select {
		case <-m.wake:
		case <-m.done:
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// Close shuts both directions. Pending messages are dropped.
func (p *Port) Close() {
	p.inbox.close()
	p.peer.close()
}
