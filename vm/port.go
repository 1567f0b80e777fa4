package vm

import (
	"sync"

	"github.com/google/uuid"
)

// Message is one entry in a Mailbox's FIFO queue: either a user value sent
// via Port.Send, or a synthetic exit notification from a linked port's
// termination (the supplemented feature of SPEC_FULL.md §12.2).
type Message struct {
	From  *Port
	Value Value
	Exit  bool
}

// Mailbox is a process's FIFO inbox. Exactly one goroutine (the scheduler
// worker currently running the owning process) ever calls Receive; any
// number of other processes' workers may call Deliver concurrently, so the
// queue itself is mutex-protected rather than assuming single-writer.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Deliver appends msg to the tail of the queue and wakes any Receive
// blocked on an empty queue.
func (m *Mailbox) Deliver(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, msg)
	m.cond.Signal()
}

// TryReceive pops the head message without blocking, returning ok=false if
// the queue is empty (spec.md §5). Neither the interpreter nor the
// scheduler calls it.
func (m *Mailbox) TryReceive() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Message{}, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true
}

// Receive blocks until a message is available or the mailbox is closed.
func (m *Mailbox) Receive() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.queue) == 0 {
		return Message{}, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true
}

// Len reports the current queue depth.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close marks the mailbox closed and wakes every blocked Receive; used when
// the owning process terminates.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Port is the addressable, reference-counted handle spec.md §5 describes:
// processes never hold each other's Mailbox directly, only a Port naming
// it, so a process can be garbage-collected out from under ports that no
// longer have any live holder. Linking (link()) is the supplemented
// feature of SPEC_FULL.md §12.2: a linked peer's termination is delivered
// to this port as a synthetic exit Message rather than silently dropped.
type Port struct {
	ID    uuid.UUID
	owner *Process

	mu       sync.Mutex
	refcount int
	links    []*Port
	closed   bool
}

// NewPort creates a port addressing owner's mailbox, with a refcount of 1
// for the caller's own reference.
func NewPort(owner *Process) *Port {
	return &Port{ID: uuid.New(), owner: owner, refcount: 1}
}

// Retain increments the reference count. The engine does not call it when
// a Port value is copied into another process's object graph; the count
// changes only through explicit Retain/Release calls.
func (p *Port) Retain() {
	p.mu.Lock()
	p.refcount++
	p.mu.Unlock()
}

// Release decrements the reference count, returning true once it reaches
// zero (the caller should then drop every remaining resource tied to this
// port; the owning process's mailbox itself outlives any single port,
// since other ports may still address it).
func (p *Port) Release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refcount--
	return p.refcount <= 0
}

// Send delivers v to the port's owning process's mailbox.
func (p *Port) Send(from *Port, v Value) {
	p.owner.Mailbox.Deliver(Message{From: from, Value: v})
}

// Link registers a bidirectional link between p and other: when either
// side's owning process terminates, the other receives a synthetic exit
// message (NotifyExit), independent of whether it is currently blocked
// waiting on its mailbox.
func (p *Port) Link(other *Port) {
	p.mu.Lock()
	p.links = append(p.links, other)
	p.mu.Unlock()
	other.mu.Lock()
	other.links = append(other.links, p)
	other.mu.Unlock()
}

// NotifyExit is called once, by the scheduler, when p's owning process
// terminates: every linked peer receives a synthetic exit Message.
func (p *Port) NotifyExit() {
	p.mu.Lock()
	links := append([]*Port(nil), p.links...)
	p.closed = true
	p.mu.Unlock()
	for _, peer := range links {
		peer.owner.Mailbox.Deliver(Message{From: p, Exit: true})
	}
}

// IsClosed reports whether NotifyExit has already run for this port.
func (p *Port) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
