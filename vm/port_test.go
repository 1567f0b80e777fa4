package vm

import (
	"testing"
	"time"
)

func newTestProcess(t *testing.T) *Process {
	t.Helper()
	program := NewProgram()
	env := newTestEnvironment()
	return NewProcess(program, 1<<12, env)
}

func TestMailboxDeliverAndReceive(t *testing.T) {
	m := NewMailbox()
	if m.Len() != 0 {
		t.Fatal("a fresh mailbox should be empty")
	}
	v, _ := NewSmi(1)
	m.Deliver(Message{Value: v})
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	msg, ok := m.Receive()
	if !ok {
		t.Fatal("Receive should return the delivered message")
	}
	if msg.Value != v {
		t.Errorf("Value = %v, want %v", msg.Value, v)
	}
}

func TestMailboxTryReceiveOnEmptyQueue(t *testing.T) {
	m := NewMailbox()
	if _, ok := m.TryReceive(); ok {
		t.Error("TryReceive on an empty queue should report false")
	}
}

func TestMailboxReceiveUnblocksOnClose(t *testing.T) {
	m := NewMailbox()
	done := make(chan bool, 1)
	go func() {
		_, ok := m.Receive()
		done <- ok
	}()
	m.Close()
	select {
	case ok := <-done:
		if ok {
			t.Error("Receive after Close with no pending message should report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Close")
	}
}

func TestMailboxDeliverAfterCloseIsDropped(t *testing.T) {
	m := NewMailbox()
	m.Close()
	v, _ := NewSmi(1)
	m.Deliver(Message{Value: v})
	if m.Len() != 0 {
		t.Error("Deliver after Close should be a no-op")
	}
}

func TestPortRetainAndRelease(t *testing.T) {
	owner := newTestProcess(t)
	p := NewPort(owner)
	p.Retain()
	if p.Release() {
		t.Fatal("Release should not report zero while one reference remains")
	}
	if !p.Release() {
		t.Error("Release should report true once the refcount reaches zero")
	}
}

func TestPortSendDeliversToOwnerMailbox(t *testing.T) {
	owner := newTestProcess(t)
	p := NewPort(owner)
	sender := newTestProcess(t)
	senderPort := NewPort(sender)

	v, _ := NewSmi(42)
	p.Send(senderPort, v)

	msg, ok := owner.Mailbox.TryReceive()
	if !ok {
		t.Fatal("Send should deliver to the owner's mailbox")
	}
	if msg.Value != v || msg.From != senderPort {
		t.Errorf("msg = %+v, want Value=%v From=%v", msg, v, senderPort)
	}
}

func TestPortLinkNotifiesBothOnExit(t *testing.T) {
	a := NewPort(newTestProcess(t))
	b := NewPort(newTestProcess(t))
	a.Link(b)

	a.NotifyExit()
	if !a.IsClosed() {
		t.Error("NotifyExit should mark the port closed")
	}
	msg, ok := b.owner.Mailbox.TryReceive()
	if !ok || !msg.Exit {
		t.Error("a's linked peer should receive a synthetic exit message")
	}
}
