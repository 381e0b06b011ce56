package hub

import (
	"sync"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// Mailbox is a Sink holding at most one undelivered snapshot. A newer
// snapshot replaces an unread one, so a slow reader skips intermediate
// snapshots instead of queueing them.
type Mailbox struct {
	mu     sync.Mutex
	ch     chan flight.Snapshot
	done   chan struct{}
	closed bool
	err    error
}

// NewMailbox creates an open mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		ch:   make(chan flight.Snapshot, 1),
		done: make(chan struct{}),
	}
}

// Deliver implements Sink.
func (m *Mailbox) Deliver(s flight.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if m.err != nil {
			return m.err
		}
		return ErrSinkClosed
	}

	select {
	case <-m.ch:
	default:
	}
	m.ch <- s
	return nil
}

// C returns the snapshot channel. It is closed when the mailbox closes.
func (m *Mailbox) C() <-chan flight.Snapshot {
	return m.ch
}

// Done is closed when the mailbox closes.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Fail closes the mailbox because the reader hit err. Later Deliver calls
// return err.
func (m *Mailbox) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.err = err
	m.closeLocked()
}

// Close implements io.Closer.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closeLocked()
	}
	return nil
}

func (m *Mailbox) closeLocked() {
	m.closed = true
	close(m.done)
	close(m.ch)
}
