package cluster

import (
	"context"
	"sync"
)

const mailboxDepth = 16

type mailKey struct {
	source int
	tag    Tag
}

// mailbox queues inbound payloads per (source, tag) so that receives never
// confuse message kinds or senders.
type mailbox struct {
	mu     sync.Mutex
	queues map[mailKey]chan []byte
	done   chan struct{}
	once   sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{
		queues: make(map[mailKey]chan []byte),
		done:   make(chan struct{}),
	}
}

func (m *mailbox) queue(source int, tag Tag) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := mailKey{source: source, tag: tag}
	q, ok := m.queues[k]
	if !ok {
		q = make(chan []byte, mailboxDepth)
		m.queues[k] = q
	}
	return q
}

func (m *mailbox) deliver(ctx context.Context, source int, tag Tag, payload []byte) error {
	if m.closed() {
		return ErrClosed
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case m.queue(source, tag) <- buf:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mailbox) receive(ctx context.Context, source int, tag Tag) ([]byte, error) {
	if m.closed() {
		return nil, ErrClosed
	}
	select {
	case payload := <-m.queue(source, tag):
		return payload, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

func (m *mailbox) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}
