package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
)

// KafkaPipe is an in-memory topic. Messages written through Write are handed
// to FetchMessage in order, with consecutive offsets. It satisfies both the
// reader and writer interfaces used by the messaging package.
type KafkaPipe struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	next      int64
	closed    bool
	notify    chan struct{}
}

// NewKafkaPipe creates an empty pipe
func NewKafkaPipe() *KafkaPipe {
	return &KafkaPipe{notify: make(chan struct{})}
}

// WriteMessages appends msgs to the pipe
func (p *KafkaPipe) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	for _, m := range msgs {
		m.Offset = p.next
		p.next++
		p.queue = append(p.queue, m)
	}
	p.wake()
	return nil
}

// FetchMessage blocks until a message is available, ctx is done or the pipe
// is closed. A closed and drained pipe returns io.EOF.
func (p *KafkaPipe) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			m := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return m, nil
		}
		if p.closed {
			p.mu.Unlock()
			return kafka.Message{}, io.EOF
		}
		wait := p.notify
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-wait:
		}
	}
}

// CommitMessages records msgs as committed
func (p *KafkaPipe) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed = append(p.committed, msgs...)
	return nil
}

// Committed returns the committed messages in commit order
func (p *KafkaPipe) Committed() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]kafka.Message, len(p.committed))
	copy(out, p.committed)
	return out
}

// Pending returns the number of messages not yet fetched
func (p *KafkaPipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops the pipe. Messages already written can still be fetched.
func (p *KafkaPipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.wake()
	}
	return nil
}

// wake releases every blocked FetchMessage; callers hold mu
func (p *KafkaPipe) wake() {
	close(p.notify)
	p.notify = make(chan struct{})
}
