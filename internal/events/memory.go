package events

import (
	"context"
	"sync"
)

// Message is one published record as the memory broker stores it.
type Message struct {
	Key   string
	Event Event
}

// MemoryPublisher is an in-process broker stand-in: tests assert on what was
// published, and local runs without a broker URL still work end to end.
type MemoryPublisher struct {
	mu      sync.Mutex
	byTopic map[string][]Message
	failErr error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{byTopic: make(map[string][]Message)}
}

func (p *MemoryPublisher) Publish(_ context.Context, topic, key string, ev Event) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return Receipt{}, p.failErr
	}
	p.byTopic[topic] = append(p.byTopic[topic], Message{Key: key, Event: ev})
	return Receipt{Partition: 0, Offset: int64(len(p.byTopic[topic]) - 1)}, nil
}

// FailWith makes every subsequent publish return err; nil restores normal
// operation.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failErr = err
}

func (p *MemoryPublisher) Messages(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.byTopic[topic]))
	copy(out, p.byTopic[topic])
	return out
}

func (p *MemoryPublisher) Close() error { return nil }
