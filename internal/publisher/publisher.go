// Package publisher emits run-completed events. The Pub/Sub implementation
// is used in deployments; noop and memory serve the CLI and tests.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// Noop discards every event.
type Noop struct{}

// NewNoop builds a publisher that drops events.
func NewNoop() *Noop { return &Noop{} }

// Publish discards the payload and returns an empty message ID.
func (*Noop) Publish(context.Context, string, any) (string, error) {
	return "", nil
}

// Memory records published events for inspection in tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
	nextID int
}

// Event is one recorded publication.
type Event struct {
	Topic   string
	Payload []byte
}

// NewMemory builds an empty in-memory publisher.
func NewMemory() *Memory { return &Memory{} }

// Publish records the JSON-encoded payload.
func (m *Memory) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding event: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.events = append(m.events, Event{Topic: topic, Payload: data})
	return fmt.Sprintf("msg-%d", m.nextID), nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// PubSub publishes events to Google Cloud Pub/Sub.
type PubSub struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSub wraps an existing client.
func NewPubSub(client *pubsub.Client) *PubSub {
	return &PubSub{client: client, topics: make(map[string]*pubsub.Topic)}
}

// Publish sends the JSON-encoded payload and waits for the server-assigned
// message ID.
func (p *PubSub) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding event: %w", err)
	}
	result := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return id, nil
}

func (p *PubSub) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t
	}
	t := p.client.Topic(name)
	p.topics[name] = t
	return t
}

// Close stops all topic publish goroutines.
func (p *PubSub) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		t.Stop()
	}
}
