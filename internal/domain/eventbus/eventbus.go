// Package eventbus carries session signals to the presentation layer.
// The bus is constructed once and injected; components never reach for a
// process-wide instance.
package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Topics published by the conversation layer.
const (
	TopicSessionState   = "session.state"
	TopicPartialText    = "session.partial"
	TopicChatResponse   = "session.response"
	TopicAnalysisResult = "session.result"
)

// Bus is a thin wrapper over EventBus that keeps the subscribe surface small.
type Bus struct {
	bus evbus.Bus
}

func New() *Bus {
	return &Bus{bus: evbus.New()}
}

func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) SubscribeAsync(topic string, fn interface{}) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}
