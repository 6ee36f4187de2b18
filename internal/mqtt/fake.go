package mqtt

import (
	"sync"

	"github.com/sweeney/boiler-controller/internal/logic"
)

// FakeTransport records published batches and serves queued inbound
// messages for test assertions.
type FakeTransport struct {
	mu sync.Mutex

	inbound []logic.Message

	// Batches contains all command batches that were published.
	Batches []Batch

	// Payloads contains the JSON payloads of the published batches.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeTransport creates a FakeTransport for testing.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Queue adds messages to be returned by the next Drain.
func (f *FakeTransport) Queue(msgs ...logic.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, msgs...)
}

// Drain returns the queued inbound messages and clears the queue.
func (f *FakeTransport) Drain() []logic.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inbound
	f.inbound = nil
	return out
}

// Publish records the batch.
func (f *FakeTransport) Publish(batch Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatBatch(batch)
	if err != nil {
		return err
	}
	f.Batches = append(f.Batches, batch)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakeTransport) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the transport as closed.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake transport is "connected".
func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// BatchCount returns the number of published batches.
func (f *FakeTransport) BatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Batches)
}

// LastBatch returns the most recently published batch.
func (f *FakeTransport) LastBatch() (Batch, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Batches) == 0 {
		return Batch{}, false
	}
	return f.Batches[len(f.Batches)-1], true
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakeTransport) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded state.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = nil
	f.Batches = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
