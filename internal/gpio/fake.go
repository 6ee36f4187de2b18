package gpio

import "sync"

// FakeAlarm is a test double that records every state it is driven to.
type FakeAlarm struct {
	mu sync.Mutex

	// History contains every value passed to Set, in order.
	History []bool

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeAlarm creates a FakeAlarm.
func NewFakeAlarm() *FakeAlarm {
	return &FakeAlarm{}
}

// Set records the requested state.
func (f *FakeAlarm) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, on)
	return nil
}

// On reports the most recently set state.
func (f *FakeAlarm) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.History) > 0 && f.History[len(f.History)-1]
}

// Writes returns how many times Set succeeded.
func (f *FakeAlarm) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.History)
}

// Close marks the alarm as closed.
func (f *FakeAlarm) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded state.
func (f *FakeAlarm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.History = nil
	f.Closed = false
	f.SetError = nil
}
