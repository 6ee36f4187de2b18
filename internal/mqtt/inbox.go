package mqtt

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/boiler-controller/internal/logic"
)

// Inbox accumulates inbound messages between cycles. Deliver is called from
// the MQTT client's goroutine and Drain from the cycle loop.
type Inbox struct {
	mu       sync.Mutex
	pending  []logic.Message
	rejected int
	logger   *zap.Logger
}

// NewInbox creates an empty inbox.
func NewInbox(logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{logger: logger}
}

// Deliver parses one inbound payload and queues its valid messages.
func (b *Inbox) Deliver(payload []byte) {
	batch, rejected, err := ParseBatch(payload)
	if err != nil {
		b.logger.Warn("mqtt: dropping inbound batch", zap.Error(err))
		b.mu.Lock()
		b.rejected++
		b.mu.Unlock()
		return
	}
	for _, e := range rejected {
		b.logger.Warn("mqtt: dropping inbound message", zap.Error(e))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, batch.Messages...)
	b.rejected += len(rejected)
}

// Drain returns the queued messages in arrival order and empties the inbox.
func (b *Inbox) Drain() []logic.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// Rejected returns how many inbound messages or batches failed to decode.
func (b *Inbox) Rejected() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}
