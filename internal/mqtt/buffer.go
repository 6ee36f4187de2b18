package mqtt

import (
	"sync"

	"go.uber.org/zap"
)

// bufferedMsg is a serialized publish waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool

	// essential marks a command batch carrying valve, pump or failure
	// traffic. It is never evicted.
	essential bool
	// modeOnly marks a command batch holding only MODE announcements. The
	// next such batch replaces it when nothing was queued in between.
	modeOnly bool
}

// offlineQueue holds publishes made while the broker is unreachable, oldest
// first, up to a fixed capacity. On overflow the oldest non-essential entry
// is dropped; if every entry is essential the queue grows past capacity.
// A retained publish replaces any retained publish already queued for the
// same topic, since the broker would only keep the newer one.
// Not safe for concurrent use; outbox holds its mutex around every call.
type offlineQueue struct {
	items    []bufferedMsg
	capacity int
	full     bool // an overflow has been logged since the last flush
	dropped  map[string]int
	logger   *zap.Logger
}

func newOfflineQueue(capacity int, logger *zap.Logger) *offlineQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &offlineQueue{
		items:    make([]bufferedMsg, 0, capacity),
		capacity: capacity,
		dropped:  make(map[string]int),
		logger:   logger,
	}
}

func (q *offlineQueue) push(msg bufferedMsg) {
	if msg.retained {
		for i, held := range q.items {
			if held.retained && held.topic == msg.topic {
				q.remove(i)
				break
			}
		}
	}

	if n := len(q.items); msg.modeOnly && n > 0 {
		if tail := q.items[n-1]; tail.modeOnly && tail.topic == msg.topic {
			q.items[n-1] = msg
			return
		}
	}

	if len(q.items) >= q.capacity {
		q.evict()
	}
	q.items = append(q.items, msg)
}

// evict drops the oldest entry that is not essential.
func (q *offlineQueue) evict() {
	for i, held := range q.items {
		if held.essential {
			continue
		}
		q.dropped[held.topic]++
		if !q.full {
			q.logger.Warn("mqtt: offline buffer full, dropping oldest",
				zap.Int("capacity", q.capacity), zap.String("topic", held.topic))
			q.full = true
		}
		q.remove(i)
		return
	}
	if !q.full {
		q.logger.Error("mqtt: offline buffer full of unsent commands, growing past capacity",
			zap.Int("capacity", q.capacity), zap.Int("queued", len(q.items)))
		q.full = true
	}
}

func (q *offlineQueue) remove(i int) {
	copy(q.items[i:], q.items[i+1:])
	q.items = q.items[:len(q.items)-1]
}

// flush returns the held messages oldest first and empties the queue.
func (q *offlineQueue) flush() []bufferedMsg {
	if len(q.items) == 0 {
		return nil
	}
	out := make([]bufferedMsg, len(q.items))
	copy(out, q.items)
	q.items = q.items[:0]
	q.full = false
	return out
}

func (q *offlineQueue) len() int {
	return len(q.items)
}

// droppedTotal is the number of publishes lost to overflow since startup.
func (q *offlineQueue) droppedTotal() int {
	n := 0
	for _, d := range q.dropped {
		n += d
	}
	return n
}

// outbox orders publishes to the broker. Publishes are queued while the
// connection is down and while a reconnect replay is running, so a live
// batch never overtakes an older queued one.
type outbox struct {
	send   func(bufferedMsg) error
	logger *zap.Logger

	mu        sync.Mutex
	queue     *offlineQueue
	connected bool
	replaying bool
}

func newOutbox(capacity int, send func(bufferedMsg) error, logger *zap.Logger) *outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &outbox{
		send:   send,
		logger: logger,
		queue:  newOfflineQueue(capacity, logger),
	}
}

func (o *outbox) publish(m bufferedMsg) error {
	o.mu.Lock()
	if !o.connected || o.replaying {
		o.queue.push(m)
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()
	return o.send(m)
}

// resume marks the connection up and replays the queue, including anything
// queued while the replay runs. Returns once the queue is empty.
func (o *outbox) resume() {
	o.mu.Lock()
	o.connected = true
	if o.replaying {
		o.mu.Unlock()
		return
	}
	o.replaying = true
	o.mu.Unlock()

	for {
		o.mu.Lock()
		pending := o.queue.flush()
		dropped := o.queue.droppedTotal()
		if len(pending) == 0 {
			o.replaying = false
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()

		o.logger.Info("mqtt: replaying buffered messages",
			zap.Int("count", len(pending)), zap.Int("dropped_total", dropped))
		for i, m := range pending {
			err := o.send(m)
			if err == nil {
				continue
			}
			o.logger.Warn("mqtt: replay failed", zap.String("topic", m.topic), zap.Error(err))
			if o.requeueIfLost(pending[i:]) {
				return
			}
		}
	}
}

// requeueIfLost puts unsent replay entries back at the head of the queue
// when the connection dropped mid-replay. The next resume sends them.
func (o *outbox) requeueIfLost(unsent []bufferedMsg) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.connected {
		return false
	}
	o.queue.items = append(append([]bufferedMsg(nil), unsent...), o.queue.items...)
	o.replaying = false
	return true
}

func (o *outbox) lost() {
	o.mu.Lock()
	o.connected = false
	o.mu.Unlock()
}

func (o *outbox) isConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

func (o *outbox) buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.len()
}
