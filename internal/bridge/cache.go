package bridge

import "sync"

// Entry is one cached publish.
type Entry struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// RetainedCache holds the last payload published per topic, for replay
// after a reconnect. Entries keep the position of their first store.
//
// Thread Safety: all methods are safe for concurrent use.
type RetainedCache struct {
	mu      sync.Mutex
	order   []string
	entries map[string]Entry
}

// NewRetainedCache returns an empty cache.
func NewRetainedCache() *RetainedCache {
	return &RetainedCache{entries: make(map[string]Entry)}
}

// Store records e as the latest publish for its topic.
func (c *RetainedCache) Store(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[e.Topic]; !ok {
		c.order = append(c.order, e.Topic)
	}
	c.entries[e.Topic] = e
}

// Get returns the latest publish for topic.
func (c *RetainedCache) Get(topic string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[topic]
	return e, ok
}

// Snapshot returns a copy of every entry in first-store order.
func (c *RetainedCache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, topic := range c.order {
		out = append(out, c.entries[topic])
	}
	return out
}

// Len returns the number of cached topics.
func (c *RetainedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
