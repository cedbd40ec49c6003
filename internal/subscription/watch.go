package subscription

import (
	"sync"

	"github.com/dukerupert/subtrack/internal/model"
)

type watcher struct {
	mu      sync.Mutex
	fn      func(model.Subscription)
	stopped bool
	// last is the newest version delivered. Older ones arriving late are
	// skipped.
	last uint64
}

func (w *watcher) notify(version uint64, sub model.Subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || version <= w.last {
		return
	}
	w.last = version
	w.fn(sub)
}

// Watch calls fn with every newly confirmed subscription. Once stop has
// returned, fn is never called again. stop must not be called from inside fn.
func (c *Client) Watch(fn func(model.Subscription)) (stop func()) {
	w := &watcher{fn: fn}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = w
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()

			w.mu.Lock()
			w.stopped = true
			w.mu.Unlock()
		})
	}
}
