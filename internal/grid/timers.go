package grid

import (
	"sync"
	"time"
)

// Handle is one scheduled timer. Exactly one of fired or cancelled is
// closed once the timer settles.
type Handle struct {
	mu        sync.Mutex
	timer     *time.Timer
	fired     chan struct{}
	cancelled chan struct{}
	once      sync.Once
}

func newHandle() *Handle {
	return &Handle{fired: make(chan struct{}), cancelled: make(chan struct{})}
}

// Wait blocks until the timer fires or is cancelled and reports whether
// it fired
func (h *Handle) Wait() bool {
	select {
	case <-h.fired:
		return true
	case <-h.cancelled:
		return false
	}
}

// Cancel stops the timer if it has not fired yet
func (h *Handle) Cancel() {
	h.settle(h.cancelled)
}

func (h *Handle) settle(ch chan struct{}) {
	h.once.Do(func() {
		h.mu.Lock()
		if h.timer != nil {
			h.timer.Stop()
		}
		h.mu.Unlock()
		close(ch)
	})
}

// Debouncer owns named timers. Scheduling a key replaces and cancels the
// previous timer for that key.
type Debouncer struct {
	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

// NewDebouncer creates an empty debouncer
func NewDebouncer() *Debouncer {
	return &Debouncer{handles: make(map[string]*Handle)}
}

// Schedule starts a timer for key. After Close every new handle is
// returned already cancelled.
func (d *Debouncer) Schedule(key string, delay time.Duration) *Handle {
	h := newHandle()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		h.Cancel()
		return h
	}
	if prev, ok := d.handles[key]; ok {
		prev.Cancel()
	}
	d.handles[key] = h
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timer = time.AfterFunc(delay, func() {
		h.settle(h.fired)
		d.mu.Lock()
		if d.handles[key] == h {
			delete(d.handles, key)
		}
		d.mu.Unlock()
	})
	return h
}

// Cancel stops the timer for key, if any
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.handles[key]; ok {
		h.Cancel()
		delete(d.handles, key)
	}
}

// Pending returns the number of timers that have not settled
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

// Close cancels every outstanding timer
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, h := range d.handles {
		h.Cancel()
		delete(d.handles, key)
	}
}
