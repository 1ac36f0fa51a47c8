package coordinator

import (
	"strings"
	"sync"
	"time"
)

// timerRegistry tracks keyed one-shot timers so expiry work can be cancelled
// when the entity it guards reaches a terminal state first. Callbacks run on
// the timer goroutine and must acquire the coordinator mutex themselves.
type timerRegistry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fns    map[string]func()
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{
		timers: make(map[string]*time.Timer),
		fns:    make(map[string]func()),
	}
}

// Schedule arms fn to run after d, replacing any timer already armed for key.
func (r *timerRegistry) Schedule(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	//1.- Disarm whatever was pending under this key so only one expiry can fire.
	if old, ok := r.timers[key]; ok {
		old.Stop()
	}
	//2.- Arm the new timer; the wrapper consumes the key first so a concurrent
	// Cancel wins over a firing timer.
	r.fns[key] = fn
	r.timers[key] = time.AfterFunc(d, func() {
		if r.consume(key) {
			fn()
		}
	})
}

// Cancel disarms the timer for key if one is pending.
func (r *timerRegistry) Cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
		delete(r.fns, key)
	}
}

// CancelPrefix disarms every pending timer whose key starts with prefix.
func (r *timerRegistry) CancelPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, t := range r.timers {
		if strings.HasPrefix(key, prefix) {
			t.Stop()
			delete(r.timers, key)
			delete(r.fns, key)
		}
	}
}

// Stop disarms every pending timer; used on shutdown.
func (r *timerRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
		delete(r.fns, key)
	}
}

func (r *timerRegistry) consume(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[key]; !ok {
		return false
	}
	delete(r.timers, key)
	delete(r.fns, key)
	return true
}

// fire runs the callback for key synchronously, as if the timer expired now.
func (r *timerRegistry) fire(key string) bool {
	r.mu.Lock()
	fn, ok := r.fns[key]
	r.mu.Unlock()
	if !ok || !r.consume(key) {
		return false
	}
	fn()
	return true
}

func (r *timerRegistry) pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[key]
	return ok
}
