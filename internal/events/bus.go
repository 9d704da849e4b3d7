package events

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Listener receives published events of the kind it was registered for.
type Listener func(Event)

// ListenerID identifies a registration so it can be removed later.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Bus delivers events synchronously to listeners in registration order.
// A panicking listener is recovered and logged; the remaining listeners still run.
type Bus struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[Kind][]registration
	logger    *logrus.Logger
}

// NewBus creates an empty bus. A nil logger gets a default one.
func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		listeners: make(map[Kind][]registration),
		logger:    logger,
	}
}

// AddListener registers fn for kind.
func (b *Bus) AddListener(kind Kind, fn Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[kind] = append(b.listeners[kind], registration{id: id, fn: fn})
	return id
}

// AddAll registers fn for every kind and returns the IDs in Kinds order.
func (b *Bus) AddAll(fn Listener) []ListenerID {
	ids := make([]ListenerID, 0, len(Kinds))
	for _, k := range Kinds {
		ids = append(ids, b.AddListener(k, fn))
	}
	return ids
}

// RemoveListener unregisters a listener. Unknown IDs are ignored.
func (b *Bus) RemoveListener(kind Kind, id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[kind]
	for i, r := range regs {
		if r.id == id {
			// copy so that in-flight Publish snapshots stay intact
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			b.listeners[kind] = next
			return
		}
	}
}

// ListenerCount returns the number of listeners registered for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// Publish delivers e to every listener currently registered for its kind.
func (b *Bus) Publish(e Event) {
	if e == nil {
		return
	}

	b.mu.RLock()
	regs := b.listeners[e.Kind()]
	b.mu.RUnlock()

	for _, r := range regs {
		b.deliver(r, e)
	}
}

func (b *Bus) deliver(r registration, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.WithFields(logrus.Fields{
				"kind":     e.Kind(),
				"listener": r.id,
				"panic":    fmt.Sprint(rec),
			}).Error("Event listener panicked")
		}
	}()
	r.fn(e)
}

// On registers a listener for the kind of T that receives the concrete payload.
func On[T Event](b *Bus, fn func(T)) ListenerID {
	var zero T
	return b.AddListener(zero.Kind(), func(e Event) {
		if ev, ok := e.(T); ok {
			fn(ev)
		}
	})
}
