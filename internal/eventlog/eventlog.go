// Package eventlog keeps a bounded history of bus events for display in a
// log console. When the buffer is full the oldest entries are overwritten.
package eventlog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemgr/internal/device"
	"github.com/srg/blemgr/internal/events"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 256

// Level classifies an entry for display.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Entry is one recorded event.
type Entry struct {
	Time     time.Time   `json:"time"`
	Kind     events.Kind `json:"kind"`
	Level    Level       `json:"level"`
	DeviceID string      `json:"device_id,omitempty"`
	Message  string      `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Time.Format(time.RFC3339), e.Level, e.Kind, e.Message)
}

// Metrics are lock-free counters.
type Metrics struct {
	Recorded    int64
	Overwritten int64
	Errors      int64
}

// Log records every event published on the buses it is attached to.
type Log struct {
	buffer  mpmc.RichOverlappedRingBuffer[Entry]
	logger  *logrus.Logger
	now     func() time.Time
	metrics Metrics

	mu       sync.Mutex
	attached map[*events.Bus][]events.ListenerID
}

// New creates a log holding up to capacity entries.
func New(capacity int, logger *logrus.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Log{
		buffer:   mpmc.NewOverlappedRingBuffer[Entry](uint32(capacity)),
		logger:   logger,
		now:      time.Now,
		attached: make(map[*events.Bus][]events.ListenerID),
	}
}

// Attach subscribes the log to every event kind on bus.
func (l *Log) Attach(bus *events.Bus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.attached[bus]; ok {
		return
	}
	l.attached[bus] = bus.AddAll(l.Record)
}

// Detach removes the log's listeners from bus.
func (l *Log) Detach(bus *events.Bus) {
	l.mu.Lock()
	ids, ok := l.attached[bus]
	delete(l.attached, bus)
	l.mu.Unlock()
	if !ok {
		return
	}
	for i, id := range ids {
		bus.RemoveListener(events.Kinds[i], id)
	}
}

// Record converts an event to an entry and stores it.
func (l *Log) Record(e events.Event) {
	entry := Describe(e)
	entry.Time = l.now()

	overwrites, err := l.buffer.EnqueueM(entry)
	if err != nil {
		atomic.AddInt64(&l.metrics.Errors, 1)
		l.logger.WithField("error", err).Warn("Failed to record event")
		return
	}
	atomic.AddInt64(&l.metrics.Overwritten, int64(overwrites))
	atomic.AddInt64(&l.metrics.Recorded, 1)
}

// Drain removes and returns all buffered entries, oldest first.
func (l *Log) Drain() []Entry {
	var out []Entry
	for !l.buffer.IsEmpty() {
		e, err := l.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, e)
	}
	return out
}

// Metrics returns a copy of the counters.
func (l *Log) Metrics() Metrics {
	return Metrics{
		Recorded:    atomic.LoadInt64(&l.metrics.Recorded),
		Overwritten: atomic.LoadInt64(&l.metrics.Overwritten),
		Errors:      atomic.LoadInt64(&l.metrics.Errors),
	}
}

// Describe renders an event as a log entry without a timestamp.
func Describe(e events.Event) Entry {
	entry := Entry{Kind: e.Kind(), Level: LevelInfo}

	if err := events.ErrorOf(e); err != nil {
		entry.Level = LevelError
		entry.Message = err.Error()
	}

	switch ev := e.(type) {
	case events.DevicesChanged:
		entry.Message = fmt.Sprintf("%d device(s) known", len(ev.Devices))
	case events.DeviceConnected:
		entry.DeviceID = ev.Device.ID
		entry.Message = "connected to " + ev.Device.DisplayName()
	case events.DeviceDisconnected:
		entry.DeviceID = ev.Device.ID
		entry.Message = "disconnected from " + ev.Device.DisplayName()
	case events.DevicePaired:
		entry.DeviceID = ev.Device.ID
		entry.Message = "paired with " + ev.Device.DisplayName()
	case events.ConnectError:
		entry.DeviceID = ev.DeviceID
	case events.DisconnectError:
		entry.DeviceID = ev.DeviceID
	case events.RemoveError:
		entry.DeviceID = ev.DeviceID
	case events.ServiceDiscovered:
		entry.DeviceID = ev.DeviceID
		entry.Message = fmt.Sprintf("service %s (%s) with %d characteristic(s)",
			ev.Service.Name, device.ShortenUUID(ev.Service.UUID), len(ev.Service.Characteristics))
	case events.CharacteristicRead:
		entry.DeviceID = ev.DeviceID
		entry.Message = fmt.Sprintf("read %s = %s", ev.Characteristic.Name, hexBytes(ev.Characteristic.Value))
	case events.CharacteristicWrite:
		entry.DeviceID = ev.DeviceID
		entry.Message = fmt.Sprintf("wrote %s = %s", ev.Characteristic.Name, hexBytes(ev.Characteristic.Value))
	}
	return entry
}

func hexBytes(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}
