// pkg/devices/monitor.go

package devices

import (
	"context"
	"sort"
	"sync"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/events"
)

// Monitor owns the live device snapshot. It polls the inventory on a fixed
// interval, diffs against the previous snapshot keyed by name, and publishes
// add/change/remove events. Idle ticks are silent.
type Monitor struct {
	inventory InventoryFunc
	broker    *events.Broker[Event]
	interval  time.Duration
	timeout   time.Duration

	mu      sync.RWMutex
	current map[string]Device
}

// NewMonitor wires a monitor to its inventory source. Call Broker to obtain
// the event channel broker (its snapshot function is bound to this monitor).
func NewMonitor(inventory InventoryFunc, interval, timeout time.Duration, log *zap.Logger) *Monitor {
	m := &Monitor{
		inventory: inventory,
		interval:  interval,
		timeout:   timeout,
		current:   make(map[string]Device),
	}
	m.broker = events.NewBroker(log, m.snapshotEvents)
	return m
}

// Broker exposes the disk event broker for SSE subscribers.
func (m *Monitor) Broker() *events.Broker[Event] {
	return m.broker
}

// Run polls until ctx is cancelled. The first tick happens immediately so
// the snapshot is populated before the HTTP server accepts clients.
func (m *Monitor) Run(ctx context.Context) {
	logger := otelzap.Ctx(ctx)
	logger.Info("Device monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("timeout", m.timeout))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Refresh(ctx)
		select {
		case <-ctx.Done():
			logger.Info("Device monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Refresh reads the inventory once and publishes the diff. A failed or
// timed-out read leaves the previous snapshot untouched: devices only
// disappear when a successful read says so, never because a tool hung.
func (m *Monitor) Refresh(ctx context.Context) {
	logger := otelzap.Ctx(ctx)

	fresh, err := m.readWithTimeout(ctx)
	if err != nil {
		logger.Warn("Inventory read failed, retrying next tick", zap.Error(err))
		return
	}

	deltas := m.apply(fresh)
	for _, e := range deltas {
		m.broker.Publish(e)
	}
	if len(deltas) > 0 {
		logger.Info("Device inventory changed",
			zap.Int("events", len(deltas)),
			zap.Int("devices", len(fresh)))
	}
}

// apply swaps in the fresh snapshot and returns the delta events.
// Publishing happens after the lock is released (broker subscribe calls back
// into Snapshot under its own lock).
func (m *Monitor) apply(fresh map[string]Device) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deltas []Event
	now := nowTS()

	for name, dev := range fresh {
		prev, existed := m.current[name]
		switch {
		case !existed:
			d := dev
			deltas = append(deltas, Event{Type: EventAdd, Disk: &d, TS: now})
		case prev != dev:
			d := dev
			deltas = append(deltas, Event{Type: EventChange, Disk: &d, TS: now})
		}
	}
	for name, dev := range m.current {
		if _, ok := fresh[name]; !ok {
			d := dev
			deltas = append(deltas, Event{Type: EventRemove, Disk: &d, TS: now})
		}
	}

	m.current = fresh
	return deltas
}

func (m *Monitor) readWithTimeout(ctx context.Context) (map[string]Device, error) {
	readCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type result struct {
		devices map[string]Device
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		devices, err := m.inventory()
		ch <- result{devices, err}
	}()

	select {
	case r := <-ch:
		return r.devices, r.err
	case <-readCtx.Done():
		return nil, cerr.Wrap(readCtx.Err(), "inventory read timed out")
	}
}

// Snapshot returns the current devices sorted by name.
func (m *Monitor) Snapshot() []Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Device, 0, len(m.current))
	for _, d := range m.current {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up one device by name from the current snapshot.
func (m *Monitor) Get(name string) (Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.current[name]
	return d, ok
}

func (m *Monitor) snapshotEvents() []Event {
	return []Event{{Type: EventSnapshot, Disks: m.Snapshot(), TS: nowTS()}}
}

func nowTS() float64 {
	return float64(time.Now().UnixMilli()) / 1000.0
}
