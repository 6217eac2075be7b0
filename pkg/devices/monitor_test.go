package devices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedInventory lets a test swap the inventory result between refreshes.
type scriptedInventory struct {
	mu    sync.Mutex
	disks map[string]Device
	err   error
}

func (s *scriptedInventory) set(disks map[string]Device, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disks = disks
	s.err = err
}

func (s *scriptedInventory) read() (map[string]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]Device, len(s.disks))
	for k, v := range s.disks {
		out[k] = v
	}
	return out, nil
}

func newTestMonitor(t *testing.T, src *scriptedInventory) *Monitor {
	t.Helper()
	return NewMonitor(src.read, time.Minute, time.Second, zaptest.NewLogger(t))
}

func disk(name string, size uint64) Device {
	return Device{Name: name, Path: "/dev/" + name, Size: size, Rotational: true}
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestMonitorSnapshotBeforeDeltas(t *testing.T) {
	src := &scriptedInventory{}
	src.set(map[string]Device{"sdb": disk("sdb", 100)}, nil)
	m := newTestMonitor(t, src)
	m.Refresh(context.Background())

	ch, cancel := m.Broker().Subscribe()
	defer cancel()

	src.set(map[string]Device{
		"sdb": disk("sdb", 100),
		"sdc": disk("sdc", 200),
	}, nil)
	m.Refresh(context.Background())

	events := drainEvents(ch)
	require.Len(t, events, 2)
	assert.Equal(t, EventSnapshot, events[0].Type)
	require.Len(t, events[0].Disks, 1)
	assert.Equal(t, "sdb", events[0].Disks[0].Name)

	assert.Equal(t, EventAdd, events[1].Type)
	require.NotNil(t, events[1].Disk)
	assert.Equal(t, "sdc", events[1].Disk.Name)
}

func TestMonitorIdenticalInventoryIsSilent(t *testing.T) {
	src := &scriptedInventory{}
	src.set(map[string]Device{"sdb": disk("sdb", 100)}, nil)
	m := newTestMonitor(t, src)
	m.Refresh(context.Background())

	ch, cancel := m.Broker().Subscribe()
	defer cancel()
	drainEvents(ch) // discard the priming snapshot

	m.Refresh(context.Background())
	m.Refresh(context.Background())

	assert.Empty(t, drainEvents(ch), "unchanged inventory must publish nothing")
}

func TestMonitorAddChangeRemove(t *testing.T) {
	src := &scriptedInventory{}
	src.set(map[string]Device{}, nil)
	m := newTestMonitor(t, src)
	m.Refresh(context.Background())

	ch, cancel := m.Broker().Subscribe()
	defer cancel()
	drainEvents(ch)

	src.set(map[string]Device{"sdb": disk("sdb", 100)}, nil)
	m.Refresh(context.Background())

	// The same device with a changed attribute is a change event.
	changed := disk("sdb", 100)
	changed.Mounted = true
	src.set(map[string]Device{"sdb": changed}, nil)
	m.Refresh(context.Background())

	src.set(map[string]Device{}, nil)
	m.Refresh(context.Background())

	events := drainEvents(ch)
	require.Len(t, events, 3)
	assert.Equal(t, EventAdd, events[0].Type)
	assert.Equal(t, EventChange, events[1].Type)
	assert.True(t, events[1].Disk.Mounted)
	assert.Equal(t, EventRemove, events[2].Type)
	assert.Equal(t, "sdb", events[2].Disk.Name)
}

func TestMonitorFailedReadKeepsSnapshot(t *testing.T) {
	src := &scriptedInventory{}
	src.set(map[string]Device{"sdb": disk("sdb", 100)}, nil)
	m := newTestMonitor(t, src)
	m.Refresh(context.Background())

	ch, cancel := m.Broker().Subscribe()
	defer cancel()
	drainEvents(ch)

	src.set(nil, errors.New("udev unavailable"))
	m.Refresh(context.Background())

	assert.Empty(t, drainEvents(ch), "a failed read must not publish removals")
	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "sdb", snap[0].Name)

	d, ok := m.Get("sdb")
	assert.True(t, ok)
	assert.Equal(t, uint64(100), d.Size)
}

func TestMonitorSnapshotSorted(t *testing.T) {
	src := &scriptedInventory{}
	src.set(map[string]Device{
		"sdc":     disk("sdc", 1),
		"nvme0n1": disk("nvme0n1", 2),
		"sdb":     disk("sdb", 3),
	}, nil)
	m := newTestMonitor(t, src)
	m.Refresh(context.Background())

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "nvme0n1", snap[0].Name)
	assert.Equal(t, "sdb", snap[1].Name)
	assert.Equal(t, "sdc", snap[2].Name)
}

func TestMonitorInventoryTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	slow := func() (map[string]Device, error) {
		<-block
		return nil, nil
	}
	m := NewMonitor(slow, time.Minute, 20*time.Millisecond, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		m.Refresh(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh did not return after the inventory timeout")
	}
	assert.Empty(t, m.Snapshot())
}
