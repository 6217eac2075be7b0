// pkg/devices/types.go

package devices

import (
	"sort"
	"sync"
)

// Device is the read-model for one whole-disk block device. It is rebuilt
// from OS inventory on every poll; identity is Name. JSON keys match the
// wire contract the station UI consumes.
type Device struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Size       uint64 `json:"size"`
	Model      string `json:"model"`
	Serial     string `json:"serial"`
	Vendor     string `json:"vendor"`
	WWN        string `json:"wwn"`
	Transport  string `json:"tran"`
	Rotational bool   `json:"rotational"`
	Mounted    bool   `json:"mounted"`
	Protected  bool   `json:"protected"`
}

// Event is one entry on the disk SSE channel.
type Event struct {
	Type  string   `json:"type"` // snapshot, add, change, remove
	Disk  *Device  `json:"disk,omitempty"`
	Disks []Device `json:"disks,omitempty"`
	TS    float64  `json:"ts"`
}

const (
	EventSnapshot = "snapshot"
	EventAdd      = "add"
	EventChange   = "change"
	EventRemove   = "remove"
)

// ProtectedSet is the reloadable set of disk names that must never be wiped.
// The boot disk is always in it on shipped kiosk images.
type ProtectedSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewProtectedSet builds a set from the configured names.
func NewProtectedSet(names []string) *ProtectedSet {
	ps := &ProtectedSet{}
	ps.Replace(names)
	return ps
}

// Replace swaps the full set; used by config live reload.
func (ps *ProtectedSet) Replace(names []string) {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	ps.mu.Lock()
	ps.names = set
	ps.mu.Unlock()
}

// Contains reports whether a disk name is protected.
func (ps *ProtectedSet) Contains(name string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.names[name]
	return ok
}

// List returns the protected names sorted for stable API output.
func (ps *ProtectedSet) List() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, 0, len(ps.names))
	for n := range ps.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
