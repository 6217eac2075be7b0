// pkg/guardrail/validator.go

package guardrail

import (
	"fmt"
	"path/filepath"
	"regexp"

	"golang.org/x/sys/unix"

	"github.com/tcs-recycling/wipestation/pkg/devices"
)

// Package guardrail implements the pre-flight safety checks run before any
// wipe is admitted. This is a fast-fail UX guard, not the security boundary:
// the privileged helper re-runs the same checks independently.

// Reason identifies why a device was rejected.
type Reason string

const (
	InvalidDevice    Reason = "InvalidDevice"
	NotABlockDevice  Reason = "NotABlockDevice"
	ProtectedDevice  Reason = "ProtectedDevice"
	DeviceMounted    Reason = "DeviceMounted"
	PartitionMounted Reason = "PartitionMounted"
)

// Rejection is the typed error returned when a check fails.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// ReasonOf extracts the rejection reason, or "" for other errors.
func ReasonOf(err error) Reason {
	if r, ok := err.(*Rejection); ok {
		return r.Reason
	}
	return ""
}

// wholeDiskPattern accepts whole-disk device paths only. Partition suffixes
// (sdb1, nvme0n1p2) and anything outside /dev are rejected outright.
var wholeDiskPattern = regexp.MustCompile(`^/dev/(sd[a-z]+|vd[a-z]+|nvme\d+n\d+|mmcblk\d+)$`)

// Validator runs the ordered guardrail checks. The stat and mount probes are
// injectable for tests; production wiring uses the kernel directly.
type Validator struct {
	protected *devices.ProtectedSet
	stat      func(path string) (uint32, error) // returns stat mode
	mountsFor func(devicePath string) ([]string, error)
}

// NewValidator builds the production validator.
func NewValidator(protected *devices.ProtectedSet) *Validator {
	return &Validator{
		protected: protected,
		stat:      statMode,
		mountsFor: devices.MountsFor,
	}
}

// NewValidatorWithProbes builds a validator with injected OS probes.
func NewValidatorWithProbes(
	protected *devices.ProtectedSet,
	stat func(string) (uint32, error),
	mountsFor func(string) ([]string, error),
) *Validator {
	return &Validator{protected: protected, stat: stat, mountsFor: mountsFor}
}

// Validate runs the five checks in order, short-circuiting on the first
// failure:
//  1. whole-disk naming pattern
//  2. path is a real block device
//  3. not on the protected list
//  4. device itself not mounted
//  5. no partition of the device mounted
func (v *Validator) Validate(devicePath string) error {
	if !wholeDiskPattern.MatchString(devicePath) {
		return &Rejection{Reason: InvalidDevice, Detail: devicePath}
	}

	mode, err := v.stat(devicePath)
	if err != nil || mode&unix.S_IFMT != unix.S_IFBLK {
		return &Rejection{Reason: NotABlockDevice, Detail: devicePath}
	}

	name := filepath.Base(devicePath)
	if v.protected.Contains(name) {
		return &Rejection{Reason: ProtectedDevice, Detail: name}
	}

	mounted, err := v.mountsFor(devicePath)
	if err != nil {
		// Cannot prove the device is unmounted; refuse rather than guess.
		return &Rejection{Reason: DeviceMounted, Detail: "mount table unreadable: " + err.Error()}
	}
	for _, source := range mounted {
		if source == devicePath {
			return &Rejection{Reason: DeviceMounted, Detail: source}
		}
	}
	for _, source := range mounted {
		return &Rejection{Reason: PartitionMounted, Detail: source}
	}

	return nil
}

func statMode(path string) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return st.Mode, nil
}
