// pkg/devices/inventory.go

package devices

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	cerr "github.com/cockroachdb/errors"
	"github.com/jaypipes/ghw"
)

// ignoredPrefixes are kernel block devices that are not physical disks and
// must never appear in the wipe inventory.
var ignoredPrefixes = []string{"loop", "md", "dm-", "zram", "sr", "ram"}

// InventoryFunc reads the current whole-disk inventory keyed by device name.
type InventoryFunc func() (map[string]Device, error)

// NewInventory returns the production inventory reader: ghw for the device
// census, sysfs for the rotational flag and transport, /proc/self/mounts for
// whole-device mounts. Protected membership is evaluated per read so config
// reloads take effect on the next poll.
func NewInventory(protected *ProtectedSet) InventoryFunc {
	return func() (map[string]Device, error) {
		block, err := ghw.Block()
		if err != nil {
			return nil, cerr.Wrap(err, "read block inventory")
		}

		mounts, err := readMounts("/proc/self/mounts")
		if err != nil {
			return nil, cerr.Wrap(err, "read mount table")
		}

		result := make(map[string]Device, len(block.Disks))
		for _, disk := range block.Disks {
			name := disk.Name
			if name == "" || hasIgnoredPrefix(name) {
				continue
			}

			mounted := false
			if _, ok := mounts["/dev/"+name]; ok {
				mounted = true
			}
			for _, part := range disk.Partitions {
				if part.MountPoint != "" {
					mounted = true
					break
				}
			}

			result[name] = Device{
				Name:       name,
				Path:       "/dev/" + name,
				Size:       disk.SizeBytes,
				Model:      cleanField(disk.Model),
				Serial:     cleanField(disk.SerialNumber),
				Vendor:     cleanField(disk.Vendor),
				WWN:        cleanField(disk.WWN),
				Transport:  transportFor(name),
				Rotational: IsRotational(name),
				Mounted:    mounted,
				Protected:  protected.Contains(name),
			}
		}
		return result, nil
	}
}

// IsRotational reads the kernel's rotational flag. Unknown media is treated
// as rotational so the engine never picks an SSD method for a device it
// cannot classify.
func IsRotational(name string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/block", name, "queue/rotational"))
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(data)) == "1"
}

// transportFor derives the bus type from the device name and its sysfs
// device path. lsblk's TRAN column does the same walk; we avoid shelling out.
func transportFor(name string) string {
	switch {
	case strings.HasPrefix(name, "nvme"):
		return "nvme"
	case strings.HasPrefix(name, "vd"):
		return "virtio"
	case strings.HasPrefix(name, "mmcblk"):
		return "mmc"
	}
	if target, err := filepath.EvalSymlinks(filepath.Join("/sys/block", name)); err == nil {
		if strings.Contains(target, "/usb") {
			return "usb"
		}
	}
	return "sata"
}

// readMounts parses a mounts(5) table into source -> first mountpoint.
func readMounts(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mounts := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if _, ok := mounts[fields[0]]; !ok {
			mounts[fields[0]] = fields[1]
		}
	}
	return mounts, scanner.Err()
}

// MountsFor returns every mounted source path that is the device itself or
// one of its partitions, e.g. /dev/sdb and /dev/sdb1. Used by the guardrail.
func MountsFor(devicePath string) ([]string, error) {
	mounts, err := readMounts("/proc/self/mounts")
	if err != nil {
		return nil, err
	}
	var hits []string
	for source := range mounts {
		if source == devicePath || isPartitionOf(source, devicePath) {
			hits = append(hits, source)
		}
	}
	return hits, nil
}

// isPartitionOf reports whether candidate names a partition of devicePath,
// covering both sdb1 and nvme0n1p1 naming.
func isPartitionOf(candidate, devicePath string) bool {
	if !strings.HasPrefix(candidate, devicePath) {
		return false
	}
	suffix := candidate[len(devicePath):]
	if suffix == "" {
		return false
	}
	suffix = strings.TrimPrefix(suffix, "p")
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(suffix) > 0
}

func hasIgnoredPrefix(name string) bool {
	for _, p := range ignoredPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// cleanField normalizes ghw's "unknown" placeholders to empty strings so the
// UI renders blanks instead of noise.
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}
