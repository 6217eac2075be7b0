package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPartitionOf(t *testing.T) {
	tests := []struct {
		candidate string
		device    string
		want      bool
	}{
		{"/dev/sdb1", "/dev/sdb", true},
		{"/dev/sdb12", "/dev/sdb", true},
		{"/dev/nvme0n1p1", "/dev/nvme0n1", true},
		{"/dev/nvme0n1p12", "/dev/nvme0n1", true},
		{"/dev/mmcblk0p2", "/dev/mmcblk0", true},
		{"/dev/sdb", "/dev/sdb", false},
		{"/dev/sdba", "/dev/sdb", false}, // sibling disk, not a partition
		{"/dev/sdb1", "/dev/sdc", false},
		{"/dev/nvme0n1p", "/dev/nvme0n1", false}, // bare p with no number
		{"/dev/sda1", "/dev/sd", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isPartitionOf(tt.candidate, tt.device),
			"%s vs %s", tt.candidate, tt.device)
	}
}

func TestReadMounts(t *testing.T) {
	content := `/dev/sda1 / ext4 rw,relatime 0 0
/dev/sda1 /snap squashfs ro 0 0
/dev/sdb1 /mnt/data ext4 rw 0 0
proc /proc proc rw 0 0
malformed-line
`
	path := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	mounts, err := readMounts(path)
	require.NoError(t, err)

	// First mountpoint wins for a source mounted twice.
	assert.Equal(t, "/", mounts["/dev/sda1"])
	assert.Equal(t, "/mnt/data", mounts["/dev/sdb1"])
	assert.Equal(t, "/proc", mounts["proc"])
	assert.NotContains(t, mounts, "malformed-line")
}

func TestReadMountsMissingFile(t *testing.T) {
	_, err := readMounts(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestHasIgnoredPrefix(t *testing.T) {
	for _, name := range []string{"loop0", "md127", "dm-3", "zram0", "sr0", "ram1"} {
		assert.True(t, hasIgnoredPrefix(name), name)
	}
	for _, name := range []string{"sda", "sdb", "nvme0n1", "vda", "mmcblk0"} {
		assert.False(t, hasIgnoredPrefix(name), name)
	}
}

func TestCleanField(t *testing.T) {
	assert.Equal(t, "", cleanField("unknown"))
	assert.Equal(t, "", cleanField("Unknown"))
	assert.Equal(t, "", cleanField("  UNKNOWN "))
	assert.Equal(t, "Samsung SSD 870", cleanField(" Samsung SSD 870 "))
	assert.Equal(t, "", cleanField(""))
}

func TestProtectedSetReplace(t *testing.T) {
	ps := NewProtectedSet([]string{"sda"})
	assert.True(t, ps.Contains("sda"))
	assert.False(t, ps.Contains("sdb"))

	ps.Replace([]string{"sdb", "sdc"})
	assert.False(t, ps.Contains("sda"))
	assert.True(t, ps.Contains("sdb"))
	assert.Equal(t, []string{"sdb", "sdc"}, ps.List())
}
