package loader

import (
	"fmt"
	"unsafe"

	"github.com/aosp-mirror/netbpfload/internal/unix"
)

// bpfFSMagic is the f_type value statfs(2) reports for a bpf filesystem
// (BPF_FS_MAGIC in the kernel).
const bpfFSMagic = 0xcafe4a11

// checkBpfFS verifies path is mounted as bpffs before the orchestrator tries
// to pin anything under it; the loader never mounts bpffs itself.
func checkBpfFS(path string) error {
	var statfs unix.Statfs_t
	if err := unix.Statfs(path, &statfs); err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}

	fsType := int64(statfs.Type)
	if unsafe.Sizeof(statfs.Type) == 4 {
		fsType = int64(uint32(statfs.Type))
	}
	if fsType != bpfFSMagic {
		return fmt.Errorf("%s is not a bpf filesystem", path)
	}
	return nil
}
