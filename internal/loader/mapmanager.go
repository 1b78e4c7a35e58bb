package loader

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/aosp-mirror/netbpfload/internal/envprobe"
	"github.com/aosp-mirror/netbpfload/internal/loaderror"
	"github.com/aosp-mirror/netbpfload/internal/pin"
	"github.com/aosp-mirror/netbpfload/internal/sys"
	"github.com/aosp-mirror/netbpfload/internal/unix"
)

const pageSize = 4096

// MapDef is the decoded on-disk layout of one entry of an ELF "maps"
// section. Field order mirrors the wire struct; MapDefSize is its exact
// encoded size, used to validate the section's total length is an integral
// multiple of it.
type MapDef struct {
	Type       sys.MapType
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	MapFlags   sys.MapFlags
	Zero       uint32
	Uid        uint32
	Gid        uint32
	Mode       uint32

	BpfloaderMinVer uint32
	BpfloaderMaxVer uint32
	MinKver         uint32
	MaxKver         uint32

	IgnoreOnEng       bool
	IgnoreOnUser      bool
	IgnoreOnUserdebug bool
	IgnoreOnArm32     bool
	IgnoreOnAarch64   bool
	IgnoreOnX86_32    bool
	IgnoreOnX86_64    bool
	IgnoreOnRiscv64   bool

	Shared bool

	SelinuxContext [32]byte
	PinSubdir      [32]byte

	// Name is the map's ELF symbol name, not part of the wire struct.
	Name string
}

// MapDefSize is the encoded size of one MapDef entry in the "maps" section.
// maps is required to be an exact multiple of this. 13 leading uint32
// fields (52 bytes) + 2 flag bytes + 2 padding bytes + two 32-byte string
// fields.
const MapDefSize = 13*4 + 2 + 2 + 32 + 32

func (d MapDef) compatSpec() CompatSpec {
	return CompatSpec{
		MinKver:           d.MinKver,
		MaxKver:           d.MaxKver,
		MinBpfloader:      d.BpfloaderMinVer,
		MaxBpfloader:      d.BpfloaderMaxVer,
		IgnoreOnEng:       d.IgnoreOnEng,
		IgnoreOnUser:      d.IgnoreOnUser,
		IgnoreOnUserdebug: d.IgnoreOnUserdebug,
		IgnoreOnArm32:     d.IgnoreOnArm32,
		IgnoreOnAarch64:   d.IgnoreOnAarch64,
		IgnoreOnX86_32:    d.IgnoreOnX86_32,
		IgnoreOnX86_64:    d.IgnoreOnX86_64,
		IgnoreOnRiscv64:   d.IgnoreOnRiscv64,
	}
}

// MapSlot is one entry of the per-object map-fd vector: either an open fd
// for a loaded/reused map, or an empty slot for a skipped one. Slots keep
// index correspondence with the maps section's symbol order, skipped maps
// included; the relocator looks slots up by Name.
type MapSlot struct {
	Name   string
	FD     *sys.FD
	Reused bool
}

// CreateMaps runs the map manager's per-map algorithm over every def, in the
// order given (the caller is responsible for producing that order via the
// sort-by-value order the ELF reader exposes). objName and prefix feed the
// pin-path formula; prefix is the Location's fallback pin directory, used
// when a map does not specify its own pin_subdir.
func CreateMaps(defs []MapDef, env *envprobe.Env, objName, prefix string) ([]MapSlot, error) {
	slots := make([]MapSlot, len(defs))

	for i, d := range defs {
		if d.Zero != 0 {
			loaderror.Bug("map %s has non-zero reserved field", d.Name)
		}

		slots[i].Name = d.Name

		if Evaluate(d.compatSpec(), env) == Skip {
			continue
		}

		mapType, flags := substituteLegacyType(d.Type, d.MapFlags, env)
		maxEntries := d.MaxEntries
		if mapType == sys.BPF_MAP_TYPE_RINGBUF {
			maxEntries = roundUpPage(maxEntries)
		}

		selinux := DomainFromSelinuxContext(d.SelinuxContext[:])
		pinSubdir := DomainFromPinSubdir(d.PinSubdir[:])
		finalPath := MapPinPath(selinux, pinSubdir, prefix, objName, d.Name, d.Shared)

		fd, reused, err := createOrReuseMap(mapType, d.KeySize, d.ValueSize, maxEntries, flags, d.Name, finalPath, env)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", d.Name, err)
		}

		if !reused {
			if err := pinMap(fd, selinux, finalPath, objName, d.Name); err != nil {
				fd.Close()
				return nil, fmt.Errorf("map %s: %w", d.Name, err)
			}
			if err := unix.Chmod(finalPath, d.Mode); err != nil {
				return nil, fmt.Errorf("map %s: chmod: %w", d.Name, err)
			}
			if err := unix.Chown(finalPath, int(d.Uid), int(d.Gid)); err != nil {
				return nil, fmt.Errorf("map %s: chown: %w", d.Name, err)
			}
		}

		slots[i].FD = fd
		slots[i].Reused = reused
	}

	return slots, nil
}

// substituteLegacyType applies the DEVMAP/DEVMAP_HASH backward-compat
// substitutions and computes the resulting effective map_flags.
func substituteLegacyType(t sys.MapType, flags sys.MapFlags, env *envprobe.Env) (sys.MapType, sys.MapFlags) {
	switch t {
	case sys.BPF_MAP_TYPE_DEVMAP:
		if !env.AtLeastKernel(4, 14, 0) {
			t = sys.BPF_MAP_TYPE_ARRAY
		}
		flags |= sys.BPF_F_RDONLY_PROG
	case sys.BPF_MAP_TYPE_DEVMAP_HASH:
		if !env.AtLeastKernel(5, 4, 0) {
			t = sys.BPF_MAP_TYPE_HASH
		}
		flags |= sys.BPF_F_RDONLY_PROG
	case sys.BPF_MAP_TYPE_LPM_TRIE:
		flags |= sys.BPF_F_NO_PREALLOC
	}
	return t, flags
}

func roundUpPage(n uint32) uint32 {
	if n%pageSize == 0 {
		return n
	}
	return (n/pageSize + 1) * pageSize
}

// createOrReuseMap implements steps 6-9 of the map manager algorithm: reuse
// an existing pin if present, else create and shape-validate.
func createOrReuseMap(mapType sys.MapType, keySize, valueSize, maxEntries uint32, flags sys.MapFlags, name, finalPath string, env *envprobe.Env) (fd *sys.FD, reused bool, err error) {
	exists, err := pin.Exists(finalPath)
	if err != nil {
		return nil, false, err
	}
	if exists {
		fd, err = sys.ObjGet(finalPath, 0)
		if err != nil {
			return nil, false, fmt.Errorf("reuse pinned map: %w", err)
		}
		if err := validateShape(fd, mapType, keySize, valueSize, maxEntries, flags, env); err != nil {
			fd.Close()
			return nil, false, err
		}
		return fd, true, nil
	}

	attr := &sys.MapCreateAttr{
		MapType:    mapType,
		KeySize:    keySize,
		ValueSize:  valueSize,
		MaxEntries: maxEntries,
		MapFlags:   flags,
	}
	if env.AtLeastKernel(4, 15, 0) {
		attr.MapName = sys.NewObjName(name)
	}

	fd, err = sys.MapCreate(attr)
	if err != nil {
		return nil, false, err
	}
	return fd, false, nil
}

// validateShape is the "Shape validation" step: only performed on kernels
// >=4.14, and only a soft no-op (UNSUPPORTED) if the kernel doesn't report
// the queried fields.
func validateShape(fd *sys.FD, mapType sys.MapType, keySize, valueSize, maxEntries uint32, flags sys.MapFlags, env *envprobe.Env) error {
	if !env.AtLeastKernel(4, 14, 0) {
		return nil
	}

	var info sys.MapInfo
	err := sys.ObjGetInfoByFD(fd, unsafe.Pointer(&info), unsafe.Sizeof(info))
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) {
		return nil // UNSUPPORTED: skip shape check
	}
	if err != nil {
		return fmt.Errorf("get map info: %w", err)
	}

	mismatch := info.Type != uint32(mapType) ||
		info.KeySize != keySize ||
		info.ValueSize != valueSize ||
		info.MaxEntries != maxEntries ||
		info.MapFlags != uint32(flags)
	if mismatch {
		return fmt.Errorf("pinned map shape mismatch: %w", loaderror.ErrNotUnique)
	}
	return nil
}

// pinMap applies the two-step SELinux rename protocol, or a direct pin when
// no SELinux context was requested.
func pinMap(fd *sys.FD, selinux Domain, finalPath, objName, mapName string) error {
	if selinux.Specified() {
		tmpPath := MapTempPinPath(selinux, objName, mapName)
		return pin.PinWithSELinux(fd, tmpPath, finalPath)
	}
	return pin.Direct(finalPath, fd)
}
