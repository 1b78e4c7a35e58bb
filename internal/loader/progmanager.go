package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aosp-mirror/netbpfload/internal/envprobe"
	"github.com/aosp-mirror/netbpfload/internal/loaderror"
	"github.com/aosp-mirror/netbpfload/internal/pin"
	"github.com/aosp-mirror/netbpfload/internal/sys"
	"github.com/aosp-mirror/netbpfload/internal/unix"
)

const verifierLogSize = 1 << 20 // 1 MiB

// ProgDef is the decoded on-disk layout of one entry of an ELF "progs"
// section, one per program symbol named "<progname>_def".
type ProgDef struct {
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

	Uid      uint32
	Gid      uint32
	Optional bool

	SelinuxContext [32]byte
	PinSubdir      [32]byte
}

func (d ProgDef) compatSpec() CompatSpec {
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

// CodeSection is one program section collected from the ELF object, with
// its ProgDef bound and, after LoadCodeSections, its kernel-assigned fd.
type CodeSection struct {
	Name               string
	ProgType           sys.ProgType
	ExpectedAttachType sys.AttachType
	HasAttachType      bool
	Insns              []byte
	Def                ProgDef

	FD     *sys.FD
	Reused bool
}

type progTypeEntry struct {
	prefix     string
	progType   sys.ProgType
	attachType sys.AttachType
	hasAttach  bool
}

// progTypeTable classifies a program section by name prefix; first match
// wins. Transcribed from the section-name to program-type table.
var progTypeTable = []progTypeEntry{
	{"bind4/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_INET4_BIND, true},
	{"bind6/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_INET6_BIND, true},
	{"cgroupskb/", sys.BPF_PROG_TYPE_CGROUP_SKB, 0, false},
	{"cgroupsockcreate/", sys.BPF_PROG_TYPE_CGROUP_SOCK, sys.BPF_CGROUP_INET_SOCK_CREATE, true},
	{"cgroupsockrelease/", sys.BPF_PROG_TYPE_CGROUP_SOCK, sys.BPF_CGROUP_INET_SOCK_RELEASE, true},
	{"cgroupsock/", sys.BPF_PROG_TYPE_CGROUP_SOCK, 0, false},
	{"connect4/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_INET4_CONNECT, true},
	{"connect6/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_INET6_CONNECT, true},
	{"egress/", sys.BPF_PROG_TYPE_CGROUP_SKB, sys.BPF_CGROUP_INET_EGRESS, true},
	{"ingress/", sys.BPF_PROG_TYPE_CGROUP_SKB, sys.BPF_CGROUP_INET_INGRESS, true},
	{"getsockopt/", sys.BPF_PROG_TYPE_CGROUP_SOCKOPT, sys.BPF_CGROUP_GETSOCKOPT, true},
	{"setsockopt/", sys.BPF_PROG_TYPE_CGROUP_SOCKOPT, sys.BPF_CGROUP_SETSOCKOPT, true},
	{"postbind4/", sys.BPF_PROG_TYPE_CGROUP_SOCK, sys.BPF_CGROUP_INET4_POST_BIND, true},
	{"postbind6/", sys.BPF_PROG_TYPE_CGROUP_SOCK, sys.BPF_CGROUP_INET6_POST_BIND, true},
	{"recvmsg4/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_UDP4_RECVMSG, true},
	{"recvmsg6/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_UDP6_RECVMSG, true},
	{"sendmsg4/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_UDP4_SENDMSG, true},
	{"sendmsg6/", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_UDP6_SENDMSG, true},
	{"schedact/", sys.BPF_PROG_TYPE_SCHED_ACT, 0, false},
	{"schedcls/", sys.BPF_PROG_TYPE_SCHED_CLS, 0, false},
	{"skfilter/", sys.BPF_PROG_TYPE_SOCKET_FILTER, 0, false},
	{"sockops/", sys.BPF_PROG_TYPE_SOCK_OPS, sys.BPF_CGROUP_SOCK_OPS, true},
	{"sysctl", sys.BPF_PROG_TYPE_CGROUP_SYSCTL, sys.BPF_CGROUP_SYSCTL, true},
	{"xdp/", sys.BPF_PROG_TYPE_XDP, 0, false},
}

// classifySection returns the program type table entry for name, or false
// if name does not begin with any known prefix (not a program section).
func classifySection(name string) (progTypeEntry, bool) {
	for _, e := range progTypeTable {
		if strings.HasPrefix(name, e.prefix) {
			return e, true
		}
	}
	return progTypeEntry{}, false
}

// LoadCodeSections runs the program manager's per-program algorithm.
// license is the NUL-terminated string read from the ELF "license" section;
// objName/prefix feed the pin-path formula, matching CreateMaps.
func LoadCodeSections(sections []CodeSection, license string, env *envprobe.Env, objName, prefix string, logger *slog.Logger) error {
	for i := range sections {
		cs := &sections[i]

		if Evaluate(cs.Def.compatSpec(), env) == Skip {
			continue
		}

		selinux := DomainFromSelinuxContext(cs.Def.SelinuxContext[:])
		pinSubdir := DomainFromPinSubdir(cs.Def.PinSubdir[:])
		canonical := canonicalProgName(cs.Name)
		finalPath := ProgPinPath(selinux, pinSubdir, prefix, objName, cs.Name)

		exists, err := pin.Exists(finalPath)
		if err != nil {
			return fmt.Errorf("program %s: %w", canonical, err)
		}

		if exists {
			fd, err := sys.ObjGet(finalPath, 0)
			if err != nil {
				return fmt.Errorf("program %s: reuse pinned program: %w", canonical, err)
			}
			cs.FD = fd
			cs.Reused = true
			continue
		}

		fd, err := loadProgram(cs, license, env, logger)
		if err != nil {
			if cs.Def.Optional {
				logger.Warn("optional program failed to load, skipping", "program", canonical, "error", loaderror.Optional(err, true))
				continue
			}
			return fmt.Errorf("program %s: %w", canonical, err)
		}

		if err := pinProgram(fd, selinux, finalPath, objName, cs.Name); err != nil {
			fd.Close()
			return fmt.Errorf("program %s: %w", canonical, err)
		}
		if err := unix.Chmod(finalPath, 0440); err != nil {
			return fmt.Errorf("program %s: chmod: %w", canonical, err)
		}
		if err := unix.Chown(finalPath, int(cs.Def.Uid), int(cs.Def.Gid)); err != nil {
			return fmt.Errorf("program %s: chown: %w", canonical, err)
		}

		cs.FD = fd
	}

	return nil
}

func loadProgram(cs *CodeSection, license string, env *envprobe.Env, logger *slog.Logger) (*sys.FD, error) {
	logBuf := make([]byte, verifierLogSize)

	attr := &sys.ProgLoadAttr{
		ProgType:    cs.ProgType,
		InsnCnt:     uint32(len(cs.Insns) / 8),
		Insns:       sys.SlicePointer(cs.Insns),
		License:     sys.NewStringPointer(license),
		LogLevel:    1,
		LogSize:     uint32(len(logBuf)),
		LogBuf:      sys.SlicePointer(logBuf),
		KernVersion: env.KernelVersion,
	}
	if cs.HasAttachType {
		attr.ExpectedAttachType = cs.ExpectedAttachType
	}
	if env.AtLeastKernel(4, 15, 0) {
		attr.ProgName = sys.NewObjName(canonicalProgName(cs.Name))
	}

	fd, err := sys.ProgLoad(attr)
	if err != nil {
		dumpVerifierLog(logger, cs.Name, logBuf)
		return nil, err
	}
	return fd, nil
}

func dumpVerifierLog(logger *slog.Logger, progName string, buf []byte) {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	scanner := bufio.NewScanner(bytes.NewReader(buf))
	for scanner.Scan() {
		logger.Warn("verifier", "program", progName, "line", scanner.Text())
	}
}

func pinProgram(fd *sys.FD, selinux Domain, finalPath, objName, progName string) error {
	if selinux.Specified() {
		tmpPath := ProgTempPinPath(selinux, objName, progName)
		return pin.PinWithSELinux(fd, tmpPath, finalPath)
	}
	return pin.Direct(finalPath, fd)
}
