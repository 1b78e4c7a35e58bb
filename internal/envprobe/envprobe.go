// Package envprobe samples the process's kernel version, CPU architecture
// class, userspace bit-width, build flavor and device API level once and
// exposes them as predicates the compatibility gate and orchestrator
// consult. Grounded on original_source/bpf/headers/include/bpf/KernelUtils.h
// and NetBpfLoad.cpp's doLoad() preflight.
package envprobe

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/aosp-mirror/netbpfload/internal/unix"
)

// Build flavor, mirroring Android's ro.build.type property values. Stock Go
// has no property system to read this from, so it is sampled from an
// environment variable and defaults to "user" (the most restrictive flavor,
// so an un-configured probe never over-grants ignore_on_eng/userdebug
// exemptions).
type BuildFlavor string

const (
	BuildEng       BuildFlavor = "eng"
	BuildUser      BuildFlavor = "user"
	BuildUserdebug BuildFlavor = "userdebug"
)

// Arch classifies the CPU architecture the way MapDef/ProgDef's
// ignore_on_{arm32,aarch64,x86_32,x86_64,riscv64} fields do.
type Arch string

const (
	ArchArm32   Arch = "arm32"
	ArchAarch64 Arch = "aarch64"
	ArchX86_32  Arch = "x86_32"
	ArchX86_64  Arch = "x86_64"
	ArchRiscv64 Arch = "riscv64"
)

// Android API levels the loader's kernel gate cares about.
const (
	ApiT = 33
	ApiU = 34
	ApiV = 35
	ApiW = 36

	// MainlineVersion is the base bpfloader version the loader-version
	// derivation adds feature bits to.
	MainlineVersion = 42
)

// Env is a sampled snapshot of the process's environment. Construct with
// Probe(); the zero value is only useful for tests that fill in fields
// directly.
type Env struct {
	KernelVersion     uint32 // (major<<16)|(minor<<8)|sub, each field clamped to 0xff
	KernelMajor       int
	KernelMinor       int
	KernelSub         int
	Arch              Arch
	KernelIs32Bit     bool
	UserspaceIs32Bit  bool
	Build             BuildFlavor
	ApiLevel          int
	EffectiveApiLevel int
	RunningAsRoot     bool
}

var kverRegexp = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?`)

// Probe samples the environment once. Callers should hold onto the result
// for the lifetime of a load rather than calling Probe repeatedly.
func Probe() (*Env, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return nil, fmt.Errorf("uname: %w", err)
	}

	release := cstring(uname.Release[:])
	major, minor, sub, err := parseKernelRelease(release)
	if err != nil {
		return nil, fmt.Errorf("parse kernel release %q: %w", release, err)
	}

	e := &Env{
		KernelMajor:      major,
		KernelMinor:      minor,
		KernelSub:        sub,
		KernelVersion:    pack(major, minor, sub),
		UserspaceIs32Bit: is32BitUserspace(),
		Build:            buildFlavor(),
		RunningAsRoot:    os.Geteuid() == 0,
	}
	e.Arch = archOf(cstring(uname.Machine[:]), e.UserspaceIs32Bit)
	e.KernelIs32Bit = !e.UserspaceIs32Bit && !strings.Contains(cstring(uname.Machine[:]), "64")
	if e.UserspaceIs32Bit {
		e.KernelIs32Bit = false // LP64 kernels run ILP32 userspace; 32-bit userspace says nothing about the kernel
	}

	e.ApiLevel = apiLevel()
	e.EffectiveApiLevel = e.ApiLevel
	if isPreRelease() {
		e.EffectiveApiLevel++
	}

	return e, nil
}

func pack(major, minor, sub int) uint32 {
	clamp := func(v int) uint32 {
		if v < 0 {
			return 0
		}
		if v > 0xff {
			return 0xff
		}
		return uint32(v)
	}
	return clamp(major)<<16 | clamp(minor)<<8 | clamp(sub)
}

func parseKernelRelease(release string) (major, minor, sub int, err error) {
	m := kverRegexp.FindStringSubmatch(release)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("unrecognized release format")
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		sub, _ = strconv.Atoi(m[3])
	}
	return major, minor, sub, nil
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func is32BitUserspace() bool {
	return strconv.IntSize == 32
}

func archOf(machine string, userspace32 bool) Arch {
	switch {
	case strings.HasPrefix(machine, "aarch64"):
		if userspace32 {
			return ArchArm32
		}
		return ArchAarch64
	case strings.HasPrefix(machine, "arm"):
		return ArchArm32
	case machine == "riscv64":
		return ArchRiscv64
	case strings.HasPrefix(machine, "x86_64") || machine == "amd64":
		if userspace32 {
			return ArchX86_32
		}
		return ArchX86_64
	case strings.HasPrefix(machine, "i386") || strings.HasPrefix(machine, "i686"):
		return ArchX86_32
	default:
		return ArchAarch64
	}
}

func buildFlavor() BuildFlavor {
	switch BuildFlavor(os.Getenv("NETBPFLOAD_BUILD_TYPE")) {
	case BuildEng:
		return BuildEng
	case BuildUserdebug:
		return BuildUserdebug
	default:
		return BuildUser
	}
}

func apiLevel() int {
	if v := os.Getenv("NETBPFLOAD_SDK_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return ApiV
}

func isPreRelease() bool {
	codename := os.Getenv("NETBPFLOAD_CODENAME")
	return codename != "" && codename != "REL"
}

// AtLeastKernel reports whether the probed kernel is >= major.minor.sub.
func (e *Env) AtLeastKernel(major, minor, sub int) bool {
	return e.KernelVersion >= pack(major, minor, sub)
}

func (e *Env) IsArm() bool   { return e.Arch == ArchArm32 || e.Arch == ArchAarch64 }
func (e *Env) IsX86() bool   { return e.Arch == ArchX86_32 || e.Arch == ArchX86_64 }
func (e *Env) IsRiscV() bool { return e.Arch == ArchRiscv64 }

func (e *Env) IsUser() bool      { return e.Build == BuildUser }
func (e *Env) IsEng() bool       { return e.Build == BuildEng }
func (e *Env) IsUserdebug() bool { return e.Build == BuildUserdebug }

// ltsKernels lists the major.minor pairs Android's compatibility docs
// require V+ devices to ship an LTS kernel from.
var ltsKernels = [][2]int{{4, 4}, {4, 9}, {4, 14}, {4, 19}, {5, 4}, {5, 10}, {5, 15}, {6, 1}, {6, 6}}

// IsLtsKernel reports whether the probed kernel's major.minor matches a
// known Android LTS release.
func (e *Env) IsLtsKernel() bool {
	for _, mm := range ltsKernels {
		if e.KernelMajor == mm[0] && e.KernelMinor == mm[1] {
			return true
		}
	}
	return false
}

// LoaderVersion derives the running bpfloader version, exactly the formula
// NetBpfLoad.cpp's doLoad() uses: a mainline base plus one point per Android
// release the device has crossed, plus one point for running as root.
func (e *Env) LoaderVersion() uint32 {
	v := uint32(MainlineVersion)
	if e.EffectiveApiLevel >= ApiT {
		v++
	}
	if e.EffectiveApiLevel >= ApiU {
		v++
	}
	if e.RunningAsRoot {
		v++
	}
	if e.EffectiveApiLevel >= ApiV {
		v++
	}
	if e.EffectiveApiLevel >= ApiW {
		v++
	}
	return v
}

// minKernelForApi is the minimum kernel version doLoad() requires for a
// device that claims a given effective API level.
var minKernelForApi = map[int][3]int{
	ApiT: {4, 9, 0},
	ApiU: {4, 14, 0},
	ApiV: {4, 19, 0},
}

// CheckKernelSupport reports advisory strings for non-fatal concerns (e.g. a
// V+ device on a non-LTS kernel) and a hard failure when the running kernel
// is strictly below what the device's claimed API level requires.
func (e *Env) CheckKernelSupport() (advisories []string, fatal bool) {
	if min, ok := minKernelForApi[e.EffectiveApiLevel]; ok {
		if !e.AtLeastKernel(min[0], min[1], min[2]) {
			fatal = true
			advisories = append(advisories, fmt.Sprintf(
				"kernel %d.%d.%d is below the %d.%d.%d minimum for API level %d",
				e.KernelMajor, e.KernelMinor, e.KernelSub, min[0], min[1], min[2], e.EffectiveApiLevel))
		}
	}
	if e.EffectiveApiLevel >= ApiV && !e.IsLtsKernel() {
		advisories = append(advisories, fmt.Sprintf(
			"kernel %d.%d is not a known LTS release; V+ devices should ship an LTS kernel",
			e.KernelMajor, e.KernelMinor))
	}
	return advisories, fatal
}

// ApexVersion parses /proc/mounts (or the file at mountsPath) for the block
// device backing the tethering mainline module and returns its "@NNN"
// version suffix, purely for diagnostic logging.
func ApexVersion(mountsPath string) (string, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	const marker = "/apex/com.android.tethering"
	atRegexp := regexp.MustCompile(`@(\d+)`)

	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 2 {
			continue
		}
		device, mountPoint := fields[0], fields[1]
		if mountPoint != marker {
			continue
		}
		if m := atRegexp.FindStringSubmatch(device); m != nil {
			return "@" + m[1], nil
		}
		return "", fmt.Errorf("mount device %q for %s has no version suffix", device, marker)
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no mount found for %s", marker)
}
