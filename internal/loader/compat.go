package loader

import "github.com/aosp-mirror/netbpfload/internal/envprobe"

// CompatSpec is the subset of a MapDef/ProgDef the compatibility gate
// consults: a kernel version range, a bpfloader version range, and the
// per-build/per-arch ignore flags. Both MapDef and ProgDef project their
// fields into this shape before calling Evaluate.
type CompatSpec struct {
	MinKver           uint32
	MaxKver           uint32
	MinBpfloader      uint32
	MaxBpfloader      uint32
	IgnoreOnEng       bool
	IgnoreOnUser      bool
	IgnoreOnUserdebug bool
	IgnoreOnArm32     bool
	IgnoreOnAarch64   bool
	IgnoreOnX86_32    bool
	IgnoreOnX86_64    bool
	IgnoreOnRiscv64   bool
}

// Verdict is the compatibility gate's result for one map or program.
type Verdict int

const (
	Load Verdict = iota
	Skip
)

// Evaluate is a pure function of spec and env: kernel range is
// [min_kver, max_kver), bpfloader range is [min_bpfloader, max_bpfloader),
// and any matching ignore_on_<build> or ignore_on_<arch> flag forces Skip
// regardless of the ranges.
func Evaluate(spec CompatSpec, env *envprobe.Env) Verdict {
	if spec.MaxKver != 0 && env.KernelVersion >= spec.MaxKver {
		return Skip
	}
	if env.KernelVersion < spec.MinKver {
		return Skip
	}

	loaderVersion := env.LoaderVersion()
	if spec.MaxBpfloader != 0 && loaderVersion >= spec.MaxBpfloader {
		return Skip
	}
	if loaderVersion < spec.MinBpfloader {
		return Skip
	}

	if spec.IgnoreOnEng && env.IsEng() {
		return Skip
	}
	if spec.IgnoreOnUser && env.IsUser() {
		return Skip
	}
	if spec.IgnoreOnUserdebug && env.IsUserdebug() {
		return Skip
	}

	switch env.Arch {
	case envprobe.ArchArm32:
		if spec.IgnoreOnArm32 {
			return Skip
		}
	case envprobe.ArchAarch64:
		if spec.IgnoreOnAarch64 {
			return Skip
		}
	case envprobe.ArchX86_32:
		if spec.IgnoreOnX86_32 {
			return Skip
		}
	case envprobe.ArchX86_64:
		if spec.IgnoreOnX86_64 {
			return Skip
		}
	case envprobe.ArchRiscv64:
		if spec.IgnoreOnRiscv64 {
			return Skip
		}
	}

	return Load
}
