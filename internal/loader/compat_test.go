package loader

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/aosp-mirror/netbpfload/internal/envprobe"
)

func TestEvaluateKernelRange(t *testing.T) {
	spec := CompatSpec{MinKver: 0x040e00, MaxKver: 0x050400}

	tests := []struct {
		name string
		kver uint32
		want Verdict
	}{
		{"below min", 0x040d00, Skip},
		{"at min", 0x040e00, Load},
		{"below max", 0x050300, Load},
		{"at max is excluded", 0x050400, Skip},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := &envprobe.Env{KernelVersion: test.kver}
			qt.Assert(t, qt.Equals(Evaluate(spec, env), test.want))
		})
	}
}

func TestEvaluateBpfloaderRange(t *testing.T) {
	spec := CompatSpec{MinBpfloader: 43, MaxBpfloader: 45}
	env := &envprobe.Env{EffectiveApiLevel: 0} // LoaderVersion() == MainlineVersion (42)
	qt.Assert(t, qt.Equals(Evaluate(spec, env), Skip))

	env.EffectiveApiLevel = envprobe.ApiT // bumps LoaderVersion to 43
	qt.Assert(t, qt.Equals(Evaluate(spec, env), Load))
}

func TestEvaluateIgnoreOnBuild(t *testing.T) {
	spec := CompatSpec{IgnoreOnUser: true}
	env := &envprobe.Env{Build: envprobe.BuildUser}
	qt.Assert(t, qt.Equals(Evaluate(spec, env), Skip))

	env.Build = envprobe.BuildEng
	qt.Assert(t, qt.Equals(Evaluate(spec, env), Load))
}

func TestEvaluateIgnoreOnArch(t *testing.T) {
	spec := CompatSpec{IgnoreOnX86_64: true}
	env := &envprobe.Env{Arch: envprobe.ArchX86_64}
	qt.Assert(t, qt.Equals(Evaluate(spec, env), Skip))

	env.Arch = envprobe.ArchAarch64
	qt.Assert(t, qt.Equals(Evaluate(spec, env), Load))
}
