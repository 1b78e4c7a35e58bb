package envprobe

import (
	"os"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestParseKernelRelease(t *testing.T) {
	tests := []struct {
		release           string
		major, minor, sub int
	}{
		{"5.15.104-android13-abc", 5, 15, 104},
		{"6.1.0", 6, 1, 0},
		{"4.19", 4, 19, 0},
	}

	for _, test := range tests {
		t.Run(test.release, func(t *testing.T) {
			major, minor, sub, err := parseKernelRelease(test.release)
			qt.Assert(t, qt.IsNil(err))
			qt.Assert(t, qt.Equals(major, test.major))
			qt.Assert(t, qt.Equals(minor, test.minor))
			qt.Assert(t, qt.Equals(sub, test.sub))
		})
	}
}

func TestPackClampsFields(t *testing.T) {
	qt.Assert(t, qt.Equals(pack(1, 2, 3), uint32(1)<<16|uint32(2)<<8|3))
	qt.Assert(t, qt.Equals(pack(1000, 0, 0), uint32(0xff)<<16))
}

func TestAtLeastKernel(t *testing.T) {
	e := &Env{KernelVersion: pack(5, 15, 0)}
	qt.Assert(t, qt.IsTrue(e.AtLeastKernel(5, 15, 0)))
	qt.Assert(t, qt.IsTrue(e.AtLeastKernel(4, 19, 0)))
	qt.Assert(t, qt.IsFalse(e.AtLeastKernel(5, 16, 0)))
}

func TestLoaderVersion(t *testing.T) {
	tests := []struct {
		name string
		env  Env
		want uint32
	}{
		{"pre-T non-root", Env{EffectiveApiLevel: 30}, MainlineVersion},
		{"T root", Env{EffectiveApiLevel: ApiT, RunningAsRoot: true}, MainlineVersion + 2},
		{"W root", Env{EffectiveApiLevel: ApiW, RunningAsRoot: true}, MainlineVersion + 5},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			qt.Assert(t, qt.Equals(test.env.LoaderVersion(), test.want))
		})
	}
}

func TestIsLtsKernel(t *testing.T) {
	e := &Env{KernelMajor: 5, KernelMinor: 15}
	qt.Assert(t, qt.IsTrue(e.IsLtsKernel()))
	e = &Env{KernelMajor: 5, KernelMinor: 16}
	qt.Assert(t, qt.IsFalse(e.IsLtsKernel()))
}

func TestCheckKernelSupportFatal(t *testing.T) {
	e := &Env{EffectiveApiLevel: ApiV, KernelMajor: 4, KernelMinor: 14, KernelVersion: pack(4, 14, 0)}
	advisories, fatal := e.CheckKernelSupport()
	qt.Assert(t, qt.IsTrue(fatal))
	qt.Assert(t, qt.Not(qt.HasLen(advisories, 0)))
}

func TestCheckKernelSupportNonLtsAdvisory(t *testing.T) {
	e := &Env{EffectiveApiLevel: ApiV, KernelMajor: 5, KernelMinor: 16, KernelVersion: pack(5, 16, 0)}
	advisories, fatal := e.CheckKernelSupport()
	qt.Assert(t, qt.IsFalse(fatal))
	qt.Assert(t, qt.HasLen(advisories, 1))
	qt.Assert(t, qt.IsTrue(strings.Contains(advisories[0], "not a known LTS")))
}

func TestApexVersion(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/mounts"
	contents := "/dev/block/dm-1@339990000 /apex/com.android.tethering erofs ro 0 0\n"
	err := os.WriteFile(path, []byte(contents), 0644)
	qt.Assert(t, qt.IsNil(err))

	v, err := ApexVersion(path)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(v, "@339990000"))
}
