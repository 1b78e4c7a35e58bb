package loader

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/aosp-mirror/netbpfload/internal/sys"
)

func TestClassifySection(t *testing.T) {
	tests := []struct {
		name       string
		wantType   sys.ProgType
		wantAttach sys.AttachType
		wantHas    bool
	}{
		{"bind4/socket", sys.BPF_PROG_TYPE_CGROUP_SOCK_ADDR, sys.BPF_CGROUP_INET4_BIND, true},
		{"egress/handle_egress", sys.BPF_PROG_TYPE_CGROUP_SKB, sys.BPF_CGROUP_INET_EGRESS, true},
		{"cgroupskb/stats", sys.BPF_PROG_TYPE_CGROUP_SKB, 0, false},
		{"xdp/entry", sys.BPF_PROG_TYPE_XDP, 0, false},
		{"schedcls/ingress", sys.BPF_PROG_TYPE_SCHED_CLS, 0, false},
		{"sysctl", sys.BPF_PROG_TYPE_CGROUP_SYSCTL, sys.BPF_CGROUP_SYSCTL, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e, ok := classifySection(test.name)
			qt.Assert(t, qt.IsTrue(ok))
			qt.Assert(t, qt.Equals(e.progType, test.wantType))
			qt.Assert(t, qt.Equals(e.hasAttach, test.wantHas))
			if test.wantHas {
				qt.Assert(t, qt.Equals(e.attachType, test.wantAttach))
			}
		})
	}
}

func TestClassifySectionUnknownPrefix(t *testing.T) {
	_, ok := classifySection("maps")
	qt.Assert(t, qt.IsFalse(ok))

	_, ok = classifySection("license")
	qt.Assert(t, qt.IsFalse(ok))
}

func TestClassifySectionCgroupsockPrefixOrder(t *testing.T) {
	// cgroupsockcreate/ and cgroupsockrelease/ must win over the shorter
	// cgroupsock/ prefix.
	e, ok := classifySection("cgroupsockcreate/create")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(e.attachType, sys.BPF_CGROUP_INET_SOCK_CREATE))

	e, ok = classifySection("cgroupsockrelease/release")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(e.attachType, sys.BPF_CGROUP_INET_SOCK_RELEASE))

	e, ok = classifySection("cgroupsock/plain")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsFalse(e.hasAttach))
}
