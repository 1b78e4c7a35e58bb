package loader

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/aosp-mirror/netbpfload/internal/envprobe"
	"github.com/aosp-mirror/netbpfload/internal/sys"
)

func TestSubstituteLegacyTypeDevmap(t *testing.T) {
	old := &envprobe.Env{KernelVersion: 0x040d00}   // 4.13
	newer := &envprobe.Env{KernelVersion: 0x040e00} // 4.14

	typ, flags := substituteLegacyType(sys.BPF_MAP_TYPE_DEVMAP, 0, old)
	qt.Assert(t, qt.Equals(typ, sys.BPF_MAP_TYPE_ARRAY))
	qt.Assert(t, qt.IsTrue(flags&sys.BPF_F_RDONLY_PROG != 0))

	typ, _ = substituteLegacyType(sys.BPF_MAP_TYPE_DEVMAP, 0, newer)
	qt.Assert(t, qt.Equals(typ, sys.BPF_MAP_TYPE_DEVMAP))
}

func TestSubstituteLegacyTypeDevmapHash(t *testing.T) {
	old := &envprobe.Env{KernelVersion: 0x050300}   // 5.3
	newer := &envprobe.Env{KernelVersion: 0x050400} // 5.4

	typ, _ := substituteLegacyType(sys.BPF_MAP_TYPE_DEVMAP_HASH, 0, old)
	qt.Assert(t, qt.Equals(typ, sys.BPF_MAP_TYPE_HASH))

	typ, _ = substituteLegacyType(sys.BPF_MAP_TYPE_DEVMAP_HASH, 0, newer)
	qt.Assert(t, qt.Equals(typ, sys.BPF_MAP_TYPE_DEVMAP_HASH))
}

func TestSubstituteLegacyTypeLpmTrie(t *testing.T) {
	env := &envprobe.Env{KernelVersion: 0x060100}
	_, flags := substituteLegacyType(sys.BPF_MAP_TYPE_LPM_TRIE, 0, env)
	qt.Assert(t, qt.IsTrue(flags&sys.BPF_F_NO_PREALLOC != 0))
}

func TestRoundUpPage(t *testing.T) {
	qt.Assert(t, qt.Equals(roundUpPage(0), uint32(0)))
	qt.Assert(t, qt.Equals(roundUpPage(pageSize), uint32(pageSize)))
	qt.Assert(t, qt.Equals(roundUpPage(pageSize+1), uint32(2*pageSize)))
}

func TestCreateMapsRejectsNonZeroReserved(t *testing.T) {
	defer func() {
		r := recover()
		qt.Assert(t, qt.IsNotNil(r))
	}()

	defs := []MapDef{{Name: "bad", Zero: 1}}
	_, _ = CreateMaps(defs, &envprobe.Env{}, "obj", "")
}

func TestCreateMapsSkipPreservesSlotIndex(t *testing.T) {
	defs := []MapDef{
		{Name: "skipped", MinKver: 0xffffffff},
		{Name: "also_skipped", MinKver: 0xffffffff},
	}
	slots, err := CreateMaps(defs, &envprobe.Env{KernelVersion: 0x050f00}, "obj", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.HasLen(slots, 2))
	qt.Assert(t, qt.IsNil(slots[0].FD))
	qt.Assert(t, qt.IsNil(slots[1].FD))
	qt.Assert(t, qt.Equals(slots[0].Name, "skipped"))
	qt.Assert(t, qt.Equals(slots[1].Name, "also_skipped"))
}
