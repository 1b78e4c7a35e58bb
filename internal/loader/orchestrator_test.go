package loader

import (
	"encoding/binary"
	"testing"

	"github.com/go-quicktest/qt"
)

func encodeMapDef(t testing.TB, typ, keySize, valueSize, maxEntries uint32, shared bool, selinux string) []byte {
	t.Helper()
	buf := make([]byte, MapDefSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], typ)
	le.PutUint32(buf[4:8], keySize)
	le.PutUint32(buf[8:12], valueSize)
	le.PutUint32(buf[12:16], maxEntries)
	if shared {
		buf[53] = 1
	}
	copy(buf[56:88], selinux)
	return buf
}

func TestDecodeMapDef(t *testing.T) {
	buf := encodeMapDef(t, 2 /* ARRAY */, 4, 8, 10, true, "fs_bpf_net_shared")
	d := decodeMapDef(buf, "my_map")

	qt.Assert(t, qt.Equals(d.Name, "my_map"))
	qt.Assert(t, qt.Equals(uint32(d.Type), uint32(2)))
	qt.Assert(t, qt.Equals(d.KeySize, uint32(4)))
	qt.Assert(t, qt.Equals(d.ValueSize, uint32(8)))
	qt.Assert(t, qt.Equals(d.MaxEntries, uint32(10)))
	qt.Assert(t, qt.IsTrue(d.Shared))

	got := DomainFromSelinuxContext(d.SelinuxContext[:])
	qt.Assert(t, qt.Equals(got, NetShared))
}

func TestDecodeMapDefIgnoreFlags(t *testing.T) {
	buf := make([]byte, MapDefSize)
	buf[52] = 1<<0 | 1<<3 // ignore_on_eng, ignore_on_arm32
	d := decodeMapDef(buf, "m")

	qt.Assert(t, qt.IsTrue(d.IgnoreOnEng))
	qt.Assert(t, qt.IsTrue(d.IgnoreOnArm32))
	qt.Assert(t, qt.IsFalse(d.IgnoreOnUser))
	qt.Assert(t, qt.IsFalse(d.IgnoreOnAarch64))
}

func TestHandoffNoTarget(t *testing.T) {
	o := &Orchestrator{}
	err := o.Handoff("/nonexistent/path/to/bpfloader")
	qt.Assert(t, qt.ErrorIs(err, ErrNoHandoffTarget))
}
