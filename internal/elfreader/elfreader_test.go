package elfreader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/aosp-mirror/netbpfload/internal/loaderror"
)

// testSection describes one non-null section of a synthetic ELF object.
type testSection struct {
	name string
	typ  elf.SectionType
	data []byte
}

// buildELF assembles a minimal valid little-endian ELF64 relocatable object
// containing exactly the given sections (plus the null section and a
// generated .shstrtab), so elfreader can be exercised without shipping a
// binary testdata fixture.
func buildELF(t *testing.T, sections []testSection) []byte {
	t.Helper()

	all := append([]testSection{{name: ""}}, sections...)
	all = append(all, testSection{name: ".shstrtab"})
	shstrndx := len(all) - 1

	// Build .shstrtab contents and record each section's name offset.
	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	nameOff := make([]uint32, len(all))
	for i, s := range all {
		if i == 0 {
			continue
		}
		nameOff[i] = uint32(shstrtab.Len())
		shstrtab.WriteString(s.name)
		shstrtab.WriteByte(0)
	}
	all[shstrndx].data = shstrtab.Bytes()

	const ehsize = 64
	const shentsize = 64

	// Lay out section data right after the ELF header, back to back.
	offsets := make([]uint64, len(all))
	cur := uint64(ehsize)
	for i, s := range all {
		offsets[i] = cur
		cur += uint64(len(s.data))
	}
	shoff := cur

	var buf bytes.Buffer

	// e_ident
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2 /* ELFCLASS64 */, 1 /* ELFDATA2LSB */, 1, 0})
	buf.Write(make([]byte, 8))

	le := binary.LittleEndian
	write16 := func(v uint16) { var b [2]byte; le.PutUint16(b[:], v); buf.Write(b[:]) }
	write32 := func(v uint32) { var b [4]byte; le.PutUint32(b[:], v); buf.Write(b[:]) }
	write64 := func(v uint64) { var b [8]byte; le.PutUint64(b[:], v); buf.Write(b[:]) }

	write16(uint16(elf.ET_REL))
	write16(uint16(elf.EM_X86_64))
	write32(uint32(elf.EV_CURRENT))
	write64(0) // e_entry
	write64(0) // e_phoff
	write64(shoff)
	write32(0) // e_flags
	write16(ehsize)
	write16(0) // e_phentsize
	write16(0) // e_phnum
	write16(shentsize)
	write16(uint16(len(all)))
	write16(uint16(shstrndx))

	for _, s := range all {
		buf.Write(s.data)
	}

	for i, s := range all {
		typ := s.typ
		if i == 0 {
			typ = elf.SHT_NULL
		} else if i == shstrndx {
			typ = elf.SHT_STRTAB
		} else if typ == 0 {
			typ = elf.SHT_PROGBITS
		}
		write32(nameOff[i])
		write32(uint32(typ))
		write64(0) // sh_flags
		write64(0) // sh_addr
		write64(offsets[i])
		write64(uint64(len(s.data)))
		write32(0) // sh_link
		write32(0) // sh_info
		write64(1) // sh_addralign
		write64(0) // sh_entsize
	}

	return buf.Bytes()
}

func TestSectionByName(t *testing.T) {
	raw := buildELF(t, []testSection{
		{name: "license", data: []byte("Apache 2.0\x00")},
	})

	r, err := New(bytes.NewReader(raw))
	qt.Assert(t, qt.IsNil(err))

	data, err := r.SectionByName("license")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(data, []byte("Apache 2.0\x00")))

	_, err = r.SectionByName("nope")
	qt.Assert(t, qt.ErrorIs(err, loaderror.ErrNotFound))
}

func TestSectionU32LE(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 42)

	raw := buildELF(t, []testSection{
		{name: "bpfloader_min_ver", data: buf},
		{name: "short", data: []byte{1, 2}},
	})

	r, err := New(bytes.NewReader(raw))
	qt.Assert(t, qt.IsNil(err))

	v, err := r.SectionU32LE("bpfloader_min_ver")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(v, uint32(42)))

	_, err = r.SectionU32LE("short")
	qt.Assert(t, qt.ErrorIs(err, loaderror.ErrShortRead))

	_, err = r.SectionU32LE("missing")
	qt.Assert(t, qt.ErrorIs(err, loaderror.ErrNotFound))
}

func TestSectionIndexByName(t *testing.T) {
	raw := buildELF(t, []testSection{
		{name: "maps"},
		{name: "progs"},
	})

	r, err := New(bytes.NewReader(raw))
	qt.Assert(t, qt.IsNil(err))

	idx, err := r.SectionIndexByName("progs")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(idx, 2))
}
