// Package elfreader is a random-access decoder for the 64-bit little-endian
// ELF relocatable objects the loader consumes: map/program definitions and
// code sections. It wraps the standard library's debug/elf package the way
// the teacher's own elf.go does (GetSpecsFromELF is built on debug/elf), but
// exposes the narrower, index/name/type-oriented surface the loader's
// program pipeline expects instead of a higher-level spec type.
package elfreader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/aosp-mirror/netbpfload/internal/loaderror"
)

// Reader decodes one ELF relocatable object opened for random access.
type Reader struct {
	f  *elf.File
	ra io.ReaderAt
}

// New parses the ELF header and section headers of r. It does not read
// section contents eagerly.
func New(r io.ReaderAt) (*Reader, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse ELF: %w", err)
	}
	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: only 64-bit ELF is supported", loaderror.ErrUnsupported)
	}
	if f.ByteOrder != binary.LittleEndian {
		return nil, fmt.Errorf("%w: only little-endian ELF is supported", loaderror.ErrUnsupported)
	}
	return &Reader{f: f, ra: r}, nil
}

// SectionIndexByName returns the index of the first section named name, or
// ErrNotFound.
func (r *Reader) SectionIndexByName(name string) (int, error) {
	for i, s := range r.f.Sections {
		if s.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("section %q: %w", name, loaderror.ErrNotFound)
}

// SectionByName returns the raw contents of the first section named name.
func (r *Reader) SectionByName(name string) ([]byte, error) {
	i, err := r.SectionIndexByName(name)
	if err != nil {
		return nil, err
	}
	return r.SectionByIndex(i)
}

// SectionByIndex returns the raw contents of section i.
func (r *Reader) SectionByIndex(i int) ([]byte, error) {
	if i < 0 || i >= len(r.f.Sections) {
		return nil, fmt.Errorf("section index %d: %w", i, loaderror.ErrNotFound)
	}
	data, err := r.f.Sections[i].Data()
	if err != nil {
		return nil, fmt.Errorf("read section %d: %w", i, err)
	}
	return data, nil
}

// SectionByType returns the raw contents of the first section of the given
// type.
func (r *Reader) SectionByType(typ elf.SectionType) ([]byte, error) {
	for i, s := range r.f.Sections {
		if s.Type == typ {
			return r.SectionByIndex(i)
		}
	}
	return nil, fmt.Errorf("section type %s: %w", typ, loaderror.ErrNotFound)
}

// SectionU32LE reads the first 4 bytes of the named section as a
// little-endian u32. Returns ErrNotFound if the section is missing and
// ErrShortRead if it is shorter than 4 bytes.
func (r *Reader) SectionU32LE(name string) (uint32, error) {
	data, err := r.SectionByName(name)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, fmt.Errorf("section %q is %d bytes: %w", name, len(data), loaderror.ErrShortRead)
	}
	return binary.LittleEndian.Uint32(data[:4]), nil
}

// Sections returns the section header table, in file order.
func (r *Reader) Sections() []*elf.Section {
	return r.f.Sections
}

// Symbol mirrors an ELF64 symbol table entry with its name already resolved
// against the string table, and the fields the map/program managers need.
type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Section elf.SectionIndex
	Info    elf.SymType
}

// Symtab returns the object's symbol table, optionally stable-sorted by
// value (used by the map manager to recover ELF-declaration order of the
// maps section's symbols).
func (r *Reader) Symtab(sortByValue bool) ([]Symbol, error) {
	syms, err := r.f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("read symtab: %w", err)
	}

	out := make([]Symbol, len(syms))
	for i, s := range syms {
		out[i] = Symbol{
			Name:    s.Name,
			Value:   s.Value,
			Size:    s.Size,
			Section: s.Section,
			Info:    elf.ST_TYPE(s.Info),
		}
	}

	if sortByValue {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	}
	return out, nil
}

// SectionSymbolNames returns the names of every symbol whose section index
// equals the index of sectionName, optionally restricted to a single
// STT_* type.
func (r *Reader) SectionSymbolNames(sectionName string, typeFilter *elf.SymType) ([]string, error) {
	idx, err := r.SectionIndexByName(sectionName)
	if err != nil {
		return nil, err
	}
	syms, err := r.Symtab(false)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, s := range syms {
		if int(s.Section) != idx {
			continue
		}
		if typeFilter != nil && s.Info != *typeFilter {
			continue
		}
		if s.Name == "" {
			continue
		}
		names = append(names, s.Name)
	}
	return names, nil
}

// Rel is one ELF64 relocation entry (SHT_REL, 16 bytes: r_offset, r_info).
type Rel struct {
	Offset uint64
	Symbol uint32
	Type   uint32
}

// Relocations returns the parsed relocation entries for the .rel<name>
// section belonging to the section named name, or nil if there is none.
func (r *Reader) Relocations(name string) ([]Rel, error) {
	relIdx, err := r.SectionIndexByName(".rel" + name)
	if err != nil {
		return nil, nil
	}
	data, err := r.SectionByIndex(relIdx)
	if err != nil {
		return nil, err
	}
	if len(data)%16 != 0 {
		return nil, fmt.Errorf("relocation section for %q is %d bytes: %w", name, len(data), loaderror.ErrMissized)
	}

	rels := make([]Rel, len(data)/16)
	for i := range rels {
		off := i * 16
		rels[i].Offset = binary.LittleEndian.Uint64(data[off : off+8])
		info := binary.LittleEndian.Uint64(data[off+8 : off+16])
		rels[i].Symbol = uint32(info >> 32)
		rels[i].Type = uint32(info)
	}
	return rels, nil
}

// SymbolName resolves symIdx against the object's symbol table.
func (r *Reader) SymbolName(symIdx uint32) (string, error) {
	syms, err := r.Symtab(false)
	if err != nil {
		return "", err
	}
	// Symtab omits the null symbol at ELF index 0, so ELF index i is syms[i-1].
	if symIdx == 0 || int(symIdx) > len(syms) {
		return "", fmt.Errorf("symbol index %d: %w", symIdx, loaderror.ErrNotFound)
	}
	return syms[symIdx-1].Name, nil
}

// ProgramSectionNames returns the names of every section whose data looks
// like loadable BPF program code, in file order: every SHT_PROGBITS section
// after the ELF header/string-table/symtab housekeeping sections, excluding
// unnamed sections, "maps", "progs", "license", ".text" and any ".rel*"
// companion.
func (r *Reader) ProgramSectionNames() []string {
	var names []string
	for _, s := range r.f.Sections {
		if s.Type != elf.SHT_PROGBITS {
			continue
		}
		switch s.Name {
		case "", "maps", "progs", "license", ".text":
			continue
		}
		if len(s.Name) > 4 && s.Name[:4] == ".rel" {
			continue
		}
		names = append(names, s.Name)
	}
	return names
}
