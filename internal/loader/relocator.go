package loader

import (
	"encoding/binary"
	"log/slog"

	"github.com/aosp-mirror/netbpfload/internal/elfreader"
	"github.com/aosp-mirror/netbpfload/internal/sys"
)

// bpfLdImmDw is the opcode of an 8-byte BPF_LD|BPF_IMM|BPF_DW instruction
// (0x18): the only instruction shape a map-fd relocation may target.
const bpfLdImmDw = 0x18

// bpfPseudoMapFd is the src_reg value that tells the kernel to treat imm as
// a map fd rather than an immediate.
const bpfPseudoMapFd = 1

// ApplyRelocations rewrites insns in place: for each entry in rels, it looks
// up the symbol's name, finds the matching entry of mapFDs by name, and
// patches the instruction at r_offset to embed that map's fd.
func ApplyRelocations(insns []byte, rels []elfreader.Rel, symbolName func(uint32) (string, error), mapFDs []MapSlot, logger *slog.Logger) error {
	byName := make(map[string]*sys.FD, len(mapFDs))
	for _, slot := range mapFDs {
		if slot.FD != nil {
			byName[slot.Name] = slot.FD
		}
	}

	for _, rel := range rels {
		name, err := symbolName(rel.Symbol)
		if err != nil {
			return err
		}

		fd, ok := byName[name]
		if !ok {
			logger.Warn("relocation references unknown map symbol, skipping", "symbol", name)
			continue
		}

		off := rel.Offset
		if off+8 > uint64(len(insns)) || off%8 != 0 {
			logger.Warn("relocation offset out of range, skipping", "offset", off)
			continue
		}

		insn := insns[off : off+8]
		if insn[0] != bpfLdImmDw {
			logger.Warn("relocation target is not BPF_LD|BPF_IMM|BPF_DW, skipping", "symbol", name, "opcode", insn[0])
			continue
		}

		// insn[1] packs dst_reg (low 4 bits) and src_reg (high 4 bits).
		insn[1] = (insn[1] & 0x0f) | (bpfPseudoMapFd << 4)
		binary.LittleEndian.PutUint32(insn[4:8], fd.Uint())
	}

	return nil
}
