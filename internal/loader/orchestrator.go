// Package loader implements the per-object load pipeline: map creation,
// relocation, program loading and pinning, orchestrated across a set of
// well-known input directories.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"github.com/aosp-mirror/netbpfload/internal/elfreader"
	"github.com/aosp-mirror/netbpfload/internal/envprobe"
	"github.com/aosp-mirror/netbpfload/internal/loaderror"
	"github.com/aosp-mirror/netbpfload/internal/sys"
)

// Location is a scanned directory paired with the pin-path prefix used for
// objects found there.
type Location struct {
	Dir    string
	Prefix string
}

// ErrNoHandoffTarget is returned by Handoff when the named downstream
// loader binary does not exist; the caller treats this as success, since a
// standalone build of this loader has nothing to hand off to.
var ErrNoHandoffTarget = errors.New("no handoff target")

// Orchestrator runs the full load pipeline across a set of Locations.
type Orchestrator struct {
	Locations []Location
	Env       *envprobe.Env
	Logger    *slog.Logger

	// SkipMountsProbe disables the /proc/mounts tethering-apex version
	// probe. Off by default; tests set it to avoid depending on real
	// mount state.
	SkipMountsProbe bool
}

// New constructs an Orchestrator with the given locations and a probed
// environment.
func New(locations []Location, logger *slog.Logger) (*Orchestrator, error) {
	env, err := envprobe.Probe()
	if err != nil {
		return nil, fmt.Errorf("probe environment: %w", err)
	}
	return &Orchestrator{Locations: locations, Env: env, Logger: logger}, nil
}

// Run executes the full orchestration: kernel/arch preflight, per-object
// pipeline for every Location, kernel sanity canary, and sentinel marker.
// Returns the process exit code the spec assigns to each outcome.
func (o *Orchestrator) Run() int {
	advisories, fatal := o.Env.CheckKernelSupport()
	for _, a := range advisories {
		o.Logger.Warn(a)
	}
	if fatal {
		o.Logger.Error("kernel does not support the running Android API level")
		return 1
	}

	if !o.SkipMountsProbe {
		if apex, err := envprobe.ApexVersion("/proc/mounts"); err == nil {
			o.Logger.Info("tethering apex mounted", "version", apex)
		} else {
			o.Logger.Debug("could not determine tethering apex version", "error", err)
		}
	}

	if err := o.writePreloadSysctls(); err != nil {
		o.Logger.Error("failed writing /proc/sys preconditions", "error", err)
		return 1
	}

	if err := o.prepareLocationDirs(); err != nil {
		o.Logger.Error("failed preparing pin directories", "error", err)
		return 1
	}

	anyFailed := false
	for _, loc := range o.Locations {
		if err := o.runLocation(loc); err != nil {
			o.Logger.Error("location failed to load", "dir", loc.Dir, "error", err)
			anyFailed = true
		}
	}

	if anyFailed {
		o.Logger.Error("one or more objects failed to load, sleeping before exit")
		sleepForDiagnostics()
		return 2
	}

	if err := o.sanityCheckKernel(); err != nil {
		o.Logger.Error("kernel sanity canary failed", "error", err)
		return 1
	}

	if err := o.markDone(); err != nil {
		o.Logger.Error("failed creating mainline_done marker", "error", err)
		return 1
	}

	return 0
}

func sleepForDiagnostics() {
	time.Sleep(20 * time.Second)
}

// writePreloadSysctls writes the /proc/sys knobs the original loader sets
// before scanning any Location.
func (o *Orchestrator) writePreloadSysctls() error {
	if o.Env.RunningAsRoot && o.Env.AtLeastKernel(5, 13, 0) {
		if err := writeSysctl("/proc/sys/kernel/unprivileged_bpf_disabled", "0\n"); err != nil {
			return err
		}
	}
	if o.Env.EffectiveApiLevel >= envprobe.ApiU {
		if err := writeSysctl("/proc/sys/net/core/bpf_jit_enable", "1\n"); err != nil {
			return err
		}
		if err := writeSysctl("/proc/sys/net/core/bpf_jit_kallsyms", "1\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeSysctl(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// prepareLocationDirs creates each Location's pin subdirectory (mode
// 01777) plus a fixed loader/ subdirectory.
func (o *Orchestrator) prepareLocationDirs() error {
	if err := checkBpfFS("/sys/fs/bpf"); err != nil {
		return err
	}
	for _, loc := range o.Locations {
		if err := createBpfSubdir(loc.Prefix); err != nil {
			return err
		}
	}
	return createBpfSubdir(Loader.PinSubdir())
}

func createBpfSubdir(subdir string) error {
	path := "/sys/fs/bpf/" + subdir
	if err := os.MkdirAll(path, 01777); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return os.Chmod(path, 01777)
}

// runLocation runs the per-object pipeline over every "*.o" file directly
// inside loc.Dir, in file-name order (os.ReadDir sorts its entries).
func (o *Orchestrator) runLocation(loc Location) error {
	entries, err := os.ReadDir(loc.Dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", loc.Dir, err)
	}

	var worst error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".o" {
			continue
		}
		path := filepath.Join(loc.Dir, entry.Name())
		if err := o.loadObject(path, loc.Prefix); err != nil {
			o.Logger.Error("object failed to load", "path", path, "error", err)
			worst = err
		}
	}
	return worst
}

// loadObject runs the per-object pipeline: license, version gate, maps,
// relocations, programs.
func (o *Orchestrator) loadObject(path, prefix string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, err := elfreader.New(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	license, err := r.SectionByName("license")
	if err != nil {
		return fmt.Errorf("%s: read license: %w", path, err)
	}
	licenseStr := string(bytes.TrimRight(license, "\x00"))

	minVer, err := r.SectionU32LE("bpfloader_min_ver")
	if err != nil {
		return fmt.Errorf("%s: read bpfloader_min_ver: %w", path, err)
	}
	maxVer, err := r.SectionU32LE("bpfloader_max_ver")
	if err != nil {
		return fmt.Errorf("%s: read bpfloader_max_ver: %w", path, err)
	}
	loaderVersion := o.Env.LoaderVersion()
	if loaderVersion < minVer || (maxVer != 0 && loaderVersion >= maxVer) {
		o.Logger.Debug("object out of bpfloader version range, skipping", "path", path)
		return nil
	}

	objName := ObjName(path)

	mapDefs, err := parseMapDefs(r)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	slots, err := CreateMaps(mapDefs, o.Env, objName, prefix)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	sections, err := readCodeSections(r)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if len(sections) == 0 {
		if minVer >= envprobe.MainlineVersion {
			o.Logger.Debug("object has no code sections, nothing to do", "path", path)
			return nil
		}
	}

	for i := range sections {
		rels, err := r.Relocations(sections[i].Name)
		if err != nil {
			return fmt.Errorf("%s: relocations for %s: %w", path, sections[i].Name, err)
		}
		symbolName := func(idx uint32) (string, error) { return r.SymbolName(idx) }
		if err := ApplyRelocations(sections[i].Insns, rels, symbolName, slots, o.Logger); err != nil {
			return fmt.Errorf("%s: apply relocations for %s: %w", path, sections[i].Name, err)
		}
	}

	if err := LoadCodeSections(sections, licenseStr, o.Env, objName, prefix, o.Logger); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

// parseMapDefs decodes the "maps" section into MapDef values, in the
// sort-by-value symbol order the map manager requires.
func parseMapDefs(r *elfreader.Reader) ([]MapDef, error) {
	data, err := r.SectionByName("maps")
	if err != nil {
		if errors.Is(err, loaderror.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(data)%MapDefSize != 0 {
		return nil, fmt.Errorf("maps section is %d bytes, not a multiple of %d: %w", len(data), MapDefSize, loaderror.ErrMissized)
	}

	names, err := r.SectionSymbolNames("maps", nil)
	if err != nil {
		return nil, err
	}
	syms, err := r.Symtab(true)
	if err != nil {
		return nil, err
	}

	mapsIdx, err := r.SectionIndexByName("maps")
	if err != nil {
		return nil, err
	}

	var ordered []string
	for _, s := range syms {
		if int(s.Section) == mapsIdx && s.Name != "" {
			ordered = append(ordered, s.Name)
		}
	}
	if len(ordered) == 0 {
		ordered = names
	}

	count := len(data) / MapDefSize
	if len(ordered) != count {
		return nil, fmt.Errorf("maps section declares %d entries but has %d symbols: %w", count, len(ordered), loaderror.ErrMissized)
	}

	defs := make([]MapDef, count)
	for i := 0; i < count; i++ {
		defs[i] = decodeMapDef(data[i*MapDefSize:(i+1)*MapDefSize], ordered[i])
	}
	return defs, nil
}

func decodeMapDef(b []byte, name string) MapDef {
	le := binary.LittleEndian
	var d MapDef
	d.Name = name
	d.Type = sys.MapType(le.Uint32(b[0:4]))
	d.KeySize = le.Uint32(b[4:8])
	d.ValueSize = le.Uint32(b[8:12])
	d.MaxEntries = le.Uint32(b[12:16])
	d.MapFlags = sys.MapFlags(le.Uint32(b[16:20]))
	d.Zero = le.Uint32(b[20:24])
	d.Uid = le.Uint32(b[24:28])
	d.Gid = le.Uint32(b[28:32])
	d.Mode = le.Uint32(b[32:36])
	d.BpfloaderMinVer = le.Uint32(b[36:40])
	d.BpfloaderMaxVer = le.Uint32(b[40:44])
	d.MinKver = le.Uint32(b[44:48])
	d.MaxKver = le.Uint32(b[48:52])

	flags := b[52]
	d.IgnoreOnEng = flags&(1<<0) != 0
	d.IgnoreOnUser = flags&(1<<1) != 0
	d.IgnoreOnUserdebug = flags&(1<<2) != 0
	d.IgnoreOnArm32 = flags&(1<<3) != 0
	d.IgnoreOnAarch64 = flags&(1<<4) != 0
	d.IgnoreOnX86_32 = flags&(1<<5) != 0
	d.IgnoreOnX86_64 = flags&(1<<6) != 0
	d.IgnoreOnRiscv64 = flags&(1<<7) != 0
	d.Shared = b[53] != 0

	copy(d.SelinuxContext[:], b[56:88])
	copy(d.PinSubdir[:], b[88:120])
	return d
}

// readCodeSections collects every program section in ELF order, binding
// each to its ProgDef by "<symbolname>_def".
func readCodeSections(r *elfreader.Reader) ([]CodeSection, error) {
	progDefs, err := parseProgDefs(r)
	if err != nil {
		return nil, err
	}

	var out []CodeSection
	for _, name := range r.ProgramSectionNames() {
		entry, ok := classifySection(name)
		if !ok {
			continue
		}

		insns, err := r.SectionByName(name)
		if err != nil {
			return nil, err
		}

		symNames, err := r.SectionSymbolNames(name, nil)
		if err != nil {
			return nil, err
		}
		if len(symNames) == 0 {
			continue
		}

		def, ok := progDefs[symNames[0]+"_def"]
		if !ok {
			continue
		}

		out = append(out, CodeSection{
			Name:               name,
			ProgType:           entry.progType,
			ExpectedAttachType: entry.attachType,
			HasAttachType:      entry.hasAttach,
			Insns:              insns,
			Def:                def,
		})
	}
	return out, nil
}

func parseProgDefs(r *elfreader.Reader) (map[string]ProgDef, error) {
	data, err := r.SectionByName("progs")
	if err != nil {
		if errors.Is(err, loaderror.ErrNotFound) {
			return map[string]ProgDef{}, nil
		}
		return nil, err
	}

	// 4 leading uint32 fields (16 bytes) + 2 flag bytes + 2 padding + uid/gid
	// (8 bytes) + 4 bytes padding + two 32-byte string fields.
	const progDefSize = 4*4 + 2 + 2 + 4*2 + 4 + 32 + 32
	if len(data)%progDefSize != 0 {
		return nil, fmt.Errorf("progs section is %d bytes, not a multiple of %d: %w", len(data), progDefSize, loaderror.ErrMissized)
	}

	names, err := r.SectionSymbolNames("progs", nil)
	if err != nil {
		return nil, err
	}
	count := len(data) / progDefSize
	if len(names) != count {
		return nil, fmt.Errorf("progs section declares %d entries but has %d symbols: %w", count, len(names), loaderror.ErrMissized)
	}

	defs := make(map[string]ProgDef, count)
	le := binary.LittleEndian
	for i, name := range names {
		b := data[i*progDefSize : (i+1)*progDefSize]
		var d ProgDef
		d.BpfloaderMinVer = le.Uint32(b[0:4])
		d.BpfloaderMaxVer = le.Uint32(b[4:8])
		d.MinKver = le.Uint32(b[8:12])
		d.MaxKver = le.Uint32(b[12:16])

		flags := b[16]
		d.IgnoreOnEng = flags&(1<<0) != 0
		d.IgnoreOnUser = flags&(1<<1) != 0
		d.IgnoreOnUserdebug = flags&(1<<2) != 0
		d.IgnoreOnArm32 = flags&(1<<3) != 0
		d.IgnoreOnAarch64 = flags&(1<<4) != 0
		d.IgnoreOnX86_32 = flags&(1<<5) != 0
		d.IgnoreOnX86_64 = flags&(1<<6) != 0
		d.IgnoreOnRiscv64 = flags&(1<<7) != 0
		d.Optional = b[17] != 0

		d.Uid = le.Uint32(b[20:24])
		d.Gid = le.Uint32(b[24:28])
		copy(d.SelinuxContext[:], b[32:64])
		copy(d.PinSubdir[:], b[64:96])
		defs[name] = d
	}
	return defs, nil
}

// sanityCheckKernel creates a scratch 2-entry ARRAY map and writes key=1,
// value=123 into it. A failure here means the running kernel cannot be
// trusted to run any of the programs the loader is about to pin.
func (o *Orchestrator) sanityCheckKernel() error {
	fd, err := sys.MapCreate(&sys.MapCreateAttr{
		MapType:    sys.BPF_MAP_TYPE_ARRAY,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: 2,
	})
	if err != nil {
		return fmt.Errorf("create sanity map: %w", err)
	}
	defer fd.Close()

	key := uint32(1)
	value := uint32(123)
	err = sys.MapUpdateElem(&sys.MapElemAttr{
		MapFd: fd.Uint(),
		Key:   sys.UnsafePointer(unsafe.Pointer(&key)),
		Value: sys.UnsafePointer(unsafe.Pointer(&value)),
	})
	if err != nil {
		return fmt.Errorf("write sanity canary: %w", err)
	}
	return nil
}

// markDone creates the sentinel subdirectory a downstream loader treats as
// "this boot's load already ran". The loader itself does not check for it.
func (o *Orchestrator) markDone() error {
	return createBpfSubdir(NetdShared.PinSubdir() + "mainline_done")
}

// Handoff execs the platform bpfloader binary named by path, matching the
// original's execve(args[0], ...) 1:1. If the binary does not exist, this
// is a no-op: a standalone build has nothing to hand off to.
func (o *Orchestrator) Handoff(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ErrNoHandoffTarget
	} else if err != nil {
		return err
	}
	return syscall.Exec(path, []string{path}, os.Environ())
}
