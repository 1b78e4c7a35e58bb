package loader

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/aosp-mirror/netbpfload/internal/loaderror"
)

// Domain decodes the fixed-width selinux_context/pin_subdir strings
// MapDef/ProgDef embed into one of the loader's known SELinux domains.
// Transcribed 1:1 from NetBpfLoad.cpp's domain enum; the mapping between
// Domain, SELinux context and pin subdirectory is total and 1:1.
type Domain int

const (
	Unspecified Domain = iota
	Tethering
	NetPrivate
	NetShared
	NetdReadonly
	NetdShared
	Loader
)

var allDomains = []Domain{Unspecified, Tethering, NetPrivate, NetShared, NetdReadonly, NetdShared, Loader}

var selinuxContexts = map[Domain]string{
	Unspecified:  "",
	Tethering:    "fs_bpf_tethering",
	NetPrivate:   "fs_bpf_net_private",
	NetShared:    "fs_bpf_net_shared",
	NetdReadonly: "fs_bpf_netd_readonly",
	NetdShared:   "fs_bpf_netd_shared",
	Loader:       "fs_bpf_loader",
}

var pinSubdirs = map[Domain]string{
	Unspecified:  "",
	Tethering:    "tethering/",
	NetPrivate:   "net_private/",
	NetShared:    "net_shared/",
	NetdReadonly: "netd_readonly/",
	NetdShared:   "netd_shared/",
	Loader:       "loader/",
}

// SelinuxContext returns d's SELinux context string, "" for Unspecified.
func (d Domain) SelinuxContext() string { return selinuxContexts[d] }

// PinSubdir returns d's pin subdirectory name, including a trailing slash,
// "" for Unspecified.
func (d Domain) PinSubdir() string { return pinSubdirs[d] }

// Specified reports whether d is anything other than Unspecified.
func (d Domain) Specified() bool { return d != Unspecified }

// DomainFromSelinuxContext decodes a fixed-width, NUL-padded selinux_context
// field. An unrecognized value is a bug: the ELF was produced by a build
// that names a domain this loader binary doesn't know about.
func DomainFromSelinuxContext(raw []byte) Domain {
	s := cstring(raw)
	for _, d := range allDomains {
		if d.SelinuxContext() == s {
			return d
		}
	}
	loaderror.Bug("unrecognized selinux_context %q", s)
	panic("unreachable")
}

// DomainFromPinSubdir decodes a fixed-width, NUL-padded pin_subdir field.
func DomainFromPinSubdir(raw []byte) Domain {
	s := cstring(raw)
	for _, d := range allDomains {
		if d.PinSubdir() == s {
			return d
		}
	}
	loaderror.Bug("unrecognized pin_subdir %q", s)
	panic("unreachable")
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// ObjName derives the "objname" spec fragment from an ELF file path: strip
// directories, strip the extension, then strip a trailing "@..." mainline
// module version suffix.
func ObjName(elfPath string) string {
	name := path.Base(elfPath)
	name = strings.TrimSuffix(name, path.Ext(name))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}

// subdirOrPrefix picks the final pin subdirectory: the pin_subdir domain's,
// if specified, else the Location's fallback prefix. The selinux_context
// domain does not affect it; that domain only selects the directory of the
// temporary pin (MapTempPinPath, ProgTempPinPath).
func subdirOrPrefix(_, pinSubdir Domain, prefix string) string {
	if pinSubdir.Specified() {
		return pinSubdir.PinSubdir()
	}
	return prefix
}

// MapPinPath computes a map's pin path per spec: shared maps omit the
// object name component.
func MapPinPath(selinux, pinSubdir Domain, prefix, objName, mapName string, shared bool) string {
	dir := subdirOrPrefix(selinux, pinSubdir, prefix)
	if shared {
		return fmt.Sprintf("/sys/fs/bpf/%smap__%s", dir, mapName)
	}
	return fmt.Sprintf("/sys/fs/bpf/%smap_%s_%s", dir, objName, mapName)
}

// MapTempPinPath computes the scratch path a map is first pinned at when a
// SELinux context must be applied via the two-step rename protocol.
func MapTempPinPath(selinux Domain, objName, mapName string) string {
	return fmt.Sprintf("/sys/fs/bpf/%stmp_map_%s_%s", selinux.PinSubdir(), objName, mapName)
}

// canonicalProgName converts a raw section-derived program name into its pin
// path fragment: '/' becomes '_', and any trailing "@..." or "$..." suffix
// is stripped.
func canonicalProgName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	if i := strings.IndexAny(name, "@$"); i >= 0 {
		name = name[:i]
	}
	return name
}

// ProgPinPath computes a program's pin path per spec.
func ProgPinPath(selinux, pinSubdir Domain, prefix, objName, progName string) string {
	dir := subdirOrPrefix(selinux, pinSubdir, prefix)
	return fmt.Sprintf("/sys/fs/bpf/%sprog_%s_%s", dir, objName, canonicalProgName(progName))
}

// ProgTempPinPath computes the scratch path a program is first pinned at.
func ProgTempPinPath(selinux Domain, objName, progName string) string {
	return fmt.Sprintf("/sys/fs/bpf/%stmp_prog_%s_%s", selinux.PinSubdir(), objName, canonicalProgName(progName))
}
