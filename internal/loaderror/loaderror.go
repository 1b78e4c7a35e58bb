// Package loaderror names the small, fixed error taxonomy the loader uses to
// classify every failure it can produce, mirroring the outcome vocabulary
// NetBpfLoad.cpp's callers switch on (missing section, short/mis-sized
// section, pinned-map shape mismatch, out of memory, optional-load failure,
// unsupported feature or format) plus the one condition that indicates a bug
// in the loader or its input rather than an ordinary runtime failure.
package loaderror

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means a section or symbol a caller asked for is absent.
	// Sometimes recoverable, e.g. an optional progs section.
	ErrNotFound = errors.New("not found")

	// ErrShortRead means an ELF section is smaller than a fixed-size struct
	// it is supposed to hold.
	ErrShortRead = errors.New("short read")

	// ErrMissized means an ELF section's length is not an integral multiple
	// of the struct size it is supposed to hold.
	ErrMissized = errors.New("mis-sized section")

	// ErrNotUnique means a map already pinned at the expected path does not
	// match the declared shape (type, key/value size, max entries, flags).
	ErrNotUnique = errors.New("not unique")

	// ErrNoMemory wraps ENOMEM from a syscall the loader cannot recover
	// from by retrying.
	ErrNoMemory = errors.New("out of memory")

	// ErrOptionalFailed marks a load failure for a program that declared
	// itself optional; callers should log and continue instead of
	// aborting the object.
	ErrOptionalFailed = errors.New("optional load failed")

	// ErrUnsupported means a requested operation or input format is not
	// supported, e.g. an ELF object that is not 64-bit little-endian.
	ErrUnsupported = errors.New("unsupported")
)

// Bug panics with a formatted message. It is the loader's only
// abort()-equivalent, reserved for conditions that cannot arise from valid
// input: an unrecognized Domain, a MapDef whose reserved "zero" field is
// nonzero, or access() failing for a reason other than ENOENT.
func Bug(format string, args ...any) {
	panic(fmt.Sprintf("bug: "+format, args...))
}

// Optional downgrades err to ErrOptionalFailed when optional is true,
// preserving err as the wrapped cause so callers can still inspect it with
// errors.Is/As.
func Optional(err error, optional bool) error {
	if err == nil || !optional {
		return err
	}
	return fmt.Errorf("%w: %v", ErrOptionalFailed, err)
}
