// Package pin implements the two-step bpffs pinning protocol used to assign
// SELinux contexts to pinned maps and programs.
//
// A bpffs directory's SELinux label is assigned by genfscon rules keyed on
// the directory path. Pinning directly into the final directory would label
// the inode with that directory's context regardless of which domain the
// object belongs to; instead the object is first pinned into a scratch
// directory carrying the desired context, then renamed into its final
// location. The rename re-labels the inode without copying data.
package pin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aosp-mirror/netbpfload/internal/loaderror"
	"github.com/aosp-mirror/netbpfload/internal/sys"
	"github.com/aosp-mirror/netbpfload/internal/unix"
)

// Direct pins fd at path with a single BPF_OBJ_PIN, no rename indirection.
// Used when the caller has no SELinux domain to assign.
func Direct(path string, fd *sys.FD) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create pin directory: %w", err)
	}
	return sys.ObjPin(path, fd)
}

// Rename moves a pinned object from tmpPath to finalPath, refusing to
// replace an existing pin. tmpPath and finalPath may be in different
// directories, which is what triggers SELinux re-labelling on bpffs.
func Rename(tmpPath, finalPath string) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("create pin directory: %w", err)
	}

	err := unix.Renameat2(unix.AT_FDCWD, tmpPath, unix.AT_FDCWD, finalPath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("pin already exists at %s: %w", finalPath, err)
	}
	return fmt.Errorf("rename pin %s to %s: %w", tmpPath, finalPath, err)
}

// PinWithSELinux pins fd first at tmpPath (expected to live under a bpffs
// subdirectory whose genfscon rule assigns the SELinux context named by the
// caller), then renames it to finalPath. This is the exact two-step protocol
// createMaps/loadCodeSections use whenever a MapDef/ProgDef names a
// selinux_context.
func PinWithSELinux(fd *sys.FD, tmpPath, finalPath string) error {
	if err := Direct(tmpPath, fd); err != nil {
		return fmt.Errorf("pin at temporary path %s: %w", tmpPath, err)
	}
	if err := Rename(tmpPath, finalPath); err != nil {
		_ = Unpin(tmpPath)
		return err
	}
	return nil
}

// Unpin removes a pinned object. Missing paths are not an error.
func Unpin(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}

// Get opens an existing pin and returns its fd, or (nil, nil) if nothing is
// pinned at path.
func Get(path string) (*sys.FD, error) {
	fd, err := sys.ObjGet(path, 0)
	if errors.Is(err, unix.ENOENT) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fd, nil
}

// Exists reports whether something is already pinned at path, distinguishing
// "not present" from other access() failures the way the loader's BUG
// taxonomy requires: any error other than ENOENT here is a bug, since the
// path's parent directories are created by the loader itself, and panics via
// loaderror.Bug.
func Exists(path string) (bool, error) {
	err := unix.Access(path, 0 /* F_OK */)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, unix.ENOENT) {
		return false, nil
	}
	loaderror.Bug("access %s: %v", path, err)
	panic("unreachable")
}
