//go:build linux

package unix

import (
	linux "golang.org/x/sys/unix"
)

// Re-exported so that the rest of the tree never imports golang.org/x/sys/unix
// directly, matching the indirection the teacher's internal/unix package uses
// for its own capability helpers.

type Errno = linux.Errno
type Signal = linux.Signal
type Sigset_t = linux.Sigset_t
type Stat_t = linux.Stat_t
type Statfs_t = linux.Statfs_t
type Utsname = linux.Utsname
type Flock_t = linux.Flock_t

const (
	AT_FDCWD         = linux.AT_FDCWD
	RENAME_NOREPLACE = linux.RENAME_NOREPLACE
	SYS_BPF          = linux.SYS_BPF
	BPF_OBJ_NAME_LEN = 16

	F_DUPFD_CLOEXEC = linux.F_DUPFD_CLOEXEC
	F_OFD_SETLK     = linux.F_OFD_SETLK
	F_OFD_GETLK     = linux.F_OFD_GETLK

	O_RDONLY    = linux.O_RDONLY
	O_RDWR      = linux.O_RDWR
	O_CREAT     = linux.O_CREAT
	O_DIRECTORY = linux.O_DIRECTORY

	SIG_BLOCK   = linux.SIG_BLOCK
	SIG_UNBLOCK = linux.SIG_UNBLOCK
	SIGPROF     = linux.SIGPROF

	BPF_F_NO_PREALLOC = linux.BPF_F_NO_PREALLOC
	BPF_F_RDONLY_PROG = linux.BPF_F_RDONLY_PROG
	BPF_F_WRONLY_PROG = linux.BPF_F_WRONLY_PROG
	BPF_F_MMAPABLE    = linux.BPF_F_MMAPABLE
	BPF_F_INNER_MAP   = linux.BPF_F_INNER_MAP

	EAGAIN     = linux.EAGAIN
	EBADF      = linux.EBADF
	EINVAL     = linux.EINVAL
	ENOENT     = linux.ENOENT
	ENOTUNIQ   = linux.ENOTUNIQ
	ENOMEM     = linux.ENOMEM
	EEXIST     = linux.EEXIST
	EPERM      = linux.EPERM
	EOPNOTSUPP = linux.EOPNOTSUPP
)

func Syscall(trap, a1, a2, a3 uintptr) (r1, r2 uintptr, err linux.Errno) {
	return linux.Syscall(trap, a1, a2, a3)
}

func Close(fd int) error                                    { return linux.Close(fd) }
func Open(path string, mode int, perm uint32) (int, error)   { return linux.Open(path, mode, perm) }
func FcntlInt(fd uintptr, cmd, arg int) (int, error)         { return linux.FcntlInt(fd, cmd, arg) }
func ByteSliceFromString(s string) ([]byte, error)           { return linux.ByteSliceFromString(s) }
func Renameat2(olddirfd int, oldpath string, newdirfd int, newpath string, flags uint) error {
	return linux.Renameat2(olddirfd, oldpath, newdirfd, newpath, flags)
}
func Chmod(path string, mode uint32) error                { return linux.Chmod(path, mode) }
func Chown(path string, uid, gid int) error               { return linux.Chown(path, uid, gid) }
func Access(path string, mode uint32) error               { return linux.Access(path, mode) }
func Statfs(path string, buf *Statfs_t) error             { return linux.Statfs(path, buf) }
func Uname(buf *Utsname) error                            { return linux.Uname(buf) }
func Fstat(fd int, stat *Stat_t) error                    { return linux.Fstat(fd, stat) }
func PthreadSigmask(how int, set, oldset *Sigset_t) error {
	return linux.PthreadSigmask(how, set, oldset)
}
func FcntlFlock(fd uintptr, cmd int, lk *Flock_t) error { return linux.FcntlFlock(fd, cmd, lk) }
