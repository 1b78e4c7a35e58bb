package sys

import (
	"os"
	"syscall"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/aosp-mirror/netbpfload/internal/unix"
)

func init() {
	// Free up fd 0 for TestFD.
	stdin, err := unix.FcntlInt(os.Stdin.Fd(), unix.F_DUPFD_CLOEXEC, 1)
	if err != nil {
		panic(err)
	}

	old := os.Stdin
	os.Stdin = os.NewFile(uintptr(stdin), "stdin")
	old.Close()

	reserveFdZero()
}

func reserveFdZero() {
	fd, err := unix.Open(os.DevNull, syscall.O_RDONLY, 0)
	if err != nil {
		panic(err)
	}
	if fd != 0 {
		panic("expected reserved fd to be 0")
	}
}

func TestFD(t *testing.T) {
	fd := NewFD(0)
	qt.Assert(t, qt.Not(qt.Equals(fd.Int(), -1)))
	qt.Assert(t, qt.IsNil(fd.Close()))

	var stat unix.Stat_t
	err := unix.Fstat(0, &stat)
	qt.Assert(t, qt.ErrorIs(err, unix.EBADF), qt.Commentf("closing the FD should have closed fd 0"))

	reserveFdZero()
}

func TestFDFile(t *testing.T) {
	fd := NewFD(openFd(t))
	file := fd.File("test")
	qt.Assert(t, qt.IsNotNil(file))
	qt.Assert(t, qt.IsNil(file.Close()))

	_, err := fd.Dup()
	qt.Assert(t, qt.ErrorIs(err, ErrClosedFd))
}

func openFd(tb testing.TB) int {
	fd, err := unix.Open(os.DevNull, syscall.O_RDONLY, 0)
	qt.Assert(tb, qt.IsNil(err))
	return fd
}
