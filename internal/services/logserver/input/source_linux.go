//go:build linux

package input

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// fdSource polls a file descriptor directly. Terminals are switched to
// cbreak mode (no line buffering, no echo) until Close.
type fdSource struct {
	fd        int
	restore   *unix.Termios
	closeOnce sync.Once
	closeErr  error
}

// Stdin returns a key source for the process's standard input.
func Stdin() (KeySource, error) {
	return OpenFD(int(os.Stdin.Fd()))
}

// OpenFD wraps fd as a key source.
func OpenFD(fd int) (KeySource, error) {
	s := &fdSource{fd: fd}
	if !isatty.IsTerminal(uintptr(fd)) {
		return s, nil
	}
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("read terminal mode: %w", err)
	}
	cbreak := *old
	cbreak.Lflag &^= unix.ICANON | unix.ECHO
	cbreak.Cc[unix.VMIN] = 1
	cbreak.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &cbreak); err != nil {
		return nil, fmt.Errorf("set terminal mode: %w", err)
	}
	s.restore = old
	return s, nil
}

func (s *fdSource) Poll(timeout time.Duration) (byte, bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("poll stdin: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return 0, false, io.EOF
	}

	var buf [1]byte
	m, err := unix.Read(s.fd, buf[:])
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read stdin: %w", err)
	}
	if m == 0 {
		return 0, false, io.EOF
	}
	return buf[0], true, nil
}

func (s *fdSource) Close() error {
	s.closeOnce.Do(func() {
		if s.restore != nil {
			s.closeErr = unix.IoctlSetTermios(s.fd, unix.TCSETS, s.restore)
		}
	})
	return s.closeErr
}
