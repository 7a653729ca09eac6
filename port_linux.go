//go:build linux

package sercom

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// linuxPort is a raw, unbuffered serial handle driven through termios.
type linuxPort struct {
	fd        int
	file      *os.File
	closeOnce sync.Once
}

var defaultOpener Opener = openLinuxPort

// openLinuxPort opens the device in raw mode at the requested baud rate.
// Reads never block longer than readTimeout (VTIME granularity is 100ms).
func openLinuxPort(p Params, readTimeout time.Duration) (Port, error) {
	baud, ok := baudToUnix(p.BaudRate)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBaud, p.BaudRate)
	}

	fd, err := unix.Open(p.Port, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.Port, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// VMIN=0 with VTIME set turns every read into a timed read.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = deciseconds(readTimeout)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Blocking again now that the line is configured; drains only read what
	// TIOCINQ reports, so they never wait.
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	// Discard whatever the device sent before we were listening.
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)

	return &linuxPort{
		fd:   fd,
		file: os.NewFile(uintptr(fd), p.Port),
	}, nil
}

func (l *linuxPort) Write(b []byte) (int, error) {
	return l.file.Write(b)
}

// Drain reads everything the kernel has queued for the handle.
func (l *linuxPort) Drain() ([]byte, error) {
	var out []byte
	for {
		n, err := unix.IoctlGetInt(l.fd, unix.TIOCINQ)
		if err != nil {
			return out, fmt.Errorf("query input queue: %w", err)
		}
		if n <= 0 {
			return out, nil
		}
		buf := make([]byte, n)
		read, err := l.file.Read(buf)
		if err != nil {
			return out, err
		}
		out = append(out, buf[:read]...)
	}
}

// Poll polls the descriptor without waiting and reports a hangup.
func (l *linuxPort) Poll() error {
	pfd := []unix.PollFd{{Fd: int32(l.fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfd, 0); err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll: %w", err)
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return ErrHangup
	}
	return nil
}

// Close releases the descriptor. Safe to call multiple times.
func (l *linuxPort) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.file.Close()
	})
	return err
}

func deciseconds(d time.Duration) uint8 {
	ds := d / (100 * time.Millisecond)
	switch {
	case ds < 1:
		return 1
	case ds > 255:
		return 255
	}
	return uint8(ds)
}

func baudToUnix(baud int) (uint32, bool) {
	switch baud {
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	}
	return 0, false
}
