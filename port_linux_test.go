//go:build linux

package sercom

import (
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// openPTYPort opens the slave side of a fresh pty pair through the raw
// handle and returns the master, which plays the device.
func openPTYPort(t *testing.T) (master *os.File, port Port) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err = openLinuxPort(Params{Port: slave.Name(), BaudRate: 115200}, 200*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return master, port
}

func TestLinuxPort_WriteReachesDevice(t *testing.T) {
	master, port := openPTYPort(t)

	line := "testline\r\n"
	n, err := port.Write([]byte(line))
	require.NoError(t, err)
	require.Equal(t, len(line), n)

	buf := make([]byte, len(line))
	n, err = master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, line, string(buf[:n]))
}

func TestLinuxPort_DrainReturnsPendingBytes(t *testing.T) {
	master, port := openPTYPort(t)

	_, err := master.Write([]byte("hello\r\n"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		b, err := port.Drain()
		if err != nil {
			return false
		}
		got = append(got, b...)
		return string(got) == "hello\r\n"
	}, time.Second, 10*time.Millisecond)
}

func TestLinuxPort_DrainDoesNotWaitWhenIdle(t *testing.T) {
	_, port := openPTYPort(t)

	start := time.Now()
	b, err := port.Drain()
	require.NoError(t, err)
	require.Empty(t, b)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLinuxPort_PollReportsHangup(t *testing.T) {
	master, port := openPTYPort(t)
	require.NoError(t, port.Poll())

	// Simulate the device being unplugged by closing the master side.
	require.NoError(t, master.Close())

	require.Eventually(t, func() bool {
		return port.Poll() == ErrHangup
	}, time.Second, 10*time.Millisecond)
}

func TestLinuxPort_CloseIsIdempotent(t *testing.T) {
	_, port := openPTYPort(t)
	require.NoError(t, port.Close())
	require.NoError(t, port.Close())
}

func TestLinuxPort_OpenMissingDevice(t *testing.T) {
	_, err := openLinuxPort(Params{Port: "/dev/does-not-exist-sercom", BaudRate: 9600}, time.Second)
	require.Error(t, err)
}

func TestLinuxPort_RejectsUnsupportedBaud(t *testing.T) {
	_, err := openLinuxPort(Params{Port: "/dev/null", BaudRate: 1200}, time.Second)
	require.ErrorIs(t, err, ErrUnsupportedBaud)
}

func TestDeciseconds(t *testing.T) {
	require.Equal(t, uint8(1), deciseconds(0))
	require.Equal(t, uint8(1), deciseconds(50*time.Millisecond))
	require.Equal(t, uint8(10), deciseconds(time.Second))
	require.Equal(t, uint8(255), deciseconds(time.Hour))
}
