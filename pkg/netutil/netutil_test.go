package netutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func listenOnEphemeralPort(t *testing.T) (fd int, port int) {
	t.Helper()
	fd, err := Server(0, "127.0.0.1")
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	_, port, err = LocalAddr(fd)
	require.NoError(t, err)
	return fd, port
}

func TestConnectAcceptRoundTrip(t *testing.T) {
	serverFd, port := listenOnEphemeralPort(t)

	clientFd, err := Connect("127.0.0.1", port, false)
	require.NoError(t, err)
	defer unix.Close(clientFd)

	acceptedFd, ip, _, err := Accept(serverFd)
	require.NoError(t, err)
	defer unix.Close(acceptedFd)
	assert.Equal(t, "127.0.0.1", ip)
}

func TestSyncWriteThenSyncRead(t *testing.T) {
	serverFd, port := listenOnEphemeralPort(t)

	clientFd, err := Connect("127.0.0.1", port, false)
	require.NoError(t, err)
	defer unix.Close(clientFd)

	acceptedFd, _, _, err := Accept(serverFd)
	require.NoError(t, err)
	defer unix.Close(acceptedFd)

	payload := []byte("hello sync")
	go func() {
		_, _ = SyncWrite(clientFd, payload, time.Second)
	}()

	buf := make([]byte, len(payload))
	n, err := SyncRead(acceptedFd, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestSyncReadLineStripsCRLF(t *testing.T) {
	serverFd, port := listenOnEphemeralPort(t)

	clientFd, err := Connect("127.0.0.1", port, false)
	require.NoError(t, err)
	defer unix.Close(clientFd)

	acceptedFd, _, _, err := Accept(serverFd)
	require.NoError(t, err)
	defer unix.Close(acceptedFd)

	go func() {
		_, _ = SyncWrite(clientFd, []byte("SYNC\r\n"), time.Second)
	}()

	line, err := SyncReadLine(acceptedFd, 1024, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "SYNC", line)
}

func TestSyncReadTimesOutWithoutData(t *testing.T) {
	serverFd, port := listenOnEphemeralPort(t)

	clientFd, err := Connect("127.0.0.1", port, false)
	require.NoError(t, err)
	defer unix.Close(clientFd)

	acceptedFd, _, _, err := Accept(serverFd)
	require.NoError(t, err)
	defer unix.Close(acceptedFd)

	buf := make([]byte, 4)
	_, err = SyncRead(acceptedFd, buf, 50*time.Millisecond)
	assert.Error(t, err)
}
