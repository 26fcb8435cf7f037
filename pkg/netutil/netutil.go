// Package netutil wraps the raw socket calls the reactor and
// replication code need: non-blocking listen/accept/connect for the
// event loop, and blocking-with-timeout helpers for the SYNC handshake.
// It is a Go translation of original_source/redis/src/anet.c, plus the
// syncWrite/syncRead/syncReadLine helpers from redis.c used only by
// replication. Everything operates on raw file descriptors rather than
// net.Conn because the reactor multiplexes over fds with unix.Select.
package netutil

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const listenBacklog = 32

// Server opens a listening, non-blocking TCP socket on port, optionally
// bound to bindAddr (empty means all interfaces), matching
// anetTcpServer followed by anetNonBlock.
func Server(port int, bindAddr string) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("netutil: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: setsockopt SO_REUSEADDR: %w", err)
	}

	addr := unix.SockaddrInet4{Port: port}
	if bindAddr != "" {
		ip, err := parseIPv4(bindAddr)
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		addr.Addr = ip
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: bind: %w", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: listen: %w", err)
	}
	if err := SetNonBlock(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Accept accepts one pending connection on serverFd, matching
// anetAccept — EINTR is retried transparently. The accepted socket is
// left blocking; callers that want it non-blocking call SetNonBlock.
func Accept(serverFd int) (fd int, ip string, port int, err error) {
	for {
		nfd, sa, aerr := unix.Accept(serverFd)
		if aerr == unix.EINTR {
			continue
		}
		if aerr != nil {
			return -1, "", 0, fmt.Errorf("netutil: accept: %w", aerr)
		}
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			return nfd, formatIPv4(in4.Addr), in4.Port, nil
		}
		return nfd, "", 0, nil
	}
}

// Connect opens a TCP connection to addr:port, matching
// anetTcpGenericConnect. If nonblock is true the socket is switched to
// non-blocking before connect(2), so EINPROGRESS is returned instead of
// blocking until the handshake completes — the caller polls the fd for
// writability in the reactor.
func Connect(addr string, port int, nonblock bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("netutil: socket: %w", err)
	}

	if nonblock {
		if err := SetNonBlock(fd); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}

	ip, err := parseIPv4(addr)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}

	err = unix.Connect(fd, sa)
	if err != nil {
		if nonblock && err == unix.EINPROGRESS {
			return fd, nil
		}
		unix.Close(fd)
		return -1, fmt.Errorf("netutil: connect: %w", err)
	}
	return fd, nil
}

// SetNonBlock puts fd in non-blocking mode, matching anetNonBlock.
func SetNonBlock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("netutil: set non-blocking: %w", err)
	}
	return nil
}

// SetTCPNoDelay disables Nagle's algorithm, matching anetTcpNoDelay.
func SetTCPNoDelay(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("netutil: setsockopt TCP_NODELAY: %w", err)
	}
	return nil
}

// SetKeepAlive enables TCP keepalive, matching anetTcpKeepAlive.
func SetKeepAlive(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return fmt.Errorf("netutil: setsockopt SO_KEEPALIVE: %w", err)
	}
	return nil
}

// Read performs a single non-blocking read(2), matching the semantics
// the reactor expects: 0, nil on EOF; -1 is never returned, the error
// is surfaced instead.
func Read(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Write performs a single non-blocking write(2).
func Write(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes fd, discarding the error — used by cleanup paths that
// are already unwinding a prior failure and have nothing more useful
// to do with a close error.
func Close(fd int) {
	_ = unix.Close(fd)
}

// IsWouldBlock reports whether err is the non-blocking-socket "try
// again" signal rather than a real I/O failure, matching
// readQueryFromClient's "if (errno == EAGAIN) return" check in redis.c.
func IsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// waitReady blocks up to timeout for fd to become ready for the given
// event (unix.POLLIN or unix.POLLOUT), matching the aeWait(fd,
// mask, 1000) polling loop syncWrite/syncRead use — but as a single
// poll(2) call against the whole deadline rather than a 1-second tick,
// since Go can pass an arbitrary timeout directly.
func waitReady(fd int, events int16, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0 && fds[0].Revents&events != 0, nil
}

// SyncWrite blocks until every byte of buf is written or timeout
// elapses, matching syncWrite's "poll writable, write, recheck
// deadline" loop. Used only by replication, never by the reactor.
func SyncWrite(fd int, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return written, fmt.Errorf("netutil: sync write timed out")
		}
		ready, err := waitReady(fd, unix.POLLOUT, remaining)
		if err != nil {
			return written, fmt.Errorf("netutil: poll writable: %w", err)
		}
		if !ready {
			continue
		}
		n, err := unix.Write(fd, buf[written:])
		if err != nil {
			return written, fmt.Errorf("netutil: write: %w", err)
		}
		written += n
	}
	return written, nil
}

// SyncRead blocks until len(buf) bytes have been read or timeout
// elapses, matching syncRead.
func SyncRead(fd int, buf []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	read := 0
	for read < len(buf) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return read, fmt.Errorf("netutil: sync read timed out")
		}
		ready, err := waitReady(fd, unix.POLLIN, remaining)
		if err != nil {
			return read, fmt.Errorf("netutil: poll readable: %w", err)
		}
		if !ready {
			continue
		}
		n, err := unix.Read(fd, buf[read:])
		if err != nil {
			return read, fmt.Errorf("netutil: read: %w", err)
		}
		if n == 0 {
			return read, fmt.Errorf("netutil: connection closed mid-read")
		}
		read += n
	}
	return read, nil
}

// SyncReadLine reads up to maxLen bytes until a newline, stripping a
// trailing \r\n or \n, matching syncReadLine's CR-optional line
// framing.
func SyncReadLine(fd int, maxLen int, timeout time.Duration) (string, error) {
	var sb strings.Builder
	one := make([]byte, 1)
	for sb.Len() < maxLen {
		if _, err := SyncRead(fd, one, timeout); err != nil {
			return "", err
		}
		if one[0] == '\n' {
			line := sb.String()
			return strings.TrimSuffix(line, "\r"), nil
		}
		sb.WriteByte(one[0])
	}
	return sb.String(), nil
}

// LocalAddr returns the address fd is bound to, used after binding to
// port 0 to discover the port the kernel actually assigned.
func LocalAddr(fd int) (ip string, port int, err error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", 0, fmt.Errorf("netutil: getsockname: %w", err)
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", 0, fmt.Errorf("netutil: unexpected sockaddr type %T", sa)
	}
	return formatIPv4(in4.Addr), in4.Port, nil
}

func parseIPv4(addr string) ([4]byte, error) {
	var out [4]byte
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return out, fmt.Errorf("netutil: invalid IPv4 address %q", addr)
	}
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil || v < 0 || v > 255 {
			return out, fmt.Errorf("netutil: invalid IPv4 address %q", addr)
		}
		out[i] = byte(v)
	}
	return out, nil
}

func formatIPv4(b [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}
