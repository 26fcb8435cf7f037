// Package replication implements the master→slave full-snapshot sync
// handshake spec.md §4.7 describes: no incremental log, just "stream
// the whole dump once." It is grounded on
// original_source/redis/src/redis.c's syncCommand (master side) and
// syncWithMaster (slave side, reached via the same sync_write/
// sync_read/sync_read_line helpers already built in pkg/netutil).
package replication

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/memkv/memkv/pkg/netutil"
	"github.com/memkv/memkv/pkg/snapshot"
	"github.com/memkv/memkv/pkg/store"
)

// State names the slave's replication state machine.
type State int

const (
	// None means this server is not configured as a slave.
	None State = iota
	// MustConnect means the cron should attempt a handshake on its
	// next tick.
	MustConnect
	// Connected means the handshake succeeded and a master-bound
	// client is live.
	Connected
)

// syncTimeout bounds every blocking step of the handshake, matching the
// "5-second timeout" spec.md §4.7 calls out for flushing a SYNC
// client's pending replies, generalized to the rest of the blocking
// steps since none of them should be allowed to stall the reactor
// indefinitely either.
const syncTimeout = 5 * time.Second

// HandleSync runs the master side of SYNC on behalf of the client on
// fd: a synchronous SAVE, then the dump streamed as "<size>\r\n" plus
// raw bytes plus a trailing CRLF. The caller is responsible for having
// already flushed the client's pending replies and for marking it
// IS_SLAVE once this returns successfully.
func HandleSync(s *store.Store, fd int, dumpFilename string) error {
	if s.Hooks.Save != nil {
		if err := s.Hooks.Save(); err != nil {
			return fmt.Errorf("replication: sync save: %w", err)
		}
	} else if err := snapshot.Save(s, dumpFilename); err != nil {
		return fmt.Errorf("replication: sync save: %w", err)
	}

	data, err := os.ReadFile(dumpFilename)
	if err != nil {
		return fmt.Errorf("replication: read dump: %w", err)
	}

	header := []byte(fmt.Sprintf("%d\r\n", len(data)))
	if _, err := netutil.SyncWrite(fd, header, syncTimeout); err != nil {
		return fmt.Errorf("replication: write size header: %w", err)
	}
	if _, err := netutil.SyncWrite(fd, data, syncTimeout); err != nil {
		return fmt.Errorf("replication: write dump: %w", err)
	}
	if _, err := netutil.SyncWrite(fd, []byte("\r\n"), syncTimeout); err != nil {
		return fmt.Errorf("replication: write trailer: %w", err)
	}
	return nil
}

// ConnectToMaster runs the slave side of the handshake: dial the
// master, send "SYNC \r\n", read the size line, stream the declared
// number of bytes into a temp file, rename it over dumpFilename, empty
// every database, and load the fresh dump. On success it returns the
// connected fd (to be handed to the reactor as a master-bound client);
// on any failure the fd, if opened, is closed and the caller should
// leave replication state at MustConnect for the next cron tick.
func ConnectToMaster(s *store.Store, host string, port int, dumpFilename string) (fd int, err error) {
	fd, err = netutil.Connect(host, port, false)
	if err != nil {
		return -1, fmt.Errorf("replication: connect: %w", err)
	}
	conn := fd
	defer func() {
		if err != nil {
			netutil.Close(conn)
		}
	}()

	if _, err = netutil.SyncWrite(fd, []byte("SYNC \r\n"), syncTimeout); err != nil {
		return -1, fmt.Errorf("replication: send SYNC: %w", err)
	}

	sizeLine, err := netutil.SyncReadLine(fd, 32, syncTimeout)
	if err != nil {
		return -1, fmt.Errorf("replication: read size line: %w", err)
	}
	var size int
	if _, scanErr := fmt.Sscanf(sizeLine, "%d", &size); scanErr != nil || size < 0 {
		return -1, fmt.Errorf("replication: malformed size line %q", sizeLine)
	}

	dir := filepath.Dir(dumpFilename)
	tmp, err := os.CreateTemp(dir, "temp-sync-*.rdb")
	if err != nil {
		return -1, fmt.Errorf("replication: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	remaining := size
	buf := make([]byte, 64*1024)
	for remaining > 0 {
		chunk := len(buf)
		if remaining < chunk {
			chunk = remaining
		}
		n, readErr := netutil.SyncRead(fd, buf[:chunk], syncTimeout)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				tmp.Close()
				os.Remove(tmpName)
				return -1, fmt.Errorf("replication: write temp dump: %w", writeErr)
			}
			remaining -= n
		}
		if readErr != nil {
			tmp.Close()
			os.Remove(tmpName)
			return -1, fmt.Errorf("replication: read dump body: %w", readErr)
		}
	}
	// trailing CRLF
	var trailer [2]byte
	_, _ = netutil.SyncRead(fd, trailer[:], syncTimeout)

	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return -1, fmt.Errorf("replication: close temp dump: %w", err)
	}
	if err = os.Rename(tmpName, dumpFilename); err != nil {
		os.Remove(tmpName)
		return -1, fmt.Errorf("replication: rename temp dump: %w", err)
	}

	s.FlushAll()
	if err = snapshot.Load(s, dumpFilename); err != nil {
		return -1, fmt.Errorf("replication: load dump: %w", err)
	}
	return fd, nil
}
