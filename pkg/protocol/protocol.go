// Package protocol implements the per-client wire state machine: the
// legacy pre-multibulk line protocol spec.md §4.4 describes, where a
// command is either a single inline line ("PING\r\n") or an inline
// header naming a trailing bulk payload by length
// ("SET foo 3\r\nbar\r\n"). It is a direct translation of
// original_source/redis/src/redis.c's readQueryFromClient /
// processInputBuffer / processCommand pipeline, generalized to memkv's
// command table instead of Redis's.
package protocol

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/memkv/memkv/pkg/netutil"
	"github.com/memkv/memkv/pkg/store"
)

// State names the phase of the client's read state machine, mirroring
// the REDIS_CMD_* / bulklen bookkeeping in redisClient.
type State int

const (
	// ReadingRequestLine is waiting for a full "\r\n"-terminated line,
	// which is either a complete inline command or a bulk command's
	// header (e.g. "SET foo 3").
	ReadingRequestLine State = iota
	// ReadingBulkPayload is waiting for the declared number of bytes
	// plus the trailing CRLF that follow a bulk command's header line.
	ReadingBulkPayload
	// Closing means the connection is being torn down; no more reads
	// or writes should be attempted.
	Closing
)

// maxInlineLine bounds a request line the way redis.c's
// PROTO_INLINE_MAX_SIZE does, so a client that never sends a newline
// can't grow the read buffer without bound.
const maxInlineLine = 64 * 1024

// maxBulkLen bounds a declared bulk payload length.
const maxBulkLen = 512 * 1024 * 1024

// SpecialHandler runs a command that needs raw fd access or control
// over the client's lifecycle — SYNC and SHUTDOWN — instead of the
// generic store.Commands table. Registered per-client by the server,
// which is the only layer that knows about the listening socket,
// replication, and process lifecycle.
type SpecialHandler func(c *Client, args [][]byte) store.Reply

// Client holds one connection's protocol state: the pending argument
// vector being assembled, the read buffer, and the selected database.
// It has no knowledge of the reactor's fd multiplexing — Feed is called
// whenever the transport layer has more bytes available.
type Client struct {
	ID      string
	fd      int
	store   *store.Store
	dbIdx   int
	state   State
	buf     []byte
	args    [][]byte
	bulkOf  int // index into args that the pending bulk payload fills
	bulkLen int

	LastInteraction time.Time
	IsSlave         bool

	// Special, keyed by lowercased command name, is consulted before
	// store.Commands — the server wires SYNC/SHUTDOWN through it.
	Special map[string]SpecialHandler

	// writeQueue is the client's pending-reply FIFO and sentLen the
	// number of bytes of its head entry already written, matching
	// spec.md §4.4's reply-queue contract: "the first enqueue on an
	// empty queue registers a WRITE interest... on short writes updates
	// sent_len... on completion pops and advances."
	writeQueue []store.Reply
	sentLen    int
}

// FD returns the client's underlying file descriptor, needed by special
// handlers (SYNC writes the dump directly to the fd, bypassing the
// normal reply queue).
func (c *Client) FD() int {
	return c.fd
}

// DBIndex returns the currently selected database.
func (c *Client) DBIndex() int {
	return c.dbIdx
}

// Store returns the client's bound store.
func (c *Client) Store() *store.Store {
	return c.store
}

// Close transitions the client to the Closing state so Feed stops
// processing further input, used by special handlers (SHUTDOWN) that
// need to end the connection themselves.
func (c *Client) Close() {
	c.state = Closing
}

// NewClient creates a protocol state machine bound to fd, dispatching
// commands against s starting on database 0.
func NewClient(id string, fd int, s *store.Store) *Client {
	return &Client{
		ID:              id,
		fd:              fd,
		store:           s,
		state:           ReadingRequestLine,
		LastInteraction: time.Now(),
	}
}

// Feed appends newly-read bytes to the client's buffer and processes as
// many complete commands as are available, returning the replies to
// write back in order. It never blocks — a partial command is left
// buffered for the next call, matching processInputBuffer's loop over
// "while more commands can be parsed out of querybuf."
func (c *Client) Feed(data []byte) []store.Reply {
	c.buf = append(c.buf, data...)
	c.LastInteraction = time.Now()

	var replies []store.Reply
	for {
		switch c.state {
		case ReadingRequestLine:
			line, rest, ok := cutLine(c.buf)
			if !ok {
				if len(c.buf) > maxInlineLine {
					c.state = Closing
					return replies
				}
				return replies
			}
			c.buf = rest
			args, bulkHeader, err := parseRequestLine(line)
			if err != nil {
				replies = append(replies, store.Err(err.Error()))
				continue
			}
			if len(args) == 0 {
				continue
			}
			if bulkHeader >= 0 {
				if bulkHeader > maxBulkLen {
					replies = append(replies, store.Err("invalid bulk length"))
					continue
				}
				c.args = args
				c.bulkOf = len(args) - 1
				c.bulkLen = bulkHeader
				c.state = ReadingBulkPayload
				continue
			}
			replies = append(replies, c.dispatch(args))

		case ReadingBulkPayload:
			need := c.bulkLen + 2 // payload + trailing CRLF
			if len(c.buf) < need {
				return replies
			}
			payload := c.buf[:c.bulkLen]
			c.buf = c.buf[need:]
			c.args[c.bulkOf] = append([]byte(nil), payload...)
			args := c.args
			c.args = nil
			c.state = ReadingRequestLine
			replies = append(replies, c.dispatch(args))

		case Closing:
			return replies
		}
	}
}

// dispatch looks up and runs the command named by args[0], mirroring
// processCommand's arity/lookup checks before invoking the handler.
func (c *Client) dispatch(args [][]byte) store.Reply {
	name := strings.ToLower(string(args[0]))
	if c.Special != nil {
		if h, ok := c.Special[name]; ok {
			return h(c, args)
		}
	}
	cmd, ok := store.Commands[name]
	if !ok {
		return store.Err("unknown command '" + name + "'")
	}
	if cmd.Arity >= 0 && len(args) != cmd.Arity {
		return store.Err("wrong number of arguments for '" + name + "'")
	}
	if cmd.Arity < 0 && len(args) < -cmd.Arity {
		return store.Err("wrong number of arguments for '" + name + "'")
	}
	c.store.NumCommands++
	return cmd.Handler(c.store, &c.dbIdx, args)
}

// cutLine splits buf at the first "\r\n" (falling back to a bare "\n"),
// returning the line without its terminator, the remaining buffer, and
// whether a terminator was found at all.
func cutLine(buf []byte) (line []byte, rest []byte, ok bool) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, buf, false
	}
	end := idx
	if end > 0 && buf[end-1] == '\r' {
		end--
	}
	return buf[:end], buf[idx+1:], true
}

// parseRequestLine splits an inline request line into whitespace-
// separated tokens. If the line is a bulk command header — the last
// token is a decimal count introduced by following the command's
// argument list, per spec.md §4.4's inline-vs-bulk grammar — the
// returned bulkHeader is that count and the final args slot is left
// empty for Feed to fill in once the payload arrives; otherwise
// bulkHeader is -1.
func parseRequestLine(line []byte) (args [][]byte, bulkHeader int, err error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, -1, nil
	}
	name := strings.ToLower(string(fields[0]))
	cmd, ok := store.Commands[name]
	if !ok || !cmd.Bulk {
		out := make([][]byte, len(fields))
		copy(out, fields)
		return out, -1, nil
	}
	if len(fields) < 2 {
		return nil, -1, errMalformed("wrong number of arguments")
	}
	n, convErr := strconv.Atoi(string(fields[len(fields)-1]))
	if convErr != nil || n < 0 {
		return nil, -1, errMalformed("invalid bulk length")
	}
	out := make([][]byte, len(fields))
	copy(out, fields[:len(fields)-1])
	out[len(out)-1] = nil
	return out, n, nil
}

type errMalformed string

func (e errMalformed) Error() string { return string(e) }

// ReadFrom drains whatever is currently available on the client's fd
// (non-blocking) and feeds it through the state machine, returning the
// replies to write and whether the connection should be closed.
func (c *Client) ReadFrom(readBuf []byte) ([]store.Reply, bool, error) {
	n, err := netutil.Read(c.fd, readBuf)
	if err != nil {
		return nil, true, err
	}
	if n == 0 {
		return nil, true, nil
	}
	replies := c.Feed(readBuf[:n])
	return replies, c.state == Closing, nil
}

// QueueReplies appends replies to the client's outgoing FIFO. It reports
// whether the queue was empty beforehand and replies were actually
// added — the signal the caller uses to register WRITE interest on the
// client's fd, matching spec.md §4.4's "the first enqueue on an empty
// queue registers a WRITE interest."
func (c *Client) QueueReplies(replies []store.Reply) (becameReady bool) {
	becameReady = len(c.writeQueue) == 0 && len(replies) > 0
	c.writeQueue = append(c.writeQueue, replies...)
	return becameReady
}

// HasPendingWrites reports whether the reply queue still holds bytes
// that haven't gone out yet.
func (c *Client) HasPendingWrites() bool {
	return len(c.writeQueue) > 0
}

// FlushWrites is the write-ready callback's body: it writes the head
// reply's bytes starting at sentLen, advances sentLen on a short write,
// and pops (dequeues) a reply once it's fully sent, repeating until
// either the queue drains or the socket reports it would block.
// Matches spec.md §4.4's reply-queue write-ready contract directly. The
// returned bool reports whether the queue is now empty — the caller
// should deregister WRITE interest when it is — and a non-nil error
// means a fatal write error occurred, which moves the client to Closing.
func (c *Client) FlushWrites() (drained bool, err error) {
	for len(c.writeQueue) > 0 {
		head := c.writeQueue[0]
		n, werr := netutil.Write(c.fd, head[c.sentLen:])
		if werr != nil {
			if netutil.IsWouldBlock(werr) {
				return false, nil
			}
			c.state = Closing
			return false, werr
		}
		c.sentLen += n
		if c.sentLen < len(head) {
			return false, nil
		}
		c.writeQueue = c.writeQueue[1:]
		c.sentLen = 0
	}
	return true, nil
}

// Idle reports whether the client has been silent for longer than timeout,
// used by the cron's idle-client sweep.
func (c *Client) Idle(now time.Time, timeout time.Duration) bool {
	if c.IsSlave {
		return false
	}
	return now.Sub(c.LastInteraction) > timeout
}
