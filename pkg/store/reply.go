package store

import (
	"strconv"
)

// Reply is a fully framed wire reply, ready to be queued to a client
// exactly as produced — there is no further encoding step. The wire
// format is the legacy line-oriented one from spec.md §4.4/§4.5: a
// status line starts with '+', an error with '-', and a bulk payload is
// a decimal length line followed by the raw bytes and a trailing CRLF.
type Reply []byte

var (
	crlf = []byte("\r\n")

	okReply    = Reply("+OK\r\n")
	pongReply  = Reply("+PONG\r\n")
	nilReply   = Reply("nil\r\n")
	zeroReply  = Reply("0\r\n")
	oneReply   = Reply("1\r\n")
	minusOne   = Reply("-1\r\n")
	minusThree = Reply("-3\r\n")
	minusFour  = Reply("-4\r\n")

	wrongTypeErr = Reply("-ERR Operation against a key holding the wrong kind of value\r\n")

	// bulkNilReply is the miss sentinel for commands whose successful
	// reply is bulk-framed (GET, LPOP, RPOP, LINDEX), distinct from the
	// inline nilReply other commands would use, per spec.md §7's
	// "distinct sentinels for inline vs. bulk reply shapes."
	bulkNilReply = Reply("$-1\r\n")

	// bulkWrongTypeErr frames the same wrong-type error as a negative
	// bulk length followed by the error line, so a client mid-way
	// through parsing a bulk reply's length header still recognizes the
	// error without switching parse modes. Grounded directly on
	// shared.wrongtypeerrbulk in redis.c, built there as
	// sdscatprintf("%d\r\n%s", -sdslen(wrongtypeerr)+2, wrongtypeerr).
	bulkWrongTypeErr = bulkFramed(wrongTypeErr)
)

// bulkFramed reduces inline (a "-ERR ...\r\n" line) to the negative-
// length-prefixed form bulk-reply-shaped commands use for errors.
func bulkFramed(inline Reply) Reply {
	n := -(len(inline) - 2)
	return Reply(strconv.Itoa(n) + "\r\n" + string(inline))
}

// Status builds a "+<msg>\r\n" reply.
func Status(msg string) Reply {
	return Reply("+" + msg + "\r\n")
}

// Err builds a "-ERR <msg>\r\n" reply.
func Err(msg string) Reply {
	return Reply("-ERR " + msg + "\r\n")
}

// Int builds a bare decimal-line reply, used for counts and booleans.
func Int(n int64) Reply {
	return Reply(strconv.FormatInt(n, 10) + "\r\n")
}

// Bulk builds a length-prefixed binary-safe reply: "<len>\r\n<data>\r\n".
func Bulk(data []byte) Reply {
	out := make([]byte, 0, len(data)+16)
	out = append(out, strconv.Itoa(len(data))...)
	out = append(out, crlf...)
	out = append(out, data...)
	out = append(out, crlf...)
	return Reply(out)
}

// Line builds an unframed raw-bytes-plus-CRLF reply, used by commands
// that echo a single token without a bulk length prefix (RANDOMKEY,
// TYPE).
func Line(data []byte) Reply {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	out = append(out, crlf...)
	return Reply(out)
}

// MultiBulk builds a space-separated sequence of values preceded by the
// total byte length of the joined payload (spaces included), the shape
// KEYS/SINTER use: "<len>\r\n<v1> <v2> ... <vn>\r\n".
func MultiBulk(values [][]byte) Reply {
	total := 0
	for i, v := range values {
		if i > 0 {
			total++
		}
		total += len(v)
	}
	out := make([]byte, 0, total+16)
	out = append(out, strconv.Itoa(total)...)
	out = append(out, crlf...)
	for i, v := range values {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, v...)
	}
	out = append(out, crlf...)
	return Reply(out)
}
