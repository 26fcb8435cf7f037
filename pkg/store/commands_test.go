package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(4, nil, nil)
}

func run(s *Store, dbIndex *int, name string, args ...string) Reply {
	cmd, ok := Commands[name]
	if !ok {
		return Err("unknown command")
	}
	argv := make([][]byte, len(args)+1)
	argv[0] = []byte(name)
	for i, a := range args {
		argv[i+1] = []byte(a)
	}
	return cmd.Handler(s, dbIndex, argv)
}

func TestStringBasics(t *testing.T) {
	s := newTestStore(t)
	db := 0

	assert.Equal(t, okReply, run(s, &db, "set", "foo", "bar"))
	assert.Equal(t, Bulk([]byte("bar")), run(s, &db, "get", "foo"))
	assert.Equal(t, oneReply, run(s, &db, "exists", "foo"))
	assert.Equal(t, zeroReply, run(s, &db, "exists", "missing"))
	assert.Equal(t, bulkNilReply, run(s, &db, "get", "missing"))

	assert.Equal(t, oneReply, run(s, &db, "del", "foo"))
	assert.Equal(t, zeroReply, run(s, &db, "del", "foo"))
}

func TestSetnxIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	db := 0

	assert.Equal(t, oneReply, run(s, &db, "setnx", "foo", "1"))
	assert.Equal(t, zeroReply, run(s, &db, "setnx", "foo", "2"))
	assert.Equal(t, Bulk([]byte("1")), run(s, &db, "get", "foo"))
}

func TestIncrDecr(t *testing.T) {
	s := newTestStore(t)
	db := 0

	assert.Equal(t, Int(1), run(s, &db, "incr", "counter"))
	assert.Equal(t, Int(2), run(s, &db, "incr", "counter"))
	assert.Equal(t, Int(1), run(s, &db, "decr", "counter"))
	assert.Equal(t, Int(11), run(s, &db, "incrby", "counter", "10"))
	assert.Equal(t, Int(6), run(s, &db, "decrby", "counter", "5"))
}

func TestGetAgainstWrongTypeFails(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "lpush", "alist", "x")
	assert.Equal(t, bulkWrongTypeErr, run(s, &db, "get", "alist"))
}

func TestLlenAgainstWrongTypeUsesInlineSentinel(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "astring", "x")
	assert.Equal(t, wrongTypeErr, run(s, &db, "llen", "astring"))
}

func TestLpopMissingKeyUsesBulkNilSentinel(t *testing.T) {
	s := newTestStore(t)
	db := 0

	assert.Equal(t, bulkNilReply, run(s, &db, "lpop", "missing"))
}

func TestLindexOutOfRangeUsesBulkNilSentinel(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "l", "a")
	assert.Equal(t, bulkNilReply, run(s, &db, "lindex", "l", "5"))
}

func TestListRotationAndRange(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "l", "a")
	run(s, &db, "rpush", "l", "b")
	run(s, &db, "rpush", "l", "c")
	run(s, &db, "lpush", "l", "z")

	assert.Equal(t, Int(4), run(s, &db, "llen", "l"))
	assert.Equal(t, Bulk([]byte("z")), run(s, &db, "lindex", "l", "0"))
	assert.Equal(t, Bulk([]byte("c")), run(s, &db, "lindex", "l", "-1"))

	assert.Equal(t, MultiBulk([][]byte{[]byte("z"), []byte("a"), []byte("b"), []byte("c")}),
		run(s, &db, "lrange", "l", "0", "-1"))

	assert.Equal(t, Bulk([]byte("z")), run(s, &db, "lpop", "l"))
	assert.Equal(t, Bulk([]byte("c")), run(s, &db, "rpop", "l"))
	assert.Equal(t, Int(2), run(s, &db, "llen", "l"))
}

func TestLsetAndLtrim(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "l", "a")
	run(s, &db, "rpush", "l", "b")
	run(s, &db, "rpush", "l", "c")

	assert.Equal(t, okReply, run(s, &db, "lset", "l", "1", "B"))
	assert.Equal(t, Bulk([]byte("B")), run(s, &db, "lindex", "l", "1"))

	assert.Equal(t, okReply, run(s, &db, "ltrim", "l", "0", "1"))
	assert.Equal(t, Int(2), run(s, &db, "llen", "l"))
}

func TestLrem(t *testing.T) {
	s := newTestStore(t)
	db := 0

	for _, v := range []string{"a", "b", "a", "c", "a"} {
		run(s, &db, "rpush", "l", v)
	}
	assert.Equal(t, Int(2), run(s, &db, "lrem", "l", "2", "a"))
	assert.Equal(t, Int(3), run(s, &db, "llen", "l"))
}

func TestSetIntersection(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "sadd", "s1", "a")
	run(s, &db, "sadd", "s1", "b")
	run(s, &db, "sadd", "s1", "c")
	run(s, &db, "sadd", "s2", "b")
	run(s, &db, "sadd", "s2", "c")
	run(s, &db, "sadd", "s2", "d")

	reply := run(s, &db, "sinter", "s1", "s2")
	body := string(reply)
	assert.Contains(t, body, "b")
	assert.Contains(t, body, "c")
	assert.NotContains(t, body, "a")
	assert.NotContains(t, body, "d")

	assert.Equal(t, Int(2), run(s, &db, "sinterstore", "dest", "s1", "s2"))
	assert.Equal(t, Int(2), run(s, &db, "scard", "dest"))
}

func TestSaddRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	db := 0

	assert.Equal(t, oneReply, run(s, &db, "sadd", "s", "x"))
	assert.Equal(t, zeroReply, run(s, &db, "sadd", "s", "x"))
	assert.Equal(t, oneReply, run(s, &db, "sismember", "s", "x"))
	assert.Equal(t, oneReply, run(s, &db, "srem", "s", "x"))
	assert.Equal(t, zeroReply, run(s, &db, "sismember", "s", "x"))
}

func TestRenameSemantics(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "src", "v")
	assert.Equal(t, okReply, run(s, &db, "rename", "src", "dst"))
	assert.Equal(t, zeroReply, run(s, &db, "exists", "src"))
	assert.Equal(t, Bulk([]byte("v")), run(s, &db, "get", "dst"))

	assert.Equal(t, Err("no such key"), run(s, &db, "rename", "src", "dst2"))
}

func TestRenameNXRefusesExistingDest(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "a", "1")
	run(s, &db, "set", "b", "2")
	assert.Equal(t, zeroReply, run(s, &db, "renamenx", "a", "b"))
	assert.Equal(t, oneReply, run(s, &db, "exists", "a"))
}

func TestSelectAndMove(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "k", "v")
	assert.Equal(t, oneReply, run(s, &db, "move", "k", "1"))
	assert.Equal(t, zeroReply, run(s, &db, "exists", "k"))

	assert.Equal(t, okReply, run(s, &db, "select", "1"))
	assert.Equal(t, 1, db)
	assert.Equal(t, oneReply, run(s, &db, "exists", "k"))
}

func TestMoveToSameDBRefused(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "k", "v")
	assert.Equal(t, minusThree, run(s, &db, "move", "k", "0"))
}

func TestKeysGlobAndRandomKey(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "user:1", "a")
	run(s, &db, "set", "user:2", "b")
	run(s, &db, "set", "other", "c")

	reply := string(run(s, &db, "keys", "user:*"))
	assert.Contains(t, reply, "user:1")
	assert.Contains(t, reply, "user:2")
	assert.NotContains(t, reply, "other")

	random := run(s, &db, "randomkey")
	require.NotEmpty(t, random)
}

func TestDbsizeFlushdbFlushall(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "a", "1")
	run(s, &db, "set", "b", "2")
	assert.Equal(t, Int(2), run(s, &db, "dbsize"))

	assert.Equal(t, okReply, run(s, &db, "flushdb"))
	assert.Equal(t, Int(0), run(s, &db, "dbsize"))

	db2 := 1
	run(s, &db2, "set", "x", "1")
	assert.Equal(t, okReply, run(s, &db, "flushall"))
	assert.Equal(t, Int(0), run(s, &db2, "dbsize"))
}

func TestTypeCommand(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "set", "str", "v")
	run(s, &db, "rpush", "lst", "v")
	run(s, &db, "sadd", "st", "v")

	assert.Equal(t, Line([]byte("string")), run(s, &db, "type", "str"))
	assert.Equal(t, Line([]byte("list")), run(s, &db, "type", "lst"))
	assert.Equal(t, Line([]byte("set")), run(s, &db, "type", "st"))
	assert.Equal(t, Line([]byte("none")), run(s, &db, "type", "missing"))
}

func TestSortAscendingAndDescending(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "nums", "3")
	run(s, &db, "rpush", "nums", "1")
	run(s, &db, "rpush", "nums", "2")

	assert.Equal(t, MultiBulk([][]byte{[]byte("1"), []byte("2"), []byte("3")}),
		run(s, &db, "sort", "nums"))
	assert.Equal(t, MultiBulk([][]byte{[]byte("3"), []byte("2"), []byte("1")}),
		run(s, &db, "sort", "nums", "DESC"))
}

func TestSortAlphaUsesLexicalOrder(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "words", "banana")
	run(s, &db, "rpush", "words", "apple")
	run(s, &db, "rpush", "words", "cherry")

	assert.Equal(t, MultiBulk([][]byte{[]byte("apple"), []byte("banana"), []byte("cherry")}),
		run(s, &db, "sort", "words", "ALPHA"))
}

func TestSortNonNumericWithoutAlphaGetsNilWeight(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "mixed", "3")
	run(s, &db, "rpush", "mixed", "notanumber")
	run(s, &db, "rpush", "mixed", "1")

	reply := run(s, &db, "sort", "mixed")
	assert.NotContains(t, string(reply), "ERR")
}

func TestSortByPatternUsesExternalWeights(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "ids", "1")
	run(s, &db, "rpush", "ids", "2")
	run(s, &db, "rpush", "ids", "3")
	run(s, &db, "set", "weight_1", "30")
	run(s, &db, "set", "weight_2", "10")
	run(s, &db, "set", "weight_3", "20")

	assert.Equal(t, MultiBulk([][]byte{[]byte("2"), []byte("3"), []byte("1")}),
		run(s, &db, "sort", "ids", "BY", "weight_*"))
}

func TestSortByPatternWithoutWildcardSkipsSorting(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "ids", "3")
	run(s, &db, "rpush", "ids", "1")
	run(s, &db, "rpush", "ids", "2")

	assert.Equal(t, MultiBulk([][]byte{[]byte("3"), []byte("1"), []byte("2")}),
		run(s, &db, "sort", "ids", "BY", "nosuchpattern"))
}

func TestSortGetPatternProjectsValues(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "ids", "1")
	run(s, &db, "rpush", "ids", "2")
	run(s, &db, "set", "name_1", "alice")
	run(s, &db, "set", "name_2", "bob")

	assert.Equal(t, MultiBulk([][]byte{[]byte("alice"), []byte("bob")}),
		run(s, &db, "sort", "ids", "GET", "name_*"))
}

func TestSortGetPatternMissingLookupUsesMinusOneMarker(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "ids", "1")
	run(s, &db, "rpush", "ids", "2")
	run(s, &db, "set", "name_1", "alice")

	assert.Equal(t, MultiBulk([][]byte{[]byte("alice"), []byte("-1")}),
		run(s, &db, "sort", "ids", "GET", "name_*"))
}

func TestSortGetHashMarkReturnsElementItself(t *testing.T) {
	s := newTestStore(t)
	db := 0

	run(s, &db, "rpush", "ids", "2")
	run(s, &db, "rpush", "ids", "1")

	assert.Equal(t, MultiBulk([][]byte{[]byte("1"), []byte("2")}),
		run(s, &db, "sort", "ids", "GET", "#"))
}

func TestSaveHooksInvoked(t *testing.T) {
	s := newTestStore(t)
	db := 0
	saved := false
	s.Hooks.Save = func() error {
		saved = true
		return nil
	}
	assert.Equal(t, okReply, run(s, &db, "save"))
	assert.True(t, saved)
}

func TestBgsaveRefusesWhileInProgress(t *testing.T) {
	s := newTestStore(t)
	db := 0
	s.BGSaveInProgress = true
	reply := run(s, &db, "bgsave")
	assert.Contains(t, string(reply), "already in progress")
}
