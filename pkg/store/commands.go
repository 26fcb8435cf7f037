package store

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/memkv/memkv/pkg/object"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// alphaCollator backs SORT's ALPHA option with the platform's locale-aware
// string collation spec.md §4.5 calls for, rather than a byte-wise
// strings.Compare.
var alphaCollator = collate.New(language.Und)

// Handler runs one command against s, using *dbIndex as the client's
// currently selected database (SELECT/MOVE mutate it), and returns the
// framed reply to enqueue.
type Handler func(s *Store, dbIndex *int, args [][]byte) Reply

// Command is one entry of the dispatch table, grounded on redisCommand
// / redisCommandTable in redis.c.
type Command struct {
	Name string
	// Arity > 0 means the argument vector (including the command name
	// itself) must have exactly this many tokens; Arity < 0 means at
	// least -Arity tokens.
	Arity int
	// Bulk marks commands whose final argument is read via the bulk
	// framing (a declared length followed by raw bytes) rather than as
	// a plain inline token — the protocol layer consults this.
	Bulk bool
	// BulkReply marks commands whose successful reply is itself bulk-
	// framed (GET, LPOP, RPOP, LINDEX). wrongTypeReply and nilFor consult
	// this to pick the bulk- or inline-framed sentinel, per spec.md §7's
	// "distinct sentinels for inline vs. bulk reply shapes."
	BulkReply bool
	Handler   Handler
}

// wrongTypeReply returns the wrong-type sentinel matching the invoking
// command's declared reply shape.
func wrongTypeReply(args [][]byte) Reply {
	if cmd, ok := Commands[strings.ToLower(string(args[0]))]; ok && cmd.BulkReply {
		return bulkWrongTypeErr
	}
	return wrongTypeErr
}

// nilFor returns the miss sentinel matching the invoking command's
// declared reply shape.
func nilFor(args [][]byte) Reply {
	if cmd, ok := Commands[strings.ToLower(string(args[0]))]; ok && cmd.BulkReply {
		return bulkNilReply
	}
	return nilReply
}

// Commands is the full dispatch table, keyed by lowercased name. SYNC
// and SHUTDOWN are not in it: pkg/server registers them in each
// pkg/protocol client's Special map (SYNC runs through pkg/replication)
// because they require control over the raw
// connection and process lifecycle that a pure Handler can't express.
var Commands = map[string]*Command{}

func register(c *Command) {
	Commands[c.Name] = c
}

func init() {
	register(&Command{Name: "ping", Arity: 1, Handler: pingCmd})
	register(&Command{Name: "echo", Arity: 2, Bulk: true, Handler: echoCmd})

	register(&Command{Name: "set", Arity: 3, Bulk: true, Handler: setCmd})
	register(&Command{Name: "setnx", Arity: 3, Bulk: true, Handler: setnxCmd})
	register(&Command{Name: "get", Arity: 2, BulkReply: true, Handler: getCmd})
	register(&Command{Name: "del", Arity: 2, Handler: delCmd})
	register(&Command{Name: "exists", Arity: 2, Handler: existsCmd})
	register(&Command{Name: "incr", Arity: 2, Handler: incrCmd})
	register(&Command{Name: "decr", Arity: 2, Handler: decrCmd})
	register(&Command{Name: "incrby", Arity: 3, Handler: incrByCmd})
	register(&Command{Name: "decrby", Arity: 3, Handler: decrByCmd})

	register(&Command{Name: "keys", Arity: 2, Handler: keysCmd})
	register(&Command{Name: "randomkey", Arity: 1, Handler: randomKeyCmd})
	register(&Command{Name: "dbsize", Arity: 1, Handler: dbsizeCmd})
	register(&Command{Name: "type", Arity: 2, Handler: typeCmd})
	register(&Command{Name: "select", Arity: 2, Handler: selectCmd})
	register(&Command{Name: "move", Arity: 3, Handler: moveCmd})
	register(&Command{Name: "rename", Arity: 3, Handler: renameCmd})
	register(&Command{Name: "renamenx", Arity: 3, Handler: renameNXCmd})

	register(&Command{Name: "lpush", Arity: 3, Bulk: true, Handler: lpushCmd})
	register(&Command{Name: "rpush", Arity: 3, Bulk: true, Handler: rpushCmd})
	register(&Command{Name: "lpop", Arity: 2, BulkReply: true, Handler: lpopCmd})
	register(&Command{Name: "rpop", Arity: 2, BulkReply: true, Handler: rpopCmd})
	register(&Command{Name: "llen", Arity: 2, Handler: llenCmd})
	register(&Command{Name: "lindex", Arity: 3, BulkReply: true, Handler: lindexCmd})
	register(&Command{Name: "lset", Arity: 4, Bulk: true, Handler: lsetCmd})
	register(&Command{Name: "lrange", Arity: 4, Handler: lrangeCmd})
	register(&Command{Name: "ltrim", Arity: 4, Handler: ltrimCmd})
	register(&Command{Name: "lrem", Arity: 4, Bulk: true, Handler: lremCmd})

	register(&Command{Name: "sadd", Arity: 3, Bulk: true, Handler: saddCmd})
	register(&Command{Name: "srem", Arity: 3, Bulk: true, Handler: sremCmd})
	register(&Command{Name: "sismember", Arity: 3, Bulk: true, Handler: sismemberCmd})
	register(&Command{Name: "scard", Arity: 2, Handler: scardCmd})
	register(&Command{Name: "sinter", Arity: -2, Handler: sinterCmd})
	register(&Command{Name: "sinterstore", Arity: -3, Handler: sinterStoreCmd})

	register(&Command{Name: "save", Arity: 1, Handler: saveCmd})
	register(&Command{Name: "bgsave", Arity: 1, Handler: bgsaveCmd})
	register(&Command{Name: "lastsave", Arity: 1, Handler: lastsaveCmd})
	register(&Command{Name: "flushdb", Arity: 1, Handler: flushdbCmd})
	register(&Command{Name: "flushall", Arity: 1, Handler: flushallCmd})

	register(&Command{Name: "sort", Arity: -2, Handler: sortCmd})
	register(&Command{Name: "info", Arity: 1, Handler: infoCmd})
}

func pingCmd(s *Store, dbIndex *int, args [][]byte) Reply { return pongReply }

func echoCmd(s *Store, dbIndex *int, args [][]byte) Reply { return Bulk(args[1]) }

func currentDB(s *Store, dbIndex *int) *DB { return s.db(*dbIndex) }

func setGeneric(s *Store, dbIndex *int, args [][]byte, nx bool) Reply {
	db := currentDB(s, dbIndex)
	key := string(args[1])
	if _, ok := db.Dict.Find(key); ok && nx {
		return zeroReply
	}
	obj := s.Freelist.NewString(args[2])
	// Replace releases any previous value through the table's destructor.
	db.Dict.Replace(key, obj)
	s.Dirty++
	if nx {
		return oneReply
	}
	return okReply
}

func setCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return setGeneric(s, dbIndex, args, false)
}

func setnxCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return setGeneric(s, dbIndex, args, true)
}

func getCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return nilFor(args)
	}
	obj := v.(*object.Object)
	if obj.Type != object.String {
		return wrongTypeReply(args)
	}
	return Bulk(obj.Bytes())
}

func delCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	if db.Dict.Delete(string(args[1])) {
		s.Dirty++
		return oneReply
	}
	return zeroReply
}

func existsCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	if db.Dict.Exists(string(args[1])) {
		return oneReply
	}
	return zeroReply
}

// currentIntValue parses the STRING at key as a signed decimal,
// yielding 0 for an absent key or a non-STRING value — see DESIGN.md's
// Open Question decision: the source resets rather than errors here,
// and this implementation follows the observed behavior.
func currentIntValue(db *DB, key string) int64 {
	v, ok := db.Dict.Find(key)
	if !ok {
		return 0
	}
	obj := v.(*object.Object)
	if obj.Type != object.String {
		return 0
	}
	n, err := strconv.ParseInt(string(obj.Bytes()), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func incrDecr(s *Store, dbIndex *int, key string, delta int64) Reply {
	db := currentDB(s, dbIndex)
	value := currentIntValue(db, key) + delta
	obj := s.Freelist.NewString([]byte(strconv.FormatInt(value, 10)))
	// Replace releases any previous value through the table's destructor.
	db.Dict.Replace(key, obj)
	s.Dirty++
	return Int(value)
}

func incrCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return incrDecr(s, dbIndex, string(args[1]), 1)
}

func decrCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return incrDecr(s, dbIndex, string(args[1]), -1)
}

func incrByCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	n, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return Err("value is not an integer")
	}
	return incrDecr(s, dbIndex, string(args[1]), n)
}

func decrByCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	n, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return Err("value is not an integer")
	}
	return incrDecr(s, dbIndex, string(args[1]), -n)
}

func keysCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	pattern := string(args[1])
	var matches [][]byte
	it := db.Dict.NewIterator()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		if pattern == "*" || globMatch(pattern, k) {
			matches = append(matches, []byte(k))
		}
	}
	return MultiBulk(matches)
}

func randomKeyCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	k, ok := db.Dict.RandomKey()
	if !ok {
		return Line(nil)
	}
	return Line([]byte(k))
}

func dbsizeCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	return Int(int64(db.Dict.Len()))
}

func typeCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return Line([]byte("none"))
	}
	return Line([]byte(v.(*object.Object).Type.String()))
}

func selectCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	n, err := strconv.Atoi(string(args[1]))
	if err != nil || n < 0 || n >= len(s.DBs) {
		return Err("invalid DB index")
	}
	*dbIndex = n
	return okReply
}

func moveCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	destIdx, err := strconv.Atoi(string(args[2]))
	if err != nil || destIdx < 0 || destIdx >= len(s.DBs) {
		return minusFour
	}
	if destIdx == *dbIndex {
		return minusThree
	}
	src := currentDB(s, dbIndex)
	dest := s.db(destIdx)
	key := string(args[1])
	v, ok := src.Dict.Find(key)
	if !ok {
		return zeroReply
	}
	if dest.Dict.Exists(key) {
		return zeroReply
	}
	dest.Dict.Add(key, v)
	src.Dict.DeleteNoFree(key)
	s.Dirty++
	return oneReply
}

func renameGeneric(s *Store, dbIndex *int, args [][]byte, nx bool) Reply {
	db := currentDB(s, dbIndex)
	src, dst := string(args[1]), string(args[2])
	if src == dst {
		if nx {
			return minusThree
		}
		return Err("source and destination objects are the same")
	}
	v, ok := db.Dict.Find(src)
	if !ok {
		if nx {
			return minusOne
		}
		return Err("no such key")
	}
	if nx && db.Dict.Exists(dst) {
		return zeroReply
	}
	db.Dict.Replace(dst, v)
	db.Dict.DeleteNoFree(src)
	s.Dirty++
	if nx {
		return oneReply
	}
	return okReply
}

func renameCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return renameGeneric(s, dbIndex, args, false)
}

func renameNXCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return renameGeneric(s, dbIndex, args, true)
}

func pushGeneric(s *Store, dbIndex *int, args [][]byte, head bool) Reply {
	db := currentDB(s, dbIndex)
	key := string(args[1])
	v, ok := db.Dict.Find(key)
	var obj *object.Object
	if ok {
		obj = v.(*object.Object)
		if obj.Type != object.List {
			return wrongTypeErr
		}
	} else {
		obj = s.Freelist.NewList()
		db.Dict.Add(key, obj)
	}
	elem := s.Freelist.NewString(args[2])
	if head {
		obj.List().PushFront(elem)
	} else {
		obj.List().PushBack(elem)
	}
	s.Dirty++
	return okReply
}

func lpushCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return pushGeneric(s, dbIndex, args, true)
}

func rpushCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return pushGeneric(s, dbIndex, args, false)
}

func popGeneric(s *Store, dbIndex *int, args [][]byte, head bool) Reply {
	db := currentDB(s, dbIndex)
	key := string(args[1])
	v, ok := db.Dict.Find(key)
	if !ok {
		return nilFor(args)
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeReply(args)
	}
	var elem interface{}
	if head {
		elem, ok = obj.List().PopFront()
	} else {
		elem, ok = obj.List().PopBack()
	}
	if !ok {
		return nilFor(args)
	}
	s.Dirty++
	str := elem.(*object.Object)
	reply := Bulk(str.Bytes())
	str.Release()
	return reply
}

func lpopCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return popGeneric(s, dbIndex, args, true)
}

func rpopCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return popGeneric(s, dbIndex, args, false)
}

func llenCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return zeroReply
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeErr
	}
	return Int(int64(obj.List().Len()))
}

func lindexCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return nilFor(args)
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeReply(args)
	}
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Err("value is not an integer")
	}
	n := obj.List().Index(idx)
	if n == nil {
		return nilFor(args)
	}
	return Bulk(n.Value.(*object.Object).Bytes())
}

func lsetCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return Err("no such key")
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeErr
	}
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Err("value is not an integer")
	}
	n := obj.List().Index(idx)
	if n == nil {
		return Err("index out of range")
	}
	old := n.Value.(*object.Object)
	old.Release()
	n.Value = s.Freelist.NewString(args[3])
	s.Dirty++
	return okReply
}

// listRange normalizes negative indices the way LINDEX/LRANGE/LTRIM
// do and clamps to [0, len-1].
func listRange(length, start, end int) (int, int) {
	if start < 0 {
		start = length + start
	}
	if end < 0 {
		end = length + end
	}
	if start < 0 {
		start = 0
	}
	if end >= length {
		end = length - 1
	}
	return start, end
}

func lrangeCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return MultiBulk(nil)
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeErr
	}
	start, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Err("value is not an integer")
	}
	end, err := strconv.Atoi(string(args[3]))
	if err != nil {
		return Err("value is not an integer")
	}
	values := obj.List().Values()
	start, end = listRange(len(values), start, end)
	if start > end || start >= len(values) {
		return MultiBulk(nil)
	}
	out := make([][]byte, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, values[i].(*object.Object).Bytes())
	}
	return MultiBulk(out)
}

func ltrimCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return okReply
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeErr
	}
	start, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Err("value is not an integer")
	}
	end, err := strconv.Atoi(string(args[3]))
	if err != nil {
		return Err("value is not an integer")
	}
	start, end = listRange(obj.List().Len(), start, end)
	obj.List().Trim(start, end)
	s.Dirty++
	return okReply
}

func lremCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return zeroReply
	}
	obj := v.(*object.Object)
	if obj.Type != object.List {
		return wrongTypeErr
	}
	n, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Err("value is not an integer")
	}
	target := args[3]
	l := obj.List()
	removed := 0

	limit := n
	if limit <= 0 {
		limit = l.Len()
	}
	if n >= 0 {
		for cur := l.Front(); cur != nil && removed < limit; {
			next := cur.Next()
			if string(cur.Value.(*object.Object).Bytes()) == string(target) {
				l.Remove(cur)
				removed++
			}
			cur = next
		}
	} else {
		for cur := l.Back(); cur != nil && removed < limit; {
			prev := cur.Prev()
			if string(cur.Value.(*object.Object).Bytes()) == string(target) {
				l.Remove(cur)
				removed++
			}
			cur = prev
		}
	}
	if removed > 0 {
		s.Dirty++
	}
	return Int(int64(removed))
}

func saddCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	key := string(args[1])
	v, ok := db.Dict.Find(key)
	var obj *object.Object
	if ok {
		obj = v.(*object.Object)
		if obj.Type != object.Set {
			return wrongTypeErr
		}
	} else {
		obj = s.Freelist.NewSet()
		db.Dict.Add(key, obj)
	}
	member := string(args[2])
	if obj.Set().Exists(member) {
		return zeroReply
	}
	obj.Set().Add(member, struct{}{})
	s.Dirty++
	return oneReply
}

func sremCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return zeroReply
	}
	obj := v.(*object.Object)
	if obj.Type != object.Set {
		return wrongTypeErr
	}
	if obj.Set().Delete(string(args[2])) {
		s.Dirty++
		return oneReply
	}
	return zeroReply
}

func sismemberCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return zeroReply
	}
	obj := v.(*object.Object)
	if obj.Type != object.Set {
		return wrongTypeErr
	}
	if obj.Set().Exists(string(args[2])) {
		return oneReply
	}
	return zeroReply
}

func scardCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return zeroReply
	}
	obj := v.(*object.Object)
	if obj.Type != object.Set {
		return wrongTypeErr
	}
	return Int(int64(obj.Set().Len()))
}

// sinterKeys intersects the sets named by keys, matching sinterCommand's
// policy of sorting by cardinality ascending and walking the smallest
// set first. A missing key means an empty intersection, not an error.
func sinterKeys(db *DB, keys [][]byte) ([]string, Reply) {
	type withSize struct {
		obj  *object.Object
		size int
	}
	sets := make([]withSize, 0, len(keys))
	for _, k := range keys {
		v, ok := db.Dict.Find(string(k))
		if !ok {
			return nil, nil
		}
		obj := v.(*object.Object)
		if obj.Type != object.Set {
			return nil, wrongTypeErr
		}
		sets = append(sets, withSize{obj, obj.Set().Len()})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].size < sets[j].size })

	var result []string
	for _, member := range sets[0].obj.Set().Keys() {
		inAll := true
		for _, other := range sets[1:] {
			if !other.obj.Set().Exists(member) {
				inAll = false
				break
			}
		}
		if inAll {
			result = append(result, member)
		}
	}
	return result, nil
}

func sinterCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	members, errReply := sinterKeys(db, args[1:])
	if errReply != nil {
		return errReply
	}
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return MultiBulk(out)
}

func sinterStoreCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	members, errReply := sinterKeys(db, args[2:])
	if errReply != nil {
		return errReply
	}
	dest := s.Freelist.NewSet()
	for _, m := range members {
		dest.Set().Add(m, struct{}{})
	}
	destKey := string(args[1])
	// Replace releases any previous value through the table's destructor.
	db.Dict.Replace(destKey, dest)
	s.Dirty++
	return Int(int64(len(members)))
}

func saveCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	if s.Hooks.Save == nil {
		return okReply
	}
	if err := s.Hooks.Save(); err != nil {
		return Err(err.Error())
	}
	return okReply
}

func bgsaveCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	if s.BGSaveInProgress {
		return Err("background save already in progress")
	}
	if s.Hooks.BGSave == nil {
		return okReply
	}
	if err := s.Hooks.BGSave(); err != nil {
		return Err(err.Error())
	}
	return okReply
}

func lastsaveCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	return Int(s.LastSave.Unix())
}

func flushdbCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	s.FlushDB(*dbIndex)
	if s.Hooks.Save != nil {
		_ = s.Hooks.Save()
	}
	return okReply
}

func flushallCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	s.FlushAll()
	if s.Hooks.Save != nil {
		_ = s.Hooks.Save()
	}
	return okReply
}

// substitutePattern implements SORT's BY/GET pattern substitution: the
// first '*' in pattern is replaced by elem, the result looked up as a key
// in the current DB. A bare "#" pattern (no substitution) refers to the
// element itself rather than a lookup.
func substitutePattern(pattern, elem string) string {
	if idx := strings.IndexByte(pattern, '*'); idx >= 0 {
		return pattern[:idx] + elem + pattern[idx+1:]
	}
	return pattern
}

// patternLookup resolves a BY/GET pattern against elem, returning the
// STRING value found (or elem itself for "#") and whether anything was
// found at all.
func patternLookup(db *DB, pattern, elem string) (string, bool) {
	if pattern == "#" {
		return elem, true
	}
	v, ok := db.Dict.Find(substitutePattern(pattern, elem))
	if !ok {
		return "", false
	}
	obj, ok := v.(*object.Object)
	if !ok || obj.Type != object.String {
		return "", false
	}
	return string(obj.Bytes()), true
}

// sortCmd implements SORT over a LIST or SET's elements: ASC/DESC
// ordering (numeric by default, lexical under ALPHA using locale-aware
// collation), BY-pattern weight substitution (a pattern with no '*'
// disables sorting entirely, matching sortCommand's dontsort
// optimization — every element would compare equal), GET-pattern
// projection (missing lookups emit the "-1" marker), and LIMIT
// pagination. Grounded on spec.md §4.5's description directly:
// sortCommand itself is only forward-declared in
// original_source/redis/src/redis.c, never implemented there.
func sortCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	db := currentDB(s, dbIndex)
	v, ok := db.Dict.Find(string(args[1]))
	if !ok {
		return MultiBulk(nil)
	}
	obj := v.(*object.Object)

	var raw []interface{}
	switch obj.Type {
	case object.List:
		raw = obj.List().Values()
	case object.Set:
		for _, k := range obj.Set().Keys() {
			raw = append(raw, []byte(k))
		}
	default:
		return wrongTypeErr
	}

	values := make([]string, len(raw))
	for i, rv := range raw {
		switch t := rv.(type) {
		case *object.Object:
			values[i] = string(t.Bytes())
		case []byte:
			values[i] = string(t)
		}
	}

	alpha := false
	desc := false
	offset, count := 0, -1
	byPattern := ""
	var getPatterns []string
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "DESC":
			desc = true
		case "ASC":
			desc = false
		case "ALPHA":
			alpha = true
		case "LIMIT":
			if i+2 >= len(args) {
				return Err("syntax error")
			}
			o, err1 := strconv.Atoi(string(args[i+1]))
			c, err2 := strconv.Atoi(string(args[i+2]))
			if err1 != nil || err2 != nil {
				return Err("value is not an integer")
			}
			offset, count = o, c
			i += 2
		case "BY":
			if i+1 >= len(args) {
				return Err("syntax error")
			}
			byPattern = string(args[i+1])
			i++
		case "GET":
			if i+1 >= len(args) {
				return Err("syntax error")
			}
			getPatterns = append(getPatterns, string(args[i+1]))
			i++
		default:
			return Err("syntax error")
		}
	}

	// A BY pattern with no '*' gives every element the same weight, so
	// sortCommand's dontsort optimization skips comparing altogether and
	// keeps the original order.
	dontSort := byPattern != "" && byPattern != "#" && !strings.Contains(byPattern, "*")

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}

	if !dontSort {
		weight := values
		if byPattern != "" {
			weight = make([]string, len(values))
			for i, elem := range values {
				w, found := patternLookup(db, byPattern, elem)
				if found {
					weight[i] = w
				}
			}
		}

		if alpha {
			sort.SliceStable(order, func(i, j int) bool {
				c := alphaCollator.CompareString(weight[order[i]], weight[order[j]])
				if desc {
					return c > 0
				}
				return c < 0
			})
		} else {
			nums := make([]float64, len(weight))
			for i, w := range weight {
				// Unparsable weights (including ones a missing BY
				// lookup left empty) get a nil weight: spec.md §4.5
				// says elements that don't parse as a double get a nil
				// weight rather than aborting the sort, so they're
				// treated as weighing zero.
				n, err := strconv.ParseFloat(w, 64)
				if err == nil {
					nums[i] = n
				}
			}
			sort.SliceStable(order, func(i, j int) bool {
				if desc {
					return nums[order[i]] > nums[order[j]]
				}
				return nums[order[i]] < nums[order[j]]
			})
		}
	}

	if offset < 0 {
		offset = 0
	}
	if offset > len(order) {
		offset = len(order)
	}
	end := len(order)
	if count >= 0 && offset+count < end {
		end = offset + count
	}
	selected := order[offset:end]

	if len(getPatterns) == 0 {
		out := make([][]byte, 0, len(selected))
		for _, idx := range selected {
			out = append(out, []byte(values[idx]))
		}
		return MultiBulk(out)
	}

	out := make([][]byte, 0, len(selected)*len(getPatterns))
	for _, idx := range selected {
		for _, pattern := range getPatterns {
			if g, found := patternLookup(db, pattern, values[idx]); found {
				out = append(out, []byte(g))
			} else {
				out = append(out, []byte("-1"))
			}
		}
	}
	return MultiBulk(out)
}

// infoCmd reports server stats the way infoCommand builds its
// "field:value\r\n"-per-line payload.
func infoCmd(s *Store, dbIndex *int, args [][]byte) Reply {
	uptime := int64(0)
	if !s.StartedAt.IsZero() {
		uptime = int64(time.Since(s.StartedAt).Seconds())
	}
	lines := []string{
		"memkv_version:1.0.0",
		"uptime_in_seconds:" + strconv.FormatInt(uptime, 10),
		"total_connections_received:" + strconv.FormatInt(s.NumConnections, 10),
		"total_commands_processed:" + strconv.FormatInt(s.NumCommands, 10),
		"changes_since_last_save:" + strconv.FormatInt(s.Dirty, 10),
		"bgsave_in_progress:" + boolToDigit(s.BGSaveInProgress),
		"last_save_time:" + strconv.FormatInt(s.LastSave.Unix(), 10),
		"used_memory:" + strconv.FormatInt(s.Alloc.Used(), 10),
	}
	for i, db := range s.DBs {
		if db.Dict.Len() == 0 {
			continue
		}
		lines = append(lines, "db"+strconv.Itoa(i)+":keys="+strconv.Itoa(db.Dict.Len()))
	}
	body := ""
	for _, l := range lines {
		body += l + "\r\n"
	}
	return Bulk([]byte(body))
}

func boolToDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
