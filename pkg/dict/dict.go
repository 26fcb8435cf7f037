// Package dict implements the hash table that backs every database and
// every SET value in the server. It is an open-chained table that
// doubles in size when full and shrinks back down through Resize, the
// same growth policy as original_source/redis/src/dict.c.
//
// Unlike the C original, keys are always strings here — the server
// never hashes anything else — so there is no per-instance key vtable.
// A ValueDestructor is still pluggable because stored values differ by
// caller (object.Object pointers in the database tables, struct{}{} in
// set members).
package dict

import "math/rand"

const initialSize = 16

// ValueDestructor is invoked on the value of an entry removed by Delete,
// mirroring dictType's valDestructor in dict.c. It may be nil.
type ValueDestructor func(value interface{})

type entry struct {
	key   string
	value interface{}
	next  *entry
}

// Dict is an open-chained hash table keyed by string.
type Dict struct {
	table   []*entry
	used    int
	destroy ValueDestructor
}

// New creates an empty table. destroy, if non-nil, runs on a value when
// its entry is removed by Delete or Clear.
func New(destroy ValueDestructor) *Dict {
	return &Dict{destroy: destroy}
}

// Len reports the number of entries.
func (d *Dict) Len() int {
	return d.used
}

// Capacity reports the number of slots currently allocated, used by the
// cron's fill-ratio shrink check.
func (d *Dict) Capacity() int {
	return len(d.table)
}

func hash(key string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(key); i++ {
		h = ((h << 5) + h) + uint32(key[i])
	}
	return h
}

func nextPower(size int) int {
	i := initialSize
	for i < size {
		i *= 2
	}
	return i
}

func (d *Dict) slot(key string) int {
	return int(hash(key)) & (len(d.table) - 1)
}

func (d *Dict) expandIfNeeded() {
	if len(d.table) == 0 {
		d.expand(initialSize)
		return
	}
	if d.used == len(d.table) {
		d.expand(len(d.table) * 2)
	}
}

// expand grows (or creates) the table to the smallest power of two
// holding size slots, rehashing every existing entry in place. Matches
// dictExpand's head-insertion rehash in dict.c.
func (d *Dict) expand(size int) {
	realSize := nextPower(size)
	newTable := make([]*entry, realSize)
	mask := realSize - 1
	for _, head := range d.table {
		for e := head; e != nil; {
			next := e.next
			idx := int(hash(e.key)) & mask
			e.next = newTable[idx]
			newTable[idx] = e
			e = next
		}
	}
	d.table = newTable
}

// Resize shrinks or grows the table to the smallest power of two that
// still holds every current entry, floored at the initial size. Called
// from the cron the way serverCron calls dictResize's callers.
func (d *Dict) Resize() {
	minimal := d.used
	if minimal < initialSize {
		minimal = initialSize
	}
	d.expand(minimal)
}

// Find returns the value stored for key, if any.
func (d *Dict) Find(key string) (interface{}, bool) {
	if len(d.table) == 0 {
		return nil, false
	}
	for e := d.table[d.slot(key)]; e != nil; e = e.next {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// Exists reports whether key is present.
func (d *Dict) Exists(key string) bool {
	_, ok := d.Find(key)
	return ok
}

// Add inserts key/value, failing if key is already present (matches
// dictAdd's DICT_ERR-on-duplicate contract).
func (d *Dict) Add(key string, value interface{}) bool {
	d.expandIfNeeded()
	idx := d.slot(key)
	for e := d.table[idx]; e != nil; e = e.next {
		if e.key == key {
			return false
		}
	}
	e := &entry{key: key, value: value, next: d.table[idx]}
	d.table[idx] = e
	d.used++
	return true
}

// Replace inserts key/value, overwriting and destroying any previous
// value for key. Always succeeds, matching dictReplace.
func (d *Dict) Replace(key string, value interface{}) {
	if d.Add(key, value) {
		return
	}
	idx := d.slot(key)
	for e := d.table[idx]; e != nil; e = e.next {
		if e.key == key {
			if d.destroy != nil {
				d.destroy(e.value)
			}
			e.value = value
			return
		}
	}
}

// Delete removes key, running the value destructor if one is
// configured. Reports whether key was present.
func (d *Dict) Delete(key string) bool {
	return d.genericDelete(key, true)
}

// DeleteNoFree removes key without invoking the value destructor, the
// Go analogue of dictDeleteNoFree — used when the caller is about to
// take ownership of the value itself (e.g. RENAME moving an object
// from one key to another without tearing it down).
func (d *Dict) DeleteNoFree(key string) bool {
	return d.genericDelete(key, false)
}

func (d *Dict) genericDelete(key string, free bool) bool {
	if len(d.table) == 0 {
		return false
	}
	idx := d.slot(key)
	var prev *entry
	for e := d.table[idx]; e != nil; e = e.next {
		if e.key == key {
			if prev != nil {
				prev.next = e.next
			} else {
				d.table[idx] = e.next
			}
			if free && d.destroy != nil {
				d.destroy(e.value)
			}
			d.used--
			return true
		}
		prev = e
	}
	return false
}

// Clear removes every entry, running the value destructor on each.
func (d *Dict) Clear() {
	if d.destroy != nil {
		for _, head := range d.table {
			for e := head; e != nil; e = e.next {
				d.destroy(e.value)
			}
		}
	}
	d.table = nil
	d.used = 0
}

// RandomKey returns a uniformly random key, or ok=false if the table is
// empty. Implemented as reject-sample-a-slot then walk-to-a-random-
// offset, exactly as dictGetRandomKey does it.
func (d *Dict) RandomKey() (string, bool) {
	if d.used == 0 {
		return "", false
	}
	var e *entry
	for e == nil {
		slot := rand.Intn(len(d.table))
		e = d.table[slot]
	}
	length := 0
	for w := e; w != nil; w = w.next {
		length++
	}
	skip := rand.Intn(length)
	for skip > 0 {
		e = e.next
		skip--
	}
	return e.key, true
}

// Keys returns every key in the table. The order is unspecified.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, d.used)
	for _, head := range d.table {
		for e := head; e != nil; e = e.next {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Iterator walks every entry. It tolerates the caller deleting the
// entry just returned by Next before calling Next again, because the
// successor is captured ahead of time — the same safety dictIterator
// gives callers in dict.c.
type Iterator struct {
	d     *Dict
	index int
	next  *entry
}

// NewIterator returns an iterator positioned before the first entry.
func (d *Dict) NewIterator() *Iterator {
	return &Iterator{d: d, index: -1}
}

// Next advances the iterator, returning the next key/value pair, or
// ok=false once every entry has been visited.
func (it *Iterator) Next() (key string, value interface{}, ok bool) {
	for {
		if it.next == nil {
			it.index++
			if it.index >= len(it.d.table) {
				return "", nil, false
			}
			it.next = it.d.table[it.index]
			continue
		}
		e := it.next
		it.next = e.next
		return e.key, e.value, true
	}
}
