// Package object implements the reference-counted value objects stored
// under every key: strings, lists, and sets. It mirrors robj from
// original_source/redis/src/redis.c — a small tagged union with a
// refcount, plus a bounded freelist so steady-state traffic at a fixed
// key count doesn't keep pressuring the allocator.
package object

import (
	"github.com/memkv/memkv/pkg/alloc"
	"github.com/memkv/memkv/pkg/dict"
	"github.com/memkv/memkv/pkg/list"
)

// Type tags the payload held in Object.Value.
type Type int

const (
	String Type = iota
	List
	Set
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case List:
		return "list"
	case Set:
		return "set"
	default:
		return "unknown"
	}
}

// Object is a reference-counted container for a string, list, or set
// value. Callers must pair every reference they keep with IncrRef/Put
// the way robj callers paired incrRefCount/decrRefCount.
type Object struct {
	Type     Type
	Value    interface{}
	refcount int
}

// freelistCap bounds the freelist the way REDIS_OBJFREELIST_MAX does,
// so a freed burst of objects doesn't hold unbounded memory.
const freelistCap = 1024

// Freelist recycles Object shells to avoid allocating a fresh struct
// and its refcount bookkeeping on every SET/LPUSH/SADD. Unlike the C
// original this buys little since the Go GC already pools small
// objects, but it keeps createObject's shape intact for BGSAVE/SYNC
// code that was written against "get an object, release an object."
type Freelist struct {
	free []*Object
}

// Global is the process-wide freelist used when callers don't need an
// isolated one (tests construct their own to avoid cross-test reuse).
var Global = &Freelist{}

func (f *Freelist) get() *Object {
	if n := len(f.free); n > 0 {
		o := f.free[n-1]
		f.free = f.free[:n-1]
		return o
	}
	return &Object{}
}

func (f *Freelist) put(o *Object) {
	if len(f.free) >= freelistCap {
		return
	}
	o.Value = nil
	f.free = append(f.free, o)
}

// NewString creates a refcount-1 STRING object wrapping b.
func (f *Freelist) NewString(b []byte) *Object {
	o := f.get()
	o.Type = String
	o.Value = b
	o.refcount = 1
	alloc.Global.Alloc(len(b))
	return o
}

// NewList creates a refcount-1 LIST object with an empty backing list.
// Elements are themselves *Object strings; removing a list node drops
// that element's reference, mirroring listSetFreeMethod(list,
// decrRefCount) in createListObject.
func (f *Freelist) NewList() *Object {
	o := f.get()
	o.Type = List
	o.Value = list.New(func(v interface{}) {
		v.(*Object).Release()
	})
	o.refcount = 1
	return o
}

// NewSet creates a refcount-1 SET object with an empty backing dict.
// Members are stored as dict keys; the dict's values are unused.
func (f *Freelist) NewSet() *Object {
	o := f.get()
	o.Type = Set
	o.Value = dict.New(nil)
	o.refcount = 1
	return o
}

// IncrRef bumps the reference count, matching incrRefCount.
func (o *Object) IncrRef() *Object {
	o.refcount++
	return o
}

// Release drops the reference count, freeing the payload and returning
// the shell to the global freelist once it reaches zero — matching
// decrRefCount.
func (o *Object) Release() {
	o.refcount--
	if o.refcount > 0 {
		return
	}
	switch o.Type {
	case String:
		if b, ok := o.Value.([]byte); ok {
			alloc.Global.Free(len(b))
		}
	case List:
		o.Value.(*list.List).Clear()
	case Set:
		o.Value.(*dict.Dict).Clear()
	}
	Global.put(o)
}

// RefCount reports the current reference count, for tests and INFO.
func (o *Object) RefCount() int { return o.refcount }

// Bytes returns the STRING payload. Panics if o is not a STRING, the
// caller is expected to have already checked Type (WRONGTYPE replies
// are generated by the store layer before this is reached).
func (o *Object) Bytes() []byte {
	return o.Value.([]byte)
}

// List returns the LIST payload.
func (o *Object) List() *list.List {
	return o.Value.(*list.List)
}

// Set returns the SET payload.
func (o *Object) Set() *dict.Dict {
	return o.Value.(*dict.Dict)
}
