package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStringHasRefCountOne(t *testing.T) {
	f := &Freelist{}
	o := f.NewString([]byte("hello"))
	assert.Equal(t, String, o.Type)
	assert.Equal(t, 1, o.RefCount())
	assert.Equal(t, []byte("hello"), o.Bytes())
}

func TestIncrRefAndReleaseBalance(t *testing.T) {
	f := &Freelist{}
	o := f.NewString([]byte("v"))
	o.IncrRef()
	assert.Equal(t, 2, o.RefCount())

	o.Release()
	assert.Equal(t, 1, o.RefCount())
}

func TestReleaseRecyclesShellIntoFreelist(t *testing.T) {
	f := &Freelist{}
	o := f.NewString([]byte("v"))
	o.Release()
	// Release returns the shell to the process-wide Global freelist, not
	// to the Freelist that created it.
	assert.Empty(t, f.free)
	assert.Contains(t, Global.free, o)

	o2 := f.get()
	assert.NotNil(t, o2)
}

func TestListObjectReleaseDropsElementReferences(t *testing.T) {
	f := &Freelist{}
	outer := f.NewList()
	elem := f.NewString([]byte("x"))
	elem.IncrRef()
	outer.List().PushBack(elem)

	outer.Release()
	assert.Equal(t, 1, elem.RefCount())
}

func TestSetObjectHoldsMembersAsDictKeys(t *testing.T) {
	f := &Freelist{}
	s := f.NewSet()
	s.Set().Add("member", struct{}{})
	assert.True(t, s.Set().Exists("member"))
}
