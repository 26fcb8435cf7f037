package cron

import (
	"testing"
	"time"

	"github.com/memkv/memkv/pkg/config"
	"github.com/memkv/memkv/pkg/reactor"
	"github.com/memkv/memkv/pkg/store"
	"github.com/stretchr/testify/assert"
)

func TestTickReschedulesEverySecond(t *testing.T) {
	s := store.New(1, nil, nil)
	c := New(s, time.Minute, Hooks{})
	loop := reactor.New()
	delay := c.tick(loop, 0)
	assert.Equal(t, 1000, delay)
}

func TestTickSweepsIdleClientsEveryTenTicks(t *testing.T) {
	s := store.New(1, nil, nil)
	calls := 0
	c := New(s, time.Minute, Hooks{
		SweepIdleClients: func(timeout time.Duration) int {
			calls++
			return 0
		},
	})
	loop := reactor.New()
	for i := 0; i < 10; i++ {
		c.tick(loop, 0)
	}
	assert.Equal(t, 1, calls)
}

func TestTickLogsClientCountEveryFiveTicks(t *testing.T) {
	s := store.New(1, nil, nil)
	calls := 0
	c := New(s, time.Minute, Hooks{
		ClientCount: func() int {
			calls++
			return 3
		},
	})
	loop := reactor.New()
	for i := 0; i < 5; i++ {
		c.tick(loop, 0)
	}
	assert.Equal(t, 1, calls)
}

func TestTickStartsBGSaveWhenPolicyDue(t *testing.T) {
	s := store.New(1, nil, nil)
	s.SaveParams = []config.SavePolicy{{Seconds: 0, Changes: 1}}
	s.Dirty = 5
	s.LastSave = time.Now().Add(-time.Hour)
	started := false
	c := New(s, time.Minute, Hooks{
		StartBGSave: func() error { started = true; return nil },
	})
	loop := reactor.New()
	c.tick(loop, 0)
	assert.True(t, started)
	assert.True(t, s.BGSaveInProgress)
}

func TestTickDoesNotStartBGSaveWhenPolicyNotDue(t *testing.T) {
	s := store.New(1, nil, nil)
	s.SaveParams = []config.SavePolicy{{Seconds: 3600, Changes: 100}}
	s.Dirty = 1
	s.LastSave = time.Now()
	started := false
	c := New(s, time.Minute, Hooks{
		StartBGSave: func() error { started = true; return nil },
	})
	loop := reactor.New()
	c.tick(loop, 0)
	assert.False(t, started)
	assert.False(t, s.BGSaveInProgress)
}

func TestReapBGSaveLeavesDirtyUntouchedOnFailure(t *testing.T) {
	s := store.New(1, nil, nil)
	s.BGSaveInProgress = true
	s.Dirty = 7
	c := New(s, time.Minute, Hooks{
		ReapBGSave: func() (bool, bool) { return true, false },
	})
	loop := reactor.New()
	c.tick(loop, 0)
	assert.False(t, s.BGSaveInProgress)
	assert.EqualValues(t, 7, s.Dirty)
}

func TestShrinkOversizedTablesResizesOnlySparseLargeTables(t *testing.T) {
	s := store.New(1, nil, nil)
	db := s.DBAt(0)
	for i := 0; i < 20000; i++ {
		db.Dict.Add(string(rune(i)), i)
	}
	for i := 0; i < 19900; i++ {
		db.Dict.Delete(string(rune(i)))
	}
	before := db.Dict.Capacity()

	c := New(s, time.Minute, Hooks{})
	loop := reactor.New()
	c.tick(loop, 0)

	assert.LessOrEqual(t, db.Dict.Capacity(), before)
}

func TestReapBGSaveClearsInProgressFlag(t *testing.T) {
	s := store.New(1, nil, nil)
	s.BGSaveInProgress = true
	c := New(s, time.Minute, Hooks{
		ReapBGSave: func() (bool, bool) { return true, true },
	})
	loop := reactor.New()
	c.tick(loop, 0)
	assert.False(t, s.BGSaveInProgress)
	assert.EqualValues(t, 0, s.Dirty)
}

func TestAttemptSlaveSyncCalledWhenMustConnect(t *testing.T) {
	s := store.New(1, nil, nil)
	attempted := false
	c := New(s, time.Minute, Hooks{
		MustConnect:      func() bool { return true },
		AttemptSlaveSync: func() error { attempted = true; return nil },
	})
	loop := reactor.New()
	c.tick(loop, 0)
	assert.True(t, attempted)
}
