// Package cron implements the one-second periodic maintenance tick
// spec.md §4.8 describes, registered as a reactor time event. It is
// grounded on original_source/redis/src/redis.c's serverCron: the
// per-DB shrink check, the periodic client-count log line, the idle
// client sweep, and the save-policy/BGSAVE reaping sequence are all
// translated from that function's body.
package cron

import (
	"time"

	"github.com/memkv/memkv/pkg/log"
	"github.com/memkv/memkv/pkg/reactor"
	"github.com/memkv/memkv/pkg/store"
	"github.com/rs/zerolog"
)

// tickInterval is the reschedule delay serverCron always returns:
// "+1000ms" per spec.md §4.8.
const tickInterval = 1000

// shrinkFillRatio and shrinkFloor gate the per-DB shrink check: a table
// is resized down only once it is both large enough to be worth
// reclaiming and sparse enough that most of its capacity is wasted.
const (
	shrinkFillRatio = 0.10
	shrinkFloor     = 16384
)

// Hooks lets the server wire cron up to the parts of the system it
// doesn't own directly — the live client set and the replication
// handshake — without this package importing pkg/protocol or
// pkg/replication and risking an import cycle back into pkg/server.
type Hooks struct {
	// ClientCount reports the number of currently connected clients.
	ClientCount func() int
	// SweepIdleClients closes every client idle for longer than timeout
	// and reports how many were closed.
	SweepIdleClients func(timeout time.Duration) int
	// ReapBGSave is called when a background save is in progress; it
	// reports whether the save has finished and, if so, whether it
	// succeeded. When no save is running it should return false, false
	// immediately.
	ReapBGSave func() (done bool, success bool)
	// StartBGSave kicks off a background save.
	StartBGSave func() error
	// MustConnect reports whether this server is configured as a slave
	// currently waiting to (re)connect to its master.
	MustConnect func() bool
	// AttemptSlaveSync runs one connection attempt to the master.
	AttemptSlaveSync func() error
}

// Cron drives the periodic maintenance tick against one Store.
type Cron struct {
	Store       *store.Store
	IdleTimeout time.Duration
	Hooks       Hooks

	ticks int64
}

// New creates a Cron bound to s, sweeping clients idle for longer than
// idleTimeout.
func New(s *store.Store, idleTimeout time.Duration, hooks Hooks) *Cron {
	return &Cron{Store: s, IdleTimeout: idleTimeout, Hooks: hooks}
}

// Register installs the cron as a reactor time event, firing roughly
// every second starting immediately.
func (c *Cron) Register(loop *reactor.EventLoop) int64 {
	return loop.CreateTimeEvent(0, c.tick)
}

// tick is the reactor.TimeProc: it runs one maintenance pass and
// reschedules itself, matching serverCron's single return value always
// being the next delay in milliseconds.
func (c *Cron) tick(loop *reactor.EventLoop, id int64) int {
	c.ticks++
	logger := log.WithComponent("cron")

	c.shrinkOversizedTables()

	if c.ticks%5 == 0 && c.Hooks.ClientCount != nil {
		logger.Info().Int("clients", c.Hooks.ClientCount()).Msg("client count")
	}

	if c.ticks%10 == 0 && c.Hooks.SweepIdleClients != nil {
		closed := c.Hooks.SweepIdleClients(c.IdleTimeout)
		if closed > 0 {
			logger.Info().Int("closed", closed).Msg("swept idle clients")
		}
	}

	c.reapOrSave(logger)

	if c.Hooks.MustConnect != nil && c.Hooks.MustConnect() && c.Hooks.AttemptSlaveSync != nil {
		if err := c.Hooks.AttemptSlaveSync(); err != nil {
			logger.Warn().Err(err).Msg("slave sync attempt failed")
		}
	}

	return tickInterval
}

// shrinkOversizedTables resizes down any per-DB table whose fill ratio
// has dropped below shrinkFillRatio while its capacity still exceeds
// shrinkFloor, matching spec.md §4.8 step 2.
func (c *Cron) shrinkOversizedTables() {
	for _, db := range c.Store.DBs {
		capacity := db.Dict.Capacity()
		if capacity <= shrinkFloor {
			continue
		}
		fill := float64(db.Dict.Len()) / float64(capacity)
		if fill < shrinkFillRatio {
			db.Dict.Resize()
		}
	}
}

// reapOrSave reaps a running background save or, if none is running,
// checks whether the configured save policy is due and starts one,
// matching spec.md §4.8 step 5.
func (c *Cron) reapOrSave(logger zerolog.Logger) {
	if c.Store.BGSaveInProgress {
		if c.Hooks.ReapBGSave == nil {
			return
		}
		done, success := c.Hooks.ReapBGSave()
		if !done {
			return
		}
		c.Store.BGSaveInProgress = false
		if success {
			c.Store.Dirty = 0
			c.Store.LastSave = time.Now()
			logger.Info().Msg("background save finished")
		} else {
			logger.Warn().Msg("background save failed")
		}
		return
	}

	if !c.Store.DuePolicy(time.Now()) {
		return
	}
	if c.Hooks.StartBGSave == nil {
		return
	}
	if err := c.Hooks.StartBGSave(); err != nil {
		logger.Warn().Err(err).Msg("failed to start background save")
		return
	}
	c.Store.BGSaveInProgress = true
}
