// Package store implements the multi-database key/value layer: an
// array of hash tables (pkg/dict) keyed by binary-safe strings and
// holding reference-counted value objects (pkg/object), plus the
// command table that original_source/redis/src/redis.c's
// redisCommandTable drives. It has no knowledge of sockets or the
// reactor — commands are pure functions of (Store, selected db index,
// argument vector).
package store

import (
	"time"

	"github.com/memkv/memkv/pkg/alloc"
	"github.com/memkv/memkv/pkg/config"
	"github.com/memkv/memkv/pkg/dict"
	"github.com/memkv/memkv/pkg/object"
)

// DB is one logical database: a key/value-object hash table.
type DB struct {
	Dict *dict.Dict
}

func newDB() *DB {
	return &DB{Dict: dict.New(func(v interface{}) { v.(*object.Object).Release() })}
}

// Hooks lets the server wire in persistence and process-lifecycle
// behavior without store depending on pkg/snapshot or pkg/replication.
type Hooks struct {
	// Save performs a synchronous snapshot write. SAVE, FLUSHDB and
	// FLUSHALL call it, and replication.HandleSync uses it when set; with
	// a nil Save, SAVE replies +OK without writing and the FLUSH commands
	// skip the save.
	Save func() error
	// BGSave starts (or refuses, if one is already running) a
	// background snapshot write.
	BGSave func() error
}

// Store is the whole in-memory dataset plus bookkeeping the save
// policy and INFO need.
type Store struct {
	DBs        []*DB
	Freelist   *object.Freelist
	Alloc      *alloc.Accountant
	SaveParams []config.SavePolicy

	Dirty            int64
	LastSave         time.Time
	BGSaveInProgress bool
	StartedAt        time.Time
	NumConnections   int64
	NumCommands      int64

	Hooks Hooks
}

// New creates a Store with n empty databases.
func New(n int, freelist *object.Freelist, accountant *alloc.Accountant) *Store {
	if freelist == nil {
		freelist = object.Global
	}
	if accountant == nil {
		accountant = alloc.Global
	}
	dbs := make([]*DB, n)
	for i := range dbs {
		dbs[i] = newDB()
	}
	return &Store{
		DBs:       dbs,
		Freelist:  freelist,
		Alloc:     accountant,
		StartedAt: time.Now(),
	}
}

// db returns database i, or nil if out of range.
func (s *Store) db(i int) *DB {
	if i < 0 || i >= len(s.DBs) {
		return nil
	}
	return s.DBs[i]
}

// DBAt exposes db to callers outside the package (pkg/snapshot loading
// a dump, pkg/replication applying one) that need direct access to a
// specific database by index.
func (s *Store) DBAt(i int) *DB {
	return s.db(i)
}

// FlushDB empties database i, running every value's destructor.
func (s *Store) FlushDB(i int) {
	if db := s.db(i); db != nil {
		db.Dict.Clear()
	}
}

// FlushAll empties every database.
func (s *Store) FlushAll() {
	for _, db := range s.DBs {
		db.Dict.Clear()
	}
}

// DuePolicy reports whether any configured save policy is satisfied,
// matching the cron's "dirty >= changes AND now - lastsave > seconds"
// check from spec.md §4.6.
func (s *Store) DuePolicy(now time.Time) bool {
	for _, p := range s.SaveParams {
		if s.Dirty >= int64(p.Changes) && now.Sub(s.LastSave) > time.Duration(p.Seconds)*time.Second {
			return true
		}
	}
	return false
}
