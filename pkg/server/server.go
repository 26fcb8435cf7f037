// Package server wires the reactor, the multi-database store, the
// per-client protocol state machine, the snapshot codec, replication,
// and the cron into one running process. It is the layer that knows
// about sockets and process lifecycle — everything below it (store,
// protocol, snapshot, replication, cron) is deliberately ignorant of
// how a command reaches it.
//
// Grounded on original_source/redis/src/redis.c's initServer /
// acceptTcpHandler / readQueryFromClient wiring, generalized to this
// module's package boundaries.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/memkv/memkv/pkg/config"
	"github.com/memkv/memkv/pkg/cron"
	"github.com/memkv/memkv/pkg/log"
	"github.com/memkv/memkv/pkg/metrics"
	"github.com/memkv/memkv/pkg/netutil"
	"github.com/memkv/memkv/pkg/protocol"
	"github.com/memkv/memkv/pkg/reactor"
	"github.com/memkv/memkv/pkg/replication"
	"github.com/memkv/memkv/pkg/snapshot"
	"github.com/memkv/memkv/pkg/store"
)

const readBufSize = 16 * 1024

// Server owns the listening socket, the reactor running it, and every
// connected client's protocol state.
type Server struct {
	Config *config.Config
	Store  *store.Store
	Loop   *reactor.EventLoop

	dumpFilename string
	listenFd     int

	clients map[int]*protocol.Client

	replState  replication.State
	bgsaveDone chan bool

	cron *cron.Cron
}

// New builds a Server from cfg but does not yet bind a socket; call
// Start for that.
func New(cfg *config.Config) *Server {
	st := store.New(cfg.Databases, nil, nil)
	st.SaveParams = cfg.SaveParams

	s := &Server{
		Config:       cfg,
		Store:        st,
		Loop:         reactor.New(),
		dumpFilename: filepath.Join(cfg.Dir, "dump.rdb"),
		listenFd:     -1,
		clients:      make(map[int]*protocol.Client),
		bgsaveDone:   make(chan bool, 1),
	}
	st.Hooks = store.Hooks{
		Save:   s.syncSave,
		BGSave: s.startBGSave,
	}

	s.cron = cron.New(st, time.Duration(cfg.Timeout)*time.Second, cron.Hooks{
		ClientCount:      s.clientCount,
		SweepIdleClients: s.sweepIdleClients,
		ReapBGSave:       s.reapBGSave,
		StartBGSave:      s.startBGSave,
		MustConnect:      s.mustConnect,
		AttemptSlaveSync: s.attemptSlaveSync,
	})

	if cfg.IsSlave {
		s.replState = replication.MustConnect
	}
	return s
}

// Start loads the dump file if one exists, then binds the listening
// socket and registers it with the reactor. A dump that fails to load
// is returned as an error. It does not block — call Run (or Loop.Main)
// to actually serve.
func (s *Server) Start() error {
	if _, err := os.Stat(s.dumpFilename); err == nil {
		if err := snapshot.Load(s.Store, s.dumpFilename); err != nil {
			return fmt.Errorf("server: load dump: %w", err)
		}
	}
	fd, err := netutil.Server(s.Config.Port, s.Config.Bind)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listenFd = fd
	s.Loop.CreateFileEvent(fd, reactor.Readable, s.acceptHandler)
	s.cron.Register(s.Loop)

	logger := log.WithComponent("server")
	logger.Info().Int("port", s.Config.Port).Msg("listening")
	return nil
}

// Run starts the socket (if not already started) and blocks, running
// the reactor's main loop until Stop is called.
func (s *Server) Run() error {
	if s.listenFd < 0 {
		if err := s.Start(); err != nil {
			return err
		}
	}
	s.Loop.Main()
	return nil
}

// Stop requests the reactor loop exit after its current iteration.
func (s *Server) Stop() {
	s.Loop.Stop()
}

func (s *Server) acceptHandler(loop *reactor.EventLoop, fd int, mask int) {
	clientFd, ip, port, err := netutil.Accept(fd)
	if err != nil {
		log.WithComponent("server").Warn().Err(err).Msg("accept failed")
		return
	}
	if err := netutil.SetNonBlock(clientFd); err != nil {
		netutil.Close(clientFd)
		return
	}
	_ = netutil.SetTCPNoDelay(clientFd)

	id := uuid.New().String()
	c := protocol.NewClient(id, clientFd, s.Store)
	c.Special = map[string]protocol.SpecialHandler{
		"sync":     s.handleSync,
		"shutdown": s.handleShutdown,
	}
	s.clients[clientFd] = c
	s.Store.NumConnections++
	metrics.ConnectedClients.Set(float64(len(s.clients)))

	log.WithClientID(id).Info().Str("addr", ip+":"+strconv.Itoa(port)).Msg("client connected")

	loop.CreateFileEvent(clientFd, reactor.Readable, s.readHandler)
}

func (s *Server) readHandler(loop *reactor.EventLoop, fd int, mask int) {
	c, ok := s.clients[fd]
	if !ok {
		return
	}
	buf := make([]byte, readBufSize)
	replies, shouldClose, err := c.ReadFrom(buf)
	if len(replies) > 0 {
		if c.QueueReplies(replies) {
			loop.CreateFileEvent(fd, reactor.Writable, s.writeHandler)
		}
		if drained, werr := c.FlushWrites(); werr != nil {
			shouldClose = true
		} else if drained {
			loop.DeleteFileEvent(fd, reactor.Writable)
		}
	}
	if err != nil || shouldClose {
		s.closeClient(loop, fd)
	}
}

// writeHandler is the write-ready callback registered while a client has
// a non-empty reply queue: it drains as much as the socket currently
// accepts and deregisters WRITE interest once the queue empties,
// matching spec.md §4.4's reply-queue contract.
func (s *Server) writeHandler(loop *reactor.EventLoop, fd int, mask int) {
	c, ok := s.clients[fd]
	if !ok {
		return
	}
	drained, err := c.FlushWrites()
	if err != nil {
		s.closeClient(loop, fd)
		return
	}
	if drained {
		loop.DeleteFileEvent(fd, reactor.Writable)
	}
}

func (s *Server) closeClient(loop *reactor.EventLoop, fd int) {
	if c, ok := s.clients[fd]; ok && c.IsSlave {
		metrics.ConnectedSlaves.Dec()
	}
	loop.DeleteFileEvent(fd, reactor.Readable)
	loop.DeleteFileEvent(fd, reactor.Writable)
	delete(s.clients, fd)
	netutil.Close(fd)
	metrics.ConnectedClients.Set(float64(len(s.clients)))
}

// handleSync implements the master side of SYNC: synchronously save,
// then stream the dump straight to the client's fd, bypassing the
// normal reply queue entirely (the wire format here is a raw size-
// prefixed blob, not a bulk reply).
func (s *Server) handleSync(c *protocol.Client, args [][]byte) store.Reply {
	logger := log.WithClientID(c.ID)
	if err := replication.HandleSync(s.Store, c.FD(), s.dumpFilename); err != nil {
		logger.Warn().Err(err).Msg("sync failed")
		c.Close()
		return nil
	}
	c.IsSlave = true
	metrics.ConnectedSlaves.Inc()
	logger.Info().Msg("slave synced")
	return nil
}

// handleShutdown performs a synchronous save (unless no save points are
// configured, matching shutdownCommand's guard) and exits the process.
// It never returns a reply to the client — the connection just goes
// away.
func (s *Server) handleShutdown(c *protocol.Client, args [][]byte) store.Reply {
	logger := log.WithComponent("server")
	if len(s.Store.SaveParams) > 0 {
		if err := s.syncSave(); err != nil {
			logger.Error().Err(err).Msg("save on shutdown failed")
		}
	}
	logger.Info().Msg("shutting down")
	os.Exit(0)
	return nil
}

func (s *Server) syncSave() error {
	return snapshot.Save(s.Store, s.dumpFilename)
}

// startBGSave runs a save "in the background." A real fork gives Redis
// copy-on-write isolation between the saving child and the still-
// mutating parent; Go has no equivalent without duplicating the whole
// dataset, so this instead runs the save synchronously within the
// single-threaded reactor (which already serializes every mutation)
// and reports it as immediately finished on the next reap. It keeps
// the async Hooks/cron contract spec.md describes — BGSaveInProgress
// is set, the cron reaps it — without risking a second goroutine
// touching pkg/dict concurrently with the reactor.
func (s *Server) startBGSave() error {
	if s.Store.BGSaveInProgress {
		return fmt.Errorf("server: background save already in progress")
	}
	s.Store.BGSaveInProgress = true
	err := snapshot.Save(s.Store, s.dumpFilename)
	s.bgsaveDone <- err == nil
	return nil
}

func (s *Server) reapBGSave() (done bool, success bool) {
	select {
	case ok := <-s.bgsaveDone:
		return true, ok
	default:
		return false, false
	}
}

func (s *Server) clientCount() int {
	return len(s.clients)
}

func (s *Server) sweepIdleClients(timeout time.Duration) int {
	closed := 0
	now := time.Now()
	for fd, c := range s.clients {
		if c.Idle(now, timeout) {
			s.closeClient(s.Loop, fd)
			closed++
		}
	}
	return closed
}

func (s *Server) mustConnect() bool {
	return s.Config.IsSlave && s.replState == replication.MustConnect
}

func (s *Server) attemptSlaveSync() error {
	logger := log.WithComponent("server")
	fd, err := replication.ConnectToMaster(s.Store, s.Config.MasterHost, s.Config.MasterPort, s.dumpFilename)
	if err != nil {
		logger.Warn().Err(err).Msg("slave sync attempt failed, will retry")
		s.replState = replication.MustConnect
		return err
	}

	id := uuid.New().String()
	masterClient := protocol.NewClient(id, fd, s.Store)
	masterClient.IsSlave = false
	s.clients[fd] = masterClient
	s.Loop.CreateFileEvent(fd, reactor.Readable, s.readHandler)
	s.replState = replication.Connected
	logger.Info().Msg("synced with master")
	return nil
}
