// Package reactor implements the single-threaded event loop that drives
// the whole server: readiness events on listening/client file descriptors,
// and time events for periodic maintenance (the cron).
//
// It is a direct translation of the original C event loop (a select(2)
// loop over a singly-linked list of registered file and time events) —
// see original_source/redis/src/ae.c. The restart-from-head dispatch
// policy after each callback, and the "events registered before this
// process_events call started" id cutoff for time events, are kept
// intentionally: the wire protocol's ordering guarantees (spec.md §4.1,
// §5) depend on them.
package reactor

import (
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Interest bits, mirroring AE_READABLE / AE_WRITABLE / AE_EXCEPTION.
const (
	Readable = 1 << iota
	Writable
	Exception
)

// Flags for ProcessEvents.
const (
	FileEvents = 1 << iota
	TimeEvents
	DontWait
)

const AllEvents = FileEvents | TimeEvents

// NoMore is the sentinel a TimeProc returns to have its event deleted
// instead of rescheduled.
const NoMore = -1

// FileProc handles readiness on fd for the bits set in mask.
type FileProc func(loop *EventLoop, fd int, mask int)

// TimeProc runs a periodic task. A positive return value reschedules the
// event that many milliseconds from now; NoMore deletes it.
type TimeProc func(loop *EventLoop, id int64) int

type fileEvent struct {
	fd   int
	mask int
	proc FileProc
}

type timeEvent struct {
	id     int64
	when   time.Time
	proc   TimeProc
	active bool
}

// EventLoop is the reactor: a set of file events keyed by fd+mask and a
// set of time events, processed in batches by ProcessEvents.
type EventLoop struct {
	fileEvents      []*fileEvent
	timeEvents      []*timeEvent
	nextTimeEventID int64
	stop            bool
}

// New creates an empty event loop.
func New() *EventLoop {
	return &EventLoop{}
}

// CreateFileEvent registers proc to be called when fd becomes ready for
// any of the bits in mask. Matches aeCreateFileEvent: a new node is
// pushed, so registering the same (fd, mask) twice yields two callbacks.
func (l *EventLoop) CreateFileEvent(fd int, mask int, proc FileProc) {
	l.fileEvents = append([]*fileEvent{{fd: fd, mask: mask, proc: proc}}, l.fileEvents...)
}

// DeleteFileEvent removes the first registered event matching (fd, mask).
func (l *EventLoop) DeleteFileEvent(fd int, mask int) {
	for i, fe := range l.fileEvents {
		if fe.fd == fd && fe.mask == mask {
			l.fileEvents = append(l.fileEvents[:i], l.fileEvents[i+1:]...)
			return
		}
	}
}

// CreateTimeEvent registers proc to run after the given delay, returning
// an id that can later be passed to DeleteTimeEvent.
func (l *EventLoop) CreateTimeEvent(delay time.Duration, proc TimeProc) int64 {
	id := l.nextTimeEventID
	l.nextTimeEventID++
	te := &timeEvent{id: id, when: time.Now().Add(delay), proc: proc, active: true}
	l.timeEvents = append([]*timeEvent{te}, l.timeEvents...)
	return id
}

// DeleteTimeEvent removes the time event with the given id, if present.
func (l *EventLoop) DeleteTimeEvent(id int64) {
	for i, te := range l.timeEvents {
		if te.id == id {
			l.timeEvents = append(l.timeEvents[:i], l.timeEvents[i+1:]...)
			return
		}
	}
}

// Stop requests that Main return after the current iteration.
func (l *EventLoop) Stop() {
	l.stop = true
}

// nearestTimer returns the time event with the smallest deadline, or nil.
func (l *EventLoop) nearestTimer() *timeEvent {
	var nearest *timeEvent
	for _, te := range l.timeEvents {
		if nearest == nil || te.when.Before(nearest.when) {
			nearest = te
		}
	}
	return nearest
}

// ProcessEvents runs one pass: wait for readiness (bounded by the
// nearest time event's deadline, or indefinitely if there are none and
// DontWait isn't set), dispatch ready file events, then fire any time
// events whose deadline has elapsed. Returns the number of file events
// processed.
func (l *EventLoop) ProcessEvents(flags int) int {
	if flags&(FileEvents|TimeEvents) == 0 {
		return 0
	}

	var timeout *unix.Timeval
	if flags&TimeEvents != 0 && flags&DontWait == 0 {
		if nearest := l.nearestTimer(); nearest != nil {
			d := time.Until(nearest.when)
			if d < 0 {
				d = 0
			}
			tv := unix.NsecToTimeval(d.Nanoseconds())
			timeout = &tv
		}
	}
	if timeout == nil && flags&DontWait != 0 {
		tv := unix.NsecToTimeval(0)
		timeout = &tv
	}

	processed := 0
	if flags&FileEvents != 0 {
		processed = l.waitAndDispatch(timeout)
	} else if timeout != nil {
		// No file events requested but we still need to sleep until the
		// nearest time event (select on no descriptors behaves as a timer).
		var rfds, wfds, efds unix.FdSet
		_, _ = unix.Select(0, &rfds, &wfds, &efds, timeout)
	}

	if flags&TimeEvents != 0 {
		l.dispatchTimeEvents()
	}

	return processed
}

// waitAndDispatch builds read/write fd_sets from the registered file
// events, calls select(2), and dispatches ready callbacks, restarting
// from the head of the list after each callback since the callback may
// have mutated the event list (matches processedFileEvent in ae.c).
func (l *EventLoop) waitAndDispatch(timeout *unix.Timeval) int {
	var rfds, wfds, efds unix.FdSet
	maxfd := 0
	numfd := 0
	for _, fe := range l.fileEvents {
		if fe.mask&Readable != 0 {
			fdSet(&rfds, fe.fd)
		}
		if fe.mask&Writable != 0 {
			fdSet(&wfds, fe.fd)
		}
		if fe.mask&Exception != 0 {
			fdSet(&efds, fe.fd)
		}
		if fe.fd > maxfd {
			maxfd = fe.fd
		}
		numfd++
	}
	if numfd == 0 {
		if timeout != nil {
			var empty unix.FdSet
			_, _ = unix.Select(0, &empty, &empty, &empty, timeout)
		}
		return 0
	}

	n, err := unix.Select(maxfd+1, &rfds, &wfds, &efds, timeout)
	if err != nil || n <= 0 {
		return 0
	}

	processed := 0
	i := 0
	for i < len(l.fileEvents) {
		fe := l.fileEvents[i]
		readable := fe.mask&Readable != 0 && fdIsSet(&rfds, fe.fd)
		writable := fe.mask&Writable != 0 && fdIsSet(&wfds, fe.fd)
		exceptional := fe.mask&Exception != 0 && fdIsSet(&efds, fe.fd)
		if !readable && !writable && !exceptional {
			i++
			continue
		}
		mask := 0
		if readable {
			mask |= Readable
		}
		if writable {
			mask |= Writable
		}
		if exceptional {
			mask |= Exception
		}
		fe.proc(l, fe.fd, mask)
		processed++
		// the callback may have deleted/added file events; restart scan.
		fdClear(&rfds, fe.fd)
		fdClear(&wfds, fe.fd)
		fdClear(&efds, fe.fd)
		i = 0
	}
	return processed
}

// dispatchTimeEvents fires every time event whose deadline has elapsed,
// capped to events that existed when this call started (the id cutoff
// from processedTimeEvent in ae.c) so a callback that creates new time
// events can't cause this call to loop forever.
func (l *EventLoop) dispatchTimeEvents() {
	maxID := l.nextTimeEventID - 1
	now := time.Now()
	i := 0
	for i < len(l.timeEvents) {
		te := l.timeEvents[i]
		if te.id > maxID {
			i++
			continue
		}
		if now.Before(te.when) {
			i++
			continue
		}
		retval := te.proc(l, te.id)
		if retval == NoMore {
			l.DeleteTimeEvent(te.id)
		} else {
			te.when = time.Now().Add(time.Duration(retval) * time.Millisecond)
		}
		i = 0
		now = time.Now()
	}
}

// Main runs ProcessEvents(AllEvents) until Stop is called.
func (l *EventLoop) Main() {
	l.stop = false
	for !l.stop {
		l.ProcessEvents(AllEvents)
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdClear(set *unix.FdSet, fd int) {
	set.Bits[fd/64] &^= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// sortedTimeEventIDs returns the ids of the registered time events in
// ascending order. Nothing in the package or its tests calls it.
func (l *EventLoop) sortedTimeEventIDs() []int64 {
	ids := make([]int64, 0, len(l.timeEvents))
	for _, te := range l.timeEvents {
		ids = append(ids, te.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
