package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeEventFiresAndReschedules(t *testing.T) {
	loop := New()
	fired := 0
	loop.CreateTimeEvent(10*time.Millisecond, func(l *EventLoop, id int64) int {
		fired++
		if fired >= 3 {
			return NoMore
		}
		return 10
	})

	deadline := time.Now().Add(2 * time.Second)
	for fired < 3 && time.Now().Before(deadline) {
		loop.ProcessEvents(TimeEvents | DontWait)
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 3, fired)
	assert.Empty(t, loop.timeEvents)
}

func TestDeleteTimeEvent(t *testing.T) {
	loop := New()
	id := loop.CreateTimeEvent(time.Hour, func(l *EventLoop, id int64) int { return NoMore })
	assert.Len(t, loop.timeEvents, 1)
	loop.DeleteTimeEvent(id)
	assert.Empty(t, loop.timeEvents)
}

func TestFileEventRegistrationAndDeletion(t *testing.T) {
	loop := New()
	loop.CreateFileEvent(3, Readable, func(l *EventLoop, fd int, mask int) {})
	assert.Len(t, loop.fileEvents, 1)
	loop.DeleteFileEvent(3, Readable)
	assert.Empty(t, loop.fileEvents)
}

func TestNearestTimerPicksSmallestDeadline(t *testing.T) {
	loop := New()
	loop.CreateTimeEvent(time.Hour, func(l *EventLoop, id int64) int { return NoMore })
	soonID := loop.CreateTimeEvent(time.Millisecond, func(l *EventLoop, id int64) int { return NoMore })
	nearest := loop.nearestTimer()
	assert.Equal(t, soonID, nearest.id)
}

func TestStopEndsMain(t *testing.T) {
	loop := New()
	done := make(chan struct{})
	loop.CreateTimeEvent(5*time.Millisecond, func(l *EventLoop, id int64) int {
		l.Stop()
		return NoMore
	})
	go func() {
		loop.Main()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Main did not return after Stop")
	}
}
