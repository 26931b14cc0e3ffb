package quiz

import (
	"sync"
	"time"
)

// timerHandle is a single armed expiration. The stopped flag is guarded by
// the owning timerSet's mutex; once set, the callback will never run.
type timerHandle struct {
	questionIndex int
	timer         *time.Timer
	stopped       bool
}

// timerSet keeps at most one armed expiration per active session. Arming a
// new timer for a participant implicitly cancels the previous one, which
// guards against leaked timers if a session ever advances out of order.
type timerSet struct {
	mu     sync.Mutex
	active map[int64]*timerHandle
}

func newTimerSet() *timerSet {
	return &timerSet{active: make(map[int64]*timerHandle)}
}

// Arm schedules fn to run once after delay for the participant's question.
// The cancellation check and the fire decision are taken under the same
// lock, so a canceled timer can never invoke fn.
func (t *timerSet) Arm(participantID int64, questionIndex int, delay time.Duration, fn func(participantID int64, questionIndex int)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.active[participantID]; ok {
		prev.stopped = true
		prev.timer.Stop()
	}

	h := &timerHandle{questionIndex: questionIndex}
	h.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if h.stopped {
			t.mu.Unlock()
			return
		}
		h.stopped = true
		if t.active[participantID] == h {
			delete(t.active, participantID)
		}
		t.mu.Unlock()

		fn(participantID, questionIndex)
	})
	t.active[participantID] = h
}

// Cancel stops the pending timer for the given question, if one is still
// armed. It is a no-op when the timer already fired or was replaced.
func (t *timerSet) Cancel(participantID int64, questionIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.active[participantID]
	if !ok || h.questionIndex != questionIndex {
		return
	}
	h.stopped = true
	h.timer.Stop()
	delete(t.active, participantID)
}

// CancelAll drops whatever timer the participant still has armed. Used
// when a session reaches its terminal state or is torn down.
func (t *timerSet) CancelAll(participantID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.active[participantID]; ok {
		h.stopped = true
		h.timer.Stop()
		delete(t.active, participantID)
	}
}
