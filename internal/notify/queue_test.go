package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type recordingForwarder struct {
	got []models.Notification
	err error
}

func (f *recordingForwarder) Forward(n models.Notification) error {
	f.got = append(f.got, n)
	return f.err
}

func TestQueue_NewestFirst(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock))

	q.Push(models.NotifyInfo, "first")
	clock.Advance(time.Millisecond)
	q.Push(models.NotifySuccess, "second")

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Message)
	assert.Equal(t, models.NotifySuccess, list[0].Type)
	assert.Equal(t, "first", list[1].Message)
}

func TestQueue_NeverMoreThanMax(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock))

	for i := 0; i < 12; i++ {
		q.Push(models.NotifyInfo, string(rune('a'+i)))
		assert.LessOrEqual(t, q.Len(), DefaultMax)
	}

	list := q.List()
	require.Len(t, list, DefaultMax)
	assert.Equal(t, "l", list[0].Message)
	assert.Equal(t, "h", list[4].Message)
	// Evicted entries must not leave timers behind.
	assert.Equal(t, DefaultMax, clock.pending())
}

func TestQueue_EachEntryExpiresIndependently(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock))

	q.Push(models.NotifyInfo, "a")
	clock.Advance(2 * time.Second)
	q.Push(models.NotifyInfo, "b")

	clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, 2, q.Len(), "nothing expires before 5000ms")

	clock.Advance(time.Millisecond)
	list := q.List()
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Message)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_UniqueIDsWithinSameInstant(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock))

	a := q.Push(models.NotifyInfo, "a")
	b := q.Push(models.NotifyInfo, "b")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Greater(t, b.ID, a.ID)
	assert.Equal(t, clock.Now(), a.Timestamp)
}

func TestQueue_Dismiss(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock))

	n := q.Push(models.NotifyWarning, "careful")
	assert.True(t, q.Dismiss(n.ID))
	assert.False(t, q.Dismiss(n.ID))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, clock.pending())

	// A late expiry for a dismissed entry is harmless.
	clock.Advance(DefaultTTL)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_CustomTTLAndMax(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock), WithTTL(time.Second), WithMax(2))

	q.Push(models.NotifyInfo, "a")
	q.Push(models.NotifyInfo, "b")
	q.Push(models.NotifyInfo, "c")
	assert.Equal(t, 2, q.Len())

	clock.Advance(time.Second)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Forwarders(t *testing.T) {
	clock := newFakeClock()
	ok := &recordingForwarder{}
	failing := &recordingForwarder{err: errors.New("broker down")}
	q := NewQueue(WithClock(clock), WithForwarder(ok), WithForwarder(failing))

	q.Notify(models.NotifyError, "Failed to update vehicle")

	require.Len(t, ok.got, 1)
	assert.Equal(t, "Failed to update vehicle", ok.got[0].Message)
	assert.Len(t, failing.got, 1)
	assert.Equal(t, 1, q.Len(), "forwarder errors never affect the queue")
}

func TestQueue_Close(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock))
	q.Push(models.NotifyInfo, "a")
	q.Push(models.NotifyInfo, "b")

	q.Close()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, clock.pending())
}

func TestQueue_RealClockExpiry(t *testing.T) {
	q := NewQueue(WithTTL(20 * time.Millisecond))
	q.Push(models.NotifyInfo, "short lived")
	assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
}
