package notify

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

const (
	DefaultTTL = 5 * time.Second
	DefaultMax = 5
)

// Forwarder receives a copy of every pushed notification.
type Forwarder interface {
	Forward(n models.Notification) error
}

type entry struct {
	n     models.Notification
	timer Timer
}

// Queue holds the most recent notifications, newest first. Each entry owns its own
// expiry timer and removes itself when it fires.
type Queue struct {
	mu         sync.Mutex
	clock      Clock
	ttl        time.Duration
	max        int
	entries    []entry
	lastID     int64
	forwarders []Forwarder
	logger     log.FieldLogger
}

// Option configures a Queue.
type Option func(*Queue)

func WithClock(c Clock) Option { return func(q *Queue) { q.clock = c } }

func WithTTL(d time.Duration) Option { return func(q *Queue) { q.ttl = d } }

func WithMax(n int) Option { return func(q *Queue) { q.max = n } }

func WithForwarder(f Forwarder) Option {
	return func(q *Queue) { q.forwarders = append(q.forwarders, f) }
}

func WithLogger(l log.FieldLogger) Option { return func(q *Queue) { q.logger = l } }

// NewQueue creates a notification queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		clock:  RealClock{},
		ttl:    DefaultTTL,
		max:    DefaultMax,
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.ttl <= 0 {
		q.ttl = DefaultTTL
	}
	if q.max <= 0 {
		q.max = DefaultMax
	}
	return q
}

// Notify pushes a message. It satisfies the notifier the synchronizer depends on.
func (q *Queue) Notify(t models.NotificationType, message string) {
	q.Push(t, message)
}

// Push adds a notification to the front of the queue and schedules its expiry.
func (q *Queue) Push(t models.NotificationType, message string) models.Notification {
	q.mu.Lock()
	now := q.clock.Now()
	id := now.UnixNano()
	if id <= q.lastID {
		id = q.lastID + 1
	}
	q.lastID = id
	n := models.Notification{ID: id, Message: message, Type: t, Timestamp: now}

	e := entry{n: n}
	e.timer = q.clock.AfterFunc(q.ttl, func() { q.remove(id) })
	q.entries = append([]entry{e}, q.entries...)
	for len(q.entries) > q.max {
		last := q.entries[len(q.entries)-1]
		last.timer.Stop()
		q.entries = q.entries[:len(q.entries)-1]
	}
	forwarders := q.forwarders
	q.mu.Unlock()

	for _, f := range forwarders {
		if err := f.Forward(n); err != nil {
			q.logger.WithError(err).WithField("notification_id", n.ID).Warn("Failed to forward notification")
		}
	}
	return n
}

// Dismiss removes a notification before it expires.
func (q *Queue) Dismiss(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.n.ID == id {
			e.timer.Stop()
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// List returns the visible notifications, newest first.
func (q *Queue) List() []models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Notification, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.n
	}
	return out
}

// Len returns the number of visible notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close cancels all pending expiry timers and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		e.timer.Stop()
	}
	q.entries = nil
}

func (q *Queue) remove(id int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.n.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}
