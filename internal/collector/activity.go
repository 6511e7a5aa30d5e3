package collector

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/errors"
)

// Kind is an interaction type counted by Activity.
type Kind int

const (
	MouseMove Kind = iota
	Click
	KeyPress
)

// Counts is a point-in-time view of the interaction counters.
type Counts struct {
	MouseMovements int64
	Clicks         int64
	KeyPresses     int64
	SecondsOnPage  int64
}

// Activity counts interactions for as long as the visit lasts. Sources are
// attached as subscriptions and each is torn down deterministically.
type Activity struct {
	moves, clicks, keys, seconds atomic.Int64

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	stop       chan struct{}
	tickerDone chan struct{}
}

// NewActivity starts the time-on-page clock, which advances once per tick.
func NewActivity(tick time.Duration) *Activity {
	if tick <= 0 {
		tick = time.Second
	}
	a := &Activity{
		subs:       make(map[*Subscription]struct{}),
		stop:       make(chan struct{}),
		tickerDone: make(chan struct{}),
	}
	go a.clock(tick)
	return a
}

func (a *Activity) clock(tick time.Duration) {
	defer close(a.tickerDone)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.seconds.Add(1)
		case <-a.stop:
			return
		}
	}
}

// Subscription is one attached interaction source.
type Subscription struct {
	activity *Activity
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Attach counts every event received from events until the subscription is
// closed or events is closed.
func (a *Activity) Attach(events <-chan Kind) (*Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("%w: activity closed", apperrors.ErrUnavailable)
	}

	sub := &Subscription{
		activity: a,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	a.subs[sub] = struct{}{}
	go sub.run(events)
	return sub, nil
}

func (s *Subscription) run(events <-chan Kind) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case kind, ok := <-events:
			if !ok {
				return
			}
			s.activity.count(kind)
		}
	}
}

// Close unregisters the subscription and returns once no further events from
// it will be counted. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.done

	s.activity.mu.Lock()
	delete(s.activity.subs, s)
	s.activity.mu.Unlock()
}

func (a *Activity) count(kind Kind) {
	switch kind {
	case MouseMove:
		a.moves.Add(1)
	case Click:
		a.clicks.Add(1)
	case KeyPress:
		a.keys.Add(1)
	}
}

// Counts returns the current counters.
func (a *Activity) Counts() Counts {
	return Counts{
		MouseMovements: a.moves.Load(),
		Clicks:         a.clicks.Load(),
		KeyPresses:     a.keys.Load(),
		SecondsOnPage:  a.seconds.Load(),
	}
}

// Close tears down every remaining subscription and stops the clock.
func (a *Activity) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	subs := make([]*Subscription, 0, len(a.subs))
	for sub := range a.subs {
		subs = append(subs, sub)
	}
	a.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	close(a.stop)
	<-a.tickerDone
}

// Active reports how many subscriptions are attached.
func (a *Activity) Active() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}
