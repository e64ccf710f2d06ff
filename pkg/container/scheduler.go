package container

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type passFunc func(ctx context.Context, trigger Trigger, coalesced []Trigger)

type inPassKey struct{}

// withinPass marks ctx as belonging to a running pass.
func withinPass(ctx context.Context) context.Context {
	return context.WithValue(ctx, inPassKey{}, true)
}

// outsidePass drops the pass marker, for work that a pass hands off to
// other goroutines and that may wait on other schedulers.
func outsidePass(ctx context.Context) context.Context {
	return context.WithValue(ctx, inPassKey{}, false)
}

// InPass reports whether ctx was handed out by a running pass. Refresh
// requests made with such a context never wait, since the pass they would
// wait for is their own.
func InPass(ctx context.Context) bool {
	v, _ := ctx.Value(inPassKey{}).(bool)
	return v
}

// scheduler serializes passes for one container. At most one pass runs at
// a time. When a pass finishes the queue is checked again under the same
// lock that admits triggers, so an accepted trigger is always serviced.
type scheduler struct {
	mu       sync.Mutex
	queue    *TriggerQueue
	inFlight bool
	idle     chan struct{}
	closed   bool
	tickets  map[uint64]*ticket

	pass passFunc
	now  func() time.Time

	onAccepted  func(Trigger)
	onDebounced func(Trigger)
	onPanic     func(Trigger, error)
}

// ticket is released once the pass that drained its trigger has finished,
// or with ErrDestroyed when the trigger is dropped.
type ticket struct {
	done chan struct{}
	err  error
}

func newScheduler(debounce time.Duration, now func() time.Time, pass passFunc) *scheduler {
	if now == nil {
		now = time.Now
	}
	q := NewTriggerQueue(debounce)
	q.now = now

	idle := make(chan struct{})
	close(idle)

	return &scheduler{
		queue:   q,
		idle:    idle,
		tickets: make(map[uint64]*ticket),
		pass:    pass,
		now:     now,
	}
}

// submit enqueues t and makes sure a pass loop is running. With wait set it
// returns once the pass that drained or coalesced t has finished, or when
// ctx is done. Later triggers do not hold the caller. It reports false
// when the trigger was debounced.
func (s *scheduler) submit(ctx context.Context, t Trigger, wait bool) (bool, error) {
	if InPass(ctx) {
		wait = false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrDestroyed
	}
	seq, ok := s.queue.enqueue(t)
	if !ok {
		s.mu.Unlock()
		if s.onDebounced != nil {
			s.onDebounced(t)
		}
		return false, nil
	}

	var tk *ticket
	if wait {
		tk = &ticket{done: make(chan struct{})}
		s.tickets[seq] = tk
	}
	start := !s.inFlight
	if start {
		s.inFlight = true
		s.idle = make(chan struct{})
	}
	s.mu.Unlock()

	if s.onAccepted != nil {
		s.onAccepted(t)
	}
	if start {
		go s.loop(context.WithoutCancel(ctx))
	}
	if !wait {
		return true, nil
	}

	select {
	case <-tk.done:
		return true, tk.err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.tickets, seq)
		s.mu.Unlock()
		return true, ctx.Err()
	}
}

func (s *scheduler) loop(ctx context.Context) {
	passCtx := withinPass(ctx)
	for {
		s.mu.Lock()
		head, rest, ok := s.queue.DrainHighestPriority()
		if !ok {
			s.inFlight = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		s.queue.MarkPassStarted(s.now())
		s.mu.Unlock()

		s.run(passCtx, head, rest)

		s.mu.Lock()
		s.releaseLocked(nil, head)
		s.releaseLocked(nil, rest...)
		s.mu.Unlock()
	}
}

// releaseLocked wakes the callers waiting on triggers.
func (s *scheduler) releaseLocked(err error, triggers ...Trigger) {
	for _, t := range triggers {
		tk, ok := s.tickets[t.seq]
		if !ok {
			continue
		}
		delete(s.tickets, t.seq)
		tk.err = err
		close(tk.done)
	}
}

func (s *scheduler) run(ctx context.Context, head Trigger, rest []Trigger) {
	defer func() {
		if p := recover(); p != nil && s.onPanic != nil {
			s.onPanic(head, fmt.Errorf("pass panicked: %v", p))
		}
	}()
	s.pass(ctx, head, rest)
}

// wait blocks until no pass is in flight or ctx is done.
func (s *scheduler) wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// busy reports whether a pass is in flight.
func (s *scheduler) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// close refuses further triggers and drops the pending ones. Callers
// waiting on a dropped trigger get ErrDestroyed. A pass already running is
// left to finish.
func (s *scheduler) close() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	dropped := s.queue.Clear()
	s.releaseLocked(ErrDestroyed, dropped...)
	return dropped
}
