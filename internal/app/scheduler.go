package app

import (
	"sort"
	"sync"
	"time"
)

// Task is a scheduled callback handle. Stop is idempotent; stopping a task
// that already fired or was stopped is a no-op.
type Task interface {
	Stop()
}

// Scheduler is the single timing abstraction every component uses. Having
// one seam for time keeps countdowns, heartbeats and pacing delays testable
// under virtual time.
type Scheduler interface {
	Now() time.Time
	// After runs fn once after d.
	After(d time.Duration, fn func()) Task
	// Every runs fn repeatedly with period d until the task is stopped.
	Every(d time.Duration, fn func()) Task
}

// NewScheduler returns the wall-clock scheduler.
func NewScheduler() Scheduler { return realScheduler{} }

type realScheduler struct{}

func (realScheduler) Now() time.Time { return time.Now() }

func (realScheduler) After(d time.Duration, fn func()) Task {
	return &timerTask{t: time.AfterFunc(d, fn)}
}

type timerTask struct {
	t *time.Timer
}

func (t *timerTask) Stop() { t.t.Stop() }

func (realScheduler) Every(d time.Duration, fn func()) Task {
	tk := &tickerTask{ticker: time.NewTicker(d), stop: make(chan struct{})}
	go func() {
		for {
			select {
			case <-tk.ticker.C:
				fn()
			case <-tk.stop:
				return
			}
		}
	}()
	return tk
}

type tickerTask struct {
	ticker *time.Ticker
	once   sync.Once
	stop   chan struct{}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
	})
}

// ManualScheduler is a virtual-time scheduler for tests. Advance moves the
// clock and runs every due callback inline, in due order.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) After(d time.Duration, fn func()) Task {
	return s.add(d, fn, false)
}

func (s *ManualScheduler) Every(d time.Duration, fn func()) Task {
	return s.add(d, fn, true)
}

func (s *ManualScheduler) add(d time.Duration, fn func(), repeat bool) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	task := &manualTask{
		sched:  s,
		seq:    s.seq,
		due:    s.now.Add(d),
		period: d,
		fn:     fn,
		repeat: repeat,
	}
	s.tasks = append(s.tasks, task)
	return task
}

// Advance moves virtual time forward by d, firing due tasks in order.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		task := s.nextDue(target)
		if task == nil {
			break
		}
		s.mu.Lock()
		s.now = task.due
		if task.repeat {
			task.due = task.due.Add(task.period)
		} else {
			task.stopped = true
		}
		fn := task.fn
		s.mu.Unlock()
		fn()
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

func (s *ManualScheduler) nextDue(target time.Time) *manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.tasks = live

	sort.SliceStable(s.tasks, func(i, j int) bool {
		if !s.tasks[i].due.Equal(s.tasks[j].due) {
			return s.tasks[i].due.Before(s.tasks[j].due)
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})
	for _, t := range s.tasks {
		if !t.due.After(target) {
			return t
		}
	}
	return nil
}

type manualTask struct {
	sched   *ManualScheduler
	seq     int
	due     time.Time
	period  time.Duration
	fn      func()
	repeat  bool
	stopped bool
}

func (t *manualTask) Stop() {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	t.stopped = true
}
