package gleval

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Loop is a single threaded task queue. Tasks run one at a time in the goroutine
// calling Run or Drain. Post and PostAfter may be called from any goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	timers timerHeap
	seq    uint64
	wake   chan struct{}
}

// NewLoop returns a ready to use Loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules fn to run after already queued tasks.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// PostAfter schedules fn to run once d has elapsed.
func (l *Loop) PostAfter(d time.Duration, fn func()) {
	l.mu.Lock()
	l.seq++
	heap.Push(&l.timers, timer{due: time.Now().Add(d), seq: l.seq, fn: fn})
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next pops the next runnable task. With virtual set delayed tasks are due immediately.
func (l *Loop) next(now time.Time, virtual bool) (fn func(), wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		fn = l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		return fn, 0, true
	}
	if len(l.timers) == 0 {
		return nil, -1, false
	}
	if !virtual {
		if wait = l.timers[0].due.Sub(now); wait > 0 {
			return nil, wait, false
		}
	}
	t := heap.Pop(&l.timers).(timer)
	return t.fn, 0, true
}

// Run executes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	tm := time.NewTimer(time.Hour)
	defer tm.Stop()
	for {
		fn, wait, ok := l.next(time.Now(), false)
		if ok {
			fn()
			continue
		}
		var timeout <-chan time.Time
		if wait > 0 {
			tm.Reset(wait)
			timeout = tm.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timeout:
		}
	}
}

// Drain runs tasks until none remain, firing delayed tasks in due order without
// waiting for them. It returns the amount of tasks run.
func (l *Loop) Drain() (n int) {
	for {
		fn, _, ok := l.next(time.Time{}, true)
		if !ok {
			return n
		}
		fn()
		n++
	}
}

// Pending returns the amount of queued and delayed tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) + len(l.timers)
}

type timer struct {
	due time.Time
	seq uint64
	fn  func()
}

type timerHeap []timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	t := old[len(old)-1]
	old[len(old)-1] = timer{}
	*h = old[:len(old)-1]
	return t
}
