package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/warp/class-booking/enrollment"
)

var (
	// ErrQueueFull is returned when the async queue cannot take another event.
	ErrQueueFull = errors.New("notification queue full")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("notifier closed")
)

type job struct {
	promotion bool
	userID    enrollment.UserID
	classID   enrollment.ClassID
}

// Async hands notifications to a single worker goroutine through a bounded
// queue. Enqueueing never blocks; when the queue is full the event is
// dropped and ErrQueueFull returned, which the Coordinator logs.
type Async struct {
	next    enrollment.Notifier
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewAsync starts the worker. timeout bounds each delivery to next.
func NewAsync(next enrollment.Notifier, size int, timeout time.Duration) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		queue:   make(chan job, size),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) NotifyPromotion(_ context.Context, userID enrollment.UserID, classID enrollment.ClassID) error {
	return a.enqueue(job{promotion: true, userID: userID, classID: classID})
}

func (a *Async) NotifyBooked(_ context.Context, userID enrollment.UserID, classID enrollment.ClassID) error {
	return a.enqueue(job{userID: userID, classID: classID})
}

func (a *Async) enqueue(j job) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for j := range a.queue {
		a.deliver(j)
	}
}

func (a *Async) deliver(j job) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var err error
	if j.promotion {
		err = a.next.NotifyPromotion(ctx, j.userID, j.classID)
	} else {
		err = a.next.NotifyBooked(ctx, j.userID, j.classID)
	}
	if err != nil {
		log.Printf("[Notify] delivery failed for %s/%s: %v", j.classID, j.userID, err)
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}
