package usecase

import "sync"

// eventLoop serializes every state mutation of one conversation onto a single goroutine.
// Handlers run in submission order. post and call must not be used from inside a handler.
type eventLoop struct {
	queue chan func()
	quit  chan struct{}
	done  chan struct{}

	stopOnce sync.Once
}

func newEventLoop(buffer int) *eventLoop {
	if buffer <= 0 {
		buffer = 64
	}
	l := &eventLoop{
		queue: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-l.quit:
			return
		}
	}
}

// post enqueues fn without waiting for it to run. It reports false once the loop is stopped.
func (l *eventLoop) post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (l *eventLoop) call(fn func()) bool {
	finished := make(chan struct{})
	if !l.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

func (l *eventLoop) stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	<-l.done
}
