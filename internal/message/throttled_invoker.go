package message

import "sync"

// ThrottledInvoker runs a callback on its own goroutine. Triggers that
// arrive before the callback starts are merged into one run.
type ThrottledInvoker struct {
	callback func()
	trigger  chan struct{}
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewThrottledInvoker(callback func()) *ThrottledInvoker {
	inv := &ThrottledInvoker{
		callback: callback,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	inv.wg.Add(1)
	go inv.loop()
	return inv
}

func (inv *ThrottledInvoker) loop() {
	defer inv.wg.Done()
	for {
		select {
		case <-inv.done:
			return
		case <-inv.trigger:
		}
		select {
		case <-inv.done:
			return
		default:
		}
		inv.callback()
	}
}

// Trigger schedules a run if none is pending.
func (inv *ThrottledInvoker) Trigger() {
	select {
	case inv.trigger <- struct{}{}:
	default:
	}
}

// Remove stops the goroutine after the current run, if any.
func (inv *ThrottledInvoker) Remove() {
	inv.once.Do(func() { close(inv.done) })
}

// Wait blocks until the goroutine has exited.
func (inv *ThrottledInvoker) Wait() {
	inv.wg.Wait()
}
