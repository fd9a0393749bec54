package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/lox/vm"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("vm worker stopped")

type vmRequest struct {
	fn   func(*vm.VM) interface{}
	done chan vmResult
}

type vmResult struct {
	value interface{}
	err   error
}

// VMWorker owns one interpreter and runs every job against it on a single
// goroutine, in submission order.
type VMWorker struct {
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
	stop     sync.Once
}

// NewVMWorker starts a worker for v. Nothing else may touch v afterwards.
func NewVMWorker(v *vm.VM) *VMWorker {
	w := &VMWorker{
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute turns a panicking job into an error so the interpreter survives it.
func (w *VMWorker) execute(fn func(*vm.VM) interface{}) vmResult {
	var result vmResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("vm worker recovered: %v", r)
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.vm)
	}()
	return result
}

// Do runs fn on the worker goroutine and waits for its value. A job that
// panics yields an error; a stopped worker yields ErrWorkerStopped.
func (w *VMWorker) Do(fn func(*vm.VM) interface{}) (interface{}, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}

	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop ends the worker. Jobs still queued are dropped. Repeated calls are
// harmless.
func (w *VMWorker) Stop() {
	w.stop.Do(func() { close(w.quit) })
}

// VM returns the interpreter. Outside Do, only its ID may be read.
func (w *VMWorker) VM() *vm.VM {
	return w.vm
}
