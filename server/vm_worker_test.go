package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/chazu/lox/vm"
)

func TestVMWorker_Do(t *testing.T) {
	w := NewVMWorker(NewVM(vm.DefaultFramesMax, false))
	defer w.Stop()

	got, err := w.Do(func(v *vm.VM) interface{} {
		value, err := v.Evaluate("2 * 21")
		if err != nil {
			return err.Error()
		}
		return value.String()
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "42" {
		t.Errorf("Do = %v, want 42", got)
	}
}

func TestVMWorker_RecoversPanics(t *testing.T) {
	w := NewVMWorker(NewVM(vm.DefaultFramesMax, false))
	defer w.Stop()

	_, err := w.Do(func(v *vm.VM) interface{} {
		panic("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Errorf("err = %v, want boom", err)
	}

	// The worker keeps serving after a panic.
	got, err := w.Do(func(v *vm.VM) interface{} { return v.FramesMax() })
	if err != nil || got != vm.DefaultFramesMax {
		t.Errorf("Do after panic = %v, %v", got, err)
	}
}

func TestVMWorker_SerializesAccess(t *testing.T) {
	w := NewVMWorker(NewVM(vm.DefaultFramesMax, false))
	defer w.Stop()

	if _, err := w.Do(func(v *vm.VM) interface{} {
		_, err := v.Evaluate("var n = 0;")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Do(func(v *vm.VM) interface{} {
				_, err := v.Evaluate("n = n + 1;")
				return err
			})
		}()
	}
	wg.Wait()

	got, _ := w.Do(func(v *vm.VM) interface{} {
		n, _ := v.Global("n")
		return n.AsNumber()
	})
	if got != float64(50) {
		t.Errorf("n = %v, want 50", got)
	}
}

func TestVMWorker_StopIsIdempotent(t *testing.T) {
	w := NewVMWorker(NewVM(vm.DefaultFramesMax, false))
	w.Stop()
	w.Stop()

	_, err := w.Do(func(v *vm.VM) interface{} { return nil })
	if !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("Do after Stop err = %v, want ErrWorkerStopped", err)
	}
}
