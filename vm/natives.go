package vm

import "time"

// NativeNames lists the natives every VM defines.
var NativeNames = []string{"clock"}

func (vm *VM) defineNatives() {
	vm.DefineNative("clock", 0, vm.clockNative)
}

// clockNative returns the seconds elapsed since the VM was created.
func (vm *VM) clockNative(args []Value) (Value, error) {
	return NumberValue(time.Since(vm.start).Seconds()), nil
}
