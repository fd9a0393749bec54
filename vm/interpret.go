package vm

import "fmt"

// Evaluate compiles and runs source, returning the program result. Errors are
// *CompileError or *RuntimeError; nothing is executed if compilation fails,
// and whatever the failed compile allocated is released.
func (vm *VM) Evaluate(source string) (Value, error) {
	if vm.compile == nil {
		return Nil, ErrNoCompiler
	}
	mark := vm.heap.Mark()
	fn, err := vm.compile(source, vm.heap)
	if err != nil {
		vm.heap.Rollback(mark)
		return Nil, err
	}
	return vm.Execute(fn)
}

// Interpret compiles and runs source and reports the outcome. A non-nil
// program result is printed to the output; compile diagnostics and runtime
// error traces go to the error output.
func (vm *VM) Interpret(source string) InterpretResult {
	value, err := vm.Evaluate(source)
	if err != nil {
		vm.report(err)
		return ResultOf(err)
	}
	if !value.IsNil() {
		fmt.Fprintln(vm.out, value.String())
	}
	return InterpretOK
}

func (vm *VM) report(err error) {
	switch e := err.(type) {
	case *CompileError:
		fmt.Fprintln(vm.errOut, e.Error())
	case *RuntimeError:
		fmt.Fprintln(vm.errOut, e.Report())
	default:
		fmt.Fprintln(vm.errOut, err)
	}
}

// Execute runs an already compiled script function. The VM drops every
// reference to it once execution ends, whatever the outcome.
func (vm *VM) Execute(fn *Function) (Value, error) {
	vm.resetStack()
	closure := vm.heap.NewClosure(fn)
	vm.push(ObjectValue(closure))
	if err := vm.call(closure, 0); err != nil {
		return Nil, err
	}
	result, err := vm.run()
	vm.resetStack()
	return result, err
}
