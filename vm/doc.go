// Package vm provides the runtime half of the Lox interpreter: values, heap
// objects, the string-keyed hash table, bytecode chunks and the stack-based
// virtual machine that executes them.
//
// # Architecture Overview
//
//   - Value: a tagged union of nil, boolean, number and object reference.
//     Values are copied freely and never own the objects they reference.
//
//   - Heap: an arena owning every object (String, Function, Closure, Native,
//     Upvalue). Each object's ObjectID is its arena index. Strings are
//     interned, so string equality is pointer equality everywhere.
//
//   - Table: an open-addressed, linearly probed hash table keyed by interned
//     strings. Deletion leaves a tombstone so probe chains stay intact.
//
//   - Chunk: the instruction stream, a per-byte line map and a constant pool
//     addressed by one-byte operands.
//
//   - VM: a fixed-capacity value stack plus call frames. Interpret runs source
//     through the installed compiler and executes the resulting script.
//
// # Compiling
//
// The compiler lives in its own package and depends on this one, so it is
// injected rather than imported:
//
//	machine := vm.New()
//	machine.UseCompiler(compiler.Compile)
//	result := machine.Interpret("print 1 + 2;")
//
// # Collection
//
// No collector runs. The heap keeps every object alive; Roots reports what a
// mark phase would reach from the stack, frames, open upvalues, globals and
// the interning table.
package vm
