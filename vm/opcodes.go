package vm

import "fmt"

// Opcode represents a bytecode instruction.
type Opcode byte

const (
	// ========================================================================
	// Constants and literals
	// ========================================================================

	OpConstant Opcode = iota // Push constant from pool: OpConstant <index:u8>
	OpNil                    // Push nil
	OpTrue                   // Push true
	OpFalse                  // Push false
	OpPop                    // Pop top of stack

	// ========================================================================
	// Variables
	// ========================================================================

	OpGetLocal     // Push local: OpGetLocal <slot:u8>
	OpSetLocal     // Store TOS into local, leave it on the stack: OpSetLocal <slot:u8>
	OpGetGlobal    // Push global: OpGetGlobal <name:u8>
	OpDefineGlobal // Pop into a new global: OpDefineGlobal <name:u8>
	OpSetGlobal    // Store TOS into an existing global: OpSetGlobal <name:u8>
	OpGetUpvalue   // Push captured variable: OpGetUpvalue <index:u8>
	OpSetUpvalue   // Store TOS into captured variable: OpSetUpvalue <index:u8>

	// ========================================================================
	// Comparison and arithmetic
	// ========================================================================

	OpEqual    // Pop two, push a == b
	OpGreater  // Pop two, push a > b
	OpLess     // Pop two, push a < b
	OpAdd      // Pop two, push sum or concatenation
	OpSubtract // Pop two, push a - b where b is TOS
	OpMultiply // Pop two, push product
	OpDivide   // Pop two, push quotient
	OpNot      // Replace TOS with its falsiness
	OpNegate   // Negate numeric TOS

	// ========================================================================
	// Statements and control flow
	// ========================================================================

	OpPrint       // Pop and print
	OpJump        // Forward jump: OpJump <offset:u16>
	OpJumpIfFalse // Forward jump if TOS is falsey, TOS kept: OpJumpIfFalse <offset:u16>
	OpLoop        // Backward jump: OpLoop <offset:u16>

	// ========================================================================
	// Calls and closures
	// ========================================================================

	OpCall         // Call callee under argc args: OpCall <argc:u8>
	OpClosure      // Wrap function constant: OpClosure <fn:u8> (<isLocal:u8> <index:u8>)*
	OpCloseUpvalue // Hoist TOS into its upvalue and pop
	OpReturn       // Return TOS from the current frame
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Fixed operand bytes following the opcode
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpConstant: {"OP_CONSTANT", 0, 1, 1},
	OpNil:      {"OP_NIL", 0, 1, 0},
	OpTrue:     {"OP_TRUE", 0, 1, 0},
	OpFalse:    {"OP_FALSE", 0, 1, 0},
	OpPop:      {"OP_POP", 1, 0, 0},

	OpGetLocal:     {"OP_GET_LOCAL", 0, 1, 1},
	OpSetLocal:     {"OP_SET_LOCAL", 1, 1, 1},
	OpGetGlobal:    {"OP_GET_GLOBAL", 0, 1, 1},
	OpDefineGlobal: {"OP_DEFINE_GLOBAL", 1, 0, 1},
	OpSetGlobal:    {"OP_SET_GLOBAL", 1, 1, 1},
	OpGetUpvalue:   {"OP_GET_UPVALUE", 0, 1, 1},
	OpSetUpvalue:   {"OP_SET_UPVALUE", 1, 1, 1},

	OpEqual:    {"OP_EQUAL", 2, 1, 0},
	OpGreater:  {"OP_GREATER", 2, 1, 0},
	OpLess:     {"OP_LESS", 2, 1, 0},
	OpAdd:      {"OP_ADD", 2, 1, 0},
	OpSubtract: {"OP_SUBTRACT", 2, 1, 0},
	OpMultiply: {"OP_MULTIPLY", 2, 1, 0},
	OpDivide:   {"OP_DIVIDE", 2, 1, 0},
	OpNot:      {"OP_NOT", 1, 1, 0},
	OpNegate:   {"OP_NEGATE", 1, 1, 0},

	OpPrint:       {"OP_PRINT", 1, 0, 0},
	OpJump:        {"OP_JUMP", 0, 0, 2},
	OpJumpIfFalse: {"OP_JUMP_IF_FALSE", 0, 0, 2},
	OpLoop:        {"OP_LOOP", 0, 0, 2},

	OpCall:         {"OP_CALL", -1, 1, 1},    // Pops callee + argc args
	OpClosure:      {"OP_CLOSURE", 0, 1, 1},  // Followed by 2 bytes per upvalue
	OpCloseUpvalue: {"OP_CLOSE_UPVALUE", 1, 0, 0},
	OpReturn:       {"OP_RETURN", -1, 1, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of fixed operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// IsJump returns true if this opcode carries a 16-bit jump offset.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpLoop
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := OpConstant; op <= OpReturn; op++ {
		ops = append(ops, op)
	}
	return ops
}
