package vm

// MaxConstants is the constant pool size addressable by a one-byte operand.
const MaxConstants = 256

// Chunk is a compiled unit of bytecode: the instruction stream, a parallel
// per-byte line map and the constant pool.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []Value
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Lines:     make([]int, 0, 64),
		Constants: make([]Value, 0, 8),
	}
}

// Write appends one byte and records the source line it came from.
func (c *Chunk) Write(b byte, line int) int {
	offset := len(c.Code)
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	return offset
}

// WriteOp appends an opcode.
func (c *Chunk) WriteOp(op Opcode, line int) int {
	return c.Write(byte(op), line)
}

// AddConstant appends value to the pool and returns its index. The pool is
// append-only; callers enforce MaxConstants.
func (c *Chunk) AddConstant(value Value) int {
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// Line returns the source line of the byte at offset, or 0 when out of range.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// Len returns the length of the code section.
func (c *Chunk) Len() int {
	return len(c.Code)
}

// readUint16 decodes a big-endian jump operand.
func (c *Chunk) readUint16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}
