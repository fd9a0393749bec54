package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk under a
// "== name ==" header.
func (c *Chunk) Disassemble(name string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	for offset := 0; offset < len(c.Code); {
		line, next := c.DisassembleInstruction(offset)
		sb.WriteString(line)
		sb.WriteString("\n")
		offset = next
	}
	return sb.String()
}

// DisassembleInstruction formats the instruction at offset and returns the
// offset of the next one. Lines may contain embedded newlines for the
// upvalue descriptors that follow OP_CLOSURE.
func (c *Chunk) DisassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", offset
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%04d ", offset))
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", c.Lines[offset]))
	}

	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)

	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal:
		if offset+1 >= len(c.Code) {
			return sb.String() + info.Name + " <truncated>", len(c.Code)
		}
		idx := int(c.Code[offset+1])
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'", info.Name, idx, c.constantString(idx)))
		return sb.String(), offset + 2

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		if offset+1 >= len(c.Code) {
			return sb.String() + info.Name + " <truncated>", len(c.Code)
		}
		sb.WriteString(fmt.Sprintf("%-16s %4d", info.Name, c.Code[offset+1]))
		return sb.String(), offset + 2

	case OpJump, OpJumpIfFalse, OpLoop:
		if offset+2 >= len(c.Code) {
			return sb.String() + info.Name + " <truncated>", len(c.Code)
		}
		jump := c.readUint16(offset + 1)
		target := offset + 3 + jump
		if op == OpLoop {
			target = offset + 3 - jump
		}
		sb.WriteString(fmt.Sprintf("%-16s %4d -> %d", info.Name, offset, target))
		return sb.String(), offset + 3

	case OpClosure:
		if offset+1 >= len(c.Code) {
			return sb.String() + info.Name + " <truncated>", len(c.Code)
		}
		idx := int(c.Code[offset+1])
		sb.WriteString(fmt.Sprintf("%-16s %4d %s", info.Name, idx, c.constantString(idx)))
		next := offset + 2

		var upvalues int
		if idx < len(c.Constants) {
			if fn, err := c.Constants[idx].AsFunction(); err == nil {
				upvalues = fn.UpvalueCount
			}
		}
		for i := 0; i < upvalues && next+1 < len(c.Code); i++ {
			kind := "upvalue"
			if c.Code[next] == 1 {
				kind = "local"
			}
			sb.WriteString(fmt.Sprintf("\n%04d      |                     %s %d", next, kind, c.Code[next+1]))
			next += 2
		}
		return sb.String(), next

	default:
		sb.WriteString(info.Name)
		return sb.String(), offset + 1
	}
}

func (c *Chunk) constantString(idx int) string {
	if idx >= len(c.Constants) {
		return "<bad constant>"
	}
	return c.Constants[idx].String()
}

// DisassembleFunction lists fn's chunk followed by the chunks of every
// function constant nested within it, depth first.
func DisassembleFunction(fn *Function) string {
	var sb strings.Builder
	sb.WriteString(fn.Chunk.Disassemble(fn.String()))
	for _, v := range fn.Chunk.Constants {
		if inner, err := v.AsFunction(); err == nil {
			sb.WriteString(DisassembleFunction(inner))
		}
	}
	return sb.String()
}
