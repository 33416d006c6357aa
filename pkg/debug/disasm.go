// Package debug implements the bytecode disassembler: a human-readable
// listing of a chunk's instructions, constants, and source lines. It is a
// read-only view: it never steps the VM or sets breakpoints, since this
// virtual machine has no interactive debugging surface.
package debug

import (
	"fmt"
	"io"

	"github.com/kristofer/loxvm/pkg/value"
)

// Disassemble writes a labeled listing of every instruction in fn's chunk,
// recursing into any nested function constants, to w.
func Disassemble(w io.Writer, fn *value.ObjFunction, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	chunk := fn.Chunk
	for offset := 0; offset < len(chunk.Code); {
		offset = DisassembleInstruction(w, chunk, offset)
	}
	for _, c := range chunk.Constants {
		if c.IsFunction() {
			nested := c.AsFunction()
			nestedName := "<script>"
			if nested.Name != nil {
				nestedName = nested.Name.Chars
			}
			Disassemble(w, nested, nestedName)
		}
	}
}

// DisassembleInstruction prints the single instruction at offset and
// returns the offset of the next one. The source-line column prints
// "   |" when the line matches the previous instruction's, and the
// numeric line otherwise, mirroring the run-compression the chunk's own
// line index uses internally.
func DisassembleInstruction(w io.Writer, chunk *value.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	line := chunk.GetLine(offset)
	if offset > 0 && chunk.GetLine(offset-1) == line {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", line)
	}

	op := value.OpCode(chunk.Code[offset])
	switch op {
	case value.OpConstant:
		return constantInstruction(w, op, chunk, offset)
	case value.OpConstantLong:
		return constantLongInstruction(w, op, chunk, offset)
	case value.OpGetLocal, value.OpSetLocal, value.OpCall:
		return byteInstruction(w, op, chunk, offset)
	case value.OpGetGlobal, value.OpSetGlobal, value.OpDefineGlobal:
		return constantInstruction(w, op, chunk, offset)
	case value.OpJump, value.OpJumpIfFalse:
		return jumpInstruction(w, op, chunk, offset, 1)
	case value.OpLoop:
		return jumpInstruction(w, op, chunk, offset, -1)
	default:
		return simpleInstruction(w, op, offset)
	}
}

func simpleInstruction(w io.Writer, op value.OpCode, offset int) int {
	fmt.Fprintln(w, op.String())
	return offset + 1
}

func byteInstruction(w io.Writer, op value.OpCode, chunk *value.Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", op.String(), slot)
	return offset + 2
}

func constantInstruction(w io.Writer, op value.OpCode, chunk *value.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op.String(), idx, value.Print(chunk.Constants[idx]))
	return offset + 2
}

func constantLongInstruction(w io.Writer, op value.OpCode, chunk *value.Chunk, offset int) int {
	idx := int(chunk.Code[offset+1])<<16 | int(chunk.Code[offset+2])<<8 | int(chunk.Code[offset+3])
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op.String(), idx, value.Print(chunk.Constants[idx]))
	return offset + 4
}

func jumpInstruction(w io.Writer, op value.OpCode, chunk *value.Chunk, offset, sign int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op.String(), offset, target)
	return offset + 3
}
