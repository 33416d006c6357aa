package debug

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/value"
)

func TestDisassembleSimpleChunk(t *testing.T) {
	fn := value.NewObjFunction()
	chunk := fn.Chunk
	idx := chunk.AddConstant(value.Number(42))
	chunk.WriteOp(value.OpConstant, 1)
	chunk.Write(byte(idx), 1)
	chunk.WriteOp(value.OpReturn, 1)

	var buf bytes.Buffer
	Disassemble(&buf, fn, "test")

	out := buf.String()
	assert.Contains(t, out, "== test ==")
	assert.Contains(t, out, "CONSTANT")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "RETURN")
}

func TestDisassembleInstructionAdvancesByOperandWidth(t *testing.T) {
	fn := value.NewObjFunction()
	chunk := fn.Chunk
	chunk.WriteOp(value.OpNil, 1)
	chunk.WriteOp(value.OpReturn, 1)

	var buf bytes.Buffer
	next := DisassembleInstruction(&buf, chunk, 0)
	require.Equal(t, 1, next)
	next = DisassembleInstruction(&buf, chunk, next)
	assert.Equal(t, 2, next)
}
