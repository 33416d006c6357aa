package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkWriteAndGetLine(t *testing.T) {
	c := NewChunk()
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpNil, 1)
	c.WriteOp(OpPop, 2)
	c.WriteOp(OpReturn, 5)

	require.Len(t, c.Code, 4)
	assert.Equal(t, 1, c.GetLine(0))
	assert.Equal(t, 1, c.GetLine(1))
	assert.Equal(t, 2, c.GetLine(2))
	assert.Equal(t, 5, c.GetLine(3))
}

func TestChunkGetLineIsMonotonic(t *testing.T) {
	c := NewChunk()
	lines := []int{1, 1, 1, 4, 4, 9, 9, 9, 9, 20}
	for _, l := range lines {
		c.WriteOp(OpPop, l)
	}

	prev := 0
	for offset := range c.Code {
		got := c.GetLine(offset)
		assert.GreaterOrEqual(t, got, prev, "line index must never decrease as offset increases")
		prev = got
	}
}

func TestAddConstant(t *testing.T) {
	c := NewChunk()
	i0 := c.AddConstant(Number(1))
	i1 := c.AddConstant(Number(2))

	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)
	require.Len(t, c.Constants, 2)
	assert.True(t, Equal(Number(1), c.Constants[i0]))
	assert.True(t, Equal(Number(2), c.Constants[i1]))
}

func TestPatchUint16RoundTrip(t *testing.T) {
	c := NewChunk()
	offset := c.WriteUint16(0xffff, 1)
	c.PatchUint16(offset, 0x1234)

	assert.Equal(t, byte(0x12), c.Code[offset])
	assert.Equal(t, byte(0x34), c.Code[offset+1])
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "ADD", OpAdd.String())
	assert.Equal(t, "SWITCH_EQUAL", OpSwitchEqual.String())
	assert.Equal(t, "UNKNOWN", OpCode(255).String())
}
