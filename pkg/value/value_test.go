package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	a := NewObjString("hi")
	b := NewObjString("hi") // distinct allocation, same content

	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"nil equals nil", Nil, Nil, true},
		{"bool by value", Bool(true), Bool(true), true},
		{"bool mismatch", Bool(true), Bool(false), false},
		{"number by value", Number(1), Number(1), true},
		{"number mismatch", Number(1), Number(2), false},
		{"different kinds never equal", Number(0), Nil, false},
		{"different kinds never equal, bool/number", Bool(false), Number(0), false},
		{"same object pointer", Object(a), Object(a), true},
		{"equal content, distinct pointer is NOT equal", Object(a), Object(b), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Equal(tt.a, tt.b))
		})
	}
}

func TestIsFalsey(t *testing.T) {
	assert.True(t, Nil.IsFalsey())
	assert.True(t, Bool(false).IsFalsey())
	assert.False(t, Bool(true).IsFalsey())
	assert.False(t, Number(0).IsFalsey(), "0 is truthy")
	assert.False(t, Object(NewObjString("")).IsFalsey(), "empty string is truthy")
}

func TestPrint(t *testing.T) {
	fn := NewObjFunction()
	fn.Name = NewObjString("area")

	tests := []struct {
		name     string
		v        Value
		expected string
	}{
		{"nil", Nil, "nil"},
		{"true", Bool(true), "true"},
		{"false", Bool(false), "false"},
		{"integer-valued number", Number(3), "3"},
		{"fractional number", Number(3.5), "3.5"},
		{"string", Object(NewObjString("hello")), "hello"},
		{"named function", Object(fn), "<fn area>"},
		{"anonymous script function", Object(NewObjFunction()), "<script>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Print(tt.v))
		})
	}
}

func TestHashStringDeterministic(t *testing.T) {
	require.Equal(t, HashString("same"), HashString("same"))
	assert.NotEqual(t, HashString("same"), HashString("different"))
}

func TestIsAccessors(t *testing.T) {
	s := Object(NewObjString("x"))
	fn := Object(NewObjFunction())

	assert.True(t, s.IsObject())
	assert.True(t, s.IsString())
	assert.False(t, s.IsFunction())

	assert.True(t, fn.IsObject())
	assert.True(t, fn.IsFunction())
	assert.False(t, fn.IsString())

	assert.True(t, Number(1).IsNumber())
	assert.True(t, Bool(true).IsBool())
	assert.True(t, Nil.IsNil())
}
