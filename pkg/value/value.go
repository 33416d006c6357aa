// Package value implements the runtime value representation shared by the
// compiler and the virtual machine: a small tagged union plus the heap
// object kinds (strings, functions) that live behind its object variant.
//
// A Value is deliberately a plain struct rather than an interface: the
// operand stack is a []Value and every push/pop must stay allocation free.
// Heap objects (*ObjString, *ObjFunction) are the only variant that carries
// a pointer; object identity (not content) is what equality and hash-table
// lookups key on, which is what makes string interning correct (see
// package table).
package value

import (
	"fmt"
	"strconv"
)

// Kind tags which variant of Value is live.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObject
)

// Value is a tagged union of {nil, bool, number, object}. The zero Value is
// Nil.
type Value struct {
	Kind   Kind
	number float64
	b      bool
	obj    Obj
}

// Nil is the singleton nil value.
var Nil = Value{Kind: KindNil}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, b: b} }

// Number constructs a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, number: n} }

// Object wraps a heap object as a Value.
func Object(o Obj) Value { return Value{Kind: KindObject, obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObject() bool { return v.Kind == KindObject }

// AsBool returns v's boolean payload without checking the tag; for a value
// that is not a bool it returns false, so callers check IsBool first.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns v's numeric payload without checking the tag; for a
// value that is not a number it returns 0.
func (v Value) AsNumber() float64 { return v.number }

// AsObject returns v's heap object without checking the tag; for a value
// that is not an object it returns nil.
func (v Value) AsObject() Obj { return v.obj }

// IsString reports whether v holds an *ObjString.
func (v Value) IsString() bool {
	_, ok := v.obj.(*ObjString)
	return v.Kind == KindObject && ok
}

// AsString panics if v is not a string object.
func (v Value) AsString() *ObjString { return v.obj.(*ObjString) }

// IsFunction reports whether v holds an *ObjFunction.
func (v Value) IsFunction() bool {
	_, ok := v.obj.(*ObjFunction)
	return v.Kind == KindObject && ok
}

// AsFunction panics if v is not a function object.
func (v Value) AsFunction() *ObjFunction { return v.obj.(*ObjFunction) }

// IsFalsey implements the language's two-valued falsiness projection: nil
// and false are falsy, everything else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.Kind == KindNil || (v.Kind == KindBool && !v.b)
}

// Equal implements the runtime's == semantics: differently-tagged values
// are never equal; nil equals nil; bools and numbers compare by value;
// objects compare by identity (correct for strings because of interning,
// and for functions because each is allocated exactly once).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.number == b.number
	case KindObject:
		return a.obj == b.obj
	default:
		return false
	}
}

// Print renders v in the language's canonical output form: booleans as
// true/false, nil as nil, numbers trimmed like %g, strings as raw bytes,
// functions as <fn name> or <script> for the anonymous top-level function.
func Print(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case KindObject:
		switch o := v.obj.(type) {
		case *ObjString:
			return o.Chars
		case *ObjFunction:
			if o.Name == nil {
				return "<script>"
			}
			return fmt.Sprintf("<fn %s>", o.Name.Chars)
		}
	}
	return "<?>"
}

// Obj is implemented by every heap-allocated object kind. The VM owns every
// Obj it allocates; see pkg/vm for the bulk-free object list.
type Obj interface {
	objKind() objKind
}

type objKind uint8

const (
	objKindString objKind = iota
	objKindFunction
)

// ObjString is an interned, length-prefixed string object. Bytes are held
// in a plain Go string (already length-prefixed and immutable), which
// supplies the "length authoritative, bytes not necessarily NUL-scanned"
// behavior a C implementation gets from an explicit length field.
type ObjString struct {
	Chars string
	Hash  uint32
}

func (*ObjString) objKind() objKind { return objKindString }

// HashString computes the FNV-1a 32-bit hash used to key interned strings.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// NewObjString builds a string object and pre-computes its hash. It does
// not intern; callers go through the VM's intern table so that identity
// equality holds.
func NewObjString(s string) *ObjString {
	return &ObjString{Chars: s, Hash: HashString(s)}
}

// ObjFunction is a compiled function: its arity, its own code chunk, and
// its name (nil for the anonymous top-level script).
type ObjFunction struct {
	Arity int
	Chunk *Chunk
	Name  *ObjString
}

func (*ObjFunction) objKind() objKind { return objKindFunction }

// NewObjFunction allocates a function object with a fresh, empty chunk.
func NewObjFunction() *ObjFunction {
	return &ObjFunction{Chunk: NewChunk()}
}
