// Package vm implements the virtual machine: the operand stack, call-frame
// book-keeping, the two hash tables (globals and interned strings), the
// heap object list, and the bytecode dispatch loop.
//
//	Source -> lexer -> compiler -> Chunk -> vm.Interpret -> side effects
//
// A VM has a strict lifecycle: New must precede any Interpret call, and
// Free must follow the last one. Go's garbage collector makes the bulk
// free of heap objects automatic; Free drops the VM's own references to
// its object list and tables so the collector can reclaim them.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/table"
	"github.com/kristofer/loxvm/pkg/value"
)

const maxFrames = 64

// CallFrame is a window into the operand stack describing one active
// invocation: the callee, its instruction pointer, and the stack index of
// its local-zero slot.
type CallFrame struct {
	function *value.ObjFunction
	ip       int
	slotBase int
}

// VM is the bytecode interpreter. Construct one with New and run source
// through it with Interpret; Option values configure non-default behavior
// (currently just the Print destination).
type VM struct {
	stack      []value.Value
	frames     [maxFrames]CallFrame
	frameCount int

	globals *table.Table
	strings *table.Table
	objects []value.Obj

	out io.Writer
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithOutput redirects the destination of the print statement, which
// otherwise writes to os.Stdout. Tests use this to capture output.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// New constructs a VM ready to Interpret source.
func New(opts ...Option) *VM {
	vm := &VM{
		globals: table.New(),
		strings: table.New(),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.out == nil {
		vm.out = os.Stdout
	}
	return vm
}

// Free releases the VM's heap objects and tables. This is the "free" half
// of the lifecycle contract; no Interpret call may follow it.
func (vm *VM) Free() {
	vm.objects = nil
	vm.globals = nil
	vm.strings = nil
	vm.stack = nil
	vm.frameCount = 0
}

// InternString implements compiler.StringInterner: it returns the unique
// interned ObjString for s, allocating and registering a new one only if
// no equal-content string has been seen yet.
func (vm *VM) InternString(s string) *value.ObjString {
	hash := value.HashString(s)
	if existing := vm.strings.FindString(s, hash); existing != nil {
		return existing
	}
	str := &value.ObjString{Chars: s, Hash: hash}
	vm.strings.Set(str, value.Nil)
	vm.objects = append(vm.objects, str)
	return str
}

// NewFunction implements compiler.StringInterner: it allocates a function
// object and registers it on the heap object list.
func (vm *VM) NewFunction() *value.ObjFunction {
	fn := value.NewObjFunction()
	vm.objects = append(vm.objects, fn)
	return fn
}

var _ compiler.StringInterner = (*VM)(nil)

// Interpret compiles and runs source as a new top-level script. A compile
// error returns *CompileError without executing anything; a runtime error
// returns *RuntimeError after resetting the stack and frames.
func (vm *VM) Interpret(source string) error {
	fn, ok := compiler.Compile(source, vm)
	if !ok {
		return &CompileError{}
	}

	vm.push(value.Object(fn))
	frame := &vm.frames[0]
	frame.function = fn
	frame.ip = 0
	frame.slotBase = 0
	vm.frameCount = 1

	return vm.run()
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// run is the dispatch loop: a tight switch over the opcode byte, with the
// instruction pointer cached on the current frame.
func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]

	for {
		op := value.OpCode(vm.readByte(frame))

		switch op {
		case value.OpConstant:
			idx := int(vm.readByte(frame))
			vm.push(frame.function.Chunk.Constants[idx])

		case value.OpConstantLong:
			idx := vm.readUint24(frame)
			vm.push(frame.function.Chunk.Constants[idx])

		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.Bool(true))
		case value.OpFalse:
			vm.push(value.Bool(false))

		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.slotBase+slot])

		case value.OpSetLocal:
			slot := int(vm.readByte(frame))
			vm.stack[frame.slotBase+slot] = vm.peek(0)

		case value.OpGetGlobal:
			name := frame.function.Chunk.Constants[vm.readByte(frame)].AsString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError(frame, "Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)

		case value.OpDefineGlobal:
			name := frame.function.Chunk.Constants[vm.readByte(frame)].AsString()
			vm.globals.Set(name, vm.pop())

		case value.OpSetGlobal:
			name := frame.function.Chunk.Constants[vm.readByte(frame)].AsString()
			if isNew := vm.globals.Set(name, vm.peek(0)); isNew {
				vm.globals.Delete(name)
				return vm.runtimeError(frame, "Undefined variable '%s'.", name.Chars)
			}

		case value.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))

		case value.OpSwitchEqual:
			caseVal := vm.pop()
			vm.push(value.Bool(value.Equal(vm.peek(0), caseVal)))

		case value.OpGreater:
			if err := vm.numberBinaryOp(frame, func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case value.OpLess:
			if err := vm.numberBinaryOp(frame, func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}

		case value.OpAdd:
			if err := vm.add(frame); err != nil {
				return err
			}
		case value.OpSubtract:
			if err := vm.numberBinaryOp(frame, func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case value.OpMultiply:
			if err := vm.numberBinaryOp(frame, func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case value.OpDivide:
			if err := vm.numberBinaryOp(frame, func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}

		case value.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))

		case value.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError(frame, "Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case value.OpPrint:
			fmt.Fprintln(vm.out, value.Print(vm.pop()))

		case value.OpJump:
			offset := vm.readUint16(frame)
			frame.ip += int(offset)

		case value.OpJumpIfFalse:
			offset := vm.readUint16(frame)
			if vm.peek(0).IsFalsey() {
				frame.ip += int(offset)
			}

		case value.OpLoop:
			offset := vm.readUint16(frame)
			frame.ip -= int(offset)

		case value.OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.callValue(frame, vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case value.OpReturn:
			result := vm.pop()
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // discard the script function's own slot 0
				return nil
			}
			vm.stack = vm.stack[:frame.slotBase]
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		default:
			return vm.runtimeError(frame, "Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) add(frame *CallFrame) error {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		vm.push(value.Object(vm.concatenate(a.AsString(), b.AsString())))
	default:
		return vm.runtimeError(frame, "Operands must be numbers.")
	}
	return nil
}

// concatenate interns the joined bytes of a and b, reusing an existing
// interned string if the result already exists.
func (vm *VM) concatenate(a, b *value.ObjString) *value.ObjString {
	return vm.InternString(a.Chars + b.Chars)
}

func (vm *VM) numberBinaryOp(frame *CallFrame, op func(a, b float64) value.Value) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError(frame, "Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(op(a, b))
	return nil
}

// callValue validates and dispatches a call instruction's callee.
func (vm *VM) callValue(frame *CallFrame, callee value.Value, argCount int) error {
	if !callee.IsFunction() {
		return vm.runtimeError(frame, "Can only call functions.")
	}
	fn := callee.AsFunction()
	if argCount != fn.Arity {
		return vm.runtimeError(frame, "Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if vm.frameCount == maxFrames {
		return vm.runtimeError(frame, "Stack overflow.")
	}

	// frame.ip is already current: unlike a design that caches ip in a local
	// variable, every read goes through readByte against the frame pointer
	// directly, so there is nothing separate to commit before the push.
	newFrame := &vm.frames[vm.frameCount]
	newFrame.function = fn
	newFrame.ip = 0
	newFrame.slotBase = len(vm.stack) - argCount - 1
	vm.frameCount++
	return nil
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.function.Chunk.Code[frame.ip]
	frame.ip++
	return b
}

func (vm *VM) readUint16(frame *CallFrame) uint16 {
	hi := vm.readByte(frame)
	lo := vm.readByte(frame)
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readUint24(frame *CallFrame) int {
	b0 := vm.readByte(frame)
	b1 := vm.readByte(frame)
	b2 := vm.readByte(frame)
	return int(b0)<<16 | int(b1)<<8 | int(b2)
}

// runtimeError formats a RuntimeError at the line of the just-consumed
// opcode byte, then resets the stack and frame count. It never unwinds
// the heap object list; Free (or process exit) handles that.
func (vm *VM) runtimeError(frame *CallFrame, format string, args ...interface{}) error {
	line := frame.function.Chunk.GetLine(frame.ip - 1)
	err := &RuntimeError{Message: fmt.Sprintf(format, args...), Line: line}
	vm.stack = vm.stack[:0]
	vm.frameCount = 0
	return err
}
