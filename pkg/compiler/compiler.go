// Package compiler implements the single-pass Pratt compiler: source text
// goes in, a compiled function (with its own bytecode chunk) comes out,
// with no intermediate AST. Parsing and code generation happen in the same
// traversal: each grammar rule both consumes tokens and emits bytecode
// directly into the function currently being compiled.
package compiler

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/value"
)

// StringInterner is the VM-owned facility the compiler uses to turn source
// text (identifiers, string literals) into interned string objects, and to
// allocate function objects. The compiler never allocates objects on its
// own: every heap object it creates is handed to the VM's object list
// through this interface, so the VM's bulk-free-at-shutdown story stays
// correct even for objects created at compile time.
type StringInterner interface {
	InternString(s string) *value.ObjString
	NewFunction() *value.ObjFunction
}

const (
	maxLocals      = 256
	maxSwitchCases = 32
	maxParameters  = 255
	maxArguments   = 255
)

type local struct {
	name  string
	depth int // -1 means declared but not yet initialized
}

type funcType int

const (
	funcTypeScript funcType = iota
	funcTypeFunction
)

// funcCompiler is the per-function compiler state: the local-variable
// stack mirror, the scope depth, and a pointer to the enclosing
// function's compiler (nil at the top-level script).
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *value.ObjFunction
	kind       funcType
	locals     [maxLocals]local
	localCount int
	scopeDepth int
}

// Compiler drives the whole single-pass translation. It doubles as the
// parser state, carrying hadError/panicMode; compile-time errors never
// panic, they flip these flags and the parser keeps going so it can
// report more than one error per invocation.
type Compiler struct {
	scanner   *lexer.Scanner
	current   lexer.Token
	previous  lexer.Token
	hadError  bool
	panicMode bool
	interner  StringInterner
	fc        *funcCompiler
}

// Compile translates source into a compiled anonymous top-level function.
// It always returns a non-nil function; ok is false if any compile error
// was reported, in which case the caller must refuse to execute it.
func Compile(source string, interner StringInterner) (fn *value.ObjFunction, ok bool) {
	c := &Compiler{
		scanner:  lexer.New(source),
		interner: interner,
	}
	c.pushFuncCompiler(funcTypeScript, "")

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}

	fn = c.popFuncCompiler()
	return fn, !c.hadError
}

func (c *Compiler) pushFuncCompiler(kind funcType, name string) {
	fn := c.interner.NewFunction()
	if name != "" {
		fn.Name = c.interner.InternString(name)
	}
	fc := &funcCompiler{enclosing: c.fc, function: fn, kind: kind}
	// Slot 0 is reserved for the callee itself; arguments start at 1.
	fc.locals[0] = local{name: "", depth: 0}
	fc.localCount = 1
	c.fc = fc
}

// popFuncCompiler finishes the current function: emits the implicit
// trailing return, restores the enclosing compiler, and returns the
// completed function object.
func (c *Compiler) popFuncCompiler() *value.ObjFunction {
	c.emitReturn()
	fn := c.fc.function
	c.fc = c.fc.enclosing
	return fn
}

func (c *Compiler) chunk() *value.Chunk { return c.fc.function.Chunk }

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.ScanToken()
		if c.current.Kind != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(kind lexer.TokenKind) bool { return c.current.Kind == kind }

func (c *Compiler) match(kind lexer.TokenKind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind lexer.TokenKind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error reporting ----------------------------------------------------

func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *Compiler) errorAtPrevious(message string) { c.errorAt(c.previous, message) }

func (c *Compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	fmt.Fprintf(os.Stderr, "[line %d] Error", tok.Line)
	switch tok.Kind {
	case lexer.TokenEOF:
		fmt.Fprint(os.Stderr, " at end")
	case lexer.TokenError:
		// message carries the scan error already
	default:
		fmt.Fprintf(os.Stderr, " at '%s'", tok.Lexeme)
	}
	fmt.Fprintf(os.Stderr, ": %s\n", message)
	c.hadError = true
}

// synchronize discards tokens until it finds a likely statement boundary,
// so one syntax error doesn't cascade into spurious follow-on errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != lexer.TokenEOF {
		if c.previous.Kind == lexer.TokenSemicolon {
			return
		}
		switch c.current.Kind {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

// --- bytecode emission --------------------------------------------------

func (c *Compiler) emitByte(b byte) { c.chunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op value.OpCode) { c.chunk().WriteOp(op, c.previous.Line) }
func (c *Compiler) emitBytes(op value.OpCode, operand byte) {
	c.emitOp(op)
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	c.emitOp(value.OpNil)
	c.emitOp(value.OpReturn)
}

// emitConstant pushes v via the shortest encoding that fits its constant
// pool index: OpConstant for indices below 256, OpConstantLong (3-byte
// big-endian index) above.
func (c *Compiler) emitConstant(v value.Value) {
	idx := c.chunk().AddConstant(v)
	c.emitConstantIndex(idx)
}

func (c *Compiler) emitConstantIndex(idx int) {
	if idx < value.MaxConstantsShort {
		c.emitBytes(value.OpConstant, byte(idx))
		return
	}
	if idx > 0xffffff {
		c.errorAtPrevious("Too many constants in one chunk.")
		return
	}
	c.emitOp(value.OpConstantLong)
	c.emitByte(byte(idx >> 16))
	c.emitByte(byte(idx >> 8))
	c.emitByte(byte(idx))
}

// emitJump emits op followed by a 2-byte placeholder, returning the
// placeholder's offset for a later patchJump.
func (c *Compiler) emitJump(op value.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

// patchJump backfills the placeholder at offset with the distance from the
// byte just after it to the current end of the chunk.
func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.errorAtPrevious("Too much code to jump over.")
		return
	}
	c.chunk().PatchUint16(offset, uint16(jump))
}

// emitLoop emits OpLoop with the backward distance to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.errorAtPrevious("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// --- scope & locals ------------------------------------------------------

func (c *Compiler) beginScope() { c.fc.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fc.scopeDepth--
	for c.fc.localCount > 0 && c.fc.locals[c.fc.localCount-1].depth > c.fc.scopeDepth {
		c.emitOp(value.OpPop)
		c.fc.localCount--
	}
}

func (c *Compiler) addLocal(name string) {
	if c.fc.localCount == maxLocals {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.fc.locals[c.fc.localCount] = local{name: name, depth: -1}
	c.fc.localCount++
}

func (c *Compiler) declareVariable() {
	if c.fc.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme
	for i := c.fc.localCount - 1; i >= 0; i-- {
		l := c.fc.locals[i]
		if l.depth != -1 && l.depth < c.fc.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) markInitialized() {
	if c.fc.scopeDepth == 0 {
		return
	}
	c.fc.locals[c.fc.localCount-1].depth = c.fc.scopeDepth
}

// identifierConstant stores name's interned string in the constant pool for
// the global get/set/define opcodes, whose operand is always a single byte;
// unlike plain constant loads there is no long form to fall back on.
func (c *Compiler) identifierConstant(name string) int {
	str := c.interner.InternString(name)
	idx := c.chunk().AddConstant(value.Object(str))
	if idx >= value.MaxConstantsShort {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return idx
}

func (c *Compiler) parseVariable(errMsg string) int {
	c.consume(lexer.TokenIdentifier, errMsg)
	c.declareVariable()
	if c.fc.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme)
}

func (c *Compiler) defineVariable(global int) {
	if c.fc.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitIndexedOp(value.OpDefineGlobal, global)
}

// emitIndexedOp emits an opcode carrying a plain 1-byte operand. Locals,
// globals, and calls all use this form; only constant loads have a long
// (3-byte) encoding.
func (c *Compiler) emitIndexedOp(op value.OpCode, idx int) {
	c.emitBytes(op, byte(idx))
}

// resolveLocal searches the innermost function's locals from the top down.
// ok is false if no local with this name is in scope; uninitialized is true
// if a match was found but its declaration hasn't finished initializing
// (the "var x = x" self-reference case).
func (c *Compiler) resolveLocal(fc *funcCompiler, name string) (slot int, ok, uninitialized bool) {
	for i := fc.localCount - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			if fc.locals[i].depth == -1 {
				return i, true, true
			}
			return i, true, false
		}
	}
	return -1, false, false
}

// --- statements & declarations -------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(funcTypeFunction)
	c.defineVariable(global)
}

// function compiles a function's parameter list and body into a fresh
// nested funcCompiler, then emits the resulting function object as a
// constant in the enclosing chunk.
func (c *Compiler) function(kind funcType) {
	name := c.previous.Lexeme
	c.pushFuncCompiler(kind, name)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			if c.fc.function.Arity == maxParameters {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			c.fc.function.Arity++
			paramConst := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConst)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	fn := c.popFuncCompiler()
	c.emitConstant(value.Object(fn))
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenSwitch):
		c.switchStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(value.OpPrint)
}

func (c *Compiler) returnStatement() {
	if c.fc.kind == funcTypeScript {
		c.errorAtPrevious("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(value.OpReturn)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(value.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(value.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}
	c.endScope()
}

// switchStatement compiles case/default dispatch: every case guards its
// body with OpSwitchEqual + OpJumpIfFalse, balancing the comparison-bool
// pop on both the taken and fallen-through edges, and a trailing OpPop
// discards the discriminant once no case (or the default) can still match.
func (c *Compiler) switchStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'switch'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after switch expression.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before switch body.")

	var endJumps []int
	caseCount := 0
	sawDefault := false

	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		switch {
		case c.match(lexer.TokenCase):
			if sawDefault {
				c.errorAtPrevious("Can't have a case after the default case.")
			}
			caseCount++
			if caseCount > maxSwitchCases {
				c.errorAtPrevious("Too many cases in switch statement.")
			}
			c.expression()
			c.consume(lexer.TokenColon, "Expect ':' after case value.")

			c.emitOp(value.OpSwitchEqual)
			nextJump := c.emitJump(value.OpJumpIfFalse)
			c.emitOp(value.OpPop)
			for !c.check(lexer.TokenCase) && !c.check(lexer.TokenDefault) &&
				!c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
				c.declaration()
			}
			endJumps = append(endJumps, c.emitJump(value.OpJump))
			c.patchJump(nextJump)
			c.emitOp(value.OpPop)

		case c.match(lexer.TokenDefault):
			sawDefault = true
			c.consume(lexer.TokenColon, "Expect ':' after 'default'.")
			for !c.check(lexer.TokenCase) && !c.check(lexer.TokenDefault) &&
				!c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
				c.declaration()
			}

		default:
			c.errorAtCurrent("Expect 'case' or 'default'.")
			c.advance()
		}
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after switch body.")

	for _, jump := range endJumps {
		c.patchJump(jump)
	}
	c.emitOp(value.OpPop) // discriminant
}

// --- expressions ----------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	rule := getRule(c.previous.Kind)
	if rule.prefix == fnNone {
		c.errorAtPrevious("Expect expression.")
		return
	}
	canAssign := prec <= precAssignment
	c.dispatch(rule.prefix, canAssign)

	for prec <= getRule(c.current.Kind).prec {
		c.advance()
		c.dispatch(getRule(c.previous.Kind).infix, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) dispatch(fn parseFnKind, canAssign bool) {
	switch fn {
	case fnGrouping:
		c.grouping()
	case fnUnary:
		c.unary()
	case fnBinary:
		c.binary()
	case fnNumber:
		c.number()
	case fnString:
		c.string()
	case fnLiteral:
		c.literal()
	case fnVariable:
		c.variable(canAssign)
	case fnAnd:
		c.and()
	case fnOr:
		c.or()
	case fnCall:
		c.call()
	}
}

func (c *Compiler) grouping() {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) number() {
	n, err := strconv.ParseFloat(c.previous.Lexeme, 64)
	if err != nil {
		c.errorAtPrevious("Invalid number literal.")
		return
	}
	c.emitConstant(value.Number(n))
}

func (c *Compiler) string() {
	// Strip the surrounding quotes; bytes between them are taken literally,
	// no escape processing.
	raw := c.previous.Lexeme
	s := raw[1 : len(raw)-1]
	c.emitConstant(value.Object(c.interner.InternString(s)))
}

func (c *Compiler) literal() {
	switch c.previous.Kind {
	case lexer.TokenFalse:
		c.emitOp(value.OpFalse)
	case lexer.TokenTrue:
		c.emitOp(value.OpTrue)
	case lexer.TokenNil:
		c.emitOp(value.OpNil)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous.Lexeme, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	slot, found, uninitialized := c.resolveLocal(c.fc, name)
	var getOp, setOp value.OpCode
	var operand int
	if found {
		if uninitialized {
			c.errorAtPrevious("Can't read local variable in its own initializer.")
		}
		getOp, setOp = value.OpGetLocal, value.OpSetLocal
		operand = slot
	} else {
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
		operand = c.identifierConstant(name)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitIndexedOp(setOp, operand)
	} else {
		c.emitIndexedOp(getOp, operand)
	}
}

func (c *Compiler) unary() {
	kind := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch kind {
	case lexer.TokenMinus:
		c.emitOp(value.OpNegate)
	case lexer.TokenBang:
		c.emitOp(value.OpNot)
	}
}

func (c *Compiler) binary() {
	kind := c.previous.Kind
	rule := getRule(kind)
	c.parsePrecedence(rule.prec + 1)

	switch kind {
	case lexer.TokenBangEqual:
		c.emitOp(value.OpEqual)
		c.emitOp(value.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(value.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(value.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(value.OpLess)
		c.emitOp(value.OpNot)
	case lexer.TokenLess:
		c.emitOp(value.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(value.OpGreater)
		c.emitOp(value.OpNot)
	case lexer.TokenPlus:
		c.emitOp(value.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(value.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(value.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(value.OpDivide)
	}
}

func (c *Compiler) and() {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or() {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)
	c.patchJump(elseJump)
	c.emitOp(value.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) call() {
	argCount := c.argumentList()
	c.emitBytes(value.OpCall, byte(argCount))
}

func (c *Compiler) argumentList() int {
	count := 0
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == maxArguments {
				c.errorAtPrevious("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return count
}
