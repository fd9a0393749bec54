package compiler

import (
	"fmt"
	"strconv"

	"github.com/chazu/lox/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("lox.compiler")

const (
	maxLocals   = 256
	maxUpvalues = 256
	maxArgs     = 255
	maxJump     = 0xFFFF
)

// FunctionType distinguishes the top-level script from declared functions.
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeScript
)

// local is a variable resolved to a stack slot. depth is -1 between
// declaration and the end of its initializer.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   uint8
	isLocal bool
}

// funcState tracks the function currently being compiled. Nested function
// declarations push a new state linked to the enclosing one.
type funcState struct {
	enclosing *funcState
	function  *vm.Function
	typ       FunctionType

	locals     [maxLocals]local
	localCount int
	upvalues   [maxUpvalues]upvalueRef
	scopeDepth int

	// returnsResult is set once a trailing script expression has emitted its
	// own OpReturn.
	returnsResult bool
}

// parser holds the token window and error state for one compilation.
type parser struct {
	scanner     *Scanner
	current     Token
	previous    Token
	hadError    bool
	panicMode   bool
	diagnostics []vm.Diagnostic
}

// Compiler compiles one source text in a single pass, emitting bytecode
// directly while parsing. A Compiler is used once and discarded.
type Compiler struct {
	parser parser
	heap   *vm.Heap
	fs     *funcState

	// nesting counts enclosing if/while bodies, where an unterminated
	// expression is never the script result.
	nesting int
}

// Compile compiles source into the top-level script function. String
// literals and identifiers are interned through heap. On any error it
// returns nil and a *vm.CompileError holding every diagnostic.
func Compile(source string, heap *vm.Heap) (*vm.Function, error) {
	c := &Compiler{heap: heap}
	c.parser.scanner = NewScanner(source)
	c.beginFunction(TypeScript)

	c.advance()
	for !c.match(TokenEOF) {
		c.declaration()
	}
	fn := c.endFunction()

	if c.parser.hadError {
		log.Debugf("compile failed with %d diagnostic(s)", len(c.parser.diagnostics))
		return nil, &vm.CompileError{Diagnostics: c.parser.diagnostics}
	}
	return fn, nil
}

// Check compiles source against a scratch heap and returns its diagnostics,
// or nil if it compiles cleanly.
func Check(source string) []vm.Diagnostic {
	_, err := Compile(source, vm.NewHeap())
	if ce, ok := err.(*vm.CompileError); ok {
		return ce.Diagnostics
	}
	return nil
}

// ---------------------------------------------------------------------------
// Token window
// ---------------------------------------------------------------------------

func (c *Compiler) advance() {
	c.parser.previous = c.parser.current
	for {
		c.parser.current = c.parser.scanner.ScanToken()
		if c.parser.current.Type != TokenError {
			break
		}
		c.errorAtCurrent(c.parser.current.Lexeme)
	}
}

func (c *Compiler) consume(typ TokenType, message string) {
	if c.parser.current.Type == typ {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(typ TokenType) bool {
	return c.parser.current.Type == typ
}

func (c *Compiler) match(typ TokenType) bool {
	if !c.check(typ) {
		return false
	}
	c.advance()
	return true
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (c *Compiler) error(message string) {
	c.errorAt(c.parser.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.parser.current, message)
}

// errorAt records a diagnostic unless the parser is already recovering from
// an earlier error in the same statement.
func (c *Compiler) errorAt(tok Token, message string) {
	if c.parser.panicMode {
		return
	}
	c.parser.panicMode = true

	d := vm.Diagnostic{Line: tok.Line, Message: message}
	switch tok.Type {
	case TokenEOF:
		d.Where = " at end"
	case TokenError:
		// Scanner errors carry the message as the lexeme.
	default:
		d.Where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.parser.diagnostics = append(c.parser.diagnostics, d)
	c.parser.hadError = true
}

// synchronize skips tokens until a likely statement boundary.
func (c *Compiler) synchronize() {
	c.parser.panicMode = false

	for c.parser.current.Type != TokenEOF {
		if c.parser.previous.Type == TokenSemicolon {
			return
		}
		switch c.parser.current.Type {
		case TokenClass, TokenFun, TokenVar, TokenFor, TokenIf,
			TokenWhile, TokenPrint, TokenReturn:
			return
		}
		c.advance()
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (c *Compiler) currentChunk() *vm.Chunk {
	return c.fs.function.Chunk
}

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.parser.previous.Line)
}

func (c *Compiler) emitOp(op vm.Opcode) {
	c.emitByte(byte(op))
}

func (c *Compiler) emitOpByte(op vm.Opcode, operand byte) {
	c.emitByte(byte(op))
	c.emitByte(operand)
}

func (c *Compiler) emitReturn() {
	c.emitOp(vm.OpNil)
	c.emitOp(vm.OpReturn)
}

func (c *Compiler) makeConstant(value vm.Value) byte {
	idx := c.currentChunk().AddConstant(value)
	if idx >= vm.MaxConstants {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(value vm.Value) {
	c.emitOpByte(vm.OpConstant, c.makeConstant(value))
}

// emitJump emits op with a placeholder offset and returns the placeholder's
// position for patchJump.
func (c *Compiler) emitJump(op vm.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xFF)
	c.emitByte(0xFF)
	return c.currentChunk().Len() - 2
}

func (c *Compiler) patchJump(offset int) {
	// -2 adjusts for the operand itself.
	jump := c.currentChunk().Len() - offset - 2
	if jump > maxJump {
		c.error("Too much code to jump over.")
	}
	code := c.currentChunk().Code
	code[offset] = byte(jump >> 8)
	code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(vm.OpLoop)
	offset := c.currentChunk().Len() - loopStart + 2
	if offset > maxJump {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// ---------------------------------------------------------------------------
// Functions and scopes
// ---------------------------------------------------------------------------

func (c *Compiler) beginFunction(typ FunctionType) {
	fs := &funcState{
		enclosing: c.fs,
		function:  c.heap.NewFunction(),
		typ:       typ,
	}
	if typ != TypeScript {
		fs.function.Name = c.heap.CopyString(c.parser.previous.Lexeme)
	}
	// Slot zero holds the callee.
	fs.locals[0] = local{depth: 0}
	fs.localCount = 1
	c.fs = fs
}

func (c *Compiler) endFunction() *vm.Function {
	if !c.fs.returnsResult {
		c.emitReturn()
	}
	fn := c.fs.function
	if !c.parser.hadError && log.AllowLevel(commonlog.Debug) {
		log.Debugf("%s", fn.Chunk.Disassemble(fn.DisplayName()))
	}
	c.fs = c.fs.enclosing
	return fn
}

func (c *Compiler) beginScope() {
	c.fs.scopeDepth++
}

func (c *Compiler) endScope() {
	fs := c.fs
	fs.scopeDepth--
	for fs.localCount > 0 && fs.locals[fs.localCount-1].depth > fs.scopeDepth {
		if fs.locals[fs.localCount-1].isCaptured {
			c.emitOp(vm.OpCloseUpvalue)
		} else {
			c.emitOp(vm.OpPop)
		}
		fs.localCount--
	}
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(vm.ObjectValue(c.heap.CopyString(name)))
}

func (c *Compiler) resolveLocal(fs *funcState, name string) int {
	for i := fs.localCount - 1; i >= 0; i-- {
		l := &fs.locals[i]
		if l.name == name {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fs *funcState, index uint8, isLocal bool) int {
	count := fs.function.UpvalueCount
	for i := 0; i < count; i++ {
		up := fs.upvalues[i]
		if up.index == index && up.isLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		c.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues[count] = upvalueRef{index: index, isLocal: isLocal}
	fs.function.UpvalueCount++
	return count
}

// resolveUpvalue looks name up in the enclosing functions, threading an
// upvalue through every function between the definition and this one.
func (c *Compiler) resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if l := c.resolveLocal(fs.enclosing, name); l != -1 {
		fs.enclosing.locals[l].isCaptured = true
		return c.addUpvalue(fs, uint8(l), true)
	}
	if up := c.resolveUpvalue(fs.enclosing, name); up != -1 {
		return c.addUpvalue(fs, uint8(up), false)
	}
	return -1
}

func (c *Compiler) addLocal(name string) {
	if c.fs.localCount == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals[c.fs.localCount] = local{name: name, depth: -1}
	c.fs.localCount++
}

func (c *Compiler) declareVariable() {
	fs := c.fs
	if fs.scopeDepth == 0 {
		return
	}
	name := c.parser.previous.Lexeme
	for i := fs.localCount - 1; i >= 0; i-- {
		l := &fs.locals[i]
		if l.depth != -1 && l.depth < fs.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(message string) byte {
	c.consume(TokenIdentifier, message)
	c.declareVariable()
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.parser.previous.Lexeme)
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[c.fs.localCount-1].depth = c.fs.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(vm.OpDefineGlobal, global)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp vm.Opcode
	var arg int

	if arg = c.resolveLocal(c.fs, name); arg != -1 {
		getOp, setOp = vm.OpGetLocal, vm.OpSetLocal
	} else if arg = c.resolveUpvalue(c.fs, name); arg != -1 {
		getOp, setOp = vm.OpGetUpvalue, vm.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = vm.OpGetGlobal, vm.OpSetGlobal
	}

	if canAssign && c.match(TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (c *Compiler) declaration() {
	switch {
	case c.match(TokenFun):
		c.funDeclaration()
	case c.match(TokenVar):
		c.varDeclaration()
	case c.match(TokenClass):
		c.error("Class declarations are not supported.")
	default:
		c.statement()
	}

	if c.parser.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	// A function may refer to itself, so it is initialized before its body.
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

func (c *Compiler) function(typ FunctionType) {
	c.beginFunction(typ)
	c.beginScope()

	c.consume(TokenLeftParen, "Expect '(' after function name.")
	if !c.check(TokenRightParen) {
		for {
			c.fs.function.Arity++
			if c.fs.function.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after parameters.")
	c.consume(TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	fs := c.fs
	fn := c.endFunction()
	c.emitOpByte(vm.OpClosure, c.makeConstant(vm.ObjectValue(fn)))
	for i := 0; i < fn.UpvalueCount; i++ {
		if fs.upvalues[i].isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(fs.upvalues[i].index)
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(TokenEqual) {
		c.expression()
	} else {
		c.emitOp(vm.OpNil)
	}
	c.consume(TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) statement() {
	switch {
	case c.match(TokenPrint):
		c.printStatement()
	case c.match(TokenFor):
		c.forStatement()
	case c.match(TokenIf):
		c.ifStatement()
	case c.match(TokenReturn):
		c.returnStatement()
	case c.match(TokenWhile):
		c.whileStatement()
	case c.match(TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(TokenRightBrace) && !c.check(TokenEOF) {
		c.declaration()
	}
	c.consume(TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after value.")
	c.emitOp(vm.OpPrint)
}

// expressionStatement compiles an expression and discards its value. A
// top-level expression that ends the source without a ';' is instead the
// script's result.
func (c *Compiler) expressionStatement() {
	c.expression()
	if c.fs.typ == TypeScript && c.fs.scopeDepth == 0 && c.nesting == 0 && c.check(TokenEOF) {
		c.emitOp(vm.OpReturn)
		c.fs.returnsResult = true
		return
	}
	c.consume(TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(vm.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.nestedStatement()

	elseJump := c.emitJump(vm.OpJump)
	c.patchJump(thenJump)
	c.emitOp(vm.OpPop)

	if c.match(TokenElse) {
		c.nestedStatement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := c.currentChunk().Len()
	c.consume(TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.nestedStatement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(vm.OpPop)
}

func (c *Compiler) nestedStatement() {
	c.nesting++
	c.statement()
	c.nesting--
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(TokenLeftParen, "Expect '(' after 'for'.")
	switch {
	case c.match(TokenSemicolon):
		// No initializer.
	case c.match(TokenVar):
		c.varDeclaration()
	default:
		c.expression()
		c.consume(TokenSemicolon, "Expect ';' after expression.")
		c.emitOp(vm.OpPop)
	}

	loopStart := c.currentChunk().Len()
	exitJump := -1
	if !c.match(TokenSemicolon) {
		c.expression()
		c.consume(TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(vm.OpJumpIfFalse)
		c.emitOp(vm.OpPop)
	}

	if !c.match(TokenRightParen) {
		bodyJump := c.emitJump(vm.OpJump)
		incrementStart := c.currentChunk().Len()
		c.expression()
		c.emitOp(vm.OpPop)
		c.consume(TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(vm.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.fs.typ == TypeScript {
		c.error("Can't return from top-level code.")
	}
	if c.match(TokenSemicolon) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(vm.OpReturn)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

// parsePrecedence parses any expression whose operators bind at least as
// tightly as prec.
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.parser.previous.Type).Prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.parser.current.Type).Precedence {
		c.advance()
		infix := getRule(c.parser.previous.Type).Infix
		infix(c, canAssign)
	}

	if canAssign && c.match(TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) number(canAssign bool) {
	n, err := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(vm.NumberValue(n))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	lexeme := c.parser.previous.Lexeme
	s := c.heap.CopyString(lexeme[1 : len(lexeme)-1])
	c.emitConstant(vm.ObjectValue(s))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.parser.previous.Type {
	case TokenFalse:
		c.emitOp(vm.OpFalse)
	case TokenNil:
		c.emitOp(vm.OpNil)
	case TokenTrue:
		c.emitOp(vm.OpTrue)
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.parser.previous.Lexeme, canAssign)
}

func (c *Compiler) unary(canAssign bool) {
	operator := c.parser.previous.Type
	c.parsePrecedence(PrecUnary)

	switch operator {
	case TokenBang:
		c.emitOp(vm.OpNot)
	case TokenMinus:
		c.emitOp(vm.OpNegate)
	}
}

func (c *Compiler) binary(canAssign bool) {
	operator := c.parser.previous.Type
	rule := getRule(operator)
	// One level higher makes binary operators left-associative.
	c.parsePrecedence(rule.Precedence + 1)

	switch operator {
	case TokenBangEqual:
		c.emitOp(vm.OpEqual)
		c.emitOp(vm.OpNot)
	case TokenEqualEqual:
		c.emitOp(vm.OpEqual)
	case TokenGreater:
		c.emitOp(vm.OpGreater)
	case TokenGreaterEqual:
		c.emitOp(vm.OpLess)
		c.emitOp(vm.OpNot)
	case TokenLess:
		c.emitOp(vm.OpLess)
	case TokenLessEqual:
		c.emitOp(vm.OpGreater)
		c.emitOp(vm.OpNot)
	case TokenPlus:
		c.emitOp(vm.OpAdd)
	case TokenMinus:
		c.emitOp(vm.OpSubtract)
	case TokenStar:
		c.emitOp(vm.OpMultiply)
	case TokenSlash:
		c.emitOp(vm.OpDivide)
	}
}

func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitOp(vm.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(vm.OpJumpIfFalse)
	endJump := c.emitJump(vm.OpJump)

	c.patchJump(elseJump)
	c.emitOp(vm.OpPop)

	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argc := c.argumentList()
	c.emitOpByte(vm.OpCall, argc)
}

func (c *Compiler) argumentList() byte {
	argc := 0
	if !c.check(TokenRightParen) {
		for {
			c.expression()
			if argc == maxArgs {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(TokenComma) {
				break
			}
		}
	}
	c.consume(TokenRightParen, "Expect ')' after arguments.")
	return byte(argc)
}

func (c *Compiler) this(canAssign bool) {
	c.error("Can't use 'this' outside of a class.")
}

func (c *Compiler) super(canAssign bool) {
	c.error("Can't use 'super' outside of a class.")
}
