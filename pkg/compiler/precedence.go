package compiler

import "github.com/kristofer/loxvm/pkg/lexer"

// precedence orders binding strength, low to high, for the Pratt parser.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

// parseFnKind tags which parsing routine a grammar slot dispatches to. A
// table of tagged kinds (rather than a table of function values) keeps the
// dispatcher a single switch, per the design note against higher-order
// parse-rule tables.
type parseFnKind int

const (
	fnNone parseFnKind = iota
	fnGrouping
	fnUnary
	fnBinary
	fnNumber
	fnString
	fnLiteral
	fnVariable
	fnAnd
	fnOr
	fnCall
)

// parseRule is the {prefix, infix, precedence} entry for one token kind.
type parseRule struct {
	prefix, infix parseFnKind
	prec          precedence
}

// rules is indexed by lexer.TokenKind. Token kinds with no entry (e.g.
// switch/case/default, which only ever appear in statement position) fall
// back to the zero value, {fnNone, fnNone, precNone}.
var rules = map[lexer.TokenKind]parseRule{
	lexer.TokenLeftParen:    {fnGrouping, fnCall, precCall},
	lexer.TokenMinus:        {fnUnary, fnBinary, precTerm},
	lexer.TokenPlus:         {fnNone, fnBinary, precTerm},
	lexer.TokenSlash:        {fnNone, fnBinary, precFactor},
	lexer.TokenStar:         {fnNone, fnBinary, precFactor},
	lexer.TokenBang:         {fnUnary, fnNone, precNone},
	lexer.TokenBangEqual:    {fnNone, fnBinary, precEquality},
	lexer.TokenEqualEqual:   {fnNone, fnBinary, precEquality},
	lexer.TokenGreater:      {fnNone, fnBinary, precComparison},
	lexer.TokenGreaterEqual: {fnNone, fnBinary, precComparison},
	lexer.TokenLess:         {fnNone, fnBinary, precComparison},
	lexer.TokenLessEqual:    {fnNone, fnBinary, precComparison},
	lexer.TokenIdentifier:   {fnVariable, fnNone, precNone},
	lexer.TokenString:       {fnString, fnNone, precNone},
	lexer.TokenNumber:       {fnNumber, fnNone, precNone},
	lexer.TokenAnd:          {fnNone, fnAnd, precAnd},
	lexer.TokenOr:           {fnNone, fnOr, precOr},
	lexer.TokenFalse:        {fnLiteral, fnNone, precNone},
	lexer.TokenTrue:         {fnLiteral, fnNone, precNone},
	lexer.TokenNil:          {fnLiteral, fnNone, precNone},
}

func getRule(kind lexer.TokenKind) parseRule {
	return rules[kind]
}
