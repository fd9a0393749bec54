package compiler

// Precedence orders binding strength from loosest to tightest.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // ()
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

// ParseRule is the Pratt table entry for one token type.
type ParseRule struct {
	Prefix     parseFn
	Infix      parseFn
	Precedence Precedence
}

// rules is filled in init: its entries refer to methods that themselves read
// the table, which a static initializer would reject as a cycle.
var rules [tokenTypeCount]ParseRule

func init() {
	rules = [tokenTypeCount]ParseRule{
		TokenLeftParen:    {(*Compiler).grouping, (*Compiler).call, PrecCall},
		TokenMinus:        {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		TokenPlus:         {nil, (*Compiler).binary, PrecTerm},
		TokenSlash:        {nil, (*Compiler).binary, PrecFactor},
		TokenStar:         {nil, (*Compiler).binary, PrecFactor},
		TokenBang:         {(*Compiler).unary, nil, PrecNone},
		TokenBangEqual:    {nil, (*Compiler).binary, PrecEquality},
		TokenEqualEqual:   {nil, (*Compiler).binary, PrecEquality},
		TokenGreater:      {nil, (*Compiler).binary, PrecComparison},
		TokenGreaterEqual: {nil, (*Compiler).binary, PrecComparison},
		TokenLess:         {nil, (*Compiler).binary, PrecComparison},
		TokenLessEqual:    {nil, (*Compiler).binary, PrecComparison},
		TokenIdentifier:   {(*Compiler).variable, nil, PrecNone},
		TokenString:       {(*Compiler).stringLiteral, nil, PrecNone},
		TokenNumber:       {(*Compiler).number, nil, PrecNone},
		TokenAnd:          {nil, (*Compiler).and, PrecAnd},
		TokenOr:           {nil, (*Compiler).or, PrecOr},
		TokenFalse:        {(*Compiler).literal, nil, PrecNone},
		TokenNil:          {(*Compiler).literal, nil, PrecNone},
		TokenTrue:         {(*Compiler).literal, nil, PrecNone},
		TokenThis:         {(*Compiler).this, nil, PrecNone},
		TokenSuper:        {(*Compiler).super, nil, PrecNone},
	}
}

func getRule(typ TokenType) *ParseRule {
	return &rules[typ]
}
