package gdbvalue

import (
	"math"
	"math/big"
	"regexp"
	"strconv"

	"github.com/alecthomas/participle/v2/lexer"
)

// valueLexer tries its rules in order at each position, so the float rule
// must precede the integer rule and the protocol-error sentences must
// precede bare identifiers.
var valueLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Punct", Pattern: `[,{}=]`},
	{Name: "Hex", Pattern: `0x[0-9a-fA-F]+`},
	{Name: "Float", Pattern: `-?\d*\.\d+(?:[eE][-+]?\d+)?`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "NaN", Pattern: `-?nan\(0x[0-9a-f]+\)`},
	{Name: "NegInf", Pattern: `-inf`},
	{Name: "Repeat", Pattern: `<repeats \d+ times>`},
	{Name: "CouldNotFetch", Pattern: `Could not fetch register "\w+"; [^\n]*`},
	{Name: "CannotAccess", Pattern: `Cannot access memory at address 0x[0-9a-f]+`},
	{Name: "CannotInsert", Pattern: `Cannot insert breakpoint \d+\.`},
	{Name: "NoSymbol", Pattern: `No symbol "\w+" in current context\.`},
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Junk", Pattern: `(?s).`},
})

// TokenKind classifies a Token.
type TokenKind int

const (
	TokenPunct TokenKind = iota
	TokenNumber
	TokenString
	TokenIdent
	TokenRepeat
	TokenError
)

// Token is one lexical element of gdb output.
type Token struct {
	Kind   TokenKind
	Text   string
	Offset int
	// Value is set for numbers, strings and identifiers.
	Value Value
	// Count is set for TokenRepeat.
	Count int
	// Err is set for TokenError.
	Err error
}

var repeatRe = regexp.MustCompile(`<repeats (\d+) times>`)

var tokenTypes = valueLexer.Symbols()

// Tokenize splits text into tokens, dropping whitespace. Text no rule
// accepts yields a *ParseError.
func Tokenize(text string) ([]Token, error) {
	lex, err := valueLexer.LexString("", text)
	if err != nil {
		return nil, &ParseError{Input: text, Msg: err.Error()}
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, &ParseError{Input: text, Msg: err.Error()}
	}

	toks := make([]Token, 0, len(raw))
	for _, r := range raw {
		if r.EOF() || r.Type == tokenTypes["Whitespace"] {
			continue
		}
		tok := Token{Text: r.Value, Offset: r.Pos.Offset}
		switch r.Type {
		case tokenTypes["Punct"]:
			tok.Kind = TokenPunct
		case tokenTypes["Hex"]:
			n, ok := new(big.Int).SetString(r.Value[2:], 16)
			if !ok {
				return nil, &ParseError{Input: text, Offset: tok.Offset, Msg: "bad hex literal"}
			}
			tok.Kind, tok.Value = TokenNumber, Value{Kind: KindInt, Int: n}
		case tokenTypes["Float"]:
			f, err := strconv.ParseFloat(r.Value, 64)
			if err != nil {
				return nil, &ParseError{Input: text, Offset: tok.Offset, Msg: "bad float literal"}
			}
			tok.Kind, tok.Value = TokenNumber, FloatValue(f)
		case tokenTypes["Int"]:
			n, ok := new(big.Int).SetString(r.Value, 10)
			if !ok {
				return nil, &ParseError{Input: text, Offset: tok.Offset, Msg: "bad integer literal"}
			}
			tok.Kind, tok.Value = TokenNumber, Value{Kind: KindInt, Int: n}
		case tokenTypes["NaN"]:
			tok.Kind, tok.Value = TokenNumber, FloatValue(math.NaN())
		case tokenTypes["NegInf"]:
			tok.Kind, tok.Value = TokenNumber, FloatValue(math.Inf(-1))
		case tokenTypes["Repeat"]:
			n, _ := strconv.Atoi(repeatRe.FindStringSubmatch(r.Value)[1])
			tok.Kind, tok.Count = TokenRepeat, n
		case tokenTypes["CouldNotFetch"], tokenTypes["CannotAccess"],
			tokenTypes["CannotInsert"], tokenTypes["NoSymbol"]:
			tok.Kind, tok.Err = TokenError, FindProtocolError(r.Value)
		case tokenTypes["String"]:
			tok.Kind, tok.Value = TokenString, StringValue(r.Value[1:len(r.Value)-1])
		case tokenTypes["Ident"]:
			tok.Kind, tok.Value = TokenIdent, StringValue(r.Value)
			if r.Value == "inf" {
				tok.Kind, tok.Value = TokenNumber, FloatValue(math.Inf(1))
			}
		default:
			return nil, &ParseError{Input: text, Offset: tok.Offset, Msg: "unexpected character"}
		}
		toks = append(toks, tok)
	}
	return toks, nil
}
