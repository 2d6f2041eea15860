package token

import (
	"strconv"

	mtoken "modernc.org/token"
)

type Type int

const (
	EOF Type = iota
	Ident
	Number
	String
	NewLine
	HashMark
	Param // positional macro parameter placeholder
	Int
	Char
	Void
	Struct
	Typedef
	Extern
	If
	Else
	For
	Do
	While
	Return
	Sizeof
	Alignof
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Question
	Dot
	Arrow
	Eq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Not
	Complement
	Lt
	Gt
	Lte
	Gte
	EqEq
	Neq
	AndAnd
	OrOr
	Inc
	Dec
	PlusEq
	MinusEq
	StarEq
	SlashEq
)

var KeywordMap = map[string]Type{
	"int":      Int,
	"char":     Char,
	"void":     Void,
	"struct":   Struct,
	"typedef":  Typedef,
	"extern":   Extern,
	"if":       If,
	"else":     Else,
	"for":      For,
	"do":       Do,
	"while":    While,
	"return":   Return,
	"sizeof":   Sizeof,
	"_Alignof": Alignof,
}

var punctStrings = map[Type]string{
	NewLine: "\n", HashMark: "#",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Question: "?", Dot: ".", Arrow: "->", Eq: "=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", And: "&", Or: "|", Xor: "^",
	Not: "!", Complement: "~", Lt: "<", Gt: ">", Lte: "<=", Gte: ">=", EqEq: "==", Neq: "!=",
	AndAnd: "&&", OrOr: "||", Inc: "++", Dec: "--",
	PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=",
}

// Reverse mapping from Type to the keyword or punctuator spelling
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

// Source is one lexed input buffer. Tokens point back to it for
// positions and for their literal spelling.
type Source struct {
	Name    string
	Content []byte
	lines   *mtoken.File
}

func NewSource(name string, content []byte) *Source {
	f := mtoken.NewFile(name, len(content))
	for i, c := range content {
		if c == '\n' && i+1 < len(content) {
			f.AddLine(i + 1)
		}
	}
	return &Source{Name: name, Content: content, lines: f}
}

// Position maps a byte offset into the source to file:line:column.
func (s *Source) Position(offset int) mtoken.Position {
	if s == nil || s.lines == nil {
		return mtoken.Position{}
	}
	if offset > len(s.Content) {
		offset = len(s.Content)
	}
	return s.lines.Position(s.lines.Pos(offset))
}

// LineText returns the full text of the line containing offset.
func (s *Source) LineText(offset int) string {
	if s == nil || offset > len(s.Content) {
		return ""
	}
	start := offset
	for start > 0 && s.Content[start-1] != '\n' {
		start--
	}
	end := offset
	for end < len(s.Content) && s.Content[end] != '\n' {
		end++
	}
	return string(s.Content[start:end])
}

// Token identity is positional: two tokens with equal spelling are still
// distinct values.
type Token struct {
	Type      Type
	Value     string // identifier name or decoded string literal
	Num       int64
	Param     int  // index for Param placeholders
	Stringize bool // Param placeholder preceded by '#' in a macro body
	Src       *Source
	Offset    int
	Len       int
}

func (t Token) Position() mtoken.Position {
	pos := t.Src.Position(t.Offset)
	if t.Src == nil {
		pos.Filename = "<builtin>"
	}
	return pos
}

func (t Token) Line() int { return t.Position().Line }

// Text is the literal spelling of the token as written in its source.
// Synthesized tokens render from their value.
func (t Token) Text() string {
	if t.Src != nil && t.Len > 0 && t.Offset+t.Len <= len(t.Src.Content) {
		return string(t.Src.Content[t.Offset : t.Offset+t.Len])
	}
	switch t.Type {
	case Ident:
		return t.Value
	case Number:
		return strconv.FormatInt(t.Num, 10)
	case String:
		return strconv.Quote(t.Value)
	case Param:
		return "$" + strconv.Itoa(t.Param)
	case EOF:
		return "<eof>"
	}
	return TypeStrings[t.Type]
}

func (t Token) Is(typ Type) bool { return t.Type == typ }

// IsIdent reports whether t is the identifier name.
func (t Token) IsIdent(name string) bool { return t.Type == Ident && t.Value == name }
