package lexer

import (
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
)

type Lexer struct {
	src *token.Source
	pos int
	cfg *config.Config
}

func NewLexer(src *token.Source, cfg *config.Config) *Lexer {
	return &Lexer{src: src, cfg: cfg}
}

// Tokenize lexes a whole buffer. The result keeps NEWLINE tokens, which the
// preprocessor needs to find the end of directives, and ends with EOF.
func Tokenize(name string, content []byte, cfg *config.Config) (toks []token.Token, err error) {
	defer util.Recover(&err)

	l := NewLexer(token.NewSource(name, content), cfg)
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks, nil
		}
	}
}

// StripNewlines drops NEWLINE tokens once directives have been handled.
func StripNewlines(toks []token.Token) []token.Token {
	out := make([]token.Token, 0, len(toks))
	for _, t := range toks {
		if t.Type != token.NewLine {
			out = append(out, t)
		}
	}
	return out
}

func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespaceAndComments()
		start := l.pos

		if l.isAtEnd() {
			return l.makeToken(token.EOF, start)
		}

		ch := l.peek()
		if isIdentStart(ch) {
			return l.identifierOrKeyword(start)
		}
		if isDigit(ch) {
			return l.numberLiteral(start)
		}

		l.advance()
		switch ch {
		case '\n':
			return l.makeToken(token.NewLine, start)
		case '#':
			return l.makeToken(token.HashMark, start)
		case '(':
			return l.makeToken(token.LParen, start)
		case ')':
			return l.makeToken(token.RParen, start)
		case '{':
			return l.makeToken(token.LBrace, start)
		case '}':
			return l.makeToken(token.RBrace, start)
		case '[':
			return l.makeToken(token.LBracket, start)
		case ']':
			return l.makeToken(token.RBracket, start)
		case ';':
			return l.makeToken(token.Semi, start)
		case ',':
			return l.makeToken(token.Comma, start)
		case ':':
			return l.makeToken(token.Colon, start)
		case '?':
			return l.makeToken(token.Question, start)
		case '.':
			return l.makeToken(token.Dot, start)
		case '~':
			return l.makeToken(token.Complement, start)
		case '^':
			return l.makeToken(token.Xor, start)
		case '%':
			return l.makeToken(token.Rem, start)
		case '!':
			return l.matchThen('=', token.Neq, token.Not, start)
		case '=':
			return l.matchThen('=', token.EqEq, token.Eq, start)
		case '*':
			return l.matchThen('=', token.StarEq, token.Star, start)
		case '/':
			return l.matchThen('=', token.SlashEq, token.Slash, start)
		case '+':
			if l.match('+') {
				return l.makeToken(token.Inc, start)
			}
			return l.matchThen('=', token.PlusEq, token.Plus, start)
		case '-':
			if l.match('-') {
				return l.makeToken(token.Dec, start)
			}
			if l.match('>') {
				return l.makeToken(token.Arrow, start)
			}
			return l.matchThen('=', token.MinusEq, token.Minus, start)
		case '&':
			return l.matchThen('&', token.AndAnd, token.And, start)
		case '|':
			return l.matchThen('|', token.OrOr, token.Or, start)
		case '<':
			return l.matchThen('=', token.Lte, token.Lt, start)
		case '>':
			return l.matchThen('=', token.Gte, token.Gt, start)
		case '"':
			return l.stringLiteral(start)
		case '\'':
			return l.charLiteral(start)
		}

		util.Fatal(util.TokenError, l.makeToken(token.EOF, start), "unexpected character: '%c'", ch)
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.src.Content[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.src.Content) {
		return 0
	}
	return l.src.Content[l.pos+1]
}

func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}
	ch := l.src.Content[l.pos]
	l.pos++
	return ch
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.src.Content[l.pos] != expected {
		return false
	}
	l.pos++
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.src.Content) }

func (l *Lexer) makeToken(typ token.Type, start int) token.Token {
	return token.Token{Type: typ, Src: l.src, Offset: start, Len: l.pos - start}
}

func (l *Lexer) matchThen(expected byte, thenType, elseType token.Type, start int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, start)
	}
	return l.makeToken(elseType, start)
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\r', '\f', '\v':
			l.advance()
		case '\\':
			// line continuation
			if l.peekNext() != '\n' {
				return
			}
			l.advance()
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	start := l.pos
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	util.Fatal(util.TokenError, l.makeToken(token.EOF, start), "unterminated block comment")
}

func (l *Lexer) identifierOrKeyword(start int) token.Token {
	for isIdentStart(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	value := string(l.src.Content[start:l.pos])
	tok := l.makeToken(token.Ident, start)
	tok.Value = value

	if typ, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = typ
	}
	return tok
}

func (l *Lexer) numberLiteral(start int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		for isDigit(l.peek()) || (l.peek() >= 'a' && l.peek() <= 'f') || (l.peek() >= 'A' && l.peek() <= 'F') {
			l.advance()
		}
	} else {
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	tok := l.makeToken(token.Number, start)
	valueStr := string(l.src.Content[start:l.pos])
	base := 10
	if strings.HasPrefix(valueStr, "0x") || strings.HasPrefix(valueStr, "0X") {
		valueStr, base = valueStr[2:], 16
	} else if len(valueStr) > 1 && valueStr[0] == '0' {
		base = 8
	}
	val, err := strconv.ParseInt(valueStr, base, 64)
	if err != nil {
		util.Fatal(util.TokenError, tok, "invalid number literal: %s", tok.Text())
	}
	if val > math.MaxInt32 {
		util.Warn(l.cfg, config.WarnOverflow, tok, "integer constant %s does not fit in int", tok.Text())
	}
	tok.Num = val
	return tok
}

func (l *Lexer) stringLiteral(start int) token.Token {
	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.peek()
		if c == '\n' {
			break
		}
		if c == '"' {
			l.advance()
			tok := l.makeToken(token.String, start)
			tok.Value = sb.String()
			return tok
		}
		l.advance()
		if c == '\\' {
			sb.WriteByte(l.decodeEscape(start))
			continue
		}
		sb.WriteByte(c)
	}
	util.Fatal(util.TokenError, l.makeToken(token.String, start), "unterminated string literal")
	return token.Token{}
}

func (l *Lexer) charLiteral(start int) token.Token {
	if l.isAtEnd() {
		util.Fatal(util.TokenError, l.makeToken(token.Number, start), "unterminated character literal")
	}
	c := l.advance()
	if c == '\\' {
		c = l.decodeEscape(start)
	}
	tok := l.makeToken(token.Number, start)
	if !l.match('\'') {
		util.Fatal(util.TokenError, tok, "unterminated character literal")
	}
	tok.Len = l.pos - start
	tok.Num = int64(c)
	return tok
}

func (l *Lexer) decodeEscape(start int) byte {
	if l.isAtEnd() {
		util.Fatal(util.TokenError, l.makeToken(token.String, start), "unterminated escape sequence")
	}
	c := l.advance()

	if c >= '0' && c <= '7' {
		val := int(c - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			val = val*8 + int(l.advance()-'0')
		}
		return byte(val)
	}

	escapes := map[byte]byte{
		'n': '\n', 't': '\t', 'r': '\r', 'a': '\a', 'b': '\b', 'f': '\f', 'v': '\v',
		'e': 27, '\\': '\\', '\'': '\'', '"': '"', '?': '?',
	}
	if val, ok := escapes[c]; ok {
		return val
	}
	util.Warn(l.cfg, config.WarnExtra, l.makeToken(token.String, start), "unrecognized escape sequence '\\%c'", c)
	return c
}
