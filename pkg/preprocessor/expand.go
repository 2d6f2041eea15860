package preprocessor

import (
	"strings"

	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
)

func (p *Preprocessor) apply(m *Macro, start token.Token) {
	switch m.Kind {
	case ObjectLike:
		p.applyObjectLike(m, start)
	case FunctionLike:
		p.applyFunctionLike(m, start)
	}
}

// addSpecialMacro handles __LINE__, which expands to the line of the use
// site rather than of the token it replaces.
func (p *Preprocessor) addSpecialMacro(t, use token.Token) bool {
	if !t.IsIdent("__LINE__") || !p.cfg.IsFeatureEnabled(config.FeatLineMacro) {
		return false
	}
	p.emit(token.Token{Type: token.Number, Num: int64(use.Line()), Src: use.Src, Offset: use.Offset})
	return true
}

func (p *Preprocessor) applyObjectLike(m *Macro, start token.Token) {
	for _, t := range m.Body {
		if p.addSpecialMacro(t, start) {
			continue
		}
		p.emit(t)
	}
}

func (p *Preprocessor) applyFunctionLike(m *Macro, start token.Token) {
	p.get(token.LParen, "'(' expected after function-like macro name")
	args := p.readArgs(start)
	if len(args) != len(m.Params) {
		util.Fatal(util.DirectiveError, start, "macro '%s' expects %d arguments, got %d", m.Name, len(m.Params), len(args))
	}

	for _, t := range m.Body {
		if p.addSpecialMacro(t, start) {
			continue
		}
		if t.Type != token.Param {
			p.emit(t)
			continue
		}
		if t.Stringize {
			p.emit(stringize(args[t.Param], start))
			continue
		}
		p.emit(args[t.Param]...)
	}
}

func (p *Preprocessor) readArgs(start token.Token) [][]token.Token {
	var args [][]token.Token
	if p.consume(token.RParen) {
		return args
	}
	args = append(args, p.readOneArg(start))
	for !p.consume(token.RParen) {
		if p.eof() {
			util.Fatal(util.DirectiveError, start, "unclosed macro argument list")
		}
		p.get(token.Comma, "comma expected")
		args = append(args, p.readOneArg(start))
	}
	return args
}

// readOneArg collects tokens up to a ',' or ')' at nesting depth zero.
func (p *Preprocessor) readOneArg(start token.Token) []token.Token {
	var v []token.Token
	level := 0
	for !p.eof() {
		t, _ := p.peek()
		if level == 0 && (t.Type == token.RParen || t.Type == token.Comma) {
			return v
		}
		p.next()
		switch t.Type {
		case token.LParen:
			level++
		case token.RParen:
			level--
		case token.NewLine:
			continue
		}
		v = append(v, t)
	}
	util.Fatal(util.DirectiveError, start, "unclosed macro argument list")
	return nil
}

// stringize renders an argument as one string literal: each token's
// spelling, joined by single spaces.
func stringize(arg []token.Token, use token.Token) token.Token {
	parts := make([]string, len(arg))
	for i, t := range arg {
		parts[i] = t.Text()
	}
	return token.Token{Type: token.String, Value: strings.Join(parts, " "), Src: use.Src, Offset: use.Offset}
}
