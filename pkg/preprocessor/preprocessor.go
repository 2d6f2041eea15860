// Package preprocessor expands macros and file inclusions over a token
// stream produced by the lexer.
//
// Substitution is single pass: tokens spliced in from a macro body or a
// macro argument are never rescanned for further expansion.
package preprocessor

import (
	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
	"tlog.app/go/tlog"
)

type MacroKind int

const (
	ObjectLike MacroKind = iota
	FunctionLike
)

type Macro struct {
	Name   string
	Kind   MacroKind
	Params []string
	Body   []token.Token // parameter uses already rewritten to token.Param
	Def    token.Token
}

// Loader reads and lexes the file named by an #include directive. from is
// the source containing the directive.
type Loader interface {
	Load(path string, from *token.Source) ([]token.Token, error)
}

// frame is one active inclusion or expansion scope.
type frame struct {
	input  []token.Token
	pos    int
	output []token.Token
	hash   uint64 // content hash of the file, 0 when the tokens carry no source
}

type Preprocessor struct {
	cfg    *config.Config
	loader Loader
	macros map[string]*Macro
	frames []*frame
}

// New returns a preprocessor with an empty macro table. The table persists
// across Preprocess calls on the same value.
func New(cfg *config.Config, loader Loader) *Preprocessor {
	return &Preprocessor{cfg: cfg, loader: loader, macros: make(map[string]*Macro)}
}

func (p *Preprocessor) Macro(name string) (*Macro, bool) {
	m, ok := p.macros[name]
	return m, ok
}

// Preprocess runs directives and macro expansion over toks. A trailing EOF
// token in the input is kept at the end of the output.
func (p *Preprocessor) Preprocess(toks []token.Token) (out []token.Token, err error) {
	depth := len(p.frames)
	defer func() {
		if err != nil {
			p.frames = p.frames[:depth]
			out = nil
		}
	}()
	defer util.Recover(&err)

	var hash uint64
	if n := len(toks); n > 0 && toks[n-1].Src != nil {
		hash = xxhash.Sum64(toks[n-1].Src.Content)
	}
	out = p.run(toks, hash)
	if n := len(toks); n > 0 && toks[n-1].Type == token.EOF {
		out = append(out, toks[n-1])
	}
	return out, nil
}

func (p *Preprocessor) run(toks []token.Token, hash uint64) []token.Token {
	p.frames = append(p.frames, &frame{input: toks, hash: hash})

	for !p.eof() {
		t := p.next()

		if t.Type == token.Ident {
			if m, ok := p.macros[t.Value]; ok {
				p.apply(m, t)
				continue
			}
			if p.addSpecialMacro(t, t) {
				continue
			}
			p.emit(t)
			continue
		}

		if t.Type != token.HashMark {
			p.emit(t)
			continue
		}

		if p.consume(token.NewLine) {
			continue
		}
		name := p.get(token.Ident, "identifier expected")
		switch name.Value {
		case "define":
			p.define()
		case "include":
			p.include()
		default:
			util.Fatal(util.DirectiveError, name, "unknown directive: #%s", name.Value)
		}
	}

	f := p.cur()
	p.frames = p.frames[:len(p.frames)-1]
	return f.output
}

func (p *Preprocessor) cur() *frame { return p.frames[len(p.frames)-1] }

func (p *Preprocessor) emit(toks ...token.Token) {
	f := p.cur()
	f.output = append(f.output, toks...)
}

func (p *Preprocessor) eof() bool {
	f := p.cur()
	return f.pos >= len(f.input) || f.input[f.pos].Type == token.EOF
}

// lastTok is used to position errors at end of input.
func (p *Preprocessor) lastTok() token.Token {
	f := p.cur()
	if f.pos < len(f.input) {
		return f.input[f.pos]
	}
	if len(f.input) > 0 {
		return f.input[len(f.input)-1]
	}
	return token.Token{Type: token.EOF}
}

func (p *Preprocessor) peek() (token.Token, bool) {
	if p.eof() {
		return token.Token{}, false
	}
	f := p.cur()
	return f.input[f.pos], true
}

func (p *Preprocessor) next() token.Token {
	t, _ := p.peek()
	p.cur().pos++
	return t
}

func (p *Preprocessor) consume(typ token.Type) bool {
	if t, ok := p.peek(); ok && t.Type == typ {
		p.cur().pos++
		return true
	}
	return false
}

func (p *Preprocessor) get(typ token.Type, msg string) token.Token {
	t, ok := p.peek()
	if !ok {
		util.Fatal(util.TokenError, p.lastTok(), "%s, got end of input", msg)
	}
	if t.Type != typ {
		util.Fatal(util.TokenError, t, "%s, got '%s'", msg, t.Text())
	}
	p.cur().pos++
	return t
}

func (p *Preprocessor) readUntilEOL() []token.Token {
	var v []token.Token
	for !p.eof() {
		t := p.next()
		if t.Type == token.NewLine {
			break
		}
		v = append(v, t)
	}
	return v
}

func (p *Preprocessor) define() {
	name := p.get(token.Ident, "macro name expected")

	m := &Macro{Name: name.Value, Def: name}
	// Only a '(' written directly after the name starts a parameter list.
	if t, ok := p.peek(); ok && t.Type == token.LParen && t.Src == name.Src && t.Offset == name.Offset+name.Len {
		p.next()
		m.Kind = FunctionLike
		m.Params = p.readParams()
	}
	m.Body = p.readUntilEOL()
	if m.Kind == FunctionLike {
		m.Body = replaceParams(m.Params, m.Body)
	}

	if _, exists := p.macros[m.Name]; exists {
		util.Warn(p.cfg, config.WarnMacroRedefined, name, "'%s' redefined", m.Name)
	}
	p.macros[m.Name] = m
	tlog.V("pp").Printw("define", "name", m.Name, "kind", m.Kind, "params", len(m.Params), "body", len(m.Body))
}

func (p *Preprocessor) readParams() []string {
	var params []string
	if p.consume(token.RParen) {
		return params
	}
	params = append(params, p.get(token.Ident, "parameter name expected").Value)
	for !p.consume(token.RParen) {
		p.get(token.Comma, "comma expected")
		params = append(params, p.get(token.Ident, "parameter name expected").Value)
	}
	return params
}

// replaceParams rewrites parameter names in a function-like macro body to
// positional placeholders and folds a preceding '#' into a stringize flag.
func replaceParams(params []string, body []token.Token) []token.Token {
	index := make(map[string]int, len(params))
	for i, name := range params {
		index[name] = i
	}

	out := make([]token.Token, 0, len(body))
	for i := 0; i < len(body); i++ {
		t := body[i]
		if t.Type == token.HashMark {
			if i+1 >= len(body) || body[i+1].Type != token.Ident {
				util.Fatal(util.DirectiveError, t, "'#' is not followed by a macro parameter")
			}
			n, ok := index[body[i+1].Value]
			if !ok {
				util.Fatal(util.DirectiveError, body[i+1], "'#' is not followed by a macro parameter")
			}
			param := body[i+1]
			param.Type, param.Param, param.Stringize = token.Param, n, true
			out = append(out, param)
			i++
			continue
		}
		if t.Type == token.Ident {
			if n, ok := index[t.Value]; ok {
				t.Type, t.Param = token.Param, n
			}
		}
		out = append(out, t)
	}
	return out
}

func (p *Preprocessor) include() {
	path := p.get(token.String, "string expected")
	if !p.eof() {
		p.get(token.NewLine, "newline expected")
	}
	if !p.cfg.IsFeatureEnabled(config.FeatInclude) {
		util.Fatal(util.DirectiveError, path, "#include is disabled")
	}
	if p.loader == nil {
		util.Fatal(util.DirectiveError, path, "no loader configured for #include \"%s\"", path.Value)
	}

	toks, err := p.loader.Load(path.Value, path.Src)
	if err != nil {
		if e, ok := util.AsError(err); ok {
			panic(e)
		}
		util.Fatal(util.DirectiveError, path, "cannot include \"%s\": %v", path.Value, err)
	}

	var hash uint64
	if n := len(toks); n > 0 && toks[n-1].Src != nil {
		hash = xxhash.Sum64(toks[n-1].Src.Content)
	}
	for _, f := range p.frames {
		if f.hash != 0 && f.hash == hash {
			util.Fatal(util.DirectiveError, path, "recursive inclusion of \"%s\"", path.Value)
		}
	}

	p.emit(p.run(toks, hash)...)
}
