// Package compiler ties the passes together. A Unit owns every piece of
// mutable state of one compilation, so independent units never interact.
package compiler

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/codegen"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/ir"
	"github.com/xplshn/ccfront/pkg/lexer"
	"github.com/xplshn/ccfront/pkg/preprocessor"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/typeChecker"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// Parser turns a preprocessed token stream into top-level declarations.
// It is supplied by the caller.
type Parser interface {
	Parse(ctx context.Context, toks []token.Token) ([]*ast.Node, error)
}

type Unit struct {
	Cfg *config.Config

	pp  *preprocessor.Preprocessor
	tc  *typeChecker.TypeChecker
	gen *codegen.Context
}

// NewUnit starts a compilation. A nil loader reads includes from disk.
func NewUnit(cfg *config.Config, loader preprocessor.Loader) *Unit {
	if loader == nil {
		loader = lexer.NewFileLoader(cfg)
	}
	return &Unit{
		Cfg: cfg,
		pp:  preprocessor.New(cfg, loader),
		tc:  typeChecker.NewTypeChecker(cfg),
		gen: codegen.NewContext(cfg),
	}
}

// Expand lexes text and runs its directives and macros. NEWLINE tokens
// are kept, so the result still follows the line structure of the input.
func (u *Unit) Expand(ctx context.Context, name string, text []byte) (toks []token.Token, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "preprocess", "name", name, "size", len(text))
	defer tr.Finish("err", &err)

	raw, err := lexer.Tokenize(name, text, u.Cfg)
	if err != nil {
		return nil, errors.Wrap(err, "lex %v", name)
	}

	toks, err = u.pp.Preprocess(raw)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess %v", name)
	}

	tr.Printw("tokens", "in", len(raw), "out", len(toks))
	return toks, nil
}

// Preprocess is Expand without NEWLINE tokens. The result ends with EOF.
func (u *Unit) Preprocess(ctx context.Context, name string, text []byte) ([]token.Token, error) {
	toks, err := u.Expand(ctx, name, text)
	if err != nil {
		return nil, err
	}
	return lexer.StripNewlines(toks), nil
}

// ExpandFile is Expand over the contents of a file.
func (u *Unit) ExpandFile(ctx context.Context, name string) ([]token.Token, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return u.Expand(ctx, name, text)
}

// Analyze types nodes and lays out their stack frames.
func (u *Unit) Analyze(ctx context.Context, nodes []*ast.Node) (typed []*ast.Node, globals []*ast.Var, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "analyze", "decls", len(nodes))
	defer tr.Finish("err", &err)

	typed, globals, err = u.tc.Check(nodes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "analyze")
	}
	tr.Printw("analyzed", "globals", len(globals))
	return typed, globals, nil
}

// Lower generates IR for typed nodes and checks it.
func (u *Unit) Lower(ctx context.Context, typed []*ast.Node) (fns []*ir.Function, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "lower", "decls", len(typed))
	defer tr.Finish("err", &err)

	fns, err = u.gen.GenerateIR(typed)
	if err != nil {
		return nil, errors.Wrap(err, "lower")
	}
	if err = ir.VerifyProgram(fns); err != nil {
		return nil, errors.Wrap(err, "verify")
	}

	for _, f := range fns {
		tr.Printw("function", "name", f.Name, "instructions", len(f.IR), "stack_size", f.StackSize)
	}
	return fns, nil
}

// Compile runs analysis and lowering over parsed declarations.
func (u *Unit) Compile(ctx context.Context, nodes []*ast.Node) (*ir.Program, error) {
	typed, globals, err := u.Analyze(ctx, nodes)
	if err != nil {
		return nil, err
	}
	fns, err := u.Lower(ctx, typed)
	if err != nil {
		return nil, err
	}
	return &ir.Program{Funcs: fns, Globals: globals}, nil
}

// CompileSource runs the whole pipeline over one source buffer.
func (u *Unit) CompileSource(ctx context.Context, p Parser, name string, text []byte) (*ir.Program, error) {
	toks, err := u.Preprocess(ctx, name, text)
	if err != nil {
		return nil, err
	}

	nodes, err := p.Parse(ctx, toks)
	if err != nil {
		return nil, errors.Wrap(err, "parse %v", name)
	}

	return u.Compile(ctx, nodes)
}

// WriteTokens prints the output of Expand as source text, one input line
// per output line.
func WriteTokens(w io.Writer, toks []token.Token) error {
	bw := bufio.NewWriter(w)

	bol := true
	for _, t := range toks {
		switch t.Type {
		case token.EOF:
		case token.NewLine:
			if !bol {
				bw.WriteByte('\n')
				bol = true
			}
		default:
			if !bol {
				bw.WriteByte(' ')
			}
			bw.WriteString(t.Text())
			bol = false
		}
	}
	if !bol {
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
