package compiler

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/ir"
	"github.com/xplshn/ccfront/pkg/irvm"
	"github.com/xplshn/ccfront/pkg/lexer"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
)

func tok(s string) token.Token { return token.Token{Type: token.Ident, Value: s} }

func ident(name string) *ast.Node { return ast.NewIdent(tok(name), name) }

func num(v int64) *ast.Node { return ast.NewNumber(token.Token{Type: token.Number, Num: v}, v) }

func decl(name string, ty *ast.Type) *ast.Node { return ast.NewVarDecl(tok(name), name, ty, nil) }

func stmt(e *ast.Node) *ast.Node { return ast.NewExprStmt(e.Tok, e) }

func ret(e *ast.Node) *ast.Node { return ast.NewReturn(tok("return"), e) }

func block(stmts ...*ast.Node) *ast.Node { return ast.NewBlock(tok("{"), stmts, false) }

func binop(op token.Type, l, r *ast.Node) *ast.Node {
	return ast.NewBinaryOp(token.Token{Type: op}, op, l, r)
}

func assign(l, r *ast.Node) *ast.Node { return ast.NewAssign(token.Token{Type: token.Eq}, l, r) }

func deref(e *ast.Node) *ast.Node { return ast.NewIndirection(tok("*"), e) }

func call(name string, args ...*ast.Node) *ast.Node { return ast.NewFuncCall(tok(name), name, args) }

func fn(name string, params []*ast.Node, stmts ...*ast.Node) *ast.Node {
	return ast.NewFuncDecl(tok(name), name, params, block(stmts...), ast.TypeInt)
}

func newUnit() *Unit {
	cfg := config.NewConfig()
	cfg.Stderr = &bytes.Buffer{}
	return NewUnit(cfg, &lexer.MapLoader{Cfg: cfg, Files: map[string]string{}})
}

func compile(t *testing.T, nodes ...*ast.Node) *ir.Program {
	t.Helper()
	prog, err := newUnit().Compile(context.Background(), nodes)
	require.NoError(t, err)
	return prog
}

func run(t *testing.T, prog *ir.Program, builtins map[string]irvm.Builtin) int64 {
	t.Helper()
	m, err := irvm.New(prog)
	require.NoError(t, err)
	for name, b := range builtins {
		m.Builtins[name] = b
	}
	v, err := m.Run()
	require.NoError(t, err)
	return v
}

func TestAssignThenReturn(t *testing.T) {
	prog := compile(t, fn("main", nil,
		decl("a", ast.TypeInt),
		stmt(assign(ident("a"), num(1))),
		ret(ident("a")),
	))
	assert.Equal(t, int64(1), run(t, prog, nil))
	assert.Equal(t, 4, prog.Funcs[0].StackSize)
}

func TestPrograms(t *testing.T) {
	i := func() *ast.Node { return ident("i") }
	st := ast.StructOf([]*ast.Member{{Name: "a", Ty: ast.TypeChar}, {Name: "b", Ty: ast.TypeInt}})
	member := func(name string) *ast.Node { return ast.NewMemberAccess(tok("."), ident("s"), name) }

	tests := []struct {
		name  string
		nodes []*ast.Node
		want  int64
	}{
		{
			"sum loop",
			[]*ast.Node{fn("main", nil,
				decl("s", ast.TypeInt), decl("i", ast.TypeInt),
				stmt(assign(ident("s"), num(0))),
				ast.NewFor(tok("for"), stmt(assign(i(), num(0))), binop(token.Lt, i(), num(10)),
					ast.NewPostfixOp(tok("++"), token.Inc, i()),
					stmt(assign(ident("s"), binop(token.Plus, ident("s"), i())))),
				ret(ident("s")),
			)},
			45,
		},
		{
			"recursion",
			[]*ast.Node{
				fn("fib", []*ast.Node{decl("n", ast.TypeInt)},
					ast.NewIf(tok("if"), binop(token.Lt, ident("n"), num(2)), ret(ident("n")), nil),
					ret(binop(token.Plus,
						call("fib", binop(token.Minus, ident("n"), num(1))),
						call("fib", binop(token.Minus, ident("n"), num(2))))),
				),
				fn("main", nil, ret(call("fib", num(10)))),
			},
			55,
		},
		{
			"array through pointer arithmetic",
			[]*ast.Node{fn("main", nil,
				decl("arr", ast.ArrayOf(ast.TypeInt, 3)),
				stmt(assign(deref(binop(token.Plus, ident("arr"), num(2))), num(7))),
				stmt(assign(deref(ident("arr")), num(1))),
				ret(binop(token.Plus, deref(binop(token.Plus, num(2), ident("arr"))), deref(ident("arr")))),
			)},
			8,
		},
		{
			"pointer increment steps by element size",
			[]*ast.Node{fn("main", nil,
				decl("a", ast.ArrayOf(ast.TypeInt, 2)), decl("p", ast.PtrTo(ast.TypeInt)),
				stmt(assign(ident("p"), ident("a"))),
				stmt(ast.NewPostfixOp(tok("++"), token.Inc, ident("p"))),
				stmt(assign(deref(ident("p")), num(9))),
				ret(deref(binop(token.Plus, ident("a"), num(1)))),
			)},
			9,
		},
		{
			"struct members",
			[]*ast.Node{fn("main", nil,
				decl("s", st),
				stmt(assign(member("a"), num(3))),
				stmt(assign(member("b"), num(4))),
				ret(binop(token.Plus, member("a"), member("b"))),
			)},
			7,
		},
		{
			"ternary",
			[]*ast.Node{fn("main", nil, ret(ast.NewTernary(tok("?"), num(0), num(3), num(4))))},
			4,
		},
		{
			"do while",
			[]*ast.Node{fn("main", nil,
				decl("i", ast.TypeInt),
				stmt(assign(i(), num(0))),
				ast.NewDoWhile(tok("do"), stmt(assign(i(), binop(token.Plus, i(), num(1)))), binop(token.Lt, i(), num(5))),
				ret(i()),
			)},
			5,
		},
		{
			"statement expression",
			[]*ast.Node{fn("main", nil, ret(ast.NewStmtExpr(tok("("), block(
				decl("x", ast.TypeInt),
				stmt(assign(ident("x"), num(3))),
				stmt(ident("x")),
			))))},
			3,
		},
		{
			"negate and not",
			[]*ast.Node{fn("main", nil, ret(binop(token.Plus,
				ast.NewUnaryOp(tok("-"), token.Minus, num(3)),
				ast.NewUnaryOp(tok("!"), token.Not, num(0)))))},
			-2,
		},
		{
			"pre decrement",
			[]*ast.Node{fn("main", nil,
				decl("i", ast.TypeInt),
				stmt(assign(i(), num(5))),
				ret(binop(token.Plus, ast.NewUnaryOp(tok("--"), token.Dec, i()), i())),
			)},
			8,
		},
		{
			"char round trip",
			[]*ast.Node{fn("main", nil,
				ast.NewVarDecl(tok("c"), "c", ast.TypeChar, num(65)),
				ret(ident("c")),
			)},
			65,
		},
		{
			"global variable",
			[]*ast.Node{
				ast.NewGlobalVarDecl(tok("g"), "g", ast.TypeInt, nil, false),
				fn("bump", nil, stmt(assign(ident("g"), binop(token.Plus, ident("g"), num(2))))),
				fn("main", nil, stmt(call("bump")), stmt(call("bump")), ret(ident("g"))),
			},
			4,
		},
		{
			"comparisons",
			[]*ast.Node{fn("main", nil, ret(binop(token.Plus,
				binop(token.Plus, binop(token.EqEq, num(2), num(2)), binop(token.Neq, num(2), num(2))),
				binop(token.Plus, binop(token.Lte, num(2), num(2)), binop(token.Slash, num(9), num(3))))))},
			5,
		},
		{
			"sizeof",
			[]*ast.Node{fn("main", nil,
				decl("arr", ast.ArrayOf(ast.TypeInt, 5)),
				ret(ast.NewSizeof(tok("sizeof"), token.Sizeof, ident("arr"))),
			)},
			20,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, run(t, compile(t, tc.nodes...), nil))
		})
	}
}

func TestShortCircuit(t *testing.T) {
	tests := []struct {
		name    string
		op      token.Type
		lhs     int64
		want    int64
		touched bool
	}{
		{"and stops at false", token.AndAnd, 0, 0, false},
		{"and evaluates right", token.AndAnd, 1, 1, true},
		{"or stops at true", token.OrOr, 3, 1, false},
		{"or evaluates right", token.OrOr, 0, 1, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := compile(t, fn("main", nil, ret(binop(tc.op, num(tc.lhs), call("mark")))))
			touched := false
			got := run(t, prog, map[string]irvm.Builtin{
				"mark": func(*irvm.Machine, []int64) (int64, error) {
					touched = true
					return 5, nil
				},
			})
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.touched, touched)
		})
	}
}

func TestStringLiteralReachesCallee(t *testing.T) {
	s := ast.NewString(token.Token{Type: token.String}, "hello")
	prog := compile(t, fn("main", nil, ret(call("puts", s))))

	require.Len(t, prog.Globals, 1)
	assert.Equal(t, ".L.str0", prog.Globals[0].Name)

	var printed string
	got := run(t, prog, map[string]irvm.Builtin{
		"puts": func(m *irvm.Machine, args []int64) (int64, error) {
			str, err := m.CString(args[0])
			printed = str
			return int64(len(str)), err
		},
	})
	assert.Equal(t, "hello", printed)
	assert.Equal(t, int64(5), got)
}

func TestMacroExpansion(t *testing.T) {
	u := newUnit()
	toks, err := u.Preprocess(context.Background(), "sq.c", []byte("#define SQ(x) ((x)*(x))\nSQ(3+1)\n"))
	require.NoError(t, err)

	var got []string
	for _, tk := range toks {
		if tk.Type != token.EOF {
			got = append(got, tk.Text())
		}
	}
	want := strings.Fields("( ( 3 + 1 ) * ( 3 + 1 ) )")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SQ(3+1) mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, token.EOF, toks[len(toks)-1].Type)
}

func TestObjectLikeMacroIsDeterministic(t *testing.T) {
	toks, err := newUnit().Preprocess(context.Background(), "n.c", []byte("#define N 5\nN N\n"))
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, toks[0].Num, toks[1].Num)
	assert.Equal(t, int64(5), toks[0].Num)
}

func TestUnitsAreIndependent(t *testing.T) {
	ctx := context.Background()
	ifMain := func() []*ast.Node {
		return []*ast.Node{fn("main", nil, ast.NewIf(tok("if"), num(1), ret(num(1)), nil))}
	}

	a, b := newUnit(), newUnit()
	_, err := a.Preprocess(ctx, "a.c", []byte("#define ONLY_A 1\n"))
	require.NoError(t, err)

	pa, err := a.Compile(ctx, ifMain())
	require.NoError(t, err)
	pa2, err := a.Compile(ctx, ifMain())
	require.NoError(t, err)
	pb, err := b.Compile(ctx, ifMain())
	require.NoError(t, err)

	assert.Equal(t, "UNLESS r1, .L1", pa.Funcs[0].IR[1].String())
	assert.Equal(t, "UNLESS r1, .L2", pa2.Funcs[0].IR[1].String())
	assert.Equal(t, "UNLESS r1, .L1", pb.Funcs[0].IR[1].String())

	toks, err := b.Preprocess(ctx, "b.c", []byte("ONLY_A"))
	require.NoError(t, err)
	assert.Equal(t, "ONLY_A", toks[0].Text())
}

func TestErrorsKeepTheirKind(t *testing.T) {
	ctx := context.Background()

	_, err := newUnit().Compile(ctx, []*ast.Node{fn("main", nil, ret(ident("nope")))})
	require.Error(t, err)
	e, ok := util.AsError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, util.ScopeError, e.Kind)
	assert.Contains(t, err.Error(), "analyze")

	_, err = newUnit().Preprocess(ctx, "bad.c", []byte("#define F(a,b) a+b\nF(1)\n"))
	e, ok = util.AsError(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, util.DirectiveError, e.Kind)
	assert.Equal(t, 2, e.Tok.Line())
}

func TestFailedCompileLeavesNoGlobals(t *testing.T) {
	ctx := context.Background()
	u := newUnit()
	global := func(name string) *ast.Node {
		return ast.NewGlobalVarDecl(tok(name), name, ast.TypeInt, nil, false)
	}
	hi := ast.NewString(token.Token{Type: token.String, Value: "hi"}, "hi")

	_, err := u.Compile(ctx, []*ast.Node{global("g"), fn("main", nil, stmt(hi), stmt(ident("nope")))})
	require.ErrorContains(t, err, "undefined variable: nope")

	prog, err := u.Compile(ctx, []*ast.Node{global("h"), fn("main", nil, ret(num(0)))})
	require.NoError(t, err)
	require.Len(t, prog.Globals, 1)
	assert.Equal(t, "h", prog.Globals[0].Name)

	prog, err = u.Compile(ctx, []*ast.Node{global("g"), fn("two", nil, ret(ident("g")))})
	require.NoError(t, err)
	assert.Equal(t, "g", prog.Globals[len(prog.Globals)-1].Name)
}

type stubParser struct{ nodes []*ast.Node }

func (p stubParser) Parse(_ context.Context, toks []token.Token) ([]*ast.Node, error) {
	if len(toks) == 0 || toks[len(toks)-1].Type != token.EOF {
		return nil, assert.AnError
	}
	return p.nodes, nil
}

func TestCompileSource(t *testing.T) {
	p := stubParser{nodes: []*ast.Node{fn("main", nil, ret(num(42)))}}
	prog, err := newUnit().CompileSource(context.Background(), p, "main.c", []byte("int main() { return 42; }\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), run(t, prog, nil))
}

func TestIncludeThroughUnit(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Stderr = &bytes.Buffer{}
	u := NewUnit(cfg, &lexer.MapLoader{Cfg: cfg, Files: map[string]string{"v.h": "#define V 3\n"}})
	toks, err := u.Preprocess(context.Background(), "m.c", []byte("#include \"v.h\"\nV\n"))
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, int64(3), toks[0].Num)
}

func TestWriteTokens(t *testing.T) {
	src := "#define N 5\n#define STR(x) #x\nint x = N;\n\nN STR(a  +  b)\n"
	toks, err := newUnit().Expand(context.Background(), "w.c", []byte(src))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTokens(&buf, toks))
	assert.Equal(t, "int x = 5 ;\n5 \"a + b\"\n", buf.String())
}

func TestExpandFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defs.h"), []byte("#define ANSWER 42\n"), 0o644))
	main := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(main, []byte("#include \"defs.h\"\nreturn ANSWER;\n"), 0o644))

	cfg := config.NewConfig()
	cfg.Stderr = &bytes.Buffer{}
	toks, err := NewUnit(cfg, nil).ExpandFile(context.Background(), main)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTokens(&buf, toks))
	assert.Equal(t, "return 42 ;\n", buf.String())

	_, err = NewUnit(cfg, nil).ExpandFile(context.Background(), filepath.Join(dir, "missing.c"))
	assert.ErrorContains(t, err, "read file")
}
