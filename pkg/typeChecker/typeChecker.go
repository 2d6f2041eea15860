package typeChecker

import (
	"fmt"

	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
	"tlog.app/go/tlog"
)

// Scope is one frame of the scope chain. Parent is an index into the
// checker's scope arena, -1 for the global scope.
type Scope struct {
	Vars   map[string]*ast.Var
	Parent int
}

const globalScope = 0

type TypeChecker struct {
	cfg       *config.Config
	scopes    []Scope
	current   int
	globals   []*ast.Var
	strCount  int
	stackSize int
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	tc := &TypeChecker{cfg: cfg}
	tc.scopes = append(tc.scopes, Scope{Vars: make(map[string]*ast.Var), Parent: -1})
	tc.current = globalScope
	return tc
}

func (tc *TypeChecker) enterScope() {
	tc.scopes = append(tc.scopes, Scope{Vars: make(map[string]*ast.Var), Parent: tc.current})
	tc.current = len(tc.scopes) - 1
}

func (tc *TypeChecker) exitScope() {
	if p := tc.scopes[tc.current].Parent; p >= 0 {
		tc.current = p
	}
}

// findVar looks name up from the innermost scope outwards.
func (tc *TypeChecker) findVar(name string) (*ast.Var, int) {
	for s := tc.current; s >= 0; s = tc.scopes[s].Parent {
		if v, ok := tc.scopes[s].Vars[name]; ok {
			return v, s
		}
	}
	return nil, -1
}

func (tc *TypeChecker) addVar(tok token.Token, v *ast.Var) {
	scope := tc.scopes[tc.current]
	if _, exists := scope.Vars[v.Name]; exists {
		util.Fatal(util.ScopeError, tok, "redefinition of '%s'", v.Name)
	}
	if _, s := tc.findVar(v.Name); s > globalScope {
		util.Warn(tc.cfg, config.WarnShadow, tok, "declaration of '%s' shadows an outer variable", v.Name)
	}
	scope.Vars[v.Name] = v
}

// Globals returns every global variable registered so far, including
// string literal data.
func (tc *TypeChecker) Globals() []*ast.Var { return tc.globals }

// Check types the top-level declarations in order. Only global variable
// and function definitions are allowed at top level. The returned nodes are
// the input nodes, decorated in place. A failed check leaves the checker
// as it was before the call.
func (tc *TypeChecker) Check(nodes []*ast.Node) (out []*ast.Node, globals []*ast.Var, err error) {
	nGlobals, nScopes, strCount := len(tc.globals), len(tc.scopes), tc.strCount
	defer func() {
		if err == nil {
			return
		}
		for _, v := range tc.globals[nGlobals:] {
			if tc.scopes[globalScope].Vars[v.Name] == v {
				delete(tc.scopes[globalScope].Vars, v.Name)
			}
		}
		tc.globals = tc.globals[:nGlobals]
		tc.scopes = tc.scopes[:nScopes]
		tc.strCount = strCount
		tc.current = globalScope
	}()
	defer util.Recover(&err)

	for _, node := range nodes {
		switch node.Type {
		case ast.VarDecl:
			tc.checkGlobalVarDecl(node)
		case ast.FuncDecl:
			tc.checkFuncDecl(node)
		default:
			util.Fatal(util.InternalError, node.Tok, "unexpected %s at top level", node.Type)
		}
	}
	return nodes, tc.globals, nil
}

func (tc *TypeChecker) checkGlobalVarDecl(node *ast.Node) {
	d := node.Data.(ast.VarDeclNode)
	if _, ok := d.Var.Storage.(ast.Global); !ok {
		util.Fatal(util.InternalError, node.Tok, "global '%s' has no global storage", d.Var.Name)
	}
	tc.addVar(node.Tok, d.Var)
	tc.globals = append(tc.globals, d.Var)
}

func (tc *TypeChecker) checkFuncDecl(node *ast.Node) {
	d := node.Data.(ast.FuncDeclNode)

	tc.current = globalScope
	tc.enterScope()
	tc.stackSize = 0

	for _, p := range d.Params {
		if p.Type != ast.VarDecl {
			util.Fatal(util.InternalError, p.Tok, "parameter of '%s' is a %s", d.Name, p.Type)
		}
		tc.declareLocal(p)
	}
	d.Body = tc.checkStmt(d.Body)

	tc.exitScope()
	d.StackSize = tc.stackSize
	node.Data = d
	tlog.V("sema").Printw("function", "name", d.Name, "stack_size", d.StackSize, "params", len(d.Params))
}

// declareLocal places a local variable in the current frame: the cursor is
// aligned for the type, then advanced by its size.
func (tc *TypeChecker) declareLocal(node *ast.Node) *ast.Var {
	d := node.Data.(ast.VarDeclNode)
	v := d.Var
	if v.Ty == nil || v.Ty.Kind == ast.TYPE_VOID {
		util.Fatal(util.TypeError, node.Tok, "variable '%s' declared void", v.Name)
	}
	tc.stackSize = util.AlignUp(tc.stackSize, v.Ty.Align) + v.Ty.Size
	v.Storage = ast.Local{Offset: tc.stackSize}
	tc.addVar(node.Tok, v)
	tlog.V("sema").Printw("local", "name", v.Name, "type", v.Ty, "offset", tc.stackSize)
	return v
}

// newStringLiteral registers s as an anonymous global char array.
func (tc *TypeChecker) newStringLiteral(s string) *ast.Var {
	data := append([]byte(s), 0)
	ty := ast.ArrayOf(ast.TypeChar, len(data))
	v := &ast.Var{
		Name:    fmt.Sprintf(".L.str%d", tc.strCount),
		Ty:      ty,
		Storage: ast.Global{Data: data, Len: len(data)},
	}
	tc.strCount++
	tc.globals = append(tc.globals, v)
	return v
}

func (tc *TypeChecker) checkStmt(node *ast.Node) *ast.Node {
	if node == nil {
		return nil
	}

	switch node.Type {
	case ast.VarDecl:
		tc.declareLocal(node)
		d := node.Data.(ast.VarDeclNode)
		if d.Init != nil {
			d.Init = tc.checkExpr(d.Init, true)
			d.Init.Parent = node
			if d.Var.Ty.Kind == ast.TYPE_ARRAY || d.Var.Ty.Kind == ast.TYPE_STRUCT {
				util.Fatal(util.TypeError, node.Tok, "cannot initialize '%s' of type %s with an expression", d.Var.Name, d.Var.Ty)
			}
		}
		node.Data = d

	case ast.If:
		d := node.Data.(ast.IfNode)
		d.Cond = tc.checkExpr(d.Cond, true)
		d.ThenBody = tc.checkStmt(d.ThenBody)
		d.ElseBody = tc.checkStmt(d.ElseBody)
		node.Data = d

	case ast.For:
		d := node.Data.(ast.ForNode)
		d.Init = tc.checkStmt(d.Init)
		if d.Cond != nil {
			d.Cond = tc.checkExpr(d.Cond, true)
		}
		if d.Post != nil {
			d.Post = tc.checkExpr(d.Post, true)
		}
		d.Body = tc.checkStmt(d.Body)
		node.Data = d

	case ast.DoWhile:
		d := node.Data.(ast.DoWhileNode)
		d.Body = tc.checkStmt(d.Body)
		d.Cond = tc.checkExpr(d.Cond, true)
		node.Data = d

	case ast.Return:
		d := node.Data.(ast.ReturnNode)
		if d.Expr != nil {
			d.Expr = tc.checkExpr(d.Expr, true)
		}
		node.Data = d

	case ast.ExprStmt:
		d := node.Data.(ast.ExprStmtNode)
		d.Expr = tc.checkExpr(d.Expr, true)
		node.Data = d

	case ast.Block:
		d := node.Data.(ast.BlockNode)
		if !d.IsSynthetic {
			tc.enterScope()
		}
		for i, s := range d.Stmts {
			d.Stmts[i] = tc.checkStmt(s)
		}
		if !d.IsSynthetic {
			tc.exitScope()
		}
		node.Data = d

	case ast.Null:

	case ast.FuncDecl:
		util.Fatal(util.InternalError, node.Tok, "nested function definition")

	default:
		// Expression used where a statement is expected.
		return tc.checkExpr(node, true)
	}
	return node
}
