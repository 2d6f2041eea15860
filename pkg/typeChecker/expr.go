package typeChecker

import (
	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
)

// replace puts repl where node was in the tree.
func replace(node, repl *ast.Node) *ast.Node {
	repl.Parent = node.Parent
	return repl
}

// maybeDecay rewrites an array value to the address of its first element.
func maybeDecay(node *ast.Node, decay bool) *ast.Node {
	if !decay || node.Typ == nil || node.Typ.Kind != ast.TYPE_ARRAY {
		return node
	}
	parent := node.Parent
	addr := ast.NewAddressOf(node.Tok, node)
	addr.Parent = parent
	addr.Typ = ast.PtrTo(node.Typ.Base)
	return addr
}

func checkLvalue(node *ast.Node) {
	switch node.Type {
	case ast.Ident, ast.Indirection, ast.MemberAccess:
		return
	}
	util.Fatal(util.TypeError, node.Tok, "not an lvalue")
}

// checkExpr types node and returns it, or the node that replaces it.
// decay controls whether an array-typed result is turned into a pointer.
func (tc *TypeChecker) checkExpr(node *ast.Node, decay bool) *ast.Node {
	switch node.Type {
	case ast.Number:
		node.Typ = ast.TypeInt

	case ast.String:
		d := node.Data.(ast.StringNode)
		v := tc.newStringLiteral(d.Value)
		ref := replace(node, ast.NewIdent(node.Tok, v.Name))
		ref.Data = ast.IdentNode{Name: v.Name, Var: v}
		ref.Typ = v.Ty
		return maybeDecay(ref, decay)

	case ast.Ident:
		d := node.Data.(ast.IdentNode)
		v, _ := tc.findVar(d.Name)
		if v == nil {
			util.Fatal(util.ScopeError, node.Tok, "undefined variable: %s", d.Name)
		}
		d.Var = v
		node.Data = d
		node.Typ = v.Ty
		return maybeDecay(node, decay)

	case ast.BinaryOp:
		return tc.checkBinaryOp(node)

	case ast.Assign:
		d := node.Data.(ast.AssignNode)
		d.Lhs = tc.checkExpr(d.Lhs, false)
		checkLvalue(d.Lhs)
		switch d.Lhs.Typ.Kind {
		case ast.TYPE_ARRAY, ast.TYPE_STRUCT:
			util.Fatal(util.TypeError, node.Tok, "cannot assign to a value of type %s", d.Lhs.Typ)
		}
		d.Rhs = tc.checkExpr(d.Rhs, true)
		node.Data = d
		node.Typ = d.Lhs.Typ

	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		d.Expr = tc.checkExpr(d.Expr, true)
		node.Data = d
		switch d.Op {
		case token.Inc, token.Dec:
			checkLvalue(d.Expr)
			node.Typ = d.Expr.Typ
		case token.Minus, token.Not:
			node.Typ = ast.TypeInt
		default:
			util.Fatal(util.InternalError, node.Tok, "unknown unary operator '%s'", token.TypeStrings[d.Op])
		}

	case ast.PostfixOp:
		d := node.Data.(ast.PostfixOpNode)
		d.Expr = tc.checkExpr(d.Expr, true)
		checkLvalue(d.Expr)
		node.Data = d
		node.Typ = d.Expr.Typ

	case ast.AddressOf:
		d := node.Data.(ast.AddressOfNode)
		d.LValue = tc.checkExpr(d.LValue, false)
		checkLvalue(d.LValue)
		node.Data = d
		node.Typ = ast.PtrTo(d.LValue.Typ)

	case ast.Indirection:
		d := node.Data.(ast.IndirectionNode)
		d.Expr = tc.checkExpr(d.Expr, true)
		node.Data = d
		if !d.Expr.Typ.IsPointer() {
			util.Fatal(util.TypeError, node.Tok, "operand must be a pointer, got %s", d.Expr.Typ)
		}
		if d.Expr.Typ.Base.Kind == ast.TYPE_VOID {
			util.Fatal(util.TypeError, node.Tok, "cannot dereference void pointer")
		}
		node.Typ = d.Expr.Typ.Base
		return maybeDecay(node, decay)

	case ast.MemberAccess:
		d := node.Data.(ast.MemberAccessNode)
		d.Expr = tc.checkExpr(d.Expr, true)
		if d.Expr.Typ.Kind != ast.TYPE_STRUCT {
			util.Fatal(util.TypeError, node.Tok, "struct expected before '.', got %s", d.Expr.Typ)
		}
		m := d.Expr.Typ.FindMember(d.Name)
		if m == nil {
			util.Fatal(util.ScopeError, node.Tok, "member missing: %s", d.Name)
		}
		d.Member = m
		node.Data = d
		node.Typ = m.Ty
		return maybeDecay(node, decay)

	case ast.Ternary:
		d := node.Data.(ast.TernaryNode)
		d.Cond = tc.checkExpr(d.Cond, true)
		d.ThenExpr = tc.checkExpr(d.ThenExpr, true)
		d.ElseExpr = tc.checkExpr(d.ElseExpr, true)
		node.Data = d
		node.Typ = d.ThenExpr.Typ

	case ast.Sizeof:
		d := node.Data.(ast.SizeofNode)
		var ty *ast.Type
		if d.Expr.Type == ast.String {
			ty = ast.ArrayOf(ast.TypeChar, len(d.Expr.Data.(ast.StringNode).Value)+1)
		} else {
			ty = tc.checkExpr(d.Expr, false).Typ
		}
		val := ty.Size
		if d.Op == token.Alignof {
			val = ty.Align
		}
		num := replace(node, ast.NewNumber(node.Tok, int64(val)))
		num.Typ = ast.TypeInt
		return num

	case ast.FuncCall:
		d := node.Data.(ast.FuncCallNode)
		if limit := tc.cfg.CallArgLimit(); limit > 0 && len(d.Args) > limit {
			util.Fatal(util.TypeError, node.Tok, "too many arguments to '%s': %d, at most %d supported", d.Name, len(d.Args), limit)
		}
		for i, arg := range d.Args {
			d.Args[i] = tc.checkExpr(arg, true)
		}
		node.Data = d
		node.Typ = ast.TypeInt

	case ast.StmtExpr:
		d := node.Data.(ast.StmtExprNode)
		if d.Body == nil || d.Body.Type != ast.Block {
			util.Fatal(util.InternalError, node.Tok, "statement expression body is not a block")
		}
		d.Body = tc.checkStmt(d.Body)
		node.Data = d
		node.Typ = ast.TypeInt
		if last := lastExpr(d.Body); last != nil {
			node.Typ = last.Typ
		}

	default:
		util.Fatal(util.InternalError, node.Tok, "unexpected %s in expression", node.Type)
	}
	return node
}

// lastExpr returns the expression of a block's final statement, if that
// statement is an expression statement.
func lastExpr(body *ast.Node) *ast.Node {
	b, ok := body.Data.(ast.BlockNode)
	if !ok || len(b.Stmts) == 0 {
		return nil
	}
	last := b.Stmts[len(b.Stmts)-1]
	if last.Type != ast.ExprStmt {
		return nil
	}
	return last.Data.(ast.ExprStmtNode).Expr
}

func (tc *TypeChecker) checkBinaryOp(node *ast.Node) *ast.Node {
	d := node.Data.(ast.BinaryOpNode)
	d.Left = tc.checkExpr(d.Left, true)
	d.Right = tc.checkExpr(d.Right, true)

	switch d.Op {
	case token.Plus, token.Minus:
		lp, rp := d.Left.Typ.IsPointer(), d.Right.Typ.IsPointer()
		if lp && rp {
			util.Fatal(util.TypeError, node.Tok, "pointer %s pointer is not defined", token.TypeStrings[d.Op])
		}
		if rp {
			d.Left, d.Right = d.Right, d.Left
		}
		node.Typ = d.Left.Typ
		if !d.Left.Typ.IsPointer() {
			node.Typ = ast.TypeInt
		}
	case token.Star, token.Slash, token.EqEq, token.Neq, token.Lt, token.Lte, token.AndAnd, token.OrOr:
		node.Typ = ast.TypeInt
	default:
		util.Fatal(util.InternalError, node.Tok, "unknown binary operator '%s'", token.TypeStrings[d.Op])
	}

	node.Data = d
	return node
}
