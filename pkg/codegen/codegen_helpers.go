package codegen

import (
	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/ir"
	"github.com/xplshn/ccfront/pkg/token"
	"github.com/xplshn/ccfront/pkg/util"
)

// codegenVarAddr materializes the address of v in a fresh register.
func (ctx *Context) codegenVarAddr(v *ast.Var) int {
	r := ctx.newReg()
	switch s := v.Storage.(type) {
	case ast.Local:
		ctx.emit(ir.OpMov, r, ir.BaseReg)
		ctx.emit(ir.OpSubImm, r, s.Offset)
	case ast.Global:
		ctx.currentFn.IR = append(ctx.currentFn.IR, ir.Instruction{Op: ir.OpLabelAddr, Lhs: r, Name: v.Name})
	default:
		util.Fatal(util.InternalError, token.Token{}, "variable '%s' has no storage", v.Name)
	}
	return r
}

// codegenLvalue returns a register holding the address of node.
func (ctx *Context) codegenLvalue(node *ast.Node) int {
	switch node.Type {
	case ast.Ident:
		d := node.Data.(ast.IdentNode)
		if d.Var == nil {
			util.Fatal(util.InternalError, node.Tok, "unresolved identifier '%s'", d.Name)
		}
		return ctx.codegenVarAddr(d.Var)
	case ast.Indirection:
		return ctx.codegenExpr(node.Data.(ast.IndirectionNode).Expr)
	case ast.MemberAccess:
		d := node.Data.(ast.MemberAccessNode)
		if d.Member == nil {
			util.Fatal(util.InternalError, node.Tok, "unresolved member '%s'", d.Name)
		}
		r := ctx.codegenLvalue(d.Expr)
		if d.Member.Offset != 0 {
			ctx.emit(ir.OpAddImm, r, d.Member.Offset)
		}
		return r
	}
	util.Fatal(util.InternalError, node.Tok, "%s is not an lvalue", node.Type)
	return 0
}

// load replaces the address in r by the value it points to. Aggregates
// are left as addresses.
func (ctx *Context) load(t *ast.Type, r int) int {
	if t.Kind == ast.TYPE_ARRAY || t.Kind == ast.TYPE_STRUCT {
		return r
	}
	ctx.emit(ir.LoadOp(t), r, r)
	return r
}

func (ctx *Context) codegenExpr(node *ast.Node) int {
	if node.Typ == nil {
		util.Fatal(util.InternalError, node.Tok, "untyped %s reached code generation", node.Type)
	}

	switch node.Type {
	case ast.Number:
		r := ctx.newReg()
		ctx.emit(ir.OpImm, r, int(node.Data.(ast.NumberNode).Value))
		return r

	case ast.Ident, ast.MemberAccess:
		return ctx.load(node.Typ, ctx.codegenLvalue(node))

	case ast.Indirection:
		return ctx.load(node.Typ, ctx.codegenExpr(node.Data.(ast.IndirectionNode).Expr))

	case ast.AddressOf:
		return ctx.codegenLvalue(node.Data.(ast.AddressOfNode).LValue)

	case ast.Assign:
		return ctx.codegenAssign(node)

	case ast.BinaryOp:
		return ctx.codegenBinaryOp(node)

	case ast.UnaryOp:
		return ctx.codegenUnaryOp(node)

	case ast.PostfixOp:
		d := node.Data.(ast.PostfixOpNode)
		step := incStep(d.Expr.Typ)
		r := ctx.codegenPreIncDec(d.Expr, d.Op, step)
		if d.Op == token.Inc {
			ctx.emit(ir.OpSubImm, r, step)
		} else {
			ctx.emit(ir.OpAddImm, r, step)
		}
		return r

	case ast.Ternary:
		return ctx.codegenTernary(node)

	case ast.FuncCall:
		return ctx.codegenFuncCall(node)

	case ast.StmtExpr:
		return ctx.codegenStmtExpr(node)
	}

	util.Fatal(util.InternalError, node.Tok, "unexpected %s in expression", node.Type)
	return 0
}

func (ctx *Context) codegenAssign(node *ast.Node) int {
	d := node.Data.(ast.AssignNode)
	rhs := ctx.codegenExpr(d.Rhs)
	lhs := ctx.codegenLvalue(d.Lhs)
	ctx.emit(ir.StoreOp(d.Lhs.Typ), lhs, rhs)
	ctx.kill(rhs)
	return lhs
}

var binaryOps = map[token.Type]ir.Op{
	token.Plus:  ir.OpAdd,
	token.Minus: ir.OpSub,
	token.Star:  ir.OpMul,
	token.Slash: ir.OpDiv,
	token.Lt:    ir.OpLt,
	token.Lte:   ir.OpLe,
	token.EqEq:  ir.OpEq,
	token.Neq:   ir.OpNe,
}

func (ctx *Context) codegenBinaryOp(node *ast.Node) int {
	d := node.Data.(ast.BinaryOpNode)

	switch d.Op {
	case token.AndAnd:
		return ctx.codegenLogAnd(d)
	case token.OrOr:
		return ctx.codegenLogOr(d)
	}

	op, ok := binaryOps[d.Op]
	if !ok {
		util.Fatal(util.InternalError, node.Tok, "unknown binary operator '%s'", token.TypeStrings[d.Op])
	}

	lhs := ctx.codegenExpr(d.Left)
	rhs := ctx.codegenExpr(d.Right)
	if (op == ir.OpAdd || op == ir.OpSub) && d.Left.Typ.IsPointer() {
		scale := ctx.newReg()
		ctx.emit(ir.OpImm, scale, d.Left.Typ.Base.Size)
		ctx.emit(ir.OpMul, rhs, scale)
		ctx.kill(scale)
	}
	ctx.emit(op, lhs, rhs)
	ctx.kill(rhs)
	return lhs
}

// codegenLogAnd skips the right operand once the left one is false.
func (ctx *Context) codegenLogAnd(d ast.BinaryOpNode) int {
	end := ctx.newLabel()
	r1 := ctx.codegenExpr(d.Left)
	ctx.emit(ir.OpUnless, r1, end)
	r2 := ctx.codegenExpr(d.Right)
	ctx.emit(ir.OpMov, r1, r2)
	ctx.kill(r2)
	ctx.emit(ir.OpUnless, r1, end)
	ctx.emit(ir.OpImm, r1, 1)
	ctx.emitLabel(end)
	return r1
}

// codegenLogOr skips the right operand once the left one is true.
func (ctx *Context) codegenLogOr(d ast.BinaryOpNode) int {
	rhsLabel, end := ctx.newLabel(), ctx.newLabel()
	r1 := ctx.codegenExpr(d.Left)
	ctx.emit(ir.OpUnless, r1, rhsLabel)
	ctx.emit(ir.OpImm, r1, 1)
	ctx.emit(ir.OpJmp, end, 0)
	ctx.emitLabel(rhsLabel)
	r2 := ctx.codegenExpr(d.Right)
	ctx.emit(ir.OpMov, r1, r2)
	ctx.kill(r2)
	ctx.emit(ir.OpUnless, r1, end)
	ctx.emit(ir.OpImm, r1, 1)
	ctx.emitLabel(end)
	return r1
}

func (ctx *Context) codegenUnaryOp(node *ast.Node) int {
	d := node.Data.(ast.UnaryOpNode)
	switch d.Op {
	case token.Minus:
		r1 := ctx.newReg()
		ctx.emit(ir.OpImm, r1, 0)
		r2 := ctx.codegenExpr(d.Expr)
		ctx.emit(ir.OpSub, r1, r2)
		ctx.kill(r2)
		return r1
	case token.Not:
		r1 := ctx.codegenExpr(d.Expr)
		r2 := ctx.newReg()
		ctx.emit(ir.OpImm, r2, 0)
		ctx.emit(ir.OpEq, r1, r2)
		ctx.kill(r2)
		return r1
	case token.Inc, token.Dec:
		return ctx.codegenPreIncDec(d.Expr, d.Op, incStep(d.Expr.Typ))
	}
	util.Fatal(util.InternalError, node.Tok, "unknown unary operator '%s'", token.TypeStrings[d.Op])
	return 0
}

// incStep is the amount ++ and -- move a value of type t by.
func incStep(t *ast.Type) int {
	if t.IsPointer() {
		return t.Base.Size
	}
	return 1
}

// codegenPreIncDec updates the lvalue in place and returns its new value.
func (ctx *Context) codegenPreIncDec(expr *ast.Node, op token.Type, step int) int {
	addr := ctx.codegenLvalue(expr)
	r := ctx.newReg()
	ctx.emit(ir.OpMov, r, addr)
	ctx.load(expr.Typ, r)
	if op == token.Inc {
		ctx.emit(ir.OpAddImm, r, step)
	} else {
		ctx.emit(ir.OpSubImm, r, step)
	}
	ctx.emit(ir.StoreOp(expr.Typ), addr, r)
	ctx.kill(addr)
	return r
}

// codegenTernary reuses the condition register for the result.
func (ctx *Context) codegenTernary(node *ast.Node) int {
	d := node.Data.(ast.TernaryNode)
	elseLabel, end := ctx.newLabel(), ctx.newLabel()

	r := ctx.codegenExpr(d.Cond)
	ctx.emit(ir.OpUnless, r, elseLabel)
	then := ctx.codegenExpr(d.ThenExpr)
	ctx.emit(ir.OpMov, r, then)
	ctx.kill(then)
	ctx.emit(ir.OpJmp, end, 0)
	ctx.emitLabel(elseLabel)
	els := ctx.codegenExpr(d.ElseExpr)
	ctx.emit(ir.OpMov, r, els)
	ctx.kill(els)
	ctx.emitLabel(end)
	return r
}

func (ctx *Context) codegenFuncCall(node *ast.Node) int {
	d := node.Data.(ast.FuncCallNode)
	if limit := ctx.cfg.CallArgLimit(); limit > 0 && len(d.Args) > limit {
		util.Fatal(util.InternalError, node.Tok, "call to '%s' with %d arguments passed type checking", d.Name, len(d.Args))
	}

	args := make([]int, 0, len(d.Args))
	for _, arg := range d.Args {
		args = append(args, ctx.codegenExpr(arg))
	}
	r := ctx.newReg()
	ctx.currentFn.IR = append(ctx.currentFn.IR, ir.Instruction{Op: ir.OpCall, Lhs: r, Name: d.Name, Args: args})
	for _, a := range args {
		ctx.kill(a)
	}
	return r
}

// codegenStmtExpr yields the value of the body's last expression
// statement, or 0.
func (ctx *Context) codegenStmtExpr(node *ast.Node) int {
	body := node.Data.(ast.StmtExprNode).Body
	if body == nil || body.Type != ast.Block {
		util.Fatal(util.InternalError, node.Tok, "statement expression body is not a block")
	}
	stmts := body.Data.(ast.BlockNode).Stmts

	if n := len(stmts); n > 0 && stmts[n-1].Type == ast.ExprStmt {
		for _, s := range stmts[:n-1] {
			ctx.codegenStmt(s)
		}
		return ctx.codegenExpr(stmts[n-1].Data.(ast.ExprStmtNode).Expr)
	}
	for _, s := range stmts {
		ctx.codegenStmt(s)
	}
	r := ctx.newReg()
	ctx.emit(ir.OpImm, r, 0)
	return r
}
