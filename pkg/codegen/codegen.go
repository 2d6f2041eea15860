package codegen

import (
	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/ir"
	"github.com/xplshn/ccfront/pkg/util"
	"tlog.app/go/tlog"
)

// Context lowers typed functions to IR. Register numbering restarts with
// every function; label numbering runs across the whole unit.
type Context struct {
	cfg        *config.Config
	currentFn  *ir.Function
	regCount   int
	labelCount int
}

func NewContext(cfg *config.Config) *Context {
	return &Context{cfg: cfg, labelCount: 1}
}

func (ctx *Context) newReg() int {
	ctx.regCount++
	return ctx.regCount
}

func (ctx *Context) newLabel() int {
	l := ctx.labelCount
	ctx.labelCount++
	return l
}

func (ctx *Context) emit(op ir.Op, lhs, rhs int) {
	ctx.currentFn.IR = append(ctx.currentFn.IR, ir.Instruction{Op: op, Lhs: lhs, Rhs: rhs})
}

func (ctx *Context) emitLabel(l int) { ctx.emit(ir.OpLabel, l, 0) }
func (ctx *Context) kill(r int)      { ctx.emit(ir.OpKill, r, 0) }

// GenerateIR lowers every function definition in nodes, in order. Global
// variable definitions produce no code.
func (ctx *Context) GenerateIR(nodes []*ast.Node) (fns []*ir.Function, err error) {
	defer util.Recover(&err)

	for _, node := range nodes {
		switch node.Type {
		case ast.FuncDecl:
			fns = append(fns, ctx.codegenFuncDecl(node))
		case ast.VarDecl:
		default:
			util.Fatal(util.InternalError, node.Tok, "unexpected %s at top level", node.Type)
		}
	}
	return fns, nil
}

// Lower lowers a single typed function definition.
func (ctx *Context) Lower(node *ast.Node) (fn *ir.Function, err error) {
	defer util.Recover(&err)

	if node.Type != ast.FuncDecl {
		util.Fatal(util.InternalError, node.Tok, "cannot lower %s as a function", node.Type)
	}
	return ctx.codegenFuncDecl(node), nil
}

func (ctx *Context) codegenFuncDecl(node *ast.Node) *ir.Function {
	d := node.Data.(ast.FuncDeclNode)

	ctx.currentFn = &ir.Function{Name: d.Name, StackSize: d.StackSize}
	ctx.regCount = 0

	for i, p := range d.Params {
		v := p.Data.(ast.VarDeclNode).Var
		if !v.IsLocal() {
			util.Fatal(util.InternalError, p.Tok, "parameter '%s' has no stack slot", v.Name)
		}
		ctx.emit(ir.StoreArgOp(v.Ty), v.Offset(), i)
	}
	ctx.codegenStmt(d.Body)

	fn := ctx.currentFn
	ctx.currentFn = nil
	tlog.V("ir").Printw("function", "name", fn.Name, "instructions", len(fn.IR), "registers", ctx.regCount, "stack_size", fn.StackSize)
	return fn
}

func (ctx *Context) codegenStmt(node *ast.Node) {
	if node == nil {
		return
	}

	switch node.Type {
	case ast.VarDecl:
		ctx.codegenVarDecl(node)

	case ast.If:
		d := node.Data.(ast.IfNode)
		elseLabel := ctx.newLabel()
		cond := ctx.codegenExpr(d.Cond)
		ctx.emit(ir.OpUnless, cond, elseLabel)
		ctx.kill(cond)
		ctx.codegenStmt(d.ThenBody)
		if d.ElseBody == nil {
			ctx.emitLabel(elseLabel)
			return
		}
		endLabel := ctx.newLabel()
		ctx.emit(ir.OpJmp, endLabel, 0)
		ctx.emitLabel(elseLabel)
		ctx.codegenStmt(d.ElseBody)
		ctx.emitLabel(endLabel)

	case ast.For:
		d := node.Data.(ast.ForNode)
		loopLabel, endLabel := ctx.newLabel(), ctx.newLabel()
		ctx.codegenStmt(d.Init)
		ctx.emitLabel(loopLabel)
		if d.Cond != nil {
			cond := ctx.codegenExpr(d.Cond)
			ctx.emit(ir.OpUnless, cond, endLabel)
			ctx.kill(cond)
		}
		ctx.codegenStmt(d.Body)
		if d.Post != nil {
			ctx.kill(ctx.codegenExpr(d.Post))
		}
		ctx.emit(ir.OpJmp, loopLabel, 0)
		ctx.emitLabel(endLabel)

	case ast.DoWhile:
		d := node.Data.(ast.DoWhileNode)
		loopLabel := ctx.newLabel()
		ctx.emitLabel(loopLabel)
		ctx.codegenStmt(d.Body)
		cond := ctx.codegenExpr(d.Cond)
		ctx.emit(ir.OpIf, cond, loopLabel)
		ctx.kill(cond)

	case ast.Return:
		d := node.Data.(ast.ReturnNode)
		var r int
		if d.Expr != nil {
			r = ctx.codegenExpr(d.Expr)
		} else {
			r = ctx.newReg()
			ctx.emit(ir.OpImm, r, 0)
		}
		ctx.emit(ir.OpRet, r, 0)
		ctx.kill(r)

	case ast.ExprStmt:
		ctx.kill(ctx.codegenExpr(node.Data.(ast.ExprStmtNode).Expr))

	case ast.Block:
		for _, s := range node.Data.(ast.BlockNode).Stmts {
			ctx.codegenStmt(s)
		}

	case ast.Null:

	case ast.FuncDecl:
		util.Fatal(util.InternalError, node.Tok, "nested function definition")

	default:
		ctx.kill(ctx.codegenExpr(node))
	}
}

func (ctx *Context) codegenVarDecl(node *ast.Node) {
	d := node.Data.(ast.VarDeclNode)
	if !d.Var.IsLocal() {
		util.Fatal(util.InternalError, node.Tok, "local '%s' has no stack slot", d.Var.Name)
	}
	if d.Init == nil {
		return
	}
	rhs := ctx.codegenExpr(d.Init)
	lhs := ctx.codegenVarAddr(d.Var)
	ctx.emit(ir.StoreOp(d.Var.Ty), lhs, rhs)
	ctx.kill(lhs)
	ctx.kill(rhs)
}
