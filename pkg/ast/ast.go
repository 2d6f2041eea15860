// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/ccfront/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	String
	Ident
	Assign
	BinaryOp
	UnaryOp
	PostfixOp
	FuncCall
	Indirection
	AddressOf
	Ternary
	MemberAccess
	Sizeof
	StmtExpr

	// Statements
	FuncDecl
	VarDecl
	If
	For
	DoWhile
	Return
	ExprStmt
	Block
	Null
)

var nodeTypeNames = [...]string{
	Number: "Number", String: "String", Ident: "Ident", Assign: "Assign", BinaryOp: "BinaryOp",
	UnaryOp: "UnaryOp", PostfixOp: "PostfixOp", FuncCall: "FuncCall", Indirection: "Indirection",
	AddressOf: "AddressOf", Ternary: "Ternary", MemberAccess: "MemberAccess", Sizeof: "Sizeof",
	StmtExpr: "StmtExpr", FuncDecl: "FuncDecl", VarDecl: "VarDecl", If: "If", For: "For",
	DoWhile: "DoWhile", Return: "Return", ExprStmt: "ExprStmt", Block: "Block", Null: "Null",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "NodeType(?)"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
	Typ    *Type // Set by the type checker
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type StringNode struct{ Value string }

// IdentNode.Var is nil until the type checker resolves the name.
type IdentNode struct {
	Name string
	Var  *Var
}

// BinaryOpNode covers arithmetic (Plus Minus Star Slash), comparison
// (EqEq Neq Lt Lte) and the short-circuit operators (AndAnd OrOr).
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type AssignNode struct{ Lhs, Rhs *Node }

// UnaryOpNode ops: Minus, Not, and prefix Inc/Dec.
type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}
type PostfixOpNode struct {
	Op   token.Type
	Expr *Node
}
type IndirectionNode struct{ Expr *Node }
type AddressOfNode struct{ LValue *Node }
type TernaryNode struct{ Cond, ThenExpr, ElseExpr *Node }

// MemberAccessNode.Member is resolved by the type checker.
type MemberAccessNode struct {
	Expr   *Node
	Name   string
	Member *Member
}

// SizeofNode holds Op token.Sizeof or token.Alignof. The type checker
// replaces it by a Number.
type SizeofNode struct {
	Op   token.Type
	Expr *Node
}
type FuncCallNode struct {
	Name string
	Args []*Node
}
type StmtExprNode struct{ Body *Node }
type FuncDeclNode struct {
	Name       string
	Params     []*Node // VarDecl nodes
	Body       *Node
	ReturnType *Type
	StackSize  int // set by the type checker
}
type VarDeclNode struct {
	Var  *Var
	Init *Node
}
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type ForNode struct{ Init, Cond, Post, Body *Node }
type DoWhileNode struct{ Body, Cond *Node }
type ReturnNode struct{ Expr *Node }
type ExprStmtNode struct{ Expr *Node }

// BlockNode is a compound statement. A synthetic block groups statements
// without opening a scope, as for `int a, b;`.
type BlockNode struct {
	Stmts       []*Node
	IsSynthetic bool
}
type NullNode struct{}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewPostfixOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, PostfixOp, PostfixOpNode{Op: op, Expr: expr}, expr)
}
func NewIndirection(tok token.Token, expr *Node) *Node {
	return newNode(tok, Indirection, IndirectionNode{Expr: expr}, expr)
}
func NewAddressOf(tok token.Token, lvalue *Node) *Node {
	return newNode(tok, AddressOf, AddressOfNode{LValue: lvalue}, lvalue)
}
func NewTernary(tok token.Token, cond, thenExpr, elseExpr *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, ThenExpr: thenExpr, ElseExpr: elseExpr}, cond, thenExpr, elseExpr)
}
func NewMemberAccess(tok token.Token, expr *Node, name string) *Node {
	return newNode(tok, MemberAccess, MemberAccessNode{Expr: expr, Name: name}, expr)
}
func NewSizeof(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, Sizeof, SizeofNode{Op: op, Expr: expr}, expr)
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	node := newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args})
	for _, arg := range args {
		arg.Parent = node
	}
	return node
}
func NewStmtExpr(tok token.Token, body *Node) *Node {
	return newNode(tok, StmtExpr, StmtExprNode{Body: body}, body)
}
func NewFuncDecl(tok token.Token, name string, params []*Node, body *Node, returnType *Type) *Node {
	node := newNode(tok, FuncDecl, FuncDeclNode{Name: name, Params: params, Body: body, ReturnType: returnType}, body)
	for _, p := range params {
		p.Parent = node
	}
	return node
}

// NewVarDecl declares a local variable. The type checker assigns its
// stack slot.
func NewVarDecl(tok token.Token, name string, typ *Type, init *Node) *Node {
	return newNode(tok, VarDecl, VarDeclNode{Var: &Var{Name: name, Ty: typ}, Init: init}, init)
}

// NewGlobalVarDecl declares a global variable. data is its initializer
// and may be nil; the object is typ.Size bytes long.
func NewGlobalVarDecl(tok token.Token, name string, typ *Type, data []byte, extern bool) *Node {
	v := &Var{Name: name, Ty: typ, Storage: Global{Data: data, Len: typ.Size, Extern: extern}}
	return newNode(tok, VarDecl, VarDeclNode{Var: v})
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewFor(tok token.Token, init, cond, post, body *Node) *Node {
	return newNode(tok, For, ForNode{Init: init, Cond: cond, Post: post, Body: body}, init, cond, post, body)
}
func NewDoWhile(tok token.Token, body, cond *Node) *Node {
	return newNode(tok, DoWhile, DoWhileNode{Body: body, Cond: cond}, body, cond)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node, isSynthetic bool) *Node {
	node := newNode(tok, Block, BlockNode{Stmts: stmts, IsSynthetic: isSynthetic})
	for _, s := range stmts {
		if s != nil {
			s.Parent = node
		}
	}
	return node
}
func NewNull(tok token.Token) *Node {
	return newNode(tok, Null, NullNode{})
}
