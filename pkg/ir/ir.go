package ir

import (
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/ccfront/pkg/ast"
)

type Op int

const (
	OpAdd Op = iota
	OpAddImm
	OpSub
	OpSubImm
	OpMul
	OpDiv
	OpImm // MOV r, imm
	OpMov
	OpLt
	OpLe
	OpEq
	OpNe
	OpLabel
	OpLabelAddr
	OpJmp
	OpUnless
	OpIf
	OpLoad8
	OpLoad32
	OpLoad64
	OpStore8
	OpStore32
	OpStore64
	OpStore8Arg
	OpStore32Arg
	OpStore64Arg
	OpCall
	OpKill
	OpNop
	OpRet
)

var mnemonics = [...]string{
	OpAdd: "ADD", OpAddImm: "ADD", OpSub: "SUB", OpSubImm: "SUB", OpMul: "MUL", OpDiv: "DIV",
	OpImm: "MOV", OpMov: "MOV", OpLt: "LT", OpLe: "LE", OpEq: "EQ", OpNe: "NE",
	OpLabel: "", OpLabelAddr: "LABEL_ADDR", OpJmp: "JMP", OpUnless: "UNLESS", OpIf: "IF",
	OpLoad8: "LOAD8", OpLoad32: "LOAD32", OpLoad64: "LOAD64",
	OpStore8: "STORE8", OpStore32: "STORE32", OpStore64: "STORE64",
	OpStore8Arg: "STORE8_ARG", OpStore32Arg: "STORE32_ARG", OpStore64Arg: "STORE64_ARG",
	OpCall: "CALL", OpKill: "KILL", OpNop: "NOP", OpRet: "RET",
}

func (op Op) String() string {
	if int(op) < len(mnemonics) && mnemonics[op] != "" {
		return mnemonics[op]
	}
	if op == OpLabel {
		return "LABEL"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// BaseReg is the frame base pointer. It is never assigned.
const BaseReg = 0

// Instruction is one three-address instruction. The meaning of Lhs and Rhs
// depends on Op:
//
//	register, register   ADD SUB MUL DIV MOV LT LE EQ NE LOADn STOREn
//	register, immediate  ADD SUB MOV (the Imm forms)
//	register, label      UNLESS IF
//	label                LABEL JMP
//	offset, arg index    STOREn_ARG
//	register             KILL RET
//	register (result)    CALL, with Name and Args
//	register, Name       LABEL_ADDR
type Instruction struct {
	Op   Op
	Lhs  int
	Rhs  int
	Name string
	Args []int
}

type Function struct {
	Name      string
	IR        []Instruction
	StackSize int
}

// Program is everything handed to a back end: lowered functions and the
// global variable table.
type Program struct {
	Funcs   []*Function
	Globals []*ast.Var
}

func (in Instruction) String() string {
	switch in.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMov, OpLt, OpLe, OpEq, OpNe,
		OpLoad8, OpLoad32, OpLoad64, OpStore8, OpStore32, OpStore64:
		return fmt.Sprintf("%s r%d, r%d", in.Op, in.Lhs, in.Rhs)
	case OpAddImm, OpSubImm, OpImm:
		return fmt.Sprintf("%s r%d, %d", in.Op, in.Lhs, in.Rhs)
	case OpUnless, OpIf:
		return fmt.Sprintf("%s r%d, .L%d", in.Op, in.Lhs, in.Rhs)
	case OpLabel:
		return fmt.Sprintf(".L%d=>", in.Lhs)
	case OpJmp:
		return fmt.Sprintf("JMP .L%d", in.Lhs)
	case OpLabelAddr:
		return fmt.Sprintf("LABEL_ADDR r%d, %s", in.Lhs, in.Name)
	case OpStore8Arg, OpStore32Arg, OpStore64Arg:
		return fmt.Sprintf("%s %d, %d", in.Op, in.Lhs, in.Rhs)
	case OpKill, OpRet:
		return fmt.Sprintf("%s r%d", in.Op, in.Lhs)
	case OpNop:
		return "NOP"
	case OpCall:
		var sb strings.Builder
		fmt.Fprintf(&sb, "r%d = %s(", in.Lhs, in.Name)
		for _, a := range in.Args {
			fmt.Fprintf(&sb, ", r%d", a)
		}
		sb.WriteString(")")
		return sb.String()
	}
	return in.Op.String()
}

// Defs returns the register written by in, or -1.
func (in Instruction) Defs() int {
	switch in.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMov, OpLt, OpLe, OpEq, OpNe,
		OpAddImm, OpSubImm, OpImm, OpLoad8, OpLoad32, OpLoad64, OpLabelAddr, OpCall:
		return in.Lhs
	}
	return -1
}

// Uses returns the registers read by in.
func (in Instruction) Uses() []int {
	switch in.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpLt, OpLe, OpEq, OpNe, OpStore8, OpStore32, OpStore64:
		return []int{in.Lhs, in.Rhs}
	case OpMov, OpLoad8, OpLoad32, OpLoad64:
		return []int{in.Rhs}
	case OpAddImm, OpSubImm, OpUnless, OpIf, OpRet, OpKill:
		return []int{in.Lhs}
	case OpCall:
		return in.Args
	}
	return nil
}

func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s():\n", f.Name)
	for _, in := range f.IR {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Dump writes the textual form of every function, one instruction per line.
func Dump(w io.Writer, fns []*Function) error {
	for _, f := range fns {
		if _, err := io.WriteString(w, f.String()); err != nil {
			return err
		}
	}
	return nil
}

// LoadOp and StoreOp pick the access width for a value of type t.
func LoadOp(t *ast.Type) Op {
	switch width(t) {
	case 1:
		return OpLoad8
	case 8:
		return OpLoad64
	}
	return OpLoad32
}

func StoreOp(t *ast.Type) Op {
	switch width(t) {
	case 1:
		return OpStore8
	case 8:
		return OpStore64
	}
	return OpStore32
}

func StoreArgOp(t *ast.Type) Op {
	switch width(t) {
	case 1:
		return OpStore8Arg
	case 8:
		return OpStore64Arg
	}
	return OpStore32Arg
}

func width(t *ast.Type) int {
	switch t.Kind {
	case ast.TYPE_CHAR:
		return 1
	case ast.TYPE_POINTER:
		return 8
	}
	return 4
}
