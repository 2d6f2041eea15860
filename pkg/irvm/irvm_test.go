package irvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/ir"
	"tlog.app/go/errors"
)

type I = ir.Instruction

func fn(name string, stack int, code ...I) *ir.Function {
	return &ir.Function{Name: name, StackSize: stack, IR: code}
}

func machine(t *testing.T, globals []*ast.Var, fns ...*ir.Function) *Machine {
	t.Helper()
	m, err := New(&ir.Program{Funcs: fns, Globals: globals})
	require.NoError(t, err)
	return m
}

func TestCountdownLoop(t *testing.T) {
	m := machine(t, nil, fn("main", 0,
		I{Op: ir.OpImm, Lhs: 1, Rhs: 0},
		I{Op: ir.OpImm, Lhs: 2, Rhs: 5},
		I{Op: ir.OpLabel, Lhs: 1},
		I{Op: ir.OpUnless, Lhs: 2, Rhs: 2},
		I{Op: ir.OpAdd, Lhs: 1, Rhs: 2},
		I{Op: ir.OpSubImm, Lhs: 2, Rhs: 1},
		I{Op: ir.OpJmp, Lhs: 1},
		I{Op: ir.OpLabel, Lhs: 2},
		I{Op: ir.OpRet, Lhs: 1},
	))

	v, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)
}

func TestCallPassesArguments(t *testing.T) {
	add := fn("add", 8,
		I{Op: ir.OpStore32Arg, Lhs: 4, Rhs: 0},
		I{Op: ir.OpStore32Arg, Lhs: 8, Rhs: 1},
		I{Op: ir.OpMov, Lhs: 1, Rhs: ir.BaseReg},
		I{Op: ir.OpSubImm, Lhs: 1, Rhs: 4},
		I{Op: ir.OpLoad32, Lhs: 1, Rhs: 1},
		I{Op: ir.OpMov, Lhs: 2, Rhs: ir.BaseReg},
		I{Op: ir.OpSubImm, Lhs: 2, Rhs: 8},
		I{Op: ir.OpLoad32, Lhs: 2, Rhs: 2},
		I{Op: ir.OpSub, Lhs: 1, Rhs: 2},
		I{Op: ir.OpKill, Lhs: 2},
		I{Op: ir.OpRet, Lhs: 1},
	)
	main := fn("main", 0,
		I{Op: ir.OpImm, Lhs: 1, Rhs: 50},
		I{Op: ir.OpImm, Lhs: 2, Rhs: 8},
		I{Op: ir.OpCall, Lhs: 3, Name: "add", Args: []int{1, 2}},
		I{Op: ir.OpKill, Lhs: 1},
		I{Op: ir.OpKill, Lhs: 2},
		I{Op: ir.OpRet, Lhs: 3},
	)

	m := machine(t, nil, add, main)
	v, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = m.Call("add", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)
}

func TestGlobals(t *testing.T) {
	g := &ast.Var{Name: "g", Ty: ast.TypeInt, Storage: ast.Global{Data: []byte{7, 0, 0, 0}}}
	s := &ast.Var{Name: "s", Ty: ast.ArrayOf(ast.TypeChar, 3), Storage: ast.Global{Data: []byte("hi\x00"), Len: 3}}

	m := machine(t, []*ast.Var{g, s}, fn("main", 0,
		I{Op: ir.OpLabelAddr, Lhs: 1, Name: "g"},
		I{Op: ir.OpMov, Lhs: 2, Rhs: 1},
		I{Op: ir.OpLoad32, Lhs: 2, Rhs: 2},
		I{Op: ir.OpAddImm, Lhs: 2, Rhs: 1},
		I{Op: ir.OpStore32, Lhs: 1, Rhs: 2},
		I{Op: ir.OpKill, Lhs: 1},
		I{Op: ir.OpRet, Lhs: 2},
	))

	v, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	addr, ok := m.GlobalAddr("g")
	require.True(t, ok)
	v, err = m.Load(addr)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)

	addr, ok = m.GlobalAddr("s")
	require.True(t, ok)
	str, err := m.CString(addr)
	require.NoError(t, err)
	assert.Equal(t, "hi", str)
}

func TestNarrowLoadsSignExtend(t *testing.T) {
	m := machine(t, nil, fn("main", 1,
		I{Op: ir.OpMov, Lhs: 1, Rhs: ir.BaseReg},
		I{Op: ir.OpSubImm, Lhs: 1, Rhs: 1},
		I{Op: ir.OpImm, Lhs: 2, Rhs: 200},
		I{Op: ir.OpStore8, Lhs: 1, Rhs: 2},
		I{Op: ir.OpLoad8, Lhs: 1, Rhs: 1},
		I{Op: ir.OpRet, Lhs: 1},
	))

	v, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(-56), v)
}

func TestBuiltins(t *testing.T) {
	m := machine(t, nil, fn("main", 0,
		I{Op: ir.OpImm, Lhs: 1, Rhs: 9},
		I{Op: ir.OpCall, Lhs: 2, Name: "twice", Args: []int{1}},
		I{Op: ir.OpRet, Lhs: 2},
	))

	var seen []int64
	m.Builtins["twice"] = func(_ *Machine, args []int64) (int64, error) {
		seen = append(seen, args...)
		return args[0] * 2, nil
	}

	v, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(18), v)
	assert.Equal(t, []int64{9}, seen)

	m.Builtins["twice"] = func(*Machine, []int64) (int64, error) {
		return 0, errors.New("refused")
	}
	_, err = m.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice: refused")
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name string
		code []I
		want string
	}{
		{
			"killed register",
			[]I{
				{Op: ir.OpImm, Lhs: 1, Rhs: 1},
				{Op: ir.OpKill, Lhs: 1},
				{Op: ir.OpRet, Lhs: 1},
			},
			"read of killed register r1",
		},
		{
			"undefined register",
			[]I{{Op: ir.OpRet, Lhs: 3}},
			"read of undefined register r3",
		},
		{
			"write to base",
			[]I{{Op: ir.OpImm, Lhs: ir.BaseReg, Rhs: 1}},
			"write to base register",
		},
		{
			"undefined function",
			[]I{{Op: ir.OpCall, Lhs: 1, Name: "missing"}},
			"call to undefined function missing",
		},
		{
			"division by zero",
			[]I{
				{Op: ir.OpImm, Lhs: 1, Rhs: 1},
				{Op: ir.OpImm, Lhs: 2, Rhs: 0},
				{Op: ir.OpDiv, Lhs: 1, Rhs: 2},
			},
			"division by zero",
		},
		{
			"missing argument",
			[]I{{Op: ir.OpStore32Arg, Lhs: 4, Rhs: 0}},
			"argument 0 not passed",
		},
		{
			"undefined label",
			[]I{{Op: ir.OpJmp, Lhs: 9}},
			"jump to undefined label .L9",
		},
		{
			"null pointer",
			[]I{
				{Op: ir.OpImm, Lhs: 1, Rhs: 0},
				{Op: ir.OpLoad32, Lhs: 1, Rhs: 1},
			},
			"out of bounds",
		},
		{
			"runaway loop",
			[]I{
				{Op: ir.OpLabel, Lhs: 1},
				{Op: ir.OpJmp, Lhs: 1},
			},
			"step limit of 1000 exceeded",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := machine(t, nil, fn("main", 16, tc.code...))
			m.MaxSteps = 1000

			_, err := m.Run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestUnboundedRecursion(t *testing.T) {
	m := machine(t, nil, fn("main", 64,
		I{Op: ir.OpCall, Lhs: 1, Name: "main"},
		I{Op: ir.OpRet, Lhs: 1},
	))
	m.MaxSteps = 0

	_, err := m.Run()
	require.Error(t, err)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(&ir.Program{Funcs: []*ir.Function{fn("f", 0), fn("f", 0)}})
	assert.Error(t, err)

	g := &ast.Var{Name: "g", Ty: ast.TypeInt, Storage: ast.Global{}}
	_, err = New(&ir.Program{Globals: []*ast.Var{g, g}})
	assert.Error(t, err)

	local := &ast.Var{Name: "l", Ty: ast.TypeInt, Storage: ast.Local{Offset: 4}}
	_, err = New(&ir.Program{Globals: []*ast.Var{local}})
	assert.Error(t, err)
}
