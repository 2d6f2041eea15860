// Package irvm interprets lowered IR directly. It models the contract a
// real back end has to honour: r0 is the frame base, locals live below it,
// STOREn_ARG copies the n-th call argument into the frame, and KILLed
// registers are dead.
package irvm

import (
	"encoding/binary"

	"github.com/xplshn/ccfront/pkg/ast"
	"github.com/xplshn/ccfront/pkg/ir"
	"github.com/xplshn/ccfront/pkg/util"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// Builtin implements a function the program calls but does not define.
type Builtin func(m *Machine, args []int64) (int64, error)

const (
	DefaultMemSize  = 1 << 20
	DefaultMaxSteps = 1 << 22
	dataBase        = 16
	frameAlign      = 16
)

type Machine struct {
	Builtins map[string]Builtin
	MaxSteps int

	funcs   map[string]*ir.Function
	labels  map[*ir.Function]map[int]int
	globals map[string]int64
	mem     []byte
	sp      int64
	steps   int
	depth   int
}

// trap aborts execution; Call turns it into an error.
type trap struct{ err error }

func (m *Machine) fail(format string, args ...interface{}) {
	panic(trap{errors.New(format, args...)})
}

// New lays out the program's globals and indexes its functions.
func New(prog *ir.Program) (*Machine, error) {
	m := &Machine{
		Builtins: make(map[string]Builtin),
		MaxSteps: DefaultMaxSteps,
		funcs:    make(map[string]*ir.Function),
		labels:   make(map[*ir.Function]map[int]int),
		globals:  make(map[string]int64),
		mem:      make([]byte, DefaultMemSize),
	}

	addr := int64(dataBase)
	for _, v := range prog.Globals {
		g, ok := v.Storage.(ast.Global)
		if !ok {
			return nil, errors.New("global %s has no global storage", v.Name)
		}
		if _, dup := m.globals[v.Name]; dup {
			return nil, errors.New("global %s defined twice", v.Name)
		}
		addr = int64(util.AlignUp(int(addr), max(v.Ty.Align, 1)))
		size := max(g.Len, v.Ty.Size, len(g.Data))
		if addr+int64(size) > int64(len(m.mem))/2 {
			return nil, errors.New("globals do not fit in memory")
		}
		m.globals[v.Name] = addr
		copy(m.mem[addr:], g.Data)
		addr += int64(size)
	}
	m.sp = int64(len(m.mem))

	for _, f := range prog.Funcs {
		if _, dup := m.funcs[f.Name]; dup {
			return nil, errors.New("function %s defined twice", f.Name)
		}
		m.funcs[f.Name] = f
		idx := make(map[int]int)
		for i, in := range f.IR {
			if in.Op == ir.OpLabel {
				idx[in.Lhs] = i
			}
		}
		m.labels[f] = idx
	}
	return m, nil
}

// GlobalAddr returns the address of a global variable.
func (m *Machine) GlobalAddr(name string) (int64, bool) {
	a, ok := m.globals[name]
	return a, ok
}

// Run calls main with no arguments.
func (m *Machine) Run() (int64, error) { return m.Call("main") }

// Call runs the named function to completion and returns its result.
func (m *Machine) Call(name string, args ...int64) (ret int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			ret, err = 0, t.err
		}
	}()

	m.steps = 0
	ret = m.call(name, args)
	tlog.V("irvm").Printw("call", "func", name, "args", args, "ret", ret, "steps", m.steps)
	return ret, nil
}

func (m *Machine) call(name string, args []int64) int64 {
	f, ok := m.funcs[name]
	if !ok {
		b, ok := m.Builtins[name]
		if !ok {
			m.fail("call to undefined function %s", name)
		}
		v, err := b(m, args)
		if err != nil {
			m.fail("%s: %v", name, err)
		}
		return v
	}

	if m.depth > 10000 {
		m.fail("call depth exceeded in %s", name)
	}
	m.depth++
	defer func() { m.depth-- }()

	bp := m.sp
	m.sp -= int64(util.AlignUp(f.StackSize, frameAlign))
	if m.sp < int64(len(m.mem))/2 {
		m.fail("stack overflow in %s", name)
	}
	defer func() { m.sp = bp }()

	fr := &frame{m: m, fn: f, bp: bp, args: args, regs: map[int]int64{ir.BaseReg: bp}, dead: map[int]bool{}}
	return fr.run()
}

type frame struct {
	m    *Machine
	fn   *ir.Function
	bp   int64
	args []int64
	regs map[int]int64
	dead map[int]bool
}

func (fr *frame) get(r int) int64 {
	if fr.dead[r] {
		fr.m.fail("%s: read of killed register r%d", fr.fn.Name, r)
	}
	v, ok := fr.regs[r]
	if !ok {
		fr.m.fail("%s: read of undefined register r%d", fr.fn.Name, r)
	}
	return v
}

func (fr *frame) set(r int, v int64) {
	if r == ir.BaseReg {
		fr.m.fail("%s: write to base register", fr.fn.Name)
	}
	// A loop body redefines the registers it killed on the previous pass.
	delete(fr.dead, r)
	fr.regs[r] = v
}

func (fr *frame) jump(label int) int {
	i, ok := fr.m.labels[fr.fn][label]
	if !ok {
		fr.m.fail("%s: jump to undefined label .L%d", fr.fn.Name, label)
	}
	return i
}

func (fr *frame) run() int64 {
	m := fr.m
	for pc := 0; pc < len(fr.fn.IR); pc++ {
		m.steps++
		if m.MaxSteps > 0 && m.steps > m.MaxSteps {
			m.fail("%s: step limit of %d exceeded", fr.fn.Name, m.MaxSteps)
		}

		in := fr.fn.IR[pc]
		switch in.Op {
		case ir.OpImm:
			fr.set(in.Lhs, int64(in.Rhs))
		case ir.OpMov:
			fr.set(in.Lhs, fr.get(in.Rhs))
		case ir.OpAdd:
			fr.set(in.Lhs, fr.get(in.Lhs)+fr.get(in.Rhs))
		case ir.OpSub:
			fr.set(in.Lhs, fr.get(in.Lhs)-fr.get(in.Rhs))
		case ir.OpMul:
			fr.set(in.Lhs, fr.get(in.Lhs)*fr.get(in.Rhs))
		case ir.OpDiv:
			d := fr.get(in.Rhs)
			if d == 0 {
				m.fail("%s: division by zero", fr.fn.Name)
			}
			fr.set(in.Lhs, fr.get(in.Lhs)/d)
		case ir.OpAddImm:
			fr.set(in.Lhs, fr.get(in.Lhs)+int64(in.Rhs))
		case ir.OpSubImm:
			fr.set(in.Lhs, fr.get(in.Lhs)-int64(in.Rhs))
		case ir.OpLt:
			fr.set(in.Lhs, b2i(fr.get(in.Lhs) < fr.get(in.Rhs)))
		case ir.OpLe:
			fr.set(in.Lhs, b2i(fr.get(in.Lhs) <= fr.get(in.Rhs)))
		case ir.OpEq:
			fr.set(in.Lhs, b2i(fr.get(in.Lhs) == fr.get(in.Rhs)))
		case ir.OpNe:
			fr.set(in.Lhs, b2i(fr.get(in.Lhs) != fr.get(in.Rhs)))
		case ir.OpLabel, ir.OpNop:
		case ir.OpLabelAddr:
			a, ok := m.globals[in.Name]
			if !ok {
				m.fail("%s: undefined global %s", fr.fn.Name, in.Name)
			}
			fr.set(in.Lhs, a)
		case ir.OpJmp:
			pc = fr.jump(in.Lhs)
		case ir.OpUnless:
			if fr.get(in.Lhs) == 0 {
				pc = fr.jump(in.Rhs)
			}
		case ir.OpIf:
			if fr.get(in.Lhs) != 0 {
				pc = fr.jump(in.Rhs)
			}
		case ir.OpLoad8, ir.OpLoad32, ir.OpLoad64:
			fr.set(in.Lhs, m.load(fr.get(in.Rhs), loadWidth(in.Op)))
		case ir.OpStore8, ir.OpStore32, ir.OpStore64:
			m.store(fr.get(in.Lhs), fr.get(in.Rhs), storeWidth(in.Op))
		case ir.OpStore8Arg, ir.OpStore32Arg, ir.OpStore64Arg:
			if in.Rhs >= len(fr.args) {
				m.fail("%s: argument %d not passed", fr.fn.Name, in.Rhs)
			}
			m.store(fr.bp-int64(in.Lhs), fr.args[in.Rhs], storeWidth(in.Op))
		case ir.OpCall:
			args := make([]int64, len(in.Args))
			for i, r := range in.Args {
				args[i] = fr.get(r)
			}
			fr.set(in.Lhs, m.call(in.Name, args))
		case ir.OpKill:
			fr.get(in.Lhs)
			fr.dead[in.Lhs] = true
			delete(fr.regs, in.Lhs)
		case ir.OpRet:
			return fr.get(in.Lhs)
		default:
			m.fail("%s: unknown instruction %v", fr.fn.Name, in)
		}
	}
	return 0
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func loadWidth(op ir.Op) int {
	switch op {
	case ir.OpLoad8:
		return 1
	case ir.OpLoad64:
		return 8
	}
	return 4
}

func storeWidth(op ir.Op) int {
	switch op {
	case ir.OpStore8, ir.OpStore8Arg:
		return 1
	case ir.OpStore64, ir.OpStore64Arg:
		return 8
	}
	return 4
}

func (m *Machine) check(addr int64, n int) {
	if addr < dataBase || addr+int64(n) > int64(len(m.mem)) {
		m.fail("memory access out of bounds: %#x+%d", addr, n)
	}
}

// load reads a sign-extended value of n bytes.
func (m *Machine) load(addr int64, n int) int64 {
	m.check(addr, n)
	b := m.mem[addr : addr+int64(n)]
	switch n {
	case 1:
		return int64(int8(b[0]))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (m *Machine) store(addr, v int64, n int) {
	m.check(addr, n)
	b := m.mem[addr : addr+int64(n)]
	switch n {
	case 1:
		b[0] = byte(v)
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
}

// Load reads a 32-bit int at addr, for inspecting globals after a run.
func (m *Machine) Load(addr int64) (v int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			err = t.err
		}
	}()
	return m.load(addr, 4), nil
}

// CString reads a NUL-terminated string at addr.
func (m *Machine) CString(addr int64) (string, error) {
	for end := addr; end >= dataBase && end < int64(len(m.mem)); end++ {
		if m.mem[end] == 0 {
			return string(m.mem[addr:end]), nil
		}
	}
	return "", errors.New("unterminated string at %#x", addr)
}
