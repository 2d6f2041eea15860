package ir

import (
	"tlog.app/go/errors"
)

// Verify checks the register and label discipline of one function:
// r0 is never written, fresh registers appear in increasing order, a
// register is defined before it is read, nothing touches a register after
// its KILL, labels are defined once, and every branch target exists.
func Verify(f *Function) error {
	defined := map[int]bool{BaseReg: true}
	killed := map[int]bool{}
	labels := map[int]bool{}
	maxReg := BaseReg

	for i, in := range f.IR {
		for _, r := range in.Uses() {
			if killed[r] {
				return errors.New("%s: #%d %v: r%d used after KILL", f.Name, i, in, r)
			}
			if !defined[r] {
				return errors.New("%s: #%d %v: r%d used before definition", f.Name, i, in, r)
			}
		}
		if in.Op == OpKill {
			if in.Lhs == BaseReg {
				return errors.New("%s: #%d: base register killed", f.Name, i)
			}
			killed[in.Lhs] = true
		}

		if r := in.Defs(); r >= 0 {
			switch {
			case r == BaseReg:
				return errors.New("%s: #%d %v: base register assigned", f.Name, i, in)
			case killed[r]:
				return errors.New("%s: #%d %v: r%d reused after KILL", f.Name, i, in, r)
			case !defined[r]:
				if r <= maxReg {
					return errors.New("%s: #%d %v: r%d allocated out of order (last r%d)", f.Name, i, in, r, maxReg)
				}
				maxReg = r
				defined[r] = true
			}
		}

		if in.Op == OpLabel {
			if labels[in.Lhs] {
				return errors.New("%s: #%d: label .L%d defined twice", f.Name, i, in.Lhs)
			}
			labels[in.Lhs] = true
		}
	}

	for i, in := range f.IR {
		target := -1
		switch in.Op {
		case OpJmp:
			target = in.Lhs
		case OpUnless, OpIf:
			target = in.Rhs
		}
		if target >= 0 && !labels[target] {
			return errors.New("%s: #%d %v: undefined label .L%d", f.Name, i, in, target)
		}
	}
	return nil
}

// VerifyProgram verifies each function and checks that label ids are
// unique across all of them.
func VerifyProgram(fns []*Function) error {
	owner := map[int]string{}
	for _, f := range fns {
		if err := Verify(f); err != nil {
			return err
		}
		for _, in := range f.IR {
			if in.Op != OpLabel {
				continue
			}
			if prev, ok := owner[in.Lhs]; ok {
				return errors.New("label .L%d defined in both %s and %s", in.Lhs, prev, f.Name)
			}
			owner[in.Lhs] = f.Name
		}
	}
	return nil
}
