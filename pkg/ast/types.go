package ast

import (
	"fmt"
	"strings"

	"github.com/xplshn/ccfront/pkg/util"
	"modernc.org/mathutil"
)

// TypeKind defines the kind of a Type
type TypeKind int

// Type kinds enum
const (
	TYPE_INT TypeKind = iota
	TYPE_CHAR
	TYPE_POINTER
	TYPE_ARRAY
	TYPE_STRUCT
	TYPE_VOID
)

// Type is a C type with its byte size and alignment.
type Type struct {
	Kind    TypeKind
	Size    int
	Align   int
	Base    *Type // pointee or element type
	Len     int   // array length
	Members []*Member
}

type Member struct {
	Name   string
	Ty     *Type
	Offset int
}

// Pre-defined types. They are shared and must not be modified.
var (
	TypeInt  = &Type{Kind: TYPE_INT, Size: 4, Align: 4}
	TypeChar = &Type{Kind: TYPE_CHAR, Size: 1, Align: 1}
	TypeVoid = &Type{Kind: TYPE_VOID, Size: 0, Align: 1}
)

func PtrTo(base *Type) *Type {
	return &Type{Kind: TYPE_POINTER, Size: 8, Align: 8, Base: base}
}

func ArrayOf(base *Type, n int) *Type {
	return &Type{Kind: TYPE_ARRAY, Size: base.Size * n, Align: base.Align, Base: base, Len: n}
}

// StructOf lays out members in order, each at the next offset aligned for
// its type. The input is not modified.
func StructOf(members []*Member) *Type {
	t := &Type{Kind: TYPE_STRUCT, Align: 1}
	off := 0
	for _, m := range members {
		off = util.AlignUp(off, m.Ty.Align)
		t.Members = append(t.Members, &Member{Name: m.Name, Ty: m.Ty, Offset: off})
		off += m.Ty.Size
		t.Align = mathutil.Max(t.Align, m.Ty.Align)
	}
	t.Size = util.AlignUp(off, t.Align)
	return t
}

func (t *Type) IsPointer() bool { return t != nil && t.Kind == TYPE_POINTER }

// FindMember returns the member called name, or nil.
func (t *Type) FindMember(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (t *Type) String() string {
	if t == nil {
		return "<untyped>"
	}
	switch t.Kind {
	case TYPE_INT:
		return "int"
	case TYPE_CHAR:
		return "char"
	case TYPE_VOID:
		return "void"
	case TYPE_POINTER:
		return t.Base.String() + "*"
	case TYPE_ARRAY:
		return fmt.Sprintf("%s[%d]", t.Base, t.Len)
	case TYPE_STRUCT:
		var sb strings.Builder
		sb.WriteString("struct {")
		for _, m := range t.Members {
			fmt.Fprintf(&sb, " %s %s;", m.Ty, m.Name)
		}
		sb.WriteString(" }")
		return sb.String()
	}
	return "<unknown>"
}

// Var is a named object. Storage is nil until the type checker places a
// local; globals carry it from their declaration.
type Var struct {
	Name    string
	Ty      *Type
	Storage Storage
}

// Storage is either Local or Global.
type Storage interface{ isStorage() }

// Local is a stack slot at Offset bytes below the frame base.
type Local struct{ Offset int }

type Global struct {
	Data   []byte // initializer, nil for zero-filled
	Len    int
	Extern bool
}

func (Local) isStorage()  {}
func (Global) isStorage() {}

func (v *Var) IsLocal() bool {
	_, ok := v.Storage.(Local)
	return ok
}

// Offset returns the stack offset of a local, or 0.
func (v *Var) Offset() int {
	if l, ok := v.Storage.(Local); ok {
		return l.Offset
	}
	return 0
}
