// Package operand implements the polymorphic operand model shared by every
// emitter: a fixed-width tagged value representing a register, a memory
// reference, an immediate, a label, or nothing.
//
// Operands are value types: copying an Operand is a bit-copy, comparing
// two Operands with == is bit-equality, and constructing one is pure and
// infallible. Validating that an operand is meaningful for a specific
// instruction is deferred to the architecture-specific encoder.
package operand

import "fmt"

// Kind discriminates the payload carried by an Operand.
type Kind uint8

const (
	KindNone Kind = iota
	KindReg
	KindMem
	KindImm
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindReg:
		return "reg"
	case KindMem:
		return "mem"
	case KindImm:
		return "imm"
	case KindLabel:
		return "label"
	default:
		return "none"
	}
}

// RegGroup partitions the physical register file by the kind of value it
// holds.
type RegGroup uint8

const (
	GroupGP RegGroup = iota
	GroupVec
	GroupMask
	GroupIP // unaddressable, used only as a memory base in RIP-relative forms
)

// RegType determines a register's physical size/class.
type RegType uint8

const (
	RegTypeNone RegType = iota
	RegTypeGPByte
	RegTypeGPWord
	RegTypeGPDword
	RegTypeGPQword
	RegTypeXMM
	RegTypeYMM
	RegTypeZMM
	RegTypeMask
)

// virtualIDBase is the sentinel above which a Reg.ID is a virtual-register
// index rather than a physical register index (spec.md §3, Operand: "id
// ... or a virtual-register id ≥ 2^31 sentinel").
const virtualIDBase uint32 = 1 << 31

// IsVirtualID reports whether id denotes a Compiler-owned virtual
// register rather than a physical one.
func IsVirtualID(id uint32) bool { return id >= virtualIDBase }

// VirtualID returns the operand-visible id for the index-th virtual
// register created by a Compiler.
func VirtualID(index uint32) uint32 { return virtualIDBase + index }

// VirtualIndex is the inverse of VirtualID; it panics if id is not a
// virtual id, matching the Compiler's own invariant that it never asks
// for the index of a physical register.
func VirtualIndex(id uint32) uint32 {
	if !IsVirtualID(id) {
		panic("operand: VirtualIndex called with a physical register id")
	}
	return id - virtualIDBase
}

// Reg is a register operand: a physical or virtual register identified by
// (group, type, id).
type Reg struct {
	Group RegGroup
	Type  RegType
	ID    uint32
}

func (r Reg) IsVirtual() bool { return IsVirtualID(r.ID) }

func (r Reg) String() string {
	if r.IsVirtual() {
		return fmt.Sprintf("%%v%d", VirtualIndex(r.ID))
	}
	return fmt.Sprintf("r%d:%d", r.Type, r.ID)
}

// Mem is a memory operand: base + index*scale + disp, with an explicit
// size hint (memory operands don't carry their size via a register type
// the way Reg does).
//
// BaseIsLabel distinguishes a label-relative memory operand (the base
// field holds a label id, to be resolved the same way embedLabel is) from
// a register base.
type Mem struct {
	BaseIsLabel bool
	BaseReg     uint32 // valid when !BaseIsLabel
	BaseLabelID uint32 // valid when BaseIsLabel

	HasIndex bool
	IndexReg uint32
	Shift    uint8 // 0..3, index scale is 1<<Shift

	Disp int32

	Segment  uint8
	SizeHint uint8 // size in bytes of the value at this address
}

func (m Mem) String() string {
	if m.BaseIsLabel {
		return fmt.Sprintf("[label#%d+%#x]", m.BaseLabelID, m.Disp)
	}
	if m.HasIndex {
		return fmt.Sprintf("[r%d+r%d*%d+%#x]", m.BaseReg, m.IndexReg, 1<<m.Shift, m.Disp)
	}
	return fmt.Sprintf("[r%d+%#x]", m.BaseReg, m.Disp)
}

// Imm is a 64-bit immediate operand. Signed and Unsigned present the same
// bits under either interpretation; FitsInBytes answers whether the value
// (under its own signedness) fits a slot of the given byte width, which an
// encoder uses to pick the shortest valid encoding.
type Imm struct {
	Bits   uint64
	Signed bool
}

func ImmI(v int64) Imm  { return Imm{Bits: uint64(v), Signed: true} }
func ImmU(v uint64) Imm { return Imm{Bits: v, Signed: false} }

func (i Imm) Int64() int64   { return int64(i.Bits) }
func (i Imm) Uint64() uint64 { return i.Bits }

// FitsInBytes reports whether the immediate fits into n bytes (1, 2, 4 or
// 8) under its own signedness.
func (i Imm) FitsInBytes(n int) bool {
	if n >= 8 {
		return true
	}
	shift := uint(64 - 8*n)
	if i.Signed {
		v := int64(i.Bits)
		return v == (v<<shift)>>shift
	}
	v := i.Bits
	return v == (v<<shift)>>shift
}

func (i Imm) String() string {
	if i.Signed {
		return fmt.Sprintf("%#x", int64(i.Bits))
	}
	return fmt.Sprintf("%#x", i.Bits)
}

// Label is a reference to a LabelEntry owned by a CodeHolder.
type Label struct {
	ID uint32
}

func (l Label) String() string { return fmt.Sprintf("L%d", l.ID) }

// Operand is the tagged union described in spec.md §3/§4.A. The zero
// value is the None operand.
type Operand struct {
	Kind Kind
	Reg  Reg
	Mem  Mem
	Imm  Imm
	Lbl  Label
}

// None is the zero-valued, semantically empty operand.
var None = Operand{Kind: KindNone}

func OpReg(r Reg) Operand   { return Operand{Kind: KindReg, Reg: r} }
func OpMem(m Mem) Operand   { return Operand{Kind: KindMem, Mem: m} }
func OpImm(i Imm) Operand   { return Operand{Kind: KindImm, Imm: i} }
func OpLabel(l Label) Operand { return Operand{Kind: KindLabel, Lbl: l} }

func (o Operand) IsNone() bool  { return o.Kind == KindNone }
func (o Operand) IsReg() bool   { return o.Kind == KindReg }
func (o Operand) IsMem() bool   { return o.Kind == KindMem }
func (o Operand) IsImm() bool   { return o.Kind == KindImm }
func (o Operand) IsLabel() bool { return o.Kind == KindLabel }

// LabelID returns the label id referenced by this operand, either
// directly (a Label operand) or through a label-based memory base. ok is
// false if the operand does not reference a label at all.
func (o Operand) LabelID() (id uint32, ok bool) {
	switch {
	case o.Kind == KindLabel:
		return o.Lbl.ID, true
	case o.Kind == KindMem && o.Mem.BaseIsLabel:
		return o.Mem.BaseLabelID, true
	default:
		return 0, false
	}
}

func (o Operand) String() string {
	switch o.Kind {
	case KindReg:
		return o.Reg.String()
	case KindMem:
		return o.Mem.String()
	case KindImm:
		return o.Imm.String()
	case KindLabel:
		return o.Lbl.String()
	default:
		return "<none>"
	}
}
