// Package arch describes the target architecture a CodeHolder is
// configured for, and the ArchEncoder plug-in boundary.
//
// Per the emission core's scope, architecture-specific instruction tables
// and encoders are external collaborators: this package only defines the
// identifiers a CodeHolder needs to reason about register sizes and the
// interface an encoder must satisfy. Concrete encoders live outside this
// package (see internal/archenc).
package arch

import "github.com/gyuseokByeon/machcode/internal/operand"

// ID identifies a target instruction-set architecture.
type ID uint8

const (
	None ID = iota
	X86
	X64
	ARM32
	ARM64
)

func (id ID) String() string {
	switch id {
	case X86:
		return "x86"
	case X64:
		return "x64"
	case ARM32:
		return "arm32"
	case ARM64:
		return "arm64"
	default:
		return "none"
	}
}

// SubID encodes feature levels within an architecture (e.g. x86 AVX2,
// AVX-512F/VL, or arm32 Thumb). The zero value means "no extra features".
type SubID uint8

// Info is the packed architecture signature described in spec.md §6:
// {id, sub_id, gp_size, gp_count}.
type Info struct {
	ID      ID
	SubID   SubID
	GPSize  uint8 // general-purpose register size in bytes (4 or 8)
	GPCount uint8 // number of addressable general-purpose registers
}

// Is32Bit reports whether the architecture uses 32-bit general-purpose
// registers and pointers.
func (a Info) Is32Bit() bool { return a.GPSize == 4 }

// Is64Bit reports whether the architecture uses 64-bit general-purpose
// registers and pointers.
func (a Info) Is64Bit() bool { return a.GPSize == 8 }

// X86Info and X64Info are the two architectures this module's reference
// encoder (internal/archenc/golangasm) targets.
var (
	X86Info = Info{ID: X86, GPSize: 4, GPCount: 8}
	X64Info = Info{ID: X64, GPSize: 8, GPCount: 16}
)

// CodeInfo seeds a CodeHolder: the target architecture plus an optional
// preferred load base address (0 means "unknown until RelocateTo").
type CodeInfo struct {
	Arch        Info
	BaseAddress uint64
}

// EncodeResult is what an ArchEncoder returns for one instruction: the
// shortest valid encoding, plus bookkeeping the caller (Assembler) needs
// to create a LabelLink when one of the operands referenced a label.
type EncodeResult struct {
	Bytes []byte

	// HasLabel is true when one operand was a Label (bound or not); in
	// that case LabelSlotOffset/LabelSlotSize/LabelSlotSigned describe
	// where within Bytes the label's displacement or address was written
	// (as zeros, to be patched by CodeHolder.BindLabel or promoted to a
	// RelocEntry).
	HasLabel        bool
	LabelSlotOffset int
	LabelSlotSize   int
	LabelSlotSigned bool
	// LabelSlotPCRelative is true when the patched value must be relative
	// to the address right after the instruction (e.g. x86 rel32 jumps),
	// false when it is an absolute address (e.g. embedLabel).
	LabelSlotPCRelative bool
}

// ArchEncoder is the plug-in boundary for architecture-specific
// instruction tables and encoders (out of scope for this spec beyond this
// interface). A CodeHolder-attached Assembler dispatches each emitted
// instruction to one ArchEncoder.
type ArchEncoder interface {
	// Info returns the architecture this encoder targets.
	Info() Info

	// Encode produces the shortest valid encoding for instId and its
	// operands, or an error wrapping coreerr.ErrInvalidInstruction.
	Encode(instID uint32, operands []operand.Operand) (EncodeResult, error)

	// Validate reports whether instId+operands would be accepted by
	// Encode, without producing bytes. Used by strict-validation mode.
	Validate(instID uint32, operands []operand.Operand) error
}

// NopFiller is implemented by encoders that know how to pad code sections
// with a target-specific NOP sequence (spec.md §4.C, Align with
// mode=code). An encoder that doesn't implement it causes Align to fall
// back to zero-byte padding, which is always correct for data/zero-fill
// alignment but only semantically inert for a code section if the host
// never executes through the gap.
type NopFiller interface {
	FillNop(n int) []byte
}
