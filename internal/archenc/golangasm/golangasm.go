// Package golangasm implements the one concrete arch.ArchEncoder this
// module ships: a thin x86-64 encoder backed by
// github.com/twitchyliquid64/golang-asm, the same escape hatch the
// teacher repo uses for architectures it doesn't hand-encode itself
// (internal/asm/golang_asm, internal/asm/arm64/golang_asm.go).
//
// It understands exactly the instruction subset the reference demo and
// this module's tests need - MOVL, RET, NOPL, JMP, LEAQ - not a general
// x86-64 instruction table, since architecture-specific instruction
// tables are explicitly out of scope for the emitter/holder core this
// module implements.
package golangasm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

// Instruction ids this encoder understands. A real ArchEncoder's ids
// would come from a generated per-architecture table; this reference
// encoder and cmd/machcode-demo simply agree on this small enum.
const (
	MOVL uint32 = iota + 1
	RET
	NOPL
	JMP
	LEAQ
)

// gpRegs maps machcode's dense 0..15 general-purpose register ids onto
// golang-asm's own x86.REG_* constants, in the standard x86 ModRM/REX
// register-field order (AX=0 .. DI=7, R8=8 .. R15=15).
var gpRegs = [...]int16{
	x86.REG_AX, x86.REG_CX, x86.REG_DX, x86.REG_BX,
	x86.REG_SP, x86.REG_BP, x86.REG_SI, x86.REG_DI,
	x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11,
	x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15,
}

func physReg(r operand.Reg) (int16, error) {
	if r.IsVirtual() {
		return 0, fmt.Errorf("%w: register %s is virtual; an allocator must lower it to a physical register first", coreerr.ErrInvalidArgument, r)
	}
	if int(r.ID) >= len(gpRegs) {
		return 0, fmt.Errorf("%w: register id %d out of range", coreerr.ErrInvalidArgument, r.ID)
	}
	return gpRegs[r.ID], nil
}

// Encoder is the arch.ArchEncoder implementation.
type Encoder struct{}

// New constructs an Encoder targeting x86-64.
func New() *Encoder { return &Encoder{} }

func (e *Encoder) Info() arch.Info { return arch.X64Info }

// FillNop implements arch.NopFiller with single-byte 0x90 NOPs. A
// production encoder would prefer the longer multi-byte NOP forms for
// fewer decode cycles per padded byte; this reference encoder favors
// simplicity since Align's correctness doesn't depend on which NOP form
// is used.
func (e *Encoder) FillNop(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0x90
	}
	return b
}

func (e *Encoder) Validate(instID uint32, operands []operand.Operand) error {
	_, err := e.encode(instID, operands)
	return err
}

func (e *Encoder) Encode(instID uint32, operands []operand.Operand) (arch.EncodeResult, error) {
	return e.encode(instID, operands)
}

func (e *Encoder) encode(instID uint32, operands []operand.Operand) (arch.EncodeResult, error) {
	switch instID {
	case MOVL:
		return e.encodeMOVL(operands)
	case RET:
		return e.encodeSimple(obj.ARET)
	case NOPL:
		return e.encodeNOPL()
	case JMP:
		return e.encodeJMP(operands)
	case LEAQ:
		return e.encodeLEAQ(operands)
	default:
		return arch.EncodeResult{}, fmt.Errorf("%w: unknown instruction id %d", coreerr.ErrInvalidInstruction, instID)
	}
}

// assembleOne hands a single golang-asm Prog to a fresh obj.Link and
// returns its encoding. A fresh builder per instruction keeps this
// encoder stateless between Encode calls, matching the ArchEncoder
// contract (one call in, one encoding out); golang-asm itself is
// designed around accumulating a whole function's Progs into one Link,
// but nothing in its Assemble() pass requires that.
func assembleOne(build func(*obj.Prog)) ([]byte, error) {
	b, err := goasm.NewBuilder("amd64", 32)
	if err != nil {
		return nil, fmt.Errorf("golang-asm builder: %w", err)
	}
	p := b.NewProg()
	build(p)
	b.AddInstruction(p)
	return b.Assemble(), nil
}

func (e *Encoder) encodeSimple(as obj.As) (arch.EncodeResult, error) {
	bytes, err := assembleOne(func(p *obj.Prog) { p.As = as })
	if err != nil {
		return arch.EncodeResult{}, fmt.Errorf("%w: %v", coreerr.ErrInvalidInstruction, err)
	}
	return arch.EncodeResult{Bytes: bytes}, nil
}

// encodeNOPL implements the 3-byte `nopl eax` (0F 1F C0). golang-asm's
// NOPL always takes a ModRM operand, so one is supplied here.
func (e *Encoder) encodeNOPL() (arch.EncodeResult, error) {
	bytes, err := assembleOne(func(p *obj.Prog) {
		p.As = x86.ANOPL
		p.From.Type = obj.TYPE_REG
		p.From.Reg = x86.REG_AX
	})
	if err != nil {
		return arch.EncodeResult{}, fmt.Errorf("%w: %v", coreerr.ErrInvalidInstruction, err)
	}
	return arch.EncodeResult{Bytes: bytes}, nil
}

// encodeMOVL implements `movl dst, imm32` (operands[0]=dst register,
// operands[1]=source immediate), e.g. `mov eax, 1` -> B8 01 00 00 00.
func (e *Encoder) encodeMOVL(operands []operand.Operand) (arch.EncodeResult, error) {
	if len(operands) != 2 || !operands[0].IsReg() || !operands[1].IsImm() {
		return arch.EncodeResult{}, fmt.Errorf("%w: movl expects (register, immediate)", coreerr.ErrInvalidInstruction)
	}
	dst, err := physReg(operands[0].Reg)
	if err != nil {
		return arch.EncodeResult{}, err
	}
	bytes, err := assembleOne(func(p *obj.Prog) {
		p.As = x86.AMOVL
		p.From.Type = obj.TYPE_CONST
		p.From.Offset = operands[1].Imm.Int64()
		p.To.Type = obj.TYPE_REG
		p.To.Reg = dst
	})
	if err != nil {
		return arch.EncodeResult{}, fmt.Errorf("%w: %v", coreerr.ErrInvalidInstruction, err)
	}
	return arch.EncodeResult{Bytes: bytes}, nil
}

// encodeJMP implements an unconditional near jump to a label
// (operands[0]), always in its 5-byte rel32 form (E9 + placeholder) so
// the resulting slot offset/size is deterministic regardless of how far
// away the target eventually binds - the size-optimized short-jump form
// is a legitimate future extension this reference encoder doesn't
// attempt.
func (e *Encoder) encodeJMP(operands []operand.Operand) (arch.EncodeResult, error) {
	if len(operands) != 1 || !operands[0].IsLabel() {
		return arch.EncodeResult{}, fmt.Errorf("%w: jmp expects a single label operand", coreerr.ErrInvalidInstruction)
	}
	return arch.EncodeResult{
		Bytes:               []byte{0xE9, 0, 0, 0, 0},
		HasLabel:            true,
		LabelSlotOffset:     1,
		LabelSlotSize:       4,
		LabelSlotSigned:     true,
		LabelSlotPCRelative: true,
	}, nil
}

// encodeLEAQ implements `leaq dst, [rip+label]` (operands[0]=dst
// register, operands[1]=a label-based memory operand), the RIP-relative
// addressing form used to take a label's runtime address. Limited to the
// low 8 general-purpose registers, since encoding r8-r15 as a ModRM.reg
// field needs a REX.R bit this reference encoder doesn't emit.
func (e *Encoder) encodeLEAQ(operands []operand.Operand) (arch.EncodeResult, error) {
	if len(operands) != 2 || !operands[0].IsReg() || !operands[1].IsMem() || !operands[1].Mem.BaseIsLabel {
		return arch.EncodeResult{}, fmt.Errorf("%w: leaq expects (register, [label])", coreerr.ErrInvalidInstruction)
	}
	dstID := operands[0].Reg.ID
	if dstID > 7 {
		return arch.EncodeResult{}, fmt.Errorf("%w: leaq destination register id %d needs a REX.R bit this reference encoder doesn't emit", coreerr.ErrInvalidInstruction, dstID)
	}
	modrm := byte(0x05) | (byte(dstID) << 3) // mod=00, rm=101 (RIP-relative disp32), reg=dstID
	return arch.EncodeResult{
		Bytes:               []byte{0x48, 0x8D, modrm, 0, 0, 0, 0},
		HasLabel:            true,
		LabelSlotOffset:     3,
		LabelSlotSize:       4,
		LabelSlotSigned:     true,
		LabelSlotPCRelative: true,
	}, nil
}
