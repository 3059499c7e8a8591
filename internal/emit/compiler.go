package emit

import (
	"fmt"

	"github.com/gyuseokByeon/machcode/internal/code"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
	"github.com/gyuseokByeon/machcode/internal/zone"
)

// VirtReg is a Compiler-owned virtual register (spec.md §3,
// "VirtualRegister").
type VirtReg struct {
	Index     uint32 // dense index; the operand id is virtual_id_base + Index
	Group     operand.RegGroup
	Type      operand.RegType
	Size      uint8 // virtual size in bytes, <= physical size for its type
	Alignment uint8
	TypeID    uint32
	Weight    uint16
	Fixed     bool
	StackOnly bool
	Name      string

	// allocWork is the transient pointer to the allocator's working
	// record, nulled outside allocation (spec.md §3). It is untyped here
	// since the allocator itself is out of scope; a real allocator pass
	// stores whatever bookkeeping it needs and nils it back out when
	// done.
	allocWork interface{}
}

// Reg returns the operand-visible register for this virtual register.
func (v *VirtReg) Reg() operand.Reg {
	return operand.Reg{Group: v.Group, Type: v.Type, ID: operand.VirtualID(v.Index)}
}

// CallConv identifies a calling convention for a FuncDetail. Only a name
// is modeled; argument-classification rules belong to the (out of scope)
// register allocator / ABI layer.
type CallConv string

// ArgLoc describes where one argument or return value lives once
// allocated: a physical/virtual register or a stack slot.
type ArgLoc struct {
	InReg     bool
	Reg       operand.Reg
	StackSlot int32
}

// FuncDetail records a function's signature-level bookkeeping so a later
// pass can synthesize its prolog/epilog (spec.md §4.F, new_func).
type FuncDetail struct {
	CallConv CallConv
	Args     []ArgLoc
	Returns  []ArgLoc

	ExitLabelID uint32
	EndNode     *Node

	ended bool
}

// InvokeDetail is the per-call bookkeeping of an InvokeNode (spec.md
// §4.F, new_invoke): the call's own FuncDetail (its signature, from the
// callee's point of view), the operand naming the target, and up to two
// return operands.
type InvokeDetail struct {
	CallInstID uint32
	Target     operand.Operand
	Signature  *FuncDetail
	Args       []operand.Operand
	Returns    [2]operand.Operand
	NumReturns int
}

// JumpAnnotation records the candidate target labels of an indirect jump
// so a control-flow builder can reconstruct successors (spec.md §4.F).
type JumpAnnotation struct {
	Candidates []uint32
}

// Compiler extends Builder with virtual registers, function/invocation
// nodes and jump annotations (spec.md §4.F). It does not perform
// register allocation; it exposes the substrate an allocator pass
// consumes before Serialize runs.
type Compiler struct {
	Builder

	virtRegs   zone.Zone[VirtReg]
	activeFunc *FuncDetail
}

// NewCompiler constructs an unattached Compiler.
func NewCompiler() *Compiler {
	c := &Compiler{}
	c.kind = EmitterCompiler
	return c
}

// Attach registers this compiler as the holder's writer. It delegates to
// the embedded Builder's Attach, so the holder's attachment token is the
// Builder value embedded in c; Detach below unwinds through the same
// path, so the pairing stays consistent.
func (c *Compiler) Attach(holder *code.Holder) error {
	return c.Builder.Attach(holder)
}

// Detach releases this compiler's attachment and invalidates every
// virtual register id it had handed out (spec.md §8, scenario 6).
func (c *Compiler) Detach() {
	c.Builder.Detach()
	c.virtRegs.Each(func(_ int, vr *VirtReg) { vr.allocWork = nil })
	c.virtRegs.Reset()
	c.activeFunc = nil
}

// NewVirtReg assigns a dense virtual-register index and returns the
// register, whose operand id is virtual_id_base + index.
func (c *Compiler) NewVirtReg(group operand.RegGroup, typ operand.RegType, size uint8, name string) *VirtReg {
	idx := uint32(c.virtRegs.New(VirtReg{Group: group, Type: typ, Size: size, Name: name}))
	vr := c.virtRegs.Get(int(idx))
	vr.Index = idx
	return vr
}

// VirtRegByID is the inverse of NewVirtReg: given an operand id (which
// must be a virtual id), returns the VirtReg that produced it.
func (c *Compiler) VirtRegByID(id uint32) (*VirtReg, error) {
	if !operand.IsVirtualID(id) {
		return nil, fmt.Errorf("%w: id %d is not a virtual register id", coreerr.ErrInvalidArgument, id)
	}
	idx := operand.VirtualIndex(id)
	if int(idx) >= c.virtRegs.Len() {
		return nil, fmt.Errorf("%w: virtual register index %d", coreerr.ErrInvalidArgument, idx)
	}
	return c.virtRegs.Get(int(idx)), nil
}

// Rename updates a virtual register's display name for logging; it never
// changes emitted semantics.
func (c *Compiler) Rename(reg *VirtReg, name string) { reg.Name = name }

// Alloc and Spill are deprecated no-ops retained to accept legacy input
// streams without failing (spec.md §4.F).
func (c *Compiler) Alloc(*VirtReg) {}
func (c *Compiler) Spill(*VirtReg) {}

// NewFunc opens a function scope: a FuncNode plus its paired exit label.
// It fails if a function is already active - this Compiler models
// non-nested functions, matching the Builder-serial nature of the node
// stream.
func (c *Compiler) NewFunc(callConv CallConv, args, returns []ArgLoc) (*FuncDetail, error) {
	if c.activeFunc != nil {
		return nil, fmt.Errorf("%w: a function is already open", coreerr.ErrInvalidState)
	}
	n, err := c.newNode(NodeFunc)
	if err != nil {
		return nil, err
	}
	exitLabel := c.NewLabel()
	fd := &FuncDetail{CallConv: callConv, Args: args, Returns: returns, ExitLabelID: exitLabel}
	n.Func = fd
	c.activeFunc = fd
	return fd, nil
}

// EndFunc closes the current function scope: it flushes nothing on its
// own (a local constant pool, if any, is the caller's responsibility to
// EmbedConstPool before calling EndFunc) but appends a Sentinel marking
// the function's end and binds the exit label there.
func (c *Compiler) EndFunc() error {
	if c.activeFunc == nil {
		return coreerr.ErrFuncNotStarted
	}
	if err := c.Bind(c.activeFunc.ExitLabelID); err != nil {
		return err
	}
	n, err := c.newNode(NodeSentinel)
	if err != nil {
		return err
	}
	c.activeFunc.EndNode = n
	c.activeFunc.ended = true
	c.activeFunc = nil
	return nil
}

// SetArg binds a virtual register to the i-th declared argument of the
// currently open function.
func (c *Compiler) SetArg(index int, reg *VirtReg) error {
	if c.activeFunc == nil {
		return coreerr.ErrFuncNotStarted
	}
	if index < 0 || index >= len(c.activeFunc.Args) {
		return fmt.Errorf("%w: argument index %d", coreerr.ErrInvalidArgument, index)
	}
	c.activeFunc.Args[index] = ArgLoc{InReg: true, Reg: reg.Reg()}
	return nil
}

// NewInvoke appends an Invoke node describing a call to target under
// signature.
func (c *Compiler) NewInvoke(callInstID uint32, target operand.Operand, signature *FuncDetail) (*InvokeDetail, error) {
	n, err := c.newNode(NodeInvoke)
	if err != nil {
		return nil, err
	}
	inv := &InvokeDetail{CallInstID: callInstID, Target: target, Signature: signature}
	n.Invoke = inv
	return inv, nil
}

// NewJumpAnnotation allocates an empty JumpAnnotation to be filled with
// candidate targets and passed to EmitAnnotatedJump.
func (c *Compiler) NewJumpAnnotation() *JumpAnnotation { return &JumpAnnotation{} }

// EmitAnnotatedJump appends a Jump node carrying both the real jump
// instruction (so Serialize still produces its bytes) and the candidate
// target labels a control-flow builder consumes.
func (c *Compiler) EmitAnnotatedJump(instID uint32, target operand.Operand, annotation *JumpAnnotation) error {
	c.ConsumeNext()
	n, err := c.newNode(NodeJump)
	if err != nil {
		return err
	}
	n.InstID = instID
	n.Operands = []operand.Operand{target}
	n.JumpAnnotation = annotation
	return nil
}
