package code

// LabelKind distinguishes anonymous labels from named ones, and scopes
// named labels to a function-like parent (spec.md §3, "LabelEntry").
type LabelKind uint8

const (
	LabelAnonymous LabelKind = iota
	LabelNamedLocal
	LabelNamedGlobal
)

const InvalidID uint32 = 0xFFFFFFFF

// LabelEntry is the per-label record owned by a CodeHolder.
type LabelEntry struct {
	ID       uint32
	Kind     LabelKind
	ParentID uint32 // InvalidID if unscoped
	Name     string

	Bound         bool
	SectionID     uint32
	OffsetInSect  uint64

	// links is the head of this label's pending-reference list. Links are
	// removed from this slice as they are resolved (patched in place, or
	// promoted to a RelocEntry).
	links []LabelLink
}

// LabelLink is a pending reference to a label: a slot in some section's
// buffer that must be patched once (or if) the label binds.
type LabelLink struct {
	SourceSectionID uint32
	SourceOffset    uint64
	SlotSize        uint8 // 1, 2, 4 or 8
	Signed          bool
	PCRelative      bool // true for rel8/rel32-style jump displacements

	// RelocEntryID, when >= 0, names a RelocEntry the caller allocated
	// before creating the link (the embedLabel path); binding only fills
	// in that entry's target. -1 means the link carries its own slot
	// description: BindLabel patches it in place when the label binds in
	// the link's source section, and otherwise promotes it to a newly
	// allocated RelocEntry.
	RelocEntryID int
}

// RelocKind enumerates what a RelocEntry's payload means (spec.md §3/§6).
type RelocKind uint8

const (
	RelocAbsoluteToAbsolute RelocKind = 1
	RelocRelativeToAbsolute RelocKind = 2
	RelocExpression         RelocKind = 3
)

// RelocEntry describes a byte slot that must be rewritten once a final
// load address is chosen (spec.md §3/§6, "RelocEntry").
type RelocEntry struct {
	ID int

	SourceSectionID uint32
	SourceOffset    uint64

	// TargetSectionID is InvalidID when the target is expression- or
	// absolute-only.
	TargetSectionID uint32

	Size uint8 // 1, 2, 4 or 8
	Kind RelocKind

	// PCRelative, when true, means the patched value is a displacement
	// relative to the address immediately after the slot (e.g. a
	// RIP-relative lea or a cross-section jmp) rather than the target's
	// raw absolute address. It is orthogonal to Kind: Kind says how the
	// target address itself is computed (a bare constant, a
	// section+offset+base sum, or an expression tree); PCRelative says
	// what is done with that address once computed.
	PCRelative bool

	// Payload is, depending on Kind:
	//   RelocAbsoluteToAbsolute: a fully absolute address, used as is
	//     (TargetSectionID is not consulted).
	//   RelocRelativeToAbsolute: the target offset within
	//     TargetSectionID, added to the chosen base address and that
	//     section's flattened offset at RelocateTo time; RelocateTo fails
	//     if TargetSectionID names no section.
	//   RelocExpression: the index of the Expression in the holder's
	//     expression zone.
	Payload uint64
}

// ExprOp is the operator of an Expression node.
type ExprOp uint8

const (
	ExprAdd ExprOp = iota
	ExprSub
)

// ExprOperandKind tags which union member of an ExprOperand is valid.
type ExprOperandKind uint8

const (
	ExprOperandImm ExprOperandKind = iota
	ExprOperandLabel
	ExprOperandExpr
)

// ExprOperand is one operand of an Expression: an immediate, a label id,
// or the index of another Expression.
type ExprOperand struct {
	Kind     ExprOperandKind
	ImmValue int64
	LabelID  uint32
	ExprIdx  int
}

// Expression is the small arithmetic tree used for label deltas that
// can't be folded at emit time (spec.md §3, "Expression").
type Expression struct {
	Op  ExprOp
	LHS ExprOperand
	RHS ExprOperand
}
