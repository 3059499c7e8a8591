package machcode

import (
	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/code"
)

// Re-exported types so callers never need to import internal/... packages
// directly; the internal packages stay internal because their split
// between arch/operand/zone/code/emit is an implementation detail, not
// part of the contract this façade promises to keep stable.
type (
	ArchID       = arch.ID
	ArchSubID    = arch.SubID
	ArchInfo     = arch.Info
	CodeInfo     = arch.CodeInfo
	ArchEncoder  = arch.ArchEncoder
	EncodeResult = arch.EncodeResult

	Section      = code.Section
	SectionFlags = code.SectionFlags
	LabelKind    = code.LabelKind
	LabelEntry   = code.LabelEntry
	RelocKind    = code.RelocKind
	RelocEntry   = code.RelocEntry
	Expression   = code.Expression
)

const (
	ArchNone  = arch.None
	ArchX86   = arch.X86
	ArchX64   = arch.X64
	ArchARM32 = arch.ARM32
	ArchARM64 = arch.ARM64
)

var (
	X86Info = arch.X86Info
	X64Info = arch.X64Info
)

const (
	SectionFlagCode     = code.SectionFlagCode
	SectionFlagData     = code.SectionFlagData
	SectionFlagZeroFill = code.SectionFlagZeroFill
)

const (
	LabelAnonymous   = code.LabelAnonymous
	LabelNamedLocal  = code.LabelNamedLocal
	LabelNamedGlobal = code.LabelNamedGlobal
)

const InvalidLabelID = code.InvalidID

// CodeHolder is the sole owner of emitted bytes and all emission metadata
// (spec.md §4.B). It mediates between whichever single emitter is
// currently attached to it.
type CodeHolder struct {
	h *code.Holder
}

// NewCodeHolder constructs an unconfigured CodeHolder; call Init before
// attaching any emitter.
func NewCodeHolder() *CodeHolder {
	return &CodeHolder{h: code.New()}
}

// internal exposes the underlying *code.Holder for the emit façade in
// emitter.go, which lives in this same package.
func (c *CodeHolder) internal() *code.Holder { return c.h }

func (c *CodeHolder) Init(info CodeInfo) error { return c.h.Init(info) }

func (c *CodeHolder) Reset(freeMemory bool) { c.h.Reset(freeMemory) }

func (c *CodeHolder) Info() CodeInfo { return c.h.Info() }

func (c *CodeHolder) NewSection(name string, flags SectionFlags, alignment uint32) (*Section, error) {
	return c.h.NewSection(name, flags, alignment)
}

func (c *CodeHolder) Section(id uint32) *Section        { return c.h.Section(id) }
func (c *CodeHolder) SectionByName(name string) *Section { return c.h.SectionByName(name) }
func (c *CodeHolder) TextSection() *Section              { return c.h.TextSection() }
func (c *CodeHolder) Sections() []*Section                { return c.h.Sections() }

func (c *CodeHolder) NewLabel() uint32 { return c.h.NewLabel() }

func (c *CodeHolder) NewNamedLabel(kind LabelKind, parentID uint32, name string) (uint32, error) {
	return c.h.NewNamedLabel(kind, parentID, name)
}

func (c *CodeHolder) LabelByName(name string, parentID uint32) (uint32, bool) {
	return c.h.LabelByName(name, parentID)
}

func (c *CodeHolder) Label(id uint32) *LabelEntry { return c.h.Label(id) }

func (c *CodeHolder) LabelOffset(id uint32) uint64 { return c.h.LabelOffset(id) }

func (c *CodeHolder) BindLabel(labelID, sectionID uint32, offset uint64) error {
	return c.h.BindLabel(labelID, sectionID, offset)
}

func (c *CodeHolder) UnresolvedLinkCount() int { return c.h.UnresolvedLinkCount() }

func (c *CodeHolder) Flatten() error { return c.h.Flatten() }

func (c *CodeHolder) ResolveUnresolvedLinks() (int, error) { return c.h.ResolveUnresolvedLinks() }

func (c *CodeHolder) RelocateTo(baseAddress uint64) error { return c.h.RelocateTo(baseAddress) }

// SetHandler installs the holder-level fallback ErrorHandler, consulted by
// an attached emitter's ReportError when the emitter has no handler of
// its own (spec.md §6/§7).
func (c *CodeHolder) SetHandler(handler ErrorHandler) { c.h.SetHandler(code.ErrorHandler(handler)) }

// Handler returns the holder-level fallback ErrorHandler, or nil.
func (c *CodeHolder) Handler() ErrorHandler { return ErrorHandler(c.h.Handler()) }
