// Package emit implements the emitter hierarchy of spec.md §4.C-F: a
// BaseEmitter contract shared by every concrete emitter, plus the
// Assembler, Builder and Compiler that implement it.
package emit

import (
	"fmt"

	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/code"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

// Options is the 32-bit emitter-option bitset of spec.md §4.C.
type Options uint32

const (
	OptionLogging Options = 1 << iota
	OptionStrictValidation
	OptionSizeOptimized
	OptionOptimizedAlign
	OptionPredictedJumps
)

func (o Options) Has(f Options) bool { return o&f != 0 }

// AlignMode selects what Align pads with.
type AlignMode uint8

const (
	AlignCode AlignMode = iota // target-specific NOP sequence
	AlignData                 // zero bytes
	AlignZero                 // zero bytes, explicitly zero-fill semantics
)

// ErrorHandler is the non-throwing error-reporting callback of spec.md §6.
type ErrorHandler func(err error, message string, emitter interface{})

// NextInstState is the transient per-instruction state of spec.md §9
// ("Next-instruction state"): options, an extra mask register, and an
// inline comment, all cleared by the next emit call regardless of
// success.
type NextInstState struct {
	Options      Options
	ExtraReg     operand.Reg
	HasExtraReg  bool
	InlineComment string
}

// EmitterType reports a concrete emitter's kind, letting a client (or the
// core itself, e.g. in a log line) distinguish which of the three
// implementations it is holding without a type switch.
type EmitterType uint8

const (
	EmitterNone EmitterType = iota
	EmitterAssembler
	EmitterBuilder
	EmitterCompiler
)

func (t EmitterType) String() string {
	switch t {
	case EmitterAssembler:
		return "assembler"
	case EmitterBuilder:
		return "builder"
	case EmitterCompiler:
		return "compiler"
	default:
		return "none"
	}
}

// lifecycleHooks lets a concrete emitter run its own setup/teardown when
// it attaches to or detaches from a holder (e.g. the Assembler seeding
// its cursor at .text, the Builder allocating its sentinel node).
type lifecycleHooks interface {
	onAttach(holder *code.Holder) error
	onDetach()
}

// Base implements the state and bookkeeping every concrete emitter shares:
// attach/detach, label delegation, section cursor, option flags and
// transient next-instruction state, and error reporting. It is embedded
// by Assembler, Builder and Compiler rather than used on its own.
type Base struct {
	holder   *code.Holder
	handler  ErrorHandler
	archInfo arch.Info

	options Options
	next    NextInstState

	cursorSectionID uint32
	attached        bool
	finalized       bool
	destroyed       bool

	self interface{}
	kind EmitterType
}

// Type reports which concrete emitter this Base backs.
func (b *Base) Type() EmitterType { return b.kind }

// IsFinalized reports whether this emitter has ever been successfully
// attached at least once.
func (b *Base) IsFinalized() bool { return b.finalized }

// IsDestroyed reports whether this emitter's holder was reset or torn
// down while it was attached.
func (b *Base) IsDestroyed() bool { return b.destroyed }

// Attach registers self (the concrete emitter, used as the holder's
// attachment token) with holder, then runs self's onAttach hook if it
// implements one.
func (b *Base) Attach(self interface{}, holder *code.Holder, info arch.Info) error {
	if err := holder.Attach(self); err != nil {
		return err
	}
	b.holder = holder
	b.archInfo = info
	b.attached = true
	b.finalized = true
	b.destroyed = false
	b.cursorSectionID = 0
	b.self = self
	if hooks, ok := self.(lifecycleHooks); ok {
		if err := hooks.onAttach(holder); err != nil {
			holder.Detach(self)
			b.holder = nil
			b.attached = false
			return err
		}
	}
	return nil
}

// Detach clears self's attachment to its holder, if any, running self's
// onDetach hook first.
func (b *Base) Detach(self interface{}) {
	if hooks, ok := self.(lifecycleHooks); ok {
		hooks.onDetach()
	}
	if b.holder != nil {
		b.holder.Detach(self)
	}
	b.holder = nil
	b.attached = false
}

// Holder returns the attached CodeHolder, or nil.
func (b *Base) Holder() *code.Holder { return b.holder }

// ArchInfo returns the cached architecture info from Attach.
func (b *Base) ArchInfo() arch.Info { return b.archInfo }

// RequireAttached fails every emit-family operation on a detached
// emitter, per spec.md §4.C. It also detects an implicit detach caused
// by the holder being reset (or handed to another emitter) while this
// one still believed itself attached, surfacing that as ErrDestroyed
// rather than the more generic ErrNotInitialized.
func (b *Base) RequireAttached() error {
	if !b.attached || b.holder == nil {
		return coreerr.ErrNotInitialized
	}
	if !b.holder.IsAttached(b.self) {
		b.destroyed = true
		b.attached = false
		return coreerr.ErrDestroyed
	}
	return nil
}

// SetHandler installs this emitter's own ErrorHandler (preferred over the
// holder's during ReportError).
func (b *Base) SetHandler(h ErrorHandler) { b.handler = h }

// SetOptions replaces the persistent (not per-instruction) option bitset.
func (b *Base) SetOptions(o Options) { b.options = o }

// Options returns the persistent option bitset.
func (b *Base) Options() Options { return b.options }

// SetNext stages transient next-instruction state, consumed and cleared
// by the next emit call.
func (b *Base) SetNext(n NextInstState) { b.next = n }

// ConsumeNext returns the staged next-instruction state and resets it,
// matching the rule that it is cleared by every emit call, including
// failing ones.
func (b *Base) ConsumeNext() NextInstState {
	n := b.next
	b.next = NextInstState{}
	return n
}

// EffectiveOptions merges the persistent bitset with any transient
// per-instruction override for the instruction about to be emitted.
func (b *Base) EffectiveOptions() Options { return b.options | b.next.Options }

// CursorSection returns the section the cursor currently targets.
func (b *Base) CursorSection() *code.Section { return b.holder.Section(b.cursorSectionID) }

// Section switches the cursor to the end of the given section.
func (b *Base) Section(sectionID uint32) error {
	if b.holder.Section(sectionID) == nil {
		return fmt.Errorf("%w: section id %d", coreerr.ErrInvalidSection, sectionID)
	}
	b.cursorSectionID = sectionID
	return nil
}

// NewLabel delegates to the holder.
func (b *Base) NewLabel() uint32 { return b.holder.NewLabel() }

// NewNamedLabel delegates to the holder.
func (b *Base) NewNamedLabel(kind code.LabelKind, parentID uint32, name string) (uint32, error) {
	return b.holder.NewNamedLabel(kind, parentID, name)
}

// Bind records the binding of label at the current section cursor.
func (b *Base) Bind(labelID uint32) error {
	sec := b.CursorSection()
	return b.holder.BindLabel(labelID, sec.ID, uint64(sec.Size()))
}

// ReportError looks up this emitter's handler first, then the holder's,
// invokes whichever is found, and returns err unchanged - errors are
// never silently swallowed (spec.md §7).
func (b *Base) ReportError(self interface{}, err error, message string) error {
	if err == nil {
		return nil
	}
	switch {
	case b.handler != nil:
		b.handler(err, message, self)
	case b.holder != nil && b.holder.Handler() != nil:
		b.holder.Handler()(err, message, self)
	}
	return err
}

// CheckAlignment validates that alignment is a power of two, as required
// by Align and NewSection.
func CheckAlignment(alignment uint32) error {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return fmt.Errorf("%w: %d", coreerr.ErrInvalidAlignment, alignment)
	}
	return nil
}

func alignPadding(size, alignment int) int {
	if alignment <= 1 {
		return 0
	}
	rem := size % alignment
	if rem == 0 {
		return 0
	}
	return alignment - rem
}
