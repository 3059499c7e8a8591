// Package code implements CodeHolder: the sole owner of emitted bytes and
// all emission metadata (sections, labels, relocations, expressions), and
// the mediator between whichever single emitter is currently attached to
// it (spec.md §4.B).
package code

import (
	"encoding/binary"
	"fmt"

	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/zone"
)

// ErrorHandler is the holder-level fallback error callback of spec.md §6/§7:
// invoked by an attached emitter's ReportError when the emitter has not
// installed a handler of its own.
type ErrorHandler func(err error, message string, emitter interface{})

// Holder is the CodeHolder of spec.md §4.B.
type Holder struct {
	info arch.CodeInfo

	sections     []*Section
	sectionNames map[string]uint32

	labels   zone.Zone[LabelEntry]
	labelKey map[labelScopeKey]uint32 // (parent,name) -> label id, for dedup/lookup

	relocs zone.Zone[RelocEntry]
	exprs  zone.Zone[Expression]

	// attached is a non-nil marker (opaque to this package) set by
	// whichever emitter currently owns this holder, enforcing "only one
	// emitter writes at a time" (spec.md §2).
	attached interface{}

	handler ErrorHandler

	destroyed bool
}

type labelScopeKey struct {
	parent uint32
	name   string
}

// New constructs an unattached, uninitialized Holder. Call Init before
// using it.
func New() *Holder { return &Holder{} }

// Init seeds section 0 (".text"), empties every table, and configures the
// target architecture. It may be called again after Reset.
func (h *Holder) Init(info arch.CodeInfo) error {
	h.info = info
	h.sections = nil
	h.sectionNames = map[string]uint32{}
	h.labels.Reset()
	h.labelKey = map[labelScopeKey]uint32{}
	h.relocs.Reset()
	h.exprs.Reset()
	h.attached = nil
	h.destroyed = false

	_, err := h.newSectionLocked(".text", SectionFlagCode, 16)
	return err
}

// Info returns the architecture/base-address configuration passed to Init.
func (h *Holder) Info() arch.CodeInfo { return h.info }

// Reset releases buffers, clears label and reloc tables, and detaches
// every emitter. Sections are dropped whatever freeMemory says: machcode
// always behaves as if freeMemory were true, since Go's allocator
// already reclaims unreferenced memory, but the flag is kept for
// interface parity with spec.md §4.B.
func (h *Holder) Reset(freeMemory bool) {
	h.sections = nil
	h.sectionNames = map[string]uint32{}
	h.labels.Reset()
	h.labelKey = map[labelScopeKey]uint32{}
	h.relocs.Reset()
	h.exprs.Reset()
	h.attached = nil
	h.destroyed = true
}

// Attach registers emitter as the holder's sole writer. It fails with
// ErrAlreadyAttached if another emitter is currently attached.
func (h *Holder) Attach(emitter interface{}) error {
	if h.destroyed {
		return coreerr.ErrDestroyed
	}
	if h.attached != nil && h.attached != emitter {
		return coreerr.ErrAlreadyAttached
	}
	h.attached = emitter
	return nil
}

// Detach clears the holder's attached-emitter marker if it currently
// matches emitter.
func (h *Holder) Detach(emitter interface{}) {
	if h.attached == emitter {
		h.attached = nil
	}
}

// IsAttached reports whether token is still this holder's current
// attached-emitter marker. An emitter that attached successfully but no
// longer passes this check has been implicitly detached by a Reset (or
// by another emitter's Attach), and should treat itself as destroyed.
func (h *Holder) IsAttached(token interface{}) bool {
	return !h.destroyed && h.attached == token
}

// SetHandler installs the holder-level fallback ErrorHandler, consulted by
// an attached emitter's ReportError when that emitter has no handler of
// its own.
func (h *Holder) SetHandler(handler ErrorHandler) { h.handler = handler }

// Handler returns the holder-level fallback ErrorHandler, or nil if none
// has been installed.
func (h *Holder) Handler() ErrorHandler { return h.handler }

// ---- Sections --------------------------------------------------------

// NewSection appends a Section, failing with ErrDuplicateSectionName or
// ErrInvalidAlignment.
func (h *Holder) NewSection(name string, flags SectionFlags, alignment uint32) (*Section, error) {
	return h.newSectionLocked(name, flags, alignment)
}

func (h *Holder) newSectionLocked(name string, flags SectionFlags, alignment uint32) (*Section, error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("%w: alignment %d", coreerr.ErrInvalidAlignment, alignment)
	}
	if _, exists := h.sectionNames[name]; exists {
		return nil, fmt.Errorf("%w: %q", coreerr.ErrDuplicateSectionName, name)
	}
	sec := &Section{ID: uint32(len(h.sections)), Name: name, Alignment: alignment, Flags: flags}
	h.sections = append(h.sections, sec)
	h.sectionNames[name] = sec.ID
	return sec, nil
}

// Section returns the section with the given id, or nil if out of range.
func (h *Holder) Section(id uint32) *Section {
	if int(id) >= len(h.sections) {
		return nil
	}
	return h.sections[id]
}

// SectionByName looks up a section by name.
func (h *Holder) SectionByName(name string) *Section {
	id, ok := h.sectionNames[name]
	if !ok {
		return nil
	}
	return h.sections[id]
}

// TextSection returns section 0, which Init always seeds as ".text".
func (h *Holder) TextSection() *Section { return h.sections[0] }

// Sections returns every section in declaration order. The returned slice
// must not be mutated by the caller.
func (h *Holder) Sections() []*Section { return h.sections }

// ---- Labels ------------------------------------------------------------

// NewLabel allocates an anonymous label.
func (h *Holder) NewLabel() uint32 {
	id, err := h.newLabelEntry(LabelAnonymous, InvalidID, "")
	if err != nil {
		// Anonymous labels never fail (no dedup key, no allocation limit
		// modeled); this path exists only for symmetry with
		// NewNamedLabel's signature.
		return InvalidID
	}
	return id
}

// NewNamedLabel allocates a label scoped to (parent, name), deduplicating
// on that key: calling it twice with the same key and the same kind
// returns the existing id, since label declaration is idempotent from the
// caller's point of view. Re-declaring the same (parent, name) with a
// different kind fails with ErrInvalidArgument instead of silently
// changing what the existing id refers to.
func (h *Holder) NewNamedLabel(kind LabelKind, parentID uint32, name string) (uint32, error) {
	key := labelScopeKey{parent: parentID, name: name}
	if id, ok := h.labelKey[key]; ok {
		existing := h.Label(id)
		if existing.Kind != kind {
			return InvalidID, fmt.Errorf("%w: label %q already declared with kind %d, requested %d", coreerr.ErrInvalidArgument, name, existing.Kind, kind)
		}
		return id, nil
	}
	return h.newLabelEntry(kind, parentID, name)
}

func (h *Holder) newLabelEntry(kind LabelKind, parentID uint32, name string) (uint32, error) {
	id := uint32(h.labels.New(LabelEntry{Kind: kind, ParentID: parentID, Name: name}))
	h.labels.Get(int(id)).ID = id
	if name != "" {
		h.labelKey[labelScopeKey{parent: parentID, name: name}] = id
	}
	return id, nil
}

// LabelByName is a pure lookup; it returns (InvalidID, false) if no such
// label is registered.
func (h *Holder) LabelByName(name string, parentID uint32) (uint32, bool) {
	id, ok := h.labelKey[labelScopeKey{parent: parentID, name: name}]
	return id, ok
}

// Label returns a pointer to the label entry with the given id, or nil if
// out of range.
func (h *Holder) Label(id uint32) *LabelEntry {
	if id == InvalidID || int(id) >= h.labels.Len() {
		return nil
	}
	return h.labels.Get(int(id))
}

// LabelOffset returns the label's bound offset, or 0 if it is unbound -
// matching spec.md §8's invariant that querying an unbound label's offset
// is a no-op, not an error.
func (h *Holder) LabelOffset(id uint32) uint64 {
	le := h.Label(id)
	if le == nil || !le.Bound {
		return 0
	}
	return le.OffsetInSect
}

// NewLabelLink appends a pending reference to label id's link list.
func (h *Holder) NewLabelLink(labelID uint32, sourceSectionID uint32, sourceOffset uint64, slotSize uint8, signed, pcRelative bool) {
	le := h.Label(labelID)
	le.links = append(le.links, LabelLink{
		SourceSectionID: sourceSectionID,
		SourceOffset:    sourceOffset,
		SlotSize:        slotSize,
		Signed:          signed,
		PCRelative:      pcRelative,
		RelocEntryID:    -1,
	})
}

// NewLabelLinkForReloc is the embedLabel-style variant: the caller has
// already allocated a RelocEntry (absolute address, base unknown until
// RelocateTo) and just wants it filled in once the label binds.
func (h *Holder) NewLabelLinkForReloc(labelID uint32, relocID int) {
	le := h.Label(labelID)
	le.links = append(le.links, LabelLink{RelocEntryID: relocID})
}

// BindLabel implements spec.md §4.B bindLabel: records the bind state
// then resolves every pending link against it.
func (h *Holder) BindLabel(labelID uint32, sectionID uint32, offset uint64) error {
	le := h.Label(labelID)
	if le == nil {
		return fmt.Errorf("%w: id %d", coreerr.ErrInvalidLabel, labelID)
	}
	if le.Bound {
		return fmt.Errorf("%w: %s", coreerr.ErrLabelAlreadyBound, labelRef(le))
	}
	sec := h.Section(sectionID)
	if sec == nil {
		return fmt.Errorf("%w: id %d", coreerr.ErrInvalidSection, sectionID)
	}
	if offset > uint64(sec.Size()) {
		return fmt.Errorf("%w: offset %d exceeds section %q size %d", coreerr.ErrInvalidArgument, offset, sec.Name, sec.Size())
	}

	le.Bound = true
	le.SectionID = sectionID
	le.OffsetInSect = offset

	pending := le.links
	le.links = nil
	for _, link := range pending {
		if err := h.resolveLink(le, link); err != nil {
			return err
		}
	}
	return nil
}

func labelRef(le *LabelEntry) string {
	if le.Name != "" {
		return le.Name
	}
	return fmt.Sprintf("L%d", le.ID)
}

// resolveLink either patches a same-section placeholder in place or
// promotes the link to a RelocEntry, per spec.md §4.B.
func (h *Holder) resolveLink(le *LabelEntry, link LabelLink) error {
	if link.RelocEntryID >= 0 {
		re := h.relocs.Get(link.RelocEntryID)
		re.TargetSectionID = le.SectionID
		re.Payload = le.OffsetInSect
		return nil
	}

	if link.SourceSectionID == le.SectionID {
		return h.patchSameSection(le, link)
	}

	re, err := h.NewRelocEntry(RelocRelativeToAbsolute, link.SlotSize)
	if err != nil {
		return err
	}
	re.SourceSectionID = link.SourceSectionID
	re.SourceOffset = link.SourceOffset
	re.TargetSectionID = le.SectionID
	re.Payload = le.OffsetInSect
	re.PCRelative = link.PCRelative
	return nil
}

func (h *Holder) patchSameSection(le *LabelEntry, link LabelLink) error {
	sec := h.Section(link.SourceSectionID)
	var value int64
	if link.PCRelative {
		value = int64(le.OffsetInSect) - int64(link.SourceOffset+uint64(link.SlotSize))
	} else {
		value = int64(le.OffsetInSect)
	}

	buf := make([]byte, link.SlotSize)
	fits := fitsSigned(value, int(link.SlotSize))
	if !link.PCRelative && !link.Signed {
		fits = fits || fitsUnsigned(uint64(value), int(link.SlotSize))
	}
	if !fits {
		return fmt.Errorf("%w: value %d does not fit in %d byte(s)", coreerr.ErrRelocationOverflow, value, link.SlotSize)
	}
	putLE(buf, value)
	sec.PatchAt(int(link.SourceOffset), buf)
	return nil
}

func fitsSigned(v int64, n int) bool {
	if n >= 8 {
		return true
	}
	shift := uint(64 - 8*n)
	return v == (v<<shift)>>shift
}

func putLE(buf []byte, v int64) {
	switch len(buf) {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	}
}

// UnresolvedLinkCount returns the number of LabelLinks still pending on
// labels that remain unbound.
func (h *Holder) UnresolvedLinkCount() int {
	count := 0
	h.labels.Each(func(_ int, le *LabelEntry) {
		if !le.Bound {
			count += len(le.links)
		}
	})
	return count
}

// ---- Relocations & expressions -----------------------------------------

// NewRelocEntry allocates a RelocEntry from the holder's arena.
func (h *Holder) NewRelocEntry(kind RelocKind, size uint8) (*RelocEntry, error) {
	id := h.relocs.New(RelocEntry{Kind: kind, Size: size, TargetSectionID: InvalidID})
	re := h.relocs.Get(id)
	re.ID = id
	return re, nil
}

// NewExpression allocates an Expression node.
func (h *Holder) NewExpression(e Expression) int { return h.exprs.New(e) }

func (h *Holder) expression(idx int) *Expression { return h.exprs.Get(idx) }

// ---- Flatten / resolve / relocate --------------------------------------

// Flatten assigns each section a base offset by laying sections out in
// declaration order, each aligned up to its own alignment. It is
// idempotent.
func (h *Holder) Flatten() error {
	var cursor uint64
	for _, sec := range h.sections {
		cursor = alignUp(cursor, uint64(sec.Alignment))
		sec.Offset = cursor
		cursor += uint64(sec.Size())
	}
	return nil
}

func alignUp(v, alignment uint64) uint64 {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// ResolveUnresolvedLinks walks every remaining LabelLink whose label has
// since bound (possibly in another section) and resolves it the same way
// BindLabel would have. It must run after Flatten so that cross-section
// offsets are final. Returns the count of links that remain because their
// label is still unbound.
func (h *Holder) ResolveUnresolvedLinks() (int, error) {
	var err error
	h.labels.Each(func(_ int, le *LabelEntry) {
		if err != nil || !le.Bound || len(le.links) == 0 {
			return
		}
		pending := le.links
		le.links = nil
		for _, link := range pending {
			if e := h.resolveLink(le, link); e != nil {
				err = e
				return
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return h.UnresolvedLinkCount(), nil
}

// RelocateTo produces the final bytes by applying every RelocEntry given a
// chosen load base address, writing little-endian into the appropriate
// section buffer. It fails with ErrUnresolvedLabel if any label is still
// unbound, or ErrRelocationOverflow if a value doesn't fit its slot.
func (h *Holder) RelocateTo(baseAddress uint64) error {
	unbound := 0
	h.labels.Each(func(_ int, le *LabelEntry) {
		if !le.Bound {
			unbound++
		}
	})
	if unbound > 0 {
		return fmt.Errorf("%w: %d label(s) never bound", coreerr.ErrUnresolvedLabel, unbound)
	}

	var err error
	h.relocs.Each(func(_ int, re *RelocEntry) {
		if err != nil {
			return
		}
		err = h.applyReloc(re, baseAddress)
	})
	return err
}

func (h *Holder) applyReloc(re *RelocEntry, base uint64) error {
	srcSec := h.Section(re.SourceSectionID)
	if srcSec == nil {
		return fmt.Errorf("%w: reloc source section %d", coreerr.ErrInvalidSection, re.SourceSectionID)
	}

	var targetAddr uint64
	switch re.Kind {
	case RelocAbsoluteToAbsolute:
		targetAddr = re.Payload // payload is already a final absolute address
	case RelocRelativeToAbsolute:
		targetSec := h.Section(re.TargetSectionID)
		if targetSec == nil {
			return fmt.Errorf("%w: reloc target section %d", coreerr.ErrInvalidSection, re.TargetSectionID)
		}
		targetAddr = base + targetSec.Offset + re.Payload
	case RelocExpression:
		v, err := h.evalExpression(int(re.Payload), base)
		if err != nil {
			return err
		}
		targetAddr = uint64(v)
	default:
		return fmt.Errorf("%w: unknown reloc kind %d", coreerr.ErrInvalidState, re.Kind)
	}

	value := targetAddr
	if re.PCRelative {
		// The displacement is relative to the address right after the
		// patched slot.
		afterSlot := base + srcSec.Offset + re.SourceOffset + uint64(re.Size)
		value = uint64(int64(targetAddr) - int64(afterSlot))
	}

	if !fitsSigned(int64(value), int(re.Size)) && !fitsUnsigned(value, int(re.Size)) {
		return fmt.Errorf("%w: value %#x does not fit in %d byte(s)", coreerr.ErrRelocationOverflow, value, re.Size)
	}

	buf := make([]byte, re.Size)
	putLE(buf, int64(value))
	srcSec.PatchAt(int(re.SourceOffset), buf)
	return nil
}

func fitsUnsigned(v uint64, n int) bool {
	if n >= 8 {
		return true
	}
	return v>>(uint(8*n)) == 0
}

func (h *Holder) evalExpression(idx int, base uint64) (int64, error) {
	e := h.expression(idx)
	lhs, err := h.evalExprOperand(e.LHS, base)
	if err != nil {
		return 0, err
	}
	rhs, err := h.evalExprOperand(e.RHS, base)
	if err != nil {
		return 0, err
	}
	switch e.Op {
	case ExprAdd:
		return lhs + rhs, nil
	case ExprSub:
		return lhs - rhs, nil
	default:
		return 0, fmt.Errorf("%w: unknown expression operator %d", coreerr.ErrInvalidState, e.Op)
	}
}

func (h *Holder) evalExprOperand(op ExprOperand, base uint64) (int64, error) {
	switch op.Kind {
	case ExprOperandImm:
		return op.ImmValue, nil
	case ExprOperandLabel:
		le := h.Label(op.LabelID)
		if le == nil || !le.Bound {
			return 0, fmt.Errorf("%w: label %d", coreerr.ErrUnresolvedExpression, op.LabelID)
		}
		sec := h.Section(le.SectionID)
		return int64(base + sec.Offset + le.OffsetInSect), nil
	case ExprOperandExpr:
		return h.evalExpression(op.ExprIdx, base)
	default:
		return 0, fmt.Errorf("%w: unknown expression operand kind %d", coreerr.ErrInvalidState, op.Kind)
	}
}
