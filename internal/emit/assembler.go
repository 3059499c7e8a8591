package emit

import (
	"encoding/binary"
	"fmt"

	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/code"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

// Assembler writes encoded bytes directly into the attached CodeHolder's
// current section (spec.md §4.D).
type Assembler struct {
	Base
	encoder arch.ArchEncoder
}

// NewAssembler constructs an unattached Assembler bound to encoder.
func NewAssembler(encoder arch.ArchEncoder) *Assembler {
	a := &Assembler{encoder: encoder}
	a.kind = EmitterAssembler
	return a
}

// onAttach seeds the cursor at section 0 (.text); Base.Attach already
// defaults cursorSectionID to 0, so this exists to satisfy lifecycleHooks
// and document the intent explicitly rather than relying on the zero
// value alone.
func (a *Assembler) onAttach(*code.Holder) error {
	a.cursorSectionID = 0
	return nil
}

func (a *Assembler) onDetach() {}

// Attach registers this assembler as the holder's writer.
func (a *Assembler) Attach(holder *code.Holder) error {
	return a.Base.Attach(a, holder, a.encoder.Info())
}

// Detach releases this assembler's attachment.
func (a *Assembler) Detach() { a.Base.Detach(a) }

// Emit encodes inst_id+operands and appends the result to the current
// section, per spec.md §4.D's five-step sequence.
func (a *Assembler) Emit(instID uint32, operands ...operand.Operand) error {
	next := a.ConsumeNext()
	if err := a.RequireAttached(); err != nil {
		return err
	}
	effective := a.Options() | next.Options

	if effective.Has(OptionStrictValidation) {
		if err := a.encoder.Validate(instID, operands); err != nil {
			return a.ReportError(a, fmt.Errorf("%w: %v", coreerr.ErrInvalidInstruction, err), "strict validation failed")
		}
	}

	result, err := a.encoder.Encode(instID, operands)
	if err != nil {
		return a.ReportError(a, fmt.Errorf("%w: %v", coreerr.ErrInvalidInstruction, err), "encode failed")
	}

	sec := a.CursorSection()
	w := newSectionWriter(sec)
	w.EnsureSpace(len(result.Bytes))
	copy(w.Cursor(), result.Bytes)
	w.Advance(len(result.Bytes))
	offset := w.Done()

	if result.HasLabel {
		labelID, ok := labelOperandID(operands)
		if !ok {
			return a.ReportError(a, coreerr.ErrInvalidArgument, "encoder reported a label slot but no operand names a label")
		}
		slotOffset := offset + result.LabelSlotOffset
		if le := a.Holder().Label(labelID); le != nil && le.Bound && le.SectionID == sec.ID {
			// Already bound in the same section: fold immediately
			// rather than round-tripping through a LabelLink, per
			// the optional fast path spec.md §9 leaves open.
			if err := a.patchBoundLabel(sec, slotOffset, result, le); err != nil {
				return a.ReportError(a, err, "label displacement overflow")
			}
		} else {
			a.Holder().NewLabelLink(labelID, sec.ID, uint64(slotOffset), uint8(result.LabelSlotSize), result.LabelSlotSigned, result.LabelSlotPCRelative)
		}
	}

	return nil
}

func (a *Assembler) patchBoundLabel(sec *code.Section, slotOffset int, result arch.EncodeResult, le *code.LabelEntry) error {
	var value int64
	if result.LabelSlotPCRelative {
		value = int64(le.OffsetInSect) - int64(slotOffset+result.LabelSlotSize)
	} else {
		value = int64(le.OffsetInSect)
	}
	buf := make([]byte, result.LabelSlotSize)
	if !fitsSignedN(value, result.LabelSlotSize) {
		return fmt.Errorf("%w: displacement %d does not fit in %d byte(s)", coreerr.ErrRelocationOverflow, value, result.LabelSlotSize)
	}
	putLEn(buf, value)
	sec.PatchAt(slotOffset, buf)
	return nil
}

func labelOperandID(operands []operand.Operand) (uint32, bool) {
	for _, op := range operands {
		if id, ok := op.LabelID(); ok {
			return id, true
		}
	}
	return 0, false
}

// Align pads the current section to the next multiple of alignment.
func (a *Assembler) Align(mode AlignMode, alignment uint32) error {
	if err := a.RequireAttached(); err != nil {
		return err
	}
	if err := CheckAlignment(alignment); err != nil {
		return a.ReportError(a, err, "invalid alignment")
	}
	sec := a.CursorSection()
	n := alignPadding(sec.Size(), int(alignment))
	if n == 0 {
		return nil
	}
	if mode == AlignCode {
		if filler, ok := a.encoder.(arch.NopFiller); ok {
			sec.Append(filler.FillNop(n))
			return nil
		}
	}
	sec.AppendZeros(n)
	return nil
}

// Embed writes bytes verbatim at the cursor.
func (a *Assembler) Embed(data []byte) error {
	if err := a.RequireAttached(); err != nil {
		return err
	}
	a.CursorSection().Append(data)
	return nil
}

// EmbedDataArray writes data count times back to back when repeat is
// true; when repeat is false it writes data once and count is ignored.
func (a *Assembler) EmbedDataArray(data []byte, count int, repeat bool) error {
	if err := a.RequireAttached(); err != nil {
		return err
	}
	sec := a.CursorSection()
	if repeat {
		for i := 0; i < count; i++ {
			sec.Append(data)
		}
		return nil
	}
	sec.Append(data)
	return nil
}

// EmbedLabel emits a zero-filled gp-size placeholder and creates a
// RelocEntry pointing at label, folding immediately if label is already
// bound in the current section.
func (a *Assembler) EmbedLabel(labelID uint32) error {
	if err := a.RequireAttached(); err != nil {
		return err
	}
	sec := a.CursorSection()
	gpSize := int(a.ArchInfo().GPSize)
	offset := sec.AppendZeros(gpSize)

	le := a.Holder().Label(labelID)
	if le != nil && le.Bound && le.SectionID == sec.ID {
		buf := make([]byte, gpSize)
		putLEn(buf, int64(le.OffsetInSect))
		sec.PatchAt(offset, buf)
		return nil
	}

	re, err := a.Holder().NewRelocEntry(code.RelocRelativeToAbsolute, uint8(gpSize))
	if err != nil {
		return a.ReportError(a, err, "allocating embed_label relocation")
	}
	re.SourceSectionID = sec.ID
	re.SourceOffset = uint64(offset)

	if le != nil && le.Bound {
		re.TargetSectionID = le.SectionID
		re.Payload = le.OffsetInSect
		return nil
	}
	a.Holder().NewLabelLinkForReloc(labelID, re.ID)
	return nil
}

// EmbedLabelDelta writes label.offset - base.offset in size bytes,
// folding immediately if both are bound in the same section, otherwise
// deferring to an Expression + RelocEntry.
func (a *Assembler) EmbedLabelDelta(labelID, baseID uint32, size int) error {
	if err := a.RequireAttached(); err != nil {
		return err
	}
	sec := a.CursorSection()
	label := a.Holder().Label(labelID)
	base := a.Holder().Label(baseID)
	if label == nil || base == nil {
		return a.ReportError(a, coreerr.ErrInvalidLabel, "embed_label_delta with unknown label")
	}

	if label.Bound && base.Bound && label.SectionID == base.SectionID {
		delta := int64(label.OffsetInSect) - int64(base.OffsetInSect)
		if !fitsSignedN(delta, size) {
			return a.ReportError(a, fmt.Errorf("%w: delta %d does not fit in %d byte(s)", coreerr.ErrRelocationOverflow, delta, size), "embed_label_delta overflow")
		}
		buf := make([]byte, size)
		putLEn(buf, delta)
		sec.Append(buf)
		return nil
	}

	offset := sec.AppendZeros(size)
	exprIdx := a.Holder().NewExpression(code.Expression{
		Op:  code.ExprSub,
		LHS: code.ExprOperand{Kind: code.ExprOperandLabel, LabelID: labelID},
		RHS: code.ExprOperand{Kind: code.ExprOperandLabel, LabelID: baseID},
	})
	re, err := a.Holder().NewRelocEntry(code.RelocExpression, uint8(size))
	if err != nil {
		return a.ReportError(a, err, "allocating embed_label_delta relocation")
	}
	re.SourceSectionID = sec.ID
	re.SourceOffset = uint64(offset)
	re.Payload = uint64(exprIdx)
	return nil
}

// EmbedConstPool aligns to pool's natural alignment, binds label at that
// point, then writes pool verbatim.
func (a *Assembler) EmbedConstPool(labelID uint32, pool []byte, poolAlignment uint32) error {
	if err := a.RequireAttached(); err != nil {
		return err
	}
	if err := a.Align(AlignData, poolAlignment); err != nil {
		return err
	}
	if err := a.Bind(labelID); err != nil {
		return err
	}
	a.CursorSection().Append(pool)
	return nil
}

// Comment is a no-op in Assembler mode: it exists only so Assembler
// satisfies the same contract shape as Builder, which records a
// CommentNode instead.
func (a *Assembler) Comment(string) {}

func fitsSignedN(v int64, n int) bool {
	if n >= 8 {
		return true
	}
	shift := uint(64 - 8*n)
	return v == (v<<shift)>>shift
}

func putLEn(buf []byte, v int64) {
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
