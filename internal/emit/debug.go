package emit

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/gyuseokByeon/machcode/internal/operand"
)

// DebugAssembler wraps an Assembler and prints each emitted instruction's
// id, operands and encoded bytes to w, grounded on the teacher's
// amd64_debug/debug_assembler.go decorator. Unlike the teacher's version,
// which cross-checks against golang-asm's own output, this one only logs:
// the module has no second from-scratch encoder to diff against, since
// architecture-specific encoding is out of this core's scope.
//
// Disabled by default; callers opt in explicitly by constructing one
// instead of a plain Assembler, rather than via a build tag, since this
// module has no package-private default-assembler seam for a build tag to
// switch.
type DebugAssembler struct {
	*Assembler
	w io.Writer
}

// NewDebugAssembler wraps inner, logging to w.
func NewDebugAssembler(inner *Assembler, w io.Writer) *DebugAssembler {
	return &DebugAssembler{Assembler: inner, w: w}
}

// Emit delegates to the wrapped Assembler and logs the bytes it appended
// to the current section.
func (d *DebugAssembler) Emit(instID uint32, operands ...operand.Operand) error {
	sec := d.CursorSection()
	before := sec.Size()
	err := d.Assembler.Emit(instID, operands...)
	after := sec.Size()

	fmt.Fprintf(d.w, "emit inst=%d operands=%s", instID, formatOperands(operands))
	if err != nil {
		fmt.Fprintf(d.w, " error=%v\n", err)
		return err
	}
	fmt.Fprintf(d.w, " bytes=%s\n", hex.EncodeToString(sec.Bytes()[before:after]))
	return nil
}

func formatOperands(operands []operand.Operand) string {
	s := "["
	for i, op := range operands {
		if i > 0 {
			s += ", "
		}
		s += op.String()
	}
	return s + "]"
}
