package emit

import (
	"fmt"

	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

// fakeEncoder is a minimal arch.ArchEncoder used across this package's
// tests so they don't depend on internal/archenc/golangasm. It understands
// three made-up instructions: a plain one-byte op, a 5-byte jump with an
// E9-style rel32 placeholder, and one that always fails both validation
// and encoding (to exercise the strict-validation path).
const (
	fakeNop uint32 = iota + 1
	fakeJump
	fakeInvalid
)

type fakeEncoder struct{}

func (fakeEncoder) Info() arch.Info { return arch.X64Info }

func (fakeEncoder) Validate(instID uint32, operands []operand.Operand) error {
	if instID == fakeInvalid {
		return fmt.Errorf("%w: fakeInvalid never validates", coreerr.ErrInvalidInstruction)
	}
	return nil
}

func (fakeEncoder) Encode(instID uint32, operands []operand.Operand) (arch.EncodeResult, error) {
	switch instID {
	case fakeNop:
		return arch.EncodeResult{Bytes: []byte{0x90}}, nil
	case fakeJump:
		if len(operands) != 1 || !operands[0].IsLabel() {
			return arch.EncodeResult{}, fmt.Errorf("%w: fakeJump expects a label operand", coreerr.ErrInvalidInstruction)
		}
		return arch.EncodeResult{
			Bytes:               []byte{0xE9, 0, 0, 0, 0},
			HasLabel:            true,
			LabelSlotOffset:     1,
			LabelSlotSize:       4,
			LabelSlotSigned:     true,
			LabelSlotPCRelative: true,
		}, nil
	case fakeInvalid:
		return arch.EncodeResult{}, fmt.Errorf("%w: fakeInvalid", coreerr.ErrInvalidInstruction)
	default:
		return arch.EncodeResult{}, fmt.Errorf("%w: unknown fake instruction %d", coreerr.ErrInvalidInstruction, instID)
	}
}

// fakeNopFiller pads with 0xCC instead of 0x90, so Align-with-NopFiller
// tests can distinguish it from the zero-fill fallback.
type fakeNopFiller struct{ fakeEncoder }

func (fakeNopFiller) FillNop(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xCC
	}
	return b
}
