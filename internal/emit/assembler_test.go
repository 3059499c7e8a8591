package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyuseokByeon/machcode/internal/arch"
	"github.com/gyuseokByeon/machcode/internal/code"
	"github.com/gyuseokByeon/machcode/internal/coreerr"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

func newAttachedHolder(t *testing.T) *code.Holder {
	t.Helper()
	h := code.New()
	require.NoError(t, h.Init(arch.CodeInfo{Arch: arch.X64Info}))
	return h
}

func TestAssemblerEmitAppendsBytesAndReportsType(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	assert.Equal(t, EmitterAssembler, asm.Type())

	require.NoError(t, asm.Emit(fakeNop))
	require.NoError(t, asm.Emit(fakeNop))

	assert.Equal(t, []byte{0x90, 0x90}, h.TextSection().Bytes())
}

func TestAssemblerEmitOnDetachedFails(t *testing.T) {
	asm := NewAssembler(fakeEncoder{})
	err := asm.Emit(fakeNop)
	assert.ErrorIs(t, err, coreerr.ErrNotInitialized)
}

func TestAssemblerStrictValidationRejectsBadInstruction(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	asm.SetOptions(OptionStrictValidation)
	err := asm.Emit(fakeInvalid)
	assert.ErrorIs(t, err, coreerr.ErrInvalidInstruction)
	assert.Equal(t, 0, h.TextSection().Size(), "a failed validation must not append any bytes")
}

func TestAssemblerForwardJumpThenBindFoldsInPlace(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	label := asm.NewLabel()
	require.NoError(t, asm.Emit(fakeJump, operand.OpLabel(operand.Label{ID: label})))
	require.NoError(t, asm.Embed([]byte{0x90}))
	require.NoError(t, asm.Bind(label))

	assert.Equal(t, 0, h.UnresolvedLinkCount())
	text := h.TextSection()
	disp := int32(text.Bytes()[1]) | int32(text.Bytes()[2])<<8 | int32(text.Bytes()[3])<<16 | int32(text.Bytes()[4])<<24
	assert.EqualValues(t, 1, disp)
}

func TestAssemblerEmitToAlreadyBoundLabelFoldsImmediately(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	label := asm.NewLabel()
	require.NoError(t, asm.Bind(label)) // bound at offset 0

	require.NoError(t, asm.Embed([]byte{0x90, 0x90, 0x90}))
	require.NoError(t, asm.Emit(fakeJump, operand.OpLabel(operand.Label{ID: label})))

	assert.Equal(t, 0, h.UnresolvedLinkCount())
}

func TestAssemblerAlignUsesNopFillerWhenAvailable(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeNopFiller{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	require.NoError(t, asm.Embed([]byte{0x01}))
	require.NoError(t, asm.Align(AlignCode, 4))

	text := h.TextSection()
	assert.Equal(t, 4, text.Size())
	assert.Equal(t, []byte{0x01, 0xCC, 0xCC, 0xCC}, text.Bytes())
}

func TestAssemblerAlignFallsBackToZerosWithoutNopFiller(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	require.NoError(t, asm.Embed([]byte{0x01}))
	require.NoError(t, asm.Align(AlignCode, 4))

	assert.Equal(t, []byte{0x01, 0, 0, 0}, h.TextSection().Bytes())
}

func TestAssemblerAlignNoopWhenAlreadyAligned(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	require.NoError(t, asm.Align(AlignData, 8))
	assert.Equal(t, 0, h.TextSection().Size())
}

func TestAssemblerEmbedLabelFoldsWhenBoundSameSectionOtherwiseDefers(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	bound := asm.NewLabel()
	require.NoError(t, asm.Bind(bound))
	require.NoError(t, asm.EmbedLabel(bound))

	text := h.TextSection()
	gpSize := int(asm.ArchInfo().GPSize)
	require.Equal(t, gpSize, text.Size())

	unbound := asm.NewLabel()
	require.NoError(t, asm.EmbedLabel(unbound))
	assert.Equal(t, 1, h.UnresolvedLinkCount())

	require.NoError(t, asm.Bind(unbound))
	assert.Equal(t, 0, h.UnresolvedLinkCount())
}

func TestAssemblerEmbedLabelDeltaFoldsSameSectionBoundLabels(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	base := asm.NewLabel()
	require.NoError(t, asm.Bind(base))
	require.NoError(t, asm.Embed([]byte{0, 0, 0, 0, 0}))
	target := asm.NewLabel()
	require.NoError(t, asm.Bind(target))

	require.NoError(t, asm.EmbedLabelDelta(target, base, 4))

	text := h.TextSection()
	off := text.Size() - 4
	delta := int32(text.Bytes()[off]) | int32(text.Bytes()[off+1])<<8 |
		int32(text.Bytes()[off+2])<<16 | int32(text.Bytes()[off+3])<<24
	assert.EqualValues(t, 5, delta)
}

func TestAssemblerEmbedConstPoolAlignsAndBinds(t *testing.T) {
	h := newAttachedHolder(t)
	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	require.NoError(t, asm.Embed([]byte{0x01}))
	label := asm.NewLabel()
	require.NoError(t, asm.EmbedConstPool(label, []byte{0xAA, 0xBB}, 4))

	assert.Equal(t, uint64(4), h.LabelOffset(label))
	assert.Equal(t, []byte{0x01, 0, 0, 0, 0xAA, 0xBB}, h.TextSection().Bytes())
}

func TestDebugAssemblerLogsEncodedBytes(t *testing.T) {
	h := newAttachedHolder(t)
	inner := NewAssembler(fakeEncoder{})
	require.NoError(t, inner.Attach(h))
	defer inner.Detach()

	var buf strings.Builder
	dbg := NewDebugAssembler(inner, &buf)

	require.NoError(t, dbg.Emit(fakeNop))
	assert.Contains(t, buf.String(), "90")
	assert.Contains(t, buf.String(), "emit inst=1")
}
