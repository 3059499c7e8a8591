package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyuseokByeon/machcode/internal/code"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

func TestBuilderAttachAllocatesSentinelHead(t *testing.T) {
	h := newAttachedHolder(t)
	bld := NewBuilder()
	require.NoError(t, bld.Attach(h))
	defer bld.Detach()

	require.NotNil(t, bld.First())
	assert.Equal(t, NodeSentinel, bld.First().Kind)
	assert.Equal(t, 1, bld.Len())
}

func TestBuilderRecordsNodesWithoutTouchingTheHolder(t *testing.T) {
	h := newAttachedHolder(t)
	bld := NewBuilder()
	require.NoError(t, bld.Attach(h))
	defer bld.Detach()

	require.NoError(t, bld.Emit(fakeNop))
	require.NoError(t, bld.Comment("hello"))

	assert.Equal(t, 0, h.TextSection().Size(), "recording a node must not append bytes directly")

	var kinds []NodeKind
	for n := bld.First(); n != nil; n = n.Next() {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []NodeKind{NodeSentinel, NodeInst, NodeComment}, kinds)
}

func TestBuilderSerializeProducesSameBytesAsDirectAssembler(t *testing.T) {
	hBuilder := newAttachedHolder(t)
	bld := NewBuilder()
	require.NoError(t, bld.Attach(hBuilder))

	label := bld.NewLabel()
	require.NoError(t, bld.Emit(fakeJump, operand.OpLabel(operand.Label{ID: label})))
	require.NoError(t, bld.Embed([]byte{0x90}))
	require.NoError(t, bld.Bind(label))
	bld.Detach()

	asmForBuilder := NewAssembler(fakeEncoder{})
	require.NoError(t, asmForBuilder.Attach(hBuilder))
	require.NoError(t, bld.Serialize(asmForBuilder))
	asmForBuilder.Detach()

	hDirect := newAttachedHolder(t)
	direct := NewAssembler(fakeEncoder{})
	require.NoError(t, direct.Attach(hDirect))
	directLabel := direct.NewLabel()
	require.NoError(t, direct.Emit(fakeJump, operand.OpLabel(operand.Label{ID: directLabel})))
	require.NoError(t, direct.Embed([]byte{0x90}))
	require.NoError(t, direct.Bind(directLabel))
	direct.Detach()

	assert.Equal(t, hDirect.TextSection().Bytes(), hBuilder.TextSection().Bytes())
}

func TestBuilderSerializeSwitchesSectionsByNodeSectionID(t *testing.T) {
	h := newAttachedHolder(t)
	dataSec, err := h.NewSection(".data", code.SectionFlagData, 1)
	require.NoError(t, err)

	bld := NewBuilder()
	require.NoError(t, bld.Attach(h))
	require.NoError(t, bld.Emit(fakeNop))
	require.NoError(t, bld.Section(dataSec.ID))
	require.NoError(t, bld.Embed([]byte{0xAA}))
	bld.Detach()

	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	require.NoError(t, bld.Serialize(asm))
	asm.Detach()

	assert.Equal(t, []byte{0x90}, h.TextSection().Bytes())
	assert.Equal(t, []byte{0xAA}, dataSec.Bytes())
}

func TestBuilderSentinelAndFuncNodesAreNoOpsWithoutAnAllocatorPass(t *testing.T) {
	h := newAttachedHolder(t)
	bld := NewBuilder()
	require.NoError(t, bld.Attach(h))
	_, err := bld.Sentinel()
	require.NoError(t, err)
	_, err = bld.newNode(NodeFunc)
	require.NoError(t, err)
	bld.Detach()

	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	require.NoError(t, bld.Serialize(asm))
	asm.Detach()

	assert.Equal(t, 0, h.TextSection().Size())
}
