package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionAppendTracksOffsetAndSize(t *testing.T) {
	sec := &Section{Name: ".text"}

	off0 := sec.Append([]byte{0x01, 0x02})
	off1 := sec.Append([]byte{0x03})

	assert.Equal(t, 0, off0)
	assert.Equal(t, 2, off1)
	assert.Equal(t, 3, sec.Size())
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, sec.Bytes())
}

func TestSectionAppendZerosAndPatchAt(t *testing.T) {
	sec := &Section{}
	off := sec.AppendZeros(4)
	assert.Equal(t, []byte{0, 0, 0, 0}, sec.Bytes()[off:off+4])

	sec.PatchAt(off, []byte{0xAA, 0xBB, 0xCC, 0xDD})
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, sec.Bytes())
}

func TestSectionReserveGrowsPastFloorByDoubling(t *testing.T) {
	sec := &Section{}
	sec.reserve(1)
	require.GreaterOrEqual(t, cap(sec.buf), sectionBufferFloor)

	// Force growth beyond the initial floor and confirm capacity at least
	// doubled rather than growing by exactly the requested amount.
	firstCap := cap(sec.buf)
	sec.Append(make([]byte, firstCap+1))
	assert.GreaterOrEqual(t, cap(sec.buf), firstCap*2)
}

func TestSectionPatchAtDoesNotGrow(t *testing.T) {
	sec := &Section{}
	sec.Append([]byte{1, 2, 3, 4})
	sizeBefore := sec.Size()

	sec.PatchAt(1, []byte{0x10, 0x20})

	assert.Equal(t, sizeBefore, sec.Size())
	assert.Equal(t, []byte{1, 0x10, 0x20, 4}, sec.Bytes())
}
