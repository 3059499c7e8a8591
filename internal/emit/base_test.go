package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyuseokByeon/machcode/internal/coreerr"
)

func TestReportErrorPrefersEmitterHandlerOverHolders(t *testing.T) {
	h := newAttachedHolder(t)
	var holderCalls, emitterCalls int
	h.SetHandler(func(err error, message string, emitter interface{}) { holderCalls++ })

	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()
	asm.SetHandler(func(err error, message string, emitter interface{}) { emitterCalls++ })

	err := asm.ReportError(asm, coreerr.ErrInvalidArgument, "boom")
	assert.ErrorIs(t, err, coreerr.ErrInvalidArgument)
	assert.Equal(t, 1, emitterCalls)
	assert.Equal(t, 0, holderCalls)
}

func TestReportErrorFallsBackToHolderHandlerWhenEmitterHasNone(t *testing.T) {
	h := newAttachedHolder(t)
	var gotErr error
	var gotMessage string
	h.SetHandler(func(err error, message string, emitter interface{}) {
		gotErr, gotMessage = err, message
	})

	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	err := asm.ReportError(asm, coreerr.ErrInvalidArgument, "boom")
	assert.ErrorIs(t, err, coreerr.ErrInvalidArgument)
	assert.ErrorIs(t, gotErr, coreerr.ErrInvalidArgument)
	assert.Equal(t, "boom", gotMessage)
}

func TestReportErrorNilErrIsANoOp(t *testing.T) {
	h := newAttachedHolder(t)
	called := false
	h.SetHandler(func(err error, message string, emitter interface{}) { called = true })

	asm := NewAssembler(fakeEncoder{})
	require.NoError(t, asm.Attach(h))
	defer asm.Detach()

	assert.NoError(t, asm.ReportError(asm, nil, "should not fire"))
	assert.False(t, called)
}
