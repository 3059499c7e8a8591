package machcode

import "github.com/gyuseokByeon/machcode/internal/emit"

// Re-exported emitter-contract types (spec.md §4.C).
type (
	Options       = emit.Options
	AlignMode     = emit.AlignMode
	ErrorHandler  = emit.ErrorHandler
	NextInstState = emit.NextInstState
	EmitterType   = emit.EmitterType
)

const (
	OptionLogging          = emit.OptionLogging
	OptionStrictValidation = emit.OptionStrictValidation
	OptionSizeOptimized    = emit.OptionSizeOptimized
	OptionOptimizedAlign   = emit.OptionOptimizedAlign
	OptionPredictedJumps   = emit.OptionPredictedJumps
)

const (
	AlignCode = emit.AlignCode
	AlignData = emit.AlignData
	AlignZero = emit.AlignZero
)

const (
	EmitterNone      = emit.EmitterNone
	EmitterAssembler = emit.EmitterAssembler
	EmitterBuilder   = emit.EmitterBuilder
	EmitterCompiler  = emit.EmitterCompiler
)

// Assembler writes encoded bytes directly into its attached CodeHolder
// (spec.md §4.D).
type Assembler struct{ *emit.Assembler }

// NewAssembler constructs an unattached Assembler dispatching to encoder.
func NewAssembler(encoder ArchEncoder) *Assembler {
	return &Assembler{emit.NewAssembler(encoder)}
}

// Attach registers this assembler as holder's writer.
func (a *Assembler) Attach(holder *CodeHolder) error { return a.Assembler.Attach(holder.internal()) }

// Builder records an intrusive node list for deferred processing
// (spec.md §4.E).
type Builder struct{ *emit.Builder }

// NewBuilder constructs an unattached Builder.
func NewBuilder() *Builder { return &Builder{emit.NewBuilder()} }

// Attach registers this builder as holder's writer.
func (b *Builder) Attach(holder *CodeHolder) error { return b.Builder.Attach(holder.internal()) }

// Serialize walks this builder's node list and feeds asm.
func (b *Builder) Serialize(asm *Assembler) error { return b.Builder.Serialize(asm.Assembler) }

// Compiler extends Builder with virtual registers, functions and jump
// annotations (spec.md §4.F).
type Compiler struct{ *emit.Compiler }

// NewCompiler constructs an unattached Compiler.
func NewCompiler() *Compiler { return &Compiler{emit.NewCompiler()} }

// Attach registers this compiler as holder's writer.
func (c *Compiler) Attach(holder *CodeHolder) error { return c.Compiler.Attach(holder.internal()) }
