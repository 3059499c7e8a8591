// Package machcode is the public façade over this module's just-in-time
// and ahead-of-time machine-code generation core: a CodeHolder that owns
// sections, labels and relocations, and a layered emitter hierarchy
// (Assembler, Builder, Compiler) that produces the bytes it holds.
//
// Architecture-specific instruction tables and encoders, the register
// allocator's analysis passes, and JIT memory allocation are external
// collaborators; this package and its internal/ subpackages implement
// only the core those collaborators plug into. See internal/archenc/golangasm
// for the one concrete encoder this module ships, and cmd/machcode-demo
// for an end-to-end walkthrough.
package machcode
