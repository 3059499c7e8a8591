// Command machcode-demo builds a couple of hand-picked instruction
// sequences through machcode's CodeHolder + Assembler, then prints the
// resulting bytes - an end-to-end walkthrough of the core
// this module implements, not a general-purpose assembler CLI.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gyuseokByeon/machcode"
	"github.com/gyuseokByeon/machcode/internal/archenc/golangasm"
	"github.com/gyuseokByeon/machcode/internal/operand"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)
	var help bool
	flag.BoolVar(&help, "h", false, "print usage")
	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
		return
	}

	switch flag.Arg(0) {
	case "minfunc":
		runOrDie(stdOut, stdErr, exit, minFunc)
	case "fwdjump":
		runOrDie(stdOut, stdErr, exit, forwardJump)
	case "crosssection":
		runOrDie(stdOut, stdErr, exit, crossSection)
	default:
		fmt.Fprintln(stdErr, "invalid subcommand")
		printUsage(stdErr)
		exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: machcode-demo <minfunc|fwdjump|crosssection>")
}

func runOrDie(stdOut, stdErr io.Writer, exit func(int), fn func(io.Writer) error) {
	if err := fn(stdOut); err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
	}
}

// minFunc reproduces the "minimal function" scenario: mov eax, 1; ret.
func minFunc(w io.Writer) error {
	holder := machcode.NewCodeHolder()
	if err := holder.Init(machcode.CodeInfo{Arch: machcode.X64Info}); err != nil {
		return err
	}

	asm := machcode.NewAssembler(golangasm.New())
	if err := asm.Attach(holder); err != nil {
		return err
	}
	defer asm.Detach()

	eax := operand.OpReg(operand.Reg{Group: operand.GroupGP, Type: operand.RegTypeGPDword, ID: 0})
	if err := asm.Emit(golangasm.MOVL, eax, operand.OpImm(operand.ImmI(1))); err != nil {
		return err
	}
	if err := asm.Emit(golangasm.RET); err != nil {
		return err
	}

	return dump(w, holder)
}

// forwardJump reproduces the "forward jump" scenario: jmp L; nop; L:.
func forwardJump(w io.Writer) error {
	holder := machcode.NewCodeHolder()
	if err := holder.Init(machcode.CodeInfo{Arch: machcode.X64Info}); err != nil {
		return err
	}

	asm := machcode.NewAssembler(golangasm.New())
	if err := asm.Attach(holder); err != nil {
		return err
	}
	defer asm.Detach()

	label := asm.NewLabel()
	if err := asm.Emit(golangasm.JMP, operand.OpLabel(operand.Label{ID: label})); err != nil {
		return err
	}
	if err := asm.Embed([]byte{0x90}); err != nil { // nop
		return err
	}
	if err := asm.Bind(label); err != nil {
		return err
	}

	return dump(w, holder)
}

// crossSection reproduces the "cross-section label" scenario: lea
// rsi, [L_Data] in .text, L_Data bound in .data, then flatten + resolve +
// relocate.
func crossSection(w io.Writer) error {
	holder := machcode.NewCodeHolder()
	if err := holder.Init(machcode.CodeInfo{Arch: machcode.X64Info}); err != nil {
		return err
	}
	dataSection, err := holder.NewSection(".data", machcode.SectionFlagData, 8)
	if err != nil {
		return err
	}

	asm := machcode.NewAssembler(golangasm.New())
	if err := asm.Attach(holder); err != nil {
		return err
	}
	defer asm.Detach()

	labelData := asm.NewLabel()
	rsi := operand.OpReg(operand.Reg{Group: operand.GroupGP, Type: operand.RegTypeGPQword, ID: 6})
	memLabel := operand.OpMem(operand.Mem{BaseIsLabel: true, BaseLabelID: labelData})
	if err := asm.Emit(golangasm.LEAQ, rsi, memLabel); err != nil {
		return err
	}

	if err := asm.Section(dataSection.ID); err != nil {
		return err
	}
	if err := asm.Bind(labelData); err != nil {
		return err
	}
	if err := asm.Embed([]byte{0x01}); err != nil {
		return err
	}

	if err := holder.Flatten(); err != nil {
		return err
	}
	if _, err := holder.ResolveUnresolvedLinks(); err != nil {
		return err
	}
	if err := holder.RelocateTo(0x400000); err != nil {
		return err
	}

	return dump(w, holder)
}

func dump(w io.Writer, holder *machcode.CodeHolder) error {
	for _, sec := range holder.Sections() {
		fmt.Fprintf(w, "%s: %s\n", sec.Name, hex.EncodeToString(sec.Bytes()))
	}
	fmt.Fprintf(w, "unresolved_link_count: %d\n", holder.UnresolvedLinkCount())
	return nil
}
