package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintUsageNamesAllSubcommands(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	out := buf.String()
	assert.Contains(t, out, "minfunc")
	assert.Contains(t, out, "fwdjump")
	assert.Contains(t, out, "crosssection")
}

func TestMinFuncProducesExpectedBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, minFunc(&buf))
	// mov eax, 1; ret -> B8 01 00 00 00 C3
	assert.Contains(t, buf.String(), ".text: b801000000c3")
	assert.Contains(t, buf.String(), "unresolved_link_count: 0")
}

func TestForwardJumpResolvesWithinAssembler(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, forwardJump(&buf))
	assert.Contains(t, buf.String(), "unresolved_link_count: 0")
}

func TestCrossSectionRelocatesAndLeavesNoUnresolvedLinks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, crossSection(&buf))
	assert.Contains(t, buf.String(), "unresolved_link_count: 0")
}

func TestRunOrDiePropagatesErrorToExit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exited := -1
	runOrDie(&stdout, &stderr, func(code int) { exited = code }, func(io.Writer) error {
		return assert.AnError
	})
	assert.Equal(t, 1, exited)
	assert.Contains(t, stderr.String(), assert.AnError.Error())
}
