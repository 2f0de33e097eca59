package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type instr struct {
	op  Opcode
	imm int32
}

func assemble(instrs []instr) []uint32 {
	out := make([]uint32, len(instrs))
	for i, in := range instrs {
		out[i] = Encode(in.op, in.imm)
	}
	return out
}

func runProgram(t *testing.T, instrs []instr, staticVars int, stackKB, heapKB int) (*VM, string) {
	t.Helper()
	var out bytes.Buffer
	machine := New(Config{
		Program:    assemble(instrs),
		StaticVars: staticVars,
		StackKB:    stackKB,
		HeapKB:     heapKB,
		Stdout:     &out,
	})
	require.NoError(t, machine.Run())
	return machine, out.String()
}

func TestArithmeticScenario(t *testing.T) {
	_, out := runProgram(t, []instr{
		{Pushc, 2},
		{Pushc, 3},
		{Add, 0},
		{Wrint, 0},
		{Halt, 0},
	}, 0, 64, 64)

	require.Equal(t, "5", out)
}

func TestLoopWithFrameSums1To10(t *testing.T) {
	// locals: 0 = sum, 1 = counter
	const loopTop = 5
	const end = 18

	_, out := runProgram(t, []instr{
		/*0*/ {Asf, 2},
		/*1*/ {Pushc, 0},
		/*2*/ {Popl, 0},
		/*3*/ {Pushc, 1},
		/*4*/ {Popl, 1},
		/*5*/ {Pushl, 1}, // loopTop
		/*6*/ {Pushc, 10},
		/*7*/ {Le, 0},
		/*8*/ {Brf, end},
		/*9*/ {Pushl, 0},
		/*10*/ {Pushl, 1},
		/*11*/ {Add, 0},
		/*12*/ {Popl, 0},
		/*13*/ {Pushl, 1},
		/*14*/ {Pushc, 1},
		/*15*/ {Add, 0},
		/*16*/ {Popl, 1},
		/*17*/ {Jmp, loopTop},
		/*18*/ {Pushl, 0}, // end
		/*19*/ {Wrint, 0},
		/*20*/ {Rsf, 0},
		/*21*/ {Halt, 0},
	}, 0, 64, 64)

	require.Equal(t, "55", out)
}

func TestHeapObjectScenario(t *testing.T) {
	_, out := runProgram(t, []instr{
		{New, 2},
		{Dup, 0},
		{Pushc, 7},
		{Putf, 0},
		{Getf, 0},
		{Wrint, 0},
		{Halt, 0},
	}, 0, 64, 64)

	require.Equal(t, "7", out)
}

func TestGCUnderPressureKeepsLastAllocationReachable(t *testing.T) {
	instrs := []instr{
		{Asf, 1}, // local 0 = kept reference
	}
	for i := 0; i < 200; i++ {
		instrs = append(instrs,
			instr{New, 1},
			instr{Dup, 0},
			instr{Pushc, 7},
			instr{Putf, 0},
			instr{Popl, 0},
		)
	}
	instrs = append(instrs,
		instr{Pushl, 0},
		instr{Getf, 0},
		instr{Wrint, 0},
		instr{Rsf, 0},
		instr{Halt, 0},
	)

	_, out := runProgram(t, instrs, 0, 64, 1)
	require.Equal(t, "7", out)
}

func TestBigintOverflowViaRepeatedDoubling(t *testing.T) {
	// Computes 2^100 by repeated multiplication by 2.
	instrs := []instr{
		{Pushc, 1},
	}
	for i := 0; i < 100; i++ {
		instrs = append(instrs, instr{Pushc, 2}, instr{Mul, 0})
	}
	instrs = append(instrs, instr{Wrint, 0}, instr{Halt, 0})

	_, out := runProgram(t, instrs, 0, 64, 64)
	require.Equal(t, "1267650600228229401496703205376", out)
}

func TestStaticDataSurvivesGC(t *testing.T) {
	instrs := []instr{
		{New, 3},
		{Popg, 0},
	}
	for i := 0; i < 100; i++ {
		instrs = append(instrs, instr{New, 1}, instr{Drop, 1})
	}
	instrs = append(instrs, instr{Pushg, 0}, instr{Getsz, 0}, instr{Wrint, 0}, instr{Halt, 0})

	_, out := runProgram(t, instrs, 1, 64, 1)
	require.Equal(t, "3", out)
}

func TestRefeqRefneIdentity(t *testing.T) {
	_, out := runProgram(t, []instr{
		{New, 1},
		{Dup, 0},
		{Refeq, 0},
		{Wrint, 0},
		{Pushn, 0},
		{Pushn, 0},
		{Refne, 0},
		{Wrint, 0},
		{Halt, 0},
	}, 0, 64, 64)

	require.Equal(t, "10", out)
}

func TestGetszOnNonCompoundIsNegativeOne(t *testing.T) {
	_, out := runProgram(t, []instr{
		{Pushc, 5},
		{Getsz, 0},
		{Wrint, 0},
		{Halt, 0},
	}, 0, 64, 64)

	require.Equal(t, "-1", out)
}

func TestGetfOutOfRangeFails(t *testing.T) {
	machine := New(Config{
		Program: assemble([]instr{
			{New, 1},
			{Getf, 5},
			{Halt, 0},
		}),
		StackKB: 64,
		HeapKB:  64,
		Stdout:  &bytes.Buffer{},
	})
	err := machine.Run()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestDropUnderflowFails(t *testing.T) {
	machine := New(Config{
		Program: assemble([]instr{
			{Drop, 1},
			{Halt, 0},
		}),
		StackKB: 64,
		HeapKB:  64,
		Stdout:  &bytes.Buffer{},
	})
	err := machine.Run()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDivUnderHeapPressureStaysCorrect(t *testing.T) {
	// Each iteration allocates a quotient and a remainder object; a heap
	// this tight forces a collection somewhere in the run. If the quotient
	// were not rooted before the remainder's allocation, a collection
	// landing between the two would reclaim it and corrupt the printed
	// digit on some iteration.
	const iterations = 50
	instrs := make([]instr, 0, iterations*4+1)
	for i := 0; i < iterations; i++ {
		instrs = append(instrs, instr{Pushc, 7}, instr{Pushc, 2}, instr{Div, 0}, instr{Wrint, 0})
	}
	instrs = append(instrs, instr{Halt, 0})

	_, out := runProgram(t, instrs, 0, 64, 1)
	require.Equal(t, strings.Repeat("3", iterations), out)
}

func TestModUnderHeapPressureStaysCorrect(t *testing.T) {
	const iterations = 50
	instrs := make([]instr, 0, iterations*4+1)
	for i := 0; i < iterations; i++ {
		instrs = append(instrs, instr{Pushc, 7}, instr{Pushc, 2}, instr{Mod, 0}, instr{Wrint, 0})
	}
	instrs = append(instrs, instr{Halt, 0})

	_, out := runProgram(t, instrs, 0, 64, 1)
	require.Equal(t, strings.Repeat("1", iterations), out)
}

func TestRdintParsesStdin(t *testing.T) {
	var out bytes.Buffer
	machine := New(Config{
		Program: assemble([]instr{
			{Rdint, 0},
			{Wrint, 0},
			{Halt, 0},
		}),
		StackKB: 64,
		HeapKB:  64,
		Stdin:   strings.NewReader("123\n"),
		Stdout:  &out,
	})
	require.NoError(t, machine.Run())
	require.Equal(t, "123", out.String())
}
