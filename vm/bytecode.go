package vm

import "github.com/pkg/errors"

/*
	Ninja is a stack machine. Every instruction is a 32-bit word: the top 8
	bits are the opcode, the low 24 bits are a sign-extended immediate used
	by instructions that need one (jump targets, field indices, constants).

	Opcode   Operand  Effect
	halt     -        stop the fetch-execute loop
	pushc    k        push a new integer object with value k
	add      -        pop y, x; push x+y
	sub      -        pop y, x; push x-y
	mul      -        pop y, x; push x*y
	div      -        pop y, x; push x/y (truncating)
	mod      -        pop y, x; push x%y (truncating)
	rdint    -        read a decimal integer from stdin, push it
	wrint    -        pop, print its decimal value to stdout
	rdchr    -        read one rune from stdin, push its code point
	wrchr    -        pop, print it as a rune to stdout
	pushg    k        push static_data[k]
	popg     k        pop into static_data[k]
	asf      n        push fp; fp := sp; push n nils
	rsf      -        sp := fp; pop fp
	pushl    k        push stack[fp+k]
	popl     k        pop into stack[fp+k]
	eq..ge   -        pop y, x; push 1/0 for x<op>y
	jmp      a        pc := a
	brf      a        pop; branch to a if zero
	brt      a        pop; branch to a if nonzero
	call     a        push pc; pc := a
	ret      -        pop pc
	drop     n        sp -= n
	pushr    -        push ret; ret := nil
	popr     -        ret := pop
	dup      -        push top of stack again
	new      k        push a new compound object of k nil members
	getf     k        pop record; push its k-th member
	putf     k        pop value, record; set record's k-th member
	newa     -        pop n; push a new compound object of n nil members
	getfa    -        pop index, array; push array[index]
	putfa    -        pop value, index, array; set array[index]
	getsz    -        pop; push its member count, or -1 if not compound
	pushn    -        push nil
	refeq    -        pop two refs; push 1 if identical, else 0
	refne    -        pop two refs; push 0 if identical, else 1
*/

// Opcode identifies a Ninja instruction.
type Opcode uint8

const (
	Halt Opcode = iota
	Pushc
	Add
	Sub
	Mul
	Div
	Mod
	Rdint
	Wrint
	Rdchr
	Wrchr
	Pushg
	Popg
	Asf
	Rsf
	Pushl
	Popl
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	Jmp
	Brf
	Brt
	Call
	Ret
	Drop
	Pushr
	Popr
	Dup
	New
	Getf
	Putf
	Newa
	Getfa
	Putfa
	Getsz
	Pushn
	Refeq
	Refne

	numOpcodes
)

// instructionInfo pairs a mnemonic with whether the opcode carries an
// operand in its disassembly, per spec.md §4.1.
type instructionInfo struct {
	name            string
	requiresOperand bool
}

var instructionTable = [numOpcodes]instructionInfo{
	Halt:  {"halt", false},
	Pushc: {"pushc", true},
	Add:   {"add", false},
	Sub:   {"sub", false},
	Mul:   {"mul", false},
	Div:   {"div", false},
	Mod:   {"mod", false},
	Rdint: {"rdint", false},
	Wrint: {"wrint", false},
	Rdchr: {"rdchr", false},
	Wrchr: {"wrchr", false},
	Pushg: {"pushg", true},
	Popg:  {"popg", true},
	Asf:   {"asf", true},
	Rsf:   {"rsf", false},
	Pushl: {"pushl", true},
	Popl:  {"popl", true},
	Eq:    {"eq", false},
	Ne:    {"ne", false},
	Lt:    {"lt", false},
	Le:    {"le", false},
	Gt:    {"gt", false},
	Ge:    {"ge", false},
	Jmp:   {"jmp", true},
	Brf:   {"brf", true},
	Brt:   {"brt", true},
	Call:  {"call", true},
	Ret:   {"ret", false},
	Drop:  {"drop", true},
	Pushr: {"pushr", false},
	Popr:  {"popr", false},
	Dup:   {"dup", false},
	New:   {"new", true},
	Getf:  {"getf", true},
	Putf:  {"putf", true},
	Newa:  {"newa", false},
	Getfa: {"getfa", false},
	Putfa: {"putfa", false},
	Getsz: {"getsz", false},
	Pushn: {"pushn", false},
	Refeq: {"refeq", false},
	Refne: {"refne", false},
}

var mnemonicToOpcode map[string]Opcode

func init() {
	mnemonicToOpcode = make(map[string]Opcode, len(instructionTable))
	for op, info := range instructionTable {
		mnemonicToOpcode[info.name] = Opcode(op)
	}
}

// InfoForOpcode returns the instruction table entry for op, failing for any
// opcode outside the known table.
func InfoForOpcode(op Opcode) (name string, requiresOperand bool, err error) {
	if int(op) >= len(instructionTable) {
		return "", false, errors.Wrapf(ErrInvalidArgument, "opcode %d is out of range", op)
	}
	info := instructionTable[op]
	return info.name, info.requiresOperand, nil
}

// OpcodeFor looks up the opcode for a mnemonic, the inverse of InfoForOpcode.
func OpcodeFor(name string) (Opcode, error) {
	op, ok := mnemonicToOpcode[name]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown instruction mnemonic %q", name)
	}
	return op, nil
}

// Decode splits a 32-bit instruction word into its opcode (bits 31..24) and
// sign-extended 24-bit immediate (bits 23..0).
func Decode(word uint32) (Opcode, int32) {
	return Opcode(word >> 24), Immediate(word)
}

// Immediate extracts and sign-extends the 24-bit operand of an instruction
// word.
func Immediate(word uint32) int32 {
	imm := int32(word & 0x00FFFFFF)
	if imm&0x00800000 != 0 {
		imm |= ^int32(0x00FFFFFF)
	}
	return imm
}

// Encode packs an opcode and immediate back into a 32-bit instruction word,
// the inverse of Decode.
func Encode(op Opcode, immediate int32) uint32 {
	return uint32(op)<<24 | uint32(immediate)&0x00FFFFFF
}
