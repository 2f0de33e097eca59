package vm

import (
	"fmt"
	"io"
)

// Disassemble writes one line per instruction in program: its mnemonic,
// followed by a space and the decimal signed immediate for any opcode
// whose instructionInfo.requiresOperand is set.
func Disassemble(w io.Writer, program []uint32) error {
	for _, word := range program {
		op, imm := Decode(word)
		name, requiresOperand, err := InfoForOpcode(op)
		if err != nil {
			return err
		}
		if requiresOperand {
			if _, err := fmt.Fprintf(w, "%s %d\n", name, imm); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(w, "%s\n", name); err != nil {
				return err
			}
		}
	}
	return nil
}
