// Package vm implements the Ninja bytecode interpreter: instruction
// decoding, the fetch-decode-execute loop, the typed stack/register model,
// and the glue between the heap and the bigint adapter.
package vm

import (
	"bufio"
	"io"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"njvm/bigint"
	"njvm/heap"
)

var _ bigint.Allocator = (*VM)(nil)

// StartMessage and StopMessage bracket a normal run, per spec.md §6.
const (
	StartMessage = "Ninja Virtual Machine started"
	StopMessage  = "Ninja Virtual Machine stopped"
)

// Config selects the sizes and collector behavior a VM is constructed with,
// mirroring the CLI surface of spec.md §6.
type Config struct {
	Program    []uint32
	StaticVars int
	StackKB    int

	HeapKB  int
	GCPurge bool
	GCStats bool

	Stdin  io.Reader
	Stdout io.Writer

	Logger *zap.SugaredLogger
}

const slotBytes = 8

// VM is a single Ninja virtual machine instance: program, static data,
// stack, registers, and the heap they all share. Unlike the reference
// implementation's process-wide globals, every piece of mutable state here
// is a field of one value so a VM is re-entrant and independently testable,
// per spec.md §9.
type VM struct {
	program    []uint32
	staticData []heap.Ref
	stack      []Slot
	regs       registers

	heap *heap.Heap
	in   *bufio.Reader
	out  io.Writer
	log  *zap.SugaredLogger
}

// New constructs a VM ready to run cfg.Program against cfg.StaticVars
// globals, all initialised to nil.
func New(cfg Config) *VM {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	stdin := cfg.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	slotCount := (cfg.StackKB * 1024) / slotBytes

	vm := &VM{
		program:    cfg.Program,
		staticData: make([]heap.Ref, cfg.StaticVars),
		stack:      make([]Slot, slotCount),
		heap: heap.New(heap.Config{
			HeapKB: cfg.HeapKB,
			Purge:  cfg.GCPurge,
			Stats:  cfg.GCStats,
			Logger: log,
		}),
		in:  bufio.NewReader(stdin),
		out: stdout,
		log: log,
	}
	for i := range vm.staticData {
		vm.staticData[i] = heap.Nil
	}
	return vm
}

// NewInteger and Payload satisfy bigint.Allocator, routing the bigint
// adapter's storage requests through this VM's own heap so that a bigint
// operation which triggers a collection rescues this VM's roots, not some
// other instance's.
func (vm *VM) NewInteger(byteCount int) (heap.Ref, error) {
	return vm.heap.Alloc(byteCount, false, vm.collect)
}

func (vm *VM) Payload(r heap.Ref) []byte {
	return vm.heap.Payload(r)
}

func (vm *VM) allocCompound(members int) (heap.Ref, error) {
	return vm.heap.Alloc(members, true, vm.collect)
}

// collect gathers the full root set spec.md §4.3 mandates — bigint scratch
// registers, ret, every static_data slot, and every reference-tagged stack
// slot below sp — and runs one collection over it.
func (vm *VM) collect() {
	roots := make([]*heap.Ref, 0, 5+len(vm.staticData)+int(vm.regs.sp))

	roots = append(roots, &vm.regs.op1, &vm.regs.op2, &vm.regs.res, &vm.regs.rem, &vm.regs.ret)
	for i := range vm.staticData {
		roots = append(roots, &vm.staticData[i])
	}
	for i := int32(0); i < vm.regs.sp; i++ {
		if vm.stack[i].IsRef() {
			roots = append(roots, &vm.stack[i].ref)
		}
	}

	vm.heap.Collect(roots)
}

// Run executes the fetch-decode-execute loop until halt or an error.
// Matches RunProgram's idiom of disabling Go's own garbage collector for
// the duration of the loop: every allocation during execution goes through
// the VM's own heap, so the host GC has nothing useful to do and would
// only add latency to a tight dispatch loop.
func (vm *VM) Run() error {
	gcPercent := 100
	if v, ok := os.LookupEnv("GOGC"); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			gcPercent = parsed
		}
	}
	debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gcPercent)

	for {
		if vm.regs.pc < 0 || int(vm.regs.pc) >= len(vm.program) {
			return errors.Wrapf(ErrOutOfRange, "program counter %d out of range", vm.regs.pc)
		}
		instr := vm.program[vm.regs.pc]
		vm.regs.pc++

		more, err := vm.exec(instr)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Disassemble writes the mnemonic (and, where applicable, decimal
// immediate) of every instruction in the program, one per line.
func (vm *VM) Disassemble(w io.Writer) error {
	return Disassemble(w, vm.program)
}
