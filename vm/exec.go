package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"njvm/bigint"
	"njvm/heap"
)

// push writes s to stack[sp] and advances sp, failing on overflow.
func (vm *VM) push(s Slot) error {
	if int(vm.regs.sp) >= len(vm.stack) {
		return errors.Wrapf(ErrOverflow, "stack overflow at sp=%d", vm.regs.sp)
	}
	vm.stack[vm.regs.sp] = s
	vm.regs.sp++
	return nil
}

// pop retracts sp and returns the slot it pointed past, failing on
// underflow.
func (vm *VM) pop() (Slot, error) {
	if vm.regs.sp <= 0 {
		return Slot{}, errors.Wrapf(ErrOverflow, "stack underflow")
	}
	vm.regs.sp--
	return vm.stack[vm.regs.sp], nil
}

func (vm *VM) popRef() (heap.Ref, error) {
	s, err := vm.pop()
	if err != nil {
		return heap.Nil, err
	}
	return s.AsRef()
}

func (vm *VM) popPrim() (int32, error) {
	s, err := vm.pop()
	if err != nil {
		return 0, err
	}
	return s.AsPrimitive()
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (vm *VM) pushInt(v int64) error {
	ref, err := bigint.FromInt64(vm, v)
	if err != nil {
		return err
	}
	return vm.push(RefSlot(ref))
}

// memberRef resolves obj's idx-th member, enforcing spec.md's getf/putf
// failure rules: receiver must be non-nil and compound, idx must be in
// range.
func (vm *VM) memberRef(obj heap.Ref, idx int32) (int, error) {
	if obj.IsNil() || !vm.heap.IsCompound(obj) {
		return 0, errors.Wrapf(ErrOutOfRange, "member access on a non-compound or nil object")
	}
	size := vm.heap.Size(obj)
	if idx < 0 || int(idx) >= size {
		return 0, errors.Wrapf(ErrOutOfRange, "member index %d out of range for object of size %d", idx, size)
	}
	return int(idx), nil
}

// exec executes one decoded instruction, returning false only for halt.
func (vm *VM) exec(word uint32) (bool, error) {
	op, imm := Decode(word)

	switch op {
	case Halt:
		return false, nil

	case Pushc:
		if err := vm.pushInt(int64(imm)); err != nil {
			return false, err
		}

	case Add, Sub, Mul:
		if err := vm.doArithmetic(op); err != nil {
			return false, err
		}

	case Div:
		if err := vm.doDivMod(true); err != nil {
			return false, err
		}

	case Mod:
		if err := vm.doDivMod(false); err != nil {
			return false, err
		}

	case Rdint:
		ref, err := bigint.Read(vm, vm.in)
		if err != nil {
			return false, err
		}
		vm.regs.res = ref
		if err := vm.push(RefSlot(vm.regs.res)); err != nil {
			return false, err
		}

	case Wrint:
		op1, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.op1 = op1
		if err := bigint.Write(vm.out, vm, vm.regs.op1); err != nil {
			return false, err
		}

	case Rdchr:
		r, _, err := vm.in.ReadRune()
		code := int64(-1)
		if err == nil {
			code = int64(r)
		}
		if err := vm.pushInt(code); err != nil {
			return false, err
		}

	case Wrchr:
		op1, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.op1 = op1
		fmt.Fprintf(vm.out, "%c", rune(bigint.ToInt32(vm, vm.regs.op1)))

	case Pushg:
		if imm < 0 || int(imm) >= len(vm.staticData) {
			return false, errors.Wrapf(ErrOutOfRange, "static data index %d out of range", imm)
		}
		if err := vm.push(RefSlot(vm.staticData[imm])); err != nil {
			return false, err
		}

	case Popg:
		if imm < 0 || int(imm) >= len(vm.staticData) {
			return false, errors.Wrapf(ErrOutOfRange, "static data index %d out of range", imm)
		}
		ref, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.staticData[imm] = ref

	case Asf:
		if imm < 0 {
			return false, errors.Wrapf(ErrInvalidArgument, "frame size can't be negative")
		}
		if int64(vm.regs.sp)+1+int64(imm) > int64(len(vm.stack)) {
			return false, errors.Wrapf(ErrOverflow, "unable to allocate stack frame of size %d", imm)
		}
		if err := vm.push(PrimSlot(vm.regs.fp)); err != nil {
			return false, err
		}
		vm.regs.fp = vm.regs.sp
		for i := int32(0); i < imm; i++ {
			if err := vm.push(NilSlot); err != nil {
				return false, err
			}
		}

	case Rsf:
		vm.regs.sp = vm.regs.fp
		fp, err := vm.popPrim()
		if err != nil {
			return false, err
		}
		vm.regs.fp = fp

	case Pushl:
		idx := vm.regs.fp + imm
		if idx < 0 || int(idx) >= len(vm.stack) {
			return false, errors.Wrapf(ErrOutOfRange, "local slot %d out of range", idx)
		}
		ref, err := vm.stack[idx].AsRef()
		if err != nil {
			return false, err
		}
		if err := vm.push(RefSlot(ref)); err != nil {
			return false, err
		}

	case Popl:
		idx := vm.regs.fp + imm
		if idx < 0 || int(idx) >= len(vm.stack) {
			return false, errors.Wrapf(ErrOutOfRange, "local slot %d out of range", idx)
		}
		ref, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.stack[idx] = RefSlot(ref)

	case Eq, Ne, Lt, Le, Gt, Ge:
		if err := vm.doComparison(op); err != nil {
			return false, err
		}

	case Jmp:
		vm.regs.pc = imm

	case Brf, Brt:
		ref, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.op1 = ref
		nonzero := bigint.ToInt32(vm, vm.regs.op1) != 0
		if (op == Brf && !nonzero) || (op == Brt && nonzero) {
			vm.regs.pc = imm
		}

	case Call:
		if err := vm.push(PrimSlot(vm.regs.pc)); err != nil {
			return false, err
		}
		vm.regs.pc = imm

	case Ret:
		pc, err := vm.popPrim()
		if err != nil {
			return false, err
		}
		vm.regs.pc = pc

	case Drop:
		if imm < 0 {
			return false, errors.Wrapf(ErrInvalidArgument, "drop count can't be negative")
		}
		if imm > vm.regs.sp {
			return false, errors.Wrapf(ErrOverflow, "not enough elements on the stack for drop %d", imm)
		}
		vm.regs.sp -= imm

	case Pushr:
		ret := vm.regs.ret
		vm.regs.ret = heap.Nil
		if err := vm.push(RefSlot(ret)); err != nil {
			return false, err
		}

	case Popr:
		ref, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.ret = ref

	case Dup:
		if vm.regs.sp <= 0 {
			return false, errors.Wrapf(ErrOverflow, "stack underflow on dup")
		}
		top, err := vm.stack[vm.regs.sp-1].AsRef()
		if err != nil {
			return false, err
		}
		if err := vm.push(RefSlot(top)); err != nil {
			return false, err
		}

	case New:
		if imm < 0 {
			return false, errors.Wrapf(ErrInvalidArgument, "cannot create object of negative size")
		}
		ref, err := vm.allocCompound(int(imm))
		if err != nil {
			return false, err
		}
		if err := vm.push(RefSlot(ref)); err != nil {
			return false, err
		}

	case Getf:
		obj, err := vm.popRef()
		if err != nil {
			return false, err
		}
		idx, err := vm.memberRef(obj, imm)
		if err != nil {
			return false, err
		}
		if err := vm.push(RefSlot(vm.heap.Member(obj, idx))); err != nil {
			return false, err
		}

	case Putf:
		value, err := vm.popRef()
		if err != nil {
			return false, err
		}
		obj, err := vm.popRef()
		if err != nil {
			return false, err
		}
		idx, err := vm.memberRef(obj, imm)
		if err != nil {
			return false, err
		}
		vm.heap.SetMember(obj, idx, value)

	case Newa:
		op1, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.op1 = op1
		size := bigint.ToInt32(vm, vm.regs.op1)
		if size < 0 {
			return false, errors.Wrapf(ErrInvalidArgument, "cannot create object of negative size")
		}
		ref, err := vm.allocCompound(int(size))
		if err != nil {
			return false, err
		}
		if err := vm.push(RefSlot(ref)); err != nil {
			return false, err
		}

	case Getfa:
		index, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.op1 = index
		array, err := vm.popRef()
		if err != nil {
			return false, err
		}
		idx, err := vm.memberRef(array, bigint.ToInt32(vm, vm.regs.op1))
		if err != nil {
			return false, err
		}
		if err := vm.push(RefSlot(vm.heap.Member(array, idx))); err != nil {
			return false, err
		}

	case Putfa:
		value, err := vm.popRef()
		if err != nil {
			return false, err
		}
		index, err := vm.popRef()
		if err != nil {
			return false, err
		}
		vm.regs.op1 = index
		array, err := vm.popRef()
		if err != nil {
			return false, err
		}
		idx, err := vm.memberRef(array, bigint.ToInt32(vm, vm.regs.op1))
		if err != nil {
			return false, err
		}
		vm.heap.SetMember(array, idx, value)

	case Getsz:
		obj, err := vm.popRef()
		if err != nil {
			return false, err
		}
		size := int64(-1)
		if !obj.IsNil() && vm.heap.IsCompound(obj) {
			size = int64(vm.heap.Size(obj))
		}
		if err := vm.pushInt(size); err != nil {
			return false, err
		}

	case Pushn:
		if err := vm.push(NilSlot); err != nil {
			return false, err
		}

	case Refeq, Refne:
		a, err := vm.popRef()
		if err != nil {
			return false, err
		}
		b, err := vm.popRef()
		if err != nil {
			return false, err
		}
		identical := a.Identical(b)
		if op == Refne {
			identical = !identical
		}
		if err := vm.pushInt(boolToInt64(identical)); err != nil {
			return false, err
		}

	default:
		return false, errors.Wrapf(ErrInvalidArgument, "opcode %d does not reference a known instruction", op)
	}

	return true, nil
}

// doArithmetic implements add/sub/mul: pop y then x (in that reverse
// order), route both through the bigint scratch registers so a collection
// triggered by the call doesn't leave either operand dangling, and push
// the result.
func (vm *VM) doArithmetic(op Opcode) error {
	y, err := vm.popRef()
	if err != nil {
		return err
	}
	x, err := vm.popRef()
	if err != nil {
		return err
	}
	vm.regs.op2, vm.regs.op1 = y, x

	var result heap.Ref
	switch op {
	case Add:
		result, err = bigint.Add(vm, vm.regs.op1, vm.regs.op2)
	case Sub:
		result, err = bigint.Sub(vm, vm.regs.op1, vm.regs.op2)
	case Mul:
		result, err = bigint.Mul(vm, vm.regs.op1, vm.regs.op2)
	}
	if err != nil {
		return err
	}
	vm.regs.res = result
	return vm.push(RefSlot(vm.regs.res))
}

// doDivMod implements div and mod, which both compute a quotient and
// remainder in one bigint call and differ only in which half is pushed.
// The quotient is rooted into vm.regs.res the moment bigint.DivMod
// allocates it, before the remainder's own allocation runs and can trigger
// a collection — otherwise that collection would find the quotient in no
// root and reclaim it out from under the still-running operation.
func (vm *VM) doDivMod(wantQuotient bool) error {
	y, err := vm.popRef()
	if err != nil {
		return err
	}
	x, err := vm.popRef()
	if err != nil {
		return err
	}
	vm.regs.op2, vm.regs.op1 = y, x

	remainder, err := bigint.DivMod(vm, vm.regs.op1, vm.regs.op2, func(q heap.Ref) {
		vm.regs.res = q
	})
	if err != nil {
		return err
	}
	vm.regs.rem = remainder

	if wantQuotient {
		return vm.push(RefSlot(vm.regs.res))
	}
	return vm.push(RefSlot(vm.regs.rem))
}

// doComparison implements eq/ne/lt/le/gt/ge as the sign of cmp(x, y)
// evaluated against the six relational predicates, per spec.md §9's note
// against porting the reference implementation's template dispatch.
func (vm *VM) doComparison(op Opcode) error {
	y, err := vm.popRef()
	if err != nil {
		return err
	}
	x, err := vm.popRef()
	if err != nil {
		return err
	}
	vm.regs.op2, vm.regs.op1 = y, x

	sign := bigint.Cmp(vm, vm.regs.op1, vm.regs.op2)

	var result bool
	switch op {
	case Eq:
		result = sign == 0
	case Ne:
		result = sign != 0
	case Lt:
		result = sign < 0
	case Le:
		result = sign <= 0
	case Gt:
		result = sign > 0
	case Ge:
		result = sign >= 0
	}
	return vm.pushInt(boolToInt64(result))
}
