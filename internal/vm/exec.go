package vm

import "rvm/internal/isa"

// Step executes exactly one instruction: decode, resolve operand A then
// operand B (each may consume and advance past inline constant words),
// dispatch, then advance pc past the instruction header (spec §4.C
// "Dispatch loop"). It is a no-op once Halted().
func (v *VM) Step() {
	if v.pc >= v.size {
		return
	}

	word := v.program[v.pc]
	op, aOp, bOp, symID := isa.DecodeWord(word)

	switch isa.FormOf(op) {
	case isa.SymbolForm:
		v.execSymbolForm(op, symID)
	case isa.RegForm:
		a := v.readOperand(aOp)
		b := v.readOperand(bOp)
		v.execRegForm(op, aOp, bOp, a, b)
	default:
		v.execNoOperand(op)
	}

	v.pc++
}

func (v *VM) execNoOperand(op isa.Opcode) {
	switch op {
	case isa.NOP:
	case isa.RET:
		if v.csp == 0 {
			return
		}
		v.csp--
		v.pc = v.callstack[v.csp]

		// Restore registers in reverse of the save order: rf[3..0],
		// r32[3..0], r16[3..0] (spec §4.C "RET").
		for i := 3; i >= 0; i-- {
			if f, ok := v.popStack(); ok {
				v.rf[i] = float32(f)
			}
		}
		for i := 3; i >= 0; i-- {
			if f, ok := v.popStack(); ok {
				v.r32[i] = int32(f)
			}
		}
		for i := 3; i >= 0; i-- {
			if f, ok := v.popStack(); ok {
				v.r16[i] = int16(f)
			}
		}
	}
}

func (v *VM) execSymbolForm(op isa.Opcode, symID uint8) {
	switch op {
	case isa.LBL, isa.FN:
		// No-op at run time; handled entirely by the label pre-pass.
	case isa.DO:
		if v.csp >= isa.MaxCallStack {
			v.noteError(CallstackOverflow)
			return
		}
		for i := 0; i < 4; i++ {
			if !v.pushStack(float64(v.r16[i])) {
				v.noteError(StackOverflow)
			}
		}
		for i := 0; i < 4; i++ {
			if !v.pushStack(float64(v.r32[i])) {
				v.noteError(StackOverflow)
			}
		}
		for i := 0; i < 4; i++ {
			if !v.pushStack(float64(v.rf[i])) {
				v.noteError(StackOverflow)
			}
		}
		v.callstack[v.csp] = v.pc
		v.csp++
		v.jumpToSymbol(symID)
	case isa.JMP:
		v.jumpToSymbol(symID)
	case isa.JL:
		if v.cmp == LESS {
			v.jumpToSymbol(symID)
		}
	case isa.JG:
		if v.cmp == GREATER {
			v.jumpToSymbol(symID)
		}
	case isa.JE:
		if v.cmp == EQUAL {
			v.jumpToSymbol(symID)
		}
	case isa.JN:
		if v.cmp != EQUAL {
			v.jumpToSymbol(symID)
		}
	case isa.JLE:
		if v.cmp == LESS || v.cmp == EQUAL {
			v.jumpToSymbol(symID)
		}
	case isa.JGE:
		if v.cmp == GREATER || v.cmp == EQUAL {
			v.jumpToSymbol(symID)
		}
	}
}

// jumpToSymbol sets pc to the program index recorded for symID by the
// label pre-pass. A reference to a never-defined symbol is a no-op
// (spec §3 invariants, §8 scenario S6): its sentinel value is >= size,
// so the "pc += 1" epilogue simply advances past this instruction.
func (v *VM) jumpToSymbol(symID uint8) {
	target := v.symbols[symID]
	if target < v.size {
		v.pc = target
	}
}

func (v *VM) execRegForm(op isa.Opcode, aOp, bOp isa.Operand, a, b Value) {
	switch op {
	case isa.MOV:
		v.writeRegister(aOp, b.F)
	case isa.INC:
		v.writeRegister(aOp, a.F+1)
	case isa.DEC:
		v.writeRegister(aOp, a.F-1)
	case isa.ADD:
		v.writeRegister(aOp, a.F+b.F)
	case isa.SUB:
		v.writeRegister(aOp, a.F-b.F)
	case isa.MUL:
		v.writeRegister(aOp, a.F*b.F)
	case isa.DIV:
		if b.F <= 0 {
			v.noteError(DivideByZero)
			return
		}
		v.writeRegister(aOp, a.F/b.F)
	case isa.SIN, isa.COS:
		// Reserved; v1 treats as NOP (spec §4.C).
	case isa.CMP:
		switch {
		case a.F > b.F:
			v.cmp = GREATER
		case a.F < b.F:
			v.cmp = LESS
		case a.F == b.F:
			v.cmp = EQUAL
		default:
			v.cmp = NEQUAL
		}
	case isa.PUSH, isa.ARG:
		if a.Present {
			if !v.pushStack(a.F) {
				v.noteError(StackOverflow)
			}
		}
	case isa.POP:
		if aOp.IsRegister() {
			if f, ok := v.popStack(); ok {
				v.writeRegister(aOp, f)
			} else {
				v.noteError(StackUnderflow)
			}
		}
	case isa.CALL:
		id := uint8(a.F)
		fn := v.hostFns[id]
		if fn == nil {
			v.noteError(InvalidHostCall)
			return
		}
		fn(&v.stack, v.sp)
	case isa.PRINT:
		v.log.Info("print", "pc", v.pc, "value", a.F)
	case isa.PRINTL:
		v.log.Info("println", "pc", v.pc, "value", a.F)
	}
}

// pushStack appends a value to the data stack, returning false (and
// leaving sp unchanged) if the stack is full (spec §3 invariant: "PUSH
// fails silently if full").
func (v *VM) pushStack(val float64) bool {
	if v.sp >= isa.MaxStack {
		return false
	}
	v.stack[v.sp] = val
	v.sp++
	return true
}

// popStack removes and returns the top of the data stack. Popping an
// empty stack is a no-op (spec §3 invariant) and reports ok=false.
func (v *VM) popStack() (float64, bool) {
	if v.sp == 0 {
		return 0, false
	}
	v.sp--
	return v.stack[v.sp], true
}
