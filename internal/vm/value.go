package vm

import "rvm/internal/isa"

// absent is the "missing operand" sentinel value, used only internally;
// callers should check Value.Present rather than compare against it.
// Kept as a constant purely to document the behavior the reference VM
// used a raw float for (spec §9 "Magic sentinel -1.1337").
const absent = -1.1337

// Value is the result of resolving one operand: either a present numeric
// value (registers and inline constants all widen through float64, per
// spec §9's guidance to keep the widening ABI) or an explicit absence.
// This replaces the reference's float sentinel with a proper sum type
// (spec §9).
type Value struct {
	Present bool
	F       float64
}

func presentValue(f float64) Value { return Value{Present: true, F: f} }

// readOperand resolves operand code op, consuming any inline constant
// words at the current cursor and advancing v.pc past them (spec §4.C
// "Operand read"). Operand A must be read before operand B so that A's
// inline constant precedes B's in the word stream.
func (v *VM) readOperand(op isa.Operand) Value {
	switch {
	case op == isa.NONE:
		return Value{Present: false, F: absent}
	case op.IsRegister():
		bank, idx := op.BankOf()
		switch bank {
		case isa.Bank16:
			return presentValue(float64(v.r16[idx]))
		case isa.Bank32:
			return presentValue(float64(v.r32[idx]))
		case isa.BankFloat:
			return presentValue(float64(v.rf[idx]))
		}
		return Value{Present: false, F: absent}
	case op == isa.SH:
		w := v.nextWord()
		return presentValue(float64(int16(w)))
	case op == isa.FL:
		hi := v.nextWord()
		lo := v.nextWord()
		return presentValue(float64(isa.DecodeFloat32Operand(hi, lo)))
	case op == isa.IN:
		hi := v.nextWord()
		lo := v.nextWord()
		return presentValue(float64(isa.DecodeInt32Operand(hi, lo)))
	default:
		return Value{Present: false, F: absent}
	}
}

// nextWord consumes the program word immediately after the current
// instruction, advancing pc. Out-of-range reads return 0 rather than
// panicking, consistent with the interpreter's total failure semantics.
func (v *VM) nextWord() uint16 {
	v.pc++
	if v.pc < v.size {
		return v.program[v.pc]
	}
	return 0
}

// writeRegister stores value into the register addressed by op, applying
// ordinary truncation on narrowing. Writes to non-register operand codes
// are silently ignored (spec §4.C "Register write").
func (v *VM) writeRegister(op isa.Operand, value float64) {
	bank, idx := op.BankOf()
	switch bank {
	case isa.Bank16:
		v.r16[idx] = int16(value)
	case isa.Bank32:
		v.r32[idx] = int32(value)
	case isa.BankFloat:
		v.rf[idx] = float32(value)
	}
}
