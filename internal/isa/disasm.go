package isa

import (
	"fmt"
	"strings"
)

// Disassemble renders the program image back to a human-readable listing,
// one instruction per line, in the style of the original compiler's
// trailing "int program[] = { ... }" dump (original_source/src/compiler.cpp)
// but readable as assembly rather than as a C literal.
func (p *ProgramImage) Disassemble() string {
	var b strings.Builder
	for i := uint32(0); i < p.Size; {
		w := p.Code[i]
		op, a, bOperand, symID := DecodeWord(w)

		switch FormOf(op) {
		case NoOperandForm:
			fmt.Fprintf(&b, "%4d: %s\n", i, op)
			i++
		case SymbolForm:
			name := p.nameOf(symID)
			fmt.Fprintf(&b, "%4d: %s %s\n", i, op, name)
			i++
		default: // RegForm
			i++
			aStr, consumed := p.describeOperand(a, i)
			i += consumed
			bStr, consumed2 := p.describeOperand(bOperand, i)
			i += consumed2

			switch {
			case aStr == "" && bStr == "":
				fmt.Fprintf(&b, "%4d: %s\n", i-1-consumed-consumed2, op)
			case bStr == "":
				fmt.Fprintf(&b, "%4d: %s %s\n", i-1-consumed-consumed2, op, aStr)
			default:
				fmt.Fprintf(&b, "%4d: %s %s,%s\n", i-1-consumed-consumed2, op, aStr, bStr)
			}
		}
	}
	return b.String()
}

func (p *ProgramImage) nameOf(symID uint8) string {
	if int(symID) < len(p.Names) && p.Names[symID] != "" {
		return p.Names[symID]
	}
	return fmt.Sprintf("sym%d", symID)
}

// describeOperand renders operand o for display purposes, consuming and
// reporting any inline-constant words that follow at index idx.
func (p *ProgramImage) describeOperand(o Operand, idx uint32) (string, uint32) {
	switch {
	case o == NONE:
		return "", 0
	case o.IsRegister():
		return o.String(), 0
	case o == SH:
		if idx < p.Size {
			return fmt.Sprintf("#%d", int16(p.Code[idx])), 1
		}
		return "#?", 0
	case o == IN:
		if idx+1 < p.Size {
			return fmt.Sprintf("#%d", DecodeInt32Operand(p.Code[idx], p.Code[idx+1])), 2
		}
		return "#?", 0
	case o == FL:
		if idx+1 < p.Size {
			return fmt.Sprintf("#%g", DecodeFloat32Operand(p.Code[idx], p.Code[idx+1])), 2
		}
		return "#?", 0
	default:
		return "", 0
	}
}
