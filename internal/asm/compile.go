// Package asm implements the single-pass textual assembler described in
// spec §4.B: it lexes an assembly-like source file, resolves registers
// and symbol references, and emits a packed isa.ProgramImage. Unlike a
// conventional two-pass assembler, forward references to labels need no
// backpatching here — only the instruction's opaque symbol id is emitted;
// the interpreter resolves ids to program indices in its own pre-pass
// (spec §4.C).
package asm

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"rvm/internal/isa"
)

// Mode selects how the assembler reacts to malformed input.
type Mode int

const (
	// Strict surfaces a CompileError for every malformed construct (§7).
	Strict Mode = iota
	// Lenient reproduces the v1 reference's permissive behavior: unknown
	// opcodes are silently dropped and malformed operands are best-effort,
	// producing a truncated image instead of an error (§4.B "Errors",
	// §9 "Silent failure policy").
	Lenient
)

// Options configures a single Compile call.
type Options struct {
	Mode Mode
	// Log receives compile-time diagnostics, e.g. symbol assignment
	// (restoring the original compiler's "Assigned symbol ..." trace,
	// see SPEC_FULL.md "Supplemented features"). Defaults to a handler
	// that discards everything.
	Log *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn + 1}))
}

// Compile assembles source bytes into a program image. In Strict mode a
// non-nil []CompileError means the image is incomplete; in Lenient mode
// errors are never returned and the image reflects v1's best-effort
// truncation behavior.
func Compile(src []byte, opts Options) (*isa.ProgramImage, []*CompileError) {
	log := opts.logger()
	syms := newSymbolTable()
	var code []uint16
	var errs []*CompileError

	fail := func(kind Kind, line int, format string, args ...any) bool {
		if opts.Mode == Strict {
			errs = append(errs, newError(kind, line, format, args...))
		}
		return opts.Mode == Strict
	}

	for _, line := range lexLines(src) {
		if len(code) >= isa.MaxProgramWords {
			fail(CodeOverflow, line.num, "program exceeds %d words", isa.MaxProgramWords)
			break
		}

		emitted, err := compileLine(line, syms, log, opts.Mode)
		if err != nil {
			if stop := fail(err.Kind, line.num, "%s", err.Msg); stop {
				continue
			}
		}
		code = append(code, emitted...)
	}

	if len(code) > isa.MaxProgramWords {
		code = code[:isa.MaxProgramWords]
	}

	img := &isa.ProgramImage{
		Code:  code,
		Size:  uint32(len(code)),
		Names: append([]string(nil), syms.names...),
	}
	return img, errs
}

// CompileFiles reads and concatenates one or more source files, in order,
// before compiling them as a single program -- preserving the teacher's
// multi-file NewVirtualMachine/CompileSource convenience (vm/vm.go,
// vm/compile.go) on top of the single Compile primitive.
func CompileFiles(opts Options, paths ...string) (*isa.ProgramImage, []*CompileError) {
	var all []byte
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, []*CompileError{newError(BadOperand, 0, "reading %s: %v", p, err)}
		}
		all = append(all, b...)
		all = append(all, '\n')
	}
	return Compile(all, opts)
}

// compileLine parses one tokenized source line into zero or more words.
func compileLine(line sourceLine, syms *symbolTable, log *slog.Logger, mode Mode) ([]uint16, *CompileError) {
	tok := line.tokens
	head := tok[0]

	// 1. Label definition: "name:"
	if strings.HasSuffix(head, ":") {
		name := strings.TrimSuffix(head, ":")
		id, ok := syms.getOrCreate(name)
		if !ok {
			return nil, newError(SymbolTableFull, line.num, "too many symbols defining label %q", name)
		}
		log.Debug("assigned symbol", "name", name, "id", id)
		return []uint16{isa.EncodeSymbolForm(isa.LBL, id)}, nil
	}

	// 2. Directive: "symbol NAME"
	if head == "symbol" {
		if len(tok) < 2 {
			return nil, newError(BadOperand, line.num, "symbol directive missing a name")
		}
		id, ok := syms.getOrCreate(tok[1])
		if !ok {
			return nil, newError(SymbolTableFull, line.num, "too many symbols defining %q", tok[1])
		}
		log.Debug("assigned symbol", "name", tok[1], "id", id)
		return nil, nil
	}

	// 3. Instruction.
	op, ok := isa.LookupOpcode(head)
	if !ok {
		if mode == Lenient {
			return nil, nil
		}
		return nil, newError(UnknownOpcode, line.num, "unknown opcode %q", head)
	}

	base := uint16(op) << 8
	operandToks := tok[1:]
	if len(operandToks) > 2 {
		operandToks = operandToks[:2]
	}

	var words []uint16
	for i, t := range operandToks {
		nibbleShift := 4
		if i == 1 {
			nibbleShift = 0
		}

		switch {
		case isRegisterToken(t):
			reg, _ := isa.LookupRegister(t)
			base |= uint16(reg&0xF) << nibbleShift
		case strings.HasPrefix(t, "#"):
			n, err := strconv.ParseInt(t[1:], 10, 16)
			if err != nil {
				if mode == Lenient {
					n = 0
				} else {
					return nil, newError(BadOperand, line.num, "bad integer literal %q: %v", t, err)
				}
			}
			base |= uint16(isa.SH&0xF) << nibbleShift
			words = append(words, uint16(int16(n)))
		default:
			// Symbol reference: clobbers both operand nibbles with the
			// id in the low 8 bits, per spec §4.B item 4.
			id, ok := syms.getOrCreate(t)
			if !ok {
				return nil, newError(SymbolTableFull, line.num, "too many symbols referencing %q", t)
			}
			log.Debug("assigned symbol", "name", t, "id", id)
			base = (base &^ 0xFF) | uint16(id)
		}
	}

	return append([]uint16{base}, words...), nil
}

func isRegisterToken(t string) bool {
	_, ok := isa.LookupRegister(t)
	return ok
}
