// Package vm implements the interpreter half of the register VM: loading
// a compiled isa.ProgramImage, pre-indexing labels, and running the
// fetch-decode-execute dispatch loop described in spec §4.C.
package vm

import (
	"log/slog"
	"os"

	"rvm/internal/isa"
)

// CompareResult is the outcome of the last CMP instruction (spec §3).
type CompareResult int

const (
	// NEQUAL is the reset value; CMP produces it only when an operand is
	// NaN, since then none of >, < and == holds.
	NEQUAL CompareResult = iota
	LESS
	GREATER
	EQUAL
)

// HostFunc is a native callout registered under an 8-bit id and invoked
// by CALL with a view over the data stack (spec §6 Run API).
type HostFunc func(stack *[isa.MaxStack]float64, sp uint8)

// Mode controls how the interpreter reacts to malformed/edge-case input.
type Mode int

const (
	// Lenient reproduces the v1 reference's total, never-faulting
	// behavior: every malformed construct is a silent no-op (spec §4.C
	// "Failure semantics").
	Lenient Mode = iota
	// Strict collects RuntimeErrors (spec §7) instead of silently
	// no-op'ing them, while execution otherwise continues exactly as in
	// Lenient mode (the reference never aborts on its own).
	Strict
)

// VM is a single, non-shared instance of the interpreter (spec §5:
// "concurrent execution of the same instance is disallowed"). Multiple
// VMs may run concurrently against the same read-only ProgramImage.
type VM struct {
	r16 [4]int16
	r32 [4]int32
	rf  [4]float32

	stack [isa.MaxStack]float64
	sp    uint8

	callstack [isa.MaxCallStack]uint32
	csp       uint16

	symbols [isa.MaxSymbols]uint32

	pc  uint32
	cmp CompareResult

	program []uint16
	size    uint32

	// hostFns is owned exclusively by this VM (spec §9 REDESIGN: "must
	// become an explicit registry owned by the VM ... No hidden
	// singletons"), replacing the reference's process-wide table.
	hostFns [256]HostFunc

	mode Mode
	log  *slog.Logger

	// Errs accumulates RuntimeErrors in Strict mode; always empty in
	// Lenient mode.
	Errs []*RuntimeError
}

// Option configures a new VM.
type Option func(*VM)

// WithMode sets the interpreter's error-handling mode.
func WithMode(m Mode) Option {
	return func(v *VM) { v.mode = m }
}

// WithLogger installs a trace sink for structured VM events (spec §1:
// "the VM emits structured trace events; routing is external"). Defaults
// to a handler that discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(v *VM) { v.log = log }
}

// New creates a VM with all registers, stacks, and the symbol cache
// zeroed, per spec §4.C "Loading"/Reset.
func New(opts ...Option) *VM {
	v := &VM{}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn + 1}))
	}
	v.Reset()
	return v
}

// Reset clears cursor, stacks, comparison flag, registers, and symbol
// cache without touching the loaded program or the host function table
// (spec §4.C "Loading": "set pc=sp=csp=0, clears cmp to NEQUAL, zeroes
// registers, sets all symbols[i] to a sentinel >= size").
func (v *VM) Reset() {
	v.r16 = [4]int16{}
	v.r32 = [4]int32{}
	v.rf = [4]float32{}
	v.stack = [isa.MaxStack]float64{}
	v.sp = 0
	v.callstack = [isa.MaxCallStack]uint32{}
	v.csp = 0
	v.pc = 0
	v.cmp = NEQUAL
	v.Errs = nil

	sentinel := v.size
	for i := range v.symbols {
		v.symbols[i] = sentinel
	}
}

// LoadImage copies the program into the VM and resets execution state,
// then runs the label pre-pass (spec §4.C "Label pre-pass").
func (v *VM) LoadImage(img *isa.ProgramImage) {
	v.program = append([]uint16(nil), img.Code...)
	v.size = img.Size
	v.Reset()
	v.resolveLabels()
}

// resolveLabels scans the whole program once, recording the index of
// every LBL/FN word. Later definitions win (spec §4.C). O(size).
func (v *VM) resolveLabels() {
	for i := uint32(0); i < v.size; i++ {
		op, _, _, symID := isa.DecodeWord(v.program[i])
		if op == isa.LBL || op == isa.FN {
			v.symbols[symID] = i
			v.log.Debug("resolved label", "symbol", symID, "index", i)
		}
	}
}

// RegisterHost installs a native callout under id. Registration must
// complete before Run is invoked (spec §5 "Shared resources"); the
// table is read-only for the remainder of execution.
func (v *VM) RegisterHost(id uint8, fn HostFunc) {
	v.hostFns[id] = fn
}

// PC returns the current program cursor, primarily for debug tooling.
func (v *VM) PC() uint32 { return v.pc }

// Size returns the loaded program's word count.
func (v *VM) Size() uint32 { return v.size }

// Halted reports whether the dispatch loop has run to completion.
func (v *VM) Halted() bool { return v.pc >= v.size }

// Register16/Register32/RegisterFloat expose register contents for
// tests and embedders; none of them are part of the dispatch hot path.
func (v *VM) Register16(op isa.Operand) int16 {
	if bank, idx := op.BankOf(); bank == isa.Bank16 {
		return v.r16[idx]
	}
	return 0
}

func (v *VM) Register32(op isa.Operand) int32 {
	if bank, idx := op.BankOf(); bank == isa.Bank32 {
		return v.r32[idx]
	}
	return 0
}

func (v *VM) RegisterFloat(op isa.Operand) float32 {
	if bank, idx := op.BankOf(); bank == isa.BankFloat {
		return v.rf[idx]
	}
	return 0
}

// Compare returns the outcome of the last CMP instruction.
func (v *VM) Compare() CompareResult { return v.cmp }

// StackDepth returns the number of live words on the data stack.
func (v *VM) StackDepth() uint8 { return v.sp }
