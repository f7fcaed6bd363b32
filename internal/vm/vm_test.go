package vm_test

import (
	"context"
	"testing"

	"rvm/internal/asm"
	"rvm/internal/isa"
	"rvm/internal/vm"
)

func assemble(t *testing.T, src string) *isa.ProgramImage {
	t.Helper()
	img, errs := asm.Compile([]byte(src), asm.Options{Mode: asm.Strict})
	if len(errs) != 0 {
		t.Fatalf("compile errors: %v", errs)
	}
	return img
}

func run(t *testing.T, img *isa.ProgramImage, opts ...vm.Option) *vm.VM {
	t.Helper()
	m := vm.New(opts...)
	m.LoadImage(img)
	res := m.Run(context.Background(), vm.RunOptions{})
	if res.Status != vm.Finished {
		t.Fatalf("expected Finished, got %v at pc=%d", res.Status, res.PC)
	}
	return m
}

// S1 — counted loop.
func TestCountedLoop(t *testing.T) {
	src := `
MOV as,#0
MOV bs,#10
LOOP:
  INC as
  CMP as,bs
  JL LOOP
`
	m := run(t, assemble(t, src))

	if got := m.Register16(isa.AS); got != 10 {
		t.Errorf("as = %d, want 10", got)
	}
	if got := m.Register16(isa.BS); got != 10 {
		t.Errorf("bs = %d, want 10", got)
	}
	if m.Compare() != vm.EQUAL {
		t.Errorf("cmp = %v, want EQUAL", m.Compare())
	}
}

// S2 — subroutine saves registers.
func TestSubroutineSavesRegisters(t *testing.T) {
	src := `
MOV as,#3
DO double
NOP
JMP after

double:
FN double
  ADD as,as
  RET

after:
NOP
`
	m := run(t, assemble(t, src))
	if got := m.Register16(isa.AS); got != 3 {
		t.Errorf("as = %d after DO/RET, want 3 (registers restored)", got)
	}
	if m.StackDepth() != 0 {
		t.Errorf("stack depth = %d, want 0 (no net stack change)", m.StackDepth())
	}
}

// S3 — nested DO/RET.
func TestNestedDoRetDepthReturnsToZero(t *testing.T) {
	src := `
DO first
JMP end

first:
FN first
  INC as
  DO second
  RET

second:
FN second
  INC as
  RET

end:
NOP
`
	m := run(t, assemble(t, src))
	// Each subroutine increments as once, but each RET restores the as its
	// DO saved, so both increments are undone by the time the outer call
	// returns.
	if got := m.Register16(isa.AS); got != 0 {
		t.Errorf("as = %d, want 0 (registers restored after both returns)", got)
	}
	if m.StackDepth() != 0 {
		t.Errorf("stack depth = %d, want 0", m.StackDepth())
	}
}

// S4 — host call.
func TestHostCall(t *testing.T) {
	src := "PUSH #42\nCALL #7\n"
	img := assemble(t, src)

	var gotSP uint8
	var gotVal float64
	invoked := false

	m := vm.New()
	m.RegisterHost(7, func(stack *[isa.MaxStack]float64, sp uint8) {
		invoked = true
		gotSP = sp
		gotVal = stack[0]
	})
	m.LoadImage(img)
	res := m.Run(context.Background(), vm.RunOptions{})
	if res.Status != vm.Finished {
		t.Fatalf("run did not finish: %v", res)
	}

	if !invoked {
		t.Fatal("host function id 7 was never invoked")
	}
	if gotSP != 1 {
		t.Errorf("sp at host call = %d, want 1", gotSP)
	}
	if gotVal != 42 {
		t.Errorf("stack[0] at host call = %v, want 42", gotVal)
	}
}

// S5 — DIV by zero skipped.
func TestDivByZeroSkipped(t *testing.T) {
	src := "MOV as,#10\nDIV as,#0\n"
	m := run(t, assemble(t, src))
	if got := m.Register16(isa.AS); got != 10 {
		t.Errorf("as = %d, want 10 (DIV by <= 0 must be a no-op)", got)
	}
}

// S6 — branch to undefined symbol is a no-op.
func TestBranchToUndefinedSymbolIsNoop(t *testing.T) {
	src := "JMP neverDefined\nMOV as,#5\n"
	m := run(t, assemble(t, src))
	if got := m.Register16(isa.AS); got != 5 {
		t.Errorf("as = %d, want 5 (JMP to undefined symbol should fall through)", got)
	}
}

func TestLabelPrePassIsDeterministic(t *testing.T) {
	img := assemble(t, "LOOP:\nNOP\nJMP LOOP\n")

	m1 := vm.New()
	m1.LoadImage(img)
	m2 := vm.New()
	m2.LoadImage(img)

	// Running a handful of steps on each exercises resolveLabels twice
	// against the same image; both VMs must branch identically.
	for i := 0; i < 5; i++ {
		m1.Step()
		m2.Step()
	}
	if m1.PC() != m2.PC() {
		t.Fatalf("label pre-pass nondeterministic: pc1=%d pc2=%d", m1.PC(), m2.PC())
	}
}

func TestPushPopStackNeverUnderOrOverRuns(t *testing.T) {
	src := "PUSH #1\nPUSH #2\nPOP as\nPOP bs\nPOP cs\n"
	m := run(t, assemble(t, src))
	if m.StackDepth() != 0 {
		t.Fatalf("stack depth = %d, want 0", m.StackDepth())
	}
	if got := m.Register16(isa.AS); got != 2 {
		t.Errorf("as = %d, want 2 (LIFO pop order)", got)
	}
	if got := m.Register16(isa.BS); got != 1 {
		t.Errorf("bs = %d, want 1", got)
	}
	// Third POP hits an empty stack; must be a no-op, not a panic/crash.
	if got := m.Register16(isa.CS); got != 0 {
		t.Errorf("cs = %d, want 0 (unaffected by POP of an empty stack)", got)
	}
}

func TestStepBudgetInterruptsInfiniteLoop(t *testing.T) {
	img := assemble(t, "LOOP:\nNOP\nJMP LOOP\n")
	m := vm.New()
	m.LoadImage(img)
	res := m.Run(context.Background(), vm.RunOptions{StepBudget: 100})
	if res.Status != vm.Interrupted {
		t.Fatalf("status = %v, want Interrupted", res.Status)
	}
	if res.Steps != 100 {
		t.Fatalf("steps = %d, want 100", res.Steps)
	}
}

func TestStrictModeRecordsDivideByZero(t *testing.T) {
	img := assemble(t, "MOV as,#10\nDIV as,#0\n")
	m := vm.New(vm.WithMode(vm.Strict))
	m.LoadImage(img)
	m.Run(context.Background(), vm.RunOptions{})

	if len(m.Errs) != 1 || m.Errs[0].Kind != vm.DivideByZero {
		t.Fatalf("Errs = %v, want one DivideByZero", m.Errs)
	}
}
