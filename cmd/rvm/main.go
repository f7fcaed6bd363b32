// Command rvm is the host driver for the register VM: it wires
// asm.Compile to vm.VM.Run. Per spec §6 the CLI surface is explicitly
// outside the core; this is the thin embedder the core API was designed
// for, built with cobra the way oisee-z80-optimizer wires its own
// command surface.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rvm/internal/asm"
	"rvm/internal/isa"
	"rvm/internal/vm"
)

var (
	debugFlag  bool
	lenientFlg bool
	stepBudget uint64
)

func main() {
	root := &cobra.Command{
		Use:   "rvm",
		Short: "Register VM assembler and interpreter",
	}
	root.PersistentFlags().BoolVar(&lenientFlg, "lenient", false, "use v1-compatible lenient assembly/runtime semantics")

	compileCmd := &cobra.Command{
		Use:   "compile [files...]",
		Short: "Assemble source files and print the resulting bytecode",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCompile,
	}

	runCmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Assemble and execute source files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExec,
	}
	runCmd.Flags().BoolVar(&debugFlag, "debug", false, "step through execution interactively")
	runCmd.Flags().Uint64Var(&stepBudget, "step-budget", 0, "abort after N dispatch steps (0 = unbounded)")

	root.AddCommand(compileCmd, runCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func assemblerMode() asm.Mode {
	if lenientFlg {
		return asm.Lenient
	}
	return asm.Strict
}

func runCompile(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	img, errs := asm.CompileFiles(asm.Options{Mode: assemblerMode(), Log: log}, args...)
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e)
	}
	if img == nil {
		return fmt.Errorf("compilation failed")
	}
	fmt.Print(img.Disassemble())
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	img, errs := asm.CompileFiles(asm.Options{Mode: assemblerMode(), Log: log}, args...)
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e)
	}
	if img == nil {
		return fmt.Errorf("compilation failed")
	}

	mode := vm.Strict
	if lenientFlg {
		mode = vm.Lenient
	}
	machine := vm.New(vm.WithLogger(log), vm.WithMode(mode))
	machine.LoadImage(img)

	if debugFlag {
		return runDebugREPL(machine)
	}

	result := machine.Run(context.Background(), vm.RunOptions{StepBudget: stepBudget})
	for _, e := range machine.Errs {
		fmt.Fprintln(os.Stderr, e)
	}
	if result.Status == vm.Interrupted {
		return fmt.Errorf("interrupted at pc=%d after %d steps", result.PC, result.Steps)
	}
	return nil
}

// runDebugREPL ports the teacher's n/r/b breakpoint REPL (vm/run.go
// RunProgramDebugMode) onto the new Debugger/VM pair.
func runDebugREPL(machine *vm.VM) error {
	dbg := vm.NewDebugger(machine)
	fmt.Println("Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <pc>: toggle a breakpoint")

	reader := bufio.NewReader(os.Stdin)
	for !machine.Halted() {
		fmt.Print("\n-> ")
		line, _ := reader.ReadString('\n')
		line = strings.ToLower(strings.TrimSpace(line))

		switch {
		case line == "n" || line == "next":
			dbg.Next()
			printState(machine)
		case line == "r" || line == "run":
			dbg.RunToBreakOrHalt()
			printState(machine)
		case strings.HasPrefix(line, "b"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("bad pc:", err)
				continue
			}
			dbg.ToggleBreak(uint32(n))
		}
	}
	return nil
}

func printState(v *vm.VM) {
	fmt.Printf("  pc=%d sp=%d cmp=%d\n", v.PC(), v.StackDepth(), v.Compare())
	fmt.Printf("  as=%d bs=%d cs=%d ds=%d\n",
		v.Register16(isa.AS), v.Register16(isa.BS), v.Register16(isa.CS), v.Register16(isa.DS))
}
