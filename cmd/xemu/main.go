package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/arch/x86/x86asm"

	"github.com/zboralski/xemu/internal/challenge"
	"github.com/zboralski/xemu/internal/cpu"
	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/loader"
	glog "github.com/zboralski/xemu/internal/log"
	"github.com/zboralski/xemu/internal/syscalls"
	"github.com/zboralski/xemu/internal/ui/colorize"
	"github.com/zboralski/xemu/internal/ui/stepper"
)

var (
	verbose   bool
	quiet     bool
	maxInsn   int
	maxSteps  uint64
	stackSize int

	scriptPath string
	timeout    time.Duration
	rounds     int

	filter string
)

var errEmulation = errors.New("emulation failed")

func main() {
	rootCmd := &cobra.Command{
		Use:   "xemu [binary]",
		Short: "Emulate small x86-64 programs without running them",
		Long: `xemu interprets a tiny subset of x86-64 against an in-memory stack.

It loads ELF, PE and Mach-O (thin or fat) images, starts at the entry point
and executes mov, push, pop, jmp, xor and syscall until the program calls
exit. write(2) to stdout and stderr is captured. Nothing touches the host.

Examples:
  xemu ./chall                    # Trace and print the result
  xemu ./chall -q                 # Result only
  xemu info ./chall               # Format, entry and win_function
  xemu exports ./chall            # Exported symbols
  xemu step ./chall               # Interactive single-stepping
  xemu solve chall.example:1337   # Answer a remote challenge`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			glog.Init(verbose)
			syscalls.Debug = verbose
		},
		RunE: runEmulate,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	pf.Uint64Var(&maxSteps, "max-steps", 1_000_000, "instruction budget (0 = unbounded)")
	pf.IntVar(&stackSize, "stack-size", cpu.DefaultStackSize, "stack size in bytes")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (result only)")
	rootCmd.Flags().IntVarP(&maxInsn, "num", "n", 500, "max instructions to show")

	infoCmd := &cobra.Command{
		Use:   "info <binary>",
		Short: "Show binary information",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}

	exportsCmd := &cobra.Command{
		Use:   "exports <binary>",
		Short: "List exported symbols",
		Args:  cobra.ExactArgs(1),
		RunE:  showExports,
	}
	exportsCmd.Flags().StringVarP(&filter, "filter", "f", "", "only names containing this substring")

	solveCmd := &cobra.Command{
		Use:   "solve <host:port>",
		Short: "Solve a remote challenge",
		Long: `solve connects to a challenge server, emulates every base64 image it
sends and answers its prompts according to a YAML script.

Without --script the client answers "stdout" prompts with the program output
and "win_function" prompts with the hex address of that export.
ALL_PROXY is honoured when dialing.`,
		Args: cobra.ExactArgs(1),
		RunE: runSolve,
	}
	solveCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "YAML answer script")
	solveCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "session timeout (0 = none)")
	solveCmd.Flags().IntVar(&rounds, "rounds", 0, "number of rounds (overrides the script)")

	stepCmd := &cobra.Command{
		Use:   "step <binary>",
		Short: "Single-step a binary interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  runStep,
	}

	rootCmd.AddCommand(infoCmd, exportsCmd, stepCmd, solveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorize.Error("error: "+err.Error()))
		os.Exit(1)
	}
}

func emulatorOptions() emulator.Options {
	return emulator.Options{StackSize: stackSize, MaxSteps: maxSteps}
}

func runEmulate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	binaryPath := args[0]

	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	glog.L.Info("run", glog.Run(runID), zap.String("binary", binaryPath), glog.Size(uint64(len(data))))

	entry, err := loader.ResolveEntry(data)
	if err != nil {
		return fmt.Errorf("load %s: %w", binaryPath, err)
	}
	exports, err := loader.ResolveExports(data)
	if err != nil {
		glog.L.Warn("exports", glog.Run(runID), zap.Error(err))
	}
	addrToSym, symname := symbolizer(exports)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	emu := emulator.New(entry.Decoder, emulatorOptions())
	emu.EnableTrace()

	var out *outputWriter
	if !quiet {
		out = newOutputWriter()
		printHeader(out, binaryPath, entry, len(exports))
	}

	var (
		pending *tracedInsn
		seen    int
	)
	flush := func() {
		if pending == nil {
			return
		}
		all := emu.GetTraceEvents()
		out.Write(formatLine(*pending, all[seen:]))
		seen = len(all)
		pending = nil
	}

	emu.HookCode(func(e *emulator.Emulator, addr uint64, inst x86asm.Inst) {
		if quiet {
			return
		}
		flush()
		if e.Steps() > uint64(maxInsn) {
			return
		}
		pending = &tracedInsn{
			addr: addr,
			code: instructionBytes(entry, addr, inst.Len),
			dis:  x86asm.IntelSyntax(inst, addr, symname),
			op:   inst.Op,
			fn:   addrToSym[addr],
		}
	})

	exec, runErr := emu.RunContext(ctx)
	if out != nil {
		flush()
		out.Close()
	}
	glog.L.Info("done", glog.Run(runID), zap.Uint64("steps", emu.Steps()), zap.Error(runErr))

	if verbose {
		fmt.Printf("\nRegisters: %s\n", emu.Cpu().Registers.String())
	}

	if quiet {
		if runErr != nil {
			return runErr
		}
		fmt.Print(exec.Stdout)
		fmt.Fprint(os.Stderr, exec.Stderr)
		fmt.Printf("exit %d\n", exec.ExitCode)
		return nil
	}

	summary := colorize.Summary{
		Binary: filepath.Base(binaryPath),
		Steps:  emu.Steps(),
		Err:    runErr,
	}
	if exec != nil {
		summary.ExitCode = exec.ExitCode
		summary.Stdout = exec.Stdout
		summary.Stderr = exec.Stderr
	}
	fmt.Println()
	fmt.Println(summary.Render())
	if runErr != nil {
		return errEmulation
	}
	return nil
}

func runStep(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	entry, err := loader.ResolveEntry(data)
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}
	exports, _ := loader.ResolveExports(data)
	_, symname := symbolizer(exports)

	model := stepper.New(emulator.New(entry.Decoder, emulatorOptions()), symname)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run(); err != nil {
		return err
	}
	exec, runErr := model.Result()
	if exec != nil {
		fmt.Printf("exit %d stdout %q\n", exec.ExitCode, exec.Stdout)
	}
	return runErr
}

func showInfo(cmd *cobra.Command, args []string) error {
	binaryPath := args[0]
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return err
	}

	fmt.Printf("Binary: %s\n", filepath.Base(binaryPath))
	fmt.Printf("Format: %s\n", loader.Detect(data))

	info, err := loader.Inspect(data)
	if err != nil {
		return err
	}
	fmt.Printf("Bits:   %d\n", info.Bitness)
	fmt.Printf("Base:   0x%x\n", info.Base)
	fmt.Printf("Entry:  0x%x\n", info.EntryPoint)
	fmt.Printf("Exports: %d\n", len(info.Exports))

	if addr, ok := info.Exports.Find("win_function"); ok {
		fmt.Printf("  win_function: 0x%x\n", addr)
	}

	fmt.Println("\nSyscalls:")
	for _, def := range syscalls.DefaultRegistry.List() {
		fmt.Printf("  0x%02x %s/%s\n", def.Number, def.Category, def.Name)
	}
	return nil
}

func showExports(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	exports, err := loader.ResolveExports(data)
	if err != nil {
		return err
	}
	if filter != "" {
		exports = exports.BySubstring(filter)
	}
	for _, e := range exports.Sorted() {
		fmt.Printf("%s  %s\n", colorize.Address(e.Addr), colorize.FuncName(e.Name))
	}
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	script := challenge.DefaultScript()
	if scriptPath != "" {
		s, err := challenge.LoadScript(scriptPath)
		if err != nil {
			return err
		}
		script = s
	}
	if rounds > 0 {
		script.Rounds = rounds
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := &challenge.Client{Options: emulatorOptions()}
	res, err := client.Solve(ctx, args[0], script)
	if res != nil {
		fmt.Printf("%s %s  %s %d/%d\n",
			colorize.Detail("session"), res.Session,
			colorize.Detail("rounds"), res.Rounds, script.Rounds)
		if len(res.Flags) > 0 {
			fmt.Println(colorize.String(strings.Join(res.Flags, "\n")))
		}
	}
	return err
}
