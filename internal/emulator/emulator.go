// Package emulator runs x86-64 images on the interpreter in package cpu.
package emulator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/arch/x86/x86asm"

	"github.com/zboralski/xemu/internal/cpu"
	"github.com/zboralski/xemu/internal/decode"
	"github.com/zboralski/xemu/internal/loader"
	glog "github.com/zboralski/xemu/internal/log"
	"github.com/zboralski/xemu/internal/syscalls"
	"github.com/zboralski/xemu/internal/trace"
)

// Execution is the result of a program that exited through the exit syscall.
type Execution struct {
	ExitCode uint64
	Stdout   string
	Stderr   string
}

// CodeHookFunc is called before each instruction executes.
type CodeHookFunc func(emu *Emulator, addr uint64, inst x86asm.Inst)

// SyscallHookFunc is called after each successful syscall.
type SyscallHookFunc func(emu *Emulator, category, name, detail string)

// Options configures an Emulator. The zero value uses a cpu.DefaultStackSize
// stack, no step limit and the default syscall registry.
type Options struct {
	StackSize int
	// MaxSteps bounds the number of executed instructions. 0 means unbounded.
	MaxSteps uint64
	Syscalls *syscalls.Registry
}

// Emulator drives a decoder over one image against a fresh CPU.
type Emulator struct {
	cpu      *cpu.Cpu
	dec      *decode.Decoder
	syscalls *syscalls.Registry
	state    syscalls.State

	maxSteps uint64
	steps    uint64

	// Hooks
	codeHooks    []CodeHookFunc
	syscallHooks []SyscallHookFunc

	// Trace collection
	traceEnabled bool
	traceEvents  []*trace.Event
	traceMu      sync.Mutex

	// Control transfers must land inside [base, limit): the virtual
	// addresses of the first and one past the last image byte.
	base  uint64
	limit uint64

	stopped bool
	done    bool
}

// New creates an emulator over a decoder positioned at the entry instruction.
func New(dec *decode.Decoder, opts Options) *Emulator {
	size := opts.StackSize
	if size <= 0 {
		size = cpu.DefaultStackSize
	}
	reg := opts.Syscalls
	if reg == nil {
		reg = syscalls.DefaultRegistry
	}
	base := dec.IP() - uint64(dec.Position())
	return &Emulator{
		cpu:      cpu.NewWithStackSize(size),
		dec:      dec,
		syscalls: reg,
		maxSteps: opts.MaxSteps,
		base:     base,
		limit:    base + uint64(dec.Len()),
	}
}

// ExecuteBinary resolves the entry point of data and runs it to completion.
func ExecuteBinary(data []byte, opts Options) (*Execution, error) {
	return ExecuteBinaryContext(context.Background(), data, opts)
}

// ExecuteBinaryContext is ExecuteBinary with cancellation.
func ExecuteBinaryContext(ctx context.Context, data []byte, opts Options) (*Execution, error) {
	entry, err := loader.ResolveEntry(data)
	if err != nil {
		return nil, err
	}
	return New(entry.Decoder, opts).RunContext(ctx)
}

// Cpu returns the CPU state.
func (e *Emulator) Cpu() *cpu.Cpu { return e.cpu }

// PC returns the instruction pointer.
func (e *Emulator) PC() uint64 { return e.cpu.Registers.RIP }

// Steps returns the number of instructions decoded so far.
func (e *Emulator) Steps() uint64 { return e.steps }

// HookCode adds a code hook called for every instruction
func (e *Emulator) HookCode(fn CodeHookFunc) {
	e.codeHooks = append(e.codeHooks, fn)
}

// HookSyscall adds a hook called after every successful syscall
func (e *Emulator) HookSyscall(fn SyscallHookFunc) {
	e.syscallHooks = append(e.syscallHooks, fn)
}

// EnableTrace enables collection of syscall and jump events
func (e *Emulator) EnableTrace() {
	e.traceEnabled = true
}

// GetTraceEvents returns collected trace events
func (e *Emulator) GetTraceEvents() []*trace.Event {
	e.traceMu.Lock()
	defer e.traceMu.Unlock()
	return append([]*trace.Event{}, e.traceEvents...)
}

// AddTraceEvent adds a trace event
func (e *Emulator) AddTraceEvent(event *trace.Event) {
	trace.DefaultEnricher(event)
	e.traceMu.Lock()
	defer e.traceMu.Unlock()
	e.traceEvents = append(e.traceEvents, event)
}

// Stop makes Run and Step return ErrStopped before the next instruction.
// It is meant to be called from a hook.
func (e *Emulator) Stop() {
	e.stopped = true
}

// Run executes until the program exits or fails.
func (e *Emulator) Run() (*Execution, error) {
	return e.RunContext(context.Background())
}

// RunContext executes until the program exits, fails or ctx is done. It
// continues from the current instruction when the emulator was stepped.
func (e *Emulator) RunContext(ctx context.Context) (*Execution, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exec, err := e.Step()
		if err != nil || exec != nil {
			return exec, err
		}
	}
}

// Done reports whether the program exited or failed.
func (e *Emulator) Done() bool { return e.done }

// Step executes one instruction. It returns the Execution once the program
// has exited and nil while it is still running. Once the program exited or
// failed, Step returns ErrAlreadyRan.
func (e *Emulator) Step() (*Execution, error) {
	if e.done {
		return nil, ErrAlreadyRan
	}
	exec, err := e.step()
	if err != nil || exec != nil {
		e.done = true
	}
	return exec, err
}

func (e *Emulator) step() (*Execution, error) {
	if e.stopped {
		return nil, ErrStopped
	}
	if e.maxSteps != 0 && e.steps >= e.maxSteps {
		return nil, fmt.Errorf("%w: %d instructions", ErrStepLimit, e.steps)
	}

	addr := e.dec.IP()
	inst, err := e.dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProgramDidNotExit, err)
	}
	e.steps++

	for _, hook := range e.codeHooks {
		hook(e, addr, inst)
	}

	e.cpu.Registers.RIP = e.dec.IP()

	if cpu.Classify(inst) == cpu.CodeSyscall {
		if err := e.syscall(addr); err != nil {
			return nil, err
		}
	} else if err := e.cpu.ExecuteInstruction(inst); err != nil {
		return nil, &CPUError{Addr: addr, Err: err}
	}

	if e.state.Exited() {
		return &Execution{
			ExitCode: *e.state.ExitCode,
			Stdout:   e.state.Stdout.String(),
			Stderr:   e.state.Stderr.String(),
		}, nil
	}

	// Instruction pointer modified by the program
	if rip := e.cpu.Registers.RIP; rip != e.dec.IP() {
		if rip < e.base || rip >= e.limit {
			return nil, fmt.Errorf("%w: 0x%x not in [0x%x, 0x%x)", ErrIPOutsideProgram, rip, e.base, e.limit)
		}
		e.jumped(addr, inst, rip)
		e.dec.SetIP(rip)
		if err := e.dec.SetPosition(int(rip - e.base)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIPOutsideProgram, err)
		}
	}
	return nil, nil
}

// Peek decodes the next instruction without executing it.
func (e *Emulator) Peek() (uint64, x86asm.Inst, error) {
	ip, pos := e.dec.IP(), e.dec.Position()
	inst, err := e.dec.Decode()
	e.dec.SetIP(ip)
	if serr := e.dec.SetPosition(pos); serr != nil && err == nil {
		err = serr
	}
	return ip, inst, err
}

// Output returns what the program wrote so far.
func (e *Emulator) Output() (stdout, stderr string) {
	return e.state.Stdout.String(), e.state.Stderr.String()
}

func (e *Emulator) syscall(addr uint64) error {
	def, detail, err := e.syscalls.Call(e.cpu, &e.state)
	if err != nil {
		return err
	}
	for _, hook := range e.syscallHooks {
		hook(e, def.Category, def.Name, detail)
	}
	if e.traceEnabled {
		ev := trace.NewEvent(addr, def.Category, def.Name, detail)
		if def.Number == syscalls.SysWrite {
			ev.Annotate("fd", fmt.Sprint(e.cpu.Registers.RDI()))
		}
		e.AddTraceEvent(ev)
	}
	return nil
}

func (e *Emulator) jumped(addr uint64, inst x86asm.Inst, target uint64) {
	if glog.L != nil {
		glog.L.Debug("jump", glog.Addr(addr), glog.Ptr("target", target))
	}
	if !e.traceEnabled {
		return
	}
	ev := trace.NewEvent(addr, string(trace.Jump), inst.Op.String(), "-> "+glog.Hex(target))
	if target <= addr {
		ev.Annotate("dir", "back")
	} else {
		ev.Annotate("dir", "forward")
	}
	e.AddTraceEvent(ev)
}
