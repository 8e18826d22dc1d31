// Package syscalls provides a registry of syscall handlers keyed by number.
// Handler files use init() to register themselves with DefaultRegistry.
package syscalls

import (
	"sort"
	"strings"
	"sync"

	"github.com/zboralski/xemu/internal/cpu"
	glog "github.com/zboralski/xemu/internal/log"
)

// State collects the observable effects of a run.
type State struct {
	Stdout strings.Builder
	Stderr strings.Builder
	// ExitCode is set by the exit syscall.
	ExitCode *uint64
}

// Exited reports whether an exit code has been recorded.
func (s *State) Exited() bool { return s.ExitCode != nil }

// Handler executes a syscall against the CPU. The returned detail is a short
// human-readable description for tracing.
type Handler func(c *cpu.Cpu, st *State) (detail string, err error)

// Def defines a syscall by number.
type Def struct {
	Number uint64
	Name   string
	// Category groups syscalls in logs: "io", "proc".
	Category string
	Handler  Handler
}

// Registry holds registered syscall definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[uint64]*Def

	// OnCall is invoked after every successful syscall.
	OnCall func(category, name, detail string)
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// Debug enables logging of registrations.
var Debug = false

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[uint64]*Def)}
}

// Register adds a syscall definition, replacing any with the same number.
func (r *Registry) Register(def Def) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Number] = &def

	if Debug && glog.L != nil {
		glog.L.SyscallRegister(def.Category, def.Name, def.Number)
	}
}

// RegisterFunc is a convenience method to register a handler.
func (r *Registry) RegisterFunc(category, name string, number uint64, h Handler) {
	r.Register(Def{Number: number, Name: name, Category: category, Handler: h})
}

// Lookup returns the definition registered for number.
func (r *Registry) Lookup(number uint64) (*Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[number]
	return def, ok
}

// Call runs the syscall selected by RAX and returns its definition and the
// handler's detail string.
func (r *Registry) Call(c *cpu.Cpu, st *State) (*Def, string, error) {
	number := c.Registers.RAX()
	def, ok := r.Lookup(number)
	if !ok {
		return nil, "", &UnimplementedSyscallError{Number: number}
	}
	detail, err := def.Handler(c, st)
	if err != nil {
		return def, "", err
	}
	r.log(c.Registers.RIP, def.Category, def.Name, detail)
	return def, detail, nil
}

// Dispatch runs the syscall selected by RAX.
func (r *Registry) Dispatch(c *cpu.Cpu, st *State) error {
	_, _, err := r.Call(c, st)
	return err
}

func (r *Registry) log(pc uint64, category, name, detail string) {
	r.mu.RLock()
	cb := r.OnCall
	r.mu.RUnlock()

	if cb != nil {
		cb(category, name, detail)
	}
	if glog.L != nil {
		glog.L.Trace(pc, category, name, detail)
	}
}

// Count returns the number of registered syscalls.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// List returns all definitions ordered by number.
func (r *Registry) List() []Def {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Def, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Number < defs[j].Number })
	return defs
}

// Convenience functions for the default registry

// RegisterFunc adds a handler to the default registry.
func RegisterFunc(category, name string, number uint64, h Handler) {
	DefaultRegistry.RegisterFunc(category, name, number, h)
}

// Dispatch runs a syscall through the default registry.
func Dispatch(c *cpu.Cpu, st *State) error {
	return DefaultRegistry.Dispatch(c, st)
}
