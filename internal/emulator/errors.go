package emulator

import (
	"errors"
	"fmt"
)

var (
	ErrProgramDidNotExit = errors.New("program did not exit in a clean manner")
	ErrIPOutsideProgram  = errors.New("instruction pointer changed by program and is no longer within the program space - memory is not implemented")
	ErrStepLimit         = errors.New("instruction limit reached")
	ErrStopped           = errors.New("emulation stopped")
	ErrAlreadyRan        = errors.New("emulator already ran")
)

// CPUError wraps a failure of the instruction at Addr.
type CPUError struct {
	Addr uint64
	Err  error
}

func (e *CPUError) Error() string {
	return fmt.Sprintf("cpu error at 0x%x: %v", e.Addr, e.Err)
}

func (e *CPUError) Unwrap() error { return e.Err }
