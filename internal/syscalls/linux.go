package syscalls

import (
	"fmt"
	"unicode/utf8"

	"github.com/zboralski/xemu/internal/cpu"
	glog "github.com/zboralski/xemu/internal/log"
)

// Linux x86-64 syscall numbers.
const (
	SysWrite = 0x1
	SysExit  = 0x3c
)

const (
	FDStdout = 1
	FDStderr = 2
)

func init() {
	RegisterFunc("io", "write", SysWrite, sysWrite)
	RegisterFunc("proc", "exit", SysExit, sysExit)
}

// sysWrite implements write(fd=rdi, buf=rsi, count=rdx). buf is an offset
// into the stack buffer; reading it does not move RSP.
func sysWrite(c *cpu.Cpu, st *State) (string, error) {
	r := &c.Registers
	fd, buf, count := r.RDI(), r.RSI(), r.RDX()
	if count > uint64(len(c.Stack)) {
		return "", cpu.ErrStackOverflowRead
	}
	data, err := c.ReadStack(buf, count)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}

	switch fd {
	case FDStdout:
		st.Stdout.Write(data)
	case FDStderr:
		st.Stderr.Write(data)
	default:
		return "", &UnimplementedFileDescriptorError{FD: fd}
	}
	return fmt.Sprintf("fd=%d %q", fd, data), nil
}

// sysExit implements exit(status=rdi).
func sysExit(c *cpu.Cpu, st *State) (string, error) {
	status := c.Registers.RDI()
	st.ExitCode = &status
	return glog.Hex(status), nil
}
