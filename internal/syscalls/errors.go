package syscalls

import (
	"errors"
	"fmt"
)

// ErrInvalidUTF8 is returned when write is given bytes that are not UTF-8.
var ErrInvalidUTF8 = errors.New("write buffer is not valid UTF-8")

type UnimplementedSyscallError struct {
	Number uint64
}

func (e *UnimplementedSyscallError) Error() string {
	return fmt.Sprintf("syscall %d (0x%x) is not implemented", e.Number, e.Number)
}

type UnimplementedFileDescriptorError struct {
	FD uint64
}

func (e *UnimplementedFileDescriptorError) Error() string {
	return fmt.Sprintf("file descriptor %d (0x%x) is not implemented", e.FD, e.FD)
}
