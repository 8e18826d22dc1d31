package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTags(t *testing.T) {
	var tags Tags
	tags.Add(IO)
	tags.Add(Syscall)
	tags.Add(IO)

	assert.Equal(t, Tags{IO, Syscall}, tags)
	assert.True(t, tags.Has(Syscall))
	assert.False(t, tags.Has(Jump))
	assert.Equal(t, []string{"#io", "#syscall"}, tags.Strings())
	assert.Equal(t, IO, tags.Primary())
	assert.Equal(t, Tag(""), Tags(nil).Primary())
}

func TestDefaultEnricher(t *testing.T) {
	write := NewEvent(0x401000, "io", "write", `fd=1 "A"`)
	write.Annotate("fd", "1")
	DefaultEnricher(write)
	assert.Equal(t, Tags{IO, Syscall, Stdout}, write.Tags)
	assert.Equal(t, "#io", write.PrimaryTag())

	exit := NewEvent(0x401010, "proc", "exit", "0x0")
	DefaultEnricher(exit)
	assert.Equal(t, Tags{Proc, Syscall, Exit}, exit.Tags)

	jmp := NewEvent(0x401020, "jump", "jmp", "-> 0x401000")
	jmp.Annotate("dir", "back")
	DefaultEnricher(jmp)
	assert.Equal(t, Tags{Jump, Back}, jmp.Tags)

	empty := &Event{}
	DefaultEnricher(empty)
	assert.Empty(t, empty.Tags)
	assert.Equal(t, "", empty.PrimaryTag())
}
