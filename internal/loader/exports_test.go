package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportsHelpers(t *testing.T) {
	e := Exports{
		"win_function": 0x30,
		"lose":         0x10,
		"Window":       0x20,
		"alias":        0x10,
	}

	addr, ok := e.Find("win_function")
	assert.True(t, ok)
	assert.Equal(t, uint64(0x30), addr)
	_, ok = e.Find("missing")
	assert.False(t, ok)

	assert.Equal(t, Exports{"win_function": 0x30, "Window": 0x20}, e.BySubstring("WIN"))
	assert.Equal(t, Exports{"lose": 0x10}, e.Matching(func(n string) bool {
		return strings.HasPrefix(n, "lo")
	}))

	assert.Equal(t, []Export{
		{"alias", 0x10},
		{"lose", 0x10},
		{"Window", 0x20},
		{"win_function", 0x30},
	}, e.Sorted())
}
