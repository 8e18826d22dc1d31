package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHex(t *testing.T) {
	assert.Equal(t, "0x0", Hex(0))
	assert.Equal(t, "0x400078", Hex(0x400078))
	assert.Equal(t, "0xffffffffffffffff", Hex(^uint64(0)))
}

func TestTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.Trace(0x401000, "io", "write", `fd=1 "A"`)
	l.WithCategory("challenge").Info("session", Run("r1"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "event", entries[0].Message)
	assert.Equal(t, map[string]interface{}{
		"cat":    "io",
		"fn":     "write",
		"detail": `fd=1 "A"`,
		"pc":     "0x401000",
	}, entries[0].ContextMap())
	assert.Equal(t, map[string]interface{}{"cat": "challenge", "run": "r1"}, entries[1].ContextMap())
}

func TestInitOnce(t *testing.T) {
	Init(false)
	first := L
	Init(true)
	assert.Same(t, first, L)
}
