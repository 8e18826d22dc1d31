package mem

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStackPointerNormalizes(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint64(0), NewStackPointer(1024, 1024).Value())
	assert.Equal(uint64(5), NewStackPointer(1029, 1024).Value())
	assert.Equal(uint64(1023), NewStackPointer(math.MaxUint64, 1024).Value())
	assert.Equal(uint64(1024), NewStackPointer(0, 1024).Cap())
}

func TestStackPointerAdd(t *testing.T) {
	assert := assert.New(t)

	sp := NewStackPointer(1000, 1024)
	assert.True(sp.Add(23).Equal(1023))
	assert.True(sp.Add(24).Equal(0))
	assert.True(sp.Add(30).Equal(6))
	assert.True(sp.Add(math.MaxUint64).Equal((1000 + math.MaxUint64%1024) % 1024))
}

func TestStackPointerSubWraps(t *testing.T) {
	assert := assert.New(t)

	sp := NewStackPointer(4, 1024)
	assert.True(sp.Sub(4).Equal(0))
	assert.True(sp.Sub(3).Equal(1))
	// capacity - (amount - offset)
	assert.True(sp.Sub(7).Equal(1024 - (7 - 4)))
	assert.True(NewStackPointer(0, 1024).Sub(1).Equal(1023))
	assert.True(NewStackPointer(0, 1024).Sub(1024).Equal(0))
	assert.True(NewStackPointer(0, 1024).Sub(1025).Equal(1023))
}

func TestStackPointerCompare(t *testing.T) {
	assert := assert.New(t)

	sp := NewStackPointer(10, 16)
	assert.Equal(-1, sp.Compare(11))
	assert.Equal(0, sp.Compare(10))
	assert.Equal(1, sp.Compare(9))
	assert.False(sp.Equal(26))
}

func TestStackPointerSetWrapping(t *testing.T) {
	sp := NewStackPointer(0, 8)
	sp.SetWrapping(13)
	if sp.Value() != 5 {
		t.Fatalf("expected 5, got %d", sp.Value())
	}
}

func TestStackPointerInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, capacity := range []uint64{1, 7, 8, 1024, 4096} {
		sp := NewStackPointer(rng.Uint64(), capacity)
		for i := 0; i < 2000; i++ {
			n := rng.Uint64()
			if rng.Intn(4) == 0 {
				n %= 3 * capacity
			}
			if rng.Intn(2) == 0 {
				sp = sp.Add(n)
			} else {
				sp = sp.Sub(n)
			}
			if sp.Value() >= capacity {
				t.Fatalf("offset %d escaped capacity %d", sp.Value(), capacity)
			}
		}
	}
}

func TestZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { NewStackPointer(0, 0) })
}
