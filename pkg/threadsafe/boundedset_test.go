package threadsafe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedSetAddContains(t *testing.T) {
	s := NewBoundedSet[string](10)

	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
}

func TestBoundedSetClearsAtLimit(t *testing.T) {
	s := NewBoundedSet[string](3)

	for i := 0; i < 3; i++ {
		s.Add(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, 3, s.Len())

	// The insert past the limit flushes everything first.
	s.Add("overflow")
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("overflow"))
	assert.False(t, s.Contains("key-0"))
}

func TestBoundedSetReadmitsAfterClear(t *testing.T) {
	s := NewBoundedSet[string](2)

	s.Add("a")
	s.Add("b")
	s.Add("c")

	assert.True(t, s.Add("a"))
}
