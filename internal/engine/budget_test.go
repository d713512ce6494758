package engine

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBudget(t *testing.T) {
	assert.Positive(t, DetectBudget())
}

func TestDetectBudgetHonorsMemoryLimit(t *testing.T) {
	prev := debug.SetMemoryLimit(64 << 20)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })

	assert.LessOrEqual(t, DetectBudget(), int64(64<<20))
}

func TestDetectBudgetIsStable(t *testing.T) {
	first := DetectBudget()

	// Allocate and release memory between samples; the budget must not move.
	for range 5 {
		buf := make([]byte, 8<<20)
		buf[len(buf)-1] = 1
		assert.Equal(t, first, DetectBudget())
	}
}
