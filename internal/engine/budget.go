package engine

import (
	"math"
	"runtime/debug"
)

// budgetFraction is the share of the process memory limit a run may give to
// the pair.
const (
	budgetNumerator   = 3
	budgetDenominator = 4
)

// defaultBudget is used when the host cannot report its memory size.
const defaultBudget int64 = 2 << 30

// DetectBudget returns the number of bytes a run may spend on its pair:
// three quarters of the memory the process may ever use (installed RAM, or
// the cgroup limit when lower), capped by the runtime soft memory limit
// (GOMEMLIMIT) when one is set.
//
// Every input is fixed host configuration, never current usage, so repeated
// runs on one host choose the same strategy for the same tables. Only an
// explicit budget or strategy changes which strategy runs, and with it the
// order in which terms are summed.
func DetectBudget() int64 {
	total, ok := memoryLimit()
	budget := defaultBudget
	if ok && total > 0 {
		budget = mulSat(total/budgetDenominator, budgetNumerator)
	}

	// SetMemoryLimit with a negative value only reads the current limit.
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 && limit < budget {
		budget = limit
	}
	return budget
}
