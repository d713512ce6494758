package engine

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/querycalc/internal/table"
)

func TestQueryErrorClassification(t *testing.T) {
	formatErr := loadError("t1.txt", &table.FormatError{Path: "t1.txt", Line: 3, Text: "1", Reason: "expected two numbers"})
	ioErr := loadError("t2.txt", fmt.Errorf("open table: %w", os.ErrNotExist))

	assert.True(t, IsFormatFailure(formatErr))
	assert.False(t, IsIOFailure(formatErr))
	assert.True(t, IsIOFailure(ioErr))
	assert.True(t, errors.Is(ioErr, os.ErrNotExist), "cause stays reachable")

	wrapped := fmt.Errorf("select: %w", formatErr)
	assert.Equal(t, ErrCodeFormatFailure, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestQueryErrorMessage(t *testing.T) {
	err := &QueryError{Code: ErrCodeIOFailure, Op: "write", Path: "out.txt", Err: errors.New("disk full")}
	assert.Equal(t, "IO_FAILURE: write out.txt: disk full", err.Error())

	err = &QueryError{Code: ErrCodeResourceExhaustion, Op: "plan", Err: errors.New("too big")}
	assert.Equal(t, "RESOURCE_EXHAUSTION: plan: too big", err.Error())
}

func TestBudgetExceededErrorMessage(t *testing.T) {
	err := &BudgetExceededError{
		Budget: 1024,
		Estimates: []Estimate{
			{Pair: "T2×T3", Bytes: 1 << 20},
			{Pair: "T1×T2", Bytes: 4096},
		},
	}
	assert.Equal(t, "no pairwise cross join fits the memory budget: smallest pair T1×T2 needs 4.0 KiB > budget 1.0 KiB", err.Error())

	assert.Contains(t, (&BudgetExceededError{Budget: 1024}).Error(), "1.0 KiB")
}
