package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

func TestDomainErrors_AreClassifiedBySentinel(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name      string
		err       error
		sentinel  error
		kind      string
		skippable bool
	}{
		{"format skippable", exception.NewFormatError("element is not an object", nil, true), exception.ErrFormat, exception.FormatErrorName, true},
		{"format fatal", exception.NewFormatError("unreadable input", cause, false), exception.ErrFormat, exception.FormatErrorName, false},
		{"validation", exception.NewValidationError("bedrooms", "three", cause), exception.ErrValidation, exception.ValidationErrorName, true},
		{"not open", exception.NewNotOpenError(), exception.ErrNotOpen, exception.NotOpenErrorName, false},
		{"resolution", exception.NewResolutionError("address lookup failed", cause), exception.ErrResolution, exception.ResolutionErrorName, true},
		{"duplicate", exception.NewDuplicateKeyError("schools", nil), exception.ErrDuplicateKey, exception.DuplicateKeyErrorName, true},
		{"skip limit", exception.NewSkipLimitExceededError(5, cause), exception.ErrSkipLimitExceeded, exception.SkipLimitExceededErrorName, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.sentinel)
			assert.Equal(t, tc.kind, exception.Kind(tc.err))
			assert.Equal(t, tc.skippable, exception.IsSkippable(tc.err))
			assert.True(t, exception.IsErrorOfType(tc.err, tc.kind))
		})
	}
}

func TestCauseIsPreserved(t *testing.T) {
	cause := errors.New("connection reset")
	err := exception.NewResolutionError("lookup failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "[resolver]")
	assert.Equal(t, "lookup failed: ResolutionError\nconnection reset", exception.ExtractErrorMessage(err))
}

func TestIsSkippable_WrappedBatchError(t *testing.T) {
	inner := exception.NewNotOpenError()
	wrapped := fmt.Errorf("read failed: %w", inner)

	assert.True(t, exception.IsBatchError(wrapped))
	assert.False(t, exception.IsSkippable(wrapped))
	assert.True(t, exception.IsFatal(wrapped))
	assert.True(t, exception.IsSkippable(errors.New("plain error")))
	assert.False(t, exception.IsSkippable(nil))
}

func TestNewBatchErrorf_ExtractsTrailingArguments(t *testing.T) {
	cause := errors.New("driver error")
	err := exception.NewBatchErrorf("writer", "insert into %s failed", "schools", true, false, cause)

	assert.Equal(t, "insert into schools failed", err.Message)
	assert.True(t, err.IsSkippable())
	assert.False(t, err.IsRetryable())
	assert.Same(t, cause, err.OriginalErr)
}

func TestKind_UnknownError(t *testing.T) {
	assert.Equal(t, "", exception.Kind(errors.New("other")))
}
