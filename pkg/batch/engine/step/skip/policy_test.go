package skip_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/pkg/batch/engine/step/skip"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

func TestSkipPolicy_ShouldSkip(t *testing.T) {
	policy, err := skip.NewDefaultSkipPolicyFactory().Create(10, nil)
	require.NoError(t, err)

	assert.True(t, policy.ShouldSkip(exception.NewValidationError("crawl_date", "x", errors.New("bad date"))))
	assert.True(t, policy.ShouldSkip(exception.NewFormatError("not an object", nil, true)))
	assert.True(t, policy.ShouldSkip(errors.New("plain error")))
	assert.False(t, policy.ShouldSkip(exception.NewFormatError("unrecoverable reader error", nil, false)))
	assert.False(t, policy.ShouldSkip(exception.NewNotOpenError()))
	assert.False(t, policy.ShouldSkip(nil))
}

func TestSkipPolicy_ConfiguredKindsNarrowTheDecision(t *testing.T) {
	policy, err := skip.NewDefaultSkipPolicyFactory().Create(10, []string{exception.ValidationErrorName})
	require.NoError(t, err)

	assert.True(t, policy.ShouldSkip(exception.NewValidationError("url", "", errors.New("missing"))))
	assert.False(t, policy.ShouldSkip(exception.NewResolutionError("lookup failed", context.DeadlineExceeded)))
}

func TestSkipPolicy_LimitIsInclusive(t *testing.T) {
	policy, err := skip.NewDefaultSkipPolicyFactory().Create(2, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.True(t, policy.CanSkip())
		policy.IncrementSkipCount()
	}
	assert.Equal(t, 2, policy.GetSkipCount())
	assert.False(t, policy.CanSkip())
	assert.Equal(t, 2, policy.GetSkipLimit())
}

func TestSkipPolicy_ZeroLimitAllowsNoSkips(t *testing.T) {
	policy, err := skip.NewDefaultSkipPolicyFactory().Create(0, nil)
	require.NoError(t, err)
	assert.False(t, policy.CanSkip())

	_, err = skip.NewDefaultSkipPolicyFactory().Create(-1, nil)
	assert.Error(t, err)
}
