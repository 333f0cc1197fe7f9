package skip

import (
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

// SkipPolicy decides whether a failed item may be skipped and keeps the skip count of a run.
type SkipPolicy interface {
	// ShouldSkip reports whether err is of a skippable kind. It does not consult the limit.
	ShouldSkip(err error) bool
	// CanSkip reports whether one more skip stays within the skip limit.
	CanSkip() bool
	// IncrementSkipCount records one skipped item.
	IncrementSkipCount()
	// GetSkipCount returns the number of items skipped so far.
	GetSkipCount() int
	// GetSkipLimit returns the maximum number of skips allowed.
	GetSkipLimit() int
}

// DefaultSkipPolicyFactory creates SkipPolicy instances from job configuration.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a new DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create creates a SkipPolicy.
//
// Parameters:
//
//	skipLimit: The maximum number of skips allowed. 0 means no item may be skipped.
//	skippableExceptions: Registered error kind names. When empty, every error that is not
//	                     flagged fatal is skippable; otherwise only the named kinds are.
//
// Returns:
//
//	A new SkipPolicy, or an error when skipLimit is negative.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableExceptions []string) (SkipPolicy, error) {
	if skipLimit < 0 {
		return nil, exception.NewBatchErrorf("skip", "skip limit must not be negative: %d", skipLimit)
	}
	return &defaultSkipPolicy{
		skipLimit:           skipLimit,
		skippableExceptions: skippableExceptions,
	}, nil
}

type defaultSkipPolicy struct {
	skipLimit           int
	skippableExceptions []string
	currentSkipCount    int
}

// ShouldSkip checks the skippable flag of a BatchError first and then narrows the
// decision to the configured kinds.
func (p *defaultSkipPolicy) ShouldSkip(err error) bool {
	if !exception.IsSkippable(err) {
		return false
	}
	if len(p.skippableExceptions) == 0 {
		return true
	}
	for _, typeName := range p.skippableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

func (p *defaultSkipPolicy) CanSkip() bool {
	return p.currentSkipCount < p.skipLimit
}

func (p *defaultSkipPolicy) IncrementSkipCount() {
	p.currentSkipCount++
}

func (p *defaultSkipPolicy) GetSkipCount() int {
	return p.currentSkipCount
}

func (p *defaultSkipPolicy) GetSkipLimit() int {
	return p.skipLimit
}
