package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rorsat-ltd/kosmos/internal/jobs"
)

func assertDone(t *testing.T, r jobs.Result) {
	t.Helper()
	assert.True(t, r.IsDone(), "expected Done()")
}

func assertRetry(t *testing.T, r jobs.Result) {
	t.Helper()
	_, ok := r.IsRetry()
	assert.True(t, ok, "expected Retry()")
}

func assertRetryUnbounded(t *testing.T, r jobs.Result) {
	t.Helper()
	_, ok := r.IsRetryUnbounded()
	assert.True(t, ok, "expected RetryUnbounded()")
}

func assertFail(t *testing.T, r jobs.Result) {
	t.Helper()
	_, ok := r.IsFail()
	assert.True(t, ok, "expected Fail()")
}
