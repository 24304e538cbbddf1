package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/aeon-gateway/internal/domain"
)

type scriptedExecutor struct {
	calls   atomic.Int64
	results []error // по одному на вызов; после исчерпания — nil
}

func (s *scriptedExecutor) Dispatch(ctx context.Context, v *domain.Verdict, in *domain.Intent) error {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.results) {
		return s.results[n]
	}
	return nil
}

func approvedVerdict() (*domain.Verdict, *domain.Intent) {
	v := &domain.Verdict{
		IntentID: "it-1",
		AgentDID: "did:aeon:coder:1.0:ab",
		Outcome:  domain.OutcomeApproved,
		Manifest: &domain.CapabilityManifest{MaxMemoryMB: 128, ExpiresAt: time.Now().Add(time.Minute)},
	}
	in := &domain.Intent{ID: "it-1", AgentDID: v.AgentDID, Tool: domain.ToolReadFile}
	return v, in
}

func TestDispatchPassesThrough(t *testing.T) {
	exec := &scriptedExecutor{}
	w := NewReliabilityWrapper(exec)
	v, in := approvedVerdict()

	require.NoError(t, w.Dispatch(context.Background(), v, in))
	assert.EqualValues(t, 1, exec.calls.Load())
	assert.Equal(t, gobreaker.StateClosed, w.BreakerState())
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	exec := &scriptedExecutor{results: []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
	}}
	w := NewReliabilityWrapper(exec)
	v, in := approvedVerdict()

	require.NoError(t, w.Dispatch(context.Background(), v, in))
	assert.EqualValues(t, 3, exec.calls.Load(), "two failures then success within the attempt budget")
}

func TestDispatchHonorsThrottleDelay(t *testing.T) {
	exec := &scriptedExecutor{results: []error{
		&ThrottleError{RetryAfter: 50 * time.Millisecond, Cause: errors.New("executor queue full")},
	}}
	w := NewReliabilityWrapper(exec)
	v, in := approvedVerdict()

	start := time.Now()
	require.NoError(t, w.Dispatch(context.Background(), v, in))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond,
		"the pause named by the executor must be respected")
	assert.EqualValues(t, 2, exec.calls.Load())
}

func TestDispatchGivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("executor down")
	exec := &scriptedExecutor{results: []error{boom, boom, boom, boom, boom}}
	w := NewReliabilityWrapper(exec)
	v, in := approvedVerdict()

	err := w.Dispatch(context.Background(), v, in)
	require.Error(t, err)
	assert.EqualValues(t, 3, exec.calls.Load())
}

func TestThrottleErrorUnwrap(t *testing.T) {
	cause := errors.New("queue full")
	err := &ThrottleError{RetryAfter: time.Second, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "retry after")
}

func TestMockExecutorRefusesWithoutManifest(t *testing.T) {
	m := &MockExecutor{}
	v, in := approvedVerdict()
	v.Manifest = nil
	assert.Error(t, m.Dispatch(context.Background(), v, in))
}
