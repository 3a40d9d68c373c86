package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySuccess(t *testing.T) {
	d := Classify(nil, RoleInput, OpRead)
	assert.Equal(t, ActionNone, d.Action)
	assert.NoError(t, d.Err)
}

func TestClassifyNotConnected(t *testing.T) {
	err := fmt.Errorf("read: %w", ErrNotConnected)
	for _, role := range []Role{RoleInput, RoleProcessor, RoleOutput} {
		d := Classify(err, role, OpRead)
		assert.Equal(t, ActionReconnect, d.Action, "role %s", role)
	}
}

func TestClassifyEndOfInput(t *testing.T) {
	d := Classify(ErrEndOfInput, RoleInput, OpRead)
	assert.Equal(t, ActionComplete, d.Action)
	assert.NoError(t, d.Err)

	// EndOfInput anywhere else is a contract violation, demoted to fatal
	d = Classify(ErrEndOfInput, RoleOutput, OpWrite)
	assert.Equal(t, ActionFatal, d.Action)
	assert.ErrorIs(t, d.Err, ErrEndOfInput)

	d = Classify(ErrEndOfInput, RoleInput, OpConnect)
	assert.Equal(t, ActionFatal, d.Action)
}

func TestClassifyBackOff(t *testing.T) {
	err := BackOff(errors.New("broker busy"), 250*time.Millisecond)

	d := Classify(err, RoleInput, OpRead)
	require.Equal(t, ActionRetryAfter, d.Action)
	assert.Equal(t, 250*time.Millisecond, d.Delay)

	d = Classify(err, RoleOutput, OpConnect)
	assert.Equal(t, ActionRetryAfter, d.Action)

	d = Classify(err, RoleOutput, OpWrite)
	assert.Equal(t, ActionRetryAfter, d.Action)
}

func TestClassifyBackOffIllegalOnProcessor(t *testing.T) {
	err := BackOff(errors.New("busy"), time.Second)
	d := Classify(err, RoleProcessor, OpProcess)
	assert.Equal(t, ActionFatal, d.Action)
	assert.Contains(t, d.Err.Error(), "backoff signaled on processor process")
}

func TestClassifyPriorityOrder(t *testing.T) {
	// A backoff wrapping a lost connection classifies as reconnect:
	// NotConnected outranks BackOff.
	err := BackOff(fmt.Errorf("call: %w", ErrNotConnected), time.Second)
	d := Classify(err, RoleInput, OpRead)
	assert.Equal(t, ActionReconnect, d.Action)

	// NotConnected also outranks EndOfInput.
	err = fmt.Errorf("%w after %w", ErrNotConnected, ErrEndOfInput)
	d = Classify(err, RoleInput, OpRead)
	assert.Equal(t, ActionReconnect, d.Action)
}

func TestClassifyGenericFatal(t *testing.T) {
	d := Classify(errors.New("schema mismatch"), RoleProcessor, OpProcess)
	assert.Equal(t, ActionFatal, d.Action)
	assert.EqualError(t, d.Err, "schema mismatch")
}

func TestClassifyTimeoutPolicy(t *testing.T) {
	timeout := fmt.Errorf("rpc: %w", context.DeadlineExceeded)

	// Default policy: a deadline expiry is fatal to the call
	d := Classify(timeout, RoleOutput, OpWrite)
	assert.Equal(t, ActionFatal, d.Action)

	// Opt-in policy: treat it as a lost connection
	p := Policy{TreatTimeoutAsDisconnect: true}
	d = p.Classify(timeout, RoleOutput, OpWrite)
	assert.Equal(t, ActionReconnect, d.Action)
}

func TestBackOffNilWrapped(t *testing.T) {
	err := BackOff(nil, time.Second)
	require.Error(t, err)
	delay, ok := AsBackOff(err)
	assert.True(t, ok)
	assert.Equal(t, time.Second, delay)
}

func TestAsBackOffMiss(t *testing.T) {
	_, ok := AsBackOff(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("dial refused")

	err := WrapTransient(base, "connection", "Connect", "dial plugin")
	assert.True(t, IsTransient(err))
	assert.False(t, IsFatal(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "connection.Connect: dial plugin failed: dial refused", err.Error())

	assert.True(t, IsInvalid(WrapInvalid(base, "config", "Validate", "check queue capacity")))
	assert.True(t, IsFatal(WrapFatal(base, "host", "Run", "start pumps")))

	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
}
