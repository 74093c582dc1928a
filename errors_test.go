package raydb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raydb/raydb/internal/txn"
)

func TestNewError_ClassifiesKnownSentinels(t *testing.T) {
	err := newError("Commit", txn.ErrTransactionActive)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindTransactionState, rerr.Kind)
	require.Equal(t, "Commit", rerr.Op)
	require.ErrorIs(t, err, txn.ErrTransactionActive)
}

func TestNewError_NilIsNil(t *testing.T) {
	require.NoError(t, newError("Op", nil))
}

func TestNewError_UnrecognizedCauseIsInternal(t *testing.T) {
	err := newError("Op", errors.New("boom"))
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindInternal, rerr.Kind)
}

func TestNewError_DoesNotDoubleWrapAlreadyClassified(t *testing.T) {
	inner := newError("Inner", txn.ErrReadOnly)
	outer := newError("Outer", inner)

	var rerr *Error
	require.True(t, errors.As(outer, &rerr))
	require.Equal(t, KindReadOnlyViolation, rerr.Kind)
	require.Equal(t, "Outer", rerr.Op)
}

func TestErrorString_IncludesOpAndKind(t *testing.T) {
	err := &Error{Kind: KindIntegrityFailure, Op: "Check", Err: ErrIntegrityFailure}
	require.Contains(t, err.Error(), "Check")
	require.Contains(t, err.Error(), "IntegrityFailure")
}
