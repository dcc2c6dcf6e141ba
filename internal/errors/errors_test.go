package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNightlockError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ValidationError("pin must be 4 digits")
		require.Equal(t, "validation (warning): pin must be 4 digits", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := fmt.Errorf("permission denied")
		err := WrapIO(cause, "cannot write state file")
		require.Contains(t, err.Error(), "permission denied")
		require.Contains(t, err.Error(), "cannot write state file")
	})
}

func TestNightlockError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := WrapIO(cause, "save failed")
	require.True(t, errors.Is(err, cause))
}

func TestCategoryHelpers(t *testing.T) {
	require.True(t, IsCategory(AuthError("wrong pin"), CategoryAuth))
	require.False(t, IsCategory(AuthError("wrong pin"), CategoryValidation))
	require.Equal(t, CategoryState, GetCategory(StateError("recovery already active")))
	require.Equal(t, CategoryInternal, GetCategory(fmt.Errorf("plain")))
}

func TestWithContext(t *testing.T) {
	err := ProcessError("launch failed").
		WithContext("tier", "session").
		WithContext("path", "/usr/bin/nightlock-blocker")
	require.Equal(t, "session", err.Context["tier"])
	require.Equal(t, "/usr/bin/nightlock-blocker", err.Context["path"])
}
