package errors_test

import (
	"fmt"
	"testing"

	errs "github.com/jrsteele09/go-admin-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, errs.Wrapf(nil, "context %d", 1))
	})

	t.Run("keeps chain", func(t *testing.T) {
		err := errs.Wrapf(errs.ErrNotFound, "[Repo Get] id %s", "abc")
		require.EqualError(t, err, "[Repo Get] id abc: not found")
		require.True(t, errs.Is(err, errs.ErrNotFound))
	})
}

type codeErr struct{ code int }

func (c *codeErr) Error() string { return fmt.Sprintf("code %d", c.code) }

func TestAs(t *testing.T) {
	err := errs.Wrapf(&codeErr{code: 7}, "outer")
	var target *codeErr
	require.True(t, errs.As(err, &target))
	require.Equal(t, 7, target.code)
}
