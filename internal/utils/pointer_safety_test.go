package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-user-admin/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestValueOr(t *testing.T) {
	require.Equal(t, 3, utils.ValueOr(nil, 3))
	require.Equal(t, 7, utils.ValueOr(utils.Ptr(7), 3))
	require.False(t, utils.ValueOr(utils.Ptr(false), true))
}
