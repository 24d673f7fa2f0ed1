package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}
