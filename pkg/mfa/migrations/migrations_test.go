package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsEmptyDSN(t *testing.T) {
	err := Run("", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is not set")
}

func TestRunRejectsInvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			err := Run("postgres://localhost/mfa", direction)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "direction must be up or down")
		})
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(FS, "sql/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(FS, "sql/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
