package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visualgen/internal/sqlinline"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker(sqlinline.QSelectIntegrationCredential)
	require.NoError(t, err)
	assert.Equal(t, "3c1f9b7e-52a4-4d0e-9e61-0b8f7a2c4d15", marker)
	assert.Contains(t, body, "from integration_tokens")
	assert.NotContains(t, body, "--sql")
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	for _, q := range []string{"", "select 1", "--sql not-a-uuid\nselect 1"} {
		_, _, err := extractMarker(q)
		assert.Error(t, err, q)
	}
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(fmt.Errorf("load: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("boom")))
	assert.False(t, IsNoRows(nil))
}
