package instance

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCloudInit_SubstitutesKnownPlaceholders(t *testing.T) {
	encoded, err := RenderCloudInit("#cloud-config\nhostname: {{hostname}}\n", map[string]string{"hostname": "range-01"})
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "#cloud-config\nhostname: range-01\n", string(decoded))
}

func TestRenderCloudInit_LeavesUnresolvedPlaceholderVerbatim(t *testing.T) {
	encoded, err := RenderCloudInit("name={{name}} missing={{missing}}", map[string]string{"name": "x"})
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "name=x missing={{missing}}", string(decoded))
}

func TestRenderCloudInit_RejectsOversizedResult(t *testing.T) {
	huge := strings.Repeat("a", maxCloudInitBytes)
	_, err := RenderCloudInit(huge, nil)
	assert.ErrorIs(t, err, ErrCloudInitTooLarge)
}
