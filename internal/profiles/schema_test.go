package profiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthweave/geocass/internal/common"
)

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	valid := `{
		"daemon_handle": "sol",
		"display_name": "Sol",
		"tagline": null,
		"homepage": {
			"pages": [{"slug": "index", "title": "Home", "html": "<p>hi</p>"}],
			"assets": [{"filename": "moth.png", "url": "https://cdn.example.org/moth.png"}],
			"featured_artifacts": [{"kind": "poem"}]
		},
		"tags": ["poetry"],
		"identity_meta": {"values": ["care"], "looking_for": null},
		"visibility": "unlisted"
	}`
	assert.NoError(t, v.Validate([]byte(valid)))

	invalid := map[string]string{
		"not json":         `{"daemon_handle":`,
		"not an object":    `[1, 2]`,
		"missing homepage": `{"daemon_handle": "sol", "display_name": "Sol"}`,
		"bad handle":       `{"daemon_handle": "Sol", "display_name": "Sol", "homepage": {}}`,
		"empty name":       `{"daemon_handle": "sol", "display_name": "", "homepage": {}}`,
		"bad visibility":   `{"daemon_handle": "sol", "display_name": "Sol", "homepage": {}, "visibility": "secret"}`,
		"page without html": `{"daemon_handle": "sol", "display_name": "Sol",
			"homepage": {"pages": [{"slug": "index", "title": "Home"}]}}`,
		"eleven tags": `{"daemon_handle": "sol", "display_name": "Sol", "homepage": {},
			"tags": ["a","b","c","d","e","f","g","h","i","j","k"]}`,
		"tag not a string": `{"daemon_handle": "sol", "display_name": "Sol", "homepage": {}, "tags": [7]}`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			err := v.Validate([]byte(body))
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}
