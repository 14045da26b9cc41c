package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoaderLoadsEmbeddedTemplates(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	for _, name := range []string{
		"description_system",
		"description_user",
		"recontextualize",
		"refine",
		"retry_guidance",
	} {
		template, err := loader.Get(name)
		require.NoError(t, err, "template %s", name)
		require.NotEmpty(t, template.Content)
	}

	_, err = loader.Get("nonexistent")
	require.Error(t, err)
}

func TestRenderSubstitutesVariables(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	rendered, err := loader.Render("refine", map[string]string{
		"failing_verdicts":     "- the strap buckle is missing",
		"original_description": "A brown leather crossbody bag.",
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "- the strap buckle is missing")
	require.Contains(t, rendered, "A brown leather crossbody bag.")
	require.NotContains(t, rendered, "{{")
}

func TestRenderFailsOnUnresolvedVariable(t *testing.T) {
	loader, err := NewLoader()
	require.NoError(t, err)

	_, err = loader.Render("refine", map[string]string{
		"failing_verdicts": "- color drift",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "original_description")
}
