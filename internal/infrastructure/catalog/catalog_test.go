package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admit-hub/admission-calc-bot/internal/domain/scoring"
	"github.com/admit-hub/admission-calc-bot/internal/domain/university"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)
	assert.Greater(t, registry.Len(), 10)
}

func TestEmbeddedCatalogCoversEveryMethod(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	seen := make(map[scoring.Method]bool)
	page := 1
	for {
		entries, hasMore := registry.Page(page, 50)
		for _, e := range entries {
			seen[e.Method] = true
		}
		if !hasMore {
			break
		}
		page++
	}

	for _, m := range []scoring.Method{
		scoring.MethodScoreOnly,
		scoring.MethodScorePlusAdmissionTest,
		scoring.MethodScoreAdmissionCredentials,
		scoring.MethodCredentialsOnly,
		scoring.MethodInstitutionScreening,
	} {
		assert.Truef(t, seen[m], "catalog has no institution using %s", m)
	}
}

func TestEmbeddedCatalogResolvesKnownInstitutions(t *testing.T) {
	registry, err := Load()
	require.NoError(t, err)

	assert.Equal(t, scoring.MethodScoreAdmissionCredentials, registry.Resolve("unilag"))
	assert.Equal(t, scoring.MethodInstitutionScreening, registry.Resolve("futa"))
	assert.Equal(t, scoring.MethodCredentialsOnly, registry.Resolve("abu"))

	// Unknown institutions fall back to the standard formula.
	assert.Equal(t, scoring.DefaultMethod, registry.Resolve("not-in-catalog"))
}

func TestLoadRejectsMalformedCatalog(t *testing.T) {
	cases := map[string]string{
		"bad toml":       `[[university]` + "\n",
		"empty file":     ``,
		"unknown method": "[[university]]\nid = \"x\"\nname = \"X\"\nmethod = \"guesswork\"\n",
		"missing name":   "[[university]]\nid = \"x\"\nmethod = \"score_only\"\n",
		"duplicate id": "[[university]]\nid = \"x\"\nname = \"X\"\nmethod = \"score_only\"\n" +
			"[[university]]\nid = \"x\"\nname = \"Y\"\nmethod = \"score_only\"\n",
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadNormalizesIDs(t *testing.T) {
	data := "[[university]]\nid = \"  MiXeD \"\nname = \"Mixed\"\nmethod = \"score_only\"\n"
	registry, err := load([]byte(data))
	require.NoError(t, err)

	_, ok := registry.Get(university.ParseID("mixed"))
	assert.True(t, ok)
}
