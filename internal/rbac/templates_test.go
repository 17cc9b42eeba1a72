package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesAreSiteScopedAllows(t *testing.T) {
	ids := make(map[string]struct{})
	for _, tpl := range Templates() {
		_, dup := ids[tpl.ID]
		require.False(t, dup, tpl.ID)
		ids[tpl.ID] = struct{}{}
		require.NotEmpty(t, tpl.Permissions, tpl.ID)
		for _, p := range tpl.Permissions {
			assert.Equal(t, DecisionAllow, p.Decision)
			assert.Equal(t, ScopeSite, p.Scope)
		}
	}
}

func TestTemplatesReturnsCopies(t *testing.T) {
	first := Templates()
	first[0].Permissions[0].Decision = DecisionDeny
	assert.Equal(t, DecisionAllow, Templates()[0].Permissions[0].Decision)
}

func TestApplyTemplateFiltersDisabledModules(t *testing.T) {
	perms := ApplyTemplate("viewer", []string{"INCIDENTS", "epi"})
	require.Len(t, perms, 2)
	assert.Equal(t, "incidents", perms[0].Module)
	assert.Equal(t, "epi", perms[1].Module)

	all := ApplyTemplate("viewer", nil)
	assert.Len(t, all, 7)

	assert.Nil(t, ApplyTemplate("unknown", nil))
}

func TestMergeTemplates(t *testing.T) {
	merged := MergeTemplates("viewer", "environmental_officer", "unknown")

	seen := make(map[string]int)
	for _, p := range merged {
		seen[p.Module+":"+p.Action]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
	assert.Equal(t, 1, seen["environnement:delete"])
	assert.Equal(t, 1, seen["controles:view"])
}
