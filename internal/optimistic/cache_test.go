package optimistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID     string
	Label  string
	Active bool
}

func (i item) GetID() string { return i.ID }

func seeded() *Cache[item] {
	c := New[item]()
	c.Set("roles", []item{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}})
	return c
}

func TestAddItemRollbackRestoresOriginalOrder(t *testing.T) {
	c := seeded()

	snap := c.AddItem("roles", item{ID: "c"})
	got, _ := c.Get("roles")
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].ID)

	c.Rollback(snap)
	got, ok := c.Get("roles")
	require.True(t, ok)
	assert.Equal(t, []item{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}}, got)
}

func TestUpdateRemoveToggleRollback(t *testing.T) {
	c := seeded()
	original, _ := c.Get("roles")

	snap := c.UpdateItem("roles", "b", func(i item) item { i.Label = "B2"; return i })
	got, _ := c.Get("roles")
	assert.Equal(t, "B2", got[1].Label)
	c.Rollback(snap)

	snap = c.RemoveItem("roles", "a")
	got, _ = c.Get("roles")
	assert.Equal(t, []item{{ID: "b", Label: "B"}}, got)
	c.Rollback(snap)

	snap = c.Toggle("roles", "a", func(i *item) *bool { return &i.Active })
	got, _ = c.Get("roles")
	assert.True(t, got[0].Active)
	c.Rollback(snap)

	got, _ = c.Get("roles")
	assert.Equal(t, original, got)
}

func TestRollbackOfMissingKeyRemovesIt(t *testing.T) {
	c := New[item]()
	snap := c.AddItem("sites", item{ID: "x"})
	_, ok := c.Get("sites")
	require.True(t, ok)

	c.Rollback(snap)
	_, ok = c.Get("sites")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	c := seeded()
	got, _ := c.Get("roles")
	got[0].Label = "mutated"

	again, _ := c.Get("roles")
	assert.Equal(t, "A", again[0].Label)
}

func TestDeleteLeavesOtherKeys(t *testing.T) {
	c := seeded()
	c.Set("other", []item{{ID: "z"}})

	c.Delete("roles")
	_, ok := c.Get("roles")
	assert.False(t, ok)

	_, ok = c.Get("other")
	assert.True(t, ok)
}
