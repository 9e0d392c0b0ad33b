package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stockwise/internal/core/entity"
)

type testCatalog struct {
	entity.Catalog
	Priority int    `db:"priority"`
	Internal string `db:"-"`
	Note     string
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[testCatalog]()

	assert.ElementsMatch(t, []string{
		"priority",
		"code", "name", "is_active",
		"id", "version", "created_at", "updated_at",
	}, cols)
	assert.Equal(t, "priority", cols[0])
}

func TestExtractDBColumns_PointerType(t *testing.T) {
	assert.ElementsMatch(t, ExtractDBColumns[testCatalog](), ExtractDBColumns[*testCatalog]())
}

func TestStructToMap(t *testing.T) {
	c := testCatalog{
		Catalog:  entity.NewCatalog("MAIN", "Main"),
		Priority: 3,
		Internal: "skip",
		Note:     "skip",
	}
	c.Version = 5

	for _, v := range []any{c, &c} {
		m := StructToMap(v)
		assert.Equal(t, c.ID, m["id"])
		assert.Equal(t, 5, m["version"])
		assert.Equal(t, "MAIN", m["code"])
		assert.Equal(t, true, m["is_active"])
		assert.Equal(t, 3, m["priority"])
		assert.NotContains(t, m, "Internal")
		assert.NotContains(t, m, "Note")
		assert.Len(t, m, 8)
	}
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
	assert.Nil(t, StructToMap((*testCatalog)(nil)))
}
