package item

import (
	"stockwise/internal/core/id"
	"stockwise/internal/domain/filter"
)

func itemFilter(itemID id.ID) filter.Item {
	return filter.Item{Field: "item_id", Operator: filter.Equal, Value: itemID}
}
