package movement_repo

import (
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockwise/internal/core/id"
	"stockwise/internal/domain/movements"
)

func TestApplyListFilter(t *testing.T) {
	loc := id.New()
	typ := movements.TypeTransfer
	status := movements.StatusCompleted
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).Select("id").From("stock_movements")

	sql, args, err := applyListFilter(base, movements.ListFilter{
		LocationID: &loc,
		Type:       &typ,
		Status:     &status,
		From:       &from,
	}).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id FROM stock_movements WHERE (location_id = $1 OR target_location_id = $2) AND type = $3 AND status = $4 AND created_at >= $5",
		sql)
	// squirrel stores driver.Valuer arguments by value, so ids arrive as strings.
	assert.Equal(t, []any{loc.String(), loc.String(), "TRANSFER", "COMPLETED", from}, args)
}

func TestMovementColumnsCoverSnapshot(t *testing.T) {
	for _, col := range []string{"id", "number", "base_quantity", "cogs", "reversal_of_id", "target_result_avg_cost", "version"} {
		assert.Contains(t, movementColumns, col)
	}
}
