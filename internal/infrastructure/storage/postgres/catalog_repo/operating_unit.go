package catalog_repo

import (
	"stockwise/internal/domain/catalogs/operatingunit"
	"stockwise/internal/infrastructure/storage/postgres"
)

const operatingUnitTable = "operating_units"

// OperatingUnitRepo implements operatingunit.Repository.
type OperatingUnitRepo struct {
	*BaseCatalogRepo[*operatingunit.OperatingUnit]
}

var _ operatingunit.Repository = (*OperatingUnitRepo)(nil)

// NewOperatingUnitRepo creates an operating unit repository.
func NewOperatingUnitRepo(txManager *postgres.TxManager) *OperatingUnitRepo {
	return &OperatingUnitRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager, operatingUnitTable, "operating_unit",
			postgres.ExtractDBColumns[operatingunit.OperatingUnit](),
			func() *operatingunit.OperatingUnit { return new(operatingunit.OperatingUnit) },
		),
	}
}
