package operatingunit

import (
	"context"
	"fmt"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/tx"
	"stockwise/internal/domain"
)

// Repository defines persistence for operating units.
type Repository interface {
	domain.CatalogRepository[*OperatingUnit]
}

// Service provides business logic for operating units.
type Service struct {
	*domain.CatalogService[*OperatingUnit]
	repo Repository
}

// NewService creates a new operating unit service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*OperatingUnit]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "operating_unit",
	})
	svc := &Service{CatalogService: base, repo: repo}
	base.Hooks().OnBeforeCreate(func(ctx context.Context, o *OperatingUnit) error {
		exists, err := repo.ExistsByCode(ctx, o.Code)
		if err != nil {
			return fmt.Errorf("check operating unit code: %w", err)
		}
		if exists {
			return apperror.NewDuplicate("operating_unit", "code", o.Code)
		}
		return nil
	})
	return svc
}
