package item

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/core/tx"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/uom"
)

// Repository defines persistence for items.
type Repository interface {
	domain.CatalogRepository[*Item]
}

// VariantRepository defines persistence for variants.
// Update never writes the cost columns; only UpdateCosts does.
type VariantRepository interface {
	domain.CatalogRepository[*Variant]

	// GetForUpdate loads the variant holding a row lock until the
	// transaction ends.
	GetForUpdate(ctx context.Context, variantID id.ID) (*Variant, error)

	UpdateCosts(ctx context.Context, variantID id.ID, avgUnitCost, lastUnitCost decimal.Decimal) error

	// HasMovements reports whether any stock movement refers to the variant.
	HasMovements(ctx context.Context, variantID id.ID) (bool, error)
}

// Service provides business logic for items.
type Service struct {
	*domain.CatalogService[*Item]
}

// NewService creates a new item service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Item]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "item",
	})
	base.Hooks().OnBeforeCreate(func(ctx context.Context, i *Item) error {
		exists, err := repo.ExistsByCode(ctx, i.Code)
		if err != nil {
			return fmt.Errorf("check item code: %w", err)
		}
		if exists {
			return apperror.NewDuplicate("item", "code", i.Code)
		}
		return nil
	})
	return &Service{CatalogService: base}
}

// VariantService provides business logic for variants.
type VariantService struct {
	*domain.CatalogService[*Variant]
	repo  VariantRepository
	items Repository
	units uom.UnitReader
}

// NewVariantService creates a new variant service.
func NewVariantService(repo VariantRepository, items Repository, units uom.UnitReader, txManager tx.Manager) *VariantService {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Variant]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "item_variant",
	})
	svc := &VariantService{CatalogService: base, repo: repo, items: items, units: units}

	base.Hooks().OnBeforeCreate(svc.prepareCreate)
	base.Hooks().OnBeforeUpdate(svc.prepareUpdate)
	return svc
}

// ListByItem returns the variants of one item.
func (s *VariantService) ListByItem(ctx context.Context, itemID id.ID, f domain.ListFilter) (domain.ListResult[*Variant], error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		if apperror.IsNotFound(err) {
			return domain.ListResult[*Variant]{}, apperror.NewNotFound("item", itemID.String())
		}
		return domain.ListResult[*Variant]{}, err
	}
	f.AdvancedFilters = append(f.AdvancedFilters, itemFilter(itemID))
	return s.List(ctx, f)
}

func (s *VariantService) prepareCreate(ctx context.Context, v *Variant) error {
	// Costs start at zero and only move through posting.
	v.AvgUnitCost = decimal.Zero
	v.LastUnitCost = decimal.Zero

	exists, err := s.repo.ExistsByCode(ctx, v.Code)
	if err != nil {
		return fmt.Errorf("check variant sku: %w", err)
	}
	if exists {
		return apperror.NewDuplicate("item_variant", "code", v.Code)
	}
	return s.checkReferences(ctx, v)
}

func (s *VariantService) prepareUpdate(ctx context.Context, v *Variant) error {
	current, err := s.repo.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	v.AvgUnitCost = current.AvgUnitCost
	v.LastUnitCost = current.LastUnitCost

	if current.BaseUOMID != v.BaseUOMID {
		used, err := s.repo.HasMovements(ctx, v.ID)
		if err != nil {
			return fmt.Errorf("check variant movements: %w", err)
		}
		if used {
			return apperror.NewConflict("base unit of a variant with movements cannot change").
				WithDetail("variant_id", v.ID.String())
		}
	}
	return s.checkReferences(ctx, v)
}

func (s *VariantService) checkReferences(ctx context.Context, v *Variant) error {
	if _, err := s.items.GetByID(ctx, v.ItemID); err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewNotFound("item", v.ItemID.String())
		}
		return err
	}
	unit, err := s.units.GetByID(ctx, v.BaseUOMID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewNotFound("unit_of_measure", v.BaseUOMID.String())
		}
		return err
	}
	if !unit.IsActive {
		return apperror.NewFieldValidation("base_uom_id", "base unit is inactive")
	}
	return nil
}
