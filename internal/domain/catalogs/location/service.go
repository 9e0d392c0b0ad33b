package location

import (
	"context"
	"fmt"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/core/tx"
	"stockwise/internal/domain"
	"stockwise/internal/domain/catalogs/operatingunit"
)

// Repository defines persistence for locations.
type Repository interface {
	domain.CatalogRepository[*Location]

	// ClearPrimary unsets is_primary on every location of the operating unit
	// except exceptID.
	ClearPrimary(ctx context.Context, operatingUnitID, exceptID id.ID) error

	// GetPrimary returns the primary location of an operating unit.
	GetPrimary(ctx context.Context, operatingUnitID id.ID) (*Location, error)
}

// OperatingUnitReader loads operating units.
type OperatingUnitReader interface {
	GetByID(ctx context.Context, ouID id.ID) (*operatingunit.OperatingUnit, error)
}

// Service provides business logic for locations.
type Service struct {
	*domain.CatalogService[*Location]
	repo  Repository
	units OperatingUnitReader
}

// NewService creates a new location service.
func NewService(repo Repository, units OperatingUnitReader, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Location]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "inventory_location",
	})
	svc := &Service{CatalogService: base, repo: repo, units: units}

	base.Hooks().OnBeforeCreate(svc.checkCodeUnique)
	base.Hooks().OnBeforeCreate(svc.checkOperatingUnit)
	base.Hooks().OnBeforeCreate(svc.demoteOtherPrimary)
	base.Hooks().OnBeforeUpdate(svc.checkOperatingUnit)
	base.Hooks().OnBeforeUpdate(svc.demoteOtherPrimary)

	return svc
}

// GetPrimary returns the primary location of an operating unit.
func (s *Service) GetPrimary(ctx context.Context, operatingUnitID id.ID) (*Location, error) {
	loc, err := s.repo.GetPrimary(ctx, operatingUnitID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("primary inventory_location", operatingUnitID.String())
		}
		return nil, err
	}
	return loc, nil
}

func (s *Service) checkCodeUnique(ctx context.Context, l *Location) error {
	exists, err := s.repo.ExistsByCode(ctx, l.Code)
	if err != nil {
		return fmt.Errorf("check location code: %w", err)
	}
	if exists {
		return apperror.NewDuplicate("inventory_location", "code", l.Code)
	}
	return nil
}

func (s *Service) checkOperatingUnit(ctx context.Context, l *Location) error {
	ou, err := s.units.GetByID(ctx, l.OperatingUnitID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewNotFound("operating_unit", l.OperatingUnitID.String())
		}
		return err
	}
	if !ou.IsActive && l.IsActive {
		return apperror.NewValidation("operating unit is inactive").
			WithDetail("operating_unit_id", ou.ID.String())
	}
	return nil
}

// demoteOtherPrimary keeps at most one primary location per operating unit.
// It runs inside the write transaction, so the swap is atomic.
func (s *Service) demoteOtherPrimary(ctx context.Context, l *Location) error {
	if !l.IsPrimary {
		return nil
	}
	if err := s.repo.ClearPrimary(ctx, l.OperatingUnitID, l.ID); err != nil {
		return fmt.Errorf("clear primary location: %w", err)
	}
	return nil
}
