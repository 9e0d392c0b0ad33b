package uom

import (
	"context"
	"fmt"

	"stockwise/internal/core/apperror"
	"stockwise/internal/core/id"
	"stockwise/internal/core/tx"
	"stockwise/internal/domain"
)

// Service provides business logic for units of measure.
type Service struct {
	*domain.CatalogService[*UnitOfMeasure]
	repo Repository
}

// NewService creates a new unit service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*UnitOfMeasure]{
		Repo:       repo,
		TxManager:  txManager,
		EntityName: "unit_of_measure",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
	}

	base.Hooks().OnBeforeCreate(svc.checkCodeUnique)
	base.Hooks().OnBeforeUpdate(svc.checkPrecisionLocked)

	return svc
}

func (s *Service) checkCodeUnique(ctx context.Context, u *UnitOfMeasure) error {
	exists, err := s.repo.ExistsByCode(ctx, u.Code)
	if err != nil {
		return fmt.Errorf("check unit code: %w", err)
	}
	if exists {
		return apperror.NewDuplicate("unit_of_measure", "code", u.Code)
	}
	return nil
}

// checkPrecisionLocked rejects precision changes on referenced units: stored
// quantities were rounded with the old precision.
func (s *Service) checkPrecisionLocked(ctx context.Context, u *UnitOfMeasure) error {
	current, err := s.repo.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if current.Precision == u.Precision {
		return nil
	}
	referenced, err := s.repo.IsReferenced(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("check unit references: %w", err)
	}
	if referenced {
		return apperror.NewConflict("precision of a unit in use cannot change").
			WithDetail("uom_id", u.ID.String())
	}
	return nil
}

// ConversionService manages conversions and keeps the converter cache fresh.
type ConversionService struct {
	repo      ConversionRepository
	units     Repository
	txManager tx.Manager
	converter *Converter
}

// NewConversionService creates a conversion service. converter may be nil.
func NewConversionService(repo ConversionRepository, units Repository, txManager tx.Manager, converter *Converter) *ConversionService {
	return &ConversionService{
		repo:      repo,
		units:     units,
		txManager: txManager,
		converter: converter,
	}
}

// Create validates and stores a conversion.
func (s *ConversionService) Create(ctx context.Context, c *Conversion) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.checkReferences(ctx, c); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return fmt.Errorf("create conversion: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Update changes factor, tolerance or the active flag of a conversion.
func (s *ConversionService) Update(ctx context.Context, c *Conversion) error {
	if err := c.Validate(ctx); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.checkReferences(ctx, c); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return fmt.Errorf("update conversion: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// GetByID returns a conversion.
func (s *ConversionService) GetByID(ctx context.Context, conversionID id.ID) (*Conversion, error) {
	c, err := s.repo.GetByID(ctx, conversionID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("uom_conversion", conversionID.String())
		}
		return nil, err
	}
	return c, nil
}

// List returns conversions matching f.
func (s *ConversionService) List(ctx context.Context, f ConversionFilter) (domain.ListResult[*Conversion], error) {
	if f.Limit <= 0 || f.Limit > domain.MaxListLimit {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

func (s *ConversionService) checkReferences(ctx context.Context, c *Conversion) error {
	for _, uomID := range []id.ID{c.FromUOMID, c.ToUOMID} {
		u, err := s.units.GetByID(ctx, uomID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewNotFound("unit_of_measure", uomID.String())
			}
			return err
		}
		if c.IsActive && !u.IsActive {
			return apperror.NewValidation("conversion refers to an inactive unit").
				WithDetail("uom_id", uomID.String())
		}
	}

	if !c.IsActive {
		return nil
	}
	dup, err := s.repo.ExistsActivePair(ctx, c.FromUOMID, c.ToUOMID, c.ID)
	if err != nil {
		return fmt.Errorf("check conversion pair: %w", err)
	}
	if dup {
		return apperror.NewDuplicate("uom_conversion", "from_uom_id,to_uom_id",
			c.FromUOMID.String()+"->"+c.ToUOMID.String())
	}
	return nil
}

func (s *ConversionService) invalidate() {
	if s.converter != nil {
		s.converter.Invalidate()
	}
}
