package services

import (
	"context"
	"fmt"
	"time"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/models"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/store"
	"greendrake/realty/internal/utils"
)

// IPropertyService defines the interface for listing management. Reservation fields are owned
// by the reservation coordinator and cannot be set through it.
type IPropertyService interface {
	CreateProperty(ctx context.Context, input PropertyInput) (*models.Property, error)
	GetProperty(ctx context.Context, id utils.SixID) (*models.Property, error)
	ListProperties(ctx context.Context, filter store.PropertyFilter) ([]models.Property, error)
	UpdateProperty(ctx context.Context, id utils.SixID, patch PropertyPatch) (*models.Property, error)
	ArchiveProperty(ctx context.Context, id utils.SixID) (*models.Property, error)
}

// PropertyInput holds the descriptive fields of a new listing.
type PropertyInput struct {
	Title       string
	Description string
	Type        models.PropertyType
	Price       float64
	Location    string
	Address     string
	Bedrooms    *int
	Bathrooms   *int
	FloorArea   *float64
	LotArea     *float64
	Features    []string
	AgentID     *utils.SixID
}

// PropertyPatch carries the descriptive fields to change; nil fields keep their value.
type PropertyPatch struct {
	Title       *string
	Description *string
	Type        *models.PropertyType
	Price       *float64
	Location    *string
	Address     *string
	Bedrooms    *int
	Bathrooms   *int
	FloorArea   *float64
	LotArea     *float64
	Features    []string // nil keeps, empty clears
	AgentID     *utils.SixID
}

// propertyService implements IPropertyService.
type propertyService struct {
	store    store.Store
	cfg      *config.Config
	notifier *notify.Notifier
	now      func() time.Time
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(st store.Store, cfg *config.Config, notifier *notify.Notifier) IPropertyService {
	return &propertyService{store: st, cfg: cfg, notifier: notifier, now: utcNow}
}

func validPropertyType(t models.PropertyType) bool {
	switch t {
	case models.PropertyTypeHouse, models.PropertyTypeCondo, models.PropertyTypeTownhouse,
		models.PropertyTypeLot, models.PropertyTypeCommercial:
		return true
	}
	return false
}

func (s *propertyService) CreateProperty(ctx context.Context, input PropertyInput) (*models.Property, error) {
	const op = "CreateProperty"
	if !validPropertyType(input.Type) {
		return nil, validationError(op, "unknown property type %q", input.Type)
	}
	if input.Price < 0 {
		return nil, validationError(op, "price must not be negative")
	}
	features := input.Features
	if features == nil {
		features = []string{}
	}

	now := s.now()
	p := &models.Property{
		ID:              utils.NewSixID(),
		Title:           input.Title,
		Description:     input.Description,
		Type:            input.Type,
		Status:          models.PropertyStatusAvailable,
		Price:           input.Price,
		Location:        input.Location,
		Address:         input.Address,
		Bedrooms:        input.Bedrooms,
		Bathrooms:       input.Bathrooms,
		FloorArea:       input.FloorArea,
		LotArea:         input.LotArea,
		Features:        features,
		AgentID:         input.AgentID,
		ReservationType: models.ReservationNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Properties().Insert(ctx, p)
	})
	if err != nil {
		return nil, storeError(op, "property", nil, err)
	}
	return p, nil
}

func (s *propertyService) GetProperty(ctx context.Context, id utils.SixID) (*models.Property, error) {
	p, err := s.store.Reader().Properties().FindByID(ctx, id)
	if err != nil {
		return nil, storeError("GetProperty", "property", id, err)
	}
	return p, nil
}

// ListProperties returns matching properties, newest first.
func (s *propertyService) ListProperties(ctx context.Context, filter store.PropertyFilter) ([]models.Property, error) {
	const op = "ListProperties"
	if filter.Type != "" && !validPropertyType(filter.Type) {
		return nil, validationError(op, "unknown property type %q", filter.Type)
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, validationError(op, "min price exceeds max price")
	}
	properties, err := s.store.Reader().Properties().List(ctx, filter)
	if err != nil {
		return nil, storeError(op, "property", nil, err)
	}
	return properties, nil
}

// UpdateProperty changes descriptive fields only.
func (s *propertyService) UpdateProperty(ctx context.Context, id utils.SixID, patch PropertyPatch) (*models.Property, error) {
	const op = "UpdateProperty"
	if patch.Type != nil && !validPropertyType(*patch.Type) {
		return nil, validationError(op, "unknown property type %q", *patch.Type)
	}
	if patch.Price != nil && *patch.Price < 0 {
		return nil, validationError(op, "price must not be negative")
	}

	var updated *models.Property
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Properties().Lock(ctx, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			p.Title = *patch.Title
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Type != nil {
			p.Type = *patch.Type
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Location != nil {
			p.Location = *patch.Location
		}
		if patch.Address != nil {
			p.Address = *patch.Address
		}
		if patch.Bedrooms != nil {
			p.Bedrooms = patch.Bedrooms
		}
		if patch.Bathrooms != nil {
			p.Bathrooms = patch.Bathrooms
		}
		if patch.FloorArea != nil {
			p.FloorArea = patch.FloorArea
		}
		if patch.LotArea != nil {
			p.LotArea = patch.LotArea
		}
		if patch.Features != nil {
			p.Features = patch.Features
		}
		if patch.AgentID != nil {
			p.AgentID = patch.AgentID
		}
		p.UpdatedAt = s.now()
		if err := tx.Properties().Update(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, storeError(op, "property", id, err)
	}
	return updated, nil
}

// ArchiveProperty withdraws a listing from the market. A reserved or sold property cannot be
// archived, since that would strand its winning inquiry.
func (s *propertyService) ArchiveProperty(ctx context.Context, id utils.SixID) (*models.Property, error) {
	const op = "ArchiveProperty"
	var (
		archived       *models.Property
		previousStatus models.PropertyStatus
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Properties().Lock(ctx, id)
		if err != nil {
			return err
		}
		previousStatus = p.Status
		switch p.Status {
		case models.PropertyStatusArchived:
			archived = p
			return nil
		case models.PropertyStatusReserved, models.PropertyStatusSold:
			return newError(op, KindPropertyUnavailable, "property", id, fmt.Errorf("property is %s", p.Status))
		}
		p.Status = models.PropertyStatusArchived
		p.UpdatedAt = s.now()
		if err := tx.Properties().Update(ctx, p); err != nil {
			return err
		}
		archived = p
		return nil
	})
	if err != nil {
		return nil, storeError(op, "property", id, err)
	}

	if previousStatus != models.PropertyStatusArchived {
		s.notifier.Emit(ctx, propertyChangedEvent(&ReservationOutcome{Property: archived, PreviousStatus: previousStatus}))
	}
	return archived, nil
}
