package gormstore

import (
	"context"
	"errors"
	"strings"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorOperationCatalog   = "catalog"
	errorSubjectEvent       = "event"
	errorSubjectCategory    = "ticket_category"
	errorSubjectPlan        = "plan"
	errorSubjectBoostPrice  = "boost_price"
	errorCodeDecrementStock = "decrement_stock"
	errorCodeSave           = "save"
)

// Catalog serves events, ticket categories, plans and boost prices from the
// same database as the Store.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog returns a Catalog backed by gorm.DB.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (catalog *Catalog) GetEvent(ctx context.Context, eventID ledger.EventID) (ledger.Event, error) {
	var model Event
	err := catalog.db.WithContext(ctx).Where("id = ?", eventID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Event{}, wrapCatalogError(errorSubjectEvent, errorCodeGet, notFound("event", eventID.String()))
	}
	if err != nil {
		return ledger.Event{}, wrapCatalogError(errorSubjectEvent, errorCodeGet, err)
	}
	event := ledger.Event{ID: eventID, IsActive: model.IsActive, IsApproved: model.IsApproved}
	if model.OrganizerID != "" {
		organizerID, err := ledger.NewUserID(model.OrganizerID)
		if err != nil {
			return ledger.Event{}, wrapCatalogError(errorSubjectEvent, errorCodeInvalid, err)
		}
		event.OrganizerID = organizerID
	}
	return event, nil
}

func (catalog *Catalog) GetTicketCategory(ctx context.Context, categoryID ledger.CategoryID) (ledger.TicketCategory, error) {
	var model TicketCategory
	err := catalog.db.WithContext(ctx).Where("id = ?", categoryID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.TicketCategory{}, wrapCatalogError(errorSubjectCategory, errorCodeGet, notFound("ticket category", categoryID.String()))
	}
	if err != nil {
		return ledger.TicketCategory{}, wrapCatalogError(errorSubjectCategory, errorCodeGet, err)
	}
	eventID, err := ledger.NewEventID(model.EventID)
	if err != nil {
		return ledger.TicketCategory{}, wrapCatalogError(errorSubjectCategory, errorCodeInvalid, err)
	}
	price, err := ledger.NewAmountCents(model.PriceCents)
	if err != nil {
		return ledger.TicketCategory{}, wrapCatalogError(errorSubjectCategory, errorCodeInvalid, err)
	}
	return ledger.TicketCategory{ID: categoryID, EventID: eventID, PriceCents: price, StockRemaining: model.StockRemaining}, nil
}

// DecrementStock takes one unit of stock while any is left.
func (catalog *Catalog) DecrementStock(ctx context.Context, categoryID ledger.CategoryID) error {
	result := catalog.db.WithContext(ctx).
		Model(&TicketCategory{}).
		Where("id = ? AND stock_remaining > 0", categoryID.String()).
		Update("stock_remaining", gorm.Expr("stock_remaining - 1"))
	if result.Error != nil {
		return wrapCatalogError(errorSubjectCategory, errorCodeDecrementStock, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := catalog.GetTicketCategory(ctx, categoryID); err != nil {
		return err
	}
	return wrapCatalogError(errorSubjectCategory, errorCodeDecrementStock, ledger.ErrStockDepleted)
}

func (catalog *Catalog) GetPlan(ctx context.Context, name string) (ledger.Plan, error) {
	var model Plan
	err := catalog.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Plan{}, wrapCatalogError(errorSubjectPlan, errorCodeGet, notFound("plan", name))
	}
	if err != nil {
		return ledger.Plan{}, wrapCatalogError(errorSubjectPlan, errorCodeGet, err)
	}
	price, err := ledger.NewAmountCents(model.TotalPriceCents)
	if err != nil {
		return ledger.Plan{}, wrapCatalogError(errorSubjectPlan, errorCodeInvalid, err)
	}
	discount, err := ledger.NewPercent(model.BoostDiscountPercent)
	if err != nil {
		return ledger.Plan{}, wrapCatalogError(errorSubjectPlan, errorCodeInvalid, err)
	}
	return ledger.Plan{Name: model.Name, TotalPriceCents: price, DurationMonths: model.DurationMonths, BoostDiscountPercent: discount}, nil
}

func (catalog *Catalog) GetBoostPrice(ctx context.Context, boostType ledger.BoostType) (ledger.BoostPrice, error) {
	var model BoostPrice
	err := catalog.db.WithContext(ctx).Where("boost_type = ?", string(boostType)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.BoostPrice{}, wrapCatalogError(errorSubjectBoostPrice, errorCodeGet, notFound("boost price", string(boostType)))
	}
	if err != nil {
		return ledger.BoostPrice{}, wrapCatalogError(errorSubjectBoostPrice, errorCodeGet, err)
	}
	price, err := ledger.NewAmountCents(model.UnitPriceCents)
	if err != nil {
		return ledger.BoostPrice{}, wrapCatalogError(errorSubjectBoostPrice, errorCodeInvalid, err)
	}
	return ledger.BoostPrice{BoostType: boostType, UnitPriceCents: price, DurationHours: model.DurationHours}, nil
}

// SaveEvent upserts an event; the event system calls it when events change.
func (catalog *Catalog) SaveEvent(ctx context.Context, event ledger.Event) error {
	model := Event{
		EventID:     event.ID.String(),
		OrganizerID: event.OrganizerID.String(),
		IsActive:    event.IsActive,
		IsApproved:  event.IsApproved,
	}
	return catalog.upsert(ctx, errorSubjectEvent, "id", &model)
}

// SaveTicketCategory upserts a ticket category including its remaining stock.
func (catalog *Catalog) SaveTicketCategory(ctx context.Context, category ledger.TicketCategory) error {
	model := TicketCategory{
		CategoryID:     category.ID.String(),
		EventID:        category.EventID.String(),
		PriceCents:     category.PriceCents.Int64(),
		StockRemaining: category.StockRemaining,
	}
	return catalog.upsert(ctx, errorSubjectCategory, "id", &model)
}

// SavePlan upserts a premium plan.
func (catalog *Catalog) SavePlan(ctx context.Context, plan ledger.Plan) error {
	model := Plan{
		Name:                 strings.TrimSpace(plan.Name),
		TotalPriceCents:      plan.TotalPriceCents.Int64(),
		DurationMonths:       plan.DurationMonths,
		BoostDiscountPercent: plan.BoostDiscountPercent.Int64(),
	}
	return catalog.upsert(ctx, errorSubjectPlan, "name", &model)
}

// SaveBoostPrice upserts the price of a boost type.
func (catalog *Catalog) SaveBoostPrice(ctx context.Context, price ledger.BoostPrice) error {
	model := BoostPrice{
		BoostType:      string(price.BoostType),
		UnitPriceCents: price.UnitPriceCents.Int64(),
		DurationHours:  price.DurationHours,
	}
	return catalog.upsert(ctx, errorSubjectBoostPrice, "boost_type", &model)
}

func (catalog *Catalog) upsert(ctx context.Context, subject string, key string, model any) error {
	err := catalog.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: key}}, UpdateAll: true}).
		Create(model).Error
	if err != nil {
		return wrapCatalogError(subject, errorCodeSave, err)
	}
	return nil
}

func wrapCatalogError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationCatalog, subject, code, err)
}
