package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Service contains the wallet and commission logic over a Store.
type Service struct {
	store       Store
	events      EventCatalog
	plans       PlanCatalog
	boostPrices BoostPriceCatalog
	nowFn       func() int64
	newID       func() string
	loggers     []OperationLogger

	ticketCommission        Percent
	maxConflictAttempts     uint
	maxCompensationAttempts uint
	conflictBackOff         func() backoff.BackOff
	compensationBackOff     func() backoff.BackOff

	wallets  *WalletStore
	platform *PlatformWalletRouter
	saga     *SagaRunner
}

// NewService wires a Service. catalogs.BoostPrices is optional.
func NewService(store Store, catalogs Catalogs, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if catalogs.Events == nil {
		return nil, fmt.Errorf("%w: event catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if catalogs.Plans == nil {
		return nil, fmt.Errorf("%w: plan catalog dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:                   store,
		events:                  catalogs.Events,
		plans:                   catalogs.Plans,
		boostPrices:             catalogs.BoostPrices,
		nowFn:                   now,
		newID:                   uuid.NewString,
		ticketCommission:        defaultTicketCommissionPercent,
		maxConflictAttempts:     defaultMaxConflictAttempts,
		maxCompensationAttempts: defaultMaxCompensationAttempts,
		conflictBackOff:         defaultConflictBackOff,
		compensationBackOff:     defaultCompensationBackOff,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if _, err := NewPercent(service.ticketCommission.Int64()); err != nil {
		return nil, fmt.Errorf("%w: ticket commission: %v", ErrInvalidServiceConfig, err)
	}
	if service.maxConflictAttempts == 0 || service.maxCompensationAttempts == 0 {
		return nil, fmt.Errorf("%w: retry attempts must be positive", ErrInvalidServiceConfig)
	}
	if service.newID == nil || service.conflictBackOff == nil || service.compensationBackOff == nil {
		return nil, fmt.Errorf("%w: id generator and backoff policies are required", ErrInvalidServiceConfig)
	}
	service.wallets = &WalletStore{
		store:       store,
		nowFn:       now,
		newID:       service.newID,
		maxAttempts: service.maxConflictAttempts,
		newBackOff:  service.conflictBackOff,
	}
	service.platform = &PlatformWalletRouter{wallets: service.wallets}
	service.saga = &SagaRunner{
		recorder:    store,
		log:         service.logOperation,
		nowFn:       now,
		newID:       service.newID,
		maxAttempts: service.maxCompensationAttempts,
		newBackOff:  service.compensationBackOff,
	}
	return service, nil
}

// Wallets exposes the wallet store used by the service.
func (service *Service) Wallets() *WalletStore {
	return service.wallets
}

// GetWalletBalance returns the standard wallet of a user, creating it on first use.
func (service *Service) GetWalletBalance(ctx context.Context, userID UserID) (Wallet, error) {
	return service.wallets.GetOrCreate(ctx, userID, WalletKindStandard)
}

// GetPlatformWalletSummary returns both platform settlement wallets.
func (service *Service) GetPlatformWalletSummary(ctx context.Context) (PlatformWalletSummary, error) {
	return service.platform.Summary(ctx)
}

// premiumDiscount returns the boost discount of the buyer's active plan, or zero.
func (service *Service) premiumDiscount(ctx context.Context, userID UserID) (Percent, error) {
	subscription, err := service.store.GetSubscription(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !subscription.IsActiveAt(service.nowFn()) {
		return 0, nil
	}
	plan, err := service.plans.GetPlan(ctx, subscription.PlanName)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return plan.BoostDiscountPercent, nil
}

// reverseLeg is the compensation of a posted leg. A leg already cancelled by an earlier
// attempt counts as reversed.
func (service *Service) reverseLeg(result *PostingResult, reason string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if result.Transaction.ID.IsZero() {
			return nil
		}
		_, _, err := service.wallets.Reverse(ctx, result.Transaction.ID, result.Transaction.Status, map[string]string{"compensated_by": reason})
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil
		}
		return err
	}
}

// mergeMetadata adds annotations to a JSON object, overwriting equal keys.
func mergeMetadata(base MetadataJSON, annotations map[string]string) (MetadataJSON, error) {
	merged := map[string]any{}
	if err := json.Unmarshal([]byte(base.String()), &merged); err != nil {
		merged = map[string]any{"original": base.String()}
	}
	for key, value := range annotations {
		merged[key] = value
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return NewMetadataJSON(string(encoded))
}

func ensureFunds(wallet Wallet, required AmountCents) error {
	if wallet.BalanceCents < required {
		return &InsufficientBalanceError{CurrentCents: wallet.BalanceCents, RequiredCents: required}
	}
	return nil
}
