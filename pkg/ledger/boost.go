package ledger

import (
	"context"
	"errors"
	"fmt"
)

const secondsPerHour int64 = 3600

// BoostPurchaseRequest buys quantity boosts of one type for an event.
type BoostPurchaseRequest struct {
	BuyerID          UserID
	EventID          EventID
	BoostType        BoostType
	PaymentMethod    PaymentMethod
	Quantity         int64
	PaymentConfirmed bool
}

// BoostPurchaseResult reports a completed boost purchase.
type BoostPurchaseResult struct {
	TransactionID     TransactionID
	Quote             BoostQuote
	Boosts            []Boost
	ActiveBoostCount  int64
	PaymentMethod     PaymentMethod
	BuyerBalanceCents AmountCents
}

// PurchaseBoost charges the buyer (or accepts a confirmed external payment), credits
// the platform boost wallet and issues the boosts.
func (service *Service) PurchaseBoost(ctx context.Context, request BoostPurchaseRequest) (BoostPurchaseResult, error) {
	result, operationError := service.purchaseBoost(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:   operationPurchaseBoost,
		UserID:      request.BuyerID,
		ReferenceID: request.EventID.String(),
		Amount:      result.Quote.TotalCents,
	}, operationError)
	return result, operationError
}

func (service *Service) purchaseBoost(ctx context.Context, request BoostPurchaseRequest) (BoostPurchaseResult, error) {
	if err := request.validate(); err != nil {
		return BoostPurchaseResult{}, err
	}
	event, err := service.events.GetEvent(ctx, request.EventID)
	if err != nil {
		return BoostPurchaseResult{}, err
	}
	if !event.IsActive {
		return BoostPurchaseResult{}, fmt.Errorf("%w: event %s is not active", ErrEventNotPurchasable, event.ID)
	}
	price, err := service.resolveBoostPrice(ctx, request.BoostType)
	if err != nil {
		return BoostPurchaseResult{}, err
	}
	discount, err := service.premiumDiscount(ctx, request.BuyerID)
	if err != nil {
		return BoostPurchaseResult{}, err
	}
	quote, err := QuoteBoost(price, request.Quantity, discount)
	if err != nil {
		return BoostPurchaseResult{}, err
	}
	if quote.TotalCents == 0 {
		return BoostPurchaseResult{}, validationError("boost total must be positive")
	}
	platformWallet, err := service.platform.Resolve(ctx, SettlementPoolBoost)
	if err != nil {
		return BoostPurchaseResult{}, err
	}

	var buyerWallet Wallet
	if request.PaymentMethod == PaymentWallet {
		buyerWallet, err = service.wallets.GetOrCreate(ctx, request.BuyerID, WalletKindStandard)
		if err != nil {
			return BoostPurchaseResult{}, err
		}
		if err := ensureFunds(buyerWallet, quote.TotalCents); err != nil {
			return BoostPurchaseResult{}, err
		}
	}

	result := BoostPurchaseResult{Quote: quote, PaymentMethod: request.PaymentMethod}
	var debit, credit PostingResult
	steps := make([]SagaStep, 0, 3)
	if request.PaymentMethod == PaymentWallet {
		steps = append(steps, SagaStep{
			Name: stepDebitBuyer,
			Apply: func(ctx context.Context) (err error) {
				debit, err = service.wallets.Post(ctx, Posting{
					WalletID:    buyerWallet.ID,
					UserID:      request.BuyerID,
					Kind:        BoostKind{EventID: request.EventID, BoostType: request.BoostType, Quantity: request.Quantity},
					AmountCents: quote.TotalCents,
				})
				return err
			},
			Compensate: service.reverseLeg(&debit, operationPurchaseBoost),
		})
	}
	steps = append(steps, SagaStep{
		Name: stepCreditPlatform,
		Apply: func(ctx context.Context) (err error) {
			credit, err = service.wallets.Post(ctx, Posting{
				WalletID:    platformWallet.ID,
				UserID:      platformWallet.OwnerID,
				Kind:        DepositKind{Source: DepositSourceBoostRevenue, ReferenceID: request.EventID.String(), ReferenceType: ReferenceEvent},
				AmountCents: quote.TotalCents,
				Settlement: &SettlementDraft{
					PayerID:               request.BuyerID,
					SubjectID:             request.EventID.String(),
					OriginalTransactionID: debit.Transaction.ID,
					Split: TicketSplit{
						GrossCents:        quote.TotalCents,
						PlatformCents:     quote.TotalCents,
						CommissionPercent: boostCommissionPercent,
					},
				},
			})
			return err
		},
		Compensate: service.reverseLeg(&credit, operationPurchaseBoost),
	})
	steps = append(steps, SagaStep{
		Name: stepCreateBoosts,
		Apply: func(ctx context.Context) error {
			originating := debit.Transaction.ID
			if originating.IsZero() {
				originating = credit.Transaction.ID
			}
			boosts := service.newBoosts(request, quote, originating)
			activeCount, err := service.store.CreateBoosts(ctx, boosts, service.nowFn())
			if err != nil {
				return err
			}
			result.TransactionID = originating
			result.Boosts = boosts
			result.ActiveBoostCount = activeCount
			return nil
		},
	})
	if err := service.saga.Run(ctx, operationPurchaseBoost, request.EventID.String(), steps); err != nil {
		return BoostPurchaseResult{Quote: quote, PaymentMethod: request.PaymentMethod}, err
	}
	if request.PaymentMethod == PaymentWallet {
		result.BuyerBalanceCents = debit.Wallet.BalanceCents
	}
	return result, nil
}

func (service *Service) newBoosts(request BoostPurchaseRequest, quote BoostQuote, transactionID TransactionID) []Boost {
	startedAt := service.nowFn()
	expiresAt := startedAt + quote.DurationHours*secondsPerHour
	boosts := make([]Boost, 0, request.Quantity)
	for index := int64(0); index < request.Quantity; index++ {
		boosts = append(boosts, Boost{
			ID:             service.newID(),
			EventID:        request.EventID,
			BuyerID:        request.BuyerID,
			BoostType:      request.BoostType,
			TransactionID:  transactionID,
			StartedUnixUTC: startedAt,
			ExpiresUnixUTC: expiresAt,
			Status:         BoostStatusActive,
		})
	}
	return boosts
}

// resolveBoostPrice prefers the catalog and falls back to the built-in prices.
func (service *Service) resolveBoostPrice(ctx context.Context, boostType BoostType) (BoostPrice, error) {
	if service.boostPrices != nil {
		price, err := service.boostPrices.GetBoostPrice(ctx, boostType)
		if err == nil {
			if price.UnitPriceCents <= 0 || price.DurationHours <= 0 {
				return BoostPrice{}, fmt.Errorf("%w: catalog price for %s", ErrInvalidAmount, boostType)
			}
			price.BoostType = boostType
			return price, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return BoostPrice{}, err
		}
	}
	price, found := defaultBoostPrices[boostType]
	if !found {
		return BoostPrice{}, fmt.Errorf("%w: %q", ErrInvalidBoostType, boostType)
	}
	return price, nil
}

func (request BoostPurchaseRequest) validate() error {
	if request.BuyerID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if request.EventID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	if _, err := ParseBoostType(string(request.BoostType)); err != nil {
		return err
	}
	if _, err := ParsePaymentMethod(string(request.PaymentMethod)); err != nil {
		return err
	}
	if request.Quantity < 1 || request.Quantity > maxBoostQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, maxBoostQuantity)
	}
	if request.PaymentMethod.IsExternal() && !request.PaymentConfirmed {
		return fmt.Errorf("%w: %s payment", ErrPaymentNotConfirmed, request.PaymentMethod)
	}
	return nil
}
