package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SubscriptionRequest subscribes a user to a premium plan.
type SubscriptionRequest struct {
	BuyerID          UserID
	PlanName         string
	PaymentMethod    PaymentMethod
	AutoRenew        bool
	PaymentConfirmed bool
}

// SubscriptionResult reports a completed subscription.
type SubscriptionResult struct {
	Subscription      Subscription
	Profile           Profile
	TransactionID     TransactionID
	AmountCents       AmountCents
	BuyerBalanceCents AmountCents
}

// SubscribePremium charges a premium plan and grants premium to the buyer's profile.
func (service *Service) SubscribePremium(ctx context.Context, request SubscriptionRequest) (SubscriptionResult, error) {
	result, operationError := service.subscribePremium(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:   operationSubscribePremium,
		UserID:      request.BuyerID,
		ReferenceID: request.PlanName,
		Amount:      result.AmountCents,
	}, operationError)
	return result, operationError
}

func (service *Service) subscribePremium(ctx context.Context, request SubscriptionRequest) (SubscriptionResult, error) {
	if request.BuyerID.IsZero() {
		return SubscriptionResult{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	planName := strings.TrimSpace(request.PlanName)
	if planName == "" {
		return SubscriptionResult{}, validationError("plan name is required")
	}
	if _, err := ParsePaymentMethod(string(request.PaymentMethod)); err != nil {
		return SubscriptionResult{}, err
	}
	if request.PaymentMethod.IsExternal() && !request.PaymentConfirmed {
		return SubscriptionResult{}, fmt.Errorf("%w: %s payment", ErrPaymentNotConfirmed, request.PaymentMethod)
	}
	now := service.nowFn()
	previous, hadPrevious, err := service.currentSubscription(ctx, request.BuyerID)
	if err != nil {
		return SubscriptionResult{}, err
	}
	if hadPrevious && previous.IsActiveAt(now) {
		return SubscriptionResult{}, fmt.Errorf("%w: plan %s until %s", ErrAlreadySubscribed, previous.PlanName, time.Unix(previous.ExpiresUnixUTC, 0).UTC().Format(time.RFC3339))
	}
	plan, err := service.plans.GetPlan(ctx, planName)
	if err != nil {
		return SubscriptionResult{}, err
	}
	if plan.TotalPriceCents <= 0 || plan.DurationMonths <= 0 {
		return SubscriptionResult{}, validationError("plan %s is not purchasable", plan.Name)
	}
	buyerWallet, err := service.wallets.GetOrCreate(ctx, request.BuyerID, WalletKindStandard)
	if err != nil {
		return SubscriptionResult{}, err
	}
	if request.PaymentMethod == PaymentWallet {
		if err := ensureFunds(buyerWallet, plan.TotalPriceCents); err != nil {
			return SubscriptionResult{AmountCents: plan.TotalPriceCents}, err
		}
	}

	expiresAt := time.Unix(now, 0).UTC().AddDate(0, plan.DurationMonths, 0).Unix()
	subscription := Subscription{
		UserID:         request.BuyerID,
		PlanName:       plan.Name,
		Status:         SubscriptionStatusActive,
		AutoRenew:      request.AutoRenew,
		PaymentMethod:  request.PaymentMethod,
		StartedUnixUTC: now,
		ExpiresUnixUTC: expiresAt,
	}
	premiumKind := PremiumKind{PlanName: plan.Name, PaymentMethod: request.PaymentMethod}

	var gatewayDeposit, charge PostingResult
	var previousProfile, grantedProfile Profile
	steps := make([]SagaStep, 0, 4)
	if request.PaymentMethod.IsExternal() {
		steps = append(steps, SagaStep{
			Name: stepGatewayDeposit,
			Apply: func(ctx context.Context) (err error) {
				gatewayDeposit, err = service.wallets.Post(ctx, Posting{
					WalletID:    buyerWallet.ID,
					UserID:      request.BuyerID,
					Kind:        DepositKind{Source: DepositSourceGateway, ReferenceID: plan.Name, ReferenceType: ReferenceSubscription},
					AmountCents: plan.TotalPriceCents,
				})
				return err
			},
			Compensate: service.reverseLeg(&gatewayDeposit, operationSubscribePremium),
		})
	}
	steps = append(steps,
		SagaStep{
			Name: stepChargePremium,
			Apply: func(ctx context.Context) (err error) {
				charge, err = service.wallets.Post(ctx, Posting{
					WalletID:    buyerWallet.ID,
					UserID:      request.BuyerID,
					Kind:        premiumKind,
					AmountCents: plan.TotalPriceCents,
				})
				return err
			},
			Compensate: service.reverseLeg(&charge, operationSubscribePremium),
		},
		SagaStep{
			Name: stepActivateSubscription,
			Apply: func(ctx context.Context) error {
				subscription.TransactionID = charge.Transaction.ID
				return service.store.ActivateSubscription(ctx, subscription, now)
			},
			Compensate: func(ctx context.Context) error {
				if hadPrevious {
					return service.store.UpsertSubscription(ctx, previous)
				}
				return service.store.DeleteSubscription(ctx, request.BuyerID)
			},
		},
		SagaStep{
			Name: stepGrantPremium,
			Apply: func(ctx context.Context) error {
				return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
					current, err := profileIn(ctx, txStore, request.BuyerID)
					if err != nil {
						return err
					}
					previousProfile = current
					grantedProfile = current.WithPremium(expiresAt)
					return txStore.SaveProfile(ctx, grantedProfile)
				})
			},
			Compensate: func(ctx context.Context) error {
				return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
					current, err := profileIn(ctx, txStore, request.BuyerID)
					if err != nil {
						return err
					}
					return txStore.SaveProfile(ctx, current.RevertPremium(previousProfile))
				})
			},
		},
	)
	if err := service.saga.Run(ctx, operationSubscribePremium, request.BuyerID.String(), steps); err != nil {
		return SubscriptionResult{AmountCents: plan.TotalPriceCents}, err
	}
	return SubscriptionResult{
		Subscription:      subscription,
		Profile:           grantedProfile,
		TransactionID:     charge.Transaction.ID,
		AmountCents:       plan.TotalPriceCents,
		BuyerBalanceCents: charge.Wallet.BalanceCents,
	}, nil
}

func (service *Service) currentSubscription(ctx context.Context, userID UserID) (Subscription, bool, error) {
	subscription, err := service.store.GetSubscription(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, false, nil
	}
	if err != nil {
		return Subscription{}, false, err
	}
	return subscription, true, nil
}

// profileIn returns the stored profile or a plain user profile.
func profileIn(ctx context.Context, store ProfileRepository, userID UserID) (Profile, error) {
	profile, err := store.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Profile{UserID: userID, Role: RoleUser}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}
