package ledger

import (
	"context"
	"errors"
)

// ExpireBoosts marks active boosts whose window ended at or before nowUnixUTC as expired.
func (service *Service) ExpireBoosts(ctx context.Context, nowUnixUTC int64) (int64, error) {
	expired, err := service.store.ExpireBoosts(ctx, nowUnixUTC)
	service.logOperation(ctx, OperationLog{Operation: operationExpireBoosts}, err)
	return expired, err
}

// ExpireSubscriptions expires lapsed subscriptions and clears the premium flags of their
// owners. Staff roles are kept; a premium role falls back to user.
func (service *Service) ExpireSubscriptions(ctx context.Context, nowUnixUTC int64) (int64, error) {
	expired, err := service.expireSubscriptions(ctx, nowUnixUTC)
	service.logOperation(ctx, OperationLog{Operation: operationExpireSubscriptions}, err)
	return expired, err
}

func (service *Service) expireSubscriptions(ctx context.Context, nowUnixUTC int64) (int64, error) {
	var expired int64
	for {
		batch, err := service.store.ListExpiredSubscriptions(ctx, nowUnixUTC, expirySweepBatchSize)
		if err != nil {
			return expired, err
		}
		if len(batch) == 0 {
			return expired, nil
		}
		var transitioned int64
		for _, subscription := range batch {
			changed, err := service.expireSubscription(ctx, subscription)
			if err != nil {
				return expired, err
			}
			if changed {
				transitioned++
			}
		}
		expired += transitioned
		if transitioned == 0 || len(batch) < expirySweepBatchSize {
			return expired, nil
		}
	}
}

func (service *Service) expireSubscription(ctx context.Context, subscription Subscription) (bool, error) {
	changed := false
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		err := txStore.UpdateSubscriptionStatus(ctx, subscription.UserID, SubscriptionStatusActive, SubscriptionStatusExpired)
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil
		}
		if err != nil {
			return err
		}
		profile, err := txStore.GetProfile(ctx, subscription.UserID)
		if errors.Is(err, ErrNotFound) {
			profile = Profile{UserID: subscription.UserID, Role: RoleUser}
		} else if err != nil {
			return err
		}
		if err := txStore.SaveProfile(ctx, profile.WithoutPremium()); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}
