package gormstore

import (
	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
)

func mapWallet(row Wallet) (ledger.Wallet, error) {
	walletID, err := ledger.NewWalletID(row.WalletID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	ownerID, err := ledger.NewUserID(row.OwnerID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	kind, err := ledger.ParseWalletKind(row.Kind)
	if err != nil {
		return ledger.Wallet{}, err
	}
	balance, err := ledger.NewAmountCents(row.BalanceCents)
	if err != nil {
		return ledger.Wallet{}, err
	}
	deposited, err := ledger.NewAmountCents(row.TotalDepositedCents)
	if err != nil {
		return ledger.Wallet{}, err
	}
	withdrawn, err := ledger.NewAmountCents(row.TotalWithdrawnCents)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return ledger.Wallet{
		ID:                  walletID,
		OwnerID:             ownerID,
		Kind:                kind,
		BalanceCents:        balance,
		TotalDepositedCents: deposited,
		TotalWithdrawnCents: withdrawn,
		Version:             row.Version,
		CreatedUnixUTC:      row.CreatedAt.Unix(),
		UpdatedUnixUTC:      row.UpdatedAt.Unix(),
	}, nil
}

func mapTransaction(row Transaction) (ledger.Transaction, error) {
	transactionID, err := ledger.NewTransactionID(row.TransactionID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	walletID, err := ledger.NewWalletID(row.WalletID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	status, err := ledger.ParseTransactionStatus(row.Status)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(row.AmountCents)
	if err != nil {
		return ledger.Transaction{}, err
	}
	before, err := ledger.NewAmountCents(row.BalanceBeforeCents)
	if err != nil {
		return ledger.Transaction{}, err
	}
	after, err := ledger.NewAmountCents(row.BalanceAfterCents)
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{
		ID:                 transactionID,
		WalletID:           walletID,
		UserID:             userID,
		Type:               transactionType,
		AmountCents:        amount,
		BalanceBeforeCents: before,
		BalanceAfterCents:  after,
		Status:             status,
		ReferenceID:        row.ReferenceID,
		ReferenceType:      ledger.ReferenceType(row.ReferenceType),
		Metadata:           metadata,
		CreatedUnixUTC:     row.CreatedAt.Unix(),
	}, nil
}

func mapSubscription(row Subscription) (ledger.Subscription, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Subscription{}, err
	}
	subscription := ledger.Subscription{
		UserID:         userID,
		PlanName:       row.PlanName,
		Status:         ledger.SubscriptionStatus(row.Status),
		AutoRenew:      row.AutoRenew,
		StartedUnixUTC: row.StartedUnixUTC,
		ExpiresUnixUTC: row.ExpiresUnixUTC,
	}
	if row.PaymentMethod != "" {
		method, err := ledger.ParsePaymentMethod(row.PaymentMethod)
		if err != nil {
			return ledger.Subscription{}, err
		}
		subscription.PaymentMethod = method
	}
	if row.TransactionID != "" {
		transactionID, err := ledger.NewTransactionID(row.TransactionID)
		if err != nil {
			return ledger.Subscription{}, err
		}
		subscription.TransactionID = transactionID
	}
	return subscription, nil
}

func mapProfile(row Profile) (ledger.Profile, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Profile{}, err
	}
	role, err := ledger.ParseRole(row.Role)
	if err != nil {
		return ledger.Profile{}, err
	}
	return ledger.Profile{
		UserID:                userID,
		Role:                  role,
		IsPremium:             row.IsPremium,
		PremiumExpiresUnixUTC: row.PremiumExpiresUnixUTC,
	}, nil
}

func mapCompensationFailure(row CompensationFailure) ledger.CompensationFailure {
	return ledger.CompensationFailure{
		ID:             row.FailureID,
		Flow:           row.Flow,
		Step:           row.Step,
		ReferenceID:    row.ReferenceID,
		Cause:          row.Cause,
		Error:          row.ErrorMessage,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}
}
