package gormstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
)

const (
	errorSubjectReconcile = "reconcile"
	errorCodeDrift        = "wallet_drift"

	walletDriftQuery = `
SELECT w.id AS wallet_id, w.owner_id, w.kind, w.balance_cents,
       COALESCE(SUM(CASE WHEN t.type IN ? THEN -t.amount_cents ELSE t.amount_cents END), 0) AS ledger_sum_cents
FROM wallets w
LEFT JOIN wallet_transactions t ON t.wallet_id = w.id AND t.status <> ?
GROUP BY w.id, w.owner_id, w.kind, w.balance_cents
HAVING w.balance_cents <> COALESCE(SUM(CASE WHEN t.type IN ? THEN -t.amount_cents ELSE t.amount_cents END), 0)
ORDER BY w.id`
)

type driftRow struct {
	WalletID       string
	OwnerID        string
	Kind           string
	BalanceCents   int64
	LedgerSumCents int64
}

// WalletDrift lists wallets whose balance differs from the signed sum of their
// non-cancelled transactions.
func (store *Store) WalletDrift(ctx context.Context) ([]ledger.WalletDrift, error) {
	debits := debitTypes()
	var rows []driftRow
	err := store.db.WithContext(ctx).
		Raw(walletDriftQuery, debits, string(ledger.TransactionStatusCancelled), debits).
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReconcile, errorCodeDrift, err)
	}
	drifts := make([]ledger.WalletDrift, 0, len(rows))
	for _, row := range rows {
		wallet, err := mapWallet(Wallet{WalletID: row.WalletID, OwnerID: row.OwnerID, Kind: row.Kind, BalanceCents: row.BalanceCents})
		if err != nil {
			return nil, wrapStoreError(errorSubjectReconcile, errorCodeInvalid, err)
		}
		drifts = append(drifts, ledger.WalletDrift{
			WalletID:       wallet.ID,
			OwnerID:        wallet.OwnerID,
			Kind:           wallet.Kind,
			BalanceCents:   wallet.BalanceCents,
			LedgerSumCents: ledger.SignedAmountCents(row.LedgerSumCents),
		})
	}
	return drifts, nil
}

// CompensationFailures lists recorded compensation failures, newest first.
func (store *Store) CompensationFailures(ctx context.Context, sinceUnixUTC int64, limit int) ([]ledger.CompensationFailure, error) {
	var rows []CompensationFailure
	err := store.db.WithContext(ctx).
		Where("created_at >= ?", time.Unix(sinceUnixUTC, 0).UTC()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCompensation, errorCodeList, err)
	}
	failures := make([]ledger.CompensationFailure, 0, len(rows))
	for _, row := range rows {
		failures = append(failures, mapCompensationFailure(row))
	}
	return failures, nil
}

func debitTypes() []string {
	return []string{
		string(ledger.TransactionWithdraw),
		string(ledger.TransactionPurchase),
		string(ledger.TransactionBoost),
		string(ledger.TransactionPremium),
	}
}
