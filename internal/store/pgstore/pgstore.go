package pgstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore      = "store"
	errorSubjectReconcile    = "reconcile"
	errorSubjectCompensation = "compensation"
	errorCodeDrift           = "wallet_drift"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeScan            = "scan"

	sqlWalletDrift = `
		select w.id, w.owner_id, w.kind, w.balance_cents, coalesce(sums.ledger_sum, 0)
		from wallets w
		left join (
			select wallet_id,
				sum(case when type = any($1) then -amount_cents else amount_cents end) as ledger_sum
			from wallet_transactions
			where status <> $2
			group by wallet_id
		) sums on sums.wallet_id = w.id
		where w.balance_cents <> coalesce(sums.ledger_sum, 0)
		order by w.id
	`

	sqlCompensationFailures = `
		select id, flow, step, reference_id, cause, error_message, extract(epoch from created_at)::bigint
		from compensation_failures
		where created_at >= to_timestamp($1)
		order by created_at desc
		limit $2
	`
)

// Querier is the read surface of a pgx pool, connection or transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reader implements ledger.ReconciliationReader with plain SQL over pgx.
type Reader struct {
	querier Querier
}

// New returns a Reader backed by a pgx pool.
func New(pool *pgxpool.Pool) *Reader {
	return &Reader{querier: pool}
}

// NewWithQuerier returns a Reader over any pgx querier.
func NewWithQuerier(querier Querier) *Reader {
	return &Reader{querier: querier}
}

func (reader *Reader) WalletDrift(ctx context.Context) ([]ledger.WalletDrift, error) {
	rows, err := reader.querier.Query(ctx, sqlWalletDrift, debitTypes(), string(ledger.TransactionStatusCancelled))
	if err != nil {
		return nil, wrapStoreError(errorSubjectReconcile, errorCodeDrift, err)
	}
	defer rows.Close()

	var drifts []ledger.WalletDrift
	for rows.Next() {
		var (
			walletIDRaw string
			ownerIDRaw  string
			kindRaw     string
			balance     int64
			ledgerSum   int64
		)
		if err := rows.Scan(&walletIDRaw, &ownerIDRaw, &kindRaw, &balance, &ledgerSum); err != nil {
			return nil, wrapStoreError(errorSubjectReconcile, errorCodeScan, err)
		}
		drift, err := mapDrift(walletIDRaw, ownerIDRaw, kindRaw, balance, ledgerSum)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReconcile, errorCodeInvalid, err)
		}
		drifts = append(drifts, drift)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReconcile, errorCodeDrift, err)
	}
	return drifts, nil
}

func (reader *Reader) CompensationFailures(ctx context.Context, sinceUnixUTC int64, limit int) ([]ledger.CompensationFailure, error) {
	rows, err := reader.querier.Query(ctx, sqlCompensationFailures, sinceUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectCompensation, errorCodeList, err)
	}
	defer rows.Close()

	var failures []ledger.CompensationFailure
	for rows.Next() {
		var failure ledger.CompensationFailure
		if err := rows.Scan(&failure.ID, &failure.Flow, &failure.Step, &failure.ReferenceID, &failure.Cause, &failure.Error, &failure.CreatedUnixUTC); err != nil {
			return nil, wrapStoreError(errorSubjectCompensation, errorCodeScan, err)
		}
		failures = append(failures, failure)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectCompensation, errorCodeList, err)
	}
	return failures, nil
}

func mapDrift(walletIDRaw string, ownerIDRaw string, kindRaw string, balance int64, ledgerSum int64) (ledger.WalletDrift, error) {
	walletID, err := ledger.NewWalletID(walletIDRaw)
	if err != nil {
		return ledger.WalletDrift{}, err
	}
	ownerID, err := ledger.NewUserID(ownerIDRaw)
	if err != nil {
		return ledger.WalletDrift{}, err
	}
	kind, err := ledger.ParseWalletKind(kindRaw)
	if err != nil {
		return ledger.WalletDrift{}, err
	}
	balanceCents, err := ledger.NewAmountCents(balance)
	if err != nil {
		return ledger.WalletDrift{}, err
	}
	return ledger.WalletDrift{
		WalletID:       walletID,
		OwnerID:        ownerID,
		Kind:           kind,
		BalanceCents:   balanceCents,
		LedgerSumCents: ledger.SignedAmountCents(ledgerSum),
	}, nil
}

func debitTypes() []string {
	return []string{
		string(ledger.TransactionWithdraw),
		string(ledger.TransactionPurchase),
		string(ledger.TransactionBoost),
		string(ledger.TransactionPremium),
	}
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}
