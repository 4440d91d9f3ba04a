package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
)

// WalletStore is the only writer of wallet balances. Every change is a conditional
// update paired with its ledger row in one store transaction.
type WalletStore struct {
	store       Store
	nowFn       func() int64
	newID       func() string
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

// Posting describes one ledger leg against one wallet.
type Posting struct {
	WalletID    WalletID
	UserID      UserID
	Kind        TransactionKind
	AmountCents AmountCents
	Status      TransactionStatus
	Metadata    MetadataJSON
	Settlement  *SettlementDraft
}

// SettlementDraft is attached to the leg that credits the settlement wallet.
type SettlementDraft struct {
	PayerID               UserID
	SubjectID             string
	OriginalTransactionID TransactionID
	Split                 TicketSplit
}

// PostingResult is the state after a posting.
type PostingResult struct {
	Wallet      Wallet
	Transaction Transaction
	Settlement  *SettlementRecord
}

// GetOrCreate returns the wallet of owner, creating it with a zero balance.
func (walletStore *WalletStore) GetOrCreate(ctx context.Context, ownerID UserID, kind WalletKind) (Wallet, error) {
	if ownerID.IsZero() {
		return Wallet{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return walletStore.store.GetOrCreateWallet(ctx, ownerID, kind, walletStore.nowFn())
}

// ApplyDelta changes a balance only if it still equals expectedBalanceBefore.
func (walletStore *WalletStore) ApplyDelta(ctx context.Context, walletID WalletID, amount SignedAmountCents, expectedBalanceBefore AmountCents) (Wallet, error) {
	var updated Wallet
	err := walletStore.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetWallet(ctx, walletID)
		if err != nil {
			return err
		}
		if current.BalanceCents != expectedBalanceBefore {
			return fmt.Errorf("%w: wallet %s balance is %s", ErrBalanceConflict, walletID, current.BalanceCents)
		}
		updated, err = txStore.ApplyDelta(ctx, WalletDelta{
			Current:        current,
			Amount:         amount,
			UpdatedUnixUTC: walletStore.nowFn(),
		})
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	return updated, nil
}

// Post appends a ledger leg and applies its balance effect, retrying on conflicts.
func (walletStore *WalletStore) Post(ctx context.Context, posting Posting) (PostingResult, error) {
	transactionID, err := NewTransactionID(walletStore.newID())
	if err != nil {
		return PostingResult{}, err
	}
	return retryOnConflict(ctx, walletStore.maxAttempts, walletStore.newBackOff, func() (PostingResult, error) {
		var result PostingResult
		err := walletStore.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			current, err := txStore.GetWallet(ctx, posting.WalletID)
			if err != nil {
				return err
			}
			now := walletStore.nowFn()
			transaction, err := NewTransaction(TransactionDraft{
				ID:                 transactionID,
				WalletID:           current.ID,
				UserID:             posting.UserID,
				Kind:               posting.Kind,
				AmountCents:        posting.AmountCents,
				BalanceBeforeCents: current.BalanceCents,
				Status:             posting.Status,
				Metadata:           posting.Metadata,
				CreatedUnixUTC:     now,
			})
			if err != nil {
				return err
			}
			next, err := txStore.ApplyDelta(ctx, deltaFor(current, transaction, now, false))
			if err != nil {
				return err
			}
			if err := txStore.AppendTransaction(ctx, transaction); err != nil {
				return err
			}
			result = PostingResult{Wallet: next, Transaction: transaction}
			if posting.Settlement == nil {
				return nil
			}
			settlement := walletStore.newSettlement(*posting.Settlement, current, next, transaction)
			if err := txStore.AppendSettlement(ctx, settlement); err != nil {
				return err
			}
			result.Settlement = &settlement
			return nil
		})
		return result, err
	})
}

// Reverse undoes the balance effect of a transaction still in status from and marks it
// cancelled, together with any settlement record it carried.
func (walletStore *WalletStore) Reverse(ctx context.Context, transactionID TransactionID, from TransactionStatus, annotations map[string]string) (Wallet, Transaction, error) {
	type reversal struct {
		wallet      Wallet
		transaction Transaction
	}
	result, err := retryOnConflict(ctx, walletStore.maxAttempts, walletStore.newBackOff, func() (reversal, error) {
		var outcome reversal
		err := walletStore.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			transaction, err := txStore.GetTransaction(ctx, transactionID)
			if err != nil {
				return err
			}
			if transaction.Status != from {
				return fmt.Errorf("%w: transaction %s is %s", ErrAlreadyProcessed, transactionID, transaction.Status)
			}
			metadata, err := mergeMetadata(transaction.Metadata, annotations)
			if err != nil {
				return err
			}
			current, err := txStore.GetWallet(ctx, transaction.WalletID)
			if err != nil {
				return err
			}
			now := walletStore.nowFn()
			next, err := txStore.ApplyDelta(ctx, deltaFor(current, transaction, now, true))
			if err != nil {
				return err
			}
			if err := txStore.UpdateTransactionStatus(ctx, transactionID, from, TransactionStatusCancelled, metadata); err != nil {
				return err
			}
			if err := txStore.CancelSettlements(ctx, transactionID); err != nil {
				return err
			}
			transaction.Status = TransactionStatusCancelled
			transaction.Metadata = metadata
			outcome = reversal{wallet: next, transaction: transaction}
			return nil
		})
		return outcome, err
	})
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	return result.wallet, result.transaction, nil
}

func (walletStore *WalletStore) newSettlement(draft SettlementDraft, before Wallet, after Wallet, transaction Transaction) SettlementRecord {
	original := draft.OriginalTransactionID
	if original.IsZero() {
		original = transaction.ID
	}
	return SettlementRecord{
		ID:                    walletStore.newID(),
		SettlementWalletID:    after.ID,
		TransactionID:         transaction.ID,
		OriginalTransactionID: original,
		PayerID:               draft.PayerID,
		SubjectID:             draft.SubjectID,
		GrossCents:            draft.Split.GrossCents,
		PlatformCents:         draft.Split.PlatformCents,
		OrganizerCents:        draft.Split.OrganizerCents,
		CommissionPercent:     draft.Split.CommissionPercent,
		BalanceBeforeCents:    before.BalanceCents,
		BalanceAfterCents:     after.BalanceCents,
		Status:                SettlementStatusCompleted,
		CreatedUnixUTC:        transaction.CreatedUnixUTC,
	}
}

func deltaFor(current Wallet, transaction Transaction, now int64, reverse bool) WalletDelta {
	delta := WalletDelta{
		Current:        current,
		Amount:         transaction.SignedAmount(),
		UpdatedUnixUTC: now,
	}
	switch transaction.Type {
	case TransactionDeposit:
		delta.DepositedDelta = transaction.AmountCents.Signed()
	case TransactionWithdraw:
		delta.WithdrawnDelta = transaction.AmountCents.Signed()
	}
	if reverse {
		delta.Amount = -delta.Amount
		delta.DepositedDelta = -delta.DepositedDelta
		delta.WithdrawnDelta = -delta.WithdrawnDelta
	}
	return delta
}

// retryOnConflict reruns operation while it reports ErrBalanceConflict, up to attempts
// times. Any other error stops immediately.
func retryOnConflict[T any](ctx context.Context, attempts uint, newBackOff func() backoff.BackOff, operation func() (T, error)) (T, error) {
	result, err := backoff.Retry(ctx, func() (T, error) {
		value, err := operation()
		if err != nil && !errors.Is(err, ErrBalanceConflict) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(attempts))
	if err == nil {
		return result, nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return result, permanent.Unwrap()
	}
	if errors.Is(err, ErrBalanceConflict) {
		return result, fmt.Errorf("%w: gave up after %d attempts: %w", ErrConcurrencyExceeded, attempts, err)
	}
	return result, err
}
