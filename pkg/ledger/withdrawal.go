package ledger

import (
	"context"
	"fmt"
	"strings"
)

// RequestWithdrawal holds the amount immediately as a pending withdraw transaction.
func (service *Service) RequestWithdrawal(ctx context.Context, userID UserID, amount AmountCents) (PostingResult, error) {
	result, operationError := service.requestWithdrawal(ctx, userID, amount)
	service.logOperation(ctx, OperationLog{
		Operation:   operationRequestWithdrawal,
		UserID:      userID,
		ReferenceID: result.Transaction.ID.String(),
		Amount:      amount,
	}, operationError)
	return result, operationError
}

func (service *Service) requestWithdrawal(ctx context.Context, userID UserID, amount AmountCents) (PostingResult, error) {
	if _, err := NewPositiveAmountCents(amount.Int64()); err != nil {
		return PostingResult{}, err
	}
	wallet, err := service.wallets.GetOrCreate(ctx, userID, WalletKindStandard)
	if err != nil {
		return PostingResult{}, err
	}
	if err := ensureFunds(wallet, amount); err != nil {
		return PostingResult{}, err
	}
	return service.wallets.Post(ctx, Posting{
		WalletID:    wallet.ID,
		UserID:      userID,
		Kind:        WithdrawKind{},
		AmountCents: amount,
		Status:      TransactionStatusPending,
	})
}

// ApproveWithdrawal completes a pending withdrawal. The balance was already debited.
func (service *Service) ApproveWithdrawal(ctx context.Context, actor Actor, transactionID TransactionID) (Transaction, error) {
	transaction, operationError := service.approveWithdrawal(ctx, actor, transactionID)
	service.logOperation(ctx, OperationLog{
		Operation:   operationApproveWithdrawal,
		UserID:      actor.UserID,
		ReferenceID: transactionID.String(),
		Amount:      transaction.AmountCents,
	}, operationError)
	return transaction, operationError
}

func (service *Service) approveWithdrawal(ctx context.Context, actor Actor, transactionID TransactionID) (Transaction, error) {
	if err := authorizeStaff(actor); err != nil {
		return Transaction{}, err
	}
	var approved Transaction
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		transaction, err := pendingWithdrawal(ctx, txStore, transactionID)
		if err != nil {
			return err
		}
		metadata, err := mergeMetadata(transaction.Metadata, map[string]string{"approved_by": actor.UserID.String()})
		if err != nil {
			return err
		}
		if err := txStore.UpdateTransactionStatus(ctx, transactionID, TransactionStatusPending, TransactionStatusCompleted, metadata); err != nil {
			return err
		}
		transaction.Status = TransactionStatusCompleted
		transaction.Metadata = metadata
		approved = transaction
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return approved, nil
}

// RejectWithdrawal cancels a pending withdrawal and returns the funds.
func (service *Service) RejectWithdrawal(ctx context.Context, actor Actor, transactionID TransactionID, reason string) (Transaction, error) {
	transaction, operationError := service.rejectWithdrawal(ctx, actor, transactionID, reason)
	service.logOperation(ctx, OperationLog{
		Operation:   operationRejectWithdrawal,
		UserID:      actor.UserID,
		ReferenceID: transactionID.String(),
		Amount:      transaction.AmountCents,
	}, operationError)
	return transaction, operationError
}

func (service *Service) rejectWithdrawal(ctx context.Context, actor Actor, transactionID TransactionID, reason string) (Transaction, error) {
	if err := authorizeStaff(actor); err != nil {
		return Transaction{}, err
	}
	if _, err := pendingWithdrawal(ctx, service.store, transactionID); err != nil {
		return Transaction{}, err
	}
	_, rejected, err := service.wallets.Reverse(ctx, transactionID, TransactionStatusPending, map[string]string{
		"rejected_by":      actor.UserID.String(),
		"rejection_reason": strings.TrimSpace(reason),
	})
	if err != nil {
		return Transaction{}, err
	}
	return rejected, nil
}

func pendingWithdrawal(ctx context.Context, store LedgerRepository, transactionID TransactionID) (Transaction, error) {
	if transactionID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	transaction, err := store.GetTransaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	if transaction.Type != TransactionWithdraw {
		return Transaction{}, notFoundError("withdrawal", transactionID.String())
	}
	if transaction.Status != TransactionStatusPending {
		return Transaction{}, fmt.Errorf("%w: withdrawal %s is %s", ErrAlreadyProcessed, transactionID, transaction.Status)
	}
	return transaction, nil
}

func authorizeStaff(actor Actor) error {
	if actor.UserID.IsZero() {
		return fmt.Errorf("%w: anonymous actor", ErrAuthorization)
	}
	if !actor.IsStaff() {
		return fmt.Errorf("%w: %s is not staff", ErrAuthorization, actor.UserID)
	}
	return nil
}
