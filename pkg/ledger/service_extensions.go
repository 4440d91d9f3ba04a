package ledger

import "context"

// DepositRequest credits a user's wallet with externally confirmed funds.
type DepositRequest struct {
	UserID        UserID
	AmountCents   AmountCents
	ReferenceID   string
	ReferenceType ReferenceType
	Metadata      MetadataJSON
}

// Deposit credits a user's standard wallet.
func (service *Service) Deposit(ctx context.Context, request DepositRequest) (PostingResult, error) {
	result, operationError := service.deposit(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:   operationDeposit,
		UserID:      request.UserID,
		ReferenceID: request.ReferenceID,
		Amount:      request.AmountCents,
	}, operationError)
	return result, operationError
}

func (service *Service) deposit(ctx context.Context, request DepositRequest) (PostingResult, error) {
	if _, err := NewPositiveAmountCents(request.AmountCents.Int64()); err != nil {
		return PostingResult{}, err
	}
	wallet, err := service.wallets.GetOrCreate(ctx, request.UserID, WalletKindStandard)
	if err != nil {
		return PostingResult{}, err
	}
	referenceType := request.ReferenceType
	if request.ReferenceID != "" && referenceType == ReferenceNone {
		referenceType = ReferencePayment
	}
	return service.wallets.Post(ctx, Posting{
		WalletID:    wallet.ID,
		UserID:      request.UserID,
		Kind:        DepositKind{Source: DepositSourceTopUp, ReferenceID: request.ReferenceID, ReferenceType: referenceType},
		AmountCents: request.AmountCents,
		Metadata:    request.Metadata,
	})
}

// ListTransactions lists the most recent ledger rows of a user's standard wallet.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error) {
	wallet, err := service.wallets.GetOrCreate(ctx, userID, WalletKindStandard)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return service.store.ListTransactions(ctx, wallet.ID, limit)
}
