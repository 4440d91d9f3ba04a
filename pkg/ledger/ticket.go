package ledger

import (
	"context"
	"fmt"
)

// TicketPurchaseRequest buys one ticket. When CategoryID is set the category price is
// authoritative and PriceCents may be left zero.
type TicketPurchaseRequest struct {
	BuyerID    UserID
	EventID    EventID
	CategoryID CategoryID
	PriceCents AmountCents
}

// TicketPurchaseResult reports a completed ticket purchase.
type TicketPurchaseResult struct {
	TicketID          string
	TransactionID     TransactionID
	BuyerBalanceCents AmountCents
	Split             TicketSplit
}

// PurchaseTicket debits the buyer and splits the price between the organizer and the
// platform ticket wallet before issuing the ticket.
func (service *Service) PurchaseTicket(ctx context.Context, request TicketPurchaseRequest) (TicketPurchaseResult, error) {
	result, operationError := service.purchaseTicket(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:   operationPurchaseTicket,
		UserID:      request.BuyerID,
		ReferenceID: request.EventID.String(),
		Amount:      result.Split.GrossCents,
	}, operationError)
	return result, operationError
}

func (service *Service) purchaseTicket(ctx context.Context, request TicketPurchaseRequest) (TicketPurchaseResult, error) {
	if request.BuyerID.IsZero() {
		return TicketPurchaseResult{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if request.EventID.IsZero() {
		return TicketPurchaseResult{}, fmt.Errorf("%w: empty value", ErrInvalidEventID)
	}
	event, err := service.events.GetEvent(ctx, request.EventID)
	if err != nil {
		return TicketPurchaseResult{}, err
	}
	if !event.IsActive || !event.IsApproved {
		return TicketPurchaseResult{}, fmt.Errorf("%w: event %s is not on sale", ErrEventNotPurchasable, event.ID)
	}
	if event.OrganizerID.IsZero() {
		return TicketPurchaseResult{}, fmt.Errorf("%w: event %s has no organizer", ErrEventNotPurchasable, event.ID)
	}
	gross, err := service.ticketPrice(ctx, request)
	if err != nil {
		return TicketPurchaseResult{}, err
	}
	split := SplitTicket(gross, service.ticketCommission)

	buyerWallet, err := service.wallets.GetOrCreate(ctx, request.BuyerID, WalletKindStandard)
	if err != nil {
		return TicketPurchaseResult{Split: split}, err
	}
	if err := ensureFunds(buyerWallet, gross); err != nil {
		return TicketPurchaseResult{Split: split}, err
	}
	organizerWallet, err := service.wallets.GetOrCreate(ctx, event.OrganizerID, WalletKindStandard)
	if err != nil {
		return TicketPurchaseResult{Split: split}, err
	}
	platformWallet, err := service.platform.Resolve(ctx, SettlementPoolTicket)
	if err != nil {
		return TicketPurchaseResult{Split: split}, err
	}

	ticket := Ticket{
		ID:         service.newID(),
		EventID:    request.EventID,
		CategoryID: request.CategoryID,
		BuyerID:    request.BuyerID,
		PriceCents: gross,
		Status:     TicketStatusIssued,
	}
	var debit, organizerCredit, platformCredit PostingResult
	settlementFor := func() *SettlementDraft {
		return &SettlementDraft{
			PayerID:               request.BuyerID,
			SubjectID:             request.EventID.String(),
			OriginalTransactionID: debit.Transaction.ID,
			Split:                 split,
		}
	}
	steps := []SagaStep{{
		Name: stepDebitBuyer,
		Apply: func(ctx context.Context) (err error) {
			debit, err = service.wallets.Post(ctx, Posting{
				WalletID:    buyerWallet.ID,
				UserID:      request.BuyerID,
				Kind:        PurchaseKind{EventID: request.EventID, CategoryID: request.CategoryID},
				AmountCents: gross,
			})
			return err
		},
		Compensate: service.reverseLeg(&debit, operationPurchaseTicket),
	}}
	if split.OrganizerCents > 0 {
		steps = append(steps, SagaStep{
			Name: stepCreditOrganizer,
			Apply: func(ctx context.Context) (err error) {
				posting := Posting{
					WalletID:    organizerWallet.ID,
					UserID:      event.OrganizerID,
					Kind:        DepositKind{Source: DepositSourceTicketSale, ReferenceID: request.EventID.String(), ReferenceType: ReferenceEvent},
					AmountCents: split.OrganizerCents,
				}
				if split.PlatformCents == 0 {
					posting.Settlement = settlementFor()
				}
				organizerCredit, err = service.wallets.Post(ctx, posting)
				return err
			},
			Compensate: service.reverseLeg(&organizerCredit, operationPurchaseTicket),
		})
	}
	if split.PlatformCents > 0 {
		steps = append(steps, SagaStep{
			Name: stepCreditPlatform,
			Apply: func(ctx context.Context) (err error) {
				platformCredit, err = service.wallets.Post(ctx, Posting{
					WalletID:    platformWallet.ID,
					UserID:      platformWallet.OwnerID,
					Kind:        DepositKind{Source: DepositSourceTicketCommission, ReferenceID: request.EventID.String(), ReferenceType: ReferenceEvent},
					AmountCents: split.PlatformCents,
					Settlement:  settlementFor(),
				})
				return err
			},
			Compensate: service.reverseLeg(&platformCredit, operationPurchaseTicket),
		})
	}
	steps = append(steps, SagaStep{
		Name: stepIssueTicket,
		Apply: func(ctx context.Context) error {
			ticket.TransactionID = debit.Transaction.ID
			ticket.CreatedUnixUTC = service.nowFn()
			return service.store.CreateTicket(ctx, ticket)
		},
		Compensate: func(ctx context.Context) error {
			return service.store.UpdateTicketStatus(ctx, ticket.ID, TicketStatusIssued, TicketStatusCancelled)
		},
	})
	if !request.CategoryID.IsZero() {
		steps = append(steps, SagaStep{
			Name: stepDecrementStock,
			Apply: func(ctx context.Context) error {
				return service.events.DecrementStock(ctx, request.CategoryID)
			},
		})
	}
	if err := service.saga.Run(ctx, operationPurchaseTicket, request.EventID.String(), steps); err != nil {
		return TicketPurchaseResult{Split: split}, err
	}
	return TicketPurchaseResult{
		TicketID:          ticket.ID,
		TransactionID:     debit.Transaction.ID,
		BuyerBalanceCents: debit.Wallet.BalanceCents,
		Split:             split,
	}, nil
}

// ticketPrice returns the gross price: the category price when a category is given,
// the requested price otherwise.
func (service *Service) ticketPrice(ctx context.Context, request TicketPurchaseRequest) (AmountCents, error) {
	if request.CategoryID.IsZero() {
		if request.PriceCents <= 0 {
			return 0, fmt.Errorf("%w: ticket price must be at least 0.01", ErrInvalidAmount)
		}
		return NewAmountCents(request.PriceCents.Int64())
	}
	category, err := service.events.GetTicketCategory(ctx, request.CategoryID)
	if err != nil {
		return 0, err
	}
	if category.EventID != request.EventID {
		return 0, validationError("category %s does not belong to event %s", category.ID, request.EventID)
	}
	if category.StockRemaining <= 0 {
		return 0, fmt.Errorf("%w: category %s", ErrStockDepleted, category.ID)
	}
	if category.PriceCents <= 0 {
		return 0, fmt.Errorf("%w: category %s has no price", ErrInvalidAmount, category.ID)
	}
	if request.PriceCents != 0 && request.PriceCents != category.PriceCents {
		return 0, fmt.Errorf("%w: requested %s, category price %s", ErrPriceMismatch, request.PriceCents, category.PriceCents)
	}
	return category.PriceCents, nil
}
