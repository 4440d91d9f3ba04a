package ledger

import (
	"context"
	"fmt"
)

// WalletDelta is a conditional balance change. It applies only while the stored
// wallet still matches Current's version and balance.
type WalletDelta struct {
	Current        Wallet
	Amount         SignedAmountCents
	DepositedDelta SignedAmountCents
	WithdrawnDelta SignedAmountCents
	UpdatedUnixUTC int64
}

// Next computes the wallet state after the delta. Debits below zero are refused;
// running totals are floored at zero.
func (delta WalletDelta) Next() (Wallet, error) {
	next := delta.Current
	balance := int64(delta.Current.BalanceCents) + int64(delta.Amount)
	if balance < 0 {
		return Wallet{}, &InsufficientBalanceError{CurrentCents: delta.Current.BalanceCents, RequiredCents: AmountCents(-int64(delta.Amount))}
	}
	if balance > maxAmountCents {
		return Wallet{}, fmt.Errorf("%w: balance exceeds maximum", ErrInvalidAmount)
	}
	next.BalanceCents = AmountCents(balance)
	next.TotalDepositedCents = floorAtZero(int64(delta.Current.TotalDepositedCents) + int64(delta.DepositedDelta))
	next.TotalWithdrawnCents = floorAtZero(int64(delta.Current.TotalWithdrawnCents) + int64(delta.WithdrawnDelta))
	next.Version = delta.Current.Version + 1
	next.UpdatedUnixUTC = delta.UpdatedUnixUTC
	return next, nil
}

func floorAtZero(value int64) AmountCents {
	if value < 0 {
		return 0
	}
	return AmountCents(value)
}

// WalletRepository persists wallets. ApplyDelta is the only balance mutation and
// returns ErrBalanceConflict when the stored row no longer matches delta.Current.
type WalletRepository interface {
	GetOrCreateWallet(ctx context.Context, ownerID UserID, kind WalletKind, atUnixUTC int64) (Wallet, error)
	GetWallet(ctx context.Context, walletID WalletID) (Wallet, error)
	ApplyDelta(ctx context.Context, delta WalletDelta) (Wallet, error)
}

// LedgerRepository persists transactions, settlement records and compensation audits.
// UpdateTransactionStatus returns ErrAlreadyProcessed when the stored status is not from.
type LedgerRepository interface {
	AppendTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID TransactionID, from TransactionStatus, to TransactionStatus, metadata MetadataJSON) error
	ListTransactions(ctx context.Context, walletID WalletID, limit int) ([]Transaction, error)
	AppendSettlement(ctx context.Context, settlement SettlementRecord) error
	CancelSettlements(ctx context.Context, transactionID TransactionID) error
	RecordCompensationFailure(ctx context.Context, failure CompensationFailure) error
}

// BoostRepository persists boosts. CreateBoosts returns the active boost count of the
// event, including the new rows, as of atUnixUTC.
type BoostRepository interface {
	CreateBoosts(ctx context.Context, boosts []Boost, atUnixUTC int64) (int64, error)
	CountActiveBoosts(ctx context.Context, eventID EventID, atUnixUTC int64) (int64, error)
	ExpireBoosts(ctx context.Context, atUnixUTC int64) (int64, error)
}

// TicketRepository persists issued tickets.
type TicketRepository interface {
	CreateTicket(ctx context.Context, ticket Ticket) error
	UpdateTicketStatus(ctx context.Context, ticketID string, from TicketStatus, to TicketStatus) error
}

// SubscriptionRepository persists the single subscription row of each user.
// ActivateSubscription writes the row only when the user holds no subscription active
// at atUnixUTC and returns ErrAlreadySubscribed otherwise; UpsertSubscription writes
// unconditionally and is used to restore a previous row.
type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, userID UserID) (Subscription, error)
	ActivateSubscription(ctx context.Context, subscription Subscription, atUnixUTC int64) error
	UpsertSubscription(ctx context.Context, subscription Subscription) error
	DeleteSubscription(ctx context.Context, userID UserID) error
	ListExpiredSubscriptions(ctx context.Context, atUnixUTC int64, limit int) ([]Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, userID UserID, from SubscriptionStatus, to SubscriptionStatus) error
}

// ProfileRepository persists the role and premium flags of users.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID UserID) (Profile, error)
	SaveProfile(ctx context.Context, profile Profile) error
}

// Store is the persistence contract used by Service.
type Store interface {
	WalletRepository
	LedgerRepository
	BoostRepository
	TicketRepository
	SubscriptionRepository
	ProfileRepository
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
}

// EventCatalog is the event system the engine reads events and ticket stock from.
// DecrementStock returns ErrStockDepleted when no stock is left.
type EventCatalog interface {
	GetEvent(ctx context.Context, eventID EventID) (Event, error)
	GetTicketCategory(ctx context.Context, categoryID CategoryID) (TicketCategory, error)
	DecrementStock(ctx context.Context, categoryID CategoryID) error
}

// PlanCatalog resolves premium plans by name.
type PlanCatalog interface {
	GetPlan(ctx context.Context, name string) (Plan, error)
}

// BoostPriceCatalog resolves boost prices; ErrNotFound selects the built-in price.
type BoostPriceCatalog interface {
	GetBoostPrice(ctx context.Context, boostType BoostType) (BoostPrice, error)
}

// Catalogs groups the read-only collaborators of Service.
type Catalogs struct {
	Events      EventCatalog
	Plans       PlanCatalog
	BoostPrices BoostPriceCatalog
}

// WalletDrift is a wallet whose balance differs from the signed sum of its
// non-cancelled transactions.
type WalletDrift struct {
	WalletID       WalletID
	OwnerID        UserID
	Kind           WalletKind
	BalanceCents   AmountCents
	LedgerSumCents SignedAmountCents
}

// ReconciliationReader reports ledger drift and unresolved compensation failures.
type ReconciliationReader interface {
	WalletDrift(ctx context.Context) ([]WalletDrift, error)
	CompensationFailures(ctx context.Context, sinceUnixUTC int64, limit int) ([]CompensationFailure, error)
}
