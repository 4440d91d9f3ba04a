package ledger

import (
	"context"
	"errors"
	"testing"
)

type ticketFixture struct {
	store    *stubStore
	catalog  *stubCatalog
	event    EventID
	category CategoryID
	buyer    Wallet
}

func newTicketFixture(test *testing.T, buyerBalance int64, price int64, stock int64) ticketFixture {
	test.Helper()
	store := newStubStore()
	catalog := newStubCatalog()
	event := catalog.addEvent(test, "event-1", "organizer")
	return ticketFixture{
		store:    store,
		catalog:  catalog,
		event:    event,
		category: catalog.addCategory(test, event, "category-1", price, stock),
		buyer:    store.seedWallet(test, "buyer", buyerBalance),
	}
}

func (fixture ticketFixture) request() TicketPurchaseRequest {
	return TicketPurchaseRequest{BuyerID: fixture.buyer.OwnerID, EventID: fixture.event, CategoryID: fixture.category}
}

func (fixture ticketFixture) ticketStatuses() []TicketStatus {
	fixture.store.mu.Lock()
	defer fixture.store.mu.Unlock()
	var statuses []TicketStatus
	for _, ticket := range fixture.store.state.tickets {
		statuses = append(statuses, ticket.Status)
	}
	return statuses
}

func (fixture ticketFixture) assertUntouched(test *testing.T, buyerBalance AmountCents) {
	test.Helper()
	if got := fixture.store.balanceOf(test, "buyer"); got != buyerBalance {
		test.Fatalf("expected buyer balance %s, got %s", buyerBalance, got)
	}
	if got := fixture.store.balanceOf(test, "organizer"); got != 0 {
		test.Fatalf("expected organizer balance 0, got %s", got)
	}
	if got := fixture.store.platformBalance(test, WalletKindPlatformTicket); got != 0 {
		test.Fatalf("expected platform ticket balance 0, got %s", got)
	}
	fixture.store.assertLedgerInvariant(test)
}

func TestPurchaseTicketSplitsCommission(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 20000, 10000, 5)
	service := mustNewService(test, fixture.store, fixture.catalog)

	result, err := service.PurchaseTicket(context.Background(), fixture.request())
	if err != nil {
		test.Fatalf("purchase ticket: %v", err)
	}
	if result.Split.OrganizerCents.String() != "90.00" || result.Split.PlatformCents.String() != "10.00" {
		test.Fatalf("unexpected split %+v", result.Split)
	}
	if result.BuyerBalanceCents.String() != "100.00" || fixture.store.balanceOf(test, "buyer") != 10000 {
		test.Fatalf("expected buyer balance 100.00, got %s", result.BuyerBalanceCents)
	}
	if got := fixture.store.balanceOf(test, "organizer"); got != 9000 {
		test.Fatalf("expected organizer 90.00, got %s", got)
	}
	if got := fixture.store.platformBalance(test, WalletKindPlatformTicket); got != 1000 {
		test.Fatalf("expected platform ticket wallet 10.00, got %s", got)
	}
	if remaining := fixture.catalog.categories[fixture.category].StockRemaining; remaining != 4 {
		test.Fatalf("expected stock 4, got %d", remaining)
	}
	statuses := fixture.ticketStatuses()
	if len(statuses) != 1 || statuses[0] != TicketStatusIssued {
		test.Fatalf("expected one issued ticket, got %v", statuses)
	}
	settlements := fixture.store.settlementsSnapshot()
	if len(settlements) != 1 {
		test.Fatalf("expected one settlement, got %d", len(settlements))
	}
	settlement := settlements[0]
	if settlement.OriginalTransactionID != result.TransactionID || settlement.PayerID != fixture.buyer.OwnerID || settlement.SubjectID != "event-1" {
		test.Fatalf("unexpected settlement references %+v", settlement)
	}
	if settlement.GrossCents != 10000 || settlement.PlatformCents != 1000 || settlement.OrganizerCents != 9000 || settlement.CommissionPercent != 10 {
		test.Fatalf("unexpected settlement amounts %+v", settlement)
	}
	if settlement.BalanceBeforeCents != 0 || settlement.BalanceAfterCents != 1000 {
		test.Fatalf("unexpected settlement balances %+v", settlement)
	}
	fixture.store.assertLedgerInvariant(test)
}

func TestPurchaseTicketWithoutCommissionSettlesOnOrganizerLeg(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 5000, 5000, 1)
	service := mustNewService(test, fixture.store, fixture.catalog, WithTicketCommissionPercent(0))

	if _, err := service.PurchaseTicket(context.Background(), fixture.request()); err != nil {
		test.Fatalf("purchase ticket: %v", err)
	}
	if fixture.store.balanceOf(test, "organizer") != 5000 {
		test.Fatalf("expected organizer to receive the full price")
	}
	platform := fixture.store.walletOf(test, PlatformOwner, WalletKindPlatformTicket)
	if platform.BalanceCents != 0 || len(fixture.store.transactionsOf(platform.ID)) != 0 {
		test.Fatalf("expected no platform ticket movement, got %+v", platform)
	}
	settlements := fixture.store.settlementsSnapshot()
	organizer := fixture.store.walletOf(test, "organizer", WalletKindStandard)
	if len(settlements) != 1 || settlements[0].SettlementWalletID != organizer.ID || settlements[0].OrganizerCents != 5000 {
		test.Fatalf("expected settlement on organizer leg, got %+v", settlements)
	}
}

func TestPurchaseTicketRejectsBeforeMovingMoney(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name    string
		balance int64
		stock   int64
		mutate  func(test *testing.T, fixture ticketFixture, request *TicketPurchaseRequest)
		wantErr error
	}{
		{name: "stock depleted", balance: 20000, stock: 0, wantErr: ErrStockDepleted},
		{name: "insufficient balance", balance: 9999, stock: 1, wantErr: ErrInsufficientBalance},
		{
			name: "price mismatch", balance: 20000, stock: 1, wantErr: ErrPriceMismatch,
			mutate: func(_ *testing.T, _ ticketFixture, request *TicketPurchaseRequest) { request.PriceCents = 5000 },
		},
		{
			name: "event not approved", balance: 20000, stock: 1, wantErr: ErrEventNotPurchasable,
			mutate: func(_ *testing.T, fixture ticketFixture, _ *TicketPurchaseRequest) {
				event := fixture.catalog.events[fixture.event]
				event.IsApproved = false
				fixture.catalog.events[fixture.event] = event
			},
		},
		{
			name: "category of another event", balance: 20000, stock: 1, wantErr: ErrValidation,
			mutate: func(test *testing.T, fixture ticketFixture, request *TicketPurchaseRequest) {
				request.CategoryID = fixture.catalog.addCategory(test, mustEventID(test, "event-2"), "category-2", 10000, 1)
			},
		},
		{
			name: "no category and no price", balance: 20000, stock: 1, wantErr: ErrInvalidAmount,
			mutate: func(_ *testing.T, _ ticketFixture, request *TicketPurchaseRequest) { request.CategoryID = CategoryID{} },
		},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			fixture := newTicketFixture(test, testCase.balance, 10000, testCase.stock)
			request := fixture.request()
			if testCase.mutate != nil {
				testCase.mutate(test, fixture, &request)
			}
			service := mustNewService(test, fixture.store, fixture.catalog)
			_, err := service.PurchaseTicket(context.Background(), request)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
			fixture.assertUntouched(test, AmountCents(testCase.balance))
			if len(fixture.ticketStatuses()) != 0 {
				test.Fatalf("expected no ticket")
			}
		})
	}
}

func TestPurchaseTicketCompensatesWhenStockRunsOutConcurrently(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 20000, 10000, 1)
	fixture.catalog.decrementError = ErrStockDepleted
	logger := &recorderLogger{}
	service := mustNewService(test, fixture.store, fixture.catalog, WithOperationLogger(logger))

	_, err := service.PurchaseTicket(context.Background(), fixture.request())
	if !errors.Is(err, ErrStockDepleted) {
		test.Fatalf("expected ErrStockDepleted, got %v", err)
	}
	if errors.Is(err, ErrCompensationFailed) {
		test.Fatalf("expected every leg to be compensated, got %v", err)
	}
	fixture.assertUntouched(test, 20000)
	statuses := fixture.ticketStatuses()
	if len(statuses) != 1 || statuses[0] != TicketStatusCancelled {
		test.Fatalf("expected cancelled ticket, got %v", statuses)
	}
	settlements := fixture.store.settlementsSnapshot()
	if len(settlements) != 1 || settlements[0].Status != SettlementStatusCancelled {
		test.Fatalf("expected cancelled settlement, got %+v", settlements)
	}
	for _, transaction := range fixture.store.transactionsOf(fixture.buyer.ID)[1:] {
		if transaction.Status != TransactionStatusCancelled || transaction.Metadata.String() != `{"compensated_by":"purchase_ticket"}` {
			test.Fatalf("expected annotated cancelled debit, got %+v", transaction)
		}
	}
	if got := len(logger.withStatus(operationStatusCompensated)); got != 1 {
		test.Fatalf("expected compensated log entry, got %d", got)
	}
}

func TestPurchaseTicketCompensatesDebitWhenOrganizerCreditFails(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 20000, 10000, 3)
	organizer := mustUserID(test, "organizer")
	fixture.store.hooks.applyDeltaError = func(delta WalletDelta) error {
		if delta.Current.OwnerID == organizer {
			return errors.New("organizer wallet locked")
		}
		return nil
	}
	service := mustNewService(test, fixture.store, fixture.catalog)

	_, err := service.PurchaseTicket(context.Background(), fixture.request())
	if err == nil || errors.Is(err, ErrCompensationFailed) {
		test.Fatalf("expected compensated failure, got %v", err)
	}
	fixture.assertUntouched(test, 20000)
	if remaining := fixture.catalog.categories[fixture.category].StockRemaining; remaining != 3 {
		test.Fatalf("expected stock untouched, got %d", remaining)
	}
}

func TestPurchaseTicketRecordsFailedCompensation(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 20000, 10000, 1)
	fixture.catalog.decrementError = ErrStockDepleted
	buyer := fixture.buyer.OwnerID
	fixture.store.hooks.applyDeltaError = func(delta WalletDelta) error {
		if delta.Current.OwnerID == buyer && delta.Amount > 0 {
			return errors.New("buyer wallet locked")
		}
		return nil
	}
	service := mustNewService(test, fixture.store, fixture.catalog, WithMaxCompensationAttempts(2))

	_, err := service.PurchaseTicket(context.Background(), fixture.request())
	var compensationErr *CompensationFailedError
	if !errors.As(err, &compensationErr) {
		test.Fatalf("expected CompensationFailedError, got %v", err)
	}
	if !errors.Is(err, ErrStockDepleted) || compensationErr.Flow != operationPurchaseTicket {
		test.Fatalf("unexpected compensation error %v", err)
	}
	failures := fixture.store.failuresSnapshot()
	if len(failures) != 1 || failures[0].Step != stepDebitBuyer || failures[0].ReferenceID != "event-1" {
		test.Fatalf("expected one recorded debit failure, got %+v", failures)
	}
	if fixture.store.balanceOf(test, "organizer") != 0 || fixture.store.platformBalance(test, WalletKindPlatformTicket) != 0 {
		test.Fatalf("expected credits to be reversed")
	}
	if fixture.store.balanceOf(test, "buyer") != 10000 {
		test.Fatalf("expected buyer debit to remain for reconciliation")
	}
	fixture.store.assertLedgerInvariant(test)
}

func TestPurchaseTicketCompletesAfterCallerCancels(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 20000, 10000, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixture.store.hooks.afterAppend = func(transaction Transaction) {
		if transaction.Type == TransactionPurchase {
			cancel()
		}
	}
	service := mustNewService(test, fixture.store, fixture.catalog)

	if _, err := service.PurchaseTicket(ctx, fixture.request()); err != nil {
		test.Fatalf("expected purchase to complete, got %v", err)
	}
	if fixture.store.balanceOf(test, "organizer") != 9000 || fixture.store.platformBalance(test, WalletKindPlatformTicket) != 1000 {
		test.Fatalf("expected both credits after cancellation")
	}
	fixture.store.assertLedgerInvariant(test)
}

func TestPurchaseTicketCompensatesAfterCallerCancels(test *testing.T) {
	test.Parallel()
	fixture := newTicketFixture(test, 20000, 10000, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixture.catalog.onDecrement = cancel
	fixture.catalog.decrementError = errors.New("inventory unavailable")
	service := mustNewService(test, fixture.store, fixture.catalog)

	if _, err := service.PurchaseTicket(ctx, fixture.request()); err == nil {
		test.Fatalf("expected failure")
	}
	fixture.assertUntouched(test, 20000)
}
