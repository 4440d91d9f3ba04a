package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
)

const fixedNowUnixUTC int64 = 1_700_000_000

type stubState struct {
	wallets       map[WalletID]Wallet
	walletIndex   map[string]WalletID
	transactions  map[TransactionID]Transaction
	order         []TransactionID
	settlements   []SettlementRecord
	failures      []CompensationFailure
	boosts        []Boost
	tickets       map[string]Ticket
	subscriptions map[UserID]Subscription
	profiles      map[UserID]Profile
}

func newStubState() *stubState {
	return &stubState{
		wallets:       map[WalletID]Wallet{},
		walletIndex:   map[string]WalletID{},
		transactions:  map[TransactionID]Transaction{},
		tickets:       map[string]Ticket{},
		subscriptions: map[UserID]Subscription{},
		profiles:      map[UserID]Profile{},
	}
}

func (state *stubState) clone() *stubState {
	cloned := newStubState()
	for key, value := range state.wallets {
		cloned.wallets[key] = value
	}
	for key, value := range state.walletIndex {
		cloned.walletIndex[key] = value
	}
	for key, value := range state.transactions {
		cloned.transactions[key] = value
	}
	cloned.order = append(cloned.order, state.order...)
	cloned.settlements = append(cloned.settlements, state.settlements...)
	cloned.failures = append(cloned.failures, state.failures...)
	cloned.boosts = append(cloned.boosts, state.boosts...)
	for key, value := range state.tickets {
		cloned.tickets[key] = value
	}
	for key, value := range state.subscriptions {
		cloned.subscriptions[key] = value
	}
	for key, value := range state.profiles {
		cloned.profiles[key] = value
	}
	return cloned
}

// stubHooks inject failures; they survive rollbacks.
type stubHooks struct {
	conflicts             map[WalletID]int
	applyDeltaError       func(delta WalletDelta) error
	afterAppend           func(transaction Transaction)
	appendSettlementError error
	createBoostsError     error
	createTicketError     error
	saveProfileError      func(profile Profile) error
	recordFailureError    error
	getWalletError        error
	listError             error
	expireBoostsError     error
	applyDeltaCalls       int
}

// stubStore is an in-memory Store. WithTx serializes on a mutex and rolls back state on error.
type stubStore struct {
	mu    sync.Mutex
	state *stubState
	hooks *stubHooks
}

func newStubStore() *stubStore {
	return &stubStore{state: newStubState(), hooks: &stubHooks{conflicts: map[WalletID]int{}}}
}

type stubTx struct {
	store *stubStore
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshot := store.state.clone()
	if err := fn(ctx, &stubTx{store: store}); err != nil {
		store.state = snapshot
		return err
	}
	return nil
}

func (store *stubStore) locked(fn func(tx *stubTx) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	return fn(&stubTx{store: store})
}

func (store *stubStore) GetOrCreateWallet(ctx context.Context, ownerID UserID, kind WalletKind, atUnixUTC int64) (wallet Wallet, err error) {
	err = store.locked(func(tx *stubTx) error {
		wallet, err = tx.GetOrCreateWallet(ctx, ownerID, kind, atUnixUTC)
		return err
	})
	return wallet, err
}

func (store *stubStore) GetWallet(ctx context.Context, walletID WalletID) (wallet Wallet, err error) {
	err = store.locked(func(tx *stubTx) error {
		wallet, err = tx.GetWallet(ctx, walletID)
		return err
	})
	return wallet, err
}

func (store *stubStore) ApplyDelta(ctx context.Context, delta WalletDelta) (wallet Wallet, err error) {
	err = store.locked(func(tx *stubTx) error {
		wallet, err = tx.ApplyDelta(ctx, delta)
		return err
	})
	return wallet, err
}

func (store *stubStore) AppendTransaction(ctx context.Context, transaction Transaction) error {
	return store.locked(func(tx *stubTx) error { return tx.AppendTransaction(ctx, transaction) })
}

func (store *stubStore) GetTransaction(ctx context.Context, transactionID TransactionID) (transaction Transaction, err error) {
	err = store.locked(func(tx *stubTx) error {
		transaction, err = tx.GetTransaction(ctx, transactionID)
		return err
	})
	return transaction, err
}

func (store *stubStore) UpdateTransactionStatus(ctx context.Context, transactionID TransactionID, from TransactionStatus, to TransactionStatus, metadata MetadataJSON) error {
	return store.locked(func(tx *stubTx) error {
		return tx.UpdateTransactionStatus(ctx, transactionID, from, to, metadata)
	})
}

func (store *stubStore) ListTransactions(ctx context.Context, walletID WalletID, limit int) (transactions []Transaction, err error) {
	err = store.locked(func(tx *stubTx) error {
		transactions, err = tx.ListTransactions(ctx, walletID, limit)
		return err
	})
	return transactions, err
}

func (store *stubStore) AppendSettlement(ctx context.Context, settlement SettlementRecord) error {
	return store.locked(func(tx *stubTx) error { return tx.AppendSettlement(ctx, settlement) })
}

func (store *stubStore) CancelSettlements(ctx context.Context, transactionID TransactionID) error {
	return store.locked(func(tx *stubTx) error { return tx.CancelSettlements(ctx, transactionID) })
}

func (store *stubStore) RecordCompensationFailure(ctx context.Context, failure CompensationFailure) error {
	return store.locked(func(tx *stubTx) error { return tx.RecordCompensationFailure(ctx, failure) })
}

func (store *stubStore) CreateBoosts(ctx context.Context, boosts []Boost, atUnixUTC int64) (count int64, err error) {
	err = store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		count, err = txStore.CreateBoosts(ctx, boosts, atUnixUTC)
		return err
	})
	return count, err
}

func (store *stubStore) CountActiveBoosts(ctx context.Context, eventID EventID, atUnixUTC int64) (count int64, err error) {
	err = store.locked(func(tx *stubTx) error {
		count, err = tx.CountActiveBoosts(ctx, eventID, atUnixUTC)
		return err
	})
	return count, err
}

func (store *stubStore) ExpireBoosts(ctx context.Context, atUnixUTC int64) (count int64, err error) {
	err = store.locked(func(tx *stubTx) error {
		count, err = tx.ExpireBoosts(ctx, atUnixUTC)
		return err
	})
	return count, err
}

func (store *stubStore) CreateTicket(ctx context.Context, ticket Ticket) error {
	return store.locked(func(tx *stubTx) error { return tx.CreateTicket(ctx, ticket) })
}

func (store *stubStore) UpdateTicketStatus(ctx context.Context, ticketID string, from TicketStatus, to TicketStatus) error {
	return store.locked(func(tx *stubTx) error { return tx.UpdateTicketStatus(ctx, ticketID, from, to) })
}

func (store *stubStore) GetSubscription(ctx context.Context, userID UserID) (subscription Subscription, err error) {
	err = store.locked(func(tx *stubTx) error {
		subscription, err = tx.GetSubscription(ctx, userID)
		return err
	})
	return subscription, err
}

func (store *stubStore) ActivateSubscription(ctx context.Context, subscription Subscription, atUnixUTC int64) error {
	return store.locked(func(tx *stubTx) error { return tx.ActivateSubscription(ctx, subscription, atUnixUTC) })
}

func (store *stubStore) UpsertSubscription(ctx context.Context, subscription Subscription) error {
	return store.locked(func(tx *stubTx) error { return tx.UpsertSubscription(ctx, subscription) })
}

func (store *stubStore) DeleteSubscription(ctx context.Context, userID UserID) error {
	return store.locked(func(tx *stubTx) error { return tx.DeleteSubscription(ctx, userID) })
}

func (store *stubStore) ListExpiredSubscriptions(ctx context.Context, atUnixUTC int64, limit int) (subscriptions []Subscription, err error) {
	err = store.locked(func(tx *stubTx) error {
		subscriptions, err = tx.ListExpiredSubscriptions(ctx, atUnixUTC, limit)
		return err
	})
	return subscriptions, err
}

func (store *stubStore) UpdateSubscriptionStatus(ctx context.Context, userID UserID, from SubscriptionStatus, to SubscriptionStatus) error {
	return store.locked(func(tx *stubTx) error { return tx.UpdateSubscriptionStatus(ctx, userID, from, to) })
}

func (store *stubStore) GetProfile(ctx context.Context, userID UserID) (profile Profile, err error) {
	err = store.locked(func(tx *stubTx) error {
		profile, err = tx.GetProfile(ctx, userID)
		return err
	})
	return profile, err
}

func (store *stubStore) SaveProfile(ctx context.Context, profile Profile) error {
	return store.locked(func(tx *stubTx) error { return tx.SaveProfile(ctx, profile) })
}

func (tx *stubTx) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, tx)
}

func (tx *stubTx) GetOrCreateWallet(_ context.Context, ownerID UserID, kind WalletKind, atUnixUTC int64) (Wallet, error) {
	state := tx.store.state
	key := ownerID.String() + "/" + string(kind)
	if walletID, ok := state.walletIndex[key]; ok {
		return state.wallets[walletID], nil
	}
	walletID := WalletID{value: "wallet-" + ownerID.String() + "-" + string(kind)}
	wallet := Wallet{ID: walletID, OwnerID: ownerID, Kind: kind, CreatedUnixUTC: atUnixUTC, UpdatedUnixUTC: atUnixUTC}
	state.walletIndex[key] = walletID
	state.wallets[walletID] = wallet
	return wallet, nil
}

func (tx *stubTx) GetWallet(_ context.Context, walletID WalletID) (Wallet, error) {
	if tx.store.hooks.getWalletError != nil {
		return Wallet{}, tx.store.hooks.getWalletError
	}
	wallet, ok := tx.store.state.wallets[walletID]
	if !ok {
		return Wallet{}, notFoundError("wallet", walletID.String())
	}
	return wallet, nil
}

func (tx *stubTx) ApplyDelta(_ context.Context, delta WalletDelta) (Wallet, error) {
	hooks := tx.store.hooks
	hooks.applyDeltaCalls++
	if remaining := hooks.conflicts[delta.Current.ID]; remaining > 0 {
		hooks.conflicts[delta.Current.ID] = remaining - 1
		return Wallet{}, fmt.Errorf("%w: injected", ErrBalanceConflict)
	}
	if hooks.applyDeltaError != nil {
		if err := hooks.applyDeltaError(delta); err != nil {
			return Wallet{}, err
		}
	}
	stored, ok := tx.store.state.wallets[delta.Current.ID]
	if !ok {
		return Wallet{}, notFoundError("wallet", delta.Current.ID.String())
	}
	if stored.Version != delta.Current.Version || stored.BalanceCents != delta.Current.BalanceCents {
		return Wallet{}, ErrBalanceConflict
	}
	next, err := delta.Next()
	if err != nil {
		return Wallet{}, err
	}
	tx.store.state.wallets[next.ID] = next
	return next, nil
}

func (tx *stubTx) AppendTransaction(_ context.Context, transaction Transaction) error {
	state := tx.store.state
	if _, exists := state.transactions[transaction.ID]; exists {
		return fmt.Errorf("duplicate transaction %s", transaction.ID)
	}
	state.transactions[transaction.ID] = transaction
	state.order = append(state.order, transaction.ID)
	if tx.store.hooks.afterAppend != nil {
		tx.store.hooks.afterAppend(transaction)
	}
	return nil
}

func (tx *stubTx) GetTransaction(_ context.Context, transactionID TransactionID) (Transaction, error) {
	transaction, ok := tx.store.state.transactions[transactionID]
	if !ok {
		return Transaction{}, notFoundError("transaction", transactionID.String())
	}
	return transaction, nil
}

func (tx *stubTx) UpdateTransactionStatus(_ context.Context, transactionID TransactionID, from TransactionStatus, to TransactionStatus, metadata MetadataJSON) error {
	transaction, ok := tx.store.state.transactions[transactionID]
	if !ok {
		return notFoundError("transaction", transactionID.String())
	}
	if transaction.Status != from {
		return ErrAlreadyProcessed
	}
	transaction.Status = to
	transaction.Metadata = metadata
	tx.store.state.transactions[transactionID] = transaction
	return nil
}

func (tx *stubTx) ListTransactions(_ context.Context, walletID WalletID, limit int) ([]Transaction, error) {
	if tx.store.hooks.listError != nil {
		return nil, tx.store.hooks.listError
	}
	var listed []Transaction
	for index := len(tx.store.state.order) - 1; index >= 0 && len(listed) < limit; index-- {
		transaction := tx.store.state.transactions[tx.store.state.order[index]]
		if transaction.WalletID == walletID {
			listed = append(listed, transaction)
		}
	}
	return listed, nil
}

func (tx *stubTx) AppendSettlement(_ context.Context, settlement SettlementRecord) error {
	if tx.store.hooks.appendSettlementError != nil {
		return tx.store.hooks.appendSettlementError
	}
	tx.store.state.settlements = append(tx.store.state.settlements, settlement)
	return nil
}

func (tx *stubTx) CancelSettlements(_ context.Context, transactionID TransactionID) error {
	for index, settlement := range tx.store.state.settlements {
		if settlement.TransactionID == transactionID && settlement.Status == SettlementStatusCompleted {
			tx.store.state.settlements[index].Status = SettlementStatusCancelled
		}
	}
	return nil
}

func (tx *stubTx) RecordCompensationFailure(_ context.Context, failure CompensationFailure) error {
	if tx.store.hooks.recordFailureError != nil {
		return tx.store.hooks.recordFailureError
	}
	tx.store.state.failures = append(tx.store.state.failures, failure)
	return nil
}

func (tx *stubTx) CreateBoosts(ctx context.Context, boosts []Boost, atUnixUTC int64) (int64, error) {
	if tx.store.hooks.createBoostsError != nil {
		return 0, tx.store.hooks.createBoostsError
	}
	tx.store.state.boosts = append(tx.store.state.boosts, boosts...)
	if len(boosts) == 0 {
		return 0, nil
	}
	return tx.CountActiveBoosts(ctx, boosts[0].EventID, atUnixUTC)
}

func (tx *stubTx) CountActiveBoosts(_ context.Context, eventID EventID, atUnixUTC int64) (int64, error) {
	var count int64
	for _, boost := range tx.store.state.boosts {
		if boost.EventID == eventID && boost.Status == BoostStatusActive && boost.ExpiresUnixUTC > atUnixUTC {
			count++
		}
	}
	return count, nil
}

func (tx *stubTx) ExpireBoosts(_ context.Context, atUnixUTC int64) (int64, error) {
	if tx.store.hooks.expireBoostsError != nil {
		return 0, tx.store.hooks.expireBoostsError
	}
	var count int64
	for index, boost := range tx.store.state.boosts {
		if boost.Status == BoostStatusActive && boost.ExpiresUnixUTC <= atUnixUTC {
			tx.store.state.boosts[index].Status = BoostStatusExpired
			count++
		}
	}
	return count, nil
}

func (tx *stubTx) CreateTicket(_ context.Context, ticket Ticket) error {
	if tx.store.hooks.createTicketError != nil {
		return tx.store.hooks.createTicketError
	}
	tx.store.state.tickets[ticket.ID] = ticket
	return nil
}

func (tx *stubTx) UpdateTicketStatus(_ context.Context, ticketID string, from TicketStatus, to TicketStatus) error {
	ticket, ok := tx.store.state.tickets[ticketID]
	if !ok {
		return notFoundError("ticket", ticketID)
	}
	if ticket.Status != from {
		return ErrAlreadyProcessed
	}
	ticket.Status = to
	tx.store.state.tickets[ticketID] = ticket
	return nil
}

func (tx *stubTx) GetSubscription(_ context.Context, userID UserID) (Subscription, error) {
	subscription, ok := tx.store.state.subscriptions[userID]
	if !ok {
		return Subscription{}, notFoundError("subscription", userID.String())
	}
	return subscription, nil
}

func (tx *stubTx) ActivateSubscription(_ context.Context, subscription Subscription, atUnixUTC int64) error {
	if current, ok := tx.store.state.subscriptions[subscription.UserID]; ok && current.IsActiveAt(atUnixUTC) {
		return fmt.Errorf("%w: plan %s", ErrAlreadySubscribed, current.PlanName)
	}
	tx.store.state.subscriptions[subscription.UserID] = subscription
	return nil
}

func (tx *stubTx) UpsertSubscription(_ context.Context, subscription Subscription) error {
	tx.store.state.subscriptions[subscription.UserID] = subscription
	return nil
}

func (tx *stubTx) DeleteSubscription(_ context.Context, userID UserID) error {
	delete(tx.store.state.subscriptions, userID)
	return nil
}

func (tx *stubTx) ListExpiredSubscriptions(_ context.Context, atUnixUTC int64, limit int) ([]Subscription, error) {
	var expired []Subscription
	for _, subscription := range tx.store.state.subscriptions {
		if subscription.Status == SubscriptionStatusActive && subscription.ExpiresUnixUTC <= atUnixUTC {
			expired = append(expired, subscription)
		}
	}
	sort.Slice(expired, func(left, right int) bool {
		return expired[left].UserID.String() < expired[right].UserID.String()
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (tx *stubTx) UpdateSubscriptionStatus(_ context.Context, userID UserID, from SubscriptionStatus, to SubscriptionStatus) error {
	subscription, ok := tx.store.state.subscriptions[userID]
	if !ok {
		return notFoundError("subscription", userID.String())
	}
	if subscription.Status != from {
		return ErrAlreadyProcessed
	}
	subscription.Status = to
	tx.store.state.subscriptions[userID] = subscription
	return nil
}

func (tx *stubTx) GetProfile(_ context.Context, userID UserID) (Profile, error) {
	profile, ok := tx.store.state.profiles[userID]
	if !ok {
		return Profile{}, notFoundError("profile", userID.String())
	}
	return profile, nil
}

func (tx *stubTx) SaveProfile(_ context.Context, profile Profile) error {
	if tx.store.hooks.saveProfileError != nil {
		if err := tx.store.hooks.saveProfileError(profile); err != nil {
			return err
		}
	}
	tx.store.state.profiles[profile.UserID] = profile
	return nil
}

// test accessors

func (store *stubStore) seedWallet(test *testing.T, owner string, balance int64) Wallet {
	test.Helper()
	var seeded Wallet
	err := store.locked(func(tx *stubTx) error {
		wallet, err := tx.GetOrCreateWallet(context.Background(), mustUserID(test, owner), WalletKindStandard, fixedNowUnixUTC)
		if err != nil {
			return err
		}
		wallet.BalanceCents = AmountCents(balance)
		wallet.TotalDepositedCents = AmountCents(balance)
		tx.store.state.wallets[wallet.ID] = wallet
		seeded = wallet
		if balance == 0 {
			return nil
		}
		transactionID := TransactionID{value: "seed-" + owner}
		tx.store.state.transactions[transactionID] = Transaction{
			ID:                transactionID,
			WalletID:          wallet.ID,
			UserID:            wallet.OwnerID,
			Type:              TransactionDeposit,
			AmountCents:       AmountCents(balance),
			BalanceAfterCents: AmountCents(balance),
			Status:            TransactionStatusCompleted,
		}
		tx.store.state.order = append(tx.store.state.order, transactionID)
		return nil
	})
	if err != nil {
		test.Fatalf("seed wallet: %v", err)
	}
	return seeded
}

func (store *stubStore) walletOf(test *testing.T, owner string, kind WalletKind) Wallet {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	walletID, ok := store.state.walletIndex[owner+"/"+string(kind)]
	if !ok {
		return Wallet{OwnerID: UserID{value: owner}, Kind: kind}
	}
	return store.state.wallets[walletID]
}

func (store *stubStore) balanceOf(test *testing.T, owner string) AmountCents {
	test.Helper()
	return store.walletOf(test, owner, WalletKindStandard).BalanceCents
}

func (store *stubStore) platformBalance(test *testing.T, kind WalletKind) AmountCents {
	test.Helper()
	return store.walletOf(test, PlatformOwner, kind).BalanceCents
}

func (store *stubStore) transactionsOf(walletID WalletID) []Transaction {
	store.mu.Lock()
	defer store.mu.Unlock()
	var listed []Transaction
	for _, transactionID := range store.state.order {
		transaction := store.state.transactions[transactionID]
		if transaction.WalletID == walletID {
			listed = append(listed, transaction)
		}
	}
	return listed
}

func (store *stubStore) settlementsSnapshot() []SettlementRecord {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]SettlementRecord(nil), store.state.settlements...)
}

func (store *stubStore) failuresSnapshot() []CompensationFailure {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]CompensationFailure(nil), store.state.failures...)
}

// assertLedgerInvariant checks that every wallet balance equals the signed sum of its
// non-cancelled transactions and is never negative.
func (store *stubStore) assertLedgerInvariant(test *testing.T) {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	sums := map[WalletID]int64{}
	for _, transaction := range store.state.transactions {
		if transaction.Status == TransactionStatusCancelled {
			continue
		}
		sums[transaction.WalletID] += transaction.SignedAmount().Int64()
	}
	for walletID, wallet := range store.state.wallets {
		if wallet.BalanceCents < 0 {
			test.Fatalf("wallet %s has negative balance %d", walletID, wallet.BalanceCents)
		}
		if int64(wallet.BalanceCents) != sums[walletID] {
			test.Fatalf("wallet %s balance %d differs from ledger sum %d", walletID, wallet.BalanceCents, sums[walletID])
		}
	}
}

type stubCatalog struct {
	mu             sync.Mutex
	events         map[EventID]Event
	categories     map[CategoryID]TicketCategory
	plans          map[string]Plan
	boostPrices    map[BoostType]BoostPrice
	decrementError error
	onDecrement    func()
	onGetPlan      func()
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		events:      map[EventID]Event{},
		categories:  map[CategoryID]TicketCategory{},
		plans:       map[string]Plan{},
		boostPrices: map[BoostType]BoostPrice{},
	}
}

func (catalog *stubCatalog) GetEvent(_ context.Context, eventID EventID) (Event, error) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	event, ok := catalog.events[eventID]
	if !ok {
		return Event{}, notFoundError("event", eventID.String())
	}
	return event, nil
}

func (catalog *stubCatalog) GetTicketCategory(_ context.Context, categoryID CategoryID) (TicketCategory, error) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	category, ok := catalog.categories[categoryID]
	if !ok {
		return TicketCategory{}, notFoundError("ticket category", categoryID.String())
	}
	return category, nil
}

func (catalog *stubCatalog) DecrementStock(_ context.Context, categoryID CategoryID) error {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	if catalog.onDecrement != nil {
		catalog.onDecrement()
	}
	if catalog.decrementError != nil {
		return catalog.decrementError
	}
	category, ok := catalog.categories[categoryID]
	if !ok {
		return notFoundError("ticket category", categoryID.String())
	}
	if category.StockRemaining <= 0 {
		return ErrStockDepleted
	}
	category.StockRemaining--
	catalog.categories[categoryID] = category
	return nil
}

func (catalog *stubCatalog) GetPlan(_ context.Context, name string) (Plan, error) {
	if catalog.onGetPlan != nil {
		catalog.onGetPlan()
	}
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	plan, ok := catalog.plans[name]
	if !ok {
		return Plan{}, notFoundError("plan", name)
	}
	return plan, nil
}

func (catalog *stubCatalog) GetBoostPrice(_ context.Context, boostType BoostType) (BoostPrice, error) {
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	price, ok := catalog.boostPrices[boostType]
	if !ok {
		return BoostPrice{}, notFoundError("boost price", string(boostType))
	}
	return price, nil
}

func (catalog *stubCatalog) addEvent(test *testing.T, eventID string, organizer string) EventID {
	test.Helper()
	id := mustEventID(test, eventID)
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.events[id] = Event{ID: id, OrganizerID: mustUserID(test, organizer), IsActive: true, IsApproved: true}
	return id
}

func (catalog *stubCatalog) addCategory(test *testing.T, eventID EventID, categoryID string, price int64, stock int64) CategoryID {
	test.Helper()
	id := mustCategoryID(test, categoryID)
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	catalog.categories[id] = TicketCategory{ID: id, EventID: eventID, PriceCents: AmountCents(price), StockRemaining: stock}
	return id
}

func sequentialIDs() func() string {
	var counter atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", counter.Add(1))
	}
}

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func mustNewService(test *testing.T, store Store, catalog *stubCatalog, options ...ServiceOption) *Service {
	test.Helper()
	defaults := []ServiceOption{WithRetryBackOff(zeroBackOff), WithIDGenerator(sequentialIDs())}
	service, err := NewService(store, Catalogs{Events: catalog, Plans: catalog, BoostPrices: catalog}, func() int64 { return fixedNowUnixUTC }, append(defaults, options...)...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	value, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return value
}

func mustEventID(test *testing.T, raw string) EventID {
	test.Helper()
	value, err := NewEventID(raw)
	if err != nil {
		test.Fatalf("event id: %v", err)
	}
	return value
}

func mustCategoryID(test *testing.T, raw string) CategoryID {
	test.Helper()
	value, err := NewCategoryID(raw)
	if err != nil {
		test.Fatalf("category id: %v", err)
	}
	return value
}

func mustTransactionID(test *testing.T, raw string) TransactionID {
	test.Helper()
	value, err := NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}

func mustAmount(test *testing.T, raw string) AmountCents {
	test.Helper()
	value, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return value
}

func staffActor(test *testing.T, userID string) Actor {
	test.Helper()
	return Actor{UserID: mustUserID(test, userID), Roles: []Role{RoleAdmin}}
}
