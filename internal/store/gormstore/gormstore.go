package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON      = "{}"
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19
	errorOperationStore      = "store"
	errorSubjectWallet       = "wallet"
	errorSubjectTransaction  = "transaction"
	errorSubjectSettlement   = "settlement"
	errorSubjectCompensation = "compensation"
	errorSubjectBoost        = "boost"
	errorSubjectTicket       = "ticket"
	errorSubjectSubscription = "subscription"
	errorSubjectProfile      = "profile"
	errorCodeActivate        = "activate"
	errorCodeCount           = "count"
	errorCodeCreate          = "create"
	errorCodeDelete          = "delete"
	errorCodeDuplicate       = "duplicate"
	errorCodeExpire          = "expire"
	errorCodeGet             = "get"
	errorCodeInsert          = "insert"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLookup          = "lookup"
	errorCodeApplyDelta      = "apply_delta"
	errorCodeUpdateStatus    = "update_status"
	errorCodeUpsert          = "upsert"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Nested calls run in a savepoint.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetOrCreateWallet(ctx context.Context, ownerID ledger.UserID, kind ledger.WalletKind, atUnixUTC int64) (ledger.Wallet, error) {
	at := unixTime(atUnixUTC)
	candidate := Wallet{OwnerID: ownerID.String(), Kind: string(kind), CreatedAt: at, UpdatedAt: at}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(&candidate).Error
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeCreate, err)
	}
	var model Wallet
	err = store.db.WithContext(ctx).
		Where("owner_id = ? AND kind = ?", ownerID.String(), string(kind)).
		Take(&model).Error
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeLookup, err)
	}
	wallet, err := mapWallet(model)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return wallet, nil
}

func (store *Store) GetWallet(ctx context.Context, walletID ledger.WalletID) (ledger.Wallet, error) {
	var model Wallet
	err := store.db.WithContext(ctx).Where("id = ?", walletID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, notFound("wallet", walletID.String()))
	}
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	wallet, err := mapWallet(model)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return wallet, nil
}

// ApplyDelta writes the next wallet state only while the row still carries the
// version and balance of delta.Current.
func (store *Store) ApplyDelta(ctx context.Context, delta ledger.WalletDelta) (ledger.Wallet, error) {
	next, err := delta.Next()
	if err != nil {
		return ledger.Wallet{}, err
	}
	current := delta.Current
	result := store.db.WithContext(ctx).
		Model(&Wallet{}).
		Where("id = ? AND version = ? AND balance_cents = ?", current.ID.String(), current.Version, current.BalanceCents.Int64()).
		Updates(map[string]any{
			"balance_cents":         next.BalanceCents.Int64(),
			"total_deposited_cents": next.TotalDepositedCents.Int64(),
			"total_withdrawn_cents": next.TotalWithdrawnCents.Int64(),
			"version":               next.Version,
			"updated_at":            unixTime(next.UpdatedUnixUTC),
		})
	if result.Error != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeApplyDelta, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetWallet(ctx, current.ID); err != nil {
			return ledger.Wallet{}, err
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeApplyDelta, ledger.ErrBalanceConflict)
	}
	return next, nil
}

func (store *Store) AppendTransaction(ctx context.Context, transaction ledger.Transaction) error {
	model := Transaction{
		TransactionID:      transaction.ID.String(),
		WalletID:           transaction.WalletID.String(),
		UserID:             transaction.UserID.String(),
		Type:               string(transaction.Type),
		AmountCents:        transaction.AmountCents.Int64(),
		BalanceBeforeCents: transaction.BalanceBeforeCents.Int64(),
		BalanceAfterCents:  transaction.BalanceAfterCents.Int64(),
		Status:             string(transaction.Status),
		ReferenceID:        transaction.ReferenceID,
		ReferenceType:      string(transaction.ReferenceType),
		Metadata:           datatypesJSON(transaction.Metadata.String()),
		CreatedAt:          unixTime(transaction.CreatedUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrAlreadyProcessed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, transactionID ledger.TransactionID) (ledger.Transaction, error) {
	var model Transaction
	err := store.db.WithContext(ctx).Where("id = ?", transactionID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, notFound("transaction", transactionID.String()))
	}
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	transaction, err := mapTransaction(model)
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, nil
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, transactionID ledger.TransactionID, from ledger.TransactionStatus, to ledger.TransactionStatus, metadata ledger.MetadataJSON) error {
	result := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", transactionID.String(), string(from)).
		Updates(map[string]any{
			"status":   string(to),
			"metadata": datatypesJSON(metadata.String()),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetTransaction(ctx, transactionID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, ledger.ErrAlreadyProcessed)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, walletID ledger.WalletID, limit int) ([]ledger.Transaction, error) {
	var rows []Transaction
	err := store.db.WithContext(ctx).
		Where("wallet_id = ?", walletID.String()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) AppendSettlement(ctx context.Context, settlement ledger.SettlementRecord) error {
	model := Settlement{
		SettlementID:          settlement.ID,
		SettlementWalletID:    settlement.SettlementWalletID.String(),
		TransactionID:         settlement.TransactionID.String(),
		OriginalTransactionID: settlement.OriginalTransactionID.String(),
		PayerID:               settlement.PayerID.String(),
		SubjectID:             settlement.SubjectID,
		GrossCents:            settlement.GrossCents.Int64(),
		PlatformCents:         settlement.PlatformCents.Int64(),
		OrganizerCents:        settlement.OrganizerCents.Int64(),
		CommissionPercent:     settlement.CommissionPercent.Int64(),
		BalanceBeforeCents:    settlement.BalanceBeforeCents.Int64(),
		BalanceAfterCents:     settlement.BalanceAfterCents.Int64(),
		Status:                string(settlement.Status),
		CreatedAt:             unixTime(settlement.CreatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectSettlement, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) CancelSettlements(ctx context.Context, transactionID ledger.TransactionID) error {
	err := store.db.WithContext(ctx).
		Model(&Settlement{}).
		Where("transaction_id = ? AND status = ?", transactionID.String(), string(ledger.SettlementStatusCompleted)).
		Update("status", string(ledger.SettlementStatusCancelled)).Error
	if err != nil {
		return wrapStoreError(errorSubjectSettlement, errorCodeUpdateStatus, err)
	}
	return nil
}

func (store *Store) RecordCompensationFailure(ctx context.Context, failure ledger.CompensationFailure) error {
	model := CompensationFailure{
		FailureID:    failure.ID,
		Flow:         failure.Flow,
		Step:         failure.Step,
		ReferenceID:  failure.ReferenceID,
		Cause:        failure.Cause,
		ErrorMessage: failure.Error,
		CreatedAt:    unixTime(failure.CreatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectCompensation, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) CreateBoosts(ctx context.Context, boosts []ledger.Boost, atUnixUTC int64) (int64, error) {
	if len(boosts) == 0 {
		return 0, nil
	}
	rows := make([]Boost, 0, len(boosts))
	for _, boost := range boosts {
		rows = append(rows, Boost{
			BoostID:        boost.ID,
			EventID:        boost.EventID.String(),
			BuyerID:        boost.BuyerID.String(),
			BoostType:      string(boost.BoostType),
			TransactionID:  boost.TransactionID.String(),
			StartedUnixUTC: boost.StartedUnixUTC,
			ExpiresUnixUTC: boost.ExpiresUnixUTC,
			Status:         string(boost.Status),
		})
	}
	var activeCount int64
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Create(&rows).Error; err != nil {
			return wrapStoreError(errorSubjectBoost, errorCodeInsert, err)
		}
		count, err := (&Store{db: transaction}).CountActiveBoosts(ctx, boosts[0].EventID, atUnixUTC)
		if err != nil {
			return err
		}
		activeCount = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	return activeCount, nil
}

func (store *Store) CountActiveBoosts(ctx context.Context, eventID ledger.EventID, atUnixUTC int64) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Boost{}).
		Where("event_id = ? AND status = ? AND expires_unix > ?", eventID.String(), string(ledger.BoostStatusActive), atUnixUTC).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBoost, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) ExpireBoosts(ctx context.Context, atUnixUTC int64) (int64, error) {
	result := store.db.WithContext(ctx).
		Model(&Boost{}).
		Where("status = ? AND expires_unix <= ?", string(ledger.BoostStatusActive), atUnixUTC).
		Update("status", string(ledger.BoostStatusExpired))
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectBoost, errorCodeExpire, result.Error)
	}
	return result.RowsAffected, nil
}

func (store *Store) CreateTicket(ctx context.Context, ticket ledger.Ticket) error {
	model := Ticket{
		TicketID:      ticket.ID,
		EventID:       ticket.EventID.String(),
		CategoryID:    ticket.CategoryID.String(),
		BuyerID:       ticket.BuyerID.String(),
		TransactionID: ticket.TransactionID.String(),
		PriceCents:    ticket.PriceCents.Int64(),
		Status:        string(ticket.Status),
		CreatedAt:     unixTime(ticket.CreatedUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTicket, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) UpdateTicketStatus(ctx context.Context, ticketID string, from ledger.TicketStatus, to ledger.TicketStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Ticket{}).
		Where("id = ? AND status = ?", ticketID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return wrapStoreError(errorSubjectTicket, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&Ticket{}).Where("id = ?", ticketID).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectTicket, errorCodeLookup, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectTicket, errorCodeUpdateStatus, notFound("ticket", ticketID))
	}
	return wrapStoreError(errorSubjectTicket, errorCodeUpdateStatus, ledger.ErrAlreadyProcessed)
}

func (store *Store) GetSubscription(ctx context.Context, userID ledger.UserID) (ledger.Subscription, error) {
	var model Subscription
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Subscription{}, wrapStoreError(errorSubjectSubscription, errorCodeGet, notFound("subscription", userID.String()))
	}
	if err != nil {
		return ledger.Subscription{}, wrapStoreError(errorSubjectSubscription, errorCodeGet, err)
	}
	subscription, err := mapSubscription(model)
	if err != nil {
		return ledger.Subscription{}, wrapStoreError(errorSubjectSubscription, errorCodeInvalid, err)
	}
	return subscription, nil
}

// ActivateSubscription inserts the row, or replaces a row that is no longer active at
// atUnixUTC. A row still active is left untouched and ErrAlreadySubscribed is returned.
func (store *Store) ActivateSubscription(ctx context.Context, subscription ledger.Subscription, atUnixUTC int64) error {
	model := subscriptionModel(subscription)
	result := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{
					SQL:  "(subscriptions.status <> ? OR subscriptions.expires_unix <= ?)",
					Vars: []any{string(ledger.SubscriptionStatusActive), atUnixUTC},
				},
			}},
		}).
		Create(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeActivate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSubscription, errorCodeActivate, fmt.Errorf("%w: user %s", ledger.ErrAlreadySubscribed, subscription.UserID.String()))
	}
	return nil
}

func (store *Store) UpsertSubscription(ctx context.Context, subscription ledger.Subscription) error {
	model := subscriptionModel(subscription)
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeUpsert, err)
	}
	return nil
}

func subscriptionModel(subscription ledger.Subscription) Subscription {
	return Subscription{
		UserID:         subscription.UserID.String(),
		PlanName:       subscription.PlanName,
		Status:         string(subscription.Status),
		AutoRenew:      subscription.AutoRenew,
		PaymentMethod:  string(subscription.PaymentMethod),
		TransactionID:  subscription.TransactionID.String(),
		StartedUnixUTC: subscription.StartedUnixUTC,
		ExpiresUnixUTC: subscription.ExpiresUnixUTC,
	}
}

func (store *Store) DeleteSubscription(ctx context.Context, userID ledger.UserID) error {
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Delete(&Subscription{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) ListExpiredSubscriptions(ctx context.Context, atUnixUTC int64, limit int) ([]ledger.Subscription, error) {
	var rows []Subscription
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_unix <= ?", string(ledger.SubscriptionStatusActive), atUnixUTC).
		Order("user_id").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSubscription, errorCodeList, err)
	}
	subscriptions := make([]ledger.Subscription, 0, len(rows))
	for _, row := range rows {
		subscription, err := mapSubscription(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSubscription, errorCodeInvalid, err)
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}

func (store *Store) UpdateSubscriptionStatus(ctx context.Context, userID ledger.UserID, from ledger.SubscriptionStatus, to ledger.SubscriptionStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Subscription{}).
		Where("user_id = ? AND status = ?", userID.String(), string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return wrapStoreError(errorSubjectSubscription, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetSubscription(ctx, userID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectSubscription, errorCodeUpdateStatus, ledger.ErrAlreadyProcessed)
	}
	return nil
}

func (store *Store) GetProfile(ctx context.Context, userID ledger.UserID) (ledger.Profile, error) {
	var model Profile
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, notFound("profile", userID.String()))
	}
	if err != nil {
		return ledger.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeGet, err)
	}
	profile, err := mapProfile(model)
	if err != nil {
		return ledger.Profile{}, wrapStoreError(errorSubjectProfile, errorCodeInvalid, err)
	}
	return profile, nil
}

func (store *Store) SaveProfile(ctx context.Context, profile ledger.Profile) error {
	model := Profile{
		UserID:                profile.UserID.String(),
		Role:                  string(profile.Role),
		IsPremium:             profile.IsPremium,
		PremiumExpiresUnixUTC: profile.PremiumExpiresUnixUTC,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, UpdateAll: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectProfile, errorCodeUpsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func notFound(subject string, id string) error {
	return fmt.Errorf("%w: %s %q", ledger.ErrNotFound, subject, id)
}

func unixTime(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Now().UTC()
	}
	return time.Unix(unixUTC, 0).UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
