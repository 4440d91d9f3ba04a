package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Wallet represents the wallets table.
type Wallet struct {
	WalletID            string    `gorm:"column:id;size:64;primaryKey"`
	OwnerID             string    `gorm:"size:128;not null;uniqueIndex:idx_wallets_owner_kind,priority:1"`
	Kind                string    `gorm:"size:32;not null;uniqueIndex:idx_wallets_owner_kind,priority:2"`
	BalanceCents        int64     `gorm:"not null"`
	TotalDepositedCents int64     `gorm:"not null"`
	TotalWithdrawnCents int64     `gorm:"not null"`
	Version             int64     `gorm:"not null"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt           time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (Wallet) TableName() string { return "wallets" }

func (wallet *Wallet) BeforeCreate(tx *gorm.DB) error {
	if wallet.WalletID == "" {
		wallet.WalletID = uuid.NewString()
	}
	return nil
}

// Transaction mirrors the wallet_transactions table.
type Transaction struct {
	TransactionID      string         `gorm:"column:id;size:64;primaryKey"`
	WalletID           string         `gorm:"size:64;not null;index:idx_transactions_wallet_created,priority:1"`
	UserID             string         `gorm:"size:128;not null"`
	Type               string         `gorm:"size:16;not null"`
	AmountCents        int64          `gorm:"not null"`
	BalanceBeforeCents int64          `gorm:"not null"`
	BalanceAfterCents  int64          `gorm:"not null"`
	Status             string         `gorm:"size:16;not null;index"`
	ReferenceID        string         `gorm:"size:128;not null;index"`
	ReferenceType      string         `gorm:"size:32;not null"`
	Metadata           datatypes.JSON `gorm:"not null"`
	CreatedAt          time.Time      `gorm:"not null;autoCreateTime:false;index:idx_transactions_wallet_created,priority:2"`
}

func (Transaction) TableName() string { return "wallet_transactions" }

// Settlement mirrors the settlements table.
type Settlement struct {
	SettlementID          string    `gorm:"column:id;size:64;primaryKey"`
	SettlementWalletID    string    `gorm:"size:64;not null"`
	TransactionID         string    `gorm:"size:64;not null;index"`
	OriginalTransactionID string    `gorm:"size:64;not null"`
	PayerID               string    `gorm:"size:128;not null"`
	SubjectID             string    `gorm:"size:128;not null"`
	GrossCents            int64     `gorm:"not null"`
	PlatformCents         int64     `gorm:"not null"`
	OrganizerCents        int64     `gorm:"not null"`
	CommissionPercent     int64     `gorm:"not null"`
	BalanceBeforeCents    int64     `gorm:"not null"`
	BalanceAfterCents     int64     `gorm:"not null"`
	Status                string    `gorm:"size:16;not null"`
	CreatedAt             time.Time `gorm:"not null;autoCreateTime:false"`
}

func (Settlement) TableName() string { return "settlements" }

func (settlement *Settlement) BeforeCreate(tx *gorm.DB) error {
	if settlement.SettlementID == "" {
		settlement.SettlementID = uuid.NewString()
	}
	return nil
}

// CompensationFailure mirrors the compensation_failures table.
type CompensationFailure struct {
	FailureID    string    `gorm:"column:id;size:64;primaryKey"`
	Flow         string    `gorm:"size:64;not null"`
	Step         string    `gorm:"size:64;not null"`
	ReferenceID  string    `gorm:"size:128;not null"`
	Cause        string    `gorm:"type:text;not null"`
	ErrorMessage string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false;index"`
}

func (CompensationFailure) TableName() string { return "compensation_failures" }

func (failure *CompensationFailure) BeforeCreate(tx *gorm.DB) error {
	if failure.FailureID == "" {
		failure.FailureID = uuid.NewString()
	}
	return nil
}

// Boost mirrors the boosts table. Windows are unix seconds.
type Boost struct {
	BoostID        string `gorm:"column:id;size:64;primaryKey"`
	EventID        string `gorm:"size:128;not null;index:idx_boosts_event_status,priority:1"`
	BuyerID        string `gorm:"size:128;not null"`
	BoostType      string `gorm:"size:8;not null"`
	TransactionID  string `gorm:"size:64;not null"`
	StartedUnixUTC int64  `gorm:"column:started_unix;not null"`
	ExpiresUnixUTC int64  `gorm:"column:expires_unix;not null;index"`
	Status         string `gorm:"size:16;not null;index:idx_boosts_event_status,priority:2"`
}

func (Boost) TableName() string { return "boosts" }

// Ticket mirrors the tickets table.
type Ticket struct {
	TicketID      string    `gorm:"column:id;size:64;primaryKey"`
	EventID       string    `gorm:"size:128;not null;index"`
	CategoryID    string    `gorm:"size:128;not null"`
	BuyerID       string    `gorm:"size:128;not null;index"`
	TransactionID string    `gorm:"size:64;not null"`
	PriceCents    int64     `gorm:"not null"`
	Status        string    `gorm:"size:16;not null"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime:false"`
}

func (Ticket) TableName() string { return "tickets" }

// Subscription mirrors the subscriptions table; one row per user.
type Subscription struct {
	UserID         string `gorm:"size:128;primaryKey"`
	PlanName       string `gorm:"size:64;not null"`
	Status         string `gorm:"size:16;not null;index:idx_subscriptions_status_expires,priority:1"`
	AutoRenew      bool   `gorm:"not null"`
	PaymentMethod  string `gorm:"size:16;not null"`
	TransactionID  string `gorm:"size:64;not null"`
	StartedUnixUTC int64  `gorm:"column:started_unix;not null"`
	ExpiresUnixUTC int64  `gorm:"column:expires_unix;not null;index:idx_subscriptions_status_expires,priority:2"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Profile mirrors the profiles table.
type Profile struct {
	UserID                string `gorm:"size:128;primaryKey"`
	Role                  string `gorm:"size:16;not null"`
	IsPremium             bool   `gorm:"not null"`
	PremiumExpiresUnixUTC int64  `gorm:"column:premium_expires_unix;not null"`
}

func (Profile) TableName() string { return "profiles" }

// Event mirrors the catalog events table.
type Event struct {
	EventID     string `gorm:"column:id;size:128;primaryKey"`
	OrganizerID string `gorm:"size:128;not null"`
	IsActive    bool   `gorm:"not null"`
	IsApproved  bool   `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// TicketCategory mirrors the ticket_categories table.
type TicketCategory struct {
	CategoryID     string `gorm:"column:id;size:128;primaryKey"`
	EventID        string `gorm:"size:128;not null;index"`
	PriceCents     int64  `gorm:"not null"`
	StockRemaining int64  `gorm:"not null"`
}

func (TicketCategory) TableName() string { return "ticket_categories" }

// Plan mirrors the plans table.
type Plan struct {
	Name                 string `gorm:"size:64;primaryKey"`
	TotalPriceCents      int64  `gorm:"not null"`
	DurationMonths       int    `gorm:"not null"`
	BoostDiscountPercent int64  `gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// BoostPrice mirrors the boost_prices table.
type BoostPrice struct {
	BoostType      string `gorm:"size:8;primaryKey"`
	UnitPriceCents int64  `gorm:"not null"`
	DurationHours  int64  `gorm:"not null"`
}

func (BoostPrice) TableName() string { return "boost_prices" }

// Models lists every table the store owns, in migration order.
func Models() []any {
	return []any{
		&Wallet{},
		&Transaction{},
		&Settlement{},
		&CompensationFailure{},
		&Boost{},
		&Ticket{},
		&Subscription{},
		&Profile{},
		&Event{},
		&TicketCategory{},
		&Plan{},
		&BoostPrice{},
	}
}
