package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlatformOwner owns both settlement wallets.
const PlatformOwner = "platform"

// UserID identifies a wallet owner or a staff actor.
type UserID struct {
	value string
}

// WalletID identifies a wallet.
type WalletID struct {
	value string
}

// TransactionID identifies a ledger transaction.
type TransactionID struct {
	value string
}

// EventID identifies an event owned by the event catalog.
type EventID struct {
	value string
}

// CategoryID identifies a ticket category. The zero value means "no category".
type CategoryID struct {
	value string
}

// MetadataJSON stores arbitrary transaction metadata.
type MetadataJSON struct {
	value string
}

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	return trimmed, nil
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidUserID)
	if err != nil {
		return UserID{}, err
	}
	return UserID{value: value}, nil
}

// PlatformUserID returns the owner id of the platform settlement wallets.
func PlatformUserID() UserID {
	return UserID{value: PlatformOwner}
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// NewWalletID validates and normalizes a wallet id.
func NewWalletID(raw string) (WalletID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidWalletID)
	if err != nil {
		return WalletID{}, err
	}
	return WalletID{value: value}, nil
}

// String returns the normalized identifier.
func (id WalletID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id WalletID) IsZero() bool {
	return id.value == ""
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidTransactionID)
	if err != nil {
		return TransactionID{}, err
	}
	return TransactionID{value: value}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id TransactionID) IsZero() bool {
	return id.value == ""
}

// NewEventID validates and normalizes an event id.
func NewEventID(raw string) (EventID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidEventID)
	if err != nil {
		return EventID{}, err
	}
	return EventID{value: value}, nil
}

// String returns the normalized identifier.
func (id EventID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id EventID) IsZero() bool {
	return id.value == ""
}

// NewCategoryID validates and normalizes a ticket category id.
func NewCategoryID(raw string) (CategoryID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidCategoryID)
	if err != nil {
		return CategoryID{}, err
	}
	return CategoryID{value: value}, nil
}

// String returns the normalized identifier.
func (id CategoryID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id CategoryID) IsZero() bool {
	return id.value == ""
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// WalletKind distinguishes user wallets from the platform settlement wallets.
type WalletKind string

const (
	WalletKindStandard       WalletKind = "standard"
	WalletKindPlatformBoost  WalletKind = "platform_boost"
	WalletKindPlatformTicket WalletKind = "platform_ticket"
)

// ParseWalletKind validates a stored wallet kind.
func ParseWalletKind(raw string) (WalletKind, error) {
	switch kind := WalletKind(strings.TrimSpace(raw)); kind {
	case WalletKindStandard, WalletKindPlatformBoost, WalletKindPlatformTicket:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWalletKind, raw)
	}
}

// TransactionType enumerates ledger transaction types.
type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionWithdraw TransactionType = "withdraw"
	TransactionPurchase TransactionType = "purchase"
	TransactionBoost    TransactionType = "boost"
	TransactionPremium  TransactionType = "premium"
	TransactionRefund   TransactionType = "refund"
)

// ParseTransactionType validates a stored transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch transactionType := TransactionType(strings.TrimSpace(raw)); transactionType {
	case TransactionDeposit, TransactionWithdraw, TransactionPurchase, TransactionBoost, TransactionPremium, TransactionRefund:
		return transactionType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// IsDebit reports whether the type removes funds from the wallet.
func (transactionType TransactionType) IsDebit() bool {
	switch transactionType {
	case TransactionWithdraw, TransactionPurchase, TransactionBoost, TransactionPremium:
		return true
	default:
		return false
	}
}

// TransactionStatus defines the transaction lifecycle.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// ParseTransactionStatus validates a stored transaction status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch status := TransactionStatus(strings.TrimSpace(raw)); status {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionStatus, raw)
	}
}

// ReferenceType names the domain object a transaction points at.
type ReferenceType string

const (
	ReferenceNone         ReferenceType = ""
	ReferenceEvent        ReferenceType = "event"
	ReferenceSubscription ReferenceType = "subscription"
	ReferenceTransaction  ReferenceType = "transaction"
	ReferencePayment      ReferenceType = "payment"
)

// BoostType enumerates purchasable boost durations.
type BoostType string

const (
	BoostType12h BoostType = "12h"
	BoostType24h BoostType = "24h"
)

// ParseBoostType validates a boost type.
func ParseBoostType(raw string) (BoostType, error) {
	switch boostType := BoostType(strings.TrimSpace(raw)); boostType {
	case BoostType12h, BoostType24h:
		return boostType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBoostType, raw)
	}
}

// PaymentMethod enumerates how a purchase is paid.
type PaymentMethod string

const (
	PaymentWallet     PaymentMethod = "wallet"
	PaymentPix        PaymentMethod = "pix"
	PaymentCreditCard PaymentMethod = "credit_card"
)

// ParsePaymentMethod validates a payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch method := PaymentMethod(strings.TrimSpace(raw)); method {
	case PaymentWallet, PaymentPix, PaymentCreditCard:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
	}
}

// IsExternal reports whether the payment is settled by an external gateway.
func (method PaymentMethod) IsExternal() bool {
	return method == PaymentPix || method == PaymentCreditCard
}

// SettlementPool selects one of the platform settlement wallets.
type SettlementPool string

const (
	SettlementPoolBoost  SettlementPool = "boost"
	SettlementPoolTicket SettlementPool = "ticket"
)

// SettlementStatus tracks whether a settlement still stands.
type SettlementStatus string

const (
	SettlementStatusCompleted SettlementStatus = "completed"
	SettlementStatusCancelled SettlementStatus = "cancelled"
)

// BoostStatus tracks boost visibility.
type BoostStatus string

const (
	BoostStatusActive  BoostStatus = "active"
	BoostStatusExpired BoostStatus = "expired"
)

// TicketStatus tracks an issued ticket.
type TicketStatus string

const (
	TicketStatusIssued    TicketStatus = "issued"
	TicketStatusCancelled TicketStatus = "cancelled"
)

// SubscriptionStatus tracks a premium subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Role is the identity role of a profile.
type Role string

const (
	RoleUser      Role = "user"
	RolePremium   Role = "premium"
	RoleOwner     Role = "owner"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleSupport   Role = "support"
)

// IsStaff reports whether the role may operate back-office actions.
func (role Role) IsStaff() bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleModerator, RoleSupport:
		return true
	default:
		return false
	}
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleUser, RolePremium, RoleOwner, RoleAdmin, RoleModerator, RoleSupport:
		return role, nil
	default:
		return "", validationError("unknown role %q", raw)
	}
}

// Wallet is a balance-bearing account.
type Wallet struct {
	ID                  WalletID
	OwnerID             UserID
	Kind                WalletKind
	BalanceCents        AmountCents
	TotalDepositedCents AmountCents
	TotalWithdrawnCents AmountCents
	Version             int64
	CreatedUnixUTC      int64
	UpdatedUnixUTC      int64
}

// Transaction is an immutable ledger row; only its status may change.
type Transaction struct {
	ID                 TransactionID
	WalletID           WalletID
	UserID             UserID
	Type               TransactionType
	AmountCents        AmountCents
	BalanceBeforeCents AmountCents
	BalanceAfterCents  AmountCents
	Status             TransactionStatus
	ReferenceID        string
	ReferenceType      ReferenceType
	Metadata           MetadataJSON
	CreatedUnixUTC     int64
}

// SignedAmount returns the balance effect of the transaction.
func (transaction Transaction) SignedAmount() SignedAmountCents {
	if transaction.Type.IsDebit() {
		return transaction.AmountCents.Negated()
	}
	return transaction.AmountCents.Signed()
}

// SettlementRecord documents the platform share of a commission-bearing purchase.
type SettlementRecord struct {
	ID                    string
	SettlementWalletID    WalletID
	TransactionID         TransactionID
	OriginalTransactionID TransactionID
	PayerID               UserID
	SubjectID             string
	GrossCents            AmountCents
	PlatformCents         AmountCents
	OrganizerCents        AmountCents
	CommissionPercent     Percent
	BalanceBeforeCents    AmountCents
	BalanceAfterCents     AmountCents
	Status                SettlementStatus
	CreatedUnixUTC        int64
}

// Boost is one purchased unit of event visibility.
type Boost struct {
	ID             string
	EventID        EventID
	BuyerID        UserID
	BoostType      BoostType
	TransactionID  TransactionID
	StartedUnixUTC int64
	ExpiresUnixUTC int64
	Status         BoostStatus
}

// Ticket is an issued event ticket.
type Ticket struct {
	ID             string
	EventID        EventID
	CategoryID     CategoryID
	BuyerID        UserID
	TransactionID  TransactionID
	PriceCents     AmountCents
	Status         TicketStatus
	CreatedUnixUTC int64
}

// Subscription is the single premium subscription row of a user.
type Subscription struct {
	UserID         UserID
	PlanName       string
	Status         SubscriptionStatus
	AutoRenew      bool
	PaymentMethod  PaymentMethod
	TransactionID  TransactionID
	StartedUnixUTC int64
	ExpiresUnixUTC int64
}

// IsActiveAt reports whether the subscription grants premium at the given instant.
func (subscription Subscription) IsActiveAt(atUnixUTC int64) bool {
	return subscription.Status == SubscriptionStatusActive && subscription.ExpiresUnixUTC > atUnixUTC
}

// Profile carries the role and premium flags the engine maintains.
type Profile struct {
	UserID                UserID
	Role                  Role
	IsPremium             bool
	PremiumExpiresUnixUTC int64
}

// WithPremium grants premium; staff roles are never overwritten.
func (profile Profile) WithPremium(expiresUnixUTC int64) Profile {
	updated := profile
	updated.IsPremium = true
	updated.PremiumExpiresUnixUTC = expiresUnixUTC
	if !profile.Role.IsStaff() {
		updated.Role = RolePremium
	}
	return updated
}

// WithoutPremium clears premium; only the premium role falls back to user.
func (profile Profile) WithoutPremium() Profile {
	updated := profile
	updated.IsPremium = false
	updated.PremiumExpiresUnixUTC = 0
	if profile.Role == RolePremium {
		updated.Role = RoleUser
	}
	return updated
}

// RevertPremium restores the premium flags of previous on top of the current profile.
// The role is restored only while it is still the premium role the grant set.
func (profile Profile) RevertPremium(previous Profile) Profile {
	reverted := profile
	reverted.IsPremium = previous.IsPremium
	reverted.PremiumExpiresUnixUTC = previous.PremiumExpiresUnixUTC
	if profile.Role == RolePremium && previous.Role != RolePremium {
		reverted.Role = previous.Role
	}
	return reverted
}

// Event is the read model the engine needs from the event catalog.
type Event struct {
	ID          EventID
	OrganizerID UserID
	IsActive    bool
	IsApproved  bool
}

// TicketCategory is a priced, stock-limited ticket tier.
type TicketCategory struct {
	ID             CategoryID
	EventID        EventID
	PriceCents     AmountCents
	StockRemaining int64
}

// Plan is a premium plan.
type Plan struct {
	Name                 string
	TotalPriceCents      AmountCents
	DurationMonths       int
	BoostDiscountPercent Percent
}

// BoostPrice is the catalog price of one boost unit.
type BoostPrice struct {
	BoostType      BoostType
	UnitPriceCents AmountCents
	DurationHours  int64
}

// CompensationFailure is the audit row of a compensation that could not be applied.
type CompensationFailure struct {
	ID             string
	Flow           string
	Step           string
	ReferenceID    string
	Cause          string
	Error          string
	CreatedUnixUTC int64
}

// Actor is the authenticated caller of a back-office action.
type Actor struct {
	UserID UserID
	Roles  []Role
}

// IsStaff reports whether any of the actor's roles is a staff role.
func (actor Actor) IsStaff() bool {
	for _, role := range actor.Roles {
		if role.IsStaff() {
			return true
		}
	}
	return false
}
