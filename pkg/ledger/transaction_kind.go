package ledger

import "fmt"

// TransactionKind is the closed set of transaction payloads. Each kind carries the
// fields its transaction type requires.
type TransactionKind interface {
	transactionType() TransactionType
}

// DepositSource explains where credited funds come from.
type DepositSource string

const (
	DepositSourceTopUp            DepositSource = "top_up"
	DepositSourceGateway          DepositSource = "gateway"
	DepositSourceTicketSale       DepositSource = "ticket_sale"
	DepositSourceTicketCommission DepositSource = "ticket_commission"
	DepositSourceBoostRevenue     DepositSource = "boost_revenue"
)

// DepositKind credits a wallet.
type DepositKind struct {
	Source        DepositSource
	ReferenceID   string
	ReferenceType ReferenceType
}

// WithdrawKind debits a wallet pending staff approval.
type WithdrawKind struct {
	Note string
}

// PurchaseKind debits a ticket buyer.
type PurchaseKind struct {
	EventID    EventID
	CategoryID CategoryID
}

// BoostKind debits a boost buyer.
type BoostKind struct {
	EventID   EventID
	BoostType BoostType
	Quantity  int64
}

// PremiumKind charges a premium subscription.
type PremiumKind struct {
	PlanName      string
	PaymentMethod PaymentMethod
}

// RefundKind credits back a previously completed debit.
type RefundKind struct {
	OriginalTransactionID TransactionID
}

func (DepositKind) transactionType() TransactionType  { return TransactionDeposit }
func (WithdrawKind) transactionType() TransactionType { return TransactionWithdraw }
func (PurchaseKind) transactionType() TransactionType { return TransactionPurchase }
func (BoostKind) transactionType() TransactionType    { return TransactionBoost }
func (PremiumKind) transactionType() TransactionType  { return TransactionPremium }
func (RefundKind) transactionType() TransactionType   { return TransactionRefund }

// TransactionDraft is the input of NewTransaction.
type TransactionDraft struct {
	ID                 TransactionID
	WalletID           WalletID
	UserID             UserID
	Kind               TransactionKind
	AmountCents        AmountCents
	BalanceBeforeCents AmountCents
	Status             TransactionStatus
	Metadata           MetadataJSON
	CreatedUnixUTC     int64
}

type kindReference struct {
	id            string
	referenceType ReferenceType
}

// NewTransaction validates a draft and derives its type, reference and resulting balance.
func NewTransaction(draft TransactionDraft) (Transaction, error) {
	if draft.ID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	if draft.WalletID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidWalletID)
	}
	if draft.UserID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if draft.AmountCents <= 0 {
		return Transaction{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	reference, err := referenceOf(draft.Kind)
	if err != nil {
		return Transaction{}, err
	}
	status := draft.Status
	if status == "" {
		status = TransactionStatusCompleted
	}
	if status == TransactionStatusCancelled {
		return Transaction{}, fmt.Errorf("%w: cannot append a cancelled transaction", ErrInvalidTransactionStatus)
	}
	transactionType := draft.Kind.transactionType()
	balanceAfter := draft.BalanceBeforeCents + draft.AmountCents
	if transactionType.IsDebit() {
		if draft.AmountCents > draft.BalanceBeforeCents {
			return Transaction{}, &InsufficientBalanceError{CurrentCents: draft.BalanceBeforeCents, RequiredCents: draft.AmountCents}
		}
		balanceAfter = draft.BalanceBeforeCents - draft.AmountCents
	}
	return Transaction{
		ID:                 draft.ID,
		WalletID:           draft.WalletID,
		UserID:             draft.UserID,
		Type:               transactionType,
		AmountCents:        draft.AmountCents,
		BalanceBeforeCents: draft.BalanceBeforeCents,
		BalanceAfterCents:  balanceAfter,
		Status:             status,
		ReferenceID:        reference.id,
		ReferenceType:      reference.referenceType,
		Metadata:           draft.Metadata,
		CreatedUnixUTC:     draft.CreatedUnixUTC,
	}, nil
}

func referenceOf(kind TransactionKind) (kindReference, error) {
	switch typed := kind.(type) {
	case DepositKind:
		switch typed.Source {
		case DepositSourceTopUp:
			return kindReference{id: typed.ReferenceID, referenceType: typed.ReferenceType}, nil
		case DepositSourceGateway, DepositSourceTicketSale, DepositSourceTicketCommission, DepositSourceBoostRevenue:
			if typed.ReferenceID == "" || typed.ReferenceType == ReferenceNone {
				return kindReference{}, fmt.Errorf("%w: %s deposit requires a reference", ErrInvalidTransactionKind, typed.Source)
			}
			return kindReference{id: typed.ReferenceID, referenceType: typed.ReferenceType}, nil
		default:
			return kindReference{}, fmt.Errorf("%w: %q", ErrInvalidDepositSource, typed.Source)
		}
	case WithdrawKind:
		return kindReference{}, nil
	case PurchaseKind:
		if typed.EventID.IsZero() {
			return kindReference{}, fmt.Errorf("%w: purchase requires an event", ErrInvalidTransactionKind)
		}
		return kindReference{id: typed.EventID.String(), referenceType: ReferenceEvent}, nil
	case BoostKind:
		if typed.EventID.IsZero() {
			return kindReference{}, fmt.Errorf("%w: boost requires an event", ErrInvalidTransactionKind)
		}
		if _, err := ParseBoostType(string(typed.BoostType)); err != nil {
			return kindReference{}, err
		}
		if typed.Quantity < 1 {
			return kindReference{}, fmt.Errorf("%w: boost quantity must be at least 1", ErrInvalidQuantity)
		}
		return kindReference{id: typed.EventID.String(), referenceType: ReferenceEvent}, nil
	case PremiumKind:
		if typed.PlanName == "" {
			return kindReference{}, fmt.Errorf("%w: premium requires a plan", ErrInvalidTransactionKind)
		}
		if _, err := ParsePaymentMethod(string(typed.PaymentMethod)); err != nil {
			return kindReference{}, err
		}
		return kindReference{id: typed.PlanName, referenceType: ReferenceSubscription}, nil
	case RefundKind:
		if typed.OriginalTransactionID.IsZero() {
			return kindReference{}, fmt.Errorf("%w: refund requires the original transaction", ErrInvalidTransactionKind)
		}
		return kindReference{id: typed.OriginalTransactionID.String(), referenceType: ReferenceTransaction}, nil
	default:
		return kindReference{}, fmt.Errorf("%w: %T", ErrInvalidTransactionKind, kind)
	}
}
