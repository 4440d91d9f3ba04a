package ledger

import "time"

const (
	operationDeposit             = "deposit"
	operationPurchaseBoost       = "purchase_boost"
	operationPurchaseTicket      = "purchase_ticket"
	operationSubscribePremium    = "subscribe_premium"
	operationRequestWithdrawal   = "request_withdrawal"
	operationApproveWithdrawal   = "approve_withdrawal"
	operationRejectWithdrawal    = "reject_withdrawal"
	operationExpireBoosts        = "expire_boosts"
	operationExpireSubscriptions = "expire_subscriptions"

	operationStatusOK                 = "ok"
	operationStatusError              = "error"
	operationStatusCompensated        = "compensated"
	operationStatusCompensationFailed = "compensation_failed"

	stepDebitBuyer           = "debit_buyer"
	stepCreditOrganizer      = "credit_organizer"
	stepCreditPlatform       = "credit_platform"
	stepCreateBoosts         = "create_boosts"
	stepIssueTicket          = "issue_ticket"
	stepDecrementStock       = "decrement_stock"
	stepGatewayDeposit       = "gateway_deposit"
	stepChargePremium        = "charge_premium"
	stepActivateSubscription = "activate_subscription"
	stepGrantPremium         = "grant_premium"

	defaultTicketCommissionPercent Percent = 10
	boostCommissionPercent         Percent = 100
	defaultMaxConflictAttempts     uint    = 5
	defaultMaxCompensationAttempts uint    = 5
	defaultListLimit                       = 50
	maxListLimit                           = 500
	expirySweepBatchSize                   = 100
	maxBoostQuantity               int64   = 1000

	conflictInitialInterval     = 5 * time.Millisecond
	conflictMaxInterval         = 100 * time.Millisecond
	compensationInitialInterval = 50 * time.Millisecond
	compensationMaxInterval     = 2 * time.Second

	tracerName = "github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
)

// Fallback boost prices used when no BoostPriceCatalog entry exists.
var defaultBoostPrices = map[BoostType]BoostPrice{
	BoostType12h: {BoostType: BoostType12h, UnitPriceCents: 20, DurationHours: 12},
	BoostType24h: {BoostType: BoostType24h, UnitPriceCents: 35, DurationHours: 24},
}

// DefaultBoostPrices returns the built-in boost prices used when no catalog price exists.
func DefaultBoostPrices() []BoostPrice {
	return []BoostPrice{defaultBoostPrices[BoostType12h], defaultBoostPrices[BoostType24h]}
}
