package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger  *zap.Logger
	service *ledger.Service
	cfg     Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	limit := defaultHistoryLimit
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	wallet, err := handler.service.GetWalletBalance(requestCtx, actor.UserID)
	if err != nil {
		handler.respondError(ctx, "get_wallet", err)
		return
	}
	transactions, err := handler.service.ListTransactions(requestCtx, actor.UserID, limit)
	if err != nil {
		handler.respondError(ctx, "list_transactions", err)
		return
	}
	response := walletResponse{
		WalletID:       wallet.ID.String(),
		Balance:        wallet.BalanceCents.String(),
		TotalDeposited: wallet.TotalDepositedCents.String(),
		TotalWithdrawn: wallet.TotalWithdrawnCents.String(),
		Transactions:   make([]transactionPayload, 0, len(transactions)),
	}
	for _, transaction := range transactions {
		response.Transactions = append(response.Transactions, newTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": response})
}

func (handler *httpHandler) handleBoosts(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	var request boostRequest
	if !bindJSON(ctx, &request) {
		return
	}
	eventID, err := ledger.NewEventID(request.EventID)
	if err != nil {
		handler.respondError(ctx, "purchase_boost", err)
		return
	}
	boostType, err := ledger.ParseBoostType(request.BoostType)
	if err != nil {
		handler.respondError(ctx, "purchase_boost", err)
		return
	}
	paymentMethod, err := parsePaymentMethod(request.PaymentMethod)
	if err != nil {
		handler.respondError(ctx, "purchase_boost", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.PurchaseBoost(requestCtx, ledger.BoostPurchaseRequest{
		BuyerID:          actor.UserID,
		EventID:          eventID,
		BoostType:        boostType,
		PaymentMethod:    paymentMethod,
		Quantity:         request.Quantity,
		PaymentConfirmed: request.PaymentConfirmed,
	})
	if err != nil {
		handler.respondError(ctx, "purchase_boost", err)
		return
	}
	boosts := make([]boostPayload, 0, len(result.Boosts))
	for _, boost := range result.Boosts {
		boosts = append(boosts, boostPayload{ID: boost.ID, ExpiresUnixUTC: boost.ExpiresUnixUTC})
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"transaction_id":     result.TransactionID.String(),
		"payment_method":     string(result.PaymentMethod),
		"unit_price":         result.Quote.UnitPriceCents.String(),
		"quantity":           result.Quote.Quantity,
		"discount_percent":   result.Quote.DiscountPercent.Int64(),
		"discount":           result.Quote.DiscountCents.String(),
		"total":              result.Quote.TotalCents.String(),
		"boosts":             boosts,
		"active_boost_count": result.ActiveBoostCount,
		"balance":            result.BuyerBalanceCents.String(),
	})
}

func (handler *httpHandler) handleTickets(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	var request ticketRequest
	if !bindJSON(ctx, &request) {
		return
	}
	purchase := ledger.TicketPurchaseRequest{BuyerID: actor.UserID}
	eventID, err := ledger.NewEventID(request.EventID)
	if err != nil {
		handler.respondError(ctx, "purchase_ticket", err)
		return
	}
	purchase.EventID = eventID
	if strings.TrimSpace(request.CategoryID) != "" {
		categoryID, err := ledger.NewCategoryID(request.CategoryID)
		if err != nil {
			handler.respondError(ctx, "purchase_ticket", err)
			return
		}
		purchase.CategoryID = categoryID
	}
	if strings.TrimSpace(request.Price) != "" {
		price, err := ledger.ParseAmount(request.Price)
		if err != nil {
			handler.respondError(ctx, "purchase_ticket", err)
			return
		}
		purchase.PriceCents = price
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.PurchaseTicket(requestCtx, purchase)
	if err != nil {
		handler.respondError(ctx, "purchase_ticket", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"ticket_id":          result.TicketID,
		"transaction_id":     result.TransactionID.String(),
		"price":              result.Split.GrossCents.String(),
		"organizer_amount":   result.Split.OrganizerCents.String(),
		"platform_amount":    result.Split.PlatformCents.String(),
		"commission_percent": result.Split.CommissionPercent.Int64(),
		"balance":            result.BuyerBalanceCents.String(),
	})
}

func (handler *httpHandler) handleSubscriptions(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	var request subscriptionRequest
	if !bindJSON(ctx, &request) {
		return
	}
	paymentMethod, err := parsePaymentMethod(request.PaymentMethod)
	if err != nil {
		handler.respondError(ctx, "subscribe_premium", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.SubscribePremium(requestCtx, ledger.SubscriptionRequest{
		BuyerID:          actor.UserID,
		PlanName:         request.Plan,
		PaymentMethod:    paymentMethod,
		AutoRenew:        request.AutoRenew,
		PaymentConfirmed: request.PaymentConfirmed,
	})
	if err != nil {
		handler.respondError(ctx, "subscribe_premium", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"plan":             result.Subscription.PlanName,
		"status":           string(result.Subscription.Status),
		"auto_renew":       result.Subscription.AutoRenew,
		"expires_unix_utc": result.Subscription.ExpiresUnixUTC,
		"transaction_id":   result.TransactionID.String(),
		"amount":           result.AmountCents.String(),
		"is_premium":       result.Profile.IsPremium,
		"role":             string(result.Profile.Role),
		"balance":          result.BuyerBalanceCents.String(),
	})
}

func (handler *httpHandler) handleWithdrawals(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	var request amountRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := ledger.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, "request_withdrawal", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.RequestWithdrawal(requestCtx, actor.UserID, amount)
	if err != nil {
		handler.respondError(ctx, "request_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"transaction": newTransactionPayload(result.Transaction),
		"balance":     result.Wallet.BalanceCents.String(),
	})
}

func (handler *httpHandler) handleDeposit(ctx *gin.Context) {
	var request depositRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		handler.respondError(ctx, "deposit", err)
		return
	}
	amount, err := ledger.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, "deposit", err)
		return
	}
	metadata, err := ledger.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		handler.respondError(ctx, "deposit", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.service.Deposit(requestCtx, ledger.DepositRequest{
		UserID:      userID,
		AmountCents: amount,
		ReferenceID: strings.TrimSpace(request.ReferenceID),
		Metadata:    metadata,
	})
	if err != nil {
		handler.respondError(ctx, "deposit", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"transaction": newTransactionPayload(result.Transaction),
		"balance":     result.Wallet.BalanceCents.String(),
	})
}

func (handler *httpHandler) handleApproveWithdrawal(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	transactionID, err := ledger.NewTransactionID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "approve_withdrawal", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	transaction, err := handler.service.ApproveWithdrawal(requestCtx, actor, transactionID)
	if err != nil {
		handler.respondError(ctx, "approve_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleRejectWithdrawal(ctx *gin.Context) {
	actor, _ := actorFrom(ctx)
	var request rejectRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	transactionID, err := ledger.NewTransactionID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "reject_withdrawal", err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	transaction, err := handler.service.RejectWithdrawal(requestCtx, actor, transactionID, strings.TrimSpace(request.Reason))
	if err != nil {
		handler.respondError(ctx, "reject_withdrawal", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handlePlatformWallets(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	summary, err := handler.service.GetPlatformWalletSummary(requestCtx)
	if err != nil {
		handler.respondError(ctx, "platform_wallets", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"boost_wallet":  newPlatformWalletPayload(summary.BoostWallet),
		"ticket_wallet": newPlatformWalletPayload(summary.TicketWallet),
		"total":         summary.TotalCents.String(),
	})
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return false
	}
	return true
}

func parsePaymentMethod(raw string) (ledger.PaymentMethod, error) {
	if strings.TrimSpace(raw) == "" {
		return ledger.PaymentWallet, nil
	}
	return ledger.ParsePaymentMethod(raw)
}

type boostRequest struct {
	EventID          string `json:"event_id"`
	BoostType        string `json:"boost_type"`
	Quantity         int64  `json:"quantity"`
	PaymentMethod    string `json:"payment_method"`
	PaymentConfirmed bool   `json:"payment_confirmed"`
}

type ticketRequest struct {
	EventID    string `json:"event_id"`
	CategoryID string `json:"category_id"`
	Price      string `json:"price"`
}

type subscriptionRequest struct {
	Plan             string `json:"plan"`
	PaymentMethod    string `json:"payment_method"`
	AutoRenew        bool   `json:"auto_renew"`
	PaymentConfirmed bool   `json:"payment_confirmed"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type depositRequest struct {
	UserID      string          `json:"user_id"`
	Amount      string          `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	Metadata    json.RawMessage `json:"metadata"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type walletResponse struct {
	WalletID       string               `json:"wallet_id"`
	Balance        string               `json:"balance"`
	TotalDeposited string               `json:"total_deposited"`
	TotalWithdrawn string               `json:"total_withdrawn"`
	Transactions   []transactionPayload `json:"transactions"`
}

type transactionPayload struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Amount         string          `json:"amount"`
	BalanceBefore  string          `json:"balance_before"`
	BalanceAfter   string          `json:"balance_after"`
	Status         string          `json:"status"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

type boostPayload struct {
	ID             string `json:"id"`
	ExpiresUnixUTC int64  `json:"expires_unix_utc"`
}

type platformWalletPayload struct {
	WalletID string `json:"wallet_id"`
	Kind     string `json:"kind"`
	Balance  string `json:"balance"`
}

func newTransactionPayload(transaction ledger.Transaction) transactionPayload {
	return transactionPayload{
		ID:             transaction.ID.String(),
		Type:           string(transaction.Type),
		Amount:         transaction.AmountCents.String(),
		BalanceBefore:  transaction.BalanceBeforeCents.String(),
		BalanceAfter:   transaction.BalanceAfterCents.String(),
		Status:         string(transaction.Status),
		ReferenceID:    transaction.ReferenceID,
		ReferenceType:  string(transaction.ReferenceType),
		Metadata:       json.RawMessage(transaction.Metadata.String()),
		CreatedUnixUTC: transaction.CreatedUnixUTC,
	}
}

func newPlatformWalletPayload(wallet ledger.Wallet) platformWalletPayload {
	return platformWalletPayload{
		WalletID: wallet.ID.String(),
		Kind:     string(wallet.Kind),
		Balance:  wallet.BalanceCents.String(),
	}
}
